// Package memory provides an in-memory storage.Store used by workflow tests.
// It honors the same compare-and-set and transaction semantics as the SQLite
// store: a single mutex serializes writers, and WithTx snapshots state so an
// error rolls back every touched row.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/kellyenterprises/gaugehub/internal/errors"
	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage"
)

type state struct {
	gauges    map[string]domain.Gauge
	checkouts map[string]domain.CheckoutRecord
	batches   map[string]domain.CalibrationBatch
	transfers map[string]domain.TransferRequest
	unseals   map[string]domain.UnsealRequest
	pairing   []domain.PairingEvent
	audit     []domain.AuditEntry
}

func newState() *state {
	return &state{
		gauges:    make(map[string]domain.Gauge),
		checkouts: make(map[string]domain.CheckoutRecord),
		batches:   make(map[string]domain.CalibrationBatch),
		transfers: make(map[string]domain.TransferRequest),
		unseals:   make(map[string]domain.UnsealRequest),
	}
}

func (st *state) clone() *state {
	cloned := newState()
	for k, v := range st.gauges {
		cloned.gauges[k] = v
	}
	for k, v := range st.checkouts {
		cloned.checkouts[k] = v
	}
	for k, v := range st.batches {
		v.GaugeIDs = append([]string(nil), v.GaugeIDs...)
		cloned.batches[k] = v
	}
	for k, v := range st.transfers {
		cloned.transfers[k] = v
	}
	for k, v := range st.unseals {
		cloned.unseals[k] = v
	}
	cloned.pairing = append([]domain.PairingEvent(nil), st.pairing...)
	cloned.audit = append([]domain.AuditEntry(nil), st.audit...)
	return cloned
}

// Store implements storage.Store in memory.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{st: newState()}
}

// WithTx runs fn against the current state; any error restores the snapshot.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Stores) error) error {
	if fn == nil {
		return fmt.Errorf("transaction function is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&txStores{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Gauges returns the gauge store.
func (s *Store) Gauges() storage.GaugeStore { return &lockedGauges{s: s} }

// Checkouts returns the checkout record store.
func (s *Store) Checkouts() storage.CheckoutStore { return &lockedCheckouts{s: s} }

// Batches returns the calibration batch store.
func (s *Store) Batches() storage.BatchStore { return &lockedBatches{s: s} }

// Transfers returns the transfer request store.
func (s *Store) Transfers() storage.TransferStore { return &lockedTransfers{s: s} }

// Unseals returns the unseal request store.
func (s *Store) Unseals() storage.UnsealStore { return &lockedUnseals{s: s} }

// PairingHistory returns the pairing history store.
func (s *Store) PairingHistory() storage.PairingHistoryStore { return &lockedPairing{s: s} }

// Audit returns the audit log store.
func (s *Store) Audit() storage.AuditStore { return &lockedAudit{s: s} }

// txStores exposes the same operations without locking; WithTx already holds
// the store mutex for the whole scope.
type txStores struct {
	st *state
}

func (t *txStores) Gauges() storage.GaugeStore { return &gaugeOps{st: t.st} }

func (t *txStores) Checkouts() storage.CheckoutStore { return &checkoutOps{st: t.st} }

func (t *txStores) Batches() storage.BatchStore { return &batchOps{st: t.st} }

func (t *txStores) Transfers() storage.TransferStore { return &transferOps{st: t.st} }

func (t *txStores) Unseals() storage.UnsealStore { return &unsealOps{st: t.st} }

func (t *txStores) PairingHistory() storage.PairingHistoryStore { return &pairingOps{st: t.st} }

func (t *txStores) Audit() storage.AuditStore { return &auditOps{st: t.st} }

// gaugeOps implements storage.GaugeStore over raw state.
type gaugeOps struct {
	st *state
}

func (o *gaugeOps) Put(ctx context.Context, g domain.Gauge) error {
	if strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("gauge id is required")
	}
	o.st.gauges[g.ID] = g
	return nil
}

func (o *gaugeOps) Get(ctx context.Context, id string) (domain.Gauge, error) {
	g, ok := o.st.gauges[id]
	if !ok {
		return domain.Gauge{}, notFound("gauge", id)
	}
	return g, nil
}

func (o *gaugeOps) GetByTag(ctx context.Context, tag string) (domain.Gauge, error) {
	for _, g := range o.st.gauges {
		if g.Tag == tag {
			return g, nil
		}
	}
	return domain.Gauge{}, notFound("gauge", tag)
}

func (o *gaugeOps) List(ctx context.Context, query storage.GaugeQuery) (storage.GaugePage, error) {
	var matched []domain.Gauge
	for _, g := range o.st.gauges {
		if !matches(g, query) {
			continue
		}
		if query.PageToken != "" && g.Tag <= query.PageToken {
			continue
		}
		matched = append(matched, g)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Tag < matched[j].Tag })

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page := storage.GaugePage{Gauges: matched}
	if len(matched) > pageSize {
		page.Gauges = matched[:pageSize]
		page.NextPageToken = matched[pageSize-1].Tag
	}
	return page, nil
}

func matches(g domain.Gauge, query storage.GaugeQuery) bool {
	if len(query.Statuses) > 0 {
		found := false
		for _, status := range query.Statuses {
			if g.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if query.Class != domain.EquipmentClassUnspecified && g.Class != query.Class {
		return false
	}
	if query.Location != "" && g.Location != query.Location {
		return false
	}
	if query.HolderID != "" && g.HolderID != query.HolderID {
		return false
	}
	if query.SetID != "" && g.SetID != query.SetID {
		return false
	}
	if query.OverdueOnly && !g.CalibrationOverdue(query.OverdueAt) {
		return false
	}
	if query.SpareOnly && !g.Spare {
		return false
	}
	return true
}

func (o *gaugeOps) ListBySet(ctx context.Context, setID string) ([]domain.Gauge, error) {
	var members []domain.Gauge
	for _, g := range o.st.gauges {
		if g.SetID == setID {
			members = append(members, g)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Tag < members[j].Tag })
	return members, nil
}

func (o *gaugeOps) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.Status, extra storage.Extra) error {
	g, ok := o.st.gauges[id]
	if !ok {
		return notFound("gauge", id)
	}
	if g.Status != expected {
		return apperrors.WithMetadata(apperrors.CodeStaleState,
			fmt.Sprintf("gauge %s is no longer %s", id, expected),
			map[string]string{"gauge_id": id, "expected": string(expected)})
	}

	g.Status = next
	g.Version++
	g.UpdatedAt = time.Now().UTC()
	if extra.HolderID != nil {
		g.HolderID = *extra.HolderID
	}
	if extra.Location != nil {
		g.Location = *extra.Location
	}
	if extra.CalibrationDueAt != nil {
		g.CalibrationDueAt = *extra.CalibrationDueAt
	}
	if extra.Sealed != nil {
		g.Sealed = *extra.Sealed
	}
	if extra.Spare != nil {
		g.Spare = *extra.Spare
	}
	if extra.CompanionID != nil {
		g.CompanionID = *extra.CompanionID
	}
	if extra.SetID != nil {
		g.SetID = *extra.SetID
	}
	if extra.Ownership != nil {
		g.Ownership = *extra.Ownership
	}
	o.st.gauges[id] = g
	return nil
}

// checkoutOps implements storage.CheckoutStore over raw state.
type checkoutOps struct {
	st *state
}

func (o *checkoutOps) Insert(ctx context.Context, record domain.CheckoutRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("checkout record id is required")
	}
	for _, existing := range o.st.checkouts {
		if existing.GaugeID == record.GaugeID && existing.Open() {
			return apperrors.WithMetadata(apperrors.CodeCheckoutAlreadyOpen,
				fmt.Sprintf("gauge %s already has an open checkout", record.GaugeID),
				map[string]string{"gauge_id": record.GaugeID})
		}
	}
	o.st.checkouts[record.ID] = record
	return nil
}

func (o *checkoutOps) GetOpenByGauge(ctx context.Context, gaugeID string) (domain.CheckoutRecord, error) {
	for _, record := range o.st.checkouts {
		if record.GaugeID == gaugeID && record.Open() {
			return record, nil
		}
	}
	return domain.CheckoutRecord{}, apperrors.WithMetadata(apperrors.CodeCheckoutNotOpen,
		fmt.Sprintf("gauge %s has no open checkout", gaugeID),
		map[string]string{"gauge_id": gaugeID})
}

func (o *checkoutOps) Close(ctx context.Context, recordID, condition string, at time.Time) error {
	record, ok := o.st.checkouts[recordID]
	if !ok || !record.Open() {
		return apperrors.WithMetadata(apperrors.CodeCheckoutNotOpen,
			fmt.Sprintf("checkout record %s is not open", recordID),
			map[string]string{"record_id": recordID})
	}
	o.st.checkouts[recordID] = record.Close(condition, at)
	return nil
}

func (o *checkoutOps) ListByGauge(ctx context.Context, gaugeID string) ([]domain.CheckoutRecord, error) {
	var records []domain.CheckoutRecord
	for _, record := range o.st.checkouts {
		if record.GaugeID == gaugeID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CheckedOutAt.After(records[j].CheckedOutAt)
	})
	return records, nil
}

// batchOps implements storage.BatchStore over raw state.
type batchOps struct {
	st *state
}

func (o *batchOps) Insert(ctx context.Context, batch domain.CalibrationBatch) error {
	if strings.TrimSpace(batch.ID) == "" {
		return fmt.Errorf("batch id is required")
	}
	o.st.batches[batch.ID] = batch
	return nil
}

func (o *batchOps) Get(ctx context.Context, id string) (domain.CalibrationBatch, error) {
	batch, ok := o.st.batches[id]
	if !ok {
		return domain.CalibrationBatch{}, notFound("batch", id)
	}
	batch.GaugeIDs = append([]string(nil), batch.GaugeIDs...)
	return batch, nil
}

func (o *batchOps) AddMember(ctx context.Context, batchID, gaugeID string) error {
	batch, ok := o.st.batches[batchID]
	if !ok {
		return notFound("batch", batchID)
	}
	if batch.Contains(gaugeID) {
		return apperrors.WithMetadata(apperrors.CodeGaugeInOpenBatch,
			fmt.Sprintf("gauge %s is already a member of batch %s", gaugeID, batchID),
			map[string]string{"gauge_id": gaugeID, "batch_id": batchID})
	}
	batch.GaugeIDs = append(batch.GaugeIDs, gaugeID)
	sort.Strings(batch.GaugeIDs)
	o.st.batches[batchID] = batch
	return nil
}

func (o *batchOps) RemoveMember(ctx context.Context, batchID, gaugeID string) error {
	batch, ok := o.st.batches[batchID]
	if !ok {
		return notFound("batch", batchID)
	}
	for i, member := range batch.GaugeIDs {
		if member == gaugeID {
			batch.GaugeIDs = append(batch.GaugeIDs[:i], batch.GaugeIDs[i+1:]...)
			o.st.batches[batchID] = batch
			return nil
		}
	}
	return apperrors.WithMetadata(apperrors.CodeBatchMemberMissing,
		fmt.Sprintf("gauge %s is not a member of batch %s", gaugeID, batchID),
		map[string]string{"gauge_id": gaugeID, "batch_id": batchID})
}

func (o *batchOps) OpenBatchByGauge(ctx context.Context, gaugeID string) (domain.CalibrationBatch, bool, error) {
	for _, batch := range o.st.batches {
		if batch.Status.Open() && batch.Contains(gaugeID) {
			batch.GaugeIDs = append([]string(nil), batch.GaugeIDs...)
			return batch, true, nil
		}
	}
	return domain.CalibrationBatch{}, false, nil
}

func (o *batchOps) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.BatchStatus, sentAt time.Time) error {
	batch, ok := o.st.batches[id]
	if !ok {
		return notFound("batch", id)
	}
	if batch.Status != expected {
		return apperrors.WithMetadata(apperrors.CodeStaleState,
			fmt.Sprintf("batch %s is no longer %s", id, expected),
			map[string]string{"batch_id": id, "expected": string(expected)})
	}
	batch.Status = next
	batch.UpdatedAt = time.Now().UTC()
	if !sentAt.IsZero() {
		batch.SentAt = sentAt
	}
	o.st.batches[id] = batch
	return nil
}

// transferOps implements storage.TransferStore over raw state.
type transferOps struct {
	st *state
}

func (o *transferOps) Insert(ctx context.Context, request domain.TransferRequest) error {
	if strings.TrimSpace(request.ID) == "" {
		return fmt.Errorf("transfer request id is required")
	}
	o.st.transfers[request.ID] = request
	return nil
}

func (o *transferOps) Get(ctx context.Context, id string) (domain.TransferRequest, error) {
	request, ok := o.st.transfers[id]
	if !ok {
		return domain.TransferRequest{}, notFound("transfer request", id)
	}
	return request, nil
}

func (o *transferOps) Resolve(ctx context.Context, id string, next domain.ApprovalStatus, approverID string, at time.Time) error {
	request, ok := o.st.transfers[id]
	if !ok {
		return notFound("transfer request", id)
	}
	if request.Status != domain.ApprovalStatusPending {
		return notPending(id)
	}
	request.Status = next
	request.ApproverID = approverID
	request.ResolvedAt = at
	o.st.transfers[id] = request
	return nil
}

// unsealOps implements storage.UnsealStore over raw state.
type unsealOps struct {
	st *state
}

func (o *unsealOps) Insert(ctx context.Context, request domain.UnsealRequest) error {
	if strings.TrimSpace(request.ID) == "" {
		return fmt.Errorf("unseal request id is required")
	}
	o.st.unseals[request.ID] = request
	return nil
}

func (o *unsealOps) Get(ctx context.Context, id string) (domain.UnsealRequest, error) {
	request, ok := o.st.unseals[id]
	if !ok {
		return domain.UnsealRequest{}, notFound("unseal request", id)
	}
	return request, nil
}

func (o *unsealOps) Resolve(ctx context.Context, id string, next domain.ApprovalStatus, approverID string, at time.Time) error {
	request, ok := o.st.unseals[id]
	if !ok {
		return notFound("unseal request", id)
	}
	if request.Status != domain.ApprovalStatusPending {
		return notPending(id)
	}
	request.Status = next
	request.ApproverID = approverID
	request.ResolvedAt = at
	o.st.unseals[id] = request
	return nil
}

func (o *unsealOps) Confirm(ctx context.Context, id string, at time.Time) error {
	request, ok := o.st.unseals[id]
	if !ok {
		return notFound("unseal request", id)
	}
	if request.Status != domain.ApprovalStatusAccepted || !request.ConfirmedAt.IsZero() {
		return apperrors.WithMetadata(apperrors.CodeApprovalNotAccepted,
			fmt.Sprintf("unseal request %s is not accepted or already confirmed", id),
			map[string]string{"request_id": id})
	}
	request.ConfirmedAt = at
	o.st.unseals[id] = request
	return nil
}

// pairingOps implements storage.PairingHistoryStore over raw state.
type pairingOps struct {
	st *state
}

func (o *pairingOps) Append(ctx context.Context, event domain.PairingEvent) error {
	o.st.pairing = append(o.st.pairing, event)
	return nil
}

func (o *pairingOps) ListBySet(ctx context.Context, setID string) ([]domain.PairingEvent, error) {
	var events []domain.PairingEvent
	for _, event := range o.st.pairing {
		if event.SetID == setID {
			events = append(events, event)
		}
	}
	return events, nil
}

// auditOps implements storage.AuditStore over raw state.
type auditOps struct {
	st *state
}

func (o *auditOps) Append(ctx context.Context, entry domain.AuditEntry) error {
	o.st.audit = append(o.st.audit, entry)
	return nil
}

func (o *auditOps) ListByGauge(ctx context.Context, gaugeID string) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	for _, entry := range o.st.audit {
		if entry.GaugeID == gaugeID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func notFound(entity, id string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("%s %s not found", entity, id),
		map[string]string{"id": id})
}

func notPending(id string) error {
	return apperrors.WithMetadata(apperrors.CodeApprovalNotPending,
		fmt.Sprintf("request %s is not pending", id),
		map[string]string{"request_id": id})
}

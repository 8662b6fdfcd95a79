package memory

import (
	"context"
	"time"

	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage"
)

// The locked wrappers serialize top-level access through the store mutex and
// delegate to the raw ops. WithTx bypasses them because it already holds the
// lock for the whole transaction scope.

type lockedGauges struct {
	s *Store
}

func (l *lockedGauges) Put(ctx context.Context, g domain.Gauge) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&gaugeOps{st: l.s.st}).Put(ctx, g)
}

func (l *lockedGauges) Get(ctx context.Context, id string) (domain.Gauge, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&gaugeOps{st: l.s.st}).Get(ctx, id)
}

func (l *lockedGauges) GetByTag(ctx context.Context, tag string) (domain.Gauge, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&gaugeOps{st: l.s.st}).GetByTag(ctx, tag)
}

func (l *lockedGauges) List(ctx context.Context, query storage.GaugeQuery) (storage.GaugePage, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&gaugeOps{st: l.s.st}).List(ctx, query)
}

func (l *lockedGauges) ListBySet(ctx context.Context, setID string) ([]domain.Gauge, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&gaugeOps{st: l.s.st}).ListBySet(ctx, setID)
}

func (l *lockedGauges) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.Status, extra storage.Extra) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&gaugeOps{st: l.s.st}).CompareAndSetStatus(ctx, id, expected, next, extra)
}

type lockedCheckouts struct {
	s *Store
}

func (l *lockedCheckouts) Insert(ctx context.Context, record domain.CheckoutRecord) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&checkoutOps{st: l.s.st}).Insert(ctx, record)
}

func (l *lockedCheckouts) GetOpenByGauge(ctx context.Context, gaugeID string) (domain.CheckoutRecord, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&checkoutOps{st: l.s.st}).GetOpenByGauge(ctx, gaugeID)
}

func (l *lockedCheckouts) Close(ctx context.Context, recordID, condition string, at time.Time) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&checkoutOps{st: l.s.st}).Close(ctx, recordID, condition, at)
}

func (l *lockedCheckouts) ListByGauge(ctx context.Context, gaugeID string) ([]domain.CheckoutRecord, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&checkoutOps{st: l.s.st}).ListByGauge(ctx, gaugeID)
}

type lockedBatches struct {
	s *Store
}

func (l *lockedBatches) Insert(ctx context.Context, batch domain.CalibrationBatch) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&batchOps{st: l.s.st}).Insert(ctx, batch)
}

func (l *lockedBatches) Get(ctx context.Context, id string) (domain.CalibrationBatch, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&batchOps{st: l.s.st}).Get(ctx, id)
}

func (l *lockedBatches) AddMember(ctx context.Context, batchID, gaugeID string) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&batchOps{st: l.s.st}).AddMember(ctx, batchID, gaugeID)
}

func (l *lockedBatches) RemoveMember(ctx context.Context, batchID, gaugeID string) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&batchOps{st: l.s.st}).RemoveMember(ctx, batchID, gaugeID)
}

func (l *lockedBatches) OpenBatchByGauge(ctx context.Context, gaugeID string) (domain.CalibrationBatch, bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&batchOps{st: l.s.st}).OpenBatchByGauge(ctx, gaugeID)
}

func (l *lockedBatches) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.BatchStatus, sentAt time.Time) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&batchOps{st: l.s.st}).CompareAndSetStatus(ctx, id, expected, next, sentAt)
}

type lockedTransfers struct {
	s *Store
}

func (l *lockedTransfers) Insert(ctx context.Context, request domain.TransferRequest) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&transferOps{st: l.s.st}).Insert(ctx, request)
}

func (l *lockedTransfers) Get(ctx context.Context, id string) (domain.TransferRequest, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&transferOps{st: l.s.st}).Get(ctx, id)
}

func (l *lockedTransfers) Resolve(ctx context.Context, id string, next domain.ApprovalStatus, approverID string, at time.Time) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&transferOps{st: l.s.st}).Resolve(ctx, id, next, approverID, at)
}

type lockedUnseals struct {
	s *Store
}

func (l *lockedUnseals) Insert(ctx context.Context, request domain.UnsealRequest) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&unsealOps{st: l.s.st}).Insert(ctx, request)
}

func (l *lockedUnseals) Get(ctx context.Context, id string) (domain.UnsealRequest, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&unsealOps{st: l.s.st}).Get(ctx, id)
}

func (l *lockedUnseals) Resolve(ctx context.Context, id string, next domain.ApprovalStatus, approverID string, at time.Time) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&unsealOps{st: l.s.st}).Resolve(ctx, id, next, approverID, at)
}

func (l *lockedUnseals) Confirm(ctx context.Context, id string, at time.Time) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&unsealOps{st: l.s.st}).Confirm(ctx, id, at)
}

type lockedPairing struct {
	s *Store
}

func (l *lockedPairing) Append(ctx context.Context, event domain.PairingEvent) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&pairingOps{st: l.s.st}).Append(ctx, event)
}

func (l *lockedPairing) ListBySet(ctx context.Context, setID string) ([]domain.PairingEvent, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&pairingOps{st: l.s.st}).ListBySet(ctx, setID)
}

type lockedAudit struct {
	s *Store
}

func (l *lockedAudit) Append(ctx context.Context, entry domain.AuditEntry) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&auditOps{st: l.s.st}).Append(ctx, entry)
}

func (l *lockedAudit) ListByGauge(ctx context.Context, gaugeID string) ([]domain.AuditEntry, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&auditOps{st: l.s.st}).ListByGauge(ctx, gaugeID)
}

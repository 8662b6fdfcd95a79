// Package service is the facade over the gauge lifecycle: it wires the
// status engine, the workflows, the audit recorder, and tracing into one
// surface the transport layer calls.
package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kellyenterprises/gaugehub/internal/errors"
	"github.com/kellyenterprises/gaugehub/internal/gauge/audit"
	"github.com/kellyenterprises/gaugehub/internal/gauge/calibration"
	"github.com/kellyenterprises/gaugehub/internal/gauge/checkout"
	"github.com/kellyenterprises/gaugehub/internal/gauge/core/filter"
	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/engine"
	"github.com/kellyenterprises/gaugehub/internal/gauge/pairing"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage"
	"github.com/kellyenterprises/gaugehub/internal/gauge/transfer"
	"github.com/kellyenterprises/gaugehub/internal/gauge/unseal"
	"github.com/kellyenterprises/gaugehub/internal/platform/id"
)

const tracerName = "gaugehub/gauge/service"

// defaultPageSize bounds unpaginated listings.
const defaultPageSize = 50

// Service exposes every gauge lifecycle operation.
type Service struct {
	store       storage.Store
	recorder    *audit.Recorder
	checkouts   *checkout.Workflow
	calibration *calibration.Workflow
	pairing     *pairing.Manager
	transfers   *transfer.Workflow
	unseals     *unseal.Workflow
	tracer      trace.Tracer
	clock       func() time.Time
	idGenerator func() (string, error)
}

// New wires a service over the given store.
func New(store storage.Store) *Service {
	recorder := audit.NewRecorder(store.Audit())
	return &Service{
		store:       store,
		recorder:    recorder,
		checkouts:   checkout.NewWorkflow(store, recorder),
		calibration: calibration.NewWorkflow(store, recorder),
		pairing:     pairing.NewManager(store),
		transfers:   transfer.NewWorkflow(store, recorder),
		unseals:     unseal.NewWorkflow(store, recorder),
		tracer:      otel.Tracer(tracerName),
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// WithClock replaces the service clock and propagates it to the workflows.
// Used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	s.checkouts.WithClock(clock)
	s.calibration.WithClock(clock)
	s.pairing.WithClock(clock)
	s.transfers.WithClock(clock)
	s.unseals.WithClock(clock)
	return s
}

func (s *Service) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, string(apperrors.GetCode(err)))
	}
	span.End()
}

// View is a gauge read model: the stored row plus the derived display
// status with the calibration_due overlay applied.
type View struct {
	domain.Gauge
	EffectiveStatus domain.Status
}

// RegisterGauge adds a new instrument to the fleet.
func (s *Service) RegisterGauge(ctx context.Context, input domain.CreateGaugeInput) (domain.Gauge, error) {
	ctx, span := s.start(ctx, "RegisterGauge")
	var err error
	defer func() { finish(span, err) }()

	g, err := domain.CreateGauge(input, s.clock, s.idGenerator)
	if err != nil {
		return domain.Gauge{}, err
	}
	if _, lookupErr := s.store.Gauges().GetByTag(ctx, g.Tag); lookupErr == nil {
		err = apperrors.WithMetadata(apperrors.CodeGaugeTagTaken,
			fmt.Sprintf("tag %s is already registered", g.Tag),
			map[string]string{"tag": g.Tag})
		return domain.Gauge{}, err
	}
	if err = s.store.Gauges().Put(ctx, g); err != nil {
		return domain.Gauge{}, err
	}
	return g, nil
}

// GetGauge returns one gauge with its effective display status.
func (s *Service) GetGauge(ctx context.Context, gaugeID string) (View, error) {
	ctx, span := s.start(ctx, "GetGauge")
	var err error
	defer func() { finish(span, err) }()

	g, err := s.store.Gauges().Get(ctx, gaugeID)
	if err != nil {
		return View{}, err
	}
	return s.view(g), nil
}

// GetGaugeByTag returns one gauge looked up by its business identifier.
func (s *Service) GetGaugeByTag(ctx context.Context, tag string) (View, error) {
	ctx, span := s.start(ctx, "GetGaugeByTag")
	var err error
	defer func() { finish(span, err) }()

	g, err := s.store.Gauges().GetByTag(ctx, tag)
	if err != nil {
		return View{}, err
	}
	return s.view(g), nil
}

// ListGauges returns a filtered, cursor-paginated page of gauges. The filter
// is an AIP-160 expression over status, class, location, holder_id, set_id,
// overdue, and spare.
func (s *Service) ListGauges(ctx context.Context, filterStr string, pageSize int, pageToken string) ([]View, string, error) {
	ctx, span := s.start(ctx, "ListGauges")
	var err error
	defer func() { finish(span, err) }()

	query, err := filter.ParseGaugeFilter(filterStr)
	if err != nil {
		return nil, "", err
	}
	query.OverdueAt = s.clock().UTC()
	query.PageSize = pageSize
	if query.PageSize <= 0 {
		query.PageSize = defaultPageSize
	}
	query.PageToken = pageToken

	page, err := s.store.Gauges().List(ctx, query)
	if err != nil {
		return nil, "", err
	}

	views := make([]View, 0, len(page.Gauges))
	for _, g := range page.Gauges {
		views = append(views, s.view(g))
	}
	return views, page.NextPageToken, nil
}

func (s *Service) view(g domain.Gauge) View {
	return View{Gauge: g, EffectiveStatus: g.EffectiveStatus(s.clock().UTC())}
}

// Checkout hands an available or sealed gauge to a holder.
func (s *Service) Checkout(ctx context.Context, input checkout.CheckoutInput) (domain.CheckoutRecord, error) {
	ctx, span := s.start(ctx, "Checkout")
	record, err := s.checkouts.Checkout(ctx, input)
	finish(span, err)
	return record, err
}

// Return takes a gauge back from its holder into quality control.
func (s *Service) Return(ctx context.Context, input checkout.ReturnInput) error {
	ctx, span := s.start(ctx, "Return")
	err := s.checkouts.Return(ctx, input)
	finish(span, err)
	return err
}

// QCPass clears post-return inspection.
func (s *Service) QCPass(ctx context.Context, gaugeID, actorID, location string) error {
	ctx, span := s.start(ctx, "QCPass")
	err := s.checkouts.QCPass(ctx, gaugeID, actorID, location)
	finish(span, err)
	return err
}

// QCFail fails post-return inspection.
func (s *Service) QCFail(ctx context.Context, gaugeID, actorID, reason string) error {
	ctx, span := s.start(ctx, "QCFail")
	err := s.checkouts.QCFail(ctx, gaugeID, actorID, reason)
	finish(span, err)
	return err
}

// CreateBatch opens a draft calibration batch.
func (s *Service) CreateBatch(ctx context.Context, input domain.CreateBatchInput) (domain.CalibrationBatch, error) {
	ctx, span := s.start(ctx, "CreateBatch")
	batch, err := s.calibration.CreateBatch(ctx, input)
	finish(span, err)
	return batch, err
}

// AddToBatch puts a gauge (and its companion) into a draft batch.
func (s *Service) AddToBatch(ctx context.Context, batchID, gaugeID string) error {
	ctx, span := s.start(ctx, "AddToBatch")
	err := s.calibration.AddGauge(ctx, batchID, gaugeID)
	finish(span, err)
	return err
}

// RemoveFromBatch drops a gauge (and its companion) from a draft batch.
func (s *Service) RemoveFromBatch(ctx context.Context, batchID, gaugeID string) error {
	ctx, span := s.start(ctx, "RemoveFromBatch")
	err := s.calibration.RemoveGauge(ctx, batchID, gaugeID)
	finish(span, err)
	return err
}

// SendBatch ships a draft batch to the vendor atomically.
func (s *Service) SendBatch(ctx context.Context, batchID, actorID string) error {
	ctx, span := s.start(ctx, "SendBatch")
	err := s.calibration.SendBatch(ctx, batchID, actorID)
	finish(span, err)
	return err
}

// CancelBatch discards a draft batch.
func (s *Service) CancelBatch(ctx context.Context, batchID string) error {
	ctx, span := s.start(ctx, "CancelBatch")
	err := s.calibration.CancelBatch(ctx, batchID)
	finish(span, err)
	return err
}

// ReceiveFromCalibration books one batch member back from the vendor.
func (s *Service) ReceiveFromCalibration(ctx context.Context, batchID, gaugeID, actorID string, passed bool, reason string) error {
	ctx, span := s.start(ctx, "ReceiveFromCalibration")
	err := s.calibration.ReceiveGauge(ctx, batchID, gaugeID, actorID, passed, reason)
	finish(span, err)
	return err
}

// VerifyCertificate confirms vendor paperwork for a received gauge.
func (s *Service) VerifyCertificate(ctx context.Context, gaugeID, actorID string) error {
	ctx, span := s.start(ctx, "VerifyCertificate")
	err := s.calibration.VerifyCertificate(ctx, gaugeID, actorID)
	finish(span, err)
	return err
}

// Release puts a certified gauge back on the shelf.
func (s *Service) Release(ctx context.Context, gaugeID, actorID, location string) error {
	ctx, span := s.start(ctx, "Release")
	err := s.calibration.Release(ctx, gaugeID, actorID, location)
	finish(span, err)
	return err
}

// PairSpares links two spares into a GO/NO-GO set.
func (s *Service) PairSpares(ctx context.Context, goID, noGoID, actorID string) (string, error) {
	ctx, span := s.start(ctx, "PairSpares")
	setID, err := s.pairing.PairSpares(ctx, goID, noGoID, actorID)
	finish(span, err)
	return setID, err
}

// Unpair dissolves a set back into spares.
func (s *Service) Unpair(ctx context.Context, gaugeID, actorID, reason string) error {
	ctx, span := s.start(ctx, "Unpair")
	err := s.pairing.Unpair(ctx, gaugeID, actorID, reason)
	finish(span, err)
	return err
}

// ReplaceCompanion swaps one member of a set for a spare.
func (s *Service) ReplaceCompanion(ctx context.Context, gaugeID, replacementID, actorID, reason string) error {
	ctx, span := s.start(ctx, "ReplaceCompanion")
	err := s.pairing.ReplaceCompanion(ctx, gaugeID, replacementID, actorID, reason)
	finish(span, err)
	return err
}

// RetireSet retires both members of a set together.
func (s *Service) RetireSet(ctx context.Context, setID, actorID, reason string) error {
	ctx, span := s.start(ctx, "RetireSet")
	err := s.pairing.RetireSet(ctx, setID, actorID, reason)
	finish(span, err)
	return err
}

// PairingHistory returns the append-only pairing history of a set.
func (s *Service) PairingHistory(ctx context.Context, setID string) ([]domain.PairingEvent, error) {
	ctx, span := s.start(ctx, "PairingHistory")
	events, err := s.pairing.History(ctx, setID)
	finish(span, err)
	return events, err
}

// RequestTransfer opens a pending transfer request.
func (s *Service) RequestTransfer(ctx context.Context, input domain.CreateTransferInput) (domain.TransferRequest, error) {
	ctx, span := s.start(ctx, "RequestTransfer")
	request, err := s.transfers.Request(ctx, input)
	finish(span, err)
	return request, err
}

// AcceptTransfer applies a pending transfer.
func (s *Service) AcceptTransfer(ctx context.Context, requestID, approverID string) error {
	ctx, span := s.start(ctx, "AcceptTransfer")
	err := s.transfers.Accept(ctx, requestID, approverID)
	finish(span, err)
	return err
}

// RejectTransfer denies a pending transfer with a reason.
func (s *Service) RejectTransfer(ctx context.Context, requestID, approverID, reason string) error {
	ctx, span := s.start(ctx, "RejectTransfer")
	err := s.transfers.Reject(ctx, requestID, approverID, reason)
	finish(span, err)
	return err
}

// Dispatch ships a gauge toward another site.
func (s *Service) Dispatch(ctx context.Context, gaugeID, actorID string) error {
	ctx, span := s.start(ctx, "Dispatch")
	err := s.transfers.Dispatch(ctx, gaugeID, actorID)
	finish(span, err)
	return err
}

// ConfirmDelivery receives an in-transit gauge at its destination.
func (s *Service) ConfirmDelivery(ctx context.Context, gaugeID, actorID, location string) error {
	ctx, span := s.start(ctx, "ConfirmDelivery")
	err := s.transfers.ConfirmDelivery(ctx, gaugeID, actorID, location)
	finish(span, err)
	return err
}

// RequestUnseal opens a pending unseal request for a gauge or a set.
func (s *Service) RequestUnseal(ctx context.Context, input domain.CreateUnsealInput) (domain.UnsealRequest, error) {
	ctx, span := s.start(ctx, "RequestUnseal")
	request, err := s.unseals.Request(ctx, input)
	finish(span, err)
	return request, err
}

// ApproveUnseal marks an unseal request accepted.
func (s *Service) ApproveUnseal(ctx context.Context, requestID, approverID string) error {
	ctx, span := s.start(ctx, "ApproveUnseal")
	err := s.unseals.Approve(ctx, requestID, approverID)
	finish(span, err)
	return err
}

// RejectUnseal denies an unseal request with a reason.
func (s *Service) RejectUnseal(ctx context.Context, requestID, approverID, reason string) error {
	ctx, span := s.start(ctx, "RejectUnseal")
	err := s.unseals.Reject(ctx, requestID, approverID, reason)
	finish(span, err)
	return err
}

// ConfirmUnseal records the physical seal break and starts the calibration
// clock.
func (s *Service) ConfirmUnseal(ctx context.Context, requestID, actorID string) error {
	ctx, span := s.start(ctx, "ConfirmUnseal")
	err := s.unseals.Confirm(ctx, requestID, actorID)
	finish(span, err)
	return err
}

// Seal stops an available gauge's calibration clock behind a tamper-evident
// seal.
func (s *Service) Seal(ctx context.Context, gaugeID, actorID string) error {
	ctx, span := s.start(ctx, "Seal")
	var err error
	defer func() { finish(span, err) }()

	now := s.clock().UTC()
	g, err := s.store.Gauges().Get(ctx, gaugeID)
	if err != nil {
		return err
	}
	next, err := engine.Transition(g, engine.Request{Event: engine.EventSeal, At: now})
	if err != nil {
		return err
	}
	if err = s.store.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, storage.Extra{
		Sealed:           ptr(true),
		CalibrationDueAt: ptr(time.Time{}),
	}); err != nil {
		return err
	}
	_ = s.recorder.Transition(ctx, "seal", g.ID, actorID, g.Status, next, "")
	return nil
}

// Reinstate brings a repaired gauge back from out_of_service.
func (s *Service) Reinstate(ctx context.Context, gaugeID, actorID, reason string) error {
	ctx, span := s.start(ctx, "Reinstate")
	var err error
	defer func() { finish(span, err) }()

	now := s.clock().UTC()
	g, err := s.store.Gauges().Get(ctx, gaugeID)
	if err != nil {
		return err
	}
	next, err := engine.Transition(g, engine.Request{Event: engine.EventReinstate, At: now})
	if err != nil {
		return err
	}
	if err = s.store.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, storage.Extra{}); err != nil {
		return err
	}
	_ = s.recorder.Transition(ctx, "reinstate", g.ID, actorID, g.Status, next, reason)
	return nil
}

// Retire permanently removes a single unpaired gauge from service. Set
// members retire together through RetireSet.
func (s *Service) Retire(ctx context.Context, gaugeID, actorID, reason string) error {
	ctx, span := s.start(ctx, "Retire")
	var err error
	defer func() { finish(span, err) }()

	now := s.clock().UTC()
	g, err := s.store.Gauges().Get(ctx, gaugeID)
	if err != nil {
		return err
	}
	if g.Paired() {
		err = apperrors.WithMetadata(apperrors.CodeAlreadyPaired,
			fmt.Sprintf("gauge %s is paired; retire the set instead", g.ID),
			map[string]string{"gauge_id": g.ID, "set_id": g.SetID})
		return err
	}
	next, err := engine.Transition(g, engine.Request{Event: engine.EventRetire, At: now})
	if err != nil {
		return err
	}
	if err = s.store.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, storage.Extra{}); err != nil {
		return err
	}
	_ = s.recorder.Transition(ctx, "retire", g.ID, actorID, g.Status, next, reason)
	return nil
}

// AuditTrail returns the chronological transition log for a gauge.
func (s *Service) AuditTrail(ctx context.Context, gaugeID string) ([]domain.AuditEntry, error) {
	ctx, span := s.start(ctx, "AuditTrail")
	entries, err := s.store.Audit().ListByGauge(ctx, gaugeID)
	finish(span, err)
	return entries, err
}

// CheckoutHistory returns every possession record for a gauge, newest first.
func (s *Service) CheckoutHistory(ctx context.Context, gaugeID string) ([]domain.CheckoutRecord, error) {
	ctx, span := s.start(ctx, "CheckoutHistory")
	records, err := s.store.Checkouts().ListByGauge(ctx, gaugeID)
	finish(span, err)
	return records, err
}

func ptr[T any](v T) *T {
	return &v
}

// Package transfer implements holder and ownership changes behind an
// approval gate, plus physical site moves. Accepting a transfer while the
// gauge is checked out re-runs the checkout guards: possession changing
// hands is a checkout in everything but name.
package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/kellyenterprises/gaugehub/internal/errors"
	"github.com/kellyenterprises/gaugehub/internal/gauge/audit"
	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/engine"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage"
	"github.com/kellyenterprises/gaugehub/internal/platform/id"
)

// Workflow coordinates transfer requests and site moves.
type Workflow struct {
	store       storage.Store
	recorder    *audit.Recorder
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewWorkflow creates a transfer workflow over the given store.
func NewWorkflow(store storage.Store, recorder *audit.Recorder) *Workflow {
	return &Workflow{
		store:       store,
		recorder:    recorder,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// WithClock replaces the workflow clock. Used by tests.
func (w *Workflow) WithClock(clock func() time.Time) *Workflow {
	w.clock = clock
	return w
}

// Request opens a pending transfer request for an existing gauge.
func (w *Workflow) Request(ctx context.Context, input domain.CreateTransferInput) (domain.TransferRequest, error) {
	if _, err := w.store.Gauges().Get(ctx, input.GaugeID); err != nil {
		return domain.TransferRequest{}, err
	}

	request, err := domain.CreateTransfer(input, w.clock, w.idGenerator)
	if err != nil {
		return domain.TransferRequest{}, err
	}
	if err := w.store.Transfers().Insert(ctx, request); err != nil {
		return domain.TransferRequest{}, err
	}
	return request, nil
}

// Accept applies the requested holder/ownership change. An off-site return
// of a customer-owned gauge leaves the fleet as returned_customer instead.
func (w *Workflow) Accept(ctx context.Context, requestID, approverID string) error {
	now := w.clock().UTC()

	var from, to domain.Status
	var gaugeID string
	err := w.store.WithTx(ctx, func(stores storage.Stores) error {
		request, err := stores.Transfers().Get(ctx, requestID)
		if err != nil {
			return err
		}
		g, err := stores.Gauges().Get(ctx, request.GaugeID)
		if err != nil {
			return err
		}
		gaugeID = g.ID

		if g.Status == domain.StatusCheckedOut && request.NewHolderID != "" {
			if err := engine.GuardCheckout(g, engine.Request{At: now}); err != nil {
				return err
			}
		}

		if err := stores.Transfers().Resolve(ctx, request.ID, domain.ApprovalStatusAccepted, approverID, now); err != nil {
			return err
		}

		if request.OffSiteReturn {
			if g.Ownership != domain.OwnershipCustomer && request.NewOwnership != domain.OwnershipCustomer {
				return apperrors.WithMetadata(apperrors.CodeGaugeInvalidOwnership,
					fmt.Sprintf("gauge %s is not customer-owned", g.ID),
					map[string]string{"gauge_id": g.ID})
			}
			next, err := engine.Transition(g, engine.Request{Event: engine.EventCustomerReturn, At: now})
			if err != nil {
				return err
			}
			from, to = g.Status, next
			return stores.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, storage.Extra{
				HolderID: ptr(""),
			})
		}

		extra := storage.Extra{}
		if request.NewHolderID != "" {
			extra.HolderID = ptr(request.NewHolderID)
		}
		if request.NewOwnership != domain.OwnershipUnspecified {
			extra.Ownership = ptr(request.NewOwnership)
		}
		from, to = g.Status, g.Status
		if err := stores.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, g.Status, extra); err != nil {
			return err
		}

		// Possession moved mid-checkout: roll the open record to the new
		// holder so the at-most-one-open invariant keeps holding.
		if g.Status == domain.StatusCheckedOut && request.NewHolderID != "" {
			open, err := stores.Checkouts().GetOpenByGauge(ctx, g.ID)
			if err != nil {
				return err
			}
			if err := stores.Checkouts().Close(ctx, open.ID, "transferred", now); err != nil {
				return err
			}
			record, err := domain.OpenCheckout(domain.OpenCheckoutInput{
				GaugeID:        g.ID,
				HolderID:       request.NewHolderID,
				ExpectedReturn: open.ExpectedReturn,
			}, w.clock, w.idGenerator)
			if err != nil {
				return err
			}
			return stores.Checkouts().Insert(ctx, record)
		}
		return nil
	})
	if err != nil {
		return err
	}

	_ = w.recorder.Transition(ctx, "transfer_accept", gaugeID, approverID, from, to, "")
	return nil
}

// Reject closes the request without touching the gauge. A reason is
// mandatory on denial.
func (w *Workflow) Reject(ctx context.Context, requestID, approverID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperrors.New(apperrors.CodeApprovalReasonEmpty,
			"a rejection must carry a reason")
	}
	now := w.clock().UTC()

	if err := w.store.Transfers().Resolve(ctx, requestID, domain.ApprovalStatusRejected, approverID, now); err != nil {
		return err
	}

	request, err := w.store.Transfers().Get(ctx, requestID)
	if err != nil {
		return err
	}
	_ = w.recorder.Record(ctx, domain.AuditEntry{
		Operation: "transfer_reject",
		GaugeID:   request.GaugeID,
		ActorID:   approverID,
		Reason:    reason,
	})
	return nil
}

// Dispatch ships an available gauge toward another site.
func (w *Workflow) Dispatch(ctx context.Context, gaugeID, actorID string) error {
	now := w.clock().UTC()

	g, err := w.store.Gauges().Get(ctx, gaugeID)
	if err != nil {
		return err
	}
	next, err := engine.Transition(g, engine.Request{Event: engine.EventDispatch, At: now})
	if err != nil {
		return err
	}
	if err := w.store.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, storage.Extra{}); err != nil {
		return err
	}
	_ = w.recorder.Transition(ctx, "dispatch", g.ID, actorID, g.Status, next, "")
	return nil
}

// ConfirmDelivery books an in-transit gauge onto the receiving site's shelf.
func (w *Workflow) ConfirmDelivery(ctx context.Context, gaugeID, actorID, location string) error {
	now := w.clock().UTC()

	g, err := w.store.Gauges().Get(ctx, gaugeID)
	if err != nil {
		return err
	}
	next, err := engine.Transition(g, engine.Request{Event: engine.EventDeliveryReceived, At: now})
	if err != nil {
		return err
	}

	extra := storage.Extra{}
	if location != "" {
		extra.Location = ptr(location)
	}
	if err := w.store.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, extra); err != nil {
		return err
	}
	_ = w.recorder.Transition(ctx, "delivery_received", g.ID, actorID, g.Status, next, "")
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

// Package checkout implements the possession workflow: a gauge leaves the
// crib to exactly one holder and comes back through quality control. Status
// moves and record writes happen in one transaction per operation.
package checkout

import (
	"context"
	"time"

	apperrors "github.com/kellyenterprises/gaugehub/internal/errors"
	"github.com/kellyenterprises/gaugehub/internal/gauge/audit"
	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/engine"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage"
	"github.com/kellyenterprises/gaugehub/internal/platform/id"
)

// maxRetries bounds re-reads after a compare-and-set loss. Stale state means
// another writer won; the loop re-evaluates guards against the fresh row.
const maxRetries = 3

// Workflow coordinates checkout and return operations.
type Workflow struct {
	store       storage.Store
	recorder    *audit.Recorder
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewWorkflow creates a checkout workflow over the given store.
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

// CheckoutInput describes a checkout attempt.
type CheckoutInput struct {
	GaugeID        string
	HolderID       string
	ExpectedReturn time.Time
	// SealApproved marks the attempt as backed by an accepted unseal request.
	SealApproved bool
}

// Checkout moves an available or sealed gauge to its holder and opens the
// possession record. The open-record insert and the status compare-and-set
// commit together; losing the CAS race retries from a fresh read.
func (w *Workflow) Checkout(ctx context.Context, input CheckoutInput) (domain.CheckoutRecord, error) {
	now := w.clock().UTC()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		g, err := w.store.Gauges().Get(ctx, input.GaugeID)
		if err != nil {
			return domain.CheckoutRecord{}, err
		}

		next, err := engine.Transition(g, engine.Request{
			Event:        engine.EventCheckout,
			At:           now,
			SealApproved: input.SealApproved,
		})
		if err != nil {
			return domain.CheckoutRecord{}, err
		}

		record, err := domain.OpenCheckout(domain.OpenCheckoutInput{
			GaugeID:        g.ID,
			HolderID:       input.HolderID,
			ExpectedReturn: input.ExpectedReturn,
		}, w.clock, w.idGenerator)
		if err != nil {
			return domain.CheckoutRecord{}, err
		}

		err = w.store.WithTx(ctx, func(stores storage.Stores) error {
			if err := stores.Checkouts().Insert(ctx, record); err != nil {
				return err
			}
			return stores.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, storage.Extra{
				HolderID: ptr(record.HolderID),
			})
		})
		if err == nil {
			_ = w.recorder.Transition(ctx, "checkout", g.ID, input.HolderID, g.Status, next, "")
			return record, nil
		}
		if !apperrors.IsCode(err, apperrors.CodeStaleState) {
			return domain.CheckoutRecord{}, err
		}
		lastErr = err
	}
	return domain.CheckoutRecord{}, lastErr
}

// ReturnInput describes a return attempt.
type ReturnInput struct {
	GaugeID    string
	ReturnerID string
	Condition  string
	// Acknowledged lets a different employee hand the gauge back on the
	// holder's behalf.
	Acknowledged bool
	// Force is the supervisor path: skip quality control, straight to
	// available.
	Force bool
}

// Return closes the open possession record and moves the gauge to quality
// control (or back to available when forced).
func (w *Workflow) Return(ctx context.Context, input ReturnInput) error {
	now := w.clock().UTC()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		g, err := w.store.Gauges().Get(ctx, input.GaugeID)
		if err != nil {
			return err
		}

		record, err := w.store.Checkouts().GetOpenByGauge(ctx, g.ID)
		if err != nil {
			return err
		}
		if record.HolderID != input.ReturnerID && !input.Acknowledged && !input.Force {
			return apperrors.WithMetadata(apperrors.CodeUnauthorizedReturn,
				"return must come from the holder or carry an acknowledgement",
				map[string]string{"gauge_id": g.ID, "holder_id": record.HolderID})
		}

		event := engine.EventReturn
		reason := ""
		if input.Force {
			event = engine.EventReturnForced
			reason = "forced return"
		}
		next, err := engine.Transition(g, engine.Request{Event: event, At: now})
		if err != nil {
			return err
		}

		err = w.store.WithTx(ctx, func(stores storage.Stores) error {
			if err := stores.Checkouts().Close(ctx, record.ID, input.Condition, now); err != nil {
				return err
			}
			return stores.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, storage.Extra{
				HolderID: ptr(""),
			})
		})
		if err == nil {
			_ = w.recorder.Transition(ctx, "return", g.ID, input.ReturnerID, g.Status, next, reason)
			return nil
		}
		if !apperrors.IsCode(err, apperrors.CodeStaleState) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// QCPass clears quality control and puts the gauge back on the shelf at the
// confirmed location.
func (w *Workflow) QCPass(ctx context.Context, gaugeID, actorID, location string) error {
	now := w.clock().UTC()

	g, err := w.store.Gauges().Get(ctx, gaugeID)
	if err != nil {
		return err
	}

	next, err := engine.Transition(g, engine.Request{
		Event:    engine.EventQCPass,
		At:       now,
		Location: location,
	})
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
	_ = w.recorder.Transition(ctx, "qc_pass", g.ID, actorID, g.Status, next, "")
	return nil
}

// QCFail pulls the gauge out of service pending repair or retirement.
func (w *Workflow) QCFail(ctx context.Context, gaugeID, actorID, reason string) error {
	now := w.clock().UTC()

	g, err := w.store.Gauges().Get(ctx, gaugeID)
	if err != nil {
		return err
	}

	next, err := engine.Transition(g, engine.Request{Event: engine.EventQCFail, At: now})
	if err != nil {
		return err
	}

	if err := w.store.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, storage.Extra{}); err != nil {
		return err
	}
	_ = w.recorder.Transition(ctx, "qc_fail", g.ID, actorID, g.Status, next, reason)
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

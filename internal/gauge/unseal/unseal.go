// Package unseal implements the seal-breaking approval workflow. A seal
// keeps the calibration clock stopped; confirming the physical unseal clears
// the seal and starts the clock from the confirmation instant. Set-scoped
// requests unseal every member in one transaction or none at all.
package unseal

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

// Workflow coordinates unseal requests.
type Workflow struct {
	store       storage.Store
	recorder    *audit.Recorder
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewWorkflow creates an unseal workflow over the given store.
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

// Request opens a pending unseal request for a sealed gauge or a whole set.
func (w *Workflow) Request(ctx context.Context, input domain.CreateUnsealInput) (domain.UnsealRequest, error) {
	request, err := domain.CreateUnseal(input, w.clock, w.idGenerator)
	if err != nil {
		return domain.UnsealRequest{}, err
	}

	members, err := w.targets(ctx, w.store, request)
	if err != nil {
		return domain.UnsealRequest{}, err
	}
	for _, g := range members {
		if !g.Sealed {
			return domain.UnsealRequest{}, apperrors.WithMetadata(apperrors.CodeSealMismatch,
				fmt.Sprintf("gauge %s is not sealed", g.ID),
				map[string]string{"gauge_id": g.ID})
		}
	}

	if err := w.store.Unseals().Insert(ctx, request); err != nil {
		return domain.UnsealRequest{}, err
	}
	return request, nil
}

// Approve marks the request accepted. The seal stays on until the physical
// break is confirmed.
func (w *Workflow) Approve(ctx context.Context, requestID, approverID string) error {
	now := w.clock().UTC()
	return w.store.Unseals().Resolve(ctx, requestID, domain.ApprovalStatusAccepted, approverID, now)
}

// Reject closes the request. A reason is mandatory on denial.
func (w *Workflow) Reject(ctx context.Context, requestID, approverID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperrors.New(apperrors.CodeApprovalReasonEmpty,
			"a rejection must carry a reason")
	}
	now := w.clock().UTC()
	return w.store.Unseals().Resolve(ctx, requestID, domain.ApprovalStatusRejected, approverID, now)
}

// Confirm records the physical seal break on an accepted request: every
// target moves to available, drops its seal, and starts a calibration clock
// at the confirmation instant plus the gauge's interval.
func (w *Workflow) Confirm(ctx context.Context, requestID, actorID string) error {
	now := w.clock().UTC()

	var confirmed []confirmedGauge
	err := w.store.WithTx(ctx, func(stores storage.Stores) error {
		request, err := stores.Unseals().Get(ctx, requestID)
		if err != nil {
			return err
		}
		if err := stores.Unseals().Confirm(ctx, request.ID, now); err != nil {
			return err
		}

		members, err := w.targets(ctx, stores, request)
		if err != nil {
			return err
		}
		for _, g := range members {
			next, err := engine.Transition(g, engine.Request{Event: engine.EventUnsealConfirmed, At: now})
			if err != nil {
				return err
			}

			extra := storage.Extra{Sealed: ptr(false)}
			if g.CalibrationIntervalDays > 0 {
				due := now.AddDate(0, 0, g.CalibrationIntervalDays)
				extra.CalibrationDueAt = ptr(due)
			}
			if err := stores.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, extra); err != nil {
				return err
			}
			confirmed = append(confirmed, confirmedGauge{id: g.ID, from: g.Status, to: next})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, c := range confirmed {
		_ = w.recorder.Transition(ctx, "unseal_confirmed", c.id, actorID, c.from, c.to, "")
	}
	return nil
}

type confirmedGauge struct {
	id   string
	from domain.Status
	to   domain.Status
}

// targets resolves the gauges a request covers: one gauge, or every member
// of a set.
func (w *Workflow) targets(ctx context.Context, stores storage.Stores, request domain.UnsealRequest) ([]domain.Gauge, error) {
	if request.SetID != "" {
		members, err := stores.Gauges().ListBySet(ctx, request.SetID)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("set %s has no members", request.SetID),
				map[string]string{"set_id": request.SetID})
		}
		return members, nil
	}

	g, err := stores.Gauges().Get(ctx, request.GaugeID)
	if err != nil {
		return nil, err
	}
	return []domain.Gauge{g}, nil
}

func ptr[T any](v T) *T {
	return &v
}

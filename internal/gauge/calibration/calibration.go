// Package calibration implements the vendor round-trip workflow: draft a
// batch, send every member out in one atomic move, receive members back one
// by one, then certify and release. Batch status is derived from member
// positions, never edited directly.
package calibration

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/kellyenterprises/gaugehub/internal/errors"
	"github.com/kellyenterprises/gaugehub/internal/gauge/audit"
	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/engine"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage"
	"github.com/kellyenterprises/gaugehub/internal/platform/id"
)

// Workflow coordinates calibration batches and the post-receipt chain.
type Workflow struct {
	store       storage.Store
	recorder    *audit.Recorder
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewWorkflow creates a calibration workflow over the given store.
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

// CreateBatch opens a new draft batch for the vendor.
func (w *Workflow) CreateBatch(ctx context.Context, input domain.CreateBatchInput) (domain.CalibrationBatch, error) {
	batch, err := domain.CreateBatch(input, w.clock, w.idGenerator)
	if err != nil {
		return domain.CalibrationBatch{}, err
	}
	if err := w.store.Batches().Insert(ctx, batch); err != nil {
		return domain.CalibrationBatch{}, err
	}
	return batch, nil
}

// AddGauge puts an available gauge into a draft batch. A paired gauge brings
// its companion along; sets travel whole. Overdue gauges are welcome — the
// batch is how they stop being overdue.
func (w *Workflow) AddGauge(ctx context.Context, batchID, gaugeID string) error {
	return w.store.WithTx(ctx, func(stores storage.Stores) error {
		batch, err := stores.Batches().Get(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != domain.BatchStatusDraft {
			return batchNotDraft(batch)
		}

		g, err := stores.Gauges().Get(ctx, gaugeID)
		if err != nil {
			return err
		}

		members := []domain.Gauge{g}
		if g.Paired() {
			companion, err := stores.Gauges().Get(ctx, g.CompanionID)
			if err != nil {
				return err
			}
			members = append(members, companion)
		}

		for _, member := range members {
			if member.Status != domain.StatusAvailable {
				return apperrors.WithMetadata(apperrors.CodeGaugeNotAvailable,
					fmt.Sprintf("gauge %s is %s, not available", member.ID, member.Status),
					map[string]string{"gauge_id": member.ID, "status": string(member.Status)})
			}
			open, found, err := stores.Batches().OpenBatchByGauge(ctx, member.ID)
			if err != nil {
				return err
			}
			if found && open.ID != batchID {
				return apperrors.WithMetadata(apperrors.CodeGaugeInOpenBatch,
					fmt.Sprintf("gauge %s is already in open batch %s", member.ID, open.ID),
					map[string]string{"gauge_id": member.ID, "batch_id": open.ID})
			}
			if found {
				// The companion may already be in this batch.
				continue
			}
			if err := stores.Batches().AddMember(ctx, batchID, member.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveGauge drops a gauge (and its companion) from a draft batch.
func (w *Workflow) RemoveGauge(ctx context.Context, batchID, gaugeID string) error {
	return w.store.WithTx(ctx, func(stores storage.Stores) error {
		batch, err := stores.Batches().Get(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != domain.BatchStatusDraft {
			return batchNotDraft(batch)
		}

		g, err := stores.Gauges().Get(ctx, gaugeID)
		if err != nil {
			return err
		}
		if err := stores.Batches().RemoveMember(ctx, batchID, g.ID); err != nil {
			return err
		}
		if g.Paired() && batch.Contains(g.CompanionID) {
			return stores.Batches().RemoveMember(ctx, batchID, g.CompanionID)
		}
		return nil
	})
}

// SendBatch ships every member to the vendor in one transaction. Any member
// failing its guard aborts the whole send; there is no partial dispatch.
func (w *Workflow) SendBatch(ctx context.Context, batchID, actorID string) error {
	now := w.clock().UTC()

	var moved []movedGauge
	err := w.store.WithTx(ctx, func(stores storage.Stores) error {
		batch, err := stores.Batches().Get(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != domain.BatchStatusDraft {
			return batchNotDraft(batch)
		}
		if len(batch.GaugeIDs) == 0 {
			return apperrors.WithMetadata(apperrors.CodeBatchEmpty,
				fmt.Sprintf("batch %s has no members", batch.ID),
				map[string]string{"batch_id": batch.ID})
		}

		for _, gaugeID := range batch.GaugeIDs {
			g, err := stores.Gauges().Get(ctx, gaugeID)
			if err != nil {
				return err
			}
			if g.Paired() && !batch.Contains(g.CompanionID) {
				return apperrors.WithMetadata(apperrors.CodeSetIncomplete,
					fmt.Sprintf("gauge %s is paired but companion %s is not in the batch", g.ID, g.CompanionID),
					map[string]string{"gauge_id": g.ID, "companion_id": g.CompanionID})
			}

			next, err := engine.Transition(g, engine.Request{Event: engine.EventBatchSend, At: now})
			if err != nil {
				return err
			}
			if err := stores.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, storage.Extra{}); err != nil {
				return err
			}
			moved = append(moved, movedGauge{id: g.ID, from: g.Status, to: next})
		}

		return stores.Batches().CompareAndSetStatus(ctx, batch.ID, domain.BatchStatusDraft, domain.BatchStatusSent, now)
	})
	if err != nil {
		return err
	}

	for _, mv := range moved {
		_ = w.recorder.Transition(ctx, "batch_send", mv.id, actorID, mv.from, mv.to, "")
	}
	return nil
}

type movedGauge struct {
	id   string
	from domain.Status
	to   domain.Status
}

// CancelBatch discards a draft batch. Members never left the shelf, so no
// gauge status moves.
func (w *Workflow) CancelBatch(ctx context.Context, batchID string) error {
	batch, err := w.store.Batches().Get(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status != domain.BatchStatusDraft {
		return batchNotDraft(batch)
	}
	return w.store.Batches().CompareAndSetStatus(ctx, batch.ID, domain.BatchStatusDraft, domain.BatchStatusCancelled, time.Time{})
}

// ReceiveGauge books one member back from the vendor. Batch status is
// derived from how many members remain out: some left means
// partially_received, none left means complete.
func (w *Workflow) ReceiveGauge(ctx context.Context, batchID, gaugeID, actorID string, passed bool, reason string) error {
	now := w.clock().UTC()

	var from, to domain.Status
	err := w.store.WithTx(ctx, func(stores storage.Stores) error {
		batch, err := stores.Batches().Get(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != domain.BatchStatusSent && batch.Status != domain.BatchStatusPartiallyReceived {
			return apperrors.WithMetadata(apperrors.CodeBatchNotOpen,
				fmt.Sprintf("batch %s is %s, not awaiting receipts", batch.ID, batch.Status),
				map[string]string{"batch_id": batch.ID, "status": string(batch.Status)})
		}
		if !batch.Contains(gaugeID) {
			return apperrors.WithMetadata(apperrors.CodeBatchMemberMissing,
				fmt.Sprintf("gauge %s is not a member of batch %s", gaugeID, batch.ID),
				map[string]string{"gauge_id": gaugeID, "batch_id": batch.ID})
		}

		g, err := stores.Gauges().Get(ctx, gaugeID)
		if err != nil {
			return err
		}

		event := engine.EventReceivePass
		if !passed {
			event = engine.EventReceiveFail
		}
		next, err := engine.Transition(g, engine.Request{Event: event, At: now})
		if err != nil {
			return err
		}
		if err := stores.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, storage.Extra{}); err != nil {
			return err
		}
		from, to = g.Status, next

		outstanding := 0
		for _, memberID := range batch.GaugeIDs {
			if memberID == gaugeID {
				continue
			}
			member, err := stores.Gauges().Get(ctx, memberID)
			if err != nil {
				return err
			}
			if member.Status == domain.StatusOutForCalibration {
				outstanding++
			}
		}

		derived := domain.BatchStatusComplete
		if outstanding > 0 {
			derived = domain.BatchStatusPartiallyReceived
		}
		if derived == batch.Status {
			return nil
		}
		if !domain.IsBatchStatusTransitionAllowed(batch.Status, derived) {
			return apperrors.WithMetadata(apperrors.CodePartialCommit,
				fmt.Sprintf("batch %s cannot move %s -> %s", batch.ID, batch.Status, derived),
				map[string]string{"batch_id": batch.ID})
		}
		return stores.Batches().CompareAndSetStatus(ctx, batch.ID, batch.Status, derived, time.Time{})
	})
	if err != nil {
		return err
	}

	operation := "receive_pass"
	if !passed {
		operation = "receive_fail"
	}
	_ = w.recorder.Transition(ctx, operation, gaugeID, actorID, from, to, reason)
	return nil
}

// VerifyCertificate confirms the vendor paperwork for a received gauge.
func (w *Workflow) VerifyCertificate(ctx context.Context, gaugeID, actorID string) error {
	now := w.clock().UTC()

	g, err := w.store.Gauges().Get(ctx, gaugeID)
	if err != nil {
		return err
	}
	next, err := engine.Transition(g, engine.Request{Event: engine.EventCertificateVerified, At: now})
	if err != nil {
		return err
	}
	if err := w.store.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, storage.Extra{}); err != nil {
		return err
	}
	_ = w.recorder.Transition(ctx, "certificate_verified", g.ID, actorID, g.Status, next, "")
	return nil
}

// Release puts a certified gauge back on the shelf at the confirmed location
// and restarts its calibration clock from the release instant.
func (w *Workflow) Release(ctx context.Context, gaugeID, actorID, location string) error {
	now := w.clock().UTC()

	g, err := w.store.Gauges().Get(ctx, gaugeID)
	if err != nil {
		return err
	}
	next, err := engine.Transition(g, engine.Request{
		Event:    engine.EventLocationVerifiedRelease,
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
	if g.CalibrationIntervalDays > 0 {
		due := now.AddDate(0, 0, g.CalibrationIntervalDays)
		extra.CalibrationDueAt = ptr(due)
	}
	if err := w.store.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, next, extra); err != nil {
		return err
	}
	_ = w.recorder.Transition(ctx, "release", g.ID, actorID, g.Status, next, "")
	return nil
}

func batchNotDraft(batch domain.CalibrationBatch) error {
	return apperrors.WithMetadata(apperrors.CodeBatchNotDraft,
		fmt.Sprintf("batch %s is %s, not draft", batch.ID, batch.Status),
		map[string]string{"batch_id": batch.ID, "status": string(batch.Status)})
}

func ptr[T any](v T) *T {
	return &v
}

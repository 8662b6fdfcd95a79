package calibration

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/kellyenterprises/gaugehub/internal/errors"
	"github.com/kellyenterprises/gaugehub/internal/gauge/audit"
	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage/memory"
)

func newTestWorkflow(t *testing.T) (*Workflow, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewWorkflow(store, audit.NewRecorder(store.Audit())), store
}

func seedGauge(t *testing.T, store *memory.Store, g domain.Gauge) {
	t.Helper()
	if err := store.Gauges().Put(context.Background(), g); err != nil {
		t.Fatalf("seed gauge %s: %v", g.ID, err)
	}
}

func availableGauge(id string) domain.Gauge {
	return domain.Gauge{
		ID:                      id,
		Tag:                     "TP-" + id,
		Class:                   domain.EquipmentClassThreadPlug,
		Status:                  domain.StatusAvailable,
		Ownership:               domain.OwnershipCompany,
		Location:                "crib-a",
		CalibrationIntervalDays: 365,
		Version:                 1,
	}
}

func draftBatch(t *testing.T, w *Workflow) domain.CalibrationBatch {
	t.Helper()
	batch, err := w.CreateBatch(context.Background(), domain.CreateBatchInput{Vendor: "Acme Metrology"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return batch
}

func mustStatus(t *testing.T, store *memory.Store, gaugeID string, want domain.Status) {
	t.Helper()
	g, err := store.Gauges().Get(context.Background(), gaugeID)
	if err != nil {
		t.Fatalf("get gauge %s: %v", gaugeID, err)
	}
	if g.Status != want {
		t.Fatalf("gauge %s: expected %s, got %s", gaugeID, want, g.Status)
	}
}

func TestCreateBatchRequiresVendor(t *testing.T) {
	w, _ := newTestWorkflow(t)
	if _, err := w.CreateBatch(context.Background(), domain.CreateBatchInput{Vendor: " "}); err != domain.ErrEmptyVendor {
		t.Fatalf("expected vendor error, got %v", err)
	}
}

func TestAddRemoveDraftMembers(t *testing.T) {
	w, store := newTestWorkflow(t)
	ctx := context.Background()
	seedGauge(t, store, availableGauge("g1"))
	seedGauge(t, store, availableGauge("g2"))
	batch := draftBatch(t, w)

	if err := w.AddGauge(ctx, batch.ID, "g1"); err != nil {
		t.Fatalf("add g1: %v", err)
	}
	if err := w.AddGauge(ctx, batch.ID, "g2"); err != nil {
		t.Fatalf("add g2: %v", err)
	}
	if err := w.RemoveGauge(ctx, batch.ID, "g2"); err != nil {
		t.Fatalf("remove g2: %v", err)
	}

	got, err := store.Batches().Get(ctx, batch.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if len(got.GaugeIDs) != 1 || got.GaugeIDs[0] != "g1" {
		t.Fatalf("expected members [g1], got %v", got.GaugeIDs)
	}

	// Members stay on the shelf while the batch is a draft.
	mustStatus(t, store, "g1", domain.StatusAvailable)
}

func TestAddGaugeRejectsUnavailable(t *testing.T) {
	w, store := newTestWorkflow(t)
	g := availableGauge("g1")
	g.Status = domain.StatusCheckedOut
	seedGauge(t, store, g)
	batch := draftBatch(t, w)

	err := w.AddGauge(context.Background(), batch.ID, "g1")
	if !apperrors.IsCode(err, apperrors.CodeGaugeNotAvailable) {
		t.Fatalf("expected not-available rejection, got %v", err)
	}
}

func TestAddGaugeRejectsSecondOpenBatch(t *testing.T) {
	w, store := newTestWorkflow(t)
	ctx := context.Background()
	seedGauge(t, store, availableGauge("g1"))
	first := draftBatch(t, w)
	second := draftBatch(t, w)

	if err := w.AddGauge(ctx, first.ID, "g1"); err != nil {
		t.Fatalf("add to first: %v", err)
	}
	err := w.AddGauge(ctx, second.ID, "g1")
	if !apperrors.IsCode(err, apperrors.CodeGaugeInOpenBatch) {
		t.Fatalf("expected open-batch rejection, got %v", err)
	}
}

func TestAddGaugeBringsCompanion(t *testing.T) {
	w, store := newTestWorkflow(t)
	ctx := context.Background()
	goGauge := availableGauge("go1")
	goGauge.CompanionID = "ng1"
	goGauge.SetID = "set-1"
	noGoGauge := availableGauge("ng1")
	noGoGauge.CompanionID = "go1"
	noGoGauge.SetID = "set-1"
	seedGauge(t, store, goGauge)
	seedGauge(t, store, noGoGauge)
	batch := draftBatch(t, w)

	if err := w.AddGauge(ctx, batch.ID, "go1"); err != nil {
		t.Fatalf("add paired gauge: %v", err)
	}

	got, err := store.Batches().Get(ctx, batch.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if !got.Contains("go1") || !got.Contains("ng1") {
		t.Fatalf("expected both set members, got %v", got.GaugeIDs)
	}
}

func TestSendBatchMovesEveryMember(t *testing.T) {
	w, store := newTestWorkflow(t)
	ctx := context.Background()
	seedGauge(t, store, availableGauge("g1"))
	overdue := availableGauge("g2")
	overdue.CalibrationDueAt = time.Now().Add(-48 * time.Hour)
	seedGauge(t, store, overdue)
	batch := draftBatch(t, w)

	for _, gid := range []string{"g1", "g2"} {
		if err := w.AddGauge(ctx, batch.ID, gid); err != nil {
			t.Fatalf("add %s: %v", gid, err)
		}
	}
	if err := w.SendBatch(ctx, batch.ID, "emp-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	mustStatus(t, store, "g1", domain.StatusOutForCalibration)
	mustStatus(t, store, "g2", domain.StatusOutForCalibration)

	got, err := store.Batches().Get(ctx, batch.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got.Status != domain.BatchStatusSent {
		t.Fatalf("expected sent, got %s", got.Status)
	}
	if got.SentAt.IsZero() {
		t.Fatal("expected sent stamp")
	}
}

func TestSendBatchAllOrNothing(t *testing.T) {
	w, store := newTestWorkflow(t)
	ctx := context.Background()
	seedGauge(t, store, availableGauge("g1"))
	seedGauge(t, store, availableGauge("g2"))
	batch := draftBatch(t, w)

	for _, gid := range []string{"g1", "g2"} {
		if err := w.AddGauge(ctx, batch.ID, gid); err != nil {
			t.Fatalf("add %s: %v", gid, err)
		}
	}

	// A member leaves the shelf between draft and send.
	g2, err := store.Gauges().Get(ctx, "g2")
	if err != nil {
		t.Fatalf("get g2: %v", err)
	}
	g2.Status = domain.StatusCheckedOut
	if err := store.Gauges().Put(ctx, g2); err != nil {
		t.Fatalf("update g2: %v", err)
	}

	err = w.SendBatch(ctx, batch.ID, "emp-1")
	if !apperrors.IsCode(err, apperrors.CodeGaugeInvalidTransition) {
		t.Fatalf("expected transition rejection, got %v", err)
	}

	// Nothing moved: the send is atomic.
	mustStatus(t, store, "g1", domain.StatusAvailable)
	got, err := store.Batches().Get(ctx, batch.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got.Status != domain.BatchStatusDraft {
		t.Fatalf("expected draft after abort, got %s", got.Status)
	}
}

func TestSendBatchRejectsEmptyAndIncompleteSet(t *testing.T) {
	w, store := newTestWorkflow(t)
	ctx := context.Background()
	batch := draftBatch(t, w)

	err := w.SendBatch(ctx, batch.ID, "emp-1")
	if !apperrors.IsCode(err, apperrors.CodeBatchEmpty) {
		t.Fatalf("expected empty-batch rejection, got %v", err)
	}

	goGauge := availableGauge("go1")
	goGauge.CompanionID = "ng1"
	goGauge.SetID = "set-1"
	noGoGauge := availableGauge("ng1")
	noGoGauge.CompanionID = "go1"
	noGoGauge.SetID = "set-1"
	seedGauge(t, store, goGauge)
	seedGauge(t, store, noGoGauge)

	if err := w.AddGauge(ctx, batch.ID, "go1"); err != nil {
		t.Fatalf("add set: %v", err)
	}
	if err := w.RemoveGauge(ctx, batch.ID, "ng1"); err != nil {
		t.Fatalf("remove ng1: %v", err)
	}
	// Removing ng1 takes go1 with it; re-add go1 alone by hand to break
	// the set invariant at send time.
	if err := store.Batches().AddMember(ctx, batch.ID, "go1"); err != nil {
		t.Fatalf("re-add go1: %v", err)
	}

	err = w.SendBatch(ctx, batch.ID, "emp-1")
	if !apperrors.IsCode(err, apperrors.CodeSetIncomplete) {
		t.Fatalf("expected incomplete-set rejection, got %v", err)
	}
}

func TestCancelBatchDraftOnly(t *testing.T) {
	w, store := newTestWorkflow(t)
	ctx := context.Background()
	seedGauge(t, store, availableGauge("g1"))
	batch := draftBatch(t, w)

	if err := w.AddGauge(ctx, batch.ID, "g1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := w.CancelBatch(ctx, batch.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	err := w.CancelBatch(ctx, batch.ID)
	if !apperrors.IsCode(err, apperrors.CodeBatchNotDraft) {
		t.Fatalf("expected not-draft rejection, got %v", err)
	}

	// A cancelled batch releases its members for a new batch.
	second := draftBatch(t, w)
	if err := w.AddGauge(ctx, second.ID, "g1"); err != nil {
		t.Fatalf("add to new batch after cancel: %v", err)
	}
}

func TestReceiveDerivesBatchStatus(t *testing.T) {
	w, store := newTestWorkflow(t)
	ctx := context.Background()
	seedGauge(t, store, availableGauge("g1"))
	seedGauge(t, store, availableGauge("g2"))
	batch := draftBatch(t, w)

	for _, gid := range []string{"g1", "g2"} {
		if err := w.AddGauge(ctx, batch.ID, gid); err != nil {
			t.Fatalf("add %s: %v", gid, err)
		}
	}
	if err := w.SendBatch(ctx, batch.ID, "emp-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := w.ReceiveGauge(ctx, batch.ID, "g1", "emp-1", true, ""); err != nil {
		t.Fatalf("receive g1: %v", err)
	}
	got, err := store.Batches().Get(ctx, batch.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got.Status != domain.BatchStatusPartiallyReceived {
		t.Fatalf("expected partially_received, got %s", got.Status)
	}
	mustStatus(t, store, "g1", domain.StatusPendingCertificate)

	if err := w.ReceiveGauge(ctx, batch.ID, "g2", "emp-1", false, "out of tolerance"); err != nil {
		t.Fatalf("receive g2: %v", err)
	}
	got, err = store.Batches().Get(ctx, batch.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got.Status != domain.BatchStatusComplete {
		t.Fatalf("expected complete, got %s", got.Status)
	}
	mustStatus(t, store, "g2", domain.StatusOutOfService)
}

func TestReceiveRejectsNonMember(t *testing.T) {
	w, store := newTestWorkflow(t)
	ctx := context.Background()
	seedGauge(t, store, availableGauge("g1"))
	seedGauge(t, store, availableGauge("g2"))
	batch := draftBatch(t, w)

	if err := w.AddGauge(ctx, batch.ID, "g1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := w.SendBatch(ctx, batch.ID, "emp-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	err := w.ReceiveGauge(ctx, batch.ID, "g2", "emp-1", true, "")
	if !apperrors.IsCode(err, apperrors.CodeBatchMemberMissing) {
		t.Fatalf("expected member-missing rejection, got %v", err)
	}
}

func TestCertifyAndReleaseRestartsClock(t *testing.T) {
	w, store := newTestWorkflow(t)
	ctx := context.Background()
	fixed := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	w.WithClock(func() time.Time { return fixed })
	seedGauge(t, store, availableGauge("g1"))
	batch := draftBatch(t, w)

	if err := w.AddGauge(ctx, batch.ID, "g1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := w.SendBatch(ctx, batch.ID, "emp-1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := w.ReceiveGauge(ctx, batch.ID, "g1", "emp-1", true, ""); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := w.VerifyCertificate(ctx, "g1", "emp-1"); err != nil {
		t.Fatalf("certify: %v", err)
	}
	mustStatus(t, store, "g1", domain.StatusPendingRelease)

	if err := w.Release(ctx, "g1", "emp-1", "crib-b"); err != nil {
		t.Fatalf("release: %v", err)
	}

	g, err := store.Gauges().Get(ctx, "g1")
	if err != nil {
		t.Fatalf("get gauge: %v", err)
	}
	if g.Status != domain.StatusAvailable {
		t.Fatalf("expected available, got %s", g.Status)
	}
	if g.Location != "crib-b" {
		t.Fatalf("expected location crib-b, got %q", g.Location)
	}
	wantDue := fixed.AddDate(0, 0, 365)
	if !g.CalibrationDueAt.Equal(wantDue) {
		t.Fatalf("expected due %v, got %v", wantDue, g.CalibrationDueAt)
	}
}

func TestReleaseRequiresLocation(t *testing.T) {
	w, store := newTestWorkflow(t)
	ctx := context.Background()
	g := availableGauge("g1")
	g.Status = domain.StatusPendingRelease
	g.Location = ""
	seedGauge(t, store, g)

	err := w.Release(ctx, "g1", "emp-1", "")
	if !apperrors.IsCode(err, apperrors.CodeGaugeLocationEmpty) {
		t.Fatalf("expected location rejection, got %v", err)
	}
}

package service

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/kellyenterprises/gaugehub/internal/errors"
	"github.com/kellyenterprises/gaugehub/internal/gauge/checkout"
	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store), store
}

func registerGauge(t *testing.T, s *Service, tag string, role domain.Role) domain.Gauge {
	t.Helper()
	g, err := s.RegisterGauge(context.Background(), domain.CreateGaugeInput{
		Tag:   tag,
		Class: domain.EquipmentClassThreadPlug,
		Spec: domain.Spec{
			ThreadSize:  "1/2-13",
			ThreadClass: "2B",
			Role:        role,
		},
		CalibrationDueAt:        time.Now().AddDate(0, 6, 0),
		CalibrationIntervalDays: 365,
		Location:                "crib-a",
		Ownership:               domain.OwnershipCompany,
	})
	if err != nil {
		t.Fatalf("register %s: %v", tag, err)
	}
	return g
}

func TestRegisterGaugeRejectsDuplicateTag(t *testing.T) {
	s, _ := newTestService(t)
	registerGauge(t, s, "TP-001", domain.RoleGo)

	_, err := s.RegisterGauge(context.Background(), domain.CreateGaugeInput{
		Tag:       "TP-001",
		Class:     domain.EquipmentClassThreadPlug,
		Location:  "crib-a",
		Ownership: domain.OwnershipCompany,
	})
	if !apperrors.IsCode(err, apperrors.CodeGaugeTagTaken) {
		t.Fatalf("expected duplicate-tag rejection, got %v", err)
	}
}

func TestListGaugesWithFilter(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	registerGauge(t, s, "TP-001", domain.RoleGo)
	registerGauge(t, s, "TP-002", domain.RoleNoGo)
	g3 := registerGauge(t, s, "TP-003", domain.RoleGo)

	if _, err := s.Checkout(ctx, checkout.CheckoutInput{GaugeID: g3.ID, HolderID: "emp-1"}); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	views, next, err := s.ListGauges(ctx, `status = "available"`, 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 available gauges, got %d", len(views))
	}
	if next != "" {
		t.Fatalf("expected no next page, got %q", next)
	}

	views, _, err = s.ListGauges(ctx, `holder_id = "emp-1"`, 10, "")
	if err != nil {
		t.Fatalf("list by holder: %v", err)
	}
	if len(views) != 1 || views[0].Tag != "TP-003" {
		t.Fatalf("expected TP-003 under emp-1, got %+v", views)
	}
}

func TestListGaugesRejectsBadFilter(t *testing.T) {
	s, _ := newTestService(t)
	if _, _, err := s.ListGauges(context.Background(), `shoe_size = 9`, 10, ""); err == nil {
		t.Fatal("expected filter parse error")
	}
}

func TestEffectiveStatusOverlay(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	g := registerGauge(t, s, "TP-001", domain.RoleGo)

	stored, err := store.Gauges().Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("get gauge: %v", err)
	}
	stored.CalibrationDueAt = time.Now().Add(-24 * time.Hour)
	if err := store.Gauges().Put(ctx, stored); err != nil {
		t.Fatalf("backdate due: %v", err)
	}

	view, err := s.GetGauge(ctx, g.ID)
	if err != nil {
		t.Fatalf("get view: %v", err)
	}
	if view.Status != domain.StatusAvailable {
		t.Fatalf("stored status must stay available, got %s", view.Status)
	}
	if view.EffectiveStatus != domain.StatusCalibrationDue {
		t.Fatalf("expected calibration_due overlay, got %s", view.EffectiveStatus)
	}
}

func TestSealStopsClockAndUnsealRestartsIt(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	fixed := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s.WithClock(func() time.Time { return fixed })
	g := registerGauge(t, s, "TP-001", domain.RoleGo)

	if err := s.Seal(ctx, g.ID, "emp-1"); err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed, err := store.Gauges().Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("get gauge: %v", err)
	}
	if sealed.Status != domain.StatusSealed || !sealed.Sealed {
		t.Fatalf("expected sealed gauge, got %+v", sealed)
	}
	if !sealed.CalibrationDueAt.IsZero() {
		t.Fatalf("expected cleared clock, got %v", sealed.CalibrationDueAt)
	}

	request, err := s.RequestUnseal(ctx, domain.CreateUnsealInput{
		GaugeID:     g.ID,
		RequesterID: "emp-1",
		Reason:      "job 42",
	})
	if err != nil {
		t.Fatalf("request unseal: %v", err)
	}
	if err := s.ApproveUnseal(ctx, request.ID, "supervisor"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := s.ConfirmUnseal(ctx, request.ID, "emp-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	unsealed, err := store.Gauges().Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("get gauge: %v", err)
	}
	wantDue := fixed.AddDate(0, 0, 365)
	if !unsealed.CalibrationDueAt.Equal(wantDue) {
		t.Fatalf("expected clock restart at %v, got %v", wantDue, unsealed.CalibrationDueAt)
	}
}

func TestRetireRejectsPairedGauge(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	goGauge := registerGauge(t, s, "TP-001", domain.RoleGo)
	noGoGauge := registerGauge(t, s, "TP-002", domain.RoleNoGo)

	if _, err := s.PairSpares(ctx, goGauge.ID, noGoGauge.ID, "emp-1"); err != nil {
		t.Fatalf("pair: %v", err)
	}

	err := s.Retire(ctx, goGauge.ID, "emp-1", "worn")
	if !apperrors.IsCode(err, apperrors.CodeAlreadyPaired) {
		t.Fatalf("expected paired rejection, got %v", err)
	}
}

func TestAuditTrailCoversLifecycle(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	g := registerGauge(t, s, "TP-001", domain.RoleGo)

	if _, err := s.Checkout(ctx, checkout.CheckoutInput{GaugeID: g.ID, HolderID: "emp-1"}); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := s.Return(ctx, checkout.ReturnInput{GaugeID: g.ID, ReturnerID: "emp-1", Condition: "good"}); err != nil {
		t.Fatalf("return: %v", err)
	}
	if err := s.QCPass(ctx, g.ID, "inspector", "crib-a"); err != nil {
		t.Fatalf("qc pass: %v", err)
	}

	entries, err := s.AuditTrail(ctx, g.ID)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	wantOps := []string{"checkout", "return", "qc_pass"}
	if len(entries) != len(wantOps) {
		t.Fatalf("expected %d entries, got %d", len(wantOps), len(entries))
	}
	for i, op := range wantOps {
		if entries[i].Operation != op {
			t.Fatalf("entry %d: expected %s, got %s", i, op, entries[i].Operation)
		}
	}
}

func TestBatchLifecycleThroughService(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	g := registerGauge(t, s, "TP-001", domain.RoleGo)

	batch, err := s.CreateBatch(ctx, domain.CreateBatchInput{Vendor: "Acme Metrology", TrackingNumber: "1Z999"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if err := s.AddToBatch(ctx, batch.ID, g.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.SendBatch(ctx, batch.ID, "emp-1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.ReceiveFromCalibration(ctx, batch.ID, g.ID, "emp-1", true, ""); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := s.VerifyCertificate(ctx, g.ID, "emp-1"); err != nil {
		t.Fatalf("certify: %v", err)
	}
	if err := s.Release(ctx, g.ID, "emp-1", "crib-a"); err != nil {
		t.Fatalf("release: %v", err)
	}

	got, err := store.Gauges().Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("get gauge: %v", err)
	}
	if got.Status != domain.StatusAvailable {
		t.Fatalf("expected available after release, got %s", got.Status)
	}

	final, err := store.Batches().Get(ctx, batch.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if final.Status != domain.BatchStatusComplete {
		t.Fatalf("expected complete batch, got %s", final.Status)
	}
}

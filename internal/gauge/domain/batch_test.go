package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCreateBatch(t *testing.T) {
	fixedTime := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)

	batch, err := CreateBatch(CreateBatchInput{
		Vendor:         " Acme Calibration ",
		TrackingNumber: " 1Z999 ",
	}, fixedClock(fixedTime), staticID("batch-1"))
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	if batch.ID != "batch-1" {
		t.Fatalf("expected id batch-1, got %q", batch.ID)
	}
	if batch.Vendor != "Acme Calibration" {
		t.Fatalf("expected trimmed vendor, got %q", batch.Vendor)
	}
	if batch.Status != BatchStatusDraft {
		t.Fatalf("expected draft status, got %q", batch.Status)
	}
	if len(batch.GaugeIDs) != 0 {
		t.Fatalf("expected empty member list, got %d", len(batch.GaugeIDs))
	}
}

func TestCreateBatchEmptyVendor(t *testing.T) {
	_, err := CreateBatch(CreateBatchInput{Vendor: "  "}, nil, nil)
	if !errors.Is(err, ErrEmptyVendor) {
		t.Fatalf("expected ErrEmptyVendor, got %v", err)
	}
}

func TestIsBatchStatusTransitionAllowed(t *testing.T) {
	tests := []struct {
		from, to BatchStatus
		want     bool
	}{
		{BatchStatusDraft, BatchStatusSent, true},
		{BatchStatusDraft, BatchStatusCancelled, true},
		{BatchStatusDraft, BatchStatusComplete, false},
		{BatchStatusSent, BatchStatusPartiallyReceived, true},
		{BatchStatusSent, BatchStatusComplete, true},
		{BatchStatusSent, BatchStatusCancelled, false},
		{BatchStatusPartiallyReceived, BatchStatusComplete, true},
		{BatchStatusPartiallyReceived, BatchStatusSent, false},
		{BatchStatusComplete, BatchStatusSent, false},
		{BatchStatusCancelled, BatchStatusDraft, false},
	}

	for _, tc := range tests {
		if got := IsBatchStatusTransitionAllowed(tc.from, tc.to); got != tc.want {
			t.Fatalf("transition %s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestBatchStatusOpen(t *testing.T) {
	open := []BatchStatus{BatchStatusDraft, BatchStatusSent, BatchStatusPartiallyReceived}
	for _, s := range open {
		if !s.Open() {
			t.Fatalf("expected %q to be open", s)
		}
	}
	closed := []BatchStatus{BatchStatusComplete, BatchStatusCancelled}
	for _, s := range closed {
		if s.Open() {
			t.Fatalf("expected %q to be closed", s)
		}
	}
}

func TestBatchContains(t *testing.T) {
	batch := CalibrationBatch{GaugeIDs: []string{"g1", "g2"}}
	if !batch.Contains("g1") {
		t.Fatal("expected member to be found")
	}
	if batch.Contains("g3") {
		t.Fatal("expected non-member to be missing")
	}
}

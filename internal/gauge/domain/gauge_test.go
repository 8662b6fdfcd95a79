package domain

import (
	"errors"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func staticID(value string) func() (string, error) {
	return func() (string, error) { return value, nil }
}

func TestCreateGauge(t *testing.T) {
	fixedTime := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	due := fixedTime.AddDate(1, 0, 0)

	gauge, err := CreateGauge(CreateGaugeInput{
		Tag:   "  TPG-0042 ",
		Class: EquipmentClassThreadPlug,
		Spec: Spec{
			ThreadSize:  "1/2-13",
			ThreadClass: "2B",
			Role:        RoleGo,
		},
		CalibrationDueAt:        due,
		CalibrationIntervalDays: 365,
		Location:                "CAB-3",
		Ownership:               OwnershipCompany,
	}, fixedClock(fixedTime), staticID("gauge-1"))
	if err != nil {
		t.Fatalf("create gauge: %v", err)
	}

	if gauge.ID != "gauge-1" {
		t.Fatalf("expected id gauge-1, got %q", gauge.ID)
	}
	if gauge.Tag != "TPG-0042" {
		t.Fatalf("expected trimmed tag, got %q", gauge.Tag)
	}
	if gauge.Status != StatusAvailable {
		t.Fatalf("expected available, got %q", gauge.Status)
	}
	if !gauge.Spare {
		t.Fatal("expected new gauge to be a spare")
	}
	if gauge.Paired() {
		t.Fatal("expected new gauge to be unpaired")
	}
	if !gauge.CalibrationDueAt.Equal(due) {
		t.Fatalf("expected due date %v, got %v", due, gauge.CalibrationDueAt)
	}
	if gauge.Version != 1 {
		t.Fatalf("expected version 1, got %d", gauge.Version)
	}
}

func TestCreateGaugeSealedClearsClock(t *testing.T) {
	fixedTime := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	gauge, err := CreateGauge(CreateGaugeInput{
		Tag:              "TRG-0007",
		Class:            EquipmentClassThreadRing,
		Sealed:           true,
		CalibrationDueAt: fixedTime.AddDate(1, 0, 0),
		Location:         "CAB-1",
		Ownership:        OwnershipCompany,
	}, fixedClock(fixedTime), staticID("gauge-2"))
	if err != nil {
		t.Fatalf("create gauge: %v", err)
	}

	if gauge.Status != StatusSealed {
		t.Fatalf("expected sealed status, got %q", gauge.Status)
	}
	if !gauge.CalibrationDueAt.IsZero() {
		t.Fatal("expected sealed gauge to carry no calibration clock")
	}
}

func TestNormalizeCreateGaugeInputErrors(t *testing.T) {
	valid := CreateGaugeInput{
		Tag:       "TPG-1",
		Class:     EquipmentClassThreadPlug,
		Location:  "CAB-1",
		Ownership: OwnershipCompany,
	}

	tests := []struct {
		name    string
		mutate  func(in CreateGaugeInput) CreateGaugeInput
		wantErr error
	}{
		{
			name: "empty tag",
			mutate: func(in CreateGaugeInput) CreateGaugeInput {
				in.Tag = "   "
				return in
			},
			wantErr: ErrEmptyTag,
		},
		{
			name: "missing class",
			mutate: func(in CreateGaugeInput) CreateGaugeInput {
				in.Class = EquipmentClassUnspecified
				return in
			},
			wantErr: ErrInvalidEquipmentClass,
		},
		{
			name: "missing ownership",
			mutate: func(in CreateGaugeInput) CreateGaugeInput {
				in.Ownership = OwnershipUnspecified
				return in
			},
			wantErr: ErrInvalidOwnership,
		},
		{
			name: "empty location",
			mutate: func(in CreateGaugeInput) CreateGaugeInput {
				in.Location = ""
				return in
			},
			wantErr: ErrEmptyLocation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NormalizeCreateGaugeInput(tc.mutate(valid))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCalibrationOverdue(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	overdue := Gauge{CalibrationDueAt: now.AddDate(0, 0, -1)}
	if !overdue.CalibrationOverdue(now) {
		t.Fatal("expected gauge past due date to be overdue")
	}

	current := Gauge{CalibrationDueAt: now.AddDate(0, 1, 0)}
	if current.CalibrationOverdue(now) {
		t.Fatal("expected gauge before due date to not be overdue")
	}

	sealed := Gauge{Sealed: true}
	if sealed.CalibrationOverdue(now) {
		t.Fatal("expected sealed gauge with no clock to never be overdue")
	}
}

func TestEffectiveStatusOverlay(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -10)

	available := Gauge{Status: StatusAvailable, CalibrationDueAt: past}
	if got := available.EffectiveStatus(now); got != StatusCalibrationDue {
		t.Fatalf("expected calibration_due overlay, got %q", got)
	}

	// Mid-workflow statuses are never masked by the overlay.
	out := Gauge{Status: StatusOutForCalibration, CalibrationDueAt: past}
	if got := out.EffectiveStatus(now); got != StatusOutForCalibration {
		t.Fatalf("expected workflow status preserved, got %q", got)
	}
}

func TestSpecMatches(t *testing.T) {
	g := Spec{ThreadSize: "1/2-13", ThreadClass: "2B", Role: RoleGo}
	nogo := Spec{ThreadSize: "1/2-13", ThreadClass: "2B", Role: RoleNoGo}
	if !g.Matches(nogo) {
		t.Fatal("expected complementary specs to match")
	}
	if !nogo.Matches(g) {
		t.Fatal("expected match to be symmetric")
	}

	sameRole := Spec{ThreadSize: "1/2-13", ThreadClass: "2B", Role: RoleGo}
	if g.Matches(sameRole) {
		t.Fatal("expected identical roles to not match")
	}

	otherSize := Spec{ThreadSize: "3/4-10", ThreadClass: "2B", Role: RoleNoGo}
	if g.Matches(otherSize) {
		t.Fatal("expected different sizes to not match")
	}
}

func TestEquipmentClassPairs(t *testing.T) {
	if !EquipmentClassThreadPlug.Pairs() {
		t.Fatal("expected thread plug class to pair")
	}
	if EquipmentClassNPTPlug.Pairs() {
		t.Fatal("expected NPT plug class to never pair")
	}
	if EquipmentClassNPTRing.Pairs() {
		t.Fatal("expected NPT ring class to never pair")
	}
}

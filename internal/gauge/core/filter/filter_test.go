package filter

import (
	"reflect"
	"testing"

	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
)

func TestParseGaugeFilter_StatusEquals(t *testing.T) {
	query, err := ParseGaugeFilter(`status = "available"`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if !reflect.DeepEqual(query.Statuses, []domain.Status{domain.StatusAvailable}) {
		t.Fatalf("Statuses = %v", query.Statuses)
	}
}

func TestParseGaugeFilter_Empty(t *testing.T) {
	query, err := ParseGaugeFilter(" ")
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if len(query.Statuses) != 0 || query.Location != "" || query.OverdueOnly {
		t.Fatalf("expected zero query, got %+v", query)
	}
}

func TestParseGaugeFilter_Conjunction(t *testing.T) {
	query, err := ParseGaugeFilter(`class = "thread_plug" AND location = "crib-a" AND spare = true`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if query.Class != domain.EquipmentClassThreadPlug {
		t.Fatalf("Class = %v", query.Class)
	}
	if query.Location != "crib-a" {
		t.Fatalf("Location = %q", query.Location)
	}
	if !query.SpareOnly {
		t.Fatal("expected SpareOnly")
	}
}

func TestParseGaugeFilter_StatusDisjunction(t *testing.T) {
	query, err := ParseGaugeFilter(`status = "available" OR status = "sealed"`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	want := []domain.Status{domain.StatusAvailable, domain.StatusSealed}
	if !reflect.DeepEqual(query.Statuses, want) {
		t.Fatalf("Statuses = %v", query.Statuses)
	}
}

func TestParseGaugeFilter_DisjunctionRejectsMixedFields(t *testing.T) {
	if _, err := ParseGaugeFilter(`status = "available" OR location = "crib-a"`); err == nil {
		t.Fatal("expected error for OR across fields")
	}
}

func TestParseGaugeFilter_Overdue(t *testing.T) {
	query, err := ParseGaugeFilter(`overdue = true AND holder_id = "emp-7"`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if !query.OverdueOnly {
		t.Fatal("expected OverdueOnly")
	}
	if query.HolderID != "emp-7" {
		t.Fatalf("HolderID = %q", query.HolderID)
	}
}

func TestParseGaugeFilter_BoolLiterals(t *testing.T) {
	query, err := ParseGaugeFilter(`overdue = true AND spare = false`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if !query.OverdueOnly {
		t.Fatal("expected OverdueOnly")
	}
	if query.SpareOnly {
		t.Fatal("expected SpareOnly unset")
	}
}

func TestParseGaugeFilter_UnknownField(t *testing.T) {
	if _, err := ParseGaugeFilter(`color = "red"`); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseGaugeFilter_UnknownStatus(t *testing.T) {
	if _, err := ParseGaugeFilter(`status = "calibration_due"`); err == nil {
		t.Fatal("expected error for derived status value")
	}
}

package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kellyenterprises/gaugehub/internal/platform/id"
)

// Status describes the gauge lifecycle label used by domain decisions.
type Status string

const (
	StatusUnspecified        Status = ""
	StatusAvailable          Status = "available"
	StatusCheckedOut         Status = "checked_out"
	StatusInTransit          Status = "in_transit"
	StatusPendingQC          Status = "pending_qc"
	StatusSealed             Status = "sealed"
	StatusOutForCalibration  Status = "out_for_calibration"
	StatusPendingCertificate Status = "pending_certificate"
	StatusPendingRelease     Status = "pending_release"
	StatusOutOfService       Status = "out_of_service"
	StatusRetired            Status = "retired"
	StatusReturnedCustomer   Status = "returned_customer"

	// StatusCalibrationDue is a derived display overlay, never stored.
	StatusCalibrationDue Status = "calibration_due"
)

// EquipmentClass identifies the kind of instrument being tracked.
type EquipmentClass int

const (
	// EquipmentClassUnspecified represents an invalid equipment class value.
	EquipmentClassUnspecified EquipmentClass = iota
	// EquipmentClassThreadPlug indicates a straight thread plug gauge.
	EquipmentClassThreadPlug
	// EquipmentClassThreadRing indicates a straight thread ring gauge.
	EquipmentClassThreadRing
	// EquipmentClassNPTPlug indicates a tapered pipe thread plug gauge.
	EquipmentClassNPTPlug
	// EquipmentClassNPTRing indicates a tapered pipe thread ring gauge.
	EquipmentClassNPTRing
)

// Pairs reports whether instruments of this class form GO/NO-GO sets.
// Tapered NPT gauges are single instruments and never pair.
func (c EquipmentClass) Pairs() bool {
	switch c {
	case EquipmentClassThreadPlug, EquipmentClassThreadRing:
		return true
	default:
		return false
	}
}

// Role distinguishes the two members of a GO/NO-GO set.
type Role int

const (
	// RoleUnspecified represents an invalid role value.
	RoleUnspecified Role = iota
	// RoleGo indicates the GO member of a set.
	RoleGo
	// RoleNoGo indicates the NO-GO member of a set.
	RoleNoGo
)

// Ownership describes who owns the instrument.
type Ownership int

const (
	// OwnershipUnspecified represents an invalid ownership value.
	OwnershipUnspecified Ownership = iota
	// OwnershipCompany indicates a company-owned instrument.
	OwnershipCompany
	// OwnershipCustomer indicates a customer-owned instrument on site.
	OwnershipCustomer
	// OwnershipRental indicates a rented instrument.
	OwnershipRental
)

// Spec is the per-class specification payload resolved once at creation,
// replacing repeated string comparisons inside guards.
type Spec struct {
	ThreadSize  string
	ThreadClass string
	Role        Role
}

// Matches reports whether two specs describe companion halves of the same
// set: identical size and class, complementary roles.
func (s Spec) Matches(other Spec) bool {
	if s.ThreadSize != other.ThreadSize || s.ThreadClass != other.ThreadClass {
		return false
	}
	return (s.Role == RoleGo && other.Role == RoleNoGo) ||
		(s.Role == RoleNoGo && other.Role == RoleGo)
}

var (
	// ErrEmptyTag indicates a missing gauge business identifier.
	ErrEmptyTag = errors.New("gauge tag is required")
	// ErrInvalidEquipmentClass indicates a missing or invalid equipment class.
	ErrInvalidEquipmentClass = errors.New("equipment class is required")
	// ErrInvalidOwnership indicates a missing or invalid ownership kind.
	ErrInvalidOwnership = errors.New("ownership is required")
	// ErrEmptyLocation indicates a missing storage location.
	ErrEmptyLocation = errors.New("storage location is required")
)

// Gauge represents a tracked physical measurement instrument.
type Gauge struct {
	ID     string
	Tag    string
	Class  EquipmentClass
	Spec   Spec
	Status Status

	Sealed bool
	Spare  bool

	// CompanionID and SetID are empty for unpaired gauges. A non-empty
	// CompanionID must point back symmetrically; PairingManager validates.
	CompanionID string
	SetID       string

	// CalibrationDueAt is zero while the gauge is sealed (no running clock).
	CalibrationDueAt        time.Time
	CalibrationIntervalDays int

	Location  string
	HolderID  string
	Ownership Ownership

	// Version increments on every compare-and-set write.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CalibrationOverdue reports whether the calibration clock has expired at
// the given instant. Sealed gauges carry no clock and are never overdue.
func (g Gauge) CalibrationOverdue(at time.Time) bool {
	if g.CalibrationDueAt.IsZero() {
		return false
	}
	return g.CalibrationDueAt.Before(at)
}

// EffectiveStatus returns the stored status with the calibration_due overlay
// applied at read time. The overlay only masks availability; a gauge mid-
// workflow keeps its workflow status.
func (g Gauge) EffectiveStatus(at time.Time) Status {
	if g.Status == StatusAvailable && g.CalibrationOverdue(at) {
		return StatusCalibrationDue
	}
	return g.Status
}

// Paired reports whether the gauge is half of a GO/NO-GO set.
func (g Gauge) Paired() bool {
	return g.CompanionID != ""
}

// CreateGaugeInput describes the metadata needed to register a gauge.
type CreateGaugeInput struct {
	Tag                     string
	Class                   EquipmentClass
	Spec                    Spec
	Sealed                  bool
	CalibrationDueAt        time.Time
	CalibrationIntervalDays int
	Location                string
	Ownership               Ownership
}

// CreateGauge registers a new gauge with a generated ID and timestamps.
// New gauges start available (or sealed), unpaired, as spares.
func CreateGauge(input CreateGaugeInput, now func() time.Time, idGenerator func() (string, error)) (Gauge, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateGaugeInput(input)
	if err != nil {
		return Gauge{}, err
	}

	gaugeID, err := idGenerator()
	if err != nil {
		return Gauge{}, fmt.Errorf("generate gauge id: %w", err)
	}

	status := StatusAvailable
	dueAt := normalized.CalibrationDueAt
	if normalized.Sealed {
		// A sealed gauge has no running calibration clock.
		status = StatusSealed
		dueAt = time.Time{}
	}

	createdAt := now().UTC()
	return Gauge{
		ID:                      gaugeID,
		Tag:                     normalized.Tag,
		Class:                   normalized.Class,
		Spec:                    normalized.Spec,
		Status:                  status,
		Sealed:                  normalized.Sealed,
		Spare:                   true,
		CalibrationDueAt:        dueAt,
		CalibrationIntervalDays: normalized.CalibrationIntervalDays,
		Location:                normalized.Location,
		Ownership:               normalized.Ownership,
		Version:                 1,
		CreatedAt:               createdAt,
		UpdatedAt:               createdAt,
	}, nil
}

// NormalizeCreateGaugeInput trims and validates gauge input metadata.
func NormalizeCreateGaugeInput(input CreateGaugeInput) (CreateGaugeInput, error) {
	input.Tag = strings.TrimSpace(input.Tag)
	if input.Tag == "" {
		return CreateGaugeInput{}, ErrEmptyTag
	}
	if input.Class == EquipmentClassUnspecified {
		return CreateGaugeInput{}, ErrInvalidEquipmentClass
	}
	if input.Ownership == OwnershipUnspecified {
		return CreateGaugeInput{}, ErrInvalidOwnership
	}
	input.Location = strings.TrimSpace(input.Location)
	if input.Location == "" {
		return CreateGaugeInput{}, ErrEmptyLocation
	}
	input.Spec.ThreadSize = strings.TrimSpace(input.Spec.ThreadSize)
	input.Spec.ThreadClass = strings.TrimSpace(input.Spec.ThreadClass)
	return input, nil
}

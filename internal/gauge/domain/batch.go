package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kellyenterprises/gaugehub/internal/platform/id"
)

// BatchStatus describes the calibration batch lifecycle.
type BatchStatus string

const (
	BatchStatusUnspecified       BatchStatus = ""
	BatchStatusDraft             BatchStatus = "draft"
	BatchStatusSent              BatchStatus = "sent"
	BatchStatusPartiallyReceived BatchStatus = "partially_received"
	BatchStatusComplete          BatchStatus = "complete"
	BatchStatusCancelled         BatchStatus = "cancelled"
)

// Open reports whether the batch still holds members mid round-trip.
// Complete and cancelled batches are closed; their members are free to join
// a new batch.
func (s BatchStatus) Open() bool {
	switch s {
	case BatchStatusDraft, BatchStatusSent, BatchStatusPartiallyReceived:
		return true
	default:
		return false
	}
}

// IsBatchStatusTransitionAllowed enforces valid batch lifecycle transitions.
func IsBatchStatusTransitionAllowed(from, to BatchStatus) bool {
	switch from {
	case BatchStatusDraft:
		return to == BatchStatusSent || to == BatchStatusCancelled
	case BatchStatusSent:
		return to == BatchStatusPartiallyReceived || to == BatchStatusComplete
	case BatchStatusPartiallyReceived:
		return to == BatchStatusComplete
	default:
		return false
	}
}

var (
	// ErrEmptyVendor indicates a missing calibration vendor name.
	ErrEmptyVendor = errors.New("calibration vendor is required")
)

// CalibrationBatch groups gauges shipped together to an external vendor.
// Membership is tracked per gauge; a gauge belongs to at most one open batch.
type CalibrationBatch struct {
	ID             string
	Vendor         string
	TrackingNumber string
	Status         BatchStatus
	GaugeIDs       []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SentAt         time.Time
}

// Contains reports whether the gauge is a member of the batch.
func (b CalibrationBatch) Contains(gaugeID string) bool {
	for _, member := range b.GaugeIDs {
		if member == gaugeID {
			return true
		}
	}
	return false
}

// CreateBatchInput describes the metadata needed to open a draft batch.
type CreateBatchInput struct {
	Vendor         string
	TrackingNumber string
}

// CreateBatch opens a new draft calibration batch with a generated ID.
func CreateBatch(input CreateBatchInput, now func() time.Time, idGenerator func() (string, error)) (CalibrationBatch, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateBatchInput(input)
	if err != nil {
		return CalibrationBatch{}, err
	}

	batchID, err := idGenerator()
	if err != nil {
		return CalibrationBatch{}, fmt.Errorf("generate batch id: %w", err)
	}

	createdAt := now().UTC()
	return CalibrationBatch{
		ID:             batchID,
		Vendor:         normalized.Vendor,
		TrackingNumber: normalized.TrackingNumber,
		Status:         BatchStatusDraft,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// NormalizeCreateBatchInput trims and validates batch input metadata.
func NormalizeCreateBatchInput(input CreateBatchInput) (CreateBatchInput, error) {
	input.Vendor = strings.TrimSpace(input.Vendor)
	if input.Vendor == "" {
		return CreateBatchInput{}, ErrEmptyVendor
	}
	input.TrackingNumber = strings.TrimSpace(input.TrackingNumber)
	return input, nil
}

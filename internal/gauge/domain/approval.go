package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kellyenterprises/gaugehub/internal/platform/id"
)

// ApprovalStatus describes a short-lived approval request lifecycle.
type ApprovalStatus string

const (
	ApprovalStatusUnspecified ApprovalStatus = ""
	ApprovalStatusPending     ApprovalStatus = "pending"
	ApprovalStatusAccepted    ApprovalStatus = "accepted"
	ApprovalStatusRejected    ApprovalStatus = "rejected"
)

var (
	// ErrEmptyRequester indicates a missing requester reference.
	ErrEmptyRequester = errors.New("requester id is required")
	// ErrEmptyReason indicates a missing request reason.
	ErrEmptyReason = errors.New("request reason is required")
)

// TransferRequest asks to move a gauge to a new holder or ownership.
// Acceptance changes holder/ownership without altering availability status.
type TransferRequest struct {
	ID          string
	GaugeID     string
	RequesterID string
	ApproverID  string
	Status      ApprovalStatus
	Reason      string

	// Target holder and ownership applied on acceptance.
	NewHolderID  string
	NewOwnership Ownership
	// OffSiteReturn marks a customer-owned gauge leaving the site for good.
	OffSiteReturn bool

	CreatedAt  time.Time
	ResolvedAt time.Time
}

// UnsealRequest asks to break a gauge's tamper-evident seal. Confirming the
// physical unseal starts the calibration clock. SetID requests target every
// member of a set atomically.
type UnsealRequest struct {
	ID          string
	GaugeID     string
	SetID       string
	RequesterID string
	ApproverID  string
	Status      ApprovalStatus
	Reason      string

	CreatedAt  time.Time
	ResolvedAt time.Time
	// ConfirmedAt stamps the physical unseal; zero until confirmed.
	ConfirmedAt time.Time
}

// CreateTransferInput describes the data needed to open a transfer request.
type CreateTransferInput struct {
	GaugeID       string
	RequesterID   string
	Reason        string
	NewHolderID   string
	NewOwnership  Ownership
	OffSiteReturn bool
}

// CreateTransfer opens a pending transfer request with a generated ID.
func CreateTransfer(input CreateTransferInput, now func() time.Time, idGenerator func() (string, error)) (TransferRequest, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.GaugeID = strings.TrimSpace(input.GaugeID)
	if input.GaugeID == "" {
		return TransferRequest{}, ErrEmptyGaugeID
	}
	input.RequesterID = strings.TrimSpace(input.RequesterID)
	if input.RequesterID == "" {
		return TransferRequest{}, ErrEmptyRequester
	}
	input.Reason = strings.TrimSpace(input.Reason)
	if input.Reason == "" {
		return TransferRequest{}, ErrEmptyReason
	}

	requestID, err := idGenerator()
	if err != nil {
		return TransferRequest{}, fmt.Errorf("generate transfer id: %w", err)
	}

	return TransferRequest{
		ID:            requestID,
		GaugeID:       input.GaugeID,
		RequesterID:   input.RequesterID,
		Status:        ApprovalStatusPending,
		Reason:        input.Reason,
		NewHolderID:   strings.TrimSpace(input.NewHolderID),
		NewOwnership:  input.NewOwnership,
		OffSiteReturn: input.OffSiteReturn,
		CreatedAt:     now().UTC(),
	}, nil
}

// CreateUnsealInput describes the data needed to open an unseal request.
// Exactly one of GaugeID or SetID should be set.
type CreateUnsealInput struct {
	GaugeID     string
	SetID       string
	RequesterID string
	Reason      string
}

// CreateUnseal opens a pending unseal request with a generated ID.
func CreateUnseal(input CreateUnsealInput, now func() time.Time, idGenerator func() (string, error)) (UnsealRequest, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.GaugeID = strings.TrimSpace(input.GaugeID)
	input.SetID = strings.TrimSpace(input.SetID)
	if input.GaugeID == "" && input.SetID == "" {
		return UnsealRequest{}, ErrEmptyGaugeID
	}
	input.RequesterID = strings.TrimSpace(input.RequesterID)
	if input.RequesterID == "" {
		return UnsealRequest{}, ErrEmptyRequester
	}
	input.Reason = strings.TrimSpace(input.Reason)
	if input.Reason == "" {
		return UnsealRequest{}, ErrEmptyReason
	}

	requestID, err := idGenerator()
	if err != nil {
		return UnsealRequest{}, fmt.Errorf("generate unseal id: %w", err)
	}

	return UnsealRequest{
		ID:          requestID,
		GaugeID:     input.GaugeID,
		SetID:       input.SetID,
		RequesterID: input.RequesterID,
		Status:      ApprovalStatusPending,
		Reason:      input.Reason,
		CreatedAt:   now().UTC(),
	}, nil
}

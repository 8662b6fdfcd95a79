package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kellyenterprises/gaugehub/internal/platform/id"
)

var (
	// ErrEmptyGaugeID indicates a missing gauge reference.
	ErrEmptyGaugeID = errors.New("gauge id is required")
	// ErrEmptyHolderID indicates a missing holder reference.
	ErrEmptyHolderID = errors.New("holder id is required")
)

// CheckoutRecord tracks a single holder's possession of a gauge. Records are
// closed on return, never deleted; at most one open record exists per gauge.
type CheckoutRecord struct {
	ID             string
	GaugeID        string
	HolderID       string
	CheckedOutAt   time.Time
	ExpectedReturn time.Time

	// ClosedAt and ConditionAtReturn stay zero until the record closes.
	ClosedAt          time.Time
	ConditionAtReturn string
}

// Open reports whether the record still holds the gauge.
func (r CheckoutRecord) Open() bool {
	return r.ClosedAt.IsZero()
}

// OpenCheckoutInput describes the data needed to open a checkout record.
type OpenCheckoutInput struct {
	GaugeID        string
	HolderID       string
	ExpectedReturn time.Time
}

// OpenCheckout creates an open checkout record with a generated ID.
func OpenCheckout(input OpenCheckoutInput, now func() time.Time, idGenerator func() (string, error)) (CheckoutRecord, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.GaugeID = strings.TrimSpace(input.GaugeID)
	if input.GaugeID == "" {
		return CheckoutRecord{}, ErrEmptyGaugeID
	}
	input.HolderID = strings.TrimSpace(input.HolderID)
	if input.HolderID == "" {
		return CheckoutRecord{}, ErrEmptyHolderID
	}

	recordID, err := idGenerator()
	if err != nil {
		return CheckoutRecord{}, fmt.Errorf("generate checkout id: %w", err)
	}

	return CheckoutRecord{
		ID:             recordID,
		GaugeID:        input.GaugeID,
		HolderID:       input.HolderID,
		CheckedOutAt:   now().UTC(),
		ExpectedReturn: input.ExpectedReturn,
	}, nil
}

// Close stamps the record closed with the reported condition.
func (r CheckoutRecord) Close(condition string, at time.Time) CheckoutRecord {
	r.ClosedAt = at.UTC()
	r.ConditionAtReturn = strings.TrimSpace(condition)
	return r
}

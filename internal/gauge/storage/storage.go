// Package storage defines the persistence interfaces consumed by gauge
// workflows. Implementations must make CompareAndSetStatus atomic: it is the
// only way workflows mutate gauge status, and it serializes all writers for
// a single gauge.
package storage

import (
	"context"
	"time"

	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
)

// Extra carries side-writes applied in the same atomic update as a status
// compare-and-set.
type Extra struct {
	HolderID         *string
	Location         *string
	CalibrationDueAt *time.Time
	Sealed           *bool
	Spare            *bool
	CompanionID      *string
	SetID            *string
	Ownership        *domain.Ownership
}

// GaugeQuery narrows a gauge listing. Zero fields match everything.
type GaugeQuery struct {
	Statuses    []domain.Status
	Class       domain.EquipmentClass
	Location    string
	HolderID    string
	SetID       string
	OverdueOnly bool
	// OverdueAt is the instant OverdueOnly evaluates against.
	OverdueAt time.Time
	SpareOnly bool

	PageSize  int
	PageToken string
}

// GaugePage is one page of a gauge listing.
type GaugePage struct {
	Gauges        []domain.Gauge
	NextPageToken string
}

// GaugeStore persists gauge rows. It exclusively owns them; workflows hold
// transient ids and re-fetch before mutating.
type GaugeStore interface {
	Put(ctx context.Context, g domain.Gauge) error
	Get(ctx context.Context, id string) (domain.Gauge, error)
	GetByTag(ctx context.Context, tag string) (domain.Gauge, error)
	List(ctx context.Context, query GaugeQuery) (GaugePage, error)
	ListBySet(ctx context.Context, setID string) ([]domain.Gauge, error)

	// CompareAndSetStatus atomically moves the gauge from expected to next,
	// applying extra side-writes and bumping the version. It fails with a
	// StaleState error when the stored status no longer matches expected.
	CompareAndSetStatus(ctx context.Context, id string, expected, next domain.Status, extra Extra) error
}

// CheckoutStore persists checkout records. Insert must enforce the at-most-
// one-open-record invariant atomically.
type CheckoutStore interface {
	Insert(ctx context.Context, record domain.CheckoutRecord) error
	GetOpenByGauge(ctx context.Context, gaugeID string) (domain.CheckoutRecord, error)
	Close(ctx context.Context, recordID, condition string, at time.Time) error
	ListByGauge(ctx context.Context, gaugeID string) ([]domain.CheckoutRecord, error)
}

// BatchStore persists calibration batches and their memberships.
type BatchStore interface {
	Insert(ctx context.Context, batch domain.CalibrationBatch) error
	Get(ctx context.Context, id string) (domain.CalibrationBatch, error)
	AddMember(ctx context.Context, batchID, gaugeID string) error
	RemoveMember(ctx context.Context, batchID, gaugeID string) error

	// OpenBatchByGauge returns the open batch holding the gauge, if any.
	OpenBatchByGauge(ctx context.Context, gaugeID string) (domain.CalibrationBatch, bool, error)

	// CompareAndSetStatus mirrors the gauge CAS for batch rows.
	CompareAndSetStatus(ctx context.Context, id string, expected, next domain.BatchStatus, sentAt time.Time) error
}

// TransferStore persists transfer approval requests.
type TransferStore interface {
	Insert(ctx context.Context, request domain.TransferRequest) error
	Get(ctx context.Context, id string) (domain.TransferRequest, error)

	// Resolve atomically moves a pending request to accepted or rejected.
	Resolve(ctx context.Context, id string, next domain.ApprovalStatus, approverID string, at time.Time) error
}

// UnsealStore persists unseal approval requests.
type UnsealStore interface {
	Insert(ctx context.Context, request domain.UnsealRequest) error
	Get(ctx context.Context, id string) (domain.UnsealRequest, error)
	Resolve(ctx context.Context, id string, next domain.ApprovalStatus, approverID string, at time.Time) error

	// Confirm stamps the physical unseal on an accepted request.
	Confirm(ctx context.Context, id string, at time.Time) error
}

// PairingHistoryStore appends to the immutable pairing history.
type PairingHistoryStore interface {
	Append(ctx context.Context, event domain.PairingEvent) error
	ListBySet(ctx context.Context, setID string) ([]domain.PairingEvent, error)
}

// AuditStore appends to the immutable transition audit log.
type AuditStore interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	ListByGauge(ctx context.Context, gaugeID string) ([]domain.AuditEntry, error)
}

// Stores bundles every store reachable in one scope (root or transaction).
type Stores interface {
	Gauges() GaugeStore
	Checkouts() CheckoutStore
	Batches() BatchStore
	Transfers() TransferStore
	Unseals() UnsealStore
	PairingHistory() PairingHistoryStore
	Audit() AuditStore
}

// Store is the root persistence handle: direct access plus scoped
// transactions. Multi-row operations (set pairing, batch send, set-level
// unseal) must run inside WithTx so partial failure rolls back every row.
type Store interface {
	Stores

	WithTx(ctx context.Context, fn func(Stores) error) error
}

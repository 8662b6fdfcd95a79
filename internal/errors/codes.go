// Package errors provides structured error handling for gauge lifecycle operations.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Gauge errors
	CodeGaugeTagEmpty          Code = "GAUGE_TAG_EMPTY"
	CodeGaugeTagTaken          Code = "GAUGE_TAG_TAKEN"
	CodeGaugeInvalidClass      Code = "GAUGE_INVALID_EQUIPMENT_CLASS"
	CodeGaugeInvalidOwnership  Code = "GAUGE_INVALID_OWNERSHIP"
	CodeGaugeLocationEmpty     Code = "GAUGE_LOCATION_EMPTY"
	CodeGaugeHolderEmpty       Code = "GAUGE_HOLDER_EMPTY"
	CodeGaugeInvalidTransition Code = "GAUGE_INVALID_STATUS_TRANSITION"
	CodeGaugeNotAvailable      Code = "GAUGE_NOT_AVAILABLE"
	CodeCalibrationOverdue     Code = "GAUGE_CALIBRATION_OVERDUE"
	CodeSealedUnapproved       Code = "GAUGE_SEALED_UNAPPROVED"
	CodeGaugeRetired           Code = "GAUGE_RETIRED"

	// Checkout errors
	CodeCheckoutNotOpen     Code = "CHECKOUT_NOT_OPEN"
	CodeCheckoutAlreadyOpen Code = "CHECKOUT_ALREADY_OPEN"
	CodeUnauthorizedReturn  Code = "CHECKOUT_UNAUTHORIZED_RETURN"

	// Pairing errors
	CodeAlreadyPaired    Code = "PAIRING_ALREADY_PAIRED"
	CodeNotSpare         Code = "PAIRING_NOT_SPARE"
	CodeSpecMismatch     Code = "PAIRING_SPEC_MISMATCH"
	CodeSealMismatch     Code = "PAIRING_SEAL_MISMATCH"
	CodeClassNeverPairs  Code = "PAIRING_CLASS_NEVER_PAIRS"
	CodeNotPaired        Code = "PAIRING_NOT_PAIRED"
	CodePairingAsymmetry Code = "PAIRING_SYMMETRY_VIOLATION"

	// Calibration batch errors
	CodeBatchVendorEmpty   Code = "BATCH_VENDOR_EMPTY"
	CodeBatchNotDraft      Code = "BATCH_NOT_DRAFT"
	CodeBatchNotOpen       Code = "BATCH_NOT_OPEN"
	CodeBatchEmpty         Code = "BATCH_EMPTY"
	CodeBatchMemberMissing Code = "BATCH_MEMBER_MISSING"
	CodeGaugeInOpenBatch   Code = "BATCH_GAUGE_IN_OPEN_BATCH"
	CodeSetIncomplete      Code = "BATCH_SET_INCOMPLETE"
	CodePartialCommit      Code = "BATCH_PARTIAL_COMMIT"

	// Approval errors (transfer / unseal)
	CodeApprovalNotPending  Code = "APPROVAL_NOT_PENDING"
	CodeApprovalNotAccepted Code = "APPROVAL_NOT_ACCEPTED"
	CodeApprovalReasonEmpty Code = "APPROVAL_REASON_EMPTY"

	// Storage errors
	CodeNotFound   Code = "NOT_FOUND"
	CodeStaleState Code = "STALE_STATE"
)

// Kind groups codes into the retry/alert taxonomy used by callers.
type Kind int

const (
	// KindUnknown covers unclassified failures.
	KindUnknown Kind = iota
	// KindValidation marks malformed input; the caller's fault, never retried.
	KindValidation
	// KindStateConflict marks a failed guard; surfaced, not retried.
	KindStateConflict
	// KindConcurrencyConflict marks an optimistic CAS failure; safe to retry
	// the whole operation from a fresh read.
	KindConcurrencyConflict
	// KindConsistencyViolation marks broken invariants; fatal, must alert.
	KindConsistencyViolation
	// KindNotFound marks a missing resource.
	KindNotFound
)

// Kind maps a code to its taxonomy bucket.
func (c Code) Kind() Kind {
	switch c {
	case CodeGaugeTagEmpty,
		CodeGaugeInvalidClass,
		CodeGaugeInvalidOwnership,
		CodeGaugeLocationEmpty,
		CodeGaugeHolderEmpty,
		CodeBatchVendorEmpty,
		CodeApprovalReasonEmpty:
		return KindValidation

	case CodeGaugeTagTaken,
		CodeGaugeInvalidTransition,
		CodeGaugeNotAvailable,
		CodeCalibrationOverdue,
		CodeSealedUnapproved,
		CodeGaugeRetired,
		CodeCheckoutNotOpen,
		CodeCheckoutAlreadyOpen,
		CodeUnauthorizedReturn,
		CodeAlreadyPaired,
		CodeNotSpare,
		CodeSpecMismatch,
		CodeSealMismatch,
		CodeClassNeverPairs,
		CodeNotPaired,
		CodeBatchNotDraft,
		CodeBatchNotOpen,
		CodeBatchEmpty,
		CodeBatchMemberMissing,
		CodeGaugeInOpenBatch,
		CodeSetIncomplete,
		CodeApprovalNotPending,
		CodeApprovalNotAccepted:
		return KindStateConflict

	case CodeStaleState:
		return KindConcurrencyConflict

	case CodePairingAsymmetry,
		CodePartialCommit:
		return KindConsistencyViolation

	case CodeNotFound:
		return KindNotFound

	default:
		return KindUnknown
	}
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c.Kind() {
	case KindValidation:
		return codes.InvalidArgument
	case KindStateConflict:
		return codes.FailedPrecondition
	case KindConcurrencyConflict:
		return codes.Aborted
	case KindConsistencyViolation:
		return codes.DataLoss
	case KindNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/kellyenterprises/gaugehub/internal/errors"
	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
)

type transferStore struct {
	db dbtx
}

// Insert appends a pending transfer request.
func (s *transferStore) Insert(ctx context.Context, request domain.TransferRequest) error {
	if strings.TrimSpace(request.ID) == "" {
		return fmt.Errorf("transfer request id is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transfer_requests (
		    id, gauge_id, requester_id, approver_id, status, reason,
		    new_holder_id, new_ownership, off_site_return, created_at, resolved_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		request.ID, request.GaugeID, request.RequesterID, request.ApproverID,
		string(request.Status), request.Reason, request.NewHolderID,
		int64(request.NewOwnership), boolToInt(request.OffSiteReturn),
		timeToUnixMillis(request.CreatedAt), timeToUnixMillis(request.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert transfer request: %w", err)
	}
	return nil
}

// Get loads a transfer request by id.
func (s *transferStore) Get(ctx context.Context, id string) (domain.TransferRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, gauge_id, requester_id, approver_id, status, reason,
		        new_holder_id, new_ownership, off_site_return, created_at, resolved_at
		 FROM transfer_requests WHERE id = ?`, id)

	var request domain.TransferRequest
	var status string
	var newOwnership, offSite, createdAt, resolvedAt int64

	if err := row.Scan(
		&request.ID, &request.GaugeID, &request.RequesterID, &request.ApproverID,
		&status, &request.Reason, &request.NewHolderID, &newOwnership,
		&offSite, &createdAt, &resolvedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.TransferRequest{}, notFound("transfer request", id)
		}
		return domain.TransferRequest{}, fmt.Errorf("get transfer request: %w", err)
	}

	request.Status = domain.ApprovalStatus(status)
	request.NewOwnership = domain.Ownership(newOwnership)
	request.OffSiteReturn = offSite != 0
	request.CreatedAt = unixMillisToTime(createdAt)
	request.ResolvedAt = unixMillisToTime(resolvedAt)
	return request, nil
}

// Resolve atomically moves a pending request to accepted or rejected.
func (s *transferStore) Resolve(ctx context.Context, id string, next domain.ApprovalStatus, approverID string, at time.Time) error {
	return resolveApproval(ctx, s.db, "transfer_requests", id, next, approverID, at)
}

type unsealStore struct {
	db dbtx
}

// Insert appends a pending unseal request.
func (s *unsealStore) Insert(ctx context.Context, request domain.UnsealRequest) error {
	if strings.TrimSpace(request.ID) == "" {
		return fmt.Errorf("unseal request id is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unseal_requests (
		    id, gauge_id, set_id, requester_id, approver_id, status, reason,
		    created_at, resolved_at, confirmed_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		request.ID, request.GaugeID, request.SetID, request.RequesterID,
		request.ApproverID, string(request.Status), request.Reason,
		timeToUnixMillis(request.CreatedAt), timeToUnixMillis(request.ResolvedAt),
		timeToUnixMillis(request.ConfirmedAt),
	)
	if err != nil {
		return fmt.Errorf("insert unseal request: %w", err)
	}
	return nil
}

// Get loads an unseal request by id.
func (s *unsealStore) Get(ctx context.Context, id string) (domain.UnsealRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, gauge_id, set_id, requester_id, approver_id, status, reason,
		        created_at, resolved_at, confirmed_at
		 FROM unseal_requests WHERE id = ?`, id)

	var request domain.UnsealRequest
	var status string
	var createdAt, resolvedAt, confirmedAt int64

	if err := row.Scan(
		&request.ID, &request.GaugeID, &request.SetID, &request.RequesterID,
		&request.ApproverID, &status, &request.Reason,
		&createdAt, &resolvedAt, &confirmedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.UnsealRequest{}, notFound("unseal request", id)
		}
		return domain.UnsealRequest{}, fmt.Errorf("get unseal request: %w", err)
	}

	request.Status = domain.ApprovalStatus(status)
	request.CreatedAt = unixMillisToTime(createdAt)
	request.ResolvedAt = unixMillisToTime(resolvedAt)
	request.ConfirmedAt = unixMillisToTime(confirmedAt)
	return request, nil
}

// Resolve atomically moves a pending request to accepted or rejected.
func (s *unsealStore) Resolve(ctx context.Context, id string, next domain.ApprovalStatus, approverID string, at time.Time) error {
	return resolveApproval(ctx, s.db, "unseal_requests", id, next, approverID, at)
}

// Confirm stamps the physical unseal on an accepted request.
func (s *unsealStore) Confirm(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE unseal_requests SET confirmed_at = ?
		 WHERE id = ? AND status = ? AND confirmed_at = 0`,
		timeToUnixMillis(at), id, string(domain.ApprovalStatusAccepted))
	if err != nil {
		return fmt.Errorf("confirm unseal request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm unseal request: %w", err)
	}
	if affected == 0 {
		return apperrors.WithMetadata(apperrors.CodeApprovalNotAccepted,
			fmt.Sprintf("unseal request %s is not accepted or already confirmed", id),
			map[string]string{"request_id": id})
	}
	return nil
}

// resolveApproval is the shared pending -> accepted/rejected CAS for both
// approval tables.
func resolveApproval(ctx context.Context, db dbtx, table, id string, next domain.ApprovalStatus, approverID string, at time.Time) error {
	if next != domain.ApprovalStatusAccepted && next != domain.ApprovalStatusRejected {
		return fmt.Errorf("invalid approval resolution %q", next)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE `+table+` SET status = ?, approver_id = ?, resolved_at = ?
		 WHERE id = ? AND status = ?`,
		string(next), approverID, timeToUnixMillis(at), id,
		string(domain.ApprovalStatusPending))
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	if affected == 0 {
		return apperrors.WithMetadata(apperrors.CodeApprovalNotPending,
			fmt.Sprintf("request %s is not pending", id),
			map[string]string{"request_id": id})
	}
	return nil
}

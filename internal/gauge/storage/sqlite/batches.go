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

type batchStore struct {
	db dbtx
}

// Insert appends a new batch row.
func (s *batchStore) Insert(ctx context.Context, batch domain.CalibrationBatch) error {
	if strings.TrimSpace(batch.ID) == "" {
		return fmt.Errorf("batch id is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calibration_batches (
		    id, vendor, tracking_number, status, created_at, updated_at, sent_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.Vendor, batch.TrackingNumber, string(batch.Status),
		timeToUnixMillis(batch.CreatedAt), timeToUnixMillis(batch.UpdatedAt),
		timeToUnixMillis(batch.SentAt),
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// Get loads a batch with its member gauge ids.
func (s *batchStore) Get(ctx context.Context, id string) (domain.CalibrationBatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, vendor, tracking_number, status, created_at, updated_at, sent_at
		 FROM calibration_batches WHERE id = ?`, id)

	batch, err := scanBatch(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.CalibrationBatch{}, notFound("batch", id)
		}
		return domain.CalibrationBatch{}, fmt.Errorf("get batch: %w", err)
	}

	members, err := s.members(ctx, id)
	if err != nil {
		return domain.CalibrationBatch{}, err
	}
	batch.GaugeIDs = members
	return batch, nil
}

// AddMember links a gauge to a batch.
func (s *batchStore) AddMember(ctx context.Context, batchID, gaugeID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_members (batch_id, gauge_id) VALUES (?, ?)`,
		batchID, gaugeID)
	if err != nil {
		if isConstraintError(err) {
			return apperrors.WithMetadata(apperrors.CodeGaugeInOpenBatch,
				fmt.Sprintf("gauge %s is already a member of batch %s", gaugeID, batchID),
				map[string]string{"gauge_id": gaugeID, "batch_id": batchID})
		}
		return fmt.Errorf("add batch member: %w", err)
	}
	return nil
}

// RemoveMember unlinks a gauge from a batch.
func (s *batchStore) RemoveMember(ctx context.Context, batchID, gaugeID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM batch_members WHERE batch_id = ? AND gauge_id = ?`,
		batchID, gaugeID)
	if err != nil {
		return fmt.Errorf("remove batch member: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove batch member: %w", err)
	}
	if affected == 0 {
		return apperrors.WithMetadata(apperrors.CodeBatchMemberMissing,
			fmt.Sprintf("gauge %s is not a member of batch %s", gaugeID, batchID),
			map[string]string{"gauge_id": gaugeID, "batch_id": batchID})
	}
	return nil
}

// OpenBatchByGauge returns the open batch holding the gauge, if any.
func (s *batchStore) OpenBatchByGauge(ctx context.Context, gaugeID string) (domain.CalibrationBatch, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT b.id, b.vendor, b.tracking_number, b.status, b.created_at, b.updated_at, b.sent_at
		 FROM calibration_batches b
		 JOIN batch_members m ON m.batch_id = b.id
		 WHERE m.gauge_id = ? AND b.status IN ('draft', 'sent', 'partially_received')`,
		gaugeID)

	batch, err := scanBatch(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.CalibrationBatch{}, false, nil
		}
		return domain.CalibrationBatch{}, false, fmt.Errorf("open batch by gauge: %w", err)
	}

	members, err := s.members(ctx, batch.ID)
	if err != nil {
		return domain.CalibrationBatch{}, false, err
	}
	batch.GaugeIDs = members
	return batch, true, nil
}

// CompareAndSetStatus atomically advances the batch lifecycle.
func (s *batchStore) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.BatchStatus, sentAt time.Time) error {
	sets := "status = ?, updated_at = ?"
	params := []any{string(next), nowMillis()}
	if !sentAt.IsZero() {
		sets += ", sent_at = ?"
		params = append(params, timeToUnixMillis(sentAt))
	}
	params = append(params, id, string(expected))

	result, err := s.db.ExecContext(ctx,
		`UPDATE calibration_batches SET `+sets+` WHERE id = ? AND status = ?`,
		params...)
	if err != nil {
		return fmt.Errorf("compare-and-set batch status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("compare-and-set batch status: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var found int
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM calibration_batches WHERE id = ?`, id)
	if err := row.Scan(&found); err != nil {
		if err == sql.ErrNoRows {
			return notFound("batch", id)
		}
		return fmt.Errorf("compare-and-set batch status: %w", err)
	}
	return apperrors.WithMetadata(apperrors.CodeStaleState,
		fmt.Sprintf("batch %s is no longer %s", id, expected),
		map[string]string{"batch_id": id, "expected": string(expected)})
}

func (s *batchStore) members(ctx context.Context, batchID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT gauge_id FROM batch_members WHERE batch_id = ? ORDER BY gauge_id`,
		batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var gaugeID string
		if err := rows.Scan(&gaugeID); err != nil {
			return nil, fmt.Errorf("scan batch member: %w", err)
		}
		members = append(members, gaugeID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batch members: %w", err)
	}
	return members, nil
}

func scanBatch(row rowScanner) (domain.CalibrationBatch, error) {
	var batch domain.CalibrationBatch
	var status string
	var createdAt, updatedAt, sentAt int64

	if err := row.Scan(
		&batch.ID, &batch.Vendor, &batch.TrackingNumber, &status,
		&createdAt, &updatedAt, &sentAt,
	); err != nil {
		return domain.CalibrationBatch{}, err
	}

	batch.Status = domain.BatchStatus(status)
	batch.CreatedAt = unixMillisToTime(createdAt)
	batch.UpdatedAt = unixMillisToTime(updatedAt)
	batch.SentAt = unixMillisToTime(sentAt)
	return batch, nil
}

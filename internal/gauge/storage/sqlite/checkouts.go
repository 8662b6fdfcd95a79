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

type checkoutStore struct {
	db dbtx
}

const checkoutColumns = `id, gauge_id, holder_id, checked_out_at,
	expected_return, closed_at, condition_at_return`

// Insert appends an open checkout record. The partial unique index on open
// records turns a second concurrent insert into a constraint failure.
func (s *checkoutStore) Insert(ctx context.Context, record domain.CheckoutRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("checkout record id is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkout_records (
		    id, gauge_id, holder_id, checked_out_at, expected_return,
		    closed_at, condition_at_return
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.GaugeID, record.HolderID,
		timeToUnixMillis(record.CheckedOutAt),
		timeToUnixMillis(record.ExpectedReturn),
		timeToUnixMillis(record.ClosedAt), record.ConditionAtReturn,
	)
	if err != nil {
		if isConstraintError(err) {
			return apperrors.WithMetadata(apperrors.CodeCheckoutAlreadyOpen,
				fmt.Sprintf("gauge %s already has an open checkout", record.GaugeID),
				map[string]string{"gauge_id": record.GaugeID})
		}
		return fmt.Errorf("insert checkout record: %w", err)
	}
	return nil
}

// GetOpenByGauge loads the single open record for a gauge.
func (s *checkoutStore) GetOpenByGauge(ctx context.Context, gaugeID string) (domain.CheckoutRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+checkoutColumns+` FROM checkout_records
		 WHERE gauge_id = ? AND closed_at = 0`, gaugeID)

	record, err := scanCheckout(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.CheckoutRecord{}, apperrors.WithMetadata(apperrors.CodeCheckoutNotOpen,
				fmt.Sprintf("gauge %s has no open checkout", gaugeID),
				map[string]string{"gauge_id": gaugeID})
		}
		return domain.CheckoutRecord{}, fmt.Errorf("get open checkout: %w", err)
	}
	return record, nil
}

// Close stamps a record closed. Closing an already-closed record is a stale
// write and fails.
func (s *checkoutStore) Close(ctx context.Context, recordID, condition string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE checkout_records SET closed_at = ?, condition_at_return = ?
		 WHERE id = ? AND closed_at = 0`,
		timeToUnixMillis(at), strings.TrimSpace(condition), recordID)
	if err != nil {
		return fmt.Errorf("close checkout record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close checkout record: %w", err)
	}
	if affected == 0 {
		return apperrors.WithMetadata(apperrors.CodeCheckoutNotOpen,
			fmt.Sprintf("checkout record %s is not open", recordID),
			map[string]string{"record_id": recordID})
	}
	return nil
}

// ListByGauge returns the full checkout history for a gauge, newest first.
func (s *checkoutStore) ListByGauge(ctx context.Context, gaugeID string) ([]domain.CheckoutRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+checkoutColumns+` FROM checkout_records
		 WHERE gauge_id = ? ORDER BY checked_out_at DESC`, gaugeID)
	if err != nil {
		return nil, fmt.Errorf("list checkout records: %w", err)
	}
	defer rows.Close()

	var records []domain.CheckoutRecord
	for rows.Next() {
		record, err := scanCheckout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkout record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checkout records: %w", err)
	}
	return records, nil
}

func scanCheckout(row rowScanner) (domain.CheckoutRecord, error) {
	var record domain.CheckoutRecord
	var checkedOutAt, expectedReturn, closedAt int64

	if err := row.Scan(
		&record.ID, &record.GaugeID, &record.HolderID,
		&checkedOutAt, &expectedReturn, &closedAt, &record.ConditionAtReturn,
	); err != nil {
		return domain.CheckoutRecord{}, err
	}

	record.CheckedOutAt = unixMillisToTime(checkedOutAt)
	record.ExpectedReturn = unixMillisToTime(expectedReturn)
	record.ClosedAt = unixMillisToTime(closedAt)
	return record, nil
}

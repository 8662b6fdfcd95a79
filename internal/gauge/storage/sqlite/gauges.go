package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage"
)

type gaugeStore struct {
	db dbtx
}

const gaugeColumns = `id, tag, class, thread_size, thread_class, role, status,
	sealed, spare, companion_id, set_id, calibration_due_at,
	calibration_interval_days, location, holder_id, ownership, version,
	created_at, updated_at`

// Put upserts a full gauge row. Workflows use CompareAndSetStatus for status
// changes; Put exists for registration and administrative corrections.
func (s *gaugeStore) Put(ctx context.Context, g domain.Gauge) error {
	if strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("gauge id is required")
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO gauges (
		    id, tag, class, thread_size, thread_class, role, status,
		    sealed, spare, companion_id, set_id, calibration_due_at,
		    calibration_interval_days, location, holder_id, ownership, version,
		    created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		    tag = excluded.tag,
		    class = excluded.class,
		    thread_size = excluded.thread_size,
		    thread_class = excluded.thread_class,
		    role = excluded.role,
		    status = excluded.status,
		    sealed = excluded.sealed,
		    spare = excluded.spare,
		    companion_id = excluded.companion_id,
		    set_id = excluded.set_id,
		    calibration_due_at = excluded.calibration_due_at,
		    calibration_interval_days = excluded.calibration_interval_days,
		    location = excluded.location,
		    holder_id = excluded.holder_id,
		    ownership = excluded.ownership,
		    version = excluded.version,
		    updated_at = excluded.updated_at`,
		g.ID, g.Tag, int64(g.Class), g.Spec.ThreadSize, g.Spec.ThreadClass,
		int64(g.Spec.Role), string(g.Status), boolToInt(g.Sealed),
		boolToInt(g.Spare), g.CompanionID, g.SetID,
		timeToUnixMillis(g.CalibrationDueAt), int64(g.CalibrationIntervalDays),
		g.Location, g.HolderID, int64(g.Ownership), g.Version,
		timeToUnixMillis(g.CreatedAt), timeToUnixMillis(g.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put gauge: %w", err)
	}
	return nil
}

// Get loads a gauge by id.
func (s *gaugeStore) Get(ctx context.Context, id string) (domain.Gauge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+gaugeColumns+` FROM gauges WHERE id = ?`, id)
	g, err := scanGauge(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Gauge{}, notFound("gauge", id)
		}
		return domain.Gauge{}, fmt.Errorf("get gauge: %w", err)
	}
	return g, nil
}

// GetByTag loads a gauge by its business identifier.
func (s *gaugeStore) GetByTag(ctx context.Context, tag string) (domain.Gauge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+gaugeColumns+` FROM gauges WHERE tag = ?`, tag)
	g, err := scanGauge(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Gauge{}, notFound("gauge", tag)
		}
		return domain.Gauge{}, fmt.Errorf("get gauge by tag: %w", err)
	}
	return g, nil
}

// List returns a page of gauges matching the query, ordered by tag.
func (s *gaugeStore) List(ctx context.Context, query storage.GaugeQuery) (storage.GaugePage, error) {
	var clauses []string
	var params []any

	if len(query.Statuses) > 0 {
		placeholders := make([]string, 0, len(query.Statuses))
		for _, status := range query.Statuses {
			placeholders = append(placeholders, "?")
			params = append(params, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if query.Class != domain.EquipmentClassUnspecified {
		clauses = append(clauses, "class = ?")
		params = append(params, int64(query.Class))
	}
	if query.Location != "" {
		clauses = append(clauses, "location = ?")
		params = append(params, query.Location)
	}
	if query.HolderID != "" {
		clauses = append(clauses, "holder_id = ?")
		params = append(params, query.HolderID)
	}
	if query.SetID != "" {
		clauses = append(clauses, "set_id = ?")
		params = append(params, query.SetID)
	}
	if query.OverdueOnly {
		clauses = append(clauses, "calibration_due_at > 0 AND calibration_due_at < ?")
		params = append(params, timeToUnixMillis(query.OverdueAt))
	}
	if query.SpareOnly {
		clauses = append(clauses, "spare = 1")
	}
	if query.PageToken != "" {
		clauses = append(clauses, "tag > ?")
		params = append(params, query.PageToken)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	params = append(params, pageSize+1)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+gaugeColumns+` FROM gauges`+where+` ORDER BY tag LIMIT ?`,
		params...)
	if err != nil {
		return storage.GaugePage{}, fmt.Errorf("list gauges: %w", err)
	}
	defer rows.Close()

	var gauges []domain.Gauge
	for rows.Next() {
		g, err := scanGauge(rows)
		if err != nil {
			return storage.GaugePage{}, fmt.Errorf("scan gauge: %w", err)
		}
		gauges = append(gauges, g)
	}
	if err := rows.Err(); err != nil {
		return storage.GaugePage{}, fmt.Errorf("list gauges: %w", err)
	}

	page := storage.GaugePage{Gauges: gauges}
	if len(gauges) > pageSize {
		page.Gauges = gauges[:pageSize]
		page.NextPageToken = gauges[pageSize-1].Tag
	}
	return page, nil
}

// ListBySet returns every member of a set, current or retired.
func (s *gaugeStore) ListBySet(ctx context.Context, setID string) ([]domain.Gauge, error) {
	if strings.TrimSpace(setID) == "" {
		return nil, fmt.Errorf("set id is required")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+gaugeColumns+` FROM gauges WHERE set_id = ? ORDER BY tag`, setID)
	if err != nil {
		return nil, fmt.Errorf("list gauges by set: %w", err)
	}
	defer rows.Close()

	var gauges []domain.Gauge
	for rows.Next() {
		g, err := scanGauge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gauge: %w", err)
		}
		gauges = append(gauges, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list gauges by set: %w", err)
	}
	return gauges, nil
}

// CompareAndSetStatus atomically moves the gauge between statuses, applying
// extra side-writes in the same UPDATE. The expected-status predicate in the
// WHERE clause is what serializes concurrent writers.
func (s *gaugeStore) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.Status, extra storage.Extra) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("gauge id is required")
	}

	sets := []string{"status = ?", "version = version + 1", "updated_at = ?"}
	params := []any{string(next), nowMillis()}

	if extra.HolderID != nil {
		sets = append(sets, "holder_id = ?")
		params = append(params, *extra.HolderID)
	}
	if extra.Location != nil {
		sets = append(sets, "location = ?")
		params = append(params, *extra.Location)
	}
	if extra.CalibrationDueAt != nil {
		sets = append(sets, "calibration_due_at = ?")
		params = append(params, timeToUnixMillis(*extra.CalibrationDueAt))
	}
	if extra.Sealed != nil {
		sets = append(sets, "sealed = ?")
		params = append(params, boolToInt(*extra.Sealed))
	}
	if extra.Spare != nil {
		sets = append(sets, "spare = ?")
		params = append(params, boolToInt(*extra.Spare))
	}
	if extra.CompanionID != nil {
		sets = append(sets, "companion_id = ?")
		params = append(params, *extra.CompanionID)
	}
	if extra.SetID != nil {
		sets = append(sets, "set_id = ?")
		params = append(params, *extra.SetID)
	}
	if extra.Ownership != nil {
		sets = append(sets, "ownership = ?")
		params = append(params, int64(*extra.Ownership))
	}

	params = append(params, id, string(expected))

	result, err := s.db.ExecContext(ctx,
		`UPDATE gauges SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`,
		params...)
	if err != nil {
		return fmt.Errorf("compare-and-set gauge status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("compare-and-set gauge status: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Distinguish a missing row from a stale status.
	var found int
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM gauges WHERE id = ?`, id)
	if err := row.Scan(&found); err != nil {
		if err == sql.ErrNoRows {
			return notFound("gauge", id)
		}
		return fmt.Errorf("compare-and-set gauge status: %w", err)
	}
	return staleState(id, string(expected))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGauge(row rowScanner) (domain.Gauge, error) {
	var g domain.Gauge
	var class, role, ownership, sealed, spare int64
	var status string
	var dueAt, createdAt, updatedAt int64
	var intervalDays int64

	if err := row.Scan(
		&g.ID, &g.Tag, &class, &g.Spec.ThreadSize, &g.Spec.ThreadClass,
		&role, &status, &sealed, &spare, &g.CompanionID, &g.SetID,
		&dueAt, &intervalDays, &g.Location, &g.HolderID, &ownership,
		&g.Version, &createdAt, &updatedAt,
	); err != nil {
		return domain.Gauge{}, err
	}

	g.Class = domain.EquipmentClass(class)
	g.Spec.Role = domain.Role(role)
	g.Status = domain.Status(status)
	g.Sealed = sealed != 0
	g.Spare = spare != 0
	g.CalibrationDueAt = unixMillisToTime(dueAt)
	g.CalibrationIntervalDays = int(intervalDays)
	g.Ownership = domain.Ownership(ownership)
	g.CreatedAt = unixMillisToTime(createdAt)
	g.UpdatedAt = unixMillisToTime(updatedAt)
	return g, nil
}

package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
)

type pairingHistoryStore struct {
	db dbtx
}

// Append writes one immutable pairing history row.
func (s *pairingHistoryStore) Append(ctx context.Context, event domain.PairingEvent) error {
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("pairing event id is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pairing_history (id, kind, set_id, go_id, nogo_id, actor_id, reason, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.Kind), event.SetID, event.GoID, event.NoGoID,
		event.ActorID, event.Reason, timeToUnixMillis(event.At),
	)
	if err != nil {
		return fmt.Errorf("append pairing event: %w", err)
	}
	return nil
}

// ListBySet returns the pairing history for a set in chronological order.
func (s *pairingHistoryStore) ListBySet(ctx context.Context, setID string) ([]domain.PairingEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, set_id, go_id, nogo_id, actor_id, reason, at
		 FROM pairing_history WHERE set_id = ? ORDER BY at, id`, setID)
	if err != nil {
		return nil, fmt.Errorf("list pairing history: %w", err)
	}
	defer rows.Close()

	var events []domain.PairingEvent
	for rows.Next() {
		var event domain.PairingEvent
		var kind string
		var at int64
		if err := rows.Scan(
			&event.ID, &kind, &event.SetID, &event.GoID, &event.NoGoID,
			&event.ActorID, &event.Reason, &at,
		); err != nil {
			return nil, fmt.Errorf("scan pairing event: %w", err)
		}
		event.Kind = domain.PairingEventKind(kind)
		event.At = unixMillisToTime(at)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pairing history: %w", err)
	}
	return events, nil
}

type auditStore struct {
	db dbtx
}

// Append writes one immutable audit row.
func (s *auditStore) Append(ctx context.Context, entry domain.AuditEntry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("audit entry id is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, operation, gauge_id, actor_id, from_status, to_status, reason, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Operation, entry.GaugeID, entry.ActorID,
		string(entry.FromStatus), string(entry.ToStatus), entry.Reason,
		timeToUnixMillis(entry.At),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByGauge returns the audit trail for a gauge in chronological order.
func (s *auditStore) ListByGauge(ctx context.Context, gaugeID string) ([]domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation, gauge_id, actor_id, from_status, to_status, reason, at
		 FROM audit_log WHERE gauge_id = ? ORDER BY at, id`, gaugeID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var fromStatus, toStatus string
		var at int64
		if err := rows.Scan(
			&entry.ID, &entry.Operation, &entry.GaugeID, &entry.ActorID,
			&fromStatus, &toStatus, &entry.Reason, &at,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.FromStatus = domain.Status(fromStatus)
		entry.ToStatus = domain.Status(toStatus)
		entry.At = unixMillisToTime(at)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

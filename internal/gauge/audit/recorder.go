// Package audit records gauge lifecycle transitions to the immutable audit
// log. Every status change carries who fired it, the from/to statuses, and a
// reason for forced or denied paths.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage"
	"github.com/kellyenterprises/gaugehub/internal/platform/id"
)

// Recorder appends transition entries to an audit store.
type Recorder struct {
	store       storage.AuditStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewRecorder creates a recorder writing to the given store.
func NewRecorder(store storage.AuditStore) *Recorder {
	return &Recorder{store: store, clock: time.Now, idGenerator: id.NewID}
}

// WithClock replaces the recorder clock. Used by tests.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

// Record appends one entry. It is a no-op when the recorder or store is nil.
func (r *Recorder) Record(ctx context.Context, entry domain.AuditEntry) error {
	if r == nil || r.store == nil {
		return nil
	}
	if entry.ID == "" {
		generated, err := r.idGenerator()
		if err != nil {
			return fmt.Errorf("generate audit id: %w", err)
		}
		entry.ID = generated
	}
	if entry.At.IsZero() {
		entry.At = r.clock().UTC()
	}
	return r.store.Append(ctx, entry)
}

// Transition is a convenience wrapper building an entry from its parts.
func (r *Recorder) Transition(ctx context.Context, operation, gaugeID, actorID string, from, to domain.Status, reason string) error {
	return r.Record(ctx, domain.AuditEntry{
		Operation:  operation,
		GaugeID:    gaugeID,
		ActorID:    actorID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
	})
}

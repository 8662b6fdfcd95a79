package domain

import "time"

// AuditEntry is one immutable record of a state transition. Entries reference
// the originating operation name and are never updated or deleted.
type AuditEntry struct {
	ID         string
	Operation  string
	GaugeID    string
	ActorID    string
	FromStatus Status
	ToStatus   Status
	Reason     string
	At         time.Time
}

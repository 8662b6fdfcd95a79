package domain

import "time"

// PairingEventKind labels an entry in the append-only pairing history.
type PairingEventKind string

const (
	PairingEventPair    PairingEventKind = "pair"
	PairingEventUnpair  PairingEventKind = "unpair"
	PairingEventReplace PairingEventKind = "replace"
	PairingEventRetire  PairingEventKind = "retire"
)

// PairingEvent records one pair/unpair/replace/retire action. History rows
// are immutable; the set id survives retirement for historical lookup.
type PairingEvent struct {
	ID      string
	Kind    PairingEventKind
	SetID   string
	GoID    string
	NoGoID  string
	ActorID string
	Reason  string
	At      time.Time
}

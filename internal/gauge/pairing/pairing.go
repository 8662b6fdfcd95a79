// Package pairing manages GO/NO-GO set membership. Pairing is symmetric by
// invariant: every mutation runs in one transaction and re-reads both rows
// afterwards, rolling back if either side fails to point at the other.
package pairing

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/kellyenterprises/gaugehub/internal/errors"
	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/engine"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage"
	"github.com/kellyenterprises/gaugehub/internal/platform/id"
)

// Manager coordinates set pairing operations.
type Manager struct {
	store       storage.Store
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewManager creates a pairing manager over the given store.
func NewManager(store storage.Store) *Manager {
	return &Manager{store: store, clock: time.Now, idGenerator: id.NewID}
}

// WithClock replaces the manager clock. Used by tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// PairSpares links two spare gauges into a GO/NO-GO set. Both must be of a
// pairing class, carry complementary specs, share seal state, and be
// unpaired spares.
func (m *Manager) PairSpares(ctx context.Context, goID, noGoID, actorID string) (string, error) {
	setID, err := m.idGenerator()
	if err != nil {
		return "", fmt.Errorf("generate set id: %w", err)
	}
	now := m.clock().UTC()

	err = m.store.WithTx(ctx, func(stores storage.Stores) error {
		goGauge, err := stores.Gauges().Get(ctx, goID)
		if err != nil {
			return err
		}
		noGoGauge, err := stores.Gauges().Get(ctx, noGoID)
		if err != nil {
			return err
		}

		if err := validatePairable(goGauge, noGoGauge); err != nil {
			return err
		}

		if err := stores.Gauges().CompareAndSetStatus(ctx, goGauge.ID, goGauge.Status, goGauge.Status, storage.Extra{
			CompanionID: ptr(noGoGauge.ID),
			SetID:       ptr(setID),
			Spare:       ptr(false),
		}); err != nil {
			return err
		}
		if err := stores.Gauges().CompareAndSetStatus(ctx, noGoGauge.ID, noGoGauge.Status, noGoGauge.Status, storage.Extra{
			CompanionID: ptr(goGauge.ID),
			SetID:       ptr(setID),
			Spare:       ptr(false),
		}); err != nil {
			return err
		}

		if err := m.appendEvent(ctx, stores, domain.PairingEvent{
			Kind:    domain.PairingEventPair,
			SetID:   setID,
			GoID:    goGauge.ID,
			NoGoID:  noGoGauge.ID,
			ActorID: actorID,
			At:      now,
		}); err != nil {
			return err
		}

		return verifySymmetry(ctx, stores, setID)
	})
	if err != nil {
		return "", err
	}
	return setID, nil
}

// Unpair dissolves a set: both members become unpaired spares. The set id is
// cleared from the gauges but survives in the pairing history.
func (m *Manager) Unpair(ctx context.Context, gaugeID, actorID, reason string) error {
	now := m.clock().UTC()

	return m.store.WithTx(ctx, func(stores storage.Stores) error {
		g, err := stores.Gauges().Get(ctx, gaugeID)
		if err != nil {
			return err
		}
		if !g.Paired() {
			return notPaired(g.ID)
		}
		companion, err := stores.Gauges().Get(ctx, g.CompanionID)
		if err != nil {
			return err
		}
		setID := g.SetID

		for _, member := range []domain.Gauge{g, companion} {
			if err := stores.Gauges().CompareAndSetStatus(ctx, member.ID, member.Status, member.Status, storage.Extra{
				CompanionID: ptr(""),
				SetID:       ptr(""),
				Spare:       ptr(true),
			}); err != nil {
				return err
			}
		}

		goID, noGoID := orderByRole(g, companion)
		return m.appendEvent(ctx, stores, domain.PairingEvent{
			Kind:    domain.PairingEventUnpair,
			SetID:   setID,
			GoID:    goID,
			NoGoID:  noGoID,
			ActorID: actorID,
			Reason:  reason,
			At:      now,
		})
	})
}

// ReplaceCompanion swaps one member of a set for a spare in a single
// three-way transaction: the old companion leaves as a spare, the
// replacement joins under the same set id.
func (m *Manager) ReplaceCompanion(ctx context.Context, gaugeID, replacementID, actorID, reason string) error {
	now := m.clock().UTC()

	return m.store.WithTx(ctx, func(stores storage.Stores) error {
		g, err := stores.Gauges().Get(ctx, gaugeID)
		if err != nil {
			return err
		}
		if !g.Paired() {
			return notPaired(g.ID)
		}
		old, err := stores.Gauges().Get(ctx, g.CompanionID)
		if err != nil {
			return err
		}
		replacement, err := stores.Gauges().Get(ctx, replacementID)
		if err != nil {
			return err
		}

		if err := validateJoin(g, replacement); err != nil {
			return err
		}

		setID := g.SetID
		if err := stores.Gauges().CompareAndSetStatus(ctx, old.ID, old.Status, old.Status, storage.Extra{
			CompanionID: ptr(""),
			SetID:       ptr(""),
			Spare:       ptr(true),
		}); err != nil {
			return err
		}
		if err := stores.Gauges().CompareAndSetStatus(ctx, g.ID, g.Status, g.Status, storage.Extra{
			CompanionID: ptr(replacement.ID),
		}); err != nil {
			return err
		}
		if err := stores.Gauges().CompareAndSetStatus(ctx, replacement.ID, replacement.Status, replacement.Status, storage.Extra{
			CompanionID: ptr(g.ID),
			SetID:       ptr(setID),
			Spare:       ptr(false),
		}); err != nil {
			return err
		}

		goID, noGoID := orderByRole(g, replacement)
		if err := m.appendEvent(ctx, stores, domain.PairingEvent{
			Kind:    domain.PairingEventReplace,
			SetID:   setID,
			GoID:    goID,
			NoGoID:  noGoID,
			ActorID: actorID,
			Reason:  reason,
			At:      now,
		}); err != nil {
			return err
		}

		return verifySymmetry(ctx, stores, setID)
	})
}

// RetireSet soft-retires both members. Each member takes the retire edge, so
// a set with a checked-out or out-for-calibration member cannot retire.
// Companion links and the set id stay on the rows for historical lookup.
func (m *Manager) RetireSet(ctx context.Context, setID, actorID, reason string) error {
	now := m.clock().UTC()

	return m.store.WithTx(ctx, func(stores storage.Stores) error {
		members, err := stores.Gauges().ListBySet(ctx, setID)
		if err != nil {
			return err
		}
		if len(members) != 2 {
			return asymmetry(setID, fmt.Sprintf("set has %d members", len(members)))
		}

		for _, member := range members {
			next, err := engine.Transition(member, engine.Request{Event: engine.EventRetire, At: now})
			if err != nil {
				return err
			}
			if err := stores.Gauges().CompareAndSetStatus(ctx, member.ID, member.Status, next, storage.Extra{}); err != nil {
				return err
			}
		}

		goID, noGoID := orderByRole(members[0], members[1])
		return m.appendEvent(ctx, stores, domain.PairingEvent{
			Kind:    domain.PairingEventRetire,
			SetID:   setID,
			GoID:    goID,
			NoGoID:  noGoID,
			ActorID: actorID,
			Reason:  reason,
			At:      now,
		})
	})
}

// History returns the append-only pairing history for a set.
func (m *Manager) History(ctx context.Context, setID string) ([]domain.PairingEvent, error) {
	return m.store.PairingHistory().ListBySet(ctx, setID)
}

func (m *Manager) appendEvent(ctx context.Context, stores storage.Stores, event domain.PairingEvent) error {
	eventID, err := m.idGenerator()
	if err != nil {
		return fmt.Errorf("generate pairing event id: %w", err)
	}
	event.ID = eventID
	return stores.PairingHistory().Append(ctx, event)
}

func validatePairable(a, b domain.Gauge) error {
	if !a.Class.Pairs() {
		return apperrors.WithMetadata(apperrors.CodeClassNeverPairs,
			fmt.Sprintf("gauge %s class does not form sets", a.ID),
			map[string]string{"gauge_id": a.ID})
	}
	if a.Class != b.Class {
		return specMismatch(a.ID, b.ID)
	}
	for _, g := range []domain.Gauge{a, b} {
		if g.Paired() {
			return apperrors.WithMetadata(apperrors.CodeAlreadyPaired,
				fmt.Sprintf("gauge %s is already paired", g.ID),
				map[string]string{"gauge_id": g.ID})
		}
		if !g.Spare {
			return apperrors.WithMetadata(apperrors.CodeNotSpare,
				fmt.Sprintf("gauge %s is not a spare", g.ID),
				map[string]string{"gauge_id": g.ID})
		}
	}
	if !a.Spec.Matches(b.Spec) {
		return specMismatch(a.ID, b.ID)
	}
	if a.Sealed != b.Sealed {
		return apperrors.WithMetadata(apperrors.CodeSealMismatch,
			"set members must share seal state",
			map[string]string{"go_id": a.ID, "no_go_id": b.ID})
	}
	return nil
}

// validateJoin checks an incoming spare against the set member it will
// companion. The member keeps its pairing; only the incoming side must be an
// unpaired spare.
func validateJoin(member, incoming domain.Gauge) error {
	if incoming.Paired() {
		return apperrors.WithMetadata(apperrors.CodeAlreadyPaired,
			fmt.Sprintf("gauge %s is already paired", incoming.ID),
			map[string]string{"gauge_id": incoming.ID})
	}
	if !incoming.Spare {
		return apperrors.WithMetadata(apperrors.CodeNotSpare,
			fmt.Sprintf("gauge %s is not a spare", incoming.ID),
			map[string]string{"gauge_id": incoming.ID})
	}
	if member.Class != incoming.Class || !member.Spec.Matches(incoming.Spec) {
		return specMismatch(member.ID, incoming.ID)
	}
	if member.Sealed != incoming.Sealed {
		return apperrors.WithMetadata(apperrors.CodeSealMismatch,
			"set members must share seal state",
			map[string]string{"go_id": member.ID, "no_go_id": incoming.ID})
	}
	return nil
}

// verifySymmetry re-reads the set after mutation and fails the transaction
// when the rows do not point at each other.
func verifySymmetry(ctx context.Context, stores storage.Stores, setID string) error {
	members, err := stores.Gauges().ListBySet(ctx, setID)
	if err != nil {
		return err
	}
	if len(members) != 2 {
		return asymmetry(setID, fmt.Sprintf("set has %d members", len(members)))
	}
	a, b := members[0], members[1]
	if a.CompanionID != b.ID || b.CompanionID != a.ID {
		return asymmetry(setID, "companion links do not point at each other")
	}
	if !a.Spec.Matches(b.Spec) {
		return asymmetry(setID, "member specs are not complementary")
	}
	return nil
}

func orderByRole(a, b domain.Gauge) (goID, noGoID string) {
	if a.Spec.Role == domain.RoleNoGo {
		return b.ID, a.ID
	}
	return a.ID, b.ID
}

func specMismatch(aID, bID string) error {
	return apperrors.WithMetadata(apperrors.CodeSpecMismatch,
		"gauges do not form a complementary GO/NO-GO pair",
		map[string]string{"go_id": aID, "no_go_id": bID})
}

func notPaired(gaugeID string) error {
	return apperrors.WithMetadata(apperrors.CodeNotPaired,
		fmt.Sprintf("gauge %s is not paired", gaugeID),
		map[string]string{"gauge_id": gaugeID})
}

func asymmetry(setID, detail string) error {
	return apperrors.WithMetadata(apperrors.CodePairingAsymmetry,
		fmt.Sprintf("set %s failed symmetry check: %s", setID, detail),
		map[string]string{"set_id": setID})
}

func ptr[T any](v T) *T {
	return &v
}

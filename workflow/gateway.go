package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Snapshot is an immutable view of a workflow entity's transition-relevant
// state. The gateway never mutates a snapshot in place; Apply returns a new
// one and the store persists it under an optimistic version check.
type Snapshot struct {
	Kind     Kind
	ID       string
	Status   Status
	Version  int
	Deadline *time.Time
	// Milestones holds the stamped milestone timestamps, keyed by the names
	// from MilestoneFor. A key present here is never overwritten.
	Milestones map[string]time.Time
	// Fields carries transition payload columns (expert response text,
	// cancellation reason, consultation notes) applied by the repositories.
	Fields map[string]any
}

// Store is the storage collaborator the gateway writes through. Load returns
// ErrNotFound for an unknown id; Save returns ErrConflict when the row's
// version no longer equals expectedVersion.
type Store interface {
	Load(ctx context.Context, kind Kind, id string) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot, expectedVersion int) (Snapshot, error)
}

// Gateway is the single entry point through which all status changes flow.
type Gateway struct {
	store Store
	log   zerolog.Logger
}

func NewGateway(store Store, log zerolog.Logger) *Gateway {
	return &Gateway{store: store, log: log}
}

// Transition moves the entity to target, stamping the edge's milestone with
// now and merging payload fields. It fails with ErrNotFound,
// ErrIllegalTransition or ErrConflict; storage failures surface as
// ErrStorageTimeout / ErrStorageUnavailable from the store.
func (g *Gateway) Transition(ctx context.Context, kind Kind, id string, target Status, now time.Time, payload map[string]any) (Snapshot, error) {
	snap, err := g.store.Load(ctx, kind, id)
	if err != nil {
		return Snapshot{}, err
	}

	next, err := Apply(snap, target, now, payload)
	if err != nil {
		return Snapshot{}, err
	}

	saved, err := g.store.Save(ctx, next, snap.Version)
	if err != nil {
		return Snapshot{}, err
	}

	g.log.Info().
		Str("kind", string(kind)).
		Str("id", id).
		Str("from", string(snap.Status)).
		Str("to", string(target)).
		Time("at", now).
		Msg("status transition")

	return saved, nil
}

// Apply returns a new snapshot with the transition to target applied. It is
// pure: legality comes from the status model, the milestone for the edge is
// stamped with now only if not already set, and payload fields are merged
// over a copy. The version is untouched; the store bumps it on save.
func Apply(snap Snapshot, target Status, now time.Time, payload map[string]any) (Snapshot, error) {
	if !CanTransition(snap.Kind, snap.Status, target) {
		return Snapshot{}, fmt.Errorf("%w: %s %s -> %s", ErrIllegalTransition, snap.Kind, snap.Status, target)
	}

	next := snap
	next.Status = target

	next.Milestones = make(map[string]time.Time, len(snap.Milestones)+1)
	for k, v := range snap.Milestones {
		next.Milestones[k] = v
	}
	if key, ok := MilestoneFor(snap.Kind, target); ok {
		if _, set := next.Milestones[key]; !set {
			next.Milestones[key] = now
		}
	}

	next.Fields = make(map[string]any, len(snap.Fields)+len(payload))
	for k, v := range snap.Fields {
		next.Fields[k] = v
	}
	for k, v := range payload {
		next.Fields[k] = v
	}

	return next, nil
}

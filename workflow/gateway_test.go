package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeStore struct {
	snapshots map[string]Snapshot
	loadErr   error
	saveErr   error
	saves     int
}

func newFakeStore(snaps ...Snapshot) *fakeStore {
	s := &fakeStore{snapshots: map[string]Snapshot{}}
	for _, snap := range snaps {
		s.snapshots[snap.ID] = snap
	}
	return s
}

func (s *fakeStore) Load(ctx context.Context, kind Kind, id string) (Snapshot, error) {
	if s.loadErr != nil {
		return Snapshot{}, s.loadErr
	}
	snap, ok := s.snapshots[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (s *fakeStore) Save(ctx context.Context, snap Snapshot, expectedVersion int) (Snapshot, error) {
	s.saves++
	if s.saveErr != nil {
		return Snapshot{}, s.saveErr
	}
	current := s.snapshots[snap.ID]
	if current.Version != expectedVersion {
		return Snapshot{}, ErrConflict
	}
	snap.Version = expectedVersion + 1
	s.snapshots[snap.ID] = snap
	return snap, nil
}

func pendingRequest(id string) Snapshot {
	return Snapshot{
		Kind:    KindExpertiseRequest,
		ID:      id,
		Status:  StatusPending,
		Version: 1,
	}
}

func TestGatewayTransition_Success(t *testing.T) {
	store := newFakeStore(pendingRequest("req-1"))
	gw := NewGateway(store, zerolog.Nop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	got, err := gw.Transition(context.Background(), KindExpertiseRequest, "req-1", StatusAssigned, now, map[string]any{"expert_doctor_id": "doc-9"})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.Status != StatusAssigned {
		t.Errorf("status = %s, want %s", got.Status, StatusAssigned)
	}
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}
	if stamped := got.Milestones["assigned_at"]; !stamped.Equal(now) {
		t.Errorf("assigned_at = %v, want %v", stamped, now)
	}
	if got.Fields["expert_doctor_id"] != "doc-9" {
		t.Errorf("payload field not applied: %v", got.Fields)
	}
}

func TestGatewayTransition_NotFound(t *testing.T) {
	gw := NewGateway(newFakeStore(), zerolog.Nop())

	_, err := gw.Transition(context.Background(), KindExpertiseRequest, "missing", StatusAssigned, time.Now(), nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGatewayTransition_Illegal(t *testing.T) {
	store := newFakeStore(pendingRequest("req-1"))
	gw := NewGateway(store, zerolog.Nop())

	_, err := gw.Transition(context.Background(), KindExpertiseRequest, "req-1", StatusCompleted, time.Now(), nil)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
	if store.saves != 0 {
		t.Errorf("rejected transition must not reach the store")
	}
}

func TestGatewayTransition_Conflict(t *testing.T) {
	store := newFakeStore(pendingRequest("req-1"))
	gw := NewGateway(store, zerolog.Nop())

	// Another writer bumps the version after our read snapshot.
	store.saveErr = ErrConflict

	_, err := gw.Transition(context.Background(), KindExpertiseRequest, "req-1", StatusAssigned, time.Now(), nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestApply_MilestoneSetOnce(t *testing.T) {
	first := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Kind:       KindReminder,
		ID:         "rem-1",
		Status:     StatusSent,
		Version:    3,
		Milestones: map[string]time.Time{"sent_at": first},
	}

	next, err := Apply(snap, StatusAcknowledged, first.Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !next.Milestones["sent_at"].Equal(first) {
		t.Errorf("earlier milestone must not move: %v", next.Milestones["sent_at"])
	}
	if !next.Milestones["acknowledged_at"].Equal(first.Add(time.Hour)) {
		t.Errorf("acknowledged_at = %v", next.Milestones["acknowledged_at"])
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	snap := Snapshot{
		Kind:       KindVideoConsultation,
		ID:         "vc-1",
		Status:     StatusScheduled,
		Version:    1,
		Milestones: map[string]time.Time{},
		Fields:     map[string]any{"room_id": "room_abc"},
	}

	next, err := Apply(snap, StatusInProgress, time.Now(), map[string]any{"notes": "late start"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if snap.Status != StatusScheduled {
		t.Errorf("input snapshot mutated: %s", snap.Status)
	}
	if len(snap.Milestones) != 0 {
		t.Errorf("input milestones mutated: %v", snap.Milestones)
	}
	if _, ok := snap.Fields["notes"]; ok {
		t.Errorf("input fields mutated: %v", snap.Fields)
	}
	if next.Fields["room_id"] != "room_abc" {
		t.Errorf("existing fields must carry over: %v", next.Fields)
	}
}

func TestStorageError_Classification(t *testing.T) {
	err := StorageError("teleexpertise: save", context.DeadlineExceeded)
	if !errors.Is(err, ErrStorageTimeout) {
		t.Errorf("deadline exceeded should map to ErrStorageTimeout, got %v", err)
	}
	if errors.Is(err, ErrIllegalTransition) {
		t.Errorf("storage failures must not read as transition rejections")
	}

	err = StorageError("teleexpertise: save", errors.New("connection refused"))
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("connection failure should map to ErrStorageUnavailable, got %v", err)
	}
}

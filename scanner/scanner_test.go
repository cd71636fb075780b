package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"careflow/workflow"
)

func TestScan_UnknownKind(t *testing.T) {
	s := New(zerolog.Nop())
	if _, err := s.Scan(context.Background(), workflow.KindReminder); err == nil {
		t.Fatal("expected error for unregistered kind")
	}
}

func TestScan_ReportsFinderResults(t *testing.T) {
	t0 := time.Date(2025, 5, 7, 6, 0, 0, 0, time.UTC)
	s := New(zerolog.Nop()).WithClock(func() time.Time { return t0 })

	var seen time.Time
	s.Register(workflow.KindExpertiseRequest, func(ctx context.Context, now time.Time) ([]string, error) {
		seen = now
		return []string{"req-1", "req-2"}, nil
	})

	ids, err := s.Scan(context.Background(), workflow.KindExpertiseRequest)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ids = %v, want 2 entries", ids)
	}
	if !seen.Equal(t0) {
		t.Errorf("finder saw %v, want %v", seen, t0)
	}
}

func TestScanAll_SharesOneInstant(t *testing.T) {
	t0 := time.Date(2025, 5, 7, 6, 0, 0, 0, time.UTC)
	s := New(zerolog.Nop()).WithClock(func() time.Time { return t0 })

	instants := make(chan time.Time, 2)
	finder := func(ids ...string) Finder {
		return func(ctx context.Context, now time.Time) ([]string, error) {
			instants <- now
			return ids, nil
		}
	}
	s.Register(workflow.KindExpertiseRequest, finder("req-1"))
	s.Register(workflow.KindReminder, finder())

	results, err := s.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("scan all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %v, want 2 kinds", results)
	}
	if got := results[workflow.KindExpertiseRequest]; len(got) != 1 || got[0] != "req-1" {
		t.Errorf("expertise ids = %v, want [req-1]", got)
	}
	if got := results[workflow.KindReminder]; len(got) != 0 {
		t.Errorf("reminder ids = %v, want none", got)
	}

	close(instants)
	for instant := range instants {
		if !instant.Equal(t0) {
			t.Errorf("finder instant = %v, want shared %v", instant, t0)
		}
	}
}

func TestScanAll_Idempotent(t *testing.T) {
	t0 := time.Date(2025, 5, 7, 6, 0, 0, 0, time.UTC)
	s := New(zerolog.Nop()).WithClock(func() time.Time { return t0 })

	calls := 0
	s.Register(workflow.KindMedicationIntake, func(ctx context.Context, now time.Time) ([]string, error) {
		calls++
		return []string{"dose-1"}, nil
	})

	first, err := s.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	second, err := s.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if calls != 2 {
		t.Fatalf("finder calls = %d, want 2", calls)
	}
	a := first[workflow.KindMedicationIntake]
	b := second[workflow.KindMedicationIntake]
	if len(a) != 1 || len(b) != 1 || a[0] != b[0] {
		t.Errorf("sweeps disagree: %v vs %v", a, b)
	}
}

func TestScanAll_PropagatesFinderError(t *testing.T) {
	s := New(zerolog.Nop())
	boom := errors.New("db down")
	s.Register(workflow.KindRCPMeeting, func(ctx context.Context, now time.Time) ([]string, error) {
		return nil, boom
	})
	s.Register(workflow.KindReminder, func(ctx context.Context, now time.Time) ([]string, error) {
		return []string{"rem-1"}, nil
	})

	if _, err := s.ScanAll(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped finder error", err)
	}
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	if err := s.Start("not a cron expr"); err == nil {
		t.Fatal("expected error for malformed schedule")
	}
}

package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"careflow/workflow"
)

// Finder lists ids of entities past their deadline at the given instant.
// Implementations must not mutate anything: the scan is a pure detector and
// rerunning it against unchanged data yields the same ids.
type Finder func(ctx context.Context, now time.Time) ([]string, error)

// Scanner fans a single reference instant out to one finder per entity kind.
type Scanner struct {
	mu      sync.Mutex
	finders map[workflow.Kind]Finder
	log     zerolog.Logger
	now     func() time.Time
	cron    *cron.Cron
}

func New(log zerolog.Logger) *Scanner {
	return &Scanner{
		finders: map[workflow.Kind]Finder{},
		log:     log,
		now:     time.Now,
	}
}

func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Register installs the finder for a kind, replacing any previous one.
func (s *Scanner) Register(kind workflow.Kind, finder Finder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finders[kind] = finder
}

// Scan runs one kind's finder against the current instant.
func (s *Scanner) Scan(ctx context.Context, kind workflow.Kind) ([]string, error) {
	s.mu.Lock()
	finder, ok := s.finders[kind]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("scanner: no finder registered for kind %q", kind)
	}

	now := s.now()
	ids, err := finder(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("scanner: scan %s: %w", kind, err)
	}
	s.log.Info().
		Str("kind", string(kind)).
		Time("as_of", now).
		Int("overdue", len(ids)).
		Msg("overdue scan")
	return ids, nil
}

// ScanAll runs every registered finder concurrently against one shared
// instant, so a sweep observes a single point in time across kinds.
func (s *Scanner) ScanAll(ctx context.Context) (map[workflow.Kind][]string, error) {
	s.mu.Lock()
	kinds := make([]workflow.Kind, 0, len(s.finders))
	finders := make(map[workflow.Kind]Finder, len(s.finders))
	for kind, finder := range s.finders {
		kinds = append(kinds, kind)
		finders[kind] = finder
	}
	s.mu.Unlock()
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	now := s.now()
	var mu sync.Mutex
	results := map[workflow.Kind][]string{}

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		kind := kind
		g.Go(func() error {
			ids, err := finders[kind](gctx, now)
			if err != nil {
				return fmt.Errorf("scanner: scan %s: %w", kind, err)
			}
			mu.Lock()
			results[kind] = ids
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, ids := range results {
		total += len(ids)
	}
	s.log.Info().
		Time("as_of", now).
		Int("kinds", len(results)).
		Int("overdue", total).
		Msg("overdue sweep")
	return results, nil
}

// Start schedules periodic sweeps with the given cron expression. Sweep
// failures are logged, never fatal; the next tick runs regardless.
func (s *Scanner) Start(schedule string) error {
	if s.cron != nil {
		return fmt.Errorf("scanner: already started")
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.ScanAll(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("overdue sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scanner: bad schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	s.log.Info().Str("schedule", schedule).Msg("overdue scanner started")
	return nil
}

// Stop halts the periodic sweeps and waits for a running one to finish.
func (s *Scanner) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

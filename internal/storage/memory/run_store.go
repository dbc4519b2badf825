package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

// RunStore keeps refresh runs in memory.
type RunStore struct {
	mu    sync.RWMutex
	clock opportunity.Clock
	runs  map[string]opportunity.Run
}

var _ opportunity.RunStore = (*RunStore)(nil)

// NewRunStore constructs a RunStore. clock may be nil.
func NewRunStore(clock opportunity.Clock) *RunStore {
	if clock == nil {
		clock = utcClock{}
	}
	return &RunStore{clock: clock, runs: make(map[string]opportunity.Run)}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run opportunity.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	if run.Status == "" {
		run.Status = opportunity.RunQueued
	}
	if run.Created.IsZero() {
		run.Created = s.clock.Now()
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRun updates the status and counters of a run, stamping start and finish times.
func (s *RunStore) UpdateRun(
	_ context.Context,
	id string,
	status opportunity.RunStatus,
	errText string,
	counters opportunity.RunCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return opportunity.ErrRunNotFound
	}
	run.Status = status
	run.Error = errText
	run.Counters = counters
	now := s.clock.Now()
	if status == opportunity.RunRunning && run.Started == nil {
		run.Started = pointerTime(now)
	}
	if status.Terminal() {
		if run.Started == nil {
			run.Started = pointerTime(now)
		}
		run.Finished = pointerTime(now)
	}
	s.runs[id] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id string) (opportunity.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return opportunity.Run{}, opportunity.ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]opportunity.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]opportunity.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.After(out[j].Created)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

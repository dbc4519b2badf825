package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
	"github.com/JakeFAU/scholarship-finder/internal/storage/storetest"
)

func openTestStore(t *testing.T, clock opportunity.Clock) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"), clock, nil)
	require.NoError(t, err)
	return store
}

func TestStoreBehaviour(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T, clock opportunity.Clock) opportunity.Store {
		return openTestStore(t, clock)
	})
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", nil, nil)
	require.Error(t, err)
}

func TestStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := Open(ctx, path, nil, nil)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, []opportunity.Record{{
		Title:    "Fulbright Foreign Student Program",
		Source:   "https://foreign.fulbrightonline.org",
		Country:  opportunity.Country("International"),
		GoalType: opportunity.GoalStudent,
		Priority: 1,
		IsActive: true,
	}}))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path, nil, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	n, err := reopened.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	clock := storetest.NewClock()
	store := openTestStore(t, clock)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.CreateRun(ctx, opportunity.Run{ID: "run-a", Scope: "student|Kenya"}))
	require.Error(t, store.CreateRun(ctx, opportunity.Run{ID: "run-a"}))

	require.NoError(t, store.UpdateRun(ctx, "run-a", opportunity.RunRunning, "", opportunity.RunCounters{Sources: 6}))
	startedAt := clock.Now()
	clock.Advance(2 * time.Minute)
	require.NoError(t, store.UpdateRun(ctx, "run-a", opportunity.RunFailed, "boom",
		opportunity.RunCounters{Sources: 6, Fetched: 2, Failed: 4}))

	run, err := store.GetRun(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, opportunity.RunFailed, run.Status)
	assert.Equal(t, "boom", run.Error)
	assert.Equal(t, opportunity.RunCounters{Sources: 6, Fetched: 2, Failed: 4}, run.Counters)
	require.NotNil(t, run.Started)
	require.NotNil(t, run.Finished)
	assert.True(t, run.Started.Equal(startedAt))
	assert.True(t, run.Finished.Equal(clock.Now()))

	_, err = store.GetRun(ctx, "missing")
	require.ErrorIs(t, err, opportunity.ErrRunNotFound)
	require.ErrorIs(t, store.UpdateRun(ctx, "missing", opportunity.RunRunning, "", opportunity.RunCounters{}),
		opportunity.ErrRunNotFound)

	clock.Advance(time.Minute)
	require.NoError(t, store.CreateRun(ctx, opportunity.Run{ID: "run-b", Scope: "artist|"}))
	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, opportunity.RunQueued, runs[0].Status)

	runs, err = store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

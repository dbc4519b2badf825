package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	clock := &stepClock{now: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
	store := NewRunStore(clock)
	ctx := context.Background()

	require.NoError(t, store.CreateRun(ctx, opportunity.Run{ID: "run-1", Scope: "student|Uganda"}))
	require.Error(t, store.CreateRun(ctx, opportunity.Run{ID: "run-1"}), "duplicate ids are rejected")

	require.NoError(t, store.UpdateRun(ctx, "run-1", opportunity.RunRunning, "", opportunity.RunCounters{Sources: 4}))
	clock.now = clock.now.Add(time.Minute)
	require.NoError(t, store.UpdateRun(ctx, "run-1", opportunity.RunSucceeded, "", opportunity.RunCounters{Sources: 4, Fetched: 3, Records: 12}))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, opportunity.RunSucceeded, run.Status)
	require.NotNil(t, run.Started)
	require.NotNil(t, run.Finished)
	assert.Equal(t, time.Minute, run.Finished.Sub(*run.Started))
	assert.Equal(t, 12, run.Counters.Records)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, opportunity.ErrRunNotFound)
	assert.ErrorIs(t, store.UpdateRun(ctx, "missing", opportunity.RunFailed, "x", opportunity.RunCounters{}), opportunity.ErrRunNotFound)
}

func TestRunStoreListNewestFirst(t *testing.T) {
	t.Parallel()
	clock := &stepClock{now: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
	store := NewRunStore(clock)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateRun(ctx, opportunity.Run{ID: id}))
		clock.now = clock.now.Add(time.Second)
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, opportunity.RunQueued, runs[0].Status)
}

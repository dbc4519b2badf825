package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
	"github.com/JakeFAU/scholarship-finder/internal/storage/storetest"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestRecordStoreBehaviour(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(_ *testing.T, clock opportunity.Clock) opportunity.Store {
		return NewRecordStore(clock)
	})
}

func TestRecordStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	store := NewRecordStore(&stepClock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)})
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []opportunity.Record{{
		Title:    "Mastercard Foundation Scholars",
		Source:   "https://mastercardfdn.org",
		Country:  opportunity.Country("Africa"),
		Keywords: []string{"undergraduate"},
		GoalType: opportunity.GoalStudent,
		IsActive: true,
	}}))

	got, err := store.Search(ctx, opportunity.Query{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	got[0].Keywords[0] = "mutated"
	*got[0].Country = "mutated"

	again, err := store.Search(ctx, opportunity.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"undergraduate"}, again[0].Keywords)
	assert.Equal(t, "Africa", again[0].CountryName())
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), again[0].CreatedAt)
}

func TestRecordStoreKeepsExplicitTimestamps(t *testing.T) {
	t.Parallel()

	store := NewRecordStore(nil)
	verified := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(context.Background(), []opportunity.Record{{
		Title:        "Seeded Grant",
		Source:       "https://seed.example",
		IsActive:     true,
		LastVerified: verified,
	}}))

	got, err := store.Search(context.Background(), opportunity.Query{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, verified, got[0].LastVerified)
	assert.False(t, got[0].CreatedAt.IsZero())
}

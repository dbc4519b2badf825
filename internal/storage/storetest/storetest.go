// Package storetest holds the behavioural suite every opportunity.Store
// backend must pass.
package storetest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

// Now implements opportunity.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory builds a fresh, empty store bound to clock.
type Factory func(t *testing.T, clock opportunity.Clock) opportunity.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s opportunity.Store, clock *Clock)
	}{
		{"UpsertIsIdempotent", testUpsertIdempotent},
		{"KeywordsAreANDed", testKeywordsANDed},
		{"CountryFilterIsInclusive", testCountryInclusive},
		{"NonASCIIFoldsLikeGo", testNonASCIIFolding},
		{"UgandaScenario", testUgandaScenario},
		{"GoalAndLimit", testGoalAndLimit},
		{"CountAndPrune", testCountAndPrune},
		{"RefreshLifecycle", testRefreshLifecycle},
		{"UnreliableSourceBackoff", testUnreliableSource},
		{"SourceHints", testSourceHints},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClock()
			s := newStore(t, clock)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s, clock)
		})
	}
}

func record(title, source, country string, priority int) opportunity.Record {
	return opportunity.Record{
		Title:       title,
		Description: "Funding for " + strings.ToLower(title),
		Amount:      opportunity.PlaceholderAmount,
		Deadline:    opportunity.PlaceholderDeadline,
		Category:    "student",
		Source:      source,
		Country:     opportunity.Country(country),
		GoalType:    opportunity.GoalStudent,
		Priority:    priority,
		IsActive:    true,
	}
}

func titles(records []opportunity.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Title)
	}
	return out
}

func testUpsertIdempotent(t *testing.T, s opportunity.Store, _ *Clock) {
	ctx := context.Background()
	first := record("Chevening Scholarship", "https://www.chevening.org", "International", 1)
	second := first
	second.Description = "Updated description"
	second.Amount = "Full tuition"
	second.Keywords = []string{"UK", "Masters"}

	require.NoError(t, s.Upsert(ctx, []opportunity.Record{first}))
	require.NoError(t, s.Upsert(ctx, []opportunity.Record{second}))

	got, err := s.Search(ctx, opportunity.Query{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Updated description", got[0].Description)
	assert.Equal(t, "Full tuition", got[0].Amount)
	assert.Equal(t, []string{"masters", "uk"}, got[0].Keywords)
	assert.Equal(t, "International", got[0].CountryName())
}

func testKeywordsANDed(t *testing.T, s opportunity.Store, _ *Clock) {
	ctx := context.Background()
	a := record("Engineering Excellence Award", "https://a.example", "International", 1)
	a.Description = "For women studying engineering"
	b := record("Engineering Grant", "https://b.example", "International", 1)
	c := record("Nursing Bursary", "https://c.example", "International", 1)
	c.Keywords = []string{"women", "health"}
	require.NoError(t, s.Upsert(ctx, []opportunity.Record{a, b, c}))

	got, err := s.Search(ctx, opportunity.Query{Keywords: []string{"ENGINEERING", "women"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Engineering Excellence Award"}, titles(got))

	got, err = s.Search(ctx, opportunity.Query{Keywords: []string{"women"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Engineering Excellence Award", "Nursing Bursary"}, titles(got))
	for _, r := range got {
		assert.True(t, opportunity.MatchesKeywords(r, []string{"women"}))
	}

	got, err = s.Search(ctx, opportunity.Query{Keywords: []string{"100%"}})
	require.NoError(t, err)
	assert.Empty(t, got, "LIKE wildcards are matched literally")
}

func testCountryInclusive(t *testing.T, s opportunity.Store, _ *Clock) {
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []opportunity.Record{
		record("Kenya Fund", "https://k.example", "Kenya", 2),
		record("EAC Award", "https://eac.example", "East Africa", 2),
		record("Global Fellowship", "https://g.example", "Global", 1),
		record("Commonwealth Scholarship", "https://cw.example", "International", 1),
		record("Untagged Prize", "https://u.example", "", 1),
	}))

	for _, country := range []string{"Uganda", "Brazil", "Kenya"} {
		got, err := s.Search(ctx, opportunity.Query{Country: country})
		require.NoError(t, err)
		names := titles(got)
		assert.Contains(t, names, "EAC Award", country)
		assert.Contains(t, names, "Global Fellowship", country)
		assert.Contains(t, names, "Commonwealth Scholarship", country)
		assert.NotContains(t, names, "Untagged Prize", country)
		if country == "Kenya" {
			assert.Contains(t, names, "Kenya Fund")
		} else {
			assert.NotContains(t, names, "Kenya Fund")
		}
	}

	got, err := s.Search(ctx, opportunity.Query{Country: "kenya"})
	require.NoError(t, err)
	assert.Contains(t, titles(got), "Kenya Fund", "country match ignores case")
}

func testNonASCIIFolding(t *testing.T, s opportunity.Store, _ *Clock) {
	ctx := context.Background()
	r := record("Bourse d'Excellence", "https://ci.example", "Côte d'Ivoire", 2)
	r.Description = "Études supérieures en ÉCOLOGIE"
	require.NoError(t, s.Upsert(ctx, []opportunity.Record{r}))

	got, err := s.Search(ctx, opportunity.Query{Country: "CÔTE D'IVOIRE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bourse d'Excellence"}, titles(got))

	got, err = s.Search(ctx, opportunity.Query{Keywords: []string{"écologie", "ÉTUDES"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bourse d'Excellence"}, titles(got))

	n, err := s.Count(ctx, "côte d'ivoire")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testUgandaScenario(t *testing.T, s opportunity.Store, clock *Clock) {
	ctx := context.Background()
	var recs []opportunity.Record
	for _, title := range []string{"International A", "International B"} {
		recs = append(recs, record(title, "https://intl.example/"+title, "International", 1))
	}
	for _, title := range []string{"Makerere Merit", "Uganda Tech Grant", "Kampala Bursary"} {
		recs = append(recs, record(title, "https://ug.example/"+title, "Uganda", 3))
	}
	for _, r := range recs {
		require.NoError(t, s.Upsert(ctx, []opportunity.Record{r}))
		clock.Advance(time.Second)
	}

	got, err := s.Search(ctx, opportunity.Query{Goal: opportunity.GoalStudent, Country: "Uganda", Limit: 50})
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := 0; i < 3; i++ {
		assert.Equal(t, "Uganda", got[i].CountryName())
	}
	assert.Equal(t, []string{"Kampala Bursary", "Uganda Tech Grant", "Makerere Merit"}, titles(got[:3]),
		"equal priority orders by recency")
	for i := 3; i < 5; i++ {
		assert.Equal(t, "International", got[i].CountryName())
	}
}

func testGoalAndLimit(t *testing.T, s opportunity.Store, _ *Clock) {
	ctx := context.Background()
	var recs []opportunity.Record
	for i := 0; i < 5; i++ {
		r := record("Student Award "+string(rune('A'+i)), "https://s.example", "International", 1)
		recs = append(recs, r)
	}
	artist := record("Residency for Painters", "https://art.example", "International", 1)
	artist.GoalType = opportunity.GoalArtist
	recs = append(recs, artist)
	inactive := record("Closed Award", "https://closed.example", "International", 5)
	inactive.IsActive = false
	recs = append(recs, inactive)
	require.NoError(t, s.Upsert(ctx, recs))

	got, err := s.Search(ctx, opportunity.Query{Goal: opportunity.GoalArtist})
	require.NoError(t, err)
	assert.Equal(t, []string{"Residency for Painters"}, titles(got))

	got, err = s.Search(ctx, opportunity.Query{Goal: opportunity.GoalStudent, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"Student Award A", "Student Award B", "Student Award C"}, titles(got),
		"ties keep insertion order")
}

func testCountAndPrune(t *testing.T, s opportunity.Store, clock *Clock) {
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []opportunity.Record{
		record("Old Uganda Award", "https://old.example", "Uganda", 2),
		record("Old Global Award", "https://oldg.example", "International", 1),
	}))
	clock.Advance(48 * time.Hour)
	require.NoError(t, s.Upsert(ctx, []opportunity.Record{
		record("Fresh Kenya Award", "https://fresh.example", "Kenya", 2),
	}))

	total, err := s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	uganda, err := s.Count(ctx, "Uganda")
	require.NoError(t, err)
	assert.Equal(t, 2, uganda, "count uses the inclusive country predicate")

	pruned, err := s.Prune(ctx, clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)
	total, err = s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func testRefreshLifecycle(t *testing.T, s opportunity.Store, clock *Clock) {
	ctx := context.Background()
	const url = "https://www.scholarships.com/"
	const maxAge = 6 * time.Hour

	due, err := s.IsDueForRefresh(ctx, url, maxAge)
	require.NoError(t, err)
	assert.True(t, due, "never seen")
	meta, err := s.SourceMetadata(ctx, url)
	require.NoError(t, err)
	assert.Nil(t, meta)

	require.NoError(t, s.RecordFetchOutcome(ctx, url, true))
	due, err = s.IsDueForRefresh(ctx, url, maxAge)
	require.NoError(t, err)
	assert.False(t, due, "just fetched")

	clock.Advance(maxAge)
	due, err = s.IsDueForRefresh(ctx, url, maxAge)
	require.NoError(t, err)
	assert.True(t, due, "max age elapsed")

	require.NoError(t, s.RecordFetchOutcome(ctx, url, false))
	meta, err = s.SourceMetadata(ctx, url)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 1, meta.SuccessCount)
	assert.Equal(t, 2, meta.TotalAttempts)
	require.NotNil(t, meta.LastScraped)
	assert.True(t, meta.LastScraped.Equal(clock.Now()))
}

func testUnreliableSource(t *testing.T, s opportunity.Store, clock *Clock) {
	ctx := context.Background()
	const url = "https://flaky.example/"
	for i := 0; i < 4; i++ {
		require.NoError(t, s.RecordFetchOutcome(ctx, url, false))
	}
	clock.Advance(time.Hour)
	due, err := s.IsDueForRefresh(ctx, url, 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, due)

	clock.Advance(24 * time.Hour)
	due, err = s.IsDueForRefresh(ctx, url, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, due, "unreliable sources are retried once stale")
}

func testSourceHints(t *testing.T, s opportunity.Store, clock *Clock) {
	ctx := context.Background()
	added, err := s.AddSourceHint(ctx, "https://mine.example/list", "alice", false)
	require.NoError(t, err)
	assert.True(t, added)
	clock.Advance(time.Minute)
	added, err = s.AddSourceHint(ctx, "https://public.example/list", "bob", true)
	require.NoError(t, err)
	assert.True(t, added)
	clock.Advance(time.Minute)
	_, err = s.AddSourceHint(ctx, "https://private.example/list", "bob", false)
	require.NoError(t, err)

	added, err = s.AddSourceHint(ctx, "https://public.example/list", "carol", true)
	require.NoError(t, err)
	assert.False(t, added, "duplicate add bumps popularity")

	hints, err := s.SourceHints(ctx, "alice", true)
	require.NoError(t, err)
	require.Len(t, hints, 2)
	assert.Equal(t, "https://public.example/list", hints[0].URL)
	assert.Equal(t, 2, hints[0].Popularity)
	assert.Equal(t, "bob", hints[0].AddedBy)
	assert.Equal(t, "https://mine.example/list", hints[1].URL)
	assert.Equal(t, 1, hints[1].Popularity)

	hints, err = s.SourceHints(ctx, "alice", false)
	require.NoError(t, err)
	require.Len(t, hints, 1)
	assert.Equal(t, "https://mine.example/list", hints[0].URL)
}

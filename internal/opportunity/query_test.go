package opportunity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGoal(t *testing.T) {
	t.Parallel()

	g, err := ParseGoal(" Student ")
	require.NoError(t, err)
	assert.Equal(t, GoalStudent, g)

	g, err = ParseGoal("")
	require.NoError(t, err)
	assert.Equal(t, GoalType(""), g)

	_, err = ParseGoal("astronaut")
	require.Error(t, err)
}

func TestNormalizeKeywords(t *testing.T) {
	t.Parallel()

	got := NormalizeKeywords([]string{" STEM", "science", "stem", "", "Africa"})
	assert.Equal(t, []string{"africa", "science", "stem"}, got)
	assert.Nil(t, NormalizeKeywords([]string{" ", ""}))
	assert.Equal(t, "a,b", JoinKeywords([]string{"b", "A"}))
	assert.Equal(t, []string{"a", "b"}, SplitKeywords("b, a,"))
}

func TestMatchesKeywordsRequiresEveryKeyword(t *testing.T) {
	t.Parallel()

	r := Record{
		Title:       "Mastercard Foundation Scholars Program",
		Description: "Comprehensive scholarship for talented African students",
		Keywords:    []string{"leadership", "undergraduate"},
		IsActive:    true,
	}
	assert.True(t, MatchesKeywords(r, []string{"MASTERCARD", "african"}))
	assert.True(t, MatchesKeywords(r, []string{"leadership", "scholars"}))
	assert.False(t, MatchesKeywords(r, []string{"mastercard", "engineering"}))
	assert.True(t, MatchesKeywords(r, nil))
}

func TestMatchesCountryIsInclusive(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tag  *string
		want bool
	}{
		{Country("Uganda"), true},
		{Country("uganda"), true},
		{Country("International"), true},
		{Country("Africa"), true},
		{Country("East Africa"), true},
		{Country("Kenya"), false},
		{nil, false},
	}
	for _, tc := range cases {
		r := Record{Country: tc.tag}
		assert.Equal(t, tc.want, MatchesCountry(r, "Uganda"), "tag=%v", r.CountryName())
	}
	assert.True(t, MatchesCountry(Record{Country: Country("Kenya")}, ""))
}

func TestFilterOrdersByPriorityThenRecency(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		{Title: "a", Priority: 1, LastVerified: base, IsActive: true},
		{Title: "b", Priority: 3, LastVerified: base, IsActive: true},
		{Title: "c", Priority: 3, LastVerified: base.Add(time.Hour), IsActive: true},
		{Title: "d", Priority: 1, LastVerified: base, IsActive: true},
		{Title: "inactive", Priority: 9, LastVerified: base, IsActive: false},
	}
	got := Filter(records, Query{})
	titles := make([]string, 0, len(got))
	for _, r := range got {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"c", "b", "a", "d"}, titles)

	limited := Filter(records, Query{Limit: 2})
	assert.Len(t, limited, 2)
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "commonwealth scholarship", NormalizeTitle("  Commonwealth   Scholarship!! "))
	assert.Equal(t, "chevening 2025", NormalizeTitle("Chevening - 2025"))
}

func TestDedupeCollapsesPunctuationAndCase(t *testing.T) {
	t.Parallel()

	cached := []Record{{Title: "Commonwealth Scholarship", Source: "cache"}}
	fresh := []Record{{Title: "commonwealth scholarship.", Source: "live"}, {Title: "Chevening Scholarships", Source: "live"}}
	merged := Dedupe(append(cached, fresh...))
	require.Len(t, merged, 2)
	assert.Equal(t, "cache", merged[0].Source)
	assert.Equal(t, "Chevening Scholarships", merged[1].Title)
}

func TestDedupeContainmentOnlyForLongTitles(t *testing.T) {
	t.Parallel()

	merged := Dedupe([]Record{{Title: "Grant"}, {Title: "Grant Program"}})
	assert.Len(t, merged, 2, "short titles only merge on equality")

	merged = Dedupe([]Record{
		{Title: "Fulbright Foreign Student Program"},
		{Title: "Fulbright Foreign Student Program (Graduate)"},
	})
	assert.Len(t, merged, 1, "long titles merge on containment")
}

func TestRank(t *testing.T) {
	t.Parallel()

	records := []Record{{Title: "b", Priority: 1}, {Title: "a", Priority: 1}, {Title: "z", Priority: 2}}
	Rank(records)
	assert.Equal(t, "z", records[0].Title)
	assert.Equal(t, "a", records[1].Title)
	assert.Equal(t, "b", records[2].Title)
}

func TestDueForRefresh(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	maxAge := 6 * time.Hour
	assert.True(t, DueForRefresh(nil, maxAge, now), "never scraped")

	fresh := SourceMetadata{}.Apply(true, now)
	assert.False(t, DueForRefresh(&fresh, maxAge, now))
	assert.True(t, DueForRefresh(&fresh, maxAge, now.Add(maxAge)))

	unreliable := SourceMetadata{SuccessCount: 1, TotalAttempts: 5}.Apply(false, now.Add(-time.Hour))
	assert.False(t, unreliable.IsReliable())
	assert.False(t, DueForRefresh(&unreliable, maxAge, now))
	assert.True(t, DueForRefresh(&unreliable, maxAge, now.Add(6*time.Hour)))
}

func TestSourceMetadataReliability(t *testing.T) {
	t.Parallel()

	assert.True(t, SourceMetadata{}.IsReliable())
	assert.True(t, SourceMetadata{SuccessCount: 3, TotalAttempts: 10}.IsReliable())
	assert.False(t, SourceMetadata{SuccessCount: 2, TotalAttempts: 10}.IsReliable())
}

func TestSearchTextAndCountryKeyFoldUnicode(t *testing.T) {
	t.Parallel()
	r := Record{Title: "ÉCOLE Award", Description: "Für Studierende", Keywords: []string{"Ökologie", "arts"}}

	assert.Equal(t, "école award\nfür studierende\narts,ökologie", SearchText(r))
	assert.Equal(t, "côte d'ivoire", CountryKey("  CÔTE D'IVOIRE "))
	assert.True(t, MatchesCountry(Record{Country: Country("Côte d'Ivoire")}, "CÔTE D'IVOIRE"))
}

package opportunity

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultLimit caps search results when the caller does not provide a limit.
const DefaultLimit = 50

// Query captures the predicates of a cache search. Zero values disable a filter.
type Query struct {
	Goal     GoalType
	Keywords []string
	Country  string
	Limit    int
}

// EffectiveLimit returns the limit to apply, substituting DefaultLimit for <= 0.
func (q Query) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

// ContinentTags mark regional listings that stay visible for any country filter.
// A country tag containing one of them, such as "East Africa", counts as regional.
var ContinentTags = []string{"africa", "asia", "europe", "america", "oceania", "caribbean", "middle east"}

// GlobalTags mark listings open to every country.
var GlobalTags = []string{"international", "global", "worldwide"}

// IsGlobalOrRegional reports whether a country tag is continent level or global.
func IsGlobalOrRegional(country string) bool {
	c := CountryKey(country)
	if c == "" {
		return false
	}
	for _, tag := range GlobalTags {
		if c == tag {
			return true
		}
	}
	for _, tag := range ContinentTags {
		if strings.Contains(c, tag) {
			return true
		}
	}
	return false
}

// MatchesCountry applies the inclusive country filter: an exact match, a
// continent tagged listing or an international listing all pass.
func MatchesCountry(r Record, country string) bool {
	country = strings.TrimSpace(country)
	if country == "" {
		return true
	}
	tag := r.CountryName()
	if CountryKey(tag) == CountryKey(country) {
		return true
	}
	return IsGlobalOrRegional(tag)
}

// MatchesKeywords reports whether every keyword appears, case-insensitively, in
// the title, description or keyword set of the record.
func MatchesKeywords(r Record, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := SearchText(r)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if !strings.Contains(haystack, kw) {
			return false
		}
	}
	return true
}

// CountryKey is the case folded form country filters compare. SQL stores keep
// it in the country_key column.
func CountryKey(country string) string {
	return strings.ToLower(strings.TrimSpace(country))
}

// SearchText is the case folded text keyword filters match against. SQL
// stores keep it in the search_text column.
func SearchText(r Record) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(r.Title))
	b.WriteByte('\n')
	b.WriteString(strings.ToLower(r.Description))
	b.WriteByte('\n')
	b.WriteString(JoinKeywords(r.Keywords))
	return b.String()
}

// Matches applies every predicate of q to r, including the active flag.
func (q Query) Matches(r Record) bool {
	if !r.IsActive {
		return false
	}
	if q.Goal != "" && r.GoalType != q.Goal {
		return false
	}
	if !MatchesCountry(r, q.Country) {
		return false
	}
	return MatchesKeywords(r, q.Keywords)
}

// SortForSearch orders records by priority then recency, both descending.
// The sort is stable so callers passing insertion order keep it for ties.
func SortForSearch(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.LastVerified.After(b.LastVerified)
	})
}

// Filter applies q to records already in insertion order and returns the
// ordered, limited result.
func Filter(records []Record, q Query) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	SortForSearch(out)
	if limit := q.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out
}

// NormalizeTitle case-folds a title, strips punctuation and collapses whitespace.
func NormalizeTitle(title string) string {
	lowered := strings.ToLower(strings.TrimSpace(title))
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, lowered)
	return strings.Join(strings.Fields(stripped), " ")
}

// containmentMinLen is the length both titles must exceed before substring
// containment counts as a duplicate; shorter titles must match exactly.
const containmentMinLen = 10

func similarTitles(a, b string) bool {
	if len(a) > containmentMinLen && len(b) > containmentMinLen {
		return strings.Contains(a, b) || strings.Contains(b, a)
	}
	return a == b
}

// Dedupe keeps the first record of every group of similar titles.
// Containment is asymmetric by nature, so a long title can absorb a shorter,
// unrelated one that happens to be a substring of it.
func Dedupe(records []Record) []Record {
	out := make([]Record, 0, len(records))
	seen := make([]string, 0, len(records))
	for _, r := range records {
		norm := NormalizeTitle(r.Title)
		duplicate := false
		for _, s := range seen {
			if similarTitles(norm, s) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		seen = append(seen, norm)
		out = append(out, r)
	}
	return out
}

// Rank sorts merged results by priority descending then title ascending.
func Rank(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority > records[j].Priority
		}
		return records[i].Title < records[j].Title
	})
}

// Package opportunity defines the records, metadata and store contract shared by
// the scraping engine, the cache backends and the search coordinator.
package opportunity

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// GoalType is the applicant category a listing is scored against.
type GoalType string

// Supported goal types.
const (
	GoalStudent      GoalType = "student"
	GoalEntrepreneur GoalType = "entrepreneur"
	GoalResearcher   GoalType = "researcher"
	GoalArtist       GoalType = "artist"
	GoalNonprofit    GoalType = "nonprofit"
)

// Goals lists every supported goal type in display order.
var Goals = []GoalType{GoalStudent, GoalEntrepreneur, GoalResearcher, GoalArtist, GoalNonprofit}

// ParseGoal validates a raw goal string. The empty string maps to "" (no filter).
func ParseGoal(raw string) (GoalType, error) {
	g := GoalType(strings.ToLower(strings.TrimSpace(raw)))
	if g == "" {
		return "", nil
	}
	for _, known := range Goals {
		if g == known {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown goal type %q", raw)
}

// International is the country tag for globally scoped listings.
const International = "International"

// Placeholder values used when a field could not be recovered.
const (
	PlaceholderDescription = "No description available"
	PlaceholderDeadline    = "Check website"
	PlaceholderAmount      = "Check website"
)

// Record is one discovered funding or application listing.
// (Title, Source) is unique within a store; re-insertion replaces the prior record.
type Record struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Amount       string    `json:"amount"`
	Deadline     string    `json:"deadline"`
	Category     string    `json:"category"`
	Source       string    `json:"source"`
	Country      *string   `json:"country,omitempty"`
	Keywords     []string  `json:"keywords,omitempty"`
	GoalType     GoalType  `json:"goal_type"`
	Priority     int       `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
	LastVerified time.Time `json:"last_verified"`
	IsActive     bool      `json:"is_active"`
}

// Key identifies a record inside a store.
type Key struct {
	Title  string
	Source string
}

// Key returns the uniqueness key of the record.
func (r Record) Key() Key {
	return Key{Title: r.Title, Source: r.Source}
}

// CountryName returns the country tag or "" when unset.
func (r Record) CountryName() string {
	if r.Country == nil {
		return ""
	}
	return *r.Country
}

// Country returns a pointer suitable for Record.Country. Empty input yields nil.
func Country(name string) *string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return &name
}

// NormalizeKeywords lowercases, trims and de-duplicates keyword tokens, keeping
// the result sorted so records compare deterministically.
func NormalizeKeywords(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// SplitKeywords parses a comma separated keyword list.
func SplitKeywords(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return NormalizeKeywords(strings.Split(raw, ","))
}

// JoinKeywords renders keywords as the comma separated column value used by SQL stores.
func JoinKeywords(kws []string) string {
	return strings.Join(NormalizeKeywords(kws), ",")
}

// reliabilityThreshold is the minimum success ratio for a source to count as reliable.
const reliabilityThreshold = 0.3

// SourceMetadata tracks fetch history for one source URL.
type SourceMetadata struct {
	SourceURL     string     `json:"source_url"`
	LastScraped   *time.Time `json:"last_scraped,omitempty"`
	SuccessCount  int        `json:"success_count"`
	TotalAttempts int        `json:"total_attempts"`
}

// SuccessRate returns success_count/total_attempts, or 1 when nothing was attempted.
func (m SourceMetadata) SuccessRate() float64 {
	if m.TotalAttempts <= 0 {
		return 1
	}
	return float64(m.SuccessCount) / float64(m.TotalAttempts)
}

// IsReliable reports whether the source succeeds at least 30% of the time.
func (m SourceMetadata) IsReliable() bool {
	return m.SuccessRate() >= reliabilityThreshold
}

// Apply returns the metadata after one more fetch attempt at the given time.
func (m SourceMetadata) Apply(success bool, at time.Time) SourceMetadata {
	ts := at
	m.LastScraped = &ts
	m.TotalAttempts++
	if success {
		m.SuccessCount++
	}
	return m
}

// DueForRefresh implements the staleness policy for a source:
// never scraped sources are due; recently scraped unreliable sources are left
// alone; everything else is due once maxAge has elapsed.
func DueForRefresh(meta *SourceMetadata, maxAge time.Duration, now time.Time) bool {
	if meta == nil || meta.LastScraped == nil {
		return true
	}
	age := now.Sub(*meta.LastScraped)
	if age < maxAge && meta.TotalAttempts > 0 && !meta.IsReliable() {
		return false
	}
	return age >= maxAge
}

// SourceHint is a user supplied seed URL for future fetch passes.
type SourceHint struct {
	URL        string    `json:"url"`
	AddedBy    string    `json:"added_by"`
	IsPublic   bool      `json:"is_public"`
	Popularity int       `json:"popularity"`
	AddedAt    time.Time `json:"added_at"`
	Active     bool      `json:"active"`
}

// SortHints orders hints by popularity descending, oldest first on ties.
func SortHints(hints []SourceHint) {
	sort.SliceStable(hints, func(i, j int) bool {
		a, b := hints[i], hints[j]
		if a.Popularity != b.Popularity {
			return a.Popularity > b.Popularity
		}
		if !a.AddedAt.Equal(b.AddedAt) {
			return a.AddedAt.Before(b.AddedAt)
		}
		return a.URL < b.URL
	})
}

package coordinator

import (
	"strings"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

// Scope names the slice of the cache a refresh pass covers.
type Scope struct {
	Goal    opportunity.GoalType
	Country string
	// UserID selects whose private source hints join the pass. It is not part
	// of the key, so concurrent passes for one scope collapse regardless of user.
	UserID string
}

// Key identifies the scope for in-flight deduplication and run tracking.
func (s Scope) Key() string {
	return string(s.Goal) + "|" + strings.ToLower(strings.TrimSpace(s.Country))
}

// tagFresh applies the write-back rules to newly extracted records: the
// requested country (or International) and a matching priority.
func tagFresh(records []opportunity.Record, country string, keywords []string) []opportunity.Record {
	country = strings.TrimSpace(country)
	tag, priority := opportunity.International, 1
	if country != "" {
		tag, priority = country, 2
	}
	out := make([]opportunity.Record, 0, len(records))
	for _, r := range records {
		r.Country = opportunity.Country(tag)
		r.Priority = priority
		r.Keywords = opportunity.NormalizeKeywords(append(append([]string(nil), r.Keywords...), keywords...))
		out = append(out, r)
	}
	return out
}

package storage

import (
	"strconv"
	"strings"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

// Dialect renders the search predicates for one SQL engine. Predicates match
// the country_key and search_text columns, which hold text folded in Go.
type Dialect struct {
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder func(n int) string
}

// SQLite is the dialect of modernc.org/sqlite.
var SQLite = Dialect{
	Placeholder: func(int) string { return "?" },
}

// Postgres is the dialect of pgx.
var Postgres = Dialect{
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

// Where accumulates predicates and their arguments.
type Where struct {
	d     Dialect
	parts []string
	args  []any
}

// NewWhere starts an empty clause.
func (d Dialect) NewWhere() *Where {
	return &Where{d: d}
}

// Bind appends v to the arguments and returns its placeholder.
func (w *Where) Bind(v any) string {
	w.args = append(w.args, v)
	return w.d.Placeholder(len(w.args))
}

// Add appends a raw predicate.
func (w *Where) Add(predicate string) {
	w.parts = append(w.parts, predicate)
}

// String renders " WHERE a AND b", or "" when empty.
func (w *Where) String() string {
	if len(w.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.parts, " AND ")
}

// Args returns the bound arguments in order.
func (w *Where) Args() []any {
	return w.args
}

// Active restricts to active records.
func (w *Where) Active() *Where {
	w.Add("is_active = TRUE")
	return w
}

// Goal restricts to one goal type when set.
func (w *Where) Goal(g opportunity.GoalType) *Where {
	if g != "" {
		w.Add("goal_type = " + w.Bind(string(g)))
	}
	return w
}

// Country applies the inclusive country filter: exact match, any continent
// tag or any global tag. A NULL country never matches a non-empty filter.
func (w *Where) Country(country string) *Where {
	key := opportunity.CountryKey(country)
	if key == "" {
		return w
	}
	col := "country_key"
	ors := []string{col + " = " + w.Bind(key)}
	globals := make([]string, 0, len(opportunity.GlobalTags))
	for _, tag := range opportunity.GlobalTags {
		globals = append(globals, w.Bind(tag))
	}
	ors = append(ors, col+" IN ("+strings.Join(globals, ", ")+")")
	for _, tag := range opportunity.ContinentTags {
		ors = append(ors, col+" LIKE "+w.Bind("%"+tag+"%"))
	}
	w.Add("(" + strings.Join(ors, " OR ") + ")")
	return w
}

// Keywords requires every keyword to appear in the title, description or keyword column.
func (w *Where) Keywords(keywords []string) *Where {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		w.Add("search_text LIKE " + w.Bind("%"+EscapeLike(kw)+"%") + ` ESCAPE '\'`)
	}
	return w
}

// SearchOrder is the ORDER BY shared by every backend; id follows insertion order.
const SearchOrder = " ORDER BY priority DESC, last_verified DESC, id ASC"

// EscapeLike escapes LIKE wildcards with a backslash.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

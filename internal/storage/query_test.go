package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

func TestWherePostgresPlaceholders(t *testing.T) {
	t.Parallel()
	w := Postgres.NewWhere().Active().Goal(opportunity.GoalStudent).Keywords([]string{"Engineering", " "})

	assert.Equal(t,
		` WHERE is_active = TRUE AND goal_type = $1 AND search_text LIKE $2 ESCAPE '\'`,
		w.String())
	assert.Equal(t, []any{"student", "%engineering%"}, w.Args())
}

func TestWhereCountryIsInclusive(t *testing.T) {
	t.Parallel()
	w := SQLite.NewWhere().Country(" Uganda ")

	args := w.Args()
	assert.Equal(t, "uganda", args[0])
	assert.Contains(t, args, "international")
	assert.Contains(t, args, "%africa%")
	assert.Len(t, args, 1+len(opportunity.GlobalTags)+len(opportunity.ContinentTags))
	assert.Contains(t, w.String(), "country_key = ?")
}

func TestWhereFoldsNonASCIIInGo(t *testing.T) {
	t.Parallel()
	w := Postgres.NewWhere().Country("CÔTE D'IVOIRE").Keywords([]string{"ÉCOLE"})

	args := w.Args()
	assert.Equal(t, "côte d'ivoire", args[0])
	assert.Equal(t, "%école%", args[len(args)-1])
	assert.Contains(t, w.String(), "search_text LIKE")
}

func TestWhereEmpty(t *testing.T) {
	t.Parallel()
	w := SQLite.NewWhere().Goal("").Country("  ").Keywords(nil)
	assert.Equal(t, "", w.String())
	assert.Empty(t, w.Args())
}

func TestEscapeLike(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `100\%`, EscapeLike("100%"))
	assert.Equal(t, `first\_gen`, EscapeLike("first_gen"))
	assert.Equal(t, `a\\b`, EscapeLike(`a\b`))
}

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock, "", fixedClock{now: testNow}, nil)
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "", nil, nil)
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "bad;schema", nil, nil)
	require.Error(t, err)

	store, err := NewWithPool(mock, "scholar", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "scholar.records", store.table("records"))
}

func TestMigrateCreatesTables(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS public").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS public.records").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS records_search_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS public.source_metadata").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS public.source_hints").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS public.refresh_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWritesEachRecordInOneTransaction(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	verified := testNow.Add(-time.Hour)
	recs := []opportunity.Record{
		{
			Title:        "DAAD Scholarship",
			Description:  "Study in Germany",
			Amount:       "€934 per month",
			Deadline:     "October 15",
			Category:     "student",
			Source:       "https://www.daad.de",
			Country:      opportunity.Country(" International "),
			Keywords:     []string{"Masters", "germany"},
			GoalType:     opportunity.GoalStudent,
			Priority:     1,
			CreatedAt:    verified,
			LastVerified: verified,
			IsActive:     true,
		},
		{
			Title:    "Untimed",
			Source:   "https://untimed.example",
			IsActive: true,
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO public.records").
		WithArgs("DAAD Scholarship", "Study in Germany", "€934 per month", "October 15", "student",
			"https://www.daad.de", opportunity.Country("International"), "germany,masters", "student", 1,
			verified, verified, true,
			opportunity.Country("international"), "daad scholarship\nstudy in germany\ngermany,masters").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO public.records").
		WithArgs("Untimed", "", "", "", "", "https://untimed.example", (*string)(nil), "", "", 0,
			testNow, testNow, true, (*string)(nil), "untimed\n\n").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Upsert(context.Background(), recs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRollsBackOnError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO public.records").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := store.Upsert(context.Background(), []opportunity.Record{{Title: "x", Source: "y"}})
	require.ErrorContains(t, err, "boom")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchBuildsInclusiveFilters(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cols := []string{"title", "description", "amount", "deadline", "category", "source", "country",
		"keywords", "goal_type", "priority", "created_at", "last_verified", "is_active"}
	mock.ExpectQuery(`FROM public.records WHERE is_active = TRUE AND goal_type = \$1`).
		WithArgs("student", "uganda", "international", "global", "worldwide",
			"%africa%", "%asia%", "%europe%", "%america%", "%oceania%", "%caribbean%", "%middle east%",
			"%engineering%", 10).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("Uganda Tech Grant", "desc", "Check website", "Check website", "student",
				"https://ug.example", "Uganda", "engineering,women", "student", 2, testNow, testNow, true))

	got, err := store.Search(context.Background(), opportunity.Query{
		Goal:     opportunity.GoalStudent,
		Country:  "Uganda",
		Keywords: []string{"Engineering"},
		Limit:    10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Uganda", got[0].CountryName())
	assert.Equal(t, []string{"engineering", "women"}, got[0].Keywords)
	assert.Equal(t, opportunity.GoalStudent, got[0].GoalType)
	assert.Equal(t, 2, got[0].Priority)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAndPrune(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM public.records WHERE is_active = TRUE$`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))
	cutoff := testNow.Add(-30 * 24 * time.Hour)
	mock.ExpectExec("UPDATE public.records SET is_active = FALSE").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	n, err := store.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	pruned, err := store.Prune(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 4, pruned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFetchOutcomeUpsertsCounters(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO public.source_metadata").
		WithArgs("https://www.fastweb.com/", testNow, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordFetchOutcome(context.Background(), "https://www.fastweb.com/", false))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceMetadataAndRefreshGate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	const url = "https://www.scholarships.com/"
	mock.ExpectQuery("FROM public.source_metadata").
		WithArgs(url).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM public.source_metadata").
		WithArgs(url).
		WillReturnRows(pgxmock.NewRows([]string{"source_url", "last_scraped", "success_count", "total_attempts"}).
			AddRow(url, pgtype.Timestamptz{Time: testNow.Add(-time.Hour), Valid: true}, 3, 4))

	ctx := context.Background()
	due, err := store.IsDueForRefresh(ctx, url, 6*time.Hour)
	require.NoError(t, err)
	assert.True(t, due, "unknown sources are due")

	meta, err := store.SourceMetadata(ctx, url)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 3, meta.SuccessCount)
	assert.Equal(t, 4, meta.TotalAttempts)
	require.NotNil(t, meta.LastScraped)
	assert.Equal(t, testNow.Add(-time.Hour), *meta.LastScraped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddSourceHint(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	const url = "https://opportunitydesk.org/category/scholarships/"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO public.source_hints").
		WithArgs(url, "alice", true, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO public.source_hints").
		WithArgs(url, "bob", false, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("UPDATE public.source_hints SET popularity = popularity \\+ 1").
		WithArgs(url).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	ctx := context.Background()
	added, err := store.AddSourceHint(ctx, "  "+url, "alice", true)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = store.AddSourceHint(ctx, url, "bob", false)
	require.NoError(t, err)
	assert.False(t, added)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceHintsScansRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM public.source_hints").
		WithArgs("alice", true).
		WillReturnRows(pgxmock.NewRows([]string{"url", "added_by", "is_public", "popularity", "added_at", "is_active"}).
			AddRow("https://a.example", "bob", true, 3, testNow, true).
			AddRow("https://b.example", "alice", false, 1, testNow, true))

	hints, err := store.SourceHints(context.Background(), "alice", true)
	require.NoError(t, err)
	require.Len(t, hints, 2)
	assert.Equal(t, 3, hints[0].Popularity)
	assert.Equal(t, "alice", hints[1].AddedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO public.refresh_runs").
		WithArgs("run-1", "student|Ghana", "queued", []byte(`{"sources":0,"fetched":0,"skipped":0,"failed":0,"records":0,"archived":0}`),
			"", testNow, (*time.Time)(nil), (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.CreateRun(ctx, opportunity.Run{ID: "run-1", Scope: "student|Ghana"}))

	now := testNow
	mock.ExpectExec("UPDATE public.refresh_runs SET").
		WithArgs("succeeded", "", []byte(`{"sources":2,"fetched":2,"skipped":0,"failed":0,"records":9,"archived":0}`),
			&now, &now, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.UpdateRun(ctx, "run-1", opportunity.RunSucceeded, "",
		opportunity.RunCounters{Sources: 2, Fetched: 2, Records: 9}))

	mock.ExpectExec("UPDATE public.refresh_runs SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, store.UpdateRun(ctx, "nope", opportunity.RunRunning, "", opportunity.RunCounters{}),
		opportunity.ErrRunNotFound)

	cols := []string{"id", "scope", "status", "counters", "error", "created_at", "started_at", "finished_at"}
	mock.ExpectQuery("FROM public.refresh_runs WHERE id").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("run-1", "student|Ghana", "succeeded", []byte(`{"sources":2,"records":9}`), "", testNow, &now, &now))
	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, opportunity.RunSucceeded, run.Status)
	assert.Equal(t, 9, run.Counters.Records)
	require.NotNil(t, run.Finished)

	mock.ExpectQuery("FROM public.refresh_runs WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.GetRun(ctx, "missing")
	require.ErrorIs(t, err, opportunity.ErrRunNotFound)

	limit := 5
	mock.ExpectQuery("FROM public.refresh_runs ORDER BY created_at DESC").
		WithArgs(&limit).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("run-1", "student|Ghana", "succeeded", []byte(`{}`), "", testNow, &now, &now))
	runs, err := store.ListRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholarship-finder/internal/catalog"
	"github.com/JakeFAU/scholarship-finder/internal/config"
	"github.com/JakeFAU/scholarship-finder/internal/coordinator"
	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
	"github.com/JakeFAU/scholarship-finder/internal/storage/memory"
)

type fakeRefresher struct {
	runs   []opportunity.Run
	scopes []coordinator.Scope
	fail   bool
}

func (f *fakeRefresher) Trigger(coordinator.Scope) bool { return false }

func (f *fakeRefresher) Refresh(_ context.Context, scope coordinator.Scope) (opportunity.Run, error) {
	f.scopes = append(f.scopes, scope)
	run := opportunity.Run{
		ID:       fmt.Sprintf("run-%d", len(f.scopes)),
		Scope:    scope.Key(),
		Status:   opportunity.RunSucceeded,
		Counters: opportunity.RunCounters{Sources: 3, Fetched: 2, Records: 4},
	}
	if f.fail {
		run.Status, run.Error = opportunity.RunFailed, "context deadline exceeded"
	}
	f.runs = append(f.runs, run)
	return run, nil
}

func (f *fakeRefresher) Run(_ context.Context, id string) (opportunity.Run, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return opportunity.Run{}, opportunity.ErrRunNotFound
}

func (f *fakeRefresher) Runs(context.Context, int) ([]opportunity.Run, error) {
	return f.runs, nil
}

func (f *fakeRefresher) Wait() {}

type fakeApp struct {
	cfg       config.Config
	store     *memory.RecordStore
	search    *coordinator.Coordinator
	refresher *fakeRefresher
	closed    bool
}

func newFakeApp(t *testing.T) *fakeApp {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	store := memory.NewRecordStore(nil)
	_, err = catalog.Populate(context.Background(), store, false)
	require.NoError(t, err)
	return &fakeApp{
		cfg:       cfg,
		store:     store,
		search:    coordinator.New(coordinator.DefaultConfig(), store, catalog.Default(), nil, nil, coordinator.Options{}),
		refresher: &fakeRefresher{},
	}
}

func (f *fakeApp) Close()                      { f.closed = true }
func (f *fakeApp) GetConfig() config.Config    { return f.cfg }
func (f *fakeApp) GetLogger() *zap.Logger      { return zap.NewNop() }
func (f *fakeApp) GetStore() opportunity.Store { return f.store }
func (f *fakeApp) GetSearcher() Searcher       { return f.search }
func (f *fakeApp) GetRefresher() Refresher     { return f.refresher }

func (f *fakeApp) Ready(ctx context.Context) error {
	_, err := f.store.Count(ctx, "")
	return err
}

// execute runs the root command against fake. Tests using it swap the
// package level factory and must not run in parallel.
func execute(t *testing.T, fake *fakeApp, args ...string) (string, error) {
	t.Helper()
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		return fake, nil
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSearchPrintsTable(t *testing.T) {
	fake := newFakeApp(t)
	out, err := execute(t, fake, "search", "--goal", "student", "--country", "Uganda", "--limit", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "╭")
	assert.Contains(t, out, "PRIORITY")
	assert.Contains(t, out, "DEADLINE")
	assert.Contains(t, out, "3 results (10 cached, 0 fresh, background refresh: false)")
	assert.True(t, fake.closed, "app is closed after the command")
}

func TestSearchJSON(t *testing.T) {
	fake := newFakeApp(t)
	out, err := execute(t, fake, "search", "--goal", "researcher", "--json")
	require.NoError(t, err)

	var resp coordinator.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, opportunity.GoalResearcher, resp.Records[0].GoalType)
}

func TestSearchRejectsUnknownGoal(t *testing.T) {
	_, err := execute(t, newFakeApp(t), "search", "--goal", "astronaut")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown goal type")
}

func TestSourcesAddAndList(t *testing.T) {
	fake := newFakeApp(t)

	out, err := execute(t, fake, "sources", "add", "https://grants.example/list", "--user", "amina")
	require.NoError(t, err)
	assert.Contains(t, out, "added https://grants.example/list")

	out, err = execute(t, fake, "sources", "add", "https://grants.example/list", "--user", "kato")
	require.NoError(t, err)
	assert.Contains(t, out, "already known")

	out, err = execute(t, fake, "sources", "list", "--user", "kato")
	require.NoError(t, err)
	assert.Contains(t, out, "ADDED BY")
	assert.Contains(t, out, "https://grants.example/list")
	assert.Contains(t, out, "amina")
	assert.Contains(t, out, "╰")

	_, err = execute(t, fake, "sources", "add", "not a url")
	require.ErrorIs(t, err, coordinator.ErrInvalidHint)
}

func TestSeedIsIdempotentUnlessForced(t *testing.T) {
	fake := newFakeApp(t)

	out, err := execute(t, fake, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing written")

	out, err = execute(t, fake, "seed", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 15 records")
}

func TestPrune(t *testing.T) {
	fake := newFakeApp(t)

	out, err := execute(t, fake, "prune", "--older-than", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "deactivated 0 records")

	_, err = execute(t, fake, "prune", "--older-than", "0s")
	require.Error(t, err)
}

func TestRefreshCommands(t *testing.T) {
	fake := newFakeApp(t)

	out, err := execute(t, fake, "refresh", "--goal", "student", "--country", "Kenya", "--user", "amina")
	require.NoError(t, err)
	var run opportunity.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "student|kenya", run.Scope)
	require.Len(t, fake.refresher.scopes, 1)
	assert.Equal(t, "amina", fake.refresher.scopes[0].UserID)

	out, err = execute(t, fake, "refresh", "show", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "succeeded"`)

	out, err = execute(t, fake, "refresh", "runs")
	require.NoError(t, err)
	var runs []opportunity.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	assert.Len(t, runs, 1)

	_, err = execute(t, fake, "refresh", "show", "run-9")
	require.ErrorIs(t, err, opportunity.ErrRunNotFound)
}

func TestRefreshReportsFailedRun(t *testing.T) {
	fake := newFakeApp(t)
	fake.refresher.fail = true

	_, err := execute(t, fake, "refresh", "--country", "Ghana")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
}

func TestAppFactoryErrorStopsCommand(t *testing.T) {
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		return nil, errors.New("database unreachable")
	}

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"seed"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unreachable")
}

func TestResolveAppWithoutApp(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	fake := newFakeApp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, fake, ln) }()

	base := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/v1/opportunities?goal=student&country=Uganda")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

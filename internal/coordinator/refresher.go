package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/scholarship-finder/internal/catalog"
	"github.com/JakeFAU/scholarship-finder/internal/fetcher"
	"github.com/JakeFAU/scholarship-finder/internal/metrics"
	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
	"github.com/JakeFAU/scholarship-finder/internal/storage"
)

// EventRefreshCompleted is the event type published after every pass.
const EventRefreshCompleted = "refresh.completed"

// Hasher digests archived pages.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator names refresh runs.
type IDGenerator interface {
	NewID() (string, error)
}

// Publisher announces finished passes.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RefreshEvent is the payload published when a pass ends.
type RefreshEvent struct {
	Type     string                  `json:"type"`
	RunID    string                  `json:"run_id"`
	Scope    string                  `json:"scope"`
	Goal     string                  `json:"goal"`
	Country  string                  `json:"country"`
	Status   opportunity.RunStatus   `json:"status"`
	Counters opportunity.RunCounters `json:"counters"`
	Error    string                  `json:"error,omitempty"`
	Finished time.Time               `json:"finished"`
}

// Attributes labels the Pub/Sub message so subscribers can filter by status.
func (e RefreshEvent) Attributes() map[string]string {
	return map[string]string{"type": e.Type, "scope": e.Scope, "status": string(e.Status)}
}

// RefreshConfig tunes background passes.
type RefreshConfig struct {
	// MaxAge gates each source through IsDueForRefresh.
	MaxAge time.Duration
	// PassTimeout bounds one background pass.
	PassTimeout time.Duration
	// LaunchesPerMinute and LaunchBurst limit how often Trigger starts passes.
	LaunchesPerMinute float64
	LaunchBurst       int
	// Topic receives refresh events.
	Topic string
	// DefaultGoal labels records of passes without a goal.
	DefaultGoal opportunity.GoalType
}

// DefaultRefreshConfig returns production settings.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		MaxAge:            24 * time.Hour,
		PassTimeout:       30 * time.Minute,
		LaunchesPerMinute: 6,
		LaunchBurst:       2,
		Topic:             "scholar-refreshes",
		DefaultGoal:       opportunity.GoalStudent,
	}
}

// RefresherDeps are the collaborators of a Refresher. Archive, Publisher and
// Runs are optional.
type RefresherDeps struct {
	Store     opportunity.Store
	Runs      opportunity.RunStore
	Catalog   *catalog.Catalog
	NewPager  func() Pager
	Extractor Extractor
	Archive   storage.BlobStore
	Hasher    Hasher
	IDs       IDGenerator
	Publisher Publisher
	Clock     opportunity.Clock
	Logger    *zap.Logger
}

// Refresher runs refresh passes over a scope. Every pass gets its own Pager so
// rate and identity state never leak between passes.
type Refresher struct {
	cfg     RefreshConfig
	deps    RefresherDeps
	limiter *rate.Limiter
	group   singleflight.Group
	active  sync.Map
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// NewRefresher validates deps and builds a Refresher.
func NewRefresher(cfg RefreshConfig, deps RefresherDeps) (*Refresher, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("refresher requires a store")
	}
	if deps.NewPager == nil {
		return nil, fmt.Errorf("refresher requires a pager factory")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("refresher requires an extractor")
	}
	if deps.IDs == nil {
		return nil, fmt.Errorf("refresher requires an id generator")
	}
	if deps.Archive != nil && deps.Hasher == nil {
		return nil, fmt.Errorf("archiving requires a hasher")
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.DefaultGoal == "" {
		cfg.DefaultGoal = opportunity.GoalStudent
	}
	limit := rate.Inf
	if cfg.LaunchesPerMinute > 0 {
		limit = rate.Limit(cfg.LaunchesPerMinute / 60)
	}
	burst := cfg.LaunchBurst
	if burst <= 0 {
		burst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Refresher{
		cfg:     cfg,
		deps:    deps,
		limiter: rate.NewLimiter(limit, burst),
		ctx:     ctx,
		cancel:  cancel,
		logger:  deps.Logger,
	}, nil
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// Trigger starts a background pass for scope unless one is already running or
// the launch limiter refuses. It never blocks on the pass.
func (r *Refresher) Trigger(scope Scope) bool {
	key := scope.Key()
	if _, running := r.active.LoadOrStore(key, struct{}{}); running {
		metrics.ObserveRefresh("in_flight")
		return false
	}
	if r.ctx.Err() != nil {
		r.active.Delete(key)
		return false
	}
	if !r.limiter.Allow() {
		r.active.Delete(key)
		metrics.ObserveRefresh("throttled")
		r.logger.Debug("background refresh throttled", zap.String("scope", key))
		return false
	}

	// Counted before the pass starts so Close always waits for it.
	r.wg.Add(1)
	ch := r.group.DoChan(key, func() (any, error) {
		ctx := r.ctx
		if r.cfg.PassTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.cfg.PassTimeout)
			defer cancel()
		}
		return r.guardedPass(ctx, scope)
	})
	go func() {
		defer r.wg.Done()
		defer r.active.Delete(key)
		res := <-ch
		if res.Err != nil {
			r.logger.Warn("background refresh failed", zap.String("scope", key), zap.Error(res.Err))
			return
		}
		if run, ok := res.Val.(opportunity.Run); ok {
			r.logger.Info("background refresh finished",
				zap.String("scope", key),
				zap.String("run_id", run.ID),
				zap.Int("records", run.Counters.Records),
			)
		}
	}()
	return true
}

// Refresh runs a pass for scope and waits for it. Concurrent calls for the
// same scope share one pass.
func (r *Refresher) Refresh(ctx context.Context, scope Scope) (opportunity.Run, error) {
	key := scope.Key()
	if _, running := r.active.LoadOrStore(key, struct{}{}); !running {
		defer r.active.Delete(key)
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.guardedPass(ctx, scope)
	})
	if err != nil {
		return opportunity.Run{}, err
	}
	run, _ := v.(opportunity.Run)
	return run, nil
}

// Wait blocks until every triggered pass has finished.
func (r *Refresher) Wait() {
	r.wg.Wait()
}

// Close cancels running background passes and waits for them.
func (r *Refresher) Close() {
	r.cancel()
	r.wg.Wait()
}

// Run looks up a recorded pass.
func (r *Refresher) Run(ctx context.Context, id string) (opportunity.Run, error) {
	if r.deps.Runs == nil {
		return opportunity.Run{}, opportunity.ErrRunNotFound
	}
	return r.deps.Runs.GetRun(ctx, id)
}

// Runs lists recent passes.
func (r *Refresher) Runs(ctx context.Context, limit int) ([]opportunity.Run, error) {
	if r.deps.Runs == nil {
		return nil, nil
	}
	return r.deps.Runs.ListRuns(ctx, limit)
}

// guardedPass turns panics into errors.
func (r *Refresher) guardedPass(ctx context.Context, scope Scope) (run opportunity.Run, err error) {
	defer func() {
		if p := recover(); p != nil {
			metrics.ObserveRefresh("panic")
			err = fmt.Errorf("refresh %s panicked: %v", scope.Key(), p)
		}
	}()
	return r.pass(ctx, scope)
}

func (r *Refresher) pass(ctx context.Context, scope Scope) (opportunity.Run, error) {
	id, err := r.deps.IDs.NewID()
	if err != nil {
		metrics.ObserveRefresh("error")
		return opportunity.Run{}, fmt.Errorf("generate run id: %w", err)
	}
	run := opportunity.Run{
		ID:      id,
		Scope:   scope.Key(),
		Status:  opportunity.RunQueued,
		Created: r.deps.Clock.Now(),
	}
	r.createRun(ctx, run)

	sites := r.deps.Catalog.ScopeSites(scope.Goal, scope.Country)
	hints, err := r.deps.Store.SourceHints(ctx, scope.UserID, true)
	if err != nil {
		r.logger.Warn("load source hints", zap.String("scope", run.Scope), zap.Error(err))
	}
	sites = catalog.MergeHints(sites, hints)

	counters := opportunity.RunCounters{Sources: len(sites)}
	r.updateRun(ctx, id, opportunity.RunRunning, "", counters)

	goal := scope.Goal
	if goal == "" {
		goal = r.cfg.DefaultGoal
	}
	pager := r.deps.NewPager()
	var passErr error
	for _, site := range sites {
		if ctx.Err() != nil {
			passErr = ctx.Err()
			break
		}
		due, err := r.deps.Store.IsDueForRefresh(ctx, site, r.cfg.MaxAge)
		if err != nil {
			r.logger.Warn("refresh gate failed", zap.String("url", site), zap.Error(err))
			counters.Failed++
			continue
		}
		if !due {
			counters.Skipped++
			continue
		}
		page, err := pager.Fetch(ctx, site)
		switch {
		case err == nil:
		case fetcher.Skipped(err):
			counters.Skipped++
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			passErr = err
		default:
			counters.Failed++
			continue
		}
		if passErr != nil {
			break
		}
		counters.Fetched++

		if r.archive(ctx, site, page) {
			counters.Archived++
		}
		records := r.deps.Extractor.Extract(page.Body, site, goal)
		if len(records) == 0 {
			continue
		}
		records = tagFresh(records, scope.Country, nil)
		if err := r.deps.Store.Upsert(ctx, records); err != nil {
			r.logger.Warn("upsert refreshed records", zap.String("url", site), zap.Error(err))
			counters.Failed++
			continue
		}
		counters.Records += len(records)
	}

	status, errText := opportunity.RunSucceeded, ""
	if passErr != nil {
		status, errText = opportunity.RunFailed, passErr.Error()
	}
	// Bookkeeping must survive a cancelled pass context.
	doneCtx := context.WithoutCancel(ctx)
	r.updateRun(doneCtx, id, status, errText, counters)
	metrics.ObserveRefresh(string(status))

	run.Status, run.Error, run.Counters = status, errText, counters
	if r.deps.Runs != nil {
		if stored, err := r.deps.Runs.GetRun(doneCtx, id); err == nil {
			run = stored
		}
	}
	r.publish(doneCtx, scope, run)
	return run, nil
}

func (r *Refresher) createRun(ctx context.Context, run opportunity.Run) {
	if r.deps.Runs == nil {
		return
	}
	if err := r.deps.Runs.CreateRun(ctx, run); err != nil {
		r.logger.Warn("create run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (r *Refresher) updateRun(ctx context.Context, id string, status opportunity.RunStatus, errText string, counters opportunity.RunCounters) {
	if r.deps.Runs == nil {
		return
	}
	if err := r.deps.Runs.UpdateRun(ctx, id, status, errText, counters); err != nil {
		r.logger.Warn("update run", zap.String("run_id", id), zap.Error(err))
	}
}

// archive stores the raw page under pages/<date>/<host>/<digest>.html.
func (r *Refresher) archive(ctx context.Context, site string, page fetcher.Result) bool {
	if r.deps.Archive == nil || len(page.Body) == 0 {
		return false
	}
	digest, err := r.deps.Hasher.Hash(page.Body)
	if err != nil {
		r.logger.Warn("hash page", zap.String("url", site), zap.Error(err))
		return false
	}
	host := "unknown"
	if u, err := url.Parse(site); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	at := page.FetchedAt
	if at.IsZero() {
		at = r.deps.Clock.Now()
	}
	path := fmt.Sprintf("pages/%s/%s/%s.html", at.UTC().Format("2006/01/02"), host, digest)
	uri, err := r.deps.Archive.PutObject(ctx, path, "text/html", bytes.NewReader(page.Body))
	if err != nil {
		r.logger.Warn("archive page", zap.String("url", site), zap.Error(err))
		return false
	}
	r.logger.Debug("page archived", zap.String("url", site), zap.String("uri", uri))
	return true
}

func (r *Refresher) publish(ctx context.Context, scope Scope, run opportunity.Run) {
	if r.deps.Publisher == nil {
		return
	}
	event := RefreshEvent{
		Type:     EventRefreshCompleted,
		RunID:    run.ID,
		Scope:    run.Scope,
		Goal:     string(scope.Goal),
		Country:  scope.Country,
		Status:   run.Status,
		Counters: run.Counters,
		Error:    run.Error,
		Finished: r.deps.Clock.Now(),
	}
	if _, err := r.deps.Publisher.Publish(ctx, r.cfg.Topic, event); err != nil {
		r.logger.Warn("publish refresh event", zap.String("run_id", run.ID), zap.Error(err))
	}
}

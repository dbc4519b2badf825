// Package coordinator answers searches from the cache first and tops it up
// with live fetches when results are sparse.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholarship-finder/internal/catalog"
	"github.com/JakeFAU/scholarship-finder/internal/fetcher"
	"github.com/JakeFAU/scholarship-finder/internal/jitter"
	"github.com/JakeFAU/scholarship-finder/internal/metrics"
	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

// Pager fetches one page. *fetcher.Fetcher satisfies it.
type Pager interface {
	Fetch(ctx context.Context, rawURL string) (fetcher.Result, error)
}

// suspensionResetter is implemented by pagers that suspend failing domains.
// Suspensions last until every top-up in flight has finished.
type suspensionResetter interface {
	ResetSuspensions()
}

// Extractor turns a page into records. *extract.Extractor satisfies it.
type Extractor interface {
	Extract(content []byte, sourceURL string, goal opportunity.GoalType) []opportunity.Record
}

// Launcher starts background refreshes. *Refresher satisfies it.
type Launcher interface {
	Trigger(scope Scope) bool
}

// State is one step of a search.
type State string

// Search states, in order.
const (
	StateCachedLookup      State = "cached_lookup"
	StateSupplementalFetch State = "supplemental_fetch"
	StateMerge             State = "merge"
	StateRank              State = "rank"
	StateReturn            State = "return"
)

// ErrInvalidHint is returned for source hints that are not absolute http(s) URLs.
var ErrInvalidHint = errors.New("source hint must be an absolute http(s) URL")

// Config holds the thresholds of the search path.
type Config struct {
	// ForegroundThreshold: fewer cached results than this trigger a synchronous top-up.
	ForegroundThreshold int
	// BackgroundThreshold: fewer cached results than this trigger a background refresh.
	BackgroundThreshold int
	MaxForegroundSites  int
	PerSiteCap          int
	ForegroundCap       int
	ForegroundMaxAge    time.Duration
	// SitePauseMin and SitePauseMax bound the pause between foreground sites.
	SitePauseMin time.Duration
	SitePauseMax time.Duration
	// DefaultGoal labels fresh records when the request has no goal.
	DefaultGoal opportunity.GoalType
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		ForegroundThreshold: 10,
		BackgroundThreshold: 5,
		MaxForegroundSites:  3,
		PerSiteCap:          5,
		ForegroundCap:       10,
		ForegroundMaxAge:    6 * time.Hour,
		SitePauseMin:        time.Second,
		SitePauseMax:        3 * time.Second,
		DefaultGoal:         opportunity.GoalStudent,
	}
}

// Request is one search.
type Request struct {
	Goal     opportunity.GoalType
	Keywords []string
	Country  string
	UserID   string
	Limit    int
}

// Response carries the ranked records and a trace of the states visited.
type Response struct {
	Records           []opportunity.Record `json:"records"`
	States            []State              `json:"states"`
	Cached            int                  `json:"cached"`
	Fresh             int                  `json:"fresh"`
	BackgroundStarted bool                 `json:"background_started"`
}

// Options carries optional collaborators.
type Options struct {
	Refresher Launcher
	Sleeper   fetcher.Sleeper
	Rand      jitter.Source
	Logger    *zap.Logger
}

// Coordinator serves searches.
type Coordinator struct {
	cfg       Config
	store     opportunity.Store
	catalog   *catalog.Catalog
	quick     Pager
	extractor Extractor
	refresher Launcher
	sleeper   fetcher.Sleeper
	rnd       jitter.Source
	logger    *zap.Logger

	mu     sync.Mutex
	topUps int
}

// New builds a Coordinator. quick may be nil to disable foreground top-ups.
func New(cfg Config, store opportunity.Store, cat *catalog.Catalog, quick Pager, extractor Extractor, opts Options) *Coordinator {
	if cat == nil {
		cat = catalog.Default()
	}
	if cfg.DefaultGoal == "" {
		cfg.DefaultGoal = opportunity.GoalStudent
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = fetcher.TimerSleeper{}
	}
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		catalog:   cat,
		quick:     quick,
		extractor: extractor,
		refresher: opts.Refresher,
		sleeper:   sleeper,
		rnd:       jitter.Or(opts.Rand),
		logger:    logger,
	}
}

// Search answers req from the cache, topping up with live fetches when the
// cache is sparse. It fails only when the cache lookup itself fails.
func (c *Coordinator) Search(ctx context.Context, req Request) (Response, error) {
	q := opportunity.Query{
		Goal:     req.Goal,
		Keywords: opportunity.NormalizeKeywords(req.Keywords),
		Country:  strings.TrimSpace(req.Country),
		Limit:    req.Limit,
	}
	limit := q.EffectiveLimit()
	q.Limit = limit
	resp := Response{States: []State{StateCachedLookup}}
	cached, err := c.store.Search(ctx, q)
	if err != nil {
		metrics.ObserveSearch("error")
		return Response{}, fmt.Errorf("cached lookup: %w", err)
	}
	resp.Cached = len(cached)

	if len(cached) < c.cfg.BackgroundThreshold && c.refresher != nil {
		resp.BackgroundStarted = c.refresher.Trigger(Scope{Goal: req.Goal, Country: q.Country, UserID: req.UserID})
	}

	merged := cached
	path := "cached"
	if len(cached) < c.cfg.ForegroundThreshold && c.quick != nil && c.extractor != nil {
		resp.States = append(resp.States, StateSupplementalFetch)
		path = "supplemental"
		fresh := c.topUp(ctx, q)
		resp.Fresh = len(fresh)
		merged = append(append([]opportunity.Record(nil), cached...), fresh...)
	}

	resp.States = append(resp.States, StateMerge)
	merged = opportunity.Dedupe(merged)
	resp.States = append(resp.States, StateRank)
	opportunity.Rank(merged)

	if len(merged) > limit {
		merged = merged[:limit]
	}
	resp.Records = merged
	resp.States = append(resp.States, StateReturn)
	metrics.ObserveSearch(path)
	c.logger.Debug("search served",
		zap.String("goal", string(req.Goal)),
		zap.String("country", q.Country),
		zap.Int("cached", resp.Cached),
		zap.Int("fresh", resp.Fresh),
		zap.Bool("background", resp.BackgroundStarted),
	)
	return resp, nil
}

// topUp fetches a few reliable sites with the quick pager and writes the
// fresh records back. Failures only shrink the result.
func (c *Coordinator) topUp(ctx context.Context, q opportunity.Query) []opportunity.Record {
	c.beginTopUp()
	defer c.endTopUp()

	goal := q.Goal
	if goal == "" {
		goal = c.cfg.DefaultGoal
	}
	sites := c.catalog.ForegroundSites(q.Country, c.cfg.MaxForegroundSites)

	var (
		fresh   []opportunity.Record
		fetched bool
	)
	for _, site := range sites {
		if ctx.Err() != nil || len(fresh) >= c.cfg.ForegroundCap {
			break
		}
		due, err := c.store.IsDueForRefresh(ctx, site, c.cfg.ForegroundMaxAge)
		if err != nil {
			c.logger.Warn("refresh gate failed", zap.String("url", site), zap.Error(err))
			continue
		}
		if !due {
			continue
		}
		if fetched {
			pause := jitter.Duration(c.rnd, c.cfg.SitePauseMin, c.cfg.SitePauseMax)
			if err := c.sleeper.Sleep(ctx, pause); err != nil {
				break
			}
		}
		fetched = true
		page, err := c.quick.Fetch(ctx, site)
		if err != nil {
			if fetcher.Skipped(err) {
				c.logger.Debug("foreground fetch skipped", zap.String("url", site), zap.Error(err))
			} else {
				c.logger.Info("foreground fetch failed", zap.String("url", site), zap.Error(err))
			}
			continue
		}
		var matched []opportunity.Record
		for _, r := range c.extractor.Extract(page.Body, site, goal) {
			if opportunity.MatchesKeywords(r, q.Keywords) {
				matched = append(matched, r)
			}
			if len(matched) >= c.cfg.PerSiteCap {
				break
			}
		}
		fresh = append(fresh, matched...)
	}
	if len(fresh) > c.cfg.ForegroundCap {
		fresh = fresh[:c.cfg.ForegroundCap]
	}
	if len(fresh) == 0 {
		return nil
	}

	fresh = tagFresh(fresh, q.Country, q.Keywords)
	if err := c.store.Upsert(ctx, fresh); err != nil {
		c.logger.Warn("write back fresh records", zap.Int("records", len(fresh)), zap.Error(err))
	}
	return fresh
}

func (c *Coordinator) beginTopUp() {
	c.mu.Lock()
	c.topUps++
	c.mu.Unlock()
}

// endTopUp lifts the quick pager's domain suspensions once no top-up is running.
func (c *Coordinator) endTopUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topUps--
	if c.topUps > 0 {
		return
	}
	if r, ok := c.quick.(suspensionResetter); ok {
		r.ResetSuspensions()
	}
}

// AddSourceHint validates and stores a user supplied seed URL.
func (c *Coordinator) AddSourceHint(ctx context.Context, rawURL, addedBy string, isPublic bool) (bool, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false, fmt.Errorf("%q: %w", rawURL, ErrInvalidHint)
	}
	added, err := c.store.AddSourceHint(ctx, rawURL, addedBy, isPublic)
	if err != nil {
		return false, fmt.Errorf("add source hint: %w", err)
	}
	return added, nil
}

// SourceHints lists the hints visible to userID.
func (c *Coordinator) SourceHints(ctx context.Context, userID string) ([]opportunity.SourceHint, error) {
	hints, err := c.store.SourceHints(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("list source hints: %w", err)
	}
	return hints, nil
}

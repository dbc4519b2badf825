// Package fetcher retrieves pages politely: it asks the rate governor for
// admission, paces requests like a human reader, presents a rotating browser
// identity and retries according to the retry engine.
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholarship-finder/internal/identity"
	"github.com/JakeFAU/scholarship-finder/internal/jitter"
	"github.com/JakeFAU/scholarship-finder/internal/metrics"
	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
	"github.com/JakeFAU/scholarship-finder/internal/policy/ratelimit"
	"github.com/JakeFAU/scholarship-finder/internal/policy/retry"
)

// Request is one HTTP GET handed to a Transport.
type Request struct {
	URL      string
	Identity identity.Identity
	Timeout  time.Duration
}

// Response is what a Transport observed. Non-2xx statuses are responses, not errors.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Transport performs a single GET.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// RobotsPolicy decides whether robots.txt permits a URL.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Result is a successfully fetched page.
type Result struct {
	URL        string
	StatusCode int
	Body       []byte
	Attempts   int
	FetchedAt  time.Time
}

// Profile bounds the per-request timeout, drawn uniformly for every attempt.
type Profile struct {
	TimeoutMin time.Duration
	TimeoutMax time.Duration
}

// FullProfile is used for background refresh passes.
func FullProfile() Profile {
	return Profile{TimeoutMin: 15 * time.Second, TimeoutMax: 25 * time.Second}
}

// QuickProfile is used for foreground top-ups.
func QuickProfile() Profile {
	return Profile{TimeoutMin: 10 * time.Second, TimeoutMax: 10 * time.Second}
}

// Config holds the tunables of a Fetcher. The zero value performs no waiting at all.
type Config struct {
	Pacing  PacingConfig
	Reading ReadingConfig
	Profile Profile
}

// DefaultConfig returns production pacing with the full timeout profile.
func DefaultConfig() Config {
	return Config{Pacing: DefaultPacing(), Reading: DefaultReading(), Profile: FullProfile()}
}

// Options carries the collaborators of a Fetcher. Nil members get private defaults,
// except Recorder and Robots which are simply skipped.
type Options struct {
	Governor *ratelimit.Governor
	Rotator  *identity.Rotator
	Retry    *retry.Engine
	Recorder opportunity.OutcomeRecorder
	Robots   RobotsPolicy
	Sleeper  Sleeper
	Rand     jitter.Source
	Clock    opportunity.Clock
	Logger   *zap.Logger
}

// Fetcher is not shared between passes; each owns its rate and identity state.
type Fetcher struct {
	cfg       Config
	transport Transport
	governor  *ratelimit.Governor
	rotator   *identity.Rotator
	retry     *retry.Engine
	recorder  opportunity.OutcomeRecorder
	robots    RobotsPolicy
	sleeper   Sleeper
	rnd       jitter.Source
	now       func() time.Time
	logger    *zap.Logger
}

// New builds a Fetcher around transport.
func New(transport Transport, cfg Config, opts Options) *Fetcher {
	rnd := jitter.Or(opts.Rand)
	now := time.Now
	if opts.Clock != nil {
		now = opts.Clock.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		cfg:       cfg,
		transport: transport,
		governor:  opts.Governor,
		rotator:   opts.Rotator,
		retry:     opts.Retry,
		recorder:  opts.Recorder,
		robots:    opts.Robots,
		sleeper:   opts.Sleeper,
		rnd:       rnd,
		now:       now,
		logger:    logger,
	}
	if f.governor == nil {
		f.governor = ratelimit.New(ratelimit.Config{}, now)
	}
	if f.rotator == nil {
		f.rotator = identity.NewRotator(identity.DefaultConfig(), rnd, now)
	}
	if f.retry == nil {
		f.retry = retry.New(retry.DefaultConfig(), rnd)
	}
	if f.sleeper == nil {
		f.sleeper = TimerSleeper{}
	}
	return f
}

// Governor exposes the admission state.
func (f *Fetcher) Governor() *ratelimit.Governor {
	return f.governor
}

// ResetSuspensions lifts every domain suspension. Long lived fetchers call it
// when the operation that observed the failures is over.
func (f *Fetcher) ResetSuspensions() {
	f.governor.Reset()
}

// Fetch retrieves rawURL. It returns ErrAdmissionDenied or ErrRobotsDisallowed
// when the request was skipped, and an error matching ErrTerminal (with a
// *FetchError inside) when every attempt failed.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if parsed.Host == "" {
		return Result{}, fmt.Errorf("invalid url %q: missing host", rawURL)
	}
	host := strings.ToLower(parsed.Hostname())
	site := metrics.SanitizeSite(rawURL)

	if !f.governor.Admit(host) {
		f.logger.Debug("domain not admitted", zap.String("host", host))
		metrics.ObserveFetch(site, "denied", 0)
		return Result{}, fmt.Errorf("%s: %w", host, ErrAdmissionDenied)
	}
	if f.robots != nil && !f.robots.Allowed(ctx, rawURL) {
		metrics.ObserveFetch(site, "robots", 0)
		return Result{}, fmt.Errorf("%s: %w", rawURL, ErrRobotsDisallowed)
	}

	if f.rotator.MaybeRefreshSession() {
		f.logger.Debug("session refreshed", zap.String("host", host))
	}

	var (
		lastStatus int
		lastErr    error
		lastReason string
		attempts   int
	)
	for attempt := 0; attempt < f.retry.MaxAttempts(); attempt++ {
		if f.rotator.ShouldRotate(attempt) {
			f.rotator.Rotate()
		}
		if attempt == 0 {
			if err := f.pace(ctx); err != nil {
				return Result{}, err
			}
		}

		f.rotator.CountRequest()
		attempts++
		resp, doErr := f.transport.Do(ctx, Request{
			URL:      rawURL,
			Identity: f.rotator.Current(),
			Timeout:  jitter.Duration(f.rnd, f.cfg.Profile.TimeoutMin, f.cfg.Profile.TimeoutMax),
		})
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
		}

		decision := f.retry.Classify(resp.StatusCode, doErr, attempt)
		switch decision.Outcome {
		case retry.Success:
			return f.succeed(ctx, rawURL, host, site, resp, attempts)
		case retry.Terminal:
			f.logger.Debug("terminal fetch outcome",
				zap.String("url", rawURL),
				zap.Int("status", resp.StatusCode),
				zap.String("reason", decision.Reason),
				zap.Error(doErr),
			)
			return Result{}, f.fail(ctx, rawURL, host, site, resp.StatusCode, attempts, decision.Reason, doErr)
		}

		lastStatus, lastErr, lastReason = resp.StatusCode, doErr, decision.Reason
		metrics.ObserveRetry(decision.Reason)
		f.logger.Debug("retryable fetch outcome",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Int("status", resp.StatusCode),
			zap.String("reason", decision.Reason),
			zap.Duration("delay", decision.Delay),
			zap.Error(doErr),
		)
		if decision.Stealth {
			f.rotator.ClearSession()
		}
		if f.retry.Exhausted(attempt + 1) {
			break
		}
		if err := f.sleeper.Sleep(ctx, decision.Delay); err != nil {
			return Result{}, fmt.Errorf("retry backoff: %w", err)
		}
	}
	return Result{}, f.fail(ctx, rawURL, host, site, lastStatus, attempts, lastReason, lastErr)
}

func (f *Fetcher) succeed(ctx context.Context, rawURL, host, site string, resp Response, attempts int) (Result, error) {
	if err := f.readingPause(ctx, len(resp.Body)); err != nil {
		return Result{}, err
	}
	f.governor.RecordOutcome(host, true)
	f.record(ctx, rawURL, true)
	metrics.ObserveFetch(site, "success", len(resp.Body))
	finalURL := resp.URL
	if finalURL == "" {
		finalURL = rawURL
	}
	return Result{
		URL:        finalURL,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Attempts:   attempts,
		FetchedAt:  f.now(),
	}, nil
}

func (f *Fetcher) fail(ctx context.Context, rawURL, host, site string, status, attempts int, reason string, cause error) error {
	f.governor.RecordOutcome(host, false)
	f.record(ctx, rawURL, false)
	metrics.ObserveFetch(site, "failure", 0)
	f.logger.Info("fetch failed",
		zap.String("url", rawURL),
		zap.Int("status", status),
		zap.Int("attempts", attempts),
		zap.String("reason", reason),
	)
	return &FetchError{URL: rawURL, Status: status, Attempts: attempts, Reason: reason, Err: cause}
}

func (f *Fetcher) record(ctx context.Context, rawURL string, success bool) {
	if f.recorder == nil {
		return
	}
	if err := f.recorder.RecordFetchOutcome(ctx, rawURL, success); err != nil {
		f.logger.Warn("record fetch outcome", zap.String("url", rawURL), zap.Error(err))
	}
}

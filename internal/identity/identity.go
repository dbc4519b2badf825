// Package identity maintains the browser persona presented to remote sites:
// user agent, request headers, referer and a session generation that tells
// the transport when to drop cookies.
package identity

import (
	"net/http"
	"sync"
	"time"

	"github.com/JakeFAU/scholarship-finder/internal/jitter"
)

// DefaultUserAgents is the pool of desktop browser user agents.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.2478.51",
}

// DefaultReferers is the pool of plausible referring pages.
var DefaultReferers = []string{
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://duckduckgo.com/",
	"https://search.yahoo.com/",
	"https://www.google.com/search?q=scholarships",
}

// DefaultHeaders are the static browser headers sent with every request.
var DefaultHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Accept-Encoding":           "gzip, deflate",
	"DNT":                       "1",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// Identity is the persona applied to one outgoing request.
type Identity struct {
	UserAgent string
	Referer   string
	Headers   map[string]string
	// Session changes whenever cookies must be discarded.
	Session uint64
}

// Apply writes the identity onto h.
func (i Identity) Apply(h http.Header) {
	for k, v := range i.Headers {
		h.Set(k, v)
	}
	if i.UserAgent != "" {
		h.Set("User-Agent", i.UserAgent)
	}
	if i.Referer != "" {
		h.Set("Referer", i.Referer)
	}
}

// Config tunes rotation behaviour. Zero values fall back to the defaults below.
type Config struct {
	UserAgents []string
	Referers   []string
	Headers    map[string]string

	// BaseRotationChance + attempt*AttemptRotationStep is the per-attempt rotation probability.
	BaseRotationChance  float64
	AttemptRotationStep float64
	// Every PeriodicEvery requests the user agent rotates with PeriodicChance.
	PeriodicEvery  int
	PeriodicChance float64
	// Sessions older than SessionMaxAge clear cookies with probability ClearChance.
	SessionMaxAge time.Duration
	ClearChance   float64
}

// DefaultConfig returns the stock rotation settings.
func DefaultConfig() Config {
	return Config{
		UserAgents:          DefaultUserAgents,
		Referers:            DefaultReferers,
		Headers:             DefaultHeaders,
		BaseRotationChance:  0.15,
		AttemptRotationStep: 0.25,
		PeriodicEvery:       15,
		PeriodicChance:      0.4,
		SessionMaxAge:       30 * time.Minute,
		ClearChance:         0.1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if len(c.UserAgents) == 0 {
		c.UserAgents = def.UserAgents
	}
	if len(c.Referers) == 0 {
		c.Referers = def.Referers
	}
	if c.Headers == nil {
		c.Headers = def.Headers
	}
	if c.BaseRotationChance == 0 && c.AttemptRotationStep == 0 {
		c.BaseRotationChance = def.BaseRotationChance
		c.AttemptRotationStep = def.AttemptRotationStep
	}
	if c.PeriodicEvery <= 0 {
		c.PeriodicEvery = def.PeriodicEvery
	}
	if c.PeriodicChance == 0 {
		c.PeriodicChance = def.PeriodicChance
	}
	if c.SessionMaxAge <= 0 {
		c.SessionMaxAge = def.SessionMaxAge
	}
	if c.ClearChance == 0 {
		c.ClearChance = def.ClearChance
	}
	return c
}

// Stats counts identity events over the rotator's lifetime.
type Stats struct {
	TotalRequests  int
	Rotations      int
	CookiesCleared int
	SessionStart   time.Time
}

// Rotator owns one identity. Each fetcher gets its own instance.
type Rotator struct {
	mu      sync.Mutex
	cfg     Config
	rnd     jitter.Source
	now     func() time.Time
	current Identity
	stats   Stats
}

// NewRotator builds a rotator with a freshly drawn identity. rnd and now may be nil.
func NewRotator(cfg Config, rnd jitter.Source, now func() time.Time) *Rotator {
	if now == nil {
		now = time.Now
	}
	r := &Rotator{
		cfg: cfg.withDefaults(),
		rnd: jitter.Or(rnd),
		now: now,
	}
	r.stats.SessionStart = now()
	r.current = r.draw(0)
	return r
}

func (r *Rotator) draw(session uint64) Identity {
	headers := make(map[string]string, len(r.cfg.Headers))
	for k, v := range r.cfg.Headers {
		headers[k] = v
	}
	return Identity{
		UserAgent: jitter.Pick(r.rnd, r.cfg.UserAgents),
		Referer:   jitter.Pick(r.rnd, r.cfg.Referers),
		Headers:   headers,
		Session:   session,
	}
}

// Current returns the identity to use for the next request.
func (r *Rotator) Current() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Rotate draws a new user agent and referer, keeping the cookie session.
func (r *Rotator) Rotate() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotateLocked()
}

func (r *Rotator) rotateLocked() Identity {
	r.current = r.draw(r.current.Session)
	r.stats.Rotations++
	return r.current
}

// ShouldRotate reports whether the identity should change before the given
// zero-based attempt. The probability grows with each retry.
func (r *Rotator) ShouldRotate(attempt int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.cfg.BaseRotationChance + float64(attempt)*r.cfg.AttemptRotationStep
	return jitter.Chance(r.rnd, p)
}

// CountRequest records one outgoing request.
func (r *Rotator) CountRequest() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalRequests++
}

// MaybeRefreshSession runs session hygiene before a fetch: old sessions may
// drop their cookies and every PeriodicEvery requests the user agent may
// rotate. It reports whether cookies were cleared.
func (r *Rotator) MaybeRefreshSession() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cleared := false
	if r.now().Sub(r.stats.SessionStart) > r.cfg.SessionMaxAge && jitter.Chance(r.rnd, r.cfg.ClearChance) {
		r.clearLocked()
		cleared = true
	}
	n := r.stats.TotalRequests
	if n > 0 && n%r.cfg.PeriodicEvery == 0 && jitter.Chance(r.rnd, r.cfg.PeriodicChance) {
		r.rotateLocked()
	}
	return cleared
}

// ClearSession drops cookies and redraws every identity attribute. Used when
// a site answers with 403.
func (r *Rotator) ClearSession() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
	return r.rotateLocked()
}

func (r *Rotator) clearLocked() {
	r.current.Session++
	r.stats.CookiesCleared++
	r.stats.SessionStart = r.now()
}

// Stats returns a snapshot of the lifetime counters.
func (r *Rotator) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

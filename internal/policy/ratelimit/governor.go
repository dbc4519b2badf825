// Package ratelimit implements per-domain admission control for the fetcher:
// request counters inside cooldown windows plus temporary domain suspension.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/scholarship-finder/internal/metrics"
)

// Defaults applied when Config leaves a value unset.
const (
	DefaultMaxRequests   = 10
	DefaultCooldown      = 60 * time.Second
	DefaultHistoryWindow = 5 * time.Minute
)

// Config holds governor configuration.
//   - MaxRequests: admissions allowed per domain inside one cooldown window.
//   - Cooldown: window length; the counter resets on the first check after it elapses.
//   - SuspendFor: how long a failed domain stays suspended. Zero keeps it suspended
//     until Reset, i.e. for the lifetime of the owning fetcher.
//   - HistoryWindow: horizon used by RecentRequests.
type Config struct {
	MaxRequests   int
	Cooldown      time.Duration
	SuspendFor    time.Duration
	HistoryWindow time.Duration
}

// DomainState is a snapshot of the in-memory state kept for one domain.
type DomainState struct {
	Domain         string
	RequestCount   int
	WindowStart    time.Time
	SuspendedUntil *time.Time
}

type domainState struct {
	count       int
	windowStart time.Time
}

// Governor decides whether a domain may be contacted right now. State lives
// only in memory and is scoped to one instance; two governors never coordinate.
type Governor struct {
	mu        sync.Mutex
	cfg       Config
	now       func() time.Time
	domains   map[string]*domainState
	suspended map[string]time.Time
	history   []time.Time
}

// New creates a Governor. now may be nil, in which case time.Now is used.
func New(cfg Config, now func() time.Time) *Governor {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultMaxRequests
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Governor{
		cfg:       cfg,
		now:       now,
		domains:   make(map[string]*domainState),
		suspended: make(map[string]time.Time),
	}
}

// Admit reports whether a request to domain may proceed and, when it may,
// counts it against the domain's current window.
func (g *Governor) Admit(domain string) bool {
	key := normalizeDomain(domain)
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.isSuspendedLocked(key, now) {
		metrics.ObserveAdmissionDenied(key)
		return false
	}

	st, ok := g.domains[key]
	if !ok {
		g.domains[key] = &domainState{count: 1, windowStart: now}
		g.recordLocked(now)
		return true
	}
	if now.Sub(st.windowStart) >= g.cfg.Cooldown {
		st.count = 0
		st.windowStart = now
	}
	if st.count >= g.cfg.MaxRequests {
		metrics.ObserveAdmissionDenied(key)
		return false
	}
	st.count++
	g.recordLocked(now)
	return true
}

// RecordOutcome feeds a fetch result back. Failures suspend the domain.
func (g *Governor) RecordOutcome(domain string, success bool) {
	if success {
		return
	}
	key := normalizeDomain(domain)
	g.mu.Lock()
	defer g.mu.Unlock()
	var until time.Time
	if g.cfg.SuspendFor > 0 {
		until = g.now().Add(g.cfg.SuspendFor)
	}
	g.suspended[key] = until
}

// IsSuspended reports whether the domain is currently suspended.
func (g *Governor) IsSuspended(domain string) bool {
	key := normalizeDomain(domain)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isSuspendedLocked(key, g.now())
}

// RecentRequests returns how many admissions happened inside the history window.
func (g *Governor) RecentRequests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(g.now())
	return len(g.history)
}

// State returns a snapshot of the state tracked for domain.
func (g *Governor) State(domain string) (DomainState, bool) {
	key := normalizeDomain(domain)
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.domains[key]
	if !ok {
		return DomainState{}, false
	}
	out := DomainState{Domain: key, RequestCount: st.count, WindowStart: st.windowStart}
	if until, suspended := g.suspended[key]; suspended {
		u := until
		out.SuspendedUntil = &u
	}
	return out, true
}

// Reset lifts every suspension, e.g. at the end of a search operation.
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suspended = make(map[string]time.Time)
}

func (g *Governor) isSuspendedLocked(key string, now time.Time) bool {
	until, ok := g.suspended[key]
	if !ok {
		return false
	}
	if until.IsZero() || now.Before(until) {
		return true
	}
	delete(g.suspended, key)
	return false
}

func (g *Governor) recordLocked(now time.Time) {
	g.history = append(g.history, now)
	g.pruneLocked(now)
}

func (g *Governor) pruneLocked(now time.Time) {
	cutoff := now.Add(-g.cfg.HistoryWindow)
	i := 0
	for i < len(g.history) && g.history[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		g.history = append(g.history[:0], g.history[i:]...)
	}
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

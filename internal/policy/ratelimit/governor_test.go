package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGovernor(cfg Config) (*Governor, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	return New(cfg, clock.Now), clock
}

func TestGovernorLimitsWithinWindowAndResetsAfterCooldown(t *testing.T) {
	g, clock := newTestGovernor(Config{MaxRequests: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		require.True(t, g.Admit("example.org"), "admission %d", i)
	}
	require.False(t, g.Admit("example.org"), "limit reached inside the window")

	clock.Advance(30 * time.Second)
	require.False(t, g.Admit("example.org"), "still inside the window")

	clock.Advance(30 * time.Second)
	require.True(t, g.Admit("example.org"), "cooldown elapsed")
	st, ok := g.State("example.org")
	require.True(t, ok)
	require.Equal(t, 1, st.RequestCount, "counter resets on the next check, not on a timer")
}

func TestGovernorDomainsAreIndependent(t *testing.T) {
	g, _ := newTestGovernor(Config{MaxRequests: 1, Cooldown: time.Minute})

	require.True(t, g.Admit("a.org"))
	require.False(t, g.Admit("A.ORG"), "domain comparison is case-insensitive")
	require.True(t, g.Admit("b.org"))
}

func TestGovernorSuspendsFailedDomain(t *testing.T) {
	g, clock := newTestGovernor(Config{MaxRequests: 10, Cooldown: time.Minute, SuspendFor: 10 * time.Minute})

	require.True(t, g.Admit("flaky.org"))
	g.RecordOutcome("flaky.org", true)
	require.False(t, g.IsSuspended("flaky.org"))

	g.RecordOutcome("flaky.org", false)
	require.True(t, g.IsSuspended("flaky.org"))
	require.False(t, g.Admit("flaky.org"))

	clock.Advance(10 * time.Minute)
	require.True(t, g.Admit("flaky.org"), "suspension expires")
}

func TestGovernorIndefiniteSuspensionUntilReset(t *testing.T) {
	g, clock := newTestGovernor(Config{})

	g.RecordOutcome("blocked.org", false)
	clock.Advance(24 * time.Hour)
	require.False(t, g.Admit("blocked.org"))

	g.Reset()
	require.True(t, g.Admit("blocked.org"))
}

func TestGovernorRecentRequests(t *testing.T) {
	g, clock := newTestGovernor(Config{HistoryWindow: 5 * time.Minute})

	require.True(t, g.Admit("a.org"))
	require.True(t, g.Admit("b.org"))
	require.Equal(t, 2, g.RecentRequests())

	clock.Advance(6 * time.Minute)
	require.True(t, g.Admit("c.org"))
	require.Equal(t, 1, g.RecentRequests())
}

func TestGovernorDefaults(t *testing.T) {
	g := New(Config{}, nil)
	require.Equal(t, DefaultMaxRequests, g.cfg.MaxRequests)
	require.Equal(t, DefaultCooldown, g.cfg.Cooldown)
	for i := 0; i < DefaultMaxRequests; i++ {
		require.True(t, g.Admit("example.org"))
	}
	require.False(t, g.Admit("example.org"))
}

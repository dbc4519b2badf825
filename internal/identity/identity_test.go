package identity

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholarship-finder/internal/jitter"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestCurrentAppliesBrowserHeaders(t *testing.T) {
	t.Parallel()
	r := NewRotator(Config{UserAgents: []string{"ua-1"}, Referers: []string{"https://ref.example/"}}, jitter.Fixed(0), nil)

	h := http.Header{}
	r.Current().Apply(h)
	assert.Equal(t, "ua-1", h.Get("User-Agent"))
	assert.Equal(t, "https://ref.example/", h.Get("Referer"))
	assert.Equal(t, "1", h.Get("DNT"))
	assert.Equal(t, "en-US,en;q=0.5", h.Get("Accept-Language"))
}

func TestShouldRotateProbabilityGrowsWithAttempt(t *testing.T) {
	t.Parallel()
	r := NewRotator(Config{}, jitter.Fixed(0.3), nil)

	assert.False(t, r.ShouldRotate(0), "15 percent chance on the first attempt")
	assert.True(t, r.ShouldRotate(1), "40 percent on the second")
	assert.True(t, r.ShouldRotate(2), "65 percent on the third")
}

func TestRotateKeepsSession(t *testing.T) {
	t.Parallel()
	seq := &jitter.Sequence{Values: []float64{0, 0, 0.99, 0.99}}
	r := NewRotator(Config{UserAgents: []string{"a", "b"}}, seq, nil)
	before := r.Current()

	after := r.Rotate()
	assert.Equal(t, "a", before.UserAgent)
	assert.Equal(t, "b", after.UserAgent)
	assert.Equal(t, before.Session, after.Session)
	assert.Equal(t, 1, r.Stats().Rotations)
}

func TestClearSessionStartsNewCookieSession(t *testing.T) {
	t.Parallel()
	r := NewRotator(Config{}, jitter.Fixed(0.5), nil)
	before := r.Current()

	after := r.ClearSession()
	assert.Equal(t, before.Session+1, after.Session)
	stats := r.Stats()
	assert.Equal(t, 1, stats.CookiesCleared)
	assert.Equal(t, 1, stats.Rotations)
}

func TestMaybeRefreshSessionOnlyForOldSessions(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRotator(Config{}, jitter.Fixed(0.05), clock.Now)

	require.False(t, r.MaybeRefreshSession(), "fresh session keeps its cookies")

	clock.now = clock.now.Add(31 * time.Minute)
	require.True(t, r.MaybeRefreshSession())
	assert.Equal(t, 1, r.Stats().CookiesCleared)
	require.False(t, r.MaybeRefreshSession(), "clearing restarts the session clock")
}

func TestMaybeRefreshSessionPeriodicRotation(t *testing.T) {
	t.Parallel()
	r := NewRotator(Config{}, jitter.Fixed(0.2), nil)
	for i := 0; i < 14; i++ {
		r.CountRequest()
	}
	r.MaybeRefreshSession()
	assert.Equal(t, 0, r.Stats().Rotations)

	r.CountRequest()
	r.MaybeRefreshSession()
	assert.Equal(t, 1, r.Stats().Rotations)
	assert.Equal(t, 15, r.Stats().TotalRequests)
}

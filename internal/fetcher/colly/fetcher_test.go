package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholarship-finder/internal/fetcher"
	"github.com/JakeFAU/scholarship-finder/internal/identity"
)

func testIdentity(session uint64) identity.Identity {
	return identity.Identity{
		UserAgent: "test-agent/1.0",
		Referer:   "https://www.google.com/",
		Headers:   map[string]string{"DNT": "1", "Accept-Encoding": "gzip, deflate"},
		Session:   session,
	}
}

func TestDoSendsIdentityHeaders(t *testing.T) {
	t.Parallel()
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	tr := New(Config{Timeout: time.Second})
	resp, err := tr.Do(context.Background(), fetcher.Request{URL: srv.URL + "/list", Identity: testIdentity(0)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "ok")
	assert.Equal(t, srv.URL+"/list", resp.URL)

	assert.Equal(t, "test-agent/1.0", got.Get("User-Agent"))
	assert.Equal(t, "https://www.google.com/", got.Get("Referer"))
	assert.Equal(t, "1", got.Get("DNT"))
}

func TestDoReturnsErrorStatusesAsResponses(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := New(Config{})
	for i := 0; i < 2; i++ {
		resp, err := tr.Do(context.Background(), fetcher.Request{URL: srv.URL, Identity: testIdentity(0), Timeout: time.Second})
		require.NoError(t, err, "attempt %d", i)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "revisits are allowed")
	}
}

func TestDoDropsCookiesOnNewSession(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sid"); err != nil {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
			_, _ = w.Write([]byte("fresh"))
			return
		}
		_, _ = w.Write([]byte("returning"))
	}))
	defer srv.Close()

	tr := New(Config{Timeout: time.Second})
	ctx := context.Background()
	do := func(session uint64) string {
		resp, err := tr.Do(ctx, fetcher.Request{URL: srv.URL, Identity: testIdentity(session)})
		require.NoError(t, err)
		return string(resp.Body)
	}
	assert.Equal(t, "fresh", do(0))
	assert.Equal(t, "returning", do(0))
	assert.Equal(t, "fresh", do(1), "new session generation starts with an empty jar")
}

func TestDoTransportError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	tr := New(Config{Timeout: time.Second})
	_, err := tr.Do(context.Background(), fetcher.Request{URL: addr, Identity: testIdentity(0)})
	require.Error(t, err)
}

func TestDoCanceledContext(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := New(Config{Timeout: 5 * time.Second})
	_, err := tr.Do(ctx, fetcher.Request{URL: srv.URL, Identity: testIdentity(0)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDoCanceledMidResponseWaitsForVisit(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("<html><body>partial"))
			w.(http.Flusher).Flush()
			close(started)
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte("next"))
	}))
	defer srv.Close()
	defer close(release)

	tr := New(Config{Timeout: 10 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	begin := time.Now()
	_, err := tr.Do(ctx, fetcher.Request{URL: srv.URL + "/slow", Identity: testIdentity(0)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(begin), 5*time.Second, "cancellation aborts the request instead of waiting for the timeout")

	next, err := tr.Do(context.Background(), fetcher.Request{URL: srv.URL + "/next", Identity: testIdentity(0)})
	require.NoError(t, err)
	assert.Equal(t, "next", string(next.Body))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	tr := New(Config{})
	var result fetcher.Response
	var fetchErr error

	hooks := &stubHooks{}
	tr.configureCollectorHooks(hooks, fetcher.Request{Identity: testIdentity(0)}, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "test-agent/1.0", collyReq.Headers.Get("User-Agent"))
	assert.Empty(t, collyReq.Headers.Get("Accept-Encoding"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

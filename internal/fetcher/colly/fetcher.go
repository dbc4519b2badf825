// Package collyfetcher implements fetcher.Transport using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/scholarship-finder/internal/fetcher"
)

// DefaultTimeout applies when neither the request nor the config sets one.
const DefaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	Timeout     time.Duration
	MaxBodySize int
}

// Transport performs single GETs through a Colly collector. Cookies live in a
// jar that is replaced whenever the identity's session generation changes.
// Calls are serialized; give each fetch pass its own Transport.
type Transport struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector

	mu      sync.Mutex
	session uint64
	jar     http.CookieJar
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Transport.
func New(cfg Config) *Transport {
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	}
	if cfg.MaxBodySize > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodySize))
	}
	c := colly.NewCollector(opts...)
	transport := newHTTPTransport()
	c.WithTransport(transport)
	return &Transport{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		jar:           newJar(),
	}
}

// Do implements fetcher.Transport.
func (t *Transport) Do(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		result   fetcher.Response
		fetchErr error
	)
	collector := t.buildCollector(ctx, req)
	t.configureCollectorHooks(collector, req, &result, &fetchErr)
	if err := t.runCollector(ctx, collector, req.URL, &fetchErr); err != nil {
		return result, err
	}
	return result, nil
}

func (t *Transport) buildCollector(ctx context.Context, req fetcher.Request) *colly.Collector {
	collector := t.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	if req.Identity.UserAgent != "" {
		collector.UserAgent = req.Identity.UserAgent
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = t.cfg.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(contextRoundTripper{ctx: ctx, base: t.transport})

	if req.Identity.Session != t.session || t.jar == nil {
		t.session = req.Identity.Session
		t.jar = newJar()
	}
	collector.SetCookieJar(t.jar)
	return collector
}

func (t *Transport) configureCollectorHooks(
	hooks collectorHooks,
	req fetcher.Request,
	result *fetcher.Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(req, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = toResponse(r)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*result = toResponse(r)
			return
		}
		*fetchErr = err
	})
}

func (t *Transport) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	// Visit must finish before the hooks' targets are read. Cancellation
	// aborts the in-flight request, so the wait is short.
	err := <-done
	if ctx.Err() != nil {
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	}
	if *fetchErr != nil {
		return fmt.Errorf("colly response failed: %w", *fetchErr)
	}
	if err != nil {
		return fmt.Errorf("colly visit failed: %w", err)
	}
	return nil
}

// contextRoundTripper ties every request of one Do call to the caller's context.
type contextRoundTripper struct {
	ctx  context.Context
	base http.RoundTripper
}

func (rt contextRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	reqCtx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(rt.ctx, cancel)
	release := func() {
		stop()
		cancel()
	}
	resp, err := rt.base.RoundTrip(req.WithContext(reqCtx))
	if err != nil {
		release()
		return nil, err
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: release}
	return resp, nil
}

// releasingBody cancels the request context once the body is closed.
type releasingBody struct {
	io.ReadCloser
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}

func toResponse(r *colly.Response) fetcher.Response {
	resp := fetcher.Response{
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
	}
	if r.Headers != nil {
		resp.Headers = r.Headers.Clone()
	}
	if r.Request != nil && r.Request.URL != nil {
		resp.URL = r.Request.URL.String()
	}
	return resp
}

// copyHeaders applies the identity. Accept-Encoding is left to the HTTP client
// so compressed bodies arrive decoded.
func copyHeaders(req fetcher.Request, r *colly.Request) {
	if r.Headers == nil {
		h := http.Header{}
		r.Headers = &h
	}
	req.Identity.Apply(*r.Headers)
	r.Headers.Del("Accept-Encoding")
}

func newJar() http.CookieJar {
	// cookiejar.New only fails on a bad PublicSuffixList, and none is given.
	jar, _ := cookiejar.New(nil)
	return jar
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ fetcher.Transport = (*Transport)(nil)

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/scholarship-finder/internal/catalog"
	"github.com/JakeFAU/scholarship-finder/internal/fetcher"
	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
	"github.com/JakeFAU/scholarship-finder/internal/storage/memory"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

const (
	ugA     = "https://ug-a.example/scholarships"
	ugB     = "https://ug-b.example/scholarships"
	ugC     = "https://ug-c.example/scholarships"
	intlA   = "https://intl-a.example/list"
	reliabl = "https://reliable.example/funding"
	studyA  = "https://study-a.example/awards"
)

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Countries: map[string][]string{
			"Uganda":                  {ugA, ugB, ugC},
			opportunity.International: {intlA, "https://intl-b.example/list"},
		},
		Goals: map[opportunity.GoalType][]string{
			opportunity.GoalStudent: {studyA},
		},
		Reliable:           []string{reliabl},
		InternationalExtra: 1,
		CountryFirst:       2,
	}
}

// fakePager serves canned pages. A site mapped to an error fails with it.
type fakePager struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	calls  []string
	before func(ctx context.Context, site string) error
}

func newFakePager() *fakePager {
	return &fakePager{pages: map[string]string{}, errs: map[string]error{}}
}

func (p *fakePager) Fetch(ctx context.Context, site string) (fetcher.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, site)
	before := p.before
	body, ok := p.pages[site]
	err := p.errs[site]
	p.mu.Unlock()

	if before != nil {
		if err := before(ctx, site); err != nil {
			return fetcher.Result{}, err
		}
	}
	if err != nil {
		return fetcher.Result{}, err
	}
	if !ok {
		return fetcher.Result{}, &fetcher.FetchError{URL: site, Status: 404, Attempts: 1, Reason: "terminal"}
	}
	return fetcher.Result{URL: site, StatusCode: 200, Body: []byte(body), Attempts: 1}, nil
}

func (p *fakePager) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// fakeExtractor returns the listings registered for a source URL.
type fakeExtractor struct {
	mu       sync.Mutex
	listings map[string][]opportunity.Record
	goals    []opportunity.GoalType
}

func (e *fakeExtractor) Extract(_ []byte, sourceURL string, goal opportunity.GoalType) []opportunity.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.goals = append(e.goals, goal)
	var out []opportunity.Record
	for _, r := range e.listings[sourceURL] {
		r.Source = sourceURL
		r.GoalType = goal
		out = append(out, r)
	}
	return out
}

func listing(title string) opportunity.Record {
	return opportunity.Record{
		Title:       title,
		Description: "Funding for " + title,
		Amount:      opportunity.PlaceholderAmount,
		Deadline:    opportunity.PlaceholderDeadline,
		Category:    "Scholarship",
		GoalType:    opportunity.GoalStudent,
		Priority:    1,
		IsActive:    true,
	}
}

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

type fakeLauncher struct {
	mu      sync.Mutex
	scopes  []Scope
	started bool
}

func (l *fakeLauncher) Trigger(scope Scope) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scopes = append(l.scopes, scope)
	return l.started
}

// failingStore breaks the cache lookup and nothing else.
type failingStore struct {
	*memory.RecordStore
}

var errStoreDown = errors.New("store down")

func (failingStore) Search(context.Context, opportunity.Query) ([]opportunity.Record, error) {
	return nil, errStoreDown
}

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequentialIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

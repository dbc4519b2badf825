// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

// RecordStore implements opportunity.Store in memory.
type RecordStore struct {
	mu      sync.RWMutex
	clock   opportunity.Clock
	order   []opportunity.Key
	records map[opportunity.Key]opportunity.Record
	meta    map[string]opportunity.SourceMetadata
	hints   map[string]opportunity.SourceHint
}

var _ opportunity.Store = (*RecordStore)(nil)

// NewRecordStore constructs an empty store. clock may be nil.
func NewRecordStore(clock opportunity.Clock) *RecordStore {
	if clock == nil {
		clock = utcClock{}
	}
	return &RecordStore{
		clock:   clock,
		records: make(map[opportunity.Key]opportunity.Record),
		meta:    make(map[string]opportunity.SourceMetadata),
		hints:   make(map[string]opportunity.SourceHint),
	}
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// Upsert stores each record under its key. A replaced record keeps its
// original insertion position.
func (s *RecordStore) Upsert(_ context.Context, records []opportunity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for _, r := range records {
		r = prepare(r, now)
		key := r.Key()
		if _, exists := s.records[key]; !exists {
			s.order = append(s.order, key)
		}
		s.records[key] = r
	}
	return nil
}

func prepare(r opportunity.Record, now time.Time) opportunity.Record {
	r.Keywords = opportunity.NormalizeKeywords(r.Keywords)
	if r.Country != nil {
		r.Country = opportunity.Country(*r.Country)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.LastVerified.IsZero() {
		r.LastVerified = now
	}
	return r
}

// Search implements opportunity.Store.
func (s *RecordStore) Search(_ context.Context, q opportunity.Query) ([]opportunity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return opportunity.Filter(s.snapshotLocked(), q), nil
}

func (s *RecordStore) snapshotLocked() []opportunity.Record {
	out := make([]opportunity.Record, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, cloneRecord(s.records[key]))
	}
	return out
}

func cloneRecord(r opportunity.Record) opportunity.Record {
	if r.Keywords != nil {
		r.Keywords = append([]string(nil), r.Keywords...)
	}
	if r.Country != nil {
		c := *r.Country
		r.Country = &c
	}
	return r
}

// Count implements opportunity.Store.
func (s *RecordStore) Count(_ context.Context, country string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if r.IsActive && opportunity.MatchesCountry(r, country) {
			n++
		}
	}
	return n, nil
}

// Prune implements opportunity.Store.
func (s *RecordStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, r := range s.records {
		if r.IsActive && r.LastVerified.Before(cutoff) {
			r.IsActive = false
			s.records[key] = r
			n++
		}
	}
	return n, nil
}

// RecordFetchOutcome implements opportunity.Store.
func (s *RecordStore) RecordFetchOutcome(_ context.Context, sourceURL string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meta[sourceURL]
	m.SourceURL = sourceURL
	s.meta[sourceURL] = m.Apply(success, s.clock.Now())
	return nil
}

// SourceMetadata implements opportunity.Store.
func (s *RecordStore) SourceMetadata(_ context.Context, sourceURL string) (*opportunity.SourceMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[sourceURL]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// IsDueForRefresh implements opportunity.Store.
func (s *RecordStore) IsDueForRefresh(ctx context.Context, sourceURL string, maxAge time.Duration) (bool, error) {
	m, err := s.SourceMetadata(ctx, sourceURL)
	if err != nil {
		return false, err
	}
	return opportunity.DueForRefresh(m, maxAge, s.clock.Now()), nil
}

// AddSourceHint implements opportunity.Store.
func (s *RecordStore) AddSourceHint(_ context.Context, url, addedBy string, isPublic bool) (bool, error) {
	url = strings.TrimSpace(url)
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hints[url]; ok {
		h.Popularity++
		s.hints[url] = h
		return false, nil
	}
	s.hints[url] = opportunity.SourceHint{
		URL:        url,
		AddedBy:    addedBy,
		IsPublic:   isPublic,
		Popularity: 1,
		AddedAt:    s.clock.Now(),
		Active:     true,
	}
	return true, nil
}

// SourceHints implements opportunity.Store.
func (s *RecordStore) SourceHints(_ context.Context, userID string, includePublic bool) ([]opportunity.SourceHint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []opportunity.SourceHint
	for _, h := range s.hints {
		if !h.Active {
			continue
		}
		if (userID != "" && h.AddedBy == userID) || (includePublic && h.IsPublic) {
			out = append(out, h)
		}
	}
	opportunity.SortHints(out)
	return out, nil
}

// Close is a no-op.
func (s *RecordStore) Close() error {
	return nil
}

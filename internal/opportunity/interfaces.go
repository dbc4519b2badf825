package opportunity

import (
	"context"
	"time"
)

// Store persists records and source metadata. Implementations must be safe for
// concurrent use by the foreground search path and background refreshes.
type Store interface {
	// Upsert writes each record under its (title, source) key, replacing any
	// existing record with the same key.
	Upsert(ctx context.Context, records []Record) error
	// Search returns active records matching q ordered by priority then recency.
	Search(ctx context.Context, q Query) ([]Record, error)
	// Count returns the number of active records visible for country ("" = all).
	Count(ctx context.Context, country string) (int, error)
	// Prune deactivates records last verified before cutoff and returns how many changed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)

	// RecordFetchOutcome bumps the attempt counters of a source.
	RecordFetchOutcome(ctx context.Context, sourceURL string, success bool) error
	// SourceMetadata returns the fetch history of a source, or nil if never attempted.
	SourceMetadata(ctx context.Context, sourceURL string) (*SourceMetadata, error)
	// IsDueForRefresh applies DueForRefresh to the stored metadata.
	IsDueForRefresh(ctx context.Context, sourceURL string, maxAge time.Duration) (bool, error)

	// AddSourceHint stores a seed URL. It returns false and bumps the popularity
	// when the URL was already known.
	AddSourceHint(ctx context.Context, url, addedBy string, isPublic bool) (bool, error)
	// SourceHints lists active hints added by userID and, optionally, public ones,
	// most popular first.
	SourceHints(ctx context.Context, userID string, includePublic bool) ([]SourceHint, error)

	Close() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// OutcomeRecorder receives the result of every completed fetch attempt.
type OutcomeRecorder interface {
	RecordFetchOutcome(ctx context.Context, sourceURL string, success bool) error
}

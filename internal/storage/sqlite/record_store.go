package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
	"github.com/JakeFAU/scholarship-finder/internal/storage"
)

const recordColumns = `title, description, amount, deadline, category, source, country,
	keywords, goal_type, priority, created_at, last_verified, is_active`

const upsertRecord = `INSERT INTO records (` + recordColumns + `, country_key, search_text)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (title, source) DO UPDATE SET
	description = excluded.description,
	amount = excluded.amount,
	deadline = excluded.deadline,
	category = excluded.category,
	country = excluded.country,
	country_key = excluded.country_key,
	keywords = excluded.keywords,
	search_text = excluded.search_text,
	goal_type = excluded.goal_type,
	priority = excluded.priority,
	created_at = excluded.created_at,
	last_verified = excluded.last_verified,
	is_active = excluded.is_active`

// Upsert writes all records in one transaction.
func (s *Store) Upsert(ctx context.Context, records []opportunity.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertRecord)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := s.clock.Now()
	for _, r := range records {
		created, verified := r.CreatedAt, r.LastVerified
		if created.IsZero() {
			created = now
		}
		if verified.IsZero() {
			verified = now
		}
		var country, countryKey *string
		if r.Country != nil {
			country = opportunity.Country(*r.Country)
			countryKey = opportunity.Country(opportunity.CountryKey(*r.Country))
		}
		if _, err := stmt.ExecContext(ctx,
			r.Title, r.Description, r.Amount, r.Deadline, r.Category, r.Source, country,
			opportunity.JoinKeywords(r.Keywords), string(r.GoalType), r.Priority,
			toNanos(created), toNanos(verified), r.IsActive,
			countryKey, opportunity.SearchText(r),
		); err != nil {
			return fmt.Errorf("upsert %q from %s: %w", r.Title, r.Source, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Search implements opportunity.Store.
func (s *Store) Search(ctx context.Context, q opportunity.Query) ([]opportunity.Record, error) {
	w := storage.SQLite.NewWhere().Active().Goal(q.Goal).Country(q.Country).Keywords(q.Keywords)
	query := "SELECT " + recordColumns + " FROM records" + w.String() + storage.SearchOrder +
		" LIMIT " + w.Bind(q.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []opportunity.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (opportunity.Record, error) {
	var (
		r                 opportunity.Record
		country           sql.NullString
		keywords, goal    string
		created, verified int64
	)
	if err := rows.Scan(
		&r.Title, &r.Description, &r.Amount, &r.Deadline, &r.Category, &r.Source, &country,
		&keywords, &goal, &r.Priority, &created, &verified, &r.IsActive,
	); err != nil {
		return opportunity.Record{}, fmt.Errorf("scan record: %w", err)
	}
	if country.Valid {
		r.Country = opportunity.Country(country.String)
	}
	r.Keywords = opportunity.SplitKeywords(keywords)
	r.GoalType = opportunity.GoalType(goal)
	r.CreatedAt = fromNanos(created)
	r.LastVerified = fromNanos(verified)
	return r, nil
}

// Count implements opportunity.Store.
func (s *Store) Count(ctx context.Context, country string) (int, error) {
	w := storage.SQLite.NewWhere().Active().Country(country)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records"+w.String(), w.Args()...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Prune implements opportunity.Store.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET is_active = FALSE WHERE is_active = TRUE AND last_verified < ?`,
		toNanos(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return int(n), nil
}

// RecordFetchOutcome implements opportunity.Store.
func (s *Store) RecordFetchOutcome(ctx context.Context, sourceURL string, success bool) error {
	inc := 0
	if success {
		inc = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO source_metadata (source_url, last_scraped, success_count, total_attempts)
VALUES (?, ?, ?, 1)
ON CONFLICT (source_url) DO UPDATE SET
	last_scraped = excluded.last_scraped,
	success_count = source_metadata.success_count + excluded.success_count,
	total_attempts = source_metadata.total_attempts + 1`,
		sourceURL, toNanos(s.clock.Now()), inc)
	if err != nil {
		return fmt.Errorf("record fetch outcome for %s: %w", sourceURL, err)
	}
	return nil
}

// SourceMetadata implements opportunity.Store.
func (s *Store) SourceMetadata(ctx context.Context, sourceURL string) (*opportunity.SourceMetadata, error) {
	var (
		m       opportunity.SourceMetadata
		scraped sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT source_url, last_scraped, success_count, total_attempts FROM source_metadata WHERE source_url = ?`,
		sourceURL,
	).Scan(&m.SourceURL, &scraped, &m.SuccessCount, &m.TotalAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load source metadata for %s: %w", sourceURL, err)
	}
	m.LastScraped = fromNullNanos(scraped)
	return &m, nil
}

// IsDueForRefresh implements opportunity.Store.
func (s *Store) IsDueForRefresh(ctx context.Context, sourceURL string, maxAge time.Duration) (bool, error) {
	m, err := s.SourceMetadata(ctx, sourceURL)
	if err != nil {
		return false, err
	}
	return opportunity.DueForRefresh(m, maxAge, s.clock.Now()), nil
}

// AddSourceHint implements opportunity.Store.
func (s *Store) AddSourceHint(ctx context.Context, url, addedBy string, isPublic bool) (bool, error) {
	url = strings.TrimSpace(url)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin add hint: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT INTO source_hints (url, added_by, is_public, popularity, added_at, is_active)
VALUES (?, ?, ?, 1, ?, TRUE)
ON CONFLICT (url) DO NOTHING`,
		url, addedBy, isPublic, toNanos(s.clock.Now()))
	if err != nil {
		return false, fmt.Errorf("insert hint %s: %w", url, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("hint rows affected: %w", err)
	}
	added := n == 1
	if !added {
		if _, err := tx.ExecContext(ctx,
			`UPDATE source_hints SET popularity = popularity + 1 WHERE url = ?`, url); err != nil {
			return false, fmt.Errorf("bump hint %s: %w", url, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit add hint: %w", err)
	}
	return added, nil
}

// SourceHints implements opportunity.Store.
func (s *Store) SourceHints(ctx context.Context, userID string, includePublic bool) ([]opportunity.SourceHint, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT url, added_by, is_public, popularity, added_at, is_active
FROM source_hints
WHERE is_active = TRUE AND ((? <> '' AND added_by = ?) OR (? AND is_public = TRUE))
ORDER BY popularity DESC, added_at ASC, url ASC`,
		userID, userID, includePublic)
	if err != nil {
		return nil, fmt.Errorf("list hints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []opportunity.SourceHint
	for rows.Next() {
		var (
			h     opportunity.SourceHint
			added int64
		)
		if err := rows.Scan(&h.URL, &h.AddedBy, &h.IsPublic, &h.Popularity, &added, &h.Active); err != nil {
			return nil, fmt.Errorf("scan hint: %w", err)
		}
		h.AddedAt = fromNanos(added)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hints: %w", err)
	}
	return out, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
	"github.com/JakeFAU/scholarship-finder/internal/storage"
)

const recordColumns = `title, description, amount, deadline, category, source, country,
	keywords, goal_type, priority, created_at, last_verified, is_active`

// Upsert writes all records in one transaction, replacing rows with the same
// (title, source).
func (s *Store) Upsert(ctx context.Context, records []opportunity.Record) error {
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (`+recordColumns+`, country_key, search_text)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (title, source) DO UPDATE SET
	description = EXCLUDED.description,
	amount = EXCLUDED.amount,
	deadline = EXCLUDED.deadline,
	category = EXCLUDED.category,
	country = EXCLUDED.country,
	country_key = EXCLUDED.country_key,
	keywords = EXCLUDED.keywords,
	search_text = EXCLUDED.search_text,
	goal_type = EXCLUDED.goal_type,
	priority = EXCLUDED.priority,
	created_at = EXCLUDED.created_at,
	last_verified = EXCLUDED.last_verified,
	is_active = EXCLUDED.is_active`, s.table("records"))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
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
		if _, err := tx.Exec(ctx, query,
			r.Title, r.Description, r.Amount, r.Deadline, r.Category, r.Source, country,
			opportunity.JoinKeywords(r.Keywords), string(r.GoalType), r.Priority,
			created, verified, r.IsActive,
			countryKey, opportunity.SearchText(r),
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("upsert %q from %s: %w", r.Title, r.Source, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Search implements opportunity.Store.
func (s *Store) Search(ctx context.Context, q opportunity.Query) ([]opportunity.Record, error) {
	w := storage.Postgres.NewWhere().Active().Goal(q.Goal).Country(q.Country).Keywords(q.Keywords)
	query := "SELECT " + recordColumns + " FROM " + s.table("records") + w.String() + storage.SearchOrder +
		" LIMIT " + w.Bind(q.EffectiveLimit())

	rows, err := s.pool.Query(ctx, query, w.Args()...)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	var out []opportunity.Record
	for rows.Next() {
		var (
			r              opportunity.Record
			country        pgtype.Text
			keywords, goal string
		)
		if err := rows.Scan(
			&r.Title, &r.Description, &r.Amount, &r.Deadline, &r.Category, &r.Source, &country,
			&keywords, &goal, &r.Priority, &r.CreatedAt, &r.LastVerified, &r.IsActive,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if country.Valid {
			r.Country = opportunity.Country(country.String)
		}
		r.Keywords = opportunity.SplitKeywords(keywords)
		r.GoalType = opportunity.GoalType(goal)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Count implements opportunity.Store.
func (s *Store) Count(ctx context.Context, country string) (int, error) {
	w := storage.Postgres.NewWhere().Active().Country(country)
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+s.table("records")+w.String(), w.Args()...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Prune implements opportunity.Store.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET is_active = FALSE WHERE is_active = TRUE AND last_verified < $1`, s.table("records")),
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RecordFetchOutcome implements opportunity.Store.
func (s *Store) RecordFetchOutcome(ctx context.Context, sourceURL string, success bool) error {
	inc := 0
	if success {
		inc = 1
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (source_url, last_scraped, success_count, total_attempts)
VALUES ($1, $2, $3, 1)
ON CONFLICT (source_url) DO UPDATE SET
	last_scraped = EXCLUDED.last_scraped,
	success_count = %[1]s.success_count + EXCLUDED.success_count,
	total_attempts = %[1]s.total_attempts + 1`, s.table("source_metadata"))
	if _, err := s.pool.Exec(ctx, query, sourceURL, s.clock.Now(), inc); err != nil {
		return fmt.Errorf("record fetch outcome for %s: %w", sourceURL, err)
	}
	return nil
}

// SourceMetadata implements opportunity.Store.
func (s *Store) SourceMetadata(ctx context.Context, sourceURL string) (*opportunity.SourceMetadata, error) {
	var (
		m       opportunity.SourceMetadata
		scraped pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT source_url, last_scraped, success_count, total_attempts FROM %s WHERE source_url = $1`,
			s.table("source_metadata")),
		sourceURL,
	).Scan(&m.SourceURL, &scraped, &m.SuccessCount, &m.TotalAttempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load source metadata for %s: %w", sourceURL, err)
	}
	if scraped.Valid {
		t := scraped.Time
		m.LastScraped = &t
	}
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin add hint: %w", err)
	}
	tag, err := tx.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (url, added_by, is_public, popularity, added_at, is_active)
VALUES ($1, $2, $3, 1, $4, TRUE)
ON CONFLICT (url) DO NOTHING`, s.table("source_hints")),
		url, addedBy, isPublic, s.clock.Now())
	if err != nil {
		_ = tx.Rollback(ctx)
		return false, fmt.Errorf("insert hint %s: %w", url, err)
	}
	added := tag.RowsAffected() == 1
	if !added {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET popularity = popularity + 1 WHERE url = $1`, s.table("source_hints")),
			url); err != nil {
			_ = tx.Rollback(ctx)
			return false, fmt.Errorf("bump hint %s: %w", url, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit add hint: %w", err)
	}
	return added, nil
}

// SourceHints implements opportunity.Store.
func (s *Store) SourceHints(ctx context.Context, userID string, includePublic bool) ([]opportunity.SourceHint, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
SELECT url, added_by, is_public, popularity, added_at, is_active
FROM %s
WHERE is_active AND (($1 <> '' AND added_by = $1) OR ($2 AND is_public))
ORDER BY popularity DESC, added_at ASC, url ASC`, s.table("source_hints")),
		userID, includePublic)
	if err != nil {
		return nil, fmt.Errorf("list hints: %w", err)
	}
	defer rows.Close()

	var out []opportunity.SourceHint
	for rows.Next() {
		var h opportunity.SourceHint
		if err := rows.Scan(&h.URL, &h.AddedBy, &h.IsPublic, &h.Popularity, &h.AddedAt, &h.Active); err != nil {
			return nil, fmt.Errorf("scan hint: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hints: %w", err)
	}
	return out, nil
}

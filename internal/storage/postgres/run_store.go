package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

const runColumns = `id, scope, status, counters, error, created_at, started_at, finished_at`

// CreateRun inserts a new refresh run.
func (s *Store) CreateRun(ctx context.Context, run opportunity.Run) error {
	if run.Status == "" {
		run.Status = opportunity.RunQueued
	}
	if run.Created.IsZero() {
		run.Created = s.clock.Now()
	}
	counters, err := json.Marshal(run.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (`+runColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, s.table("refresh_runs"))
	if _, err := s.pool.Exec(ctx, query,
		run.ID, run.Scope, string(run.Status), counters, run.Error, run.Created, run.Started, run.Finished,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRun sets status, error and counters, stamping start and finish times.
func (s *Store) UpdateRun(
	ctx context.Context,
	id string,
	status opportunity.RunStatus,
	errText string,
	counters opportunity.RunCounters,
) error {
	payload, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	now := s.clock.Now()
	var started, finished *time.Time
	if status == opportunity.RunRunning || status.Terminal() {
		started = &now
	}
	if status.Terminal() {
		finished = &now
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $1,
	error = $2,
	counters = $3,
	started_at = COALESCE(started_at, $4::timestamptz),
	finished_at = COALESCE($5::timestamptz, finished_at)
WHERE id = $6`, s.table("refresh_runs"))
	tag, err := s.pool.Exec(ctx, query, string(status), errText, payload, started, finished, id)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return opportunity.ErrRunNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (opportunity.Run, error) {
	var (
		run      opportunity.Run
		status   string
		counters []byte
	)
	if err := row.Scan(&run.ID, &run.Scope, &status, &counters, &run.Error,
		&run.Created, &run.Started, &run.Finished); err != nil {
		return opportunity.Run{}, err
	}
	if len(counters) > 0 {
		if err := json.Unmarshal(counters, &run.Counters); err != nil {
			return opportunity.Run{}, fmt.Errorf("decode counters of run %s: %w", run.ID, err)
		}
	}
	run.Status = opportunity.RunStatus(status)
	return run, nil
}

// GetRun retrieves a single run by its ID.
func (s *Store) GetRun(ctx context.Context, id string) (opportunity.Run, error) {
	query := fmt.Sprintf(`SELECT `+runColumns+` FROM %s WHERE id = $1`, s.table("refresh_runs"))
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return opportunity.Run{}, opportunity.ErrRunNotFound
	}
	if err != nil {
		return opportunity.Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit lists all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]opportunity.Run, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	query := fmt.Sprintf(`SELECT `+runColumns+` FROM %s ORDER BY created_at DESC, id DESC LIMIT $1`,
		s.table("refresh_runs"))
	rows, err := s.pool.Query(ctx, query, lim)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []opportunity.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

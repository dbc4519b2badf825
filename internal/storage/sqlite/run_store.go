package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

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
	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (id, scope, status, counters, error, created, started, finished)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Scope, string(run.Status), string(counters), run.Error,
		toNanos(run.Created), nullNanos(run.Started), nullNanos(run.Finished))
	if err != nil {
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
	var started, finished sql.NullInt64
	if status == opportunity.RunRunning || status.Terminal() {
		started = nullNanos(&now)
	}
	if status.Terminal() {
		finished = nullNanos(&now)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET
	status = ?,
	error = ?,
	counters = ?,
	started = COALESCE(started, ?),
	finished = COALESCE(?, finished)
WHERE id = ?`,
		string(status), errText, string(payload), started, finished, id)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run rows affected: %w", err)
	}
	if n == 0 {
		return opportunity.ErrRunNotFound
	}
	return nil
}

const runColumns = `id, scope, status, counters, error, created, started, finished`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (opportunity.Run, error) {
	var (
		run               opportunity.Run
		status, counters  string
		created           int64
		started, finished sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.Scope, &status, &counters, &run.Error, &created, &started, &finished); err != nil {
		return opportunity.Run{}, err
	}
	if err := json.Unmarshal([]byte(counters), &run.Counters); err != nil {
		return opportunity.Run{}, fmt.Errorf("decode counters of run %s: %w", run.ID, err)
	}
	run.Status = opportunity.RunStatus(status)
	run.Created = fromNanos(created)
	run.Started = fromNullNanos(started)
	run.Finished = fromNullNanos(finished)
	return run, nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (opportunity.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return opportunity.Run{}, opportunity.ErrRunNotFound
	}
	if err != nil {
		return opportunity.Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit lists all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]opportunity.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY created DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []opportunity.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

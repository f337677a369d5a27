package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/job-harvester/internal/store"
)

const runColumns = `id, platform, started_at, finished_at, status, stop_reason, error_message,
	pages, fetched, dropped, saved, raw_saved`

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool Pool
}

// NewRunStore wraps an existing pool.
func NewRunStore(pool Pool) *RunStore {
	return &RunStore{pool: pool}
}

// StartRun inserts a running row; replays are ignored.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, platform string, startedAt time.Time) error {
	query := `
		INSERT INTO harvest_runs (id, platform, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, platform, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// AddPageStats increments the run counters.
func (s *RunStore) AddPageStats(ctx context.Context, runID uuid.UUID, delta store.PageDelta) error {
	query := `
		UPDATE harvest_runs
		SET pages = pages + $1, fetched = fetched + $2, dropped = dropped + $3,
			saved = saved + $4, raw_saved = raw_saved + $5
		WHERE id = $6;
	`
	res, err := s.pool.Exec(ctx, query,
		delta.Pages, delta.Fetched, delta.Dropped, delta.Saved, delta.RawSaved, runID)
	if err != nil {
		return fmt.Errorf("failed to update run stats: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CompleteRun marks a run finished with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	stopReason string,
	errMsg *string,
) error {
	query := `
		UPDATE harvest_runs
		SET finished_at = $1, status = $2, stop_reason = $3, error_message = $4
		WHERE id = $5;
	`
	if _, err := s.pool.Exec(ctx, query, finishedAt, status, stopReason, errMsg, runID); err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM harvest_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, optionally filtered.
func (s *RunStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]store.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var platform, status *string
	if filter.Platform != "" {
		platform = &filter.Platform
	}
	if filter.Status != nil {
		st := string(*filter.Status)
		status = &st
	}
	query := `SELECT ` + runColumns + `
		FROM harvest_runs
		WHERE ($1::text IS NULL OR platform = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4;`
	rows, err := s.pool.Query(ctx, query, platform, status, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var run store.Run
	var status string
	err := row.Scan(
		&run.ID,
		&run.Platform,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.StopReason,
		&run.ErrorMessage,
		&run.Pages,
		&run.Fetched,
		&run.Dropped,
		&run.Saved,
		&run.RawSaved,
	)
	run.Status = store.RunStatus(status)
	return run, err
}

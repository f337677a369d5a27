package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the harvest_runs status column.
type RunStatus string

// Run statuses persisted in harvest_runs.status.
const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunError    RunStatus = "error"
	RunCanceled RunStatus = "canceled"
)

// Run models one source session.
type Run struct {
	ID         uuid.UUID
	Platform   string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	StopReason string
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
	Pages        int64
	Fetched      int64
	Dropped      int64
	Saved        int64
	RawSaved     int64
}

// PageDelta carries counters accumulated since the last write.
type PageDelta struct {
	Pages    int64
	Fetched  int64
	Dropped  int64
	Saved    int64
	RawSaved int64
}

// IsZero reports whether the delta carries nothing.
func (d PageDelta) IsZero() bool {
	return d == PageDelta{}
}

// Add folds other into d.
func (d *PageDelta) Add(other PageDelta) {
	d.Pages += other.Pages
	d.Fetched += other.Fetched
	d.Dropped += other.Dropped
	d.Saved += other.Saved
	d.RawSaved += other.RawSaved
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Platform string
	Status   *RunStatus
	Limit    int
	Offset   int
}

// RunRepository persists harvest run progress.
type RunRepository interface {
	// StartRun inserts the run in running state; repeated calls are no-ops.
	StartRun(ctx context.Context, runID uuid.UUID, platform string, startedAt time.Time) error
	// AddPageStats applies counter deltas.
	AddPageStats(ctx context.Context, runID uuid.UUID, delta PageDelta) error
	// CompleteRun marks the run finished.
	CompleteRun(
		ctx context.Context,
		runID uuid.UUID,
		finishedAt time.Time,
		status RunStatus,
		stopReason string,
		errMsg *string,
	) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
}

package crawler

import (
	"context"
	"time"
)

// SourceAdapter extracts listings, postings and companies from one platform.
// Soft skips are reported as errors wrapping ErrSkipped; request failures
// surface as the HTTP client's fatal error.
type SourceAdapter interface {
	Platform() Platform
	Pagination() Pagination
	FetchJobList(ctx context.Context, cursor Cursor) ([]string, error)
	FetchJobDetail(ctx context.Context, id string) (Job, error)
	FetchCompanyInfo(ctx context.Context, companyID string) (Company, error)
}

// FreshnessLookup returns the most recent crawl time of a record. ok is false
// when no crawled record exists.
type FreshnessLookup interface {
	LastCrawledAt(ctx context.Context, entity Entity, platform Platform, id string) (time.Time, bool, error)
}

// RelationalStore is the normalized, transactional sink.
type RelationalStore interface {
	FreshnessLookup
	BeginBatch(ctx context.Context) (RelationalTx, error)
}

// RelationalTx stages one page batch. Nothing is visible until Commit.
type RelationalTx interface {
	UpsertCompany(ctx context.Context, company Company) error
	// EnsureCompany inserts a name-only stub when the company is unknown and
	// leaves existing rows untouched.
	EnsureCompany(ctx context.Context, platform Platform, id, name string) error
	UpsertJob(ctx context.Context, job Job) (SinkOutcome, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// RawStore is the append-only archive deduplicated by source URL.
type RawStore interface {
	Exists(ctx context.Context, sourceURL string) (bool, error)
	// Insert writes the envelope if absent and reports whether it wrote.
	Insert(ctx context.Context, envelope RawEnvelope) (bool, error)
}

// Publisher announces committed batches.
type Publisher interface {
	Publish(ctx context.Context, event BatchEvent) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

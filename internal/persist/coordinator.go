// Package persist writes fetched batches to the relational and raw sinks.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/metrics"
)

// Coordinator persists one page batch: a single relational transaction for
// every item, then an independent insert-if-absent per item on the raw
// store, then a best-effort batch notification.
type Coordinator struct {
	relational crawler.RelationalStore
	raw        crawler.RawStore
	publisher  crawler.Publisher
	clock      crawler.Clock
	logger     *zap.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithPublisher announces committed batches on p.
func WithPublisher(p crawler.Publisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

// WithClock overrides the clock used to stamp batch events.
func WithClock(clock crawler.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// New builds a Coordinator. raw may be nil to skip archiving.
func New(relational crawler.RelationalStore, raw crawler.RawStore, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		relational: relational,
		raw:        raw,
		logger:     logger.Named("persist"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Batch identifies the page a set of items came from.
type Batch struct {
	RunID    string
	Platform crawler.Platform
	Cursor   crawler.Cursor
	Items    []crawler.Item
}

// Persist writes the batch. A relational error rolls back the whole batch,
// marks every item's relational outcome failed and is returned; raw writes
// still run because the archive is independent of the transaction.
func (c *Coordinator) Persist(ctx context.Context, batch Batch) (crawler.BatchResult, error) {
	result := crawler.BatchResult{
		Platform: batch.Platform,
		Items:    make([]crawler.ItemOutcome, len(batch.Items)),
	}
	for i, item := range batch.Items {
		result.Items[i] = crawler.ItemOutcome{ID: item.Job.ID, URL: item.Job.URL}
	}
	if len(batch.Items) == 0 {
		return result, nil
	}

	relErr := c.writeRelational(ctx, batch.Items, result.Items)
	c.writeRaw(ctx, batch.Platform, batch.Items, result.Items)

	platform := string(batch.Platform)
	for _, item := range result.Items {
		metrics.ObserveSinkWrite(platform, "relational", string(item.Relational))
		metrics.ObserveSinkWrite(platform, "raw", string(item.Raw))
	}

	if relErr != nil {
		return result, relErr
	}
	c.publish(ctx, batch, result)
	return result, nil
}

func (c *Coordinator) writeRelational(ctx context.Context, items []crawler.Item, out []crawler.ItemOutcome) error {
	fail := func(err error) error {
		for i := range out {
			out[i].Relational = crawler.OutcomeFailed
		}
		return err
	}

	tx, err := c.relational.BeginBatch(ctx)
	if err != nil {
		return fail(fmt.Errorf("begin batch: %w", err))
	}
	rollback := func(cause error) error {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			c.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return fail(cause)
	}

	for i, item := range items {
		job := item.Job
		switch {
		case item.Company != nil:
			if err := tx.UpsertCompany(ctx, *item.Company); err != nil {
				return rollback(err)
			}
		case job.CompanyID != "":
			if err := tx.EnsureCompany(ctx, job.Platform, job.CompanyID, job.CompanyName); err != nil {
				return rollback(err)
			}
		}
		outcome, err := tx.UpsertJob(ctx, job)
		if err != nil {
			return rollback(err)
		}
		out[i].Relational = outcome
	}

	if err := tx.Commit(ctx); err != nil {
		return rollback(err)
	}
	return nil
}

func (c *Coordinator) writeRaw(ctx context.Context, platform crawler.Platform, items []crawler.Item, out []crawler.ItemOutcome) {
	for i, item := range items {
		out[i].Raw = c.archive(ctx, platform, item.Job)
	}
}

func (c *Coordinator) archive(ctx context.Context, platform crawler.Platform, job crawler.Job) crawler.SinkOutcome {
	if c.raw == nil || job.URL == "" {
		return crawler.OutcomeSkipped
	}
	log := c.logger.With(zap.String("platform", string(platform)), zap.String("url", job.URL))

	exists, err := c.raw.Exists(ctx, job.URL)
	if err != nil {
		log.Warn("raw exists check failed", zap.Error(err))
		return crawler.OutcomeFailed
	}
	if exists {
		return crawler.OutcomeSkipped
	}
	payload, err := json.Marshal(job)
	if err != nil {
		log.Warn("raw payload encode failed", zap.Error(err))
		return crawler.OutcomeFailed
	}
	wrote, err := c.raw.Insert(ctx, crawler.RawEnvelope{
		SourceURL:  job.URL,
		Platform:   platform,
		RawContent: string(payload),
	})
	if err != nil {
		log.Warn("raw insert failed", zap.Error(err))
		return crawler.OutcomeFailed
	}
	if !wrote {
		return crawler.OutcomeSkipped
	}
	return crawler.OutcomeInserted
}

func (c *Coordinator) publish(ctx context.Context, batch Batch, result crawler.BatchResult) {
	if c.publisher == nil {
		return
	}
	now := time.Now().UTC()
	if c.clock != nil {
		now = c.clock.Now()
	}
	evt := crawler.BatchEvent{
		RunID:       batch.RunID,
		Platform:    batch.Platform,
		Cursor:      batch.Cursor,
		Inserted:    result.Count(true, crawler.OutcomeInserted),
		Updated:     result.Count(true, crawler.OutcomeUpdated),
		RawInserted: result.Count(false, crawler.OutcomeInserted),
		RawSkipped:  result.Count(false, crawler.OutcomeSkipped),
		RawFailed:   result.Count(false, crawler.OutcomeFailed),
		JobIDs:      make([]string, 0, len(result.Items)),
		PublishedAt: now,
	}
	for _, item := range result.Items {
		evt.JobIDs = append(evt.JobIDs, item.ID)
	}
	if err := c.publisher.Publish(ctx, evt); err != nil {
		c.logger.Warn("batch notification failed",
			zap.String("platform", string(batch.Platform)),
			zap.String("cursor", batch.Cursor.String()),
			zap.Error(err),
		)
	}
}

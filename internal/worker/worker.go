// Package worker implements the per-source crawl loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/job-harvester/internal/clock/system"
	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/freshness"
	"github.com/JakeFAU/job-harvester/internal/metrics"
	"github.com/JakeFAU/job-harvester/internal/persist"
	"github.com/JakeFAU/job-harvester/internal/progress"
)

// Config controls one source session.
type Config struct {
	// EmptyPageLimit ends the session after this many consecutive pages
	// without a new or stale posting.
	EmptyPageLimit int
	JobExpiry      time.Duration
	CompanyExpiry  time.Duration
	// PageDelayMin and PageDelayMax bound the uniform pause between pages.
	PageDelayMin time.Duration
	PageDelayMax time.Duration
	// MaxPages caps listed pages; zero means unlimited.
	MaxPages int
}

func (c Config) withDefaults() Config {
	if c.EmptyPageLimit <= 0 {
		c.EmptyPageLimit = 100
	}
	if c.JobExpiry <= 0 {
		c.JobExpiry = 7 * 24 * time.Hour
	}
	if c.CompanyExpiry <= 0 {
		c.CompanyExpiry = 30 * 24 * time.Hour
	}
	if c.PageDelayMin <= 0 && c.PageDelayMax <= 0 {
		c.PageDelayMin, c.PageDelayMax = 3*time.Second, 7*time.Second
	}
	if c.PageDelayMax < c.PageDelayMin {
		c.PageDelayMax = c.PageDelayMin
	}
	return c
}

// Persister stores one fetched page.
type Persister interface {
	Persist(ctx context.Context, batch persist.Batch) (crawler.BatchResult, error)
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option customizes a Worker.
type Option func(*Worker)

// WithEmitter reports session milestones to e.
func WithEmitter(e progress.Emitter) Option {
	return func(w *Worker) {
		w.emitter = e
	}
}

// WithSleeper replaces the inter-page sleeper.
func WithSleeper(s Sleeper) Option {
	return func(w *Worker) {
		w.sleep = s
	}
}

// WithJitter replaces the source of randomness for page delays. n returns a
// value in [0, limit).
func WithJitter(n func(limit int64) int64) Option {
	return func(w *Worker) {
		w.jitter = n
	}
}

// Worker walks one source's listing page by page, fetches what the
// freshness oracle selects and hands each page to the persister. A Worker
// owns no state between runs; the cursor lives on the stack of Run.
type Worker struct {
	adapter   crawler.SourceAdapter
	oracle    *freshness.Oracle
	persister Persister
	clock     crawler.Clock
	emitter   progress.Emitter
	sleep     Sleeper
	jitter    func(int64) int64
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	adapter crawler.SourceAdapter,
	oracle *freshness.Oracle,
	persister Persister,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.Clock{}
	}
	w := &Worker{
		adapter:   adapter,
		oracle:    oracle,
		persister: persister,
		clock:     clock,
		emitter:   progress.Discard{},
		sleep:     system.Clock{}.Sleep,
		jitter:    rand.Int64N,
		cfg:       cfg.withDefaults(),
		logger:    logger.Named("worker").With(zap.String("platform", string(adapter.Platform()))),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// session is the mutable state of one Run.
type session struct {
	runID  uuid.UUID
	report crawler.SessionReport
	cursor crawler.Cursor
	empty  int
}

// Run crawls until the source is exhausted or caught up, a page limit is
// hit, persistence fails, or ctx ends.
func (w *Worker) Run(ctx context.Context, runID uuid.UUID) crawler.SessionReport {
	s := &session{
		runID:  runID,
		cursor: w.adapter.Pagination().First(),
		report: crawler.SessionReport{
			RunID:     runID.String(),
			Platform:  w.adapter.Platform(),
			Status:    crawler.SessionRunning,
			StartedAt: w.clock.Now(),
		},
	}
	w.emit(s, progress.Event{Stage: progress.StageSessionStart})
	w.logger.Info("session started", zap.String("run_id", s.report.RunID), zap.Stringer("cursor", s.cursor))

	reason, err := w.loop(ctx, s)
	w.finish(ctx, s, reason, err)
	return s.report
}

func (w *Worker) loop(ctx context.Context, s *session) (crawler.StopReason, error) {
	for {
		if ctx.Err() != nil {
			return crawler.StopCanceled, nil
		}
		if w.cfg.MaxPages > 0 && s.report.Pages >= w.cfg.MaxPages {
			return crawler.StopPageLimit, nil
		}

		done, reason, err := w.page(ctx, s)
		if done || err != nil {
			return reason, err
		}

		s.cursor = s.cursor.Next()
		if err := w.sleep(ctx, w.pageDelay()); err != nil {
			return crawler.StopCanceled, nil
		}
	}
}

// page runs LISTING through PERSISTING for the current cursor.
func (w *Worker) page(ctx context.Context, s *session) (bool, crawler.StopReason, error) {
	started := time.Now()
	platform := w.adapter.Platform()
	log := w.logger.With(zap.Stringer("cursor", s.cursor))

	ids, err := w.adapter.FetchJobList(ctx, s.cursor)
	switch {
	case ctx.Err() != nil:
		return true, crawler.StopCanceled, nil
	case errors.Is(err, crawler.ErrSkipped):
		log.Info("listing skipped; treating source as exhausted", zap.Error(err))
		return true, crawler.StopExhausted, nil
	case err != nil:
		return true, crawler.StopListFailed, fmt.Errorf("list %s: %w", s.cursor, err)
	case len(ids) == 0:
		log.Info("listing exhausted")
		return true, crawler.StopExhausted, nil
	}
	s.report.Pages++

	part, err := w.oracle.Partition(ctx, crawler.EntityJob, platform, ids, w.cfg.JobExpiry)
	if err != nil {
		return true, crawler.StopCanceled, nil
	}
	evt := progress.Event{
		Stage:   progress.StagePageDone,
		Cursor:  s.cursor.String(),
		Listed:  len(ids),
		Targets: len(part.Targets),
		Dropped: len(part.Failed),
	}
	s.report.Dropped += len(part.Failed)

	if len(part.Targets) == 0 {
		s.empty++
		evt.Dur = time.Since(started)
		w.emit(s, evt)
		log.Debug("no new postings on page",
			zap.Int("listed", len(ids)),
			zap.Int("consecutive_empty", s.empty),
			zap.Int("limit", w.cfg.EmptyPageLimit),
		)
		if s.empty >= w.cfg.EmptyPageLimit {
			return true, crawler.StopCaughtUp, nil
		}
		return false, "", nil
	}
	s.empty = 0

	items, dropped := w.fetchAll(ctx, part.TargetIDs())
	evt.Fetched = len(items)
	evt.Dropped += dropped
	s.report.Fetched += len(items)
	s.report.Dropped += dropped

	var persistErr error
	if len(items) > 0 {
		res, err := w.persister.Persist(ctx, persist.Batch{
			RunID:    s.report.RunID,
			Platform: platform,
			Cursor:   s.cursor,
			Items:    items,
		})
		evt.Saved = res.Committed()
		evt.RawSaved = res.Count(false, crawler.OutcomeInserted)
		s.report.Saved += evt.Saved
		s.report.RawSaved += evt.RawSaved
		persistErr = err
	}
	evt.Dur = time.Since(started)
	w.emit(s, evt)
	log.Info("page done",
		zap.Int("listed", evt.Listed),
		zap.Int("targets", evt.Targets),
		zap.Int("fetched", evt.Fetched),
		zap.Int("dropped", evt.Dropped),
		zap.Int("saved", evt.Saved),
		zap.Int("raw_saved", evt.RawSaved),
		zap.Duration("duration", evt.Dur),
	)
	if persistErr != nil {
		if ctx.Err() != nil {
			return true, crawler.StopCanceled, nil
		}
		return true, crawler.StopPersist, fmt.Errorf("persist %s: %w", s.cursor, persistErr)
	}
	return false, "", nil
}

// fetchAll fetches every target concurrently. Failed items are dropped and
// never cancel their siblings; the client gate bounds concurrency.
func (w *Worker) fetchAll(ctx context.Context, ids []string) ([]crawler.Item, int) {
	results := make([]*crawler.Item, len(ids))
	companies := &companyCache{w: w, done: make(map[string]*crawler.Company)}

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					metrics.ObserveItem(string(w.adapter.Platform()), "failed")
					w.logger.Error("posting fetch panicked; dropping",
						zap.String("id", id),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()),
					)
					results[i] = nil
				}
			}()
			results[i] = w.fetchOne(ctx, id, companies)
			return nil
		})
	}
	_ = g.Wait()

	items := make([]crawler.Item, 0, len(ids))
	for _, item := range results {
		if item != nil {
			items = append(items, *item)
		}
	}
	return items, len(ids) - len(items)
}

func (w *Worker) fetchOne(ctx context.Context, id string, companies *companyCache) *crawler.Item {
	platform := string(w.adapter.Platform())
	job, err := w.adapter.FetchJobDetail(ctx, id)
	if err != nil {
		if errors.Is(err, crawler.ErrSkipped) {
			metrics.ObserveItem(platform, "skipped")
			w.logger.Info("posting skipped", zap.String("id", id), zap.Error(err))
		} else {
			metrics.ObserveItem(platform, "failed")
			w.logger.Warn("posting fetch failed; dropping", zap.String("id", id), zap.Error(err))
		}
		return nil
	}
	if job.ID == "" {
		job.ID = id
	}
	job.Platform = w.adapter.Platform()

	item := &crawler.Item{Job: job}
	if job.CompanyID != "" {
		item.Company = companies.get(ctx, job.CompanyID)
	}
	metrics.ObserveItem(platform, "fetched")
	return item
}

// companyCache fetches each company at most once per page.
type companyCache struct {
	w     *Worker
	group singleflight.Group
	mu    sync.Mutex
	done  map[string]*crawler.Company
}

func (c *companyCache) get(ctx context.Context, id string) *crawler.Company {
	c.mu.Lock()
	company, ok := c.done[id]
	c.mu.Unlock()
	if ok {
		return company
	}
	v, _, _ := c.group.Do(id, func() (any, error) {
		company := c.w.fetchCompany(ctx, id)
		c.mu.Lock()
		c.done[id] = company
		c.mu.Unlock()
		return company, nil
	})
	return v.(*crawler.Company)
}

// fetchCompany returns company detail when the company is new or stale.
// Failures only omit the detail; the job keeps its stub reference.
func (w *Worker) fetchCompany(ctx context.Context, id string) *crawler.Company {
	platform := w.adapter.Platform()
	log := w.logger.With(zap.String("company_id", id))

	verdict, err := w.oracle.Classify(ctx, crawler.EntityCompany, platform, id, w.cfg.CompanyExpiry)
	if err != nil {
		log.Warn("company freshness lookup failed", zap.Error(err))
		return nil
	}
	if !verdict.NeedsFetch() {
		return nil
	}
	company, err := w.adapter.FetchCompanyInfo(ctx, id)
	if err != nil {
		log.Warn("company fetch failed; keeping stub", zap.Error(err))
		return nil
	}
	company.ID = id
	company.Platform = platform
	return &company
}

func (w *Worker) pageDelay() time.Duration {
	span := int64(w.cfg.PageDelayMax - w.cfg.PageDelayMin)
	if span <= 0 {
		return w.cfg.PageDelayMin
	}
	return w.cfg.PageDelayMin + time.Duration(w.jitter(span+1))
}

func (w *Worker) finish(ctx context.Context, s *session, reason crawler.StopReason, err error) {
	r := &s.report
	r.StopReason = reason
	r.FinishedAt = w.clock.Now()

	evt := progress.Event{Stage: progress.StageSessionDone, StopReason: string(reason), Dur: r.FinishedAt.Sub(r.StartedAt)}
	fields := []zap.Field{
		zap.String("run_id", r.RunID),
		zap.String("stop_reason", string(reason)),
		zap.Int("pages", r.Pages),
		zap.Int("fetched", r.Fetched),
		zap.Int("dropped", r.Dropped),
		zap.Int("saved", r.Saved),
		zap.Int("raw_saved", r.RawSaved),
	}
	switch {
	case err != nil:
		r.Status = crawler.SessionFailed
		r.Error = err.Error()
		evt.Stage = progress.StageSessionError
		evt.Note = r.Error
		w.logger.Error("session failed", append(fields, zap.Error(err))...)
	case reason == crawler.StopCanceled || ctx.Err() != nil:
		r.Status = crawler.SessionCanceled
		r.StopReason = crawler.StopCanceled
		evt.StopReason = string(crawler.StopCanceled)
		w.logger.Warn("session canceled", fields...)
	default:
		r.Status = crawler.SessionSucceeded
		w.logger.Info("session finished", fields...)
	}
	w.emit(s, evt)
}

func (w *Worker) emit(s *session, evt progress.Event) {
	evt.RunID = s.runID
	evt.Platform = string(w.adapter.Platform())
	evt.TS = w.clock.Now()
	w.emitter.Emit(evt)
}

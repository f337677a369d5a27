// Package dispatcher runs one crawl session per enabled source and repeats
// the pass on a schedule.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

// ErrBusy is returned when a pass is requested while one is running.
var ErrBusy = errors.New("harvest pass already running")

// Session crawls one source to completion.
type Session interface {
	Run(ctx context.Context, runID uuid.UUID) crawler.SessionReport
}

// SessionFactory builds the session for one platform. release frees the
// session's resources (its HTTP client) and is called on every exit path.
type SessionFactory func(ctx context.Context, platform crawler.Platform) (s Session, release func(), err error)

// RunIDGenerator issues run identifiers.
type RunIDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// Dispatcher fans a pass out to independent source sessions.
type Dispatcher struct {
	platforms []crawler.Platform
	factory   SessionFactory
	ids       RunIDGenerator
	clock     crawler.Clock
	logger    *zap.Logger

	pass sync.Mutex

	mu   sync.RWMutex
	last map[crawler.Platform]crawler.SessionReport
}

// New creates a Dispatcher over platforms.
func New(
	platforms []crawler.Platform,
	factory SessionFactory,
	ids RunIDGenerator,
	clock crawler.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		platforms: append([]crawler.Platform(nil), platforms...),
		factory:   factory,
		ids:       ids,
		clock:     clock,
		logger:    logger.Named("dispatcher"),
		last:      make(map[crawler.Platform]crawler.SessionReport),
	}
}

// RunOnce runs every source concurrently and blocks until all sessions end.
// Reports are returned in platform order; one source's failure or panic is
// confined to its own report.
func (d *Dispatcher) RunOnce(ctx context.Context) ([]crawler.SessionReport, error) {
	if !d.pass.TryLock() {
		return nil, ErrBusy
	}
	defer d.pass.Unlock()
	return d.runPass(ctx), nil
}

// Trigger starts a pass in the background and returns at once. The returned
// channel receives the reports when the pass ends. ErrBusy is returned while
// another pass holds the dispatcher.
func (d *Dispatcher) Trigger(ctx context.Context) (<-chan []crawler.SessionReport, error) {
	if !d.pass.TryLock() {
		return nil, ErrBusy
	}
	done := make(chan []crawler.SessionReport, 1)
	go func() {
		defer d.pass.Unlock()
		done <- d.runPass(ctx)
	}()
	return done, nil
}

func (d *Dispatcher) runPass(ctx context.Context) []crawler.SessionReport {
	reports := make([]crawler.SessionReport, len(d.platforms))
	var wg sync.WaitGroup
	for i, p := range d.platforms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = d.runSession(ctx, p)
			d.mu.Lock()
			d.last[p] = reports[i]
			d.mu.Unlock()
		}()
	}
	wg.Wait()

	saved := 0
	for _, r := range reports {
		saved += r.Saved
	}
	d.logger.Info("harvest pass finished", zap.Int("sources", len(reports)), zap.Int("saved", saved))
	return reports
}

func (d *Dispatcher) runSession(ctx context.Context, p crawler.Platform) (report crawler.SessionReport) {
	started := d.clock.Now()
	fail := func(err error) crawler.SessionReport {
		d.logger.Error("session aborted", zap.String("platform", string(p)), zap.Error(err))
		return crawler.SessionReport{
			RunID:      report.RunID,
			Platform:   p,
			Status:     crawler.SessionFailed,
			Error:      err.Error(),
			StartedAt:  started,
			FinishedAt: d.clock.Now(),
		}
	}

	runID, err := d.ids.NewRunID()
	if err != nil {
		return fail(fmt.Errorf("run id: %w", err))
	}
	report.RunID = runID.String()

	session, release, err := d.factory(ctx, p)
	if err != nil {
		return fail(fmt.Errorf("build session: %w", err))
	}
	defer release()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("session panicked", zap.String("platform", string(p)), zap.ByteString("stack", debug.Stack()))
			report = fail(fmt.Errorf("panic: %v", r))
		}
	}()
	return session.Run(ctx, runID)
}

// Run repeats RunOnce every interval until ctx ends. An interval of zero
// runs a single pass.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	for {
		if _, err := d.RunOnce(ctx); err != nil && !errors.Is(err, ErrBusy) {
			return err
		}
		if interval <= 0 {
			return nil
		}
		d.logger.Info("next harvest pass scheduled", zap.Duration("in", interval))
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// LastReports returns the most recent report of every source that has run.
func (d *Dispatcher) LastReports() []crawler.SessionReport {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]crawler.SessionReport, 0, len(d.last))
	for _, r := range d.last {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}

// Platforms returns the configured sources.
func (d *Dispatcher) Platforms() []crawler.Platform {
	return append([]crawler.Platform(nil), d.platforms...)
}

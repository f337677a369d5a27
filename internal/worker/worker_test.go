package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/dispatcher"
	"github.com/JakeFAU/job-harvester/internal/freshness"
	"github.com/JakeFAU/job-harvester/internal/httpclient"
	iduuid "github.com/JakeFAU/job-harvester/internal/id/uuid"
	"github.com/JakeFAU/job-harvester/internal/persist"
	"github.com/JakeFAU/job-harvester/internal/progress"
	"github.com/JakeFAU/job-harvester/internal/storage/memory"
)

var testNow = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

// fakeAdapter serves pages keyed by cursor value. Pages beyond the map fall
// back to fallback, or an empty list when fallback is nil.
type fakeAdapter struct {
	mu         sync.Mutex
	pages      map[int][]string
	fallback   []string
	listErr    error
	failing    map[string]error
	panicking  map[string]bool
	companyOf  map[string]string
	listCalls  []int
	details    []string
	companyHit map[string]int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		pages:      map[int][]string{},
		failing:    map[string]error{},
		panicking:  map[string]bool{},
		companyOf:  map[string]string{},
		companyHit: map[string]int{},
	}
}

func (a *fakeAdapter) Platform() crawler.Platform { return crawler.PlatformSaramin }

func (a *fakeAdapter) Pagination() crawler.Pagination {
	return crawler.Pagination{Mode: crawler.PageModePage, Start: 1, Step: 1}
}

func (a *fakeAdapter) FetchJobList(_ context.Context, cursor crawler.Cursor) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listCalls = append(a.listCalls, cursor.Value)
	if a.listErr != nil {
		return nil, a.listErr
	}
	if ids, ok := a.pages[cursor.Value]; ok {
		return ids, nil
	}
	return a.fallback, nil
}

func (a *fakeAdapter) FetchJobDetail(_ context.Context, id string) (crawler.Job, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.details = append(a.details, id)
	if err := a.failing[id]; err != nil {
		return crawler.Job{}, err
	}
	if a.panicking[id] {
		var fields []string
		_ = fields[3]
	}
	return crawler.Job{
		ID:          id,
		URL:         "https://example.test/jobs/" + id,
		Position:    "position " + id,
		CompanyID:   a.companyOf[id],
		CompanyName: "company of " + id,
		IsActive:    true,
	}, nil
}

func (a *fakeAdapter) FetchCompanyInfo(_ context.Context, companyID string) (crawler.Company, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.companyHit[companyID]++
	return crawler.Company{ID: companyID, Name: "Company " + companyID, Industry: "IT"}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Stage)
	}
	return out
}

type sleepRecorder struct {
	mu     sync.Mutex
	waits  []time.Duration
	onCall func(n int)
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	n := len(s.waits)
	s.mu.Unlock()
	if s.onCall != nil {
		s.onCall(n)
	}
	return ctx.Err()
}

type harness struct {
	adapter *fakeAdapter
	rel     *memory.RelationalStore
	raw     *memory.RawStore
	emitter *recordingEmitter
	sleeper *sleepRecorder
}

func newHarness() *harness {
	return &harness{
		adapter: newFakeAdapter(),
		rel:     memory.NewRelationalStore(fakeClock{testNow}),
		raw:     memory.NewRawStore(),
		emitter: &recordingEmitter{},
		sleeper: &sleepRecorder{},
	}
}

func (h *harness) worker(cfg Config, persister Persister) *Worker {
	clock := fakeClock{testNow}
	oracle := freshness.New(h.rel, clock, 4, zap.NewNop())
	if persister == nil {
		persister = persist.New(h.rel, h.raw, zap.NewNop())
	}
	return New(h.adapter, oracle, persister, clock, cfg, zap.NewNop(),
		WithEmitter(h.emitter),
		WithSleeper(h.sleeper.sleep),
		WithJitter(func(limit int64) int64 { return limit / 2 }),
	)
}

func (h *harness) seedJob(id string, crawledAt time.Time) {
	h.rel.SetJobCrawledAt(crawler.Job{ID: id, Platform: crawler.PlatformSaramin}, crawledAt)
}

func TestRunStopsAfterConsecutiveEmptyPages(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedJob("seen", testNow)
	h.adapter.fallback = []string{"seen"}

	report := h.worker(Config{EmptyPageLimit: 5}, nil).Run(context.Background(), uuid.New())

	assert.Equal(t, crawler.SessionSucceeded, report.Status)
	assert.Equal(t, crawler.StopCaughtUp, report.StopReason)
	assert.Equal(t, 5, report.Pages)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, h.adapter.listCalls)
	assert.Empty(t, h.adapter.details)
	assert.Len(t, h.sleeper.waits, 4, "no pause after the terminating page")
}

func TestRunEmptyCounterResetsOnFreshPage(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedJob("seen", testNow)
	h.adapter.fallback = []string{"seen"}
	h.adapter.pages[4] = []string{"seen", "fresh"}

	report := h.worker(Config{EmptyPageLimit: 5}, nil).Run(context.Background(), uuid.New())

	assert.Equal(t, crawler.StopCaughtUp, report.StopReason)
	assert.Equal(t, 9, report.Pages, "pages 1-3 empty, page 4 resets, pages 5-9 empty")
	assert.Equal(t, []string{"fresh"}, h.adapter.details)
	assert.Equal(t, 1, report.Saved)
}

func TestRunScenarioNewPassRenew(t *testing.T) {
	t.Parallel()

	h := newHarness()
	stale := testNow.Add(-8 * 24 * time.Hour)
	h.seedJob("B", testNow.Add(-time.Hour))
	h.seedJob("C", stale)
	h.adapter.pages[1] = []string{"A", "B", "C"}
	h.adapter.pages[2] = nil
	h.adapter.failing["C"] = &httpclient.FatalError{URL: "c", Attempts: 5, Err: errors.New("reset")}

	report := h.worker(Config{}, nil).Run(context.Background(), uuid.New())

	assert.Equal(t, crawler.SessionSucceeded, report.Status)
	assert.Equal(t, crawler.StopExhausted, report.StopReason)
	assert.ElementsMatch(t, []string{"A", "C"}, h.adapter.details)
	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 1, report.Saved)
	assert.Equal(t, 1, report.RawSaved)

	_, crawledA, ok := h.rel.Job(crawler.PlatformSaramin, "A")
	require.True(t, ok)
	assert.Equal(t, testNow, crawledA)
	_, crawledC, _ := h.rel.Job(crawler.PlatformSaramin, "C")
	assert.Equal(t, stale, crawledC)

	_, ok = h.raw.Get("https://example.test/jobs/A")
	assert.True(t, ok)
	_, ok = h.raw.Get("https://example.test/jobs/C")
	assert.False(t, ok)

	assert.Equal(t, []progress.Stage{
		progress.StageSessionStart, progress.StagePageDone, progress.StageSessionDone,
	}, h.emitter.stages())
}

func TestRunDropsPanickingPosting(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.adapter.pages[1] = []string{"A", "broken", "B"}
	h.adapter.pages[2] = nil
	h.adapter.panicking["broken"] = true

	report := h.worker(Config{}, nil).Run(context.Background(), uuid.New())

	assert.Equal(t, crawler.SessionSucceeded, report.Status)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 2, report.Saved)

	_, _, ok := h.rel.Job(crawler.PlatformSaramin, "A")
	assert.True(t, ok)
	_, _, ok = h.rel.Job(crawler.PlatformSaramin, "B")
	assert.True(t, ok)
	_, _, ok = h.rel.Job(crawler.PlatformSaramin, "broken")
	assert.False(t, ok)
	_, ok = h.raw.Get("https://example.test/jobs/broken")
	assert.False(t, ok)
}

func TestDispatcherSurvivesPanickingPosting(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.adapter.fallback = nil
	h.adapter.pages[1] = []string{"broken", "C"}
	h.adapter.panicking["broken"] = true
	w := h.worker(Config{}, nil)

	build := func(context.Context, crawler.Platform) (dispatcher.Session, func(), error) {
		return w, func() {}, nil
	}
	d := dispatcher.New([]crawler.Platform{crawler.PlatformSaramin}, build, iduuid.New(), fakeClock{testNow}, zap.NewNop())

	reports, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, crawler.SessionSucceeded, reports[0].Status)
	assert.Equal(t, 1, reports[0].Saved)
	assert.Equal(t, 1, reports[0].Dropped)
}

type failingPersister struct{ calls int }

func (p *failingPersister) Persist(_ context.Context, batch persist.Batch) (crawler.BatchResult, error) {
	p.calls++
	res := crawler.BatchResult{Platform: batch.Platform}
	for _, item := range batch.Items {
		res.Items = append(res.Items, crawler.ItemOutcome{ID: item.Job.ID, Relational: crawler.OutcomeFailed})
	}
	return res, errors.New("deadlock detected")
}

func TestRunPersistFailureEndsSession(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.adapter.fallback = []string{"x", "y"}
	p := &failingPersister{}

	report := h.worker(Config{}, p).Run(context.Background(), uuid.New())

	assert.Equal(t, crawler.SessionFailed, report.Status)
	assert.Equal(t, crawler.StopPersist, report.StopReason)
	assert.Contains(t, report.Error, "deadlock detected")
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 0, report.Saved)
	assert.Equal(t, []int{1}, h.adapter.listCalls)
	stages := h.emitter.stages()
	assert.Equal(t, progress.StageSessionError, stages[len(stages)-1])
}

func TestRunListFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.adapter.listErr = &httpclient.FatalError{URL: "list", Attempts: 1, Err: errors.New("status 500")}

	report := h.worker(Config{}, nil).Run(context.Background(), uuid.New())
	assert.Equal(t, crawler.SessionFailed, report.Status)
	assert.Equal(t, crawler.StopListFailed, report.StopReason)
}

func TestRunSkippedListingIsExhaustion(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.adapter.listErr = fmt.Errorf("status 503: %w", crawler.ErrSkipped)

	report := h.worker(Config{}, nil).Run(context.Background(), uuid.New())
	assert.Equal(t, crawler.SessionSucceeded, report.Status)
	assert.Equal(t, crawler.StopExhausted, report.StopReason)
}

func TestRunMaxPages(t *testing.T) {
	t.Parallel()

	h := newHarness()
	for page := 1; page <= 10; page++ {
		h.adapter.pages[page] = []string{fmt.Sprintf("p%d", page)}
	}

	report := h.worker(Config{MaxPages: 3}, nil).Run(context.Background(), uuid.New())
	assert.Equal(t, crawler.StopPageLimit, report.StopReason)
	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, 3, h.rel.JobCount())
}

func TestRunCanceledDuringPause(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.adapter.fallback = []string{"a"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.sleeper.onCall = func(int) { cancel() }

	report := h.worker(Config{}, nil).Run(ctx, uuid.New())
	assert.Equal(t, crawler.SessionCanceled, report.Status)
	assert.Equal(t, crawler.StopCanceled, report.StopReason)
	assert.Equal(t, 1, report.Pages)
}

func TestRunPageDelayIsJittered(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.adapter.pages[1] = []string{"a"}
	h.adapter.pages[2] = []string{"b"}

	h.worker(Config{}, nil).Run(context.Background(), uuid.New())
	require.Len(t, h.sleeper.waits, 2)
	for _, d := range h.sleeper.waits {
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 7*time.Second)
	}
	assert.Equal(t, 5*time.Second, h.sleeper.waits[0])
}

func TestRunFetchesEachStaleCompanyOnce(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.adapter.pages[1] = []string{"j1", "j2", "j3"}
	h.adapter.companyOf = map[string]string{"j1": "acme", "j2": "acme", "j3": "fresh-co"}

	tx, err := h.rel.BeginBatch(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.UpsertCompany(context.Background(),
		crawler.Company{ID: "fresh-co", Platform: crawler.PlatformSaramin, Name: "Fresh"}))
	require.NoError(t, tx.Commit(context.Background()))

	report := h.worker(Config{}, nil).Run(context.Background(), uuid.New())
	require.Equal(t, 3, report.Saved)

	assert.Equal(t, 1, h.adapter.companyHit["acme"])
	assert.Zero(t, h.adapter.companyHit["fresh-co"])

	acme, crawledAt, ok := h.rel.Company(crawler.PlatformSaramin, "acme")
	require.True(t, ok)
	require.NotNil(t, crawledAt)
	assert.Equal(t, "IT", acme.Industry)
	assert.Equal(t, crawler.PlatformSaramin, acme.Platform)
}

// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

var errTxDone = errors.New("transaction already finished")

type recordKey struct {
	platform crawler.Platform
	id       string
}

type jobRow struct {
	job       crawler.Job
	crawledAt time.Time
}

type companyRow struct {
	company   crawler.Company
	crawledAt *time.Time
}

// RelationalStore keeps jobs and companies in maps and stages batch writes
// until commit.
type RelationalStore struct {
	mu        sync.RWMutex
	clock     crawler.Clock
	jobs      map[recordKey]jobRow
	companies map[recordKey]companyRow
}

// NewRelationalStore constructs an empty store.
func NewRelationalStore(clock crawler.Clock) *RelationalStore {
	return &RelationalStore{
		clock:     clock,
		jobs:      make(map[recordKey]jobRow),
		companies: make(map[recordKey]companyRow),
	}
}

// LastCrawledAt implements crawler.FreshnessLookup. Name-only company stubs
// have no crawl time and report ok=false.
func (s *RelationalStore) LastCrawledAt(
	_ context.Context,
	entity crawler.Entity,
	platform crawler.Platform,
	id string,
) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := recordKey{platform: platform, id: id}
	switch entity {
	case crawler.EntityCompany:
		row, ok := s.companies[key]
		if !ok || row.crawledAt == nil {
			return time.Time{}, false, nil
		}
		return *row.crawledAt, true, nil
	default:
		row, ok := s.jobs[key]
		if !ok {
			return time.Time{}, false, nil
		}
		return row.crawledAt, true, nil
	}
}

// BeginBatch starts a staged transaction.
func (s *RelationalStore) BeginBatch(_ context.Context) (crawler.RelationalTx, error) {
	return &relationalTx{
		store:     s,
		jobs:      make(map[recordKey]jobRow),
		companies: make(map[recordKey]companyRow),
	}, nil
}

// Job returns a stored job and its crawl time.
func (s *RelationalStore) Job(platform crawler.Platform, id string) (crawler.Job, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.jobs[recordKey{platform: platform, id: id}]
	return cloneJob(row.job), row.crawledAt, ok
}

// Company returns a stored company and its crawl time (nil for stubs).
func (s *RelationalStore) Company(platform crawler.Platform, id string) (crawler.Company, *time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.companies[recordKey{platform: platform, id: id}]
	return row.company, row.crawledAt, ok
}

// JobCount returns the number of stored jobs.
func (s *RelationalStore) JobCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// SetJobCrawledAt rewrites a job's crawl time; used to seed fixtures.
func (s *RelationalStore) SetJobCrawledAt(job crawler.Job, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[recordKey{platform: job.Platform, id: job.ID}] = jobRow{job: cloneJob(job), crawledAt: at}
}

type relationalTx struct {
	store     *RelationalStore
	jobs      map[recordKey]jobRow
	companies map[recordKey]companyRow
	stubs     map[recordKey]crawler.Company
	done      bool
}

func (t *relationalTx) UpsertCompany(_ context.Context, company crawler.Company) error {
	if t.done {
		return errTxDone
	}
	now := t.store.clock.Now()
	t.companies[recordKey{platform: company.Platform, id: company.ID}] = companyRow{company: company, crawledAt: &now}
	return nil
}

func (t *relationalTx) EnsureCompany(_ context.Context, platform crawler.Platform, id, name string) error {
	if t.done {
		return errTxDone
	}
	if t.stubs == nil {
		t.stubs = make(map[recordKey]crawler.Company)
	}
	t.stubs[recordKey{platform: platform, id: id}] = crawler.Company{ID: id, Platform: platform, Name: name}
	return nil
}

func (t *relationalTx) UpsertJob(_ context.Context, job crawler.Job) (crawler.SinkOutcome, error) {
	if t.done {
		return crawler.OutcomeFailed, errTxDone
	}
	key := recordKey{platform: job.Platform, id: job.ID}
	outcome := crawler.OutcomeInserted
	if _, staged := t.jobs[key]; staged {
		outcome = crawler.OutcomeUpdated
	} else {
		t.store.mu.RLock()
		_, exists := t.store.jobs[key]
		t.store.mu.RUnlock()
		if exists {
			outcome = crawler.OutcomeUpdated
		}
	}
	t.jobs[key] = jobRow{job: cloneJob(job), crawledAt: t.store.clock.Now()}
	return outcome, nil
}

func (t *relationalTx) Commit(_ context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, stub := range t.stubs {
		if _, exists := s.companies[key]; !exists {
			s.companies[key] = companyRow{company: stub}
		}
	}
	for key, row := range t.companies {
		s.companies[key] = row
	}
	for key, row := range t.jobs {
		s.jobs[key] = row
	}
	return nil
}

func (t *relationalTx) Rollback(_ context.Context) error {
	t.done = true
	return nil
}

func cloneJob(job crawler.Job) crawler.Job {
	job.Images = append([]string(nil), job.Images...)
	job.Tags = append([]string(nil), job.Tags...)
	job.Benefits = append([]string(nil), job.Benefits...)
	return job
}

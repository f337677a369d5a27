package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

const (
	selectJobCrawledAt = `SELECT crawled_at FROM jobs WHERE platform = $1 AND job_id = $2`

	selectCompanyCrawledAt = `SELECT crawled_at FROM companies
WHERE platform = $1 AND company_id = $2 AND crawled_at IS NOT NULL`

	upsertCompany = `INSERT INTO companies (
	platform, company_id, name, introduction, industry, address, homepage, logo_url, attributes, crawled_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (platform, company_id) DO UPDATE SET
	name = EXCLUDED.name,
	introduction = EXCLUDED.introduction,
	industry = EXCLUDED.industry,
	address = EXCLUDED.address,
	homepage = EXCLUDED.homepage,
	logo_url = EXCLUDED.logo_url,
	attributes = EXCLUDED.attributes,
	crawled_at = EXCLUDED.crawled_at`

	ensureCompany = `INSERT INTO companies (platform, company_id, name)
VALUES ($1,$2,$3)
ON CONFLICT (platform, company_id) DO NOTHING`

	upsertJob = `INSERT INTO jobs (
	platform, job_id, job_url, company_id, position, is_active, deadline, address, category,
	employment_type, career, education, annual_from, annual_to, content_type, full_text, crawled_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (platform, job_id) DO UPDATE SET
	job_url = EXCLUDED.job_url,
	company_id = EXCLUDED.company_id,
	position = EXCLUDED.position,
	is_active = EXCLUDED.is_active,
	deadline = EXCLUDED.deadline,
	address = EXCLUDED.address,
	category = EXCLUDED.category,
	employment_type = EXCLUDED.employment_type,
	career = EXCLUDED.career,
	education = EXCLUDED.education,
	annual_from = EXCLUDED.annual_from,
	annual_to = EXCLUDED.annual_to,
	content_type = EXCLUDED.content_type,
	full_text = EXCLUDED.full_text,
	crawled_at = EXCLUDED.crawled_at
RETURNING (xmax = 0)`
)

// childTables are rewritten wholesale on every job upsert.
var childTables = []string{"job_images", "job_tags", "job_benefits"}

// JobStore implements crawler.RelationalStore on Postgres.
type JobStore struct {
	pool Pool
	now  func() time.Time
}

// NewJobStore wraps pool. clock stamps crawled_at; nil uses UTC wall time.
func NewJobStore(pool Pool, clock crawler.Clock) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	return &JobStore{pool: pool, now: now}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// LastCrawledAt implements crawler.FreshnessLookup.
func (s *JobStore) LastCrawledAt(
	ctx context.Context,
	entity crawler.Entity,
	platform crawler.Platform,
	id string,
) (time.Time, bool, error) {
	query := selectJobCrawledAt
	if entity == crawler.EntityCompany {
		query = selectCompanyCrawledAt
	}
	var crawledAt time.Time
	err := s.pool.QueryRow(ctx, query, string(platform), id).Scan(&crawledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("lookup %s %s/%s: %w", entity, platform, id, err)
	}
	return crawledAt, true, nil
}

// BeginBatch opens a transaction for one page batch.
func (s *JobStore) BeginBatch(ctx context.Context) (crawler.RelationalTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &jobTx{tx: tx, stamp: s.now()}, nil
}

// jobTx stamps every row of the batch with the same crawl time.
type jobTx struct {
	tx    pgx.Tx
	stamp time.Time
}

func (t *jobTx) UpsertCompany(ctx context.Context, c crawler.Company) error {
	attrs := c.Attributes
	if attrs == nil {
		attrs = []string{}
	}
	_, err := t.tx.Exec(ctx, upsertCompany,
		string(c.Platform), c.ID, c.Name, c.Introduction, c.Industry,
		c.Address, c.Homepage, c.LogoURL, attrs, t.stamp,
	)
	if err != nil {
		return fmt.Errorf("upsert company %s: %w", c.ID, err)
	}
	return nil
}

func (t *jobTx) EnsureCompany(ctx context.Context, platform crawler.Platform, id, name string) error {
	if _, err := t.tx.Exec(ctx, ensureCompany, string(platform), id, name); err != nil {
		return fmt.Errorf("ensure company %s: %w", id, err)
	}
	return nil
}

func (t *jobTx) UpsertJob(ctx context.Context, j crawler.Job) (crawler.SinkOutcome, error) {
	var companyID *string
	if j.CompanyID != "" {
		companyID = &j.CompanyID
	}
	contentType := j.ContentType
	if contentType == "" {
		contentType = crawler.ContentText
	}
	var inserted bool
	err := t.tx.QueryRow(ctx, upsertJob,
		string(j.Platform), j.ID, j.URL, companyID, j.Position, j.IsActive, j.Deadline,
		j.Address, j.Category, j.EmploymentType, j.Career, j.Education,
		j.AnnualFrom, j.AnnualTo, string(contentType), j.FullText, t.stamp,
	).Scan(&inserted)
	if err != nil {
		return crawler.OutcomeFailed, fmt.Errorf("upsert job %s: %w", j.ID, err)
	}

	children := [][]string{j.Images, j.Tags, j.Benefits}
	for i, table := range childTables {
		if err := t.replaceChildren(ctx, table, j, children[i]); err != nil {
			return crawler.OutcomeFailed, err
		}
	}
	if inserted {
		return crawler.OutcomeInserted, nil
	}
	return crawler.OutcomeUpdated, nil
}

func (t *jobTx) replaceChildren(ctx context.Context, table string, j crawler.Job, values []string) error {
	del := fmt.Sprintf(`DELETE FROM %s WHERE platform = $1 AND job_id = $2`, table)
	if _, err := t.tx.Exec(ctx, del, string(j.Platform), j.ID); err != nil {
		return fmt.Errorf("clear %s for job %s: %w", table, j.ID, err)
	}
	if len(values) == 0 {
		return nil
	}
	ins := fmt.Sprintf(`INSERT INTO %s (platform, job_id, position, value)
SELECT $1, $2, u.ord, u.value FROM unnest($3::text[]) WITH ORDINALITY AS u(value, ord)`, table)
	if _, err := t.tx.Exec(ctx, ins, string(j.Platform), j.ID, values); err != nil {
		return fmt.Errorf("write %s for job %s: %w", table, j.ID, err)
	}
	return nil
}

func (t *jobTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (t *jobTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback batch: %w", err)
	}
	return nil
}

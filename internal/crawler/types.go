package crawler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSkipped marks a fetch whose target is gone or temporarily unavailable
// (redirected, removed, under review). Callers drop the item without failing.
var ErrSkipped = errors.New("source skipped request")

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// Platform names a job-posting source.
type Platform string

// Supported platforms.
const (
	PlatformWanted   Platform = "WANTED"
	PlatformSaramin  Platform = "SARAMIN"
	PlatformJobKorea Platform = "JOBKOREA"
)

// Platforms lists every supported platform in scheduling order.
func Platforms() []Platform {
	return []Platform{PlatformWanted, PlatformSaramin, PlatformJobKorea}
}

// ParsePlatform resolves a case-insensitive platform name.
func ParsePlatform(name string) (Platform, error) {
	p := Platform(strings.ToUpper(strings.TrimSpace(name)))
	for _, known := range Platforms() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", name)
}

// Entity selects which record family a freshness lookup targets.
type Entity string

// Freshness-tracked entities.
const (
	EntityJob     Entity = "job"
	EntityCompany Entity = "company"
)

// Verdict is the freshness decision for a single identifier.
type Verdict string

// Verdict values.
const (
	VerdictNew   Verdict = "new"
	VerdictRenew Verdict = "renew"
	VerdictPass  Verdict = "pass"
)

// NeedsFetch reports whether the identifier should be fetched this cycle.
func (v Verdict) NeedsFetch() bool {
	return v == VerdictNew || v == VerdictRenew
}

// ContentType classifies how a posting carries its description.
type ContentType string

// Posting content types.
const (
	ContentText  ContentType = "TEXT"
	ContentImage ContentType = "IMAGE"
)

// Job is the normalized posting record written to both sinks.
type Job struct {
	ID             string      `json:"job_id"`
	Platform       Platform    `json:"platform"`
	URL            string      `json:"job_url"`
	CompanyID      string      `json:"company_id,omitempty"`
	CompanyName    string      `json:"company_name,omitempty"`
	Position       string      `json:"position"`
	IsActive       bool        `json:"is_active"`
	Deadline       string      `json:"deadline,omitempty"`
	Address        string      `json:"address,omitempty"`
	Category       string      `json:"category,omitempty"`
	EmploymentType string      `json:"employment_type,omitempty"`
	Career         string      `json:"career,omitempty"`
	Education      string      `json:"education,omitempty"`
	AnnualFrom     *int        `json:"annual_from,omitempty"`
	AnnualTo       *int        `json:"annual_to,omitempty"`
	ContentType    ContentType `json:"content_type,omitempty"`
	FullText       string      `json:"full_text,omitempty"`
	Images         []string    `json:"images,omitempty"`
	Tags           []string    `json:"tags,omitempty"`
	Benefits       []string    `json:"benefits,omitempty"`
}

// Company is the organization record referenced by jobs.
type Company struct {
	ID           string   `json:"company_id"`
	Platform     Platform `json:"platform"`
	Name         string   `json:"company_name"`
	Introduction string   `json:"introduction,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	Address      string   `json:"address,omitempty"`
	Homepage     string   `json:"homepage,omitempty"`
	LogoURL      string   `json:"logo_url,omitempty"`
	Attributes   []string `json:"attributes,omitempty"`
}

// Item is one fetched posting plus the company detail fetched alongside it,
// if any.
type Item struct {
	Job     Job
	Company *Company
}

// RawEnvelope is the append-only archival record keyed by source URL.
type RawEnvelope struct {
	SourceURL  string   `json:"source_url"`
	Platform   Platform `json:"platform"`
	RawContent string   `json:"raw_json_content"`
}

// PageMode distinguishes page-number from offset pagination.
type PageMode string

// Pagination modes.
const (
	PageModePage   PageMode = "page"
	PageModeOffset PageMode = "offset"
)

// Pagination describes how a source walks its listing.
type Pagination struct {
	Mode  PageMode
	Start int
	Step  int
}

// First returns the cursor for the first listing page.
func (p Pagination) First() Cursor {
	step := p.Step
	if step <= 0 {
		step = 1
	}
	return Cursor{Mode: p.Mode, Value: p.Start, Step: step}
}

// Cursor is the position of a listing page. It is a value; adapters never
// hold it between calls.
type Cursor struct {
	Mode  PageMode `json:"mode"`
	Value int      `json:"value"`
	Step  int      `json:"step"`
}

// Next returns the cursor of the following page.
func (c Cursor) Next() Cursor {
	c.Value += c.Step
	return c
}

// String renders the cursor for logs.
func (c Cursor) String() string {
	return fmt.Sprintf("%s=%d", c.Mode, c.Value)
}

// SinkOutcome reports what a sink did with one item.
type SinkOutcome string

// Sink outcomes.
const (
	OutcomeInserted SinkOutcome = "inserted"
	OutcomeUpdated  SinkOutcome = "updated"
	OutcomeSkipped  SinkOutcome = "skipped"
	OutcomeFailed   SinkOutcome = "failed"
)

// ItemOutcome pairs the relational and raw results for one job.
type ItemOutcome struct {
	ID         string      `json:"id"`
	URL        string      `json:"url"`
	Relational SinkOutcome `json:"relational"`
	Raw        SinkOutcome `json:"raw"`
}

// BatchResult is returned for every persisted page batch.
type BatchResult struct {
	Platform Platform      `json:"platform"`
	Items    []ItemOutcome `json:"items"`
}

// Count returns the number of items whose relational or raw outcome matches.
func (r BatchResult) Count(relational bool, outcome SinkOutcome) int {
	n := 0
	for _, item := range r.Items {
		got := item.Raw
		if relational {
			got = item.Relational
		}
		if got == outcome {
			n++
		}
	}
	return n
}

// Committed returns the number of items written to the relational store.
func (r BatchResult) Committed() int {
	return r.Count(true, OutcomeInserted) + r.Count(true, OutcomeUpdated)
}

// BatchEvent is published after each committed batch.
type BatchEvent struct {
	RunID       string    `json:"run_id"`
	Platform    Platform  `json:"platform"`
	Cursor      Cursor    `json:"cursor"`
	Inserted    int       `json:"inserted"`
	Updated     int       `json:"updated"`
	RawInserted int       `json:"raw_inserted"`
	RawSkipped  int       `json:"raw_skipped"`
	RawFailed   int       `json:"raw_failed"`
	JobIDs      []string  `json:"job_ids"`
	PublishedAt time.Time `json:"published_at"`
}

// SessionStatus is the terminal state of a source session.
type SessionStatus string

// Session statuses.
const (
	SessionRunning   SessionStatus = "running"
	SessionSucceeded SessionStatus = "succeeded"
	SessionFailed    SessionStatus = "failed"
	SessionCanceled  SessionStatus = "canceled"
)

// StopReason explains why a session stopped walking pages.
type StopReason string

// Stop reasons.
const (
	StopExhausted  StopReason = "listing_exhausted"
	StopCaughtUp   StopReason = "consecutive_empty_pages"
	StopPageLimit  StopReason = "page_limit"
	StopPersist    StopReason = "persist_failed"
	StopListFailed StopReason = "list_failed"
	StopCanceled   StopReason = "canceled"
)

// SessionReport summarizes one source session.
type SessionReport struct {
	RunID      string        `json:"run_id"`
	Platform   Platform      `json:"platform"`
	Status     SessionStatus `json:"status"`
	StopReason StopReason    `json:"stop_reason,omitempty"`
	Pages      int           `json:"pages"`
	Fetched    int           `json:"fetched"`
	Dropped    int           `json:"dropped"`
	Saved      int           `json:"saved"`
	RawSaved   int           `json:"raw_saved"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

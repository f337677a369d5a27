// Package wanted adapts the WANTED JSON API.
package wanted

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/httpclient"
	"github.com/JakeFAU/job-harvester/internal/source"
)

const (
	defaultWeb = "https://www.wanted.co.kr"
	pageSize   = 20
	// rolling is stored as the deadline of postings without a due date.
	rolling = "상시채용"
)

func init() {
	source.Register(crawler.PlatformWanted, func(f source.Fetcher, ep source.Endpoints) crawler.SourceAdapter {
		return New(f, ep)
	})
}

// Adapter lists postings newest first with offset paging.
type Adapter struct {
	fetch source.Fetcher
	web   string
	api   string
}

// New builds an Adapter. ep.Web overrides the site host, ep.API the API host.
func New(f source.Fetcher, ep source.Endpoints) *Adapter {
	web := strings.TrimRight(source.Or(ep.Web, defaultWeb), "/")
	return &Adapter{
		fetch: f,
		web:   web,
		api:   strings.TrimRight(source.Or(ep.API, web), "/"),
	}
}

// Platform implements crawler.SourceAdapter.
func (a *Adapter) Platform() crawler.Platform { return crawler.PlatformWanted }

// Pagination implements crawler.SourceAdapter.
func (a *Adapter) Pagination() crawler.Pagination {
	return crawler.Pagination{Mode: crawler.PageModeOffset, Start: 0, Step: pageSize}
}

type listResponse struct {
	Data []struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// FetchJobList returns the posting ids at cursor's offset.
func (a *Adapter) FetchJobList(ctx context.Context, cursor crawler.Cursor) ([]string, error) {
	q := url.Values{
		"country":   {"kr"},
		"job_sort":  {"job.latest_order"},
		"years":     {"-1"},
		"locations": {"all"},
		"limit":     {strconv.Itoa(pageSize)},
		"offset":    {strconv.Itoa(cursor.Value)},
	}
	resp, err := a.fetch.Fetch(ctx, httpclient.Get(a.api+"/api/chaos/navigation/v1/results").WithQuery(q))
	if err != nil {
		return nil, err
	}
	var payload listResponse
	if err := resp.DecodeJSON(&payload); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(payload.Data))
	for _, item := range payload.Data {
		if id := item.ID.String(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type tag struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type detailResponse struct {
	Error   any    `json:"error"`
	Message string `json:"message"`
	Data    struct {
		Job struct {
			ID      json.Number `json:"id"`
			Status  string      `json:"status"`
			DueTime *string     `json:"due_time"`
			Detail  struct {
				Position        string `json:"position"`
				Intro           string `json:"intro"`
				MainTasks       string `json:"main_tasks"`
				Requirements    string `json:"requirements"`
				PreferredPoints string `json:"preferred_points"`
				Benefits        string `json:"benefits"`
				HireRounds      string `json:"hire_rounds"`
			} `json:"detail"`
			AttractionTags []tag `json:"attraction_tags"`
			Company        struct {
				ID      json.Number `json:"id"`
				Name    string      `json:"name"`
				LogoImg struct {
					Origin string `json:"origin"`
				} `json:"logo_img"`
			} `json:"company"`
			Address struct {
				FullLocation string `json:"full_location"`
			} `json:"address"`
			CategoryTag struct {
				ParentTag tag   `json:"parent_tag"`
				ChildTags []tag `json:"child_tags"`
			} `json:"category_tag"`
			SkillTags      []tag  `json:"skill_tags"`
			AnnualFrom     *int   `json:"annual_from"`
			AnnualTo       *int   `json:"annual_to"`
			EmploymentType string `json:"employment_type"`
			Images         []struct {
				URL string `json:"url"`
			} `json:"company_images"`
		} `json:"job"`
	} `json:"data"`
}

// FetchJobDetail returns the normalized posting. An API-level error is
// reported as a skip.
func (a *Adapter) FetchJobDetail(ctx context.Context, id string) (crawler.Job, error) {
	resp, err := a.fetch.Fetch(ctx, httpclient.Get(fmt.Sprintf("%s/api/chaos/jobs/v4/%s/details", a.api, id)))
	if err != nil {
		return crawler.Job{}, err
	}
	var payload detailResponse
	if err := resp.DecodeJSON(&payload); err != nil {
		return crawler.Job{}, err
	}
	if payload.Error != nil || payload.Message != "ok" {
		return crawler.Job{}, fmt.Errorf("wanted job %s: api message %q: %w", id, payload.Message, crawler.ErrSkipped)
	}

	src := payload.Data.Job
	job := crawler.Job{
		ID:             src.ID.String(),
		Platform:       crawler.PlatformWanted,
		URL:            fmt.Sprintf("%s/wd/%s", a.web, id),
		CompanyID:      src.Company.ID.String(),
		CompanyName:    src.Company.Name,
		Position:       src.Detail.Position,
		IsActive:       src.Status == "active",
		Deadline:       rolling,
		Address:        src.Address.FullLocation,
		Category:       src.CategoryTag.ParentTag.Text,
		EmploymentType: src.EmploymentType,
		AnnualFrom:     src.AnnualFrom,
		AnnualTo:       src.AnnualTo,
		ContentType:    crawler.ContentText,
		FullText: sections(
			"intro", src.Detail.Intro,
			"main_tasks", src.Detail.MainTasks,
			"requirements", src.Detail.Requirements,
			"preferred_points", src.Detail.PreferredPoints,
			"benefits", src.Detail.Benefits,
			"hire_rounds", src.Detail.HireRounds,
		),
	}
	if job.ID == "" {
		job.ID = id
	}
	if src.DueTime != nil && *src.DueTime != "" {
		job.Deadline = *src.DueTime
	}
	for _, t := range src.CategoryTag.ChildTags {
		job.Tags = appendText(job.Tags, t.Text)
	}
	for _, t := range src.SkillTags {
		job.Tags = appendText(job.Tags, t.Text)
	}
	for _, t := range src.AttractionTags {
		job.Benefits = appendText(job.Benefits, t.Title)
	}
	for _, img := range src.Images {
		job.Images = appendText(job.Images, img.URL)
	}
	return job, nil
}

type companyResponse struct {
	Company struct {
		ID           json.Number `json:"id"`
		Name         string      `json:"name"`
		Description  string      `json:"description"`
		IndustryName string      `json:"industry_name"`
		Link         string      `json:"link"`
		Address      struct {
			FullLocation string `json:"full_location"`
		} `json:"address"`
		LogoImg struct {
			Origin string `json:"origin"`
		} `json:"logo_img"`
		CompanyTags []tag `json:"company_tags"`
	} `json:"company"`
}

// FetchCompanyInfo returns the company profile.
func (a *Adapter) FetchCompanyInfo(ctx context.Context, companyID string) (crawler.Company, error) {
	resp, err := a.fetch.Fetch(ctx, httpclient.Get(fmt.Sprintf("%s/api/v4/companies/%s", a.api, companyID)))
	if err != nil {
		return crawler.Company{}, err
	}
	var payload companyResponse
	if err := resp.DecodeJSON(&payload); err != nil {
		return crawler.Company{}, err
	}
	src := payload.Company
	if src.Name == "" {
		return crawler.Company{}, fmt.Errorf("wanted company %s: empty profile: %w", companyID, crawler.ErrSkipped)
	}
	company := crawler.Company{
		ID:           companyID,
		Platform:     crawler.PlatformWanted,
		Name:         src.Name,
		Introduction: src.Description,
		Industry:     src.IndustryName,
		Address:      src.Address.FullLocation,
		Homepage:     src.Link,
		LogoURL:      src.LogoImg.Origin,
	}
	for _, t := range src.CompanyTags {
		company.Attributes = appendText(company.Attributes, t.Title)
	}
	return company, nil
}

// sections joins labelled, non-empty description blocks.
func sections(kv ...string) string {
	var parts []string
	for i := 0; i+1 < len(kv); i += 2 {
		if body := strings.TrimSpace(kv[i+1]); body != "" {
			parts = append(parts, "["+kv[i]+"]\n"+body)
		}
	}
	return strings.Join(parts, "\n\n")
}

func appendText(dst []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		dst = append(dst, s)
	}
	return dst
}

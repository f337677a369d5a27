// Package saramin adapts the SARAMIN mobile listing and its HTML detail
// fragments.
package saramin

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/httpclient"
	"github.com/JakeFAU/job-harvester/internal/source"
	"github.com/JakeFAU/job-harvester/internal/source/htmlutil"
)

const (
	defaultWeb    = "https://www.saramin.co.kr"
	defaultMobile = "https://m.saramin.co.kr"
	pageSize      = 20
)

// categories are the job-category codes walked by the listing.
var categories = func() string {
	codes := make([]string, 0, 21)
	for i := 2; i <= 22; i++ {
		codes = append(codes, strconv.Itoa(i))
	}
	return strings.Join(codes, ",")
}()

func init() {
	source.Register(crawler.PlatformSaramin, func(f source.Fetcher, ep source.Endpoints) crawler.SourceAdapter {
		return New(f, ep)
	})
}

// Adapter lists postings newest first with page paging.
type Adapter struct {
	fetch      source.Fetcher
	web        string
	mobile     string
	classifier *htmlutil.Classifier
}

// New builds an Adapter.
func New(f source.Fetcher, ep source.Endpoints) *Adapter {
	return &Adapter{
		fetch:      f,
		web:        strings.TrimRight(source.Or(ep.Web, defaultWeb), "/"),
		mobile:     strings.TrimRight(source.Or(ep.Mobile, defaultMobile), "/"),
		classifier: htmlutil.NewClassifier(0, nil),
	}
}

// Platform implements crawler.SourceAdapter.
func (a *Adapter) Platform() crawler.Platform { return crawler.PlatformSaramin }

// Pagination implements crawler.SourceAdapter.
func (a *Adapter) Pagination() crawler.Pagination {
	return crawler.Pagination{Mode: crawler.PageModePage, Start: 1, Step: 1}
}

// FetchJobList returns the rec_idx values of one listing page.
func (a *Adapter) FetchJobList(ctx context.Context, cursor crawler.Cursor) ([]string, error) {
	q := url.Values{
		"page":       {strconv.Itoa(cursor.Value)},
		"page_count": {strconv.Itoa(pageSize)},
		"searchType": {"search"},
		"cat_mcls":   {categories},
		"sort":       {"reg_dt"},
	}
	resp, err := a.fetch.Fetch(ctx, httpclient.Get(a.mobile+"/search/get-recruit-list").WithQuery(q))
	if err != nil {
		return nil, err
	}
	var payload struct {
		InnerHTML string `json:"innerHTML"`
	}
	if err := resp.DecodeJSON(&payload); err != nil {
		return nil, err
	}
	doc, err := htmlutil.Parse([]byte(payload.InnerHTML))
	if err != nil {
		return nil, err
	}
	var ids []string
	doc.Find(".recruit_container").Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("data-rec_idx"); ok && strings.TrimSpace(id) != "" {
			ids = append(ids, strings.TrimSpace(id))
		}
	})
	return ids, nil
}

// FetchJobDetail combines the summary card with the classified description.
func (a *Adapter) FetchJobDetail(ctx context.Context, id string) (crawler.Job, error) {
	var (
		job     crawler.Job
		content htmlutil.Content
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		job, err = a.summary(gctx, id)
		return err
	})
	g.Go(func() error {
		resp, err := a.fetch.Fetch(gctx, httpclient.PostForm(a.web+"/zf_user/jobs/relay/view-detail", url.Values{"rec_idx": {id}}))
		if err != nil {
			return err
		}
		content, err = a.classifier.Extract(resp.Body)
		return err
	})
	if err := g.Wait(); err != nil {
		return crawler.Job{}, err
	}
	job.ContentType = content.Type
	job.FullText = content.Text
	job.Images = content.Images
	return job, nil
}

func (a *Adapter) summary(ctx context.Context, id string) (crawler.Job, error) {
	req := httpclient.PostForm(a.mobile+"/job-search/view-card", url.Values{"rec_idx": {id}}).
		WithHeader("Referer", fmt.Sprintf("%s/job-search/view?rec_idx=%s", a.mobile, id))
	resp, err := a.fetch.Fetch(ctx, req)
	if err != nil {
		return crawler.Job{}, err
	}
	var payload struct {
		ReturnData string `json:"returnData"`
	}
	if err := resp.DecodeJSON(&payload); err != nil {
		return crawler.Job{}, err
	}
	doc, err := htmlutil.Parse([]byte(payload.ReturnData))
	if err != nil {
		return crawler.Job{}, err
	}
	return a.parseSummary(doc, id)
}

func (a *Adapter) parseSummary(doc *goquery.Document, id string) (crawler.Job, error) {
	position := htmlutil.Text(doc.Find("h1.subject").First())
	if position == "" {
		return crawler.Job{}, fmt.Errorf("saramin job %s: summary without title: %w", id, crawler.ErrSkipped)
	}
	csn, _ := doc.Find("button#favorCompanyBtn").Attr("csn")
	summary := doc.Find("dl.list_summary").First()

	job := crawler.Job{
		ID:             id,
		Platform:       crawler.PlatformSaramin,
		URL:            fmt.Sprintf("%s/zf_user/jobs/relay/view?rec_idx=%s", a.web, id),
		CompanyID:      strings.TrimSpace(csn),
		CompanyName:    htmlutil.Text(doc.Find(".corp_name").First()),
		Position:       position,
		IsActive:       doc.Find("div.page_notification.closed_job").Length() == 0,
		EmploymentType: htmlutil.Text(summary.Find("dd.type")),
		Career:         htmlutil.Text(summary.Find("dd.experience")),
		Education:      htmlutil.Text(summary.Find("dd.education")),
		Deadline:       htmlutil.OwnText(doc.Find("dl.recruit_end_date > dt.tag.end + dd")),
	}

	if benefits := htmlutil.SectionAfter(doc.Selection, "h2", "복리후생"); benefits.Length() > 0 {
		if htmlutil.LastClass(benefits) == "freeform" {
			job.Benefits = htmlutil.Lines(benefits)
		} else {
			benefits.Find("div > dl").Each(func(_ int, dl *goquery.Selection) {
				job.Benefits = append(job.Benefits, fmt.Sprintf("%s: %s",
					htmlutil.Text(dl.Find("dt.tit")), htmlutil.Text(dl.Find("dd.desc"))))
			})
		}
	}

	if addr := htmlutil.SectionAfter(doc.Selection, "h2", "근무지위치"); addr.Length() > 0 {
		switch htmlutil.LastClass(addr) {
		case "bonus_location":
			job.Address = htmlutil.Text(addr.Find("dd.desc").First())
		case "wrap_map_corp":
			job.Address = htmlutil.Text(addr.Find("address.txt_address").First())
		}
	}

	doc.Find(`section[data-layer="relatetags"] ul.list_relation_tag > li`).Each(func(_ int, li *goquery.Selection) {
		if li.Find("a").HasClass("location") {
			return
		}
		if t := htmlutil.Text(li); t != "" {
			job.Tags = append(job.Tags, t)
		}
	})
	return job, nil
}

// FetchCompanyInfo parses the public company page.
func (a *Adapter) FetchCompanyInfo(ctx context.Context, companyID string) (crawler.Company, error) {
	req := httpclient.Get(a.web + "/zf_user/company-info/view").WithQuery(url.Values{"csn": {companyID}})
	resp, err := a.fetch.Fetch(ctx, req)
	if err != nil {
		return crawler.Company{}, err
	}
	doc, err := htmlutil.Parse(resp.Body)
	if err != nil {
		return crawler.Company{}, err
	}

	name := htmlutil.Text(doc.Find("h1.tit_company").First())
	if name == "" {
		name = htmlutil.Meta(doc, "og:title")
	}
	if name == "" {
		return crawler.Company{}, fmt.Errorf("saramin company %s: empty profile: %w", companyID, crawler.ErrSkipped)
	}
	company := crawler.Company{
		ID:           companyID,
		Platform:     crawler.PlatformSaramin,
		Name:         name,
		Introduction: htmlutil.Meta(doc, "description"),
		LogoURL:      htmlutil.AbsoluteURL(htmlutil.Meta(doc, "og:image")),
	}
	doc.Find("dl.company_summary_item, div.detail_corp > dl").Each(func(_ int, dl *goquery.Selection) {
		key := htmlutil.Text(dl.Find("dt").First())
		dd := dl.Find("dd").First()
		val := htmlutil.OwnText(dd)
		switch {
		case key == "":
		case strings.Contains(key, "업종"):
			company.Industry = val
		case strings.Contains(key, "주소"):
			company.Address = val
		case strings.Contains(key, "홈페이지"):
			if href, ok := dd.Find("a").Attr("href"); ok {
				val = href
			}
			company.Homepage = val
		default:
			company.Attributes = append(company.Attributes, key+": "+val)
		}
	})
	return company, nil
}

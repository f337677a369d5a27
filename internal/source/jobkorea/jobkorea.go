// Package jobkorea adapts the JOBKOREA search API and mobile posting pages.
package jobkorea

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/httpclient"
	"github.com/JakeFAU/job-harvester/internal/source"
	"github.com/JakeFAU/job-harvester/internal/source/htmlutil"
)

const (
	defaultWeb    = "https://www.jobkorea.co.kr"
	defaultMobile = "https://m.jobkorea.co.kr"
	pageSize      = 20
	rolling       = "상시채용"
)

func init() {
	source.Register(crawler.PlatformJobKorea, func(f source.Fetcher, ep source.Endpoints) crawler.SourceAdapter {
		return New(f, ep)
	})
}

// Adapter lists postings newest first with zero-based page paging.
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
func (a *Adapter) Platform() crawler.Platform { return crawler.PlatformJobKorea }

// Pagination implements crawler.SourceAdapter.
func (a *Adapter) Pagination() crawler.Pagination {
	return crawler.Pagination{Mode: crawler.PageModePage, Start: 0, Step: 1}
}

type listRequest struct {
	Page          int    `json:"page"`
	PageSize      int    `json:"pageSize"`
	SortProperty  string `json:"sortProperty"`
	SortDirection string `json:"sortDirection"`
	Keyword       string `json:"keyword"`
}

// FetchJobList returns the gno values of one listing page.
func (a *Adapter) FetchJobList(ctx context.Context, cursor crawler.Cursor) ([]string, error) {
	body := listRequest{
		Page:          cursor.Value,
		PageSize:      pageSize,
		SortProperty:  "2",
		SortDirection: "DESC",
	}
	resp, err := a.fetch.Fetch(ctx, httpclient.PostJSON(a.web+"/Search/api/display/v2/jobs", body))
	if err != nil {
		return nil, err
	}
	var payload struct {
		Content []struct {
			ID json.Number `json:"id"`
		} `json:"content"`
	}
	if err := resp.DecodeJSON(&payload); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(payload.Content))
	for _, item := range payload.Content {
		if id := item.ID.String(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// FetchJobDetail joins the summary panel, the posting header and the
// classified description iframe.
func (a *Adapter) FetchJobDetail(ctx context.Context, id string) (crawler.Job, error) {
	var summary, basic, detail []byte
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(dst *[]byte, req httpclient.Request) {
		g.Go(func() error {
			resp, err := a.fetch.Fetch(gctx, req)
			if err != nil {
				return err
			}
			*dst = resp.Body
			return nil
		})
	}
	fetch(&summary, httpclient.Post(a.mobile+"/Recruit/SwipeGIReadInfo/"+id).WithHeader("X-Requested-With", "XMLHttpRequest"))
	fetch(&basic, httpclient.Get(a.mobile+"/Recruit/GI_Read/"+id))
	fetch(&detail, httpclient.Get(a.mobile+"/Recruit/GIReadDetailContentIframe/"+id))
	if err := g.Wait(); err != nil {
		return crawler.Job{}, err
	}

	job := crawler.Job{
		ID:       id,
		Platform: crawler.PlatformJobKorea,
		URL:      a.mobile + "/Recruit/GI_Read/" + id,
	}
	doc, err := htmlutil.Parse(summary)
	if err != nil {
		return crawler.Job{}, err
	}
	parseSummary(doc, &job)

	doc, err = htmlutil.Parse(basic)
	if err != nil {
		return crawler.Job{}, err
	}
	job.Position = htmlutil.Text(doc.Find("div.recruit-article-content h1.recruit-title").First())
	if job.Position == "" {
		return crawler.Job{}, fmt.Errorf("jobkorea job %s: posting without title: %w", id, crawler.ErrSkipped)
	}
	buttons := doc.Find("div.navbarFooter > button")
	_, disabled := buttons.Last().Attr("disabled")
	job.IsActive = buttons.Length() > 0 && !disabled

	content, err := a.classifier.Extract(detail)
	if err != nil {
		return crawler.Job{}, err
	}
	job.ContentType = content.Type
	job.FullText = content.Text
	job.Images = content.Images
	return job, nil
}

func parseSummary(doc *goquery.Document, job *crawler.Job) {
	if rows := doc.Find("div#rowGuidelines"); rows.Length() > 0 {
		rows.Find("div.field").Each(func(_ int, f *goquery.Selection) {
			value := htmlutil.Text(f.Find("div.value"))
			switch htmlutil.Text(f.Find("div.label")) {
			case "경력":
				job.Career = value
			case "학력":
				job.Education = value
			case "고용형태":
				job.EmploymentType = value
			}
		})
	} else {
		job.Career = htmlutil.Text(doc.Find("ul.view-top-list > li.vl-history").First())
	}

	if dates := doc.Find("div.receiptTermDate"); dates.Length() > 0 {
		deadline := htmlutil.Text(dates.Last())
		deadline = strings.NewReplacer("채용시", "", "마감", "").Replace(deadline)
		job.Deadline = htmlutil.Squash(deadline)
		if strings.Contains(job.Deadline, "시작") {
			job.Deadline = rolling
		}
	} else {
		job.Deadline = htmlutil.OwnText(doc.Find("ul.view-top-list > li.vl-date"))
	}

	if company := doc.Find("#rowCompany").First(); company.Length() > 0 {
		if h := company.Find("div.companyHeader > div.header > h2"); h.Length() > 0 {
			job.CompanyName = htmlutil.Text(h.First())
		} else {
			job.CompanyName = htmlutil.Text(company.Find("div.info-company > p").First())
		}
		for _, sel := range []string{"div.row-footer > a", "div.header_wrap > a"} {
			if href, ok := company.Find(sel).First().Attr("href"); ok {
				job.CompanyID = companyIDFromHref(href)
				break
			}
		}
	}

	if kw := doc.Find("#rowKeyword div.keyword-list"); kw.Length() > 0 {
		job.Tags = htmlutil.Lines(kw.First())
	} else {
		job.Tags = htmlutil.Texts(doc.Find("#rowTag ul > li"))
	}

	if benefits := doc.Find("#rowBenefits"); benefits.Length() > 0 {
		benefits.Find("div.benefits-list > div.field").Each(func(_ int, f *goquery.Selection) {
			job.Benefits = append(job.Benefits, fmt.Sprintf("%s: %s",
				htmlutil.Text(f.Find("div.label")), htmlutil.Text(f.Find("div.value"))))
		})
	} else {
		job.Benefits = htmlutil.Texts(doc.Find("ul.info-company-tag > li"))
	}

	switch {
	case doc.Find("div.row.rowLocation").Length() > 0:
		job.Address = htmlutil.Text(doc.Find("div.row.rowLocation div.workAddr").First())
	case doc.Find("#rowCompany > ul.info-company-list").Length() > 0:
		job.Address = htmlutil.OwnText(doc.Find("ul.info-company-list > li:nth-child(4) > dl > dd"))
	}
}

// companyIDFromHref extracts the id from /company/{id}... or the last path
// segment of any other link.
func companyIDFromHref(href string) string {
	path, _, _ := strings.Cut(href, "?")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if strings.EqualFold(seg, "company") && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return segments[len(segments)-1]
}

// FetchCompanyInfo parses the public company page.
func (a *Adapter) FetchCompanyInfo(ctx context.Context, companyID string) (crawler.Company, error) {
	resp, err := a.fetch.Fetch(ctx, httpclient.Get(a.web+"/company/"+companyID))
	if err != nil {
		return crawler.Company{}, err
	}
	doc, err := htmlutil.Parse(resp.Body)
	if err != nil {
		return crawler.Company{}, err
	}
	name := htmlutil.Text(doc.Find("div.company-header-branding-body .name").First())
	if name == "" {
		name = strings.TrimSuffix(htmlutil.Meta(doc, "og:title"), " 기업정보")
	}
	if name == "" {
		return crawler.Company{}, fmt.Errorf("jobkorea company %s: empty profile: %w", companyID, crawler.ErrSkipped)
	}
	company := crawler.Company{
		ID:           companyID,
		Platform:     crawler.PlatformJobKorea,
		Name:         name,
		Introduction: htmlutil.Meta(doc, "description"),
		LogoURL:      htmlutil.AbsoluteURL(htmlutil.Meta(doc, "og:image")),
	}
	doc.Find("table.table-basic-infomation-primary tr").Each(func(_ int, tr *goquery.Selection) {
		tr.Find("th").Each(func(_ int, th *goquery.Selection) {
			key := htmlutil.Text(th)
			td := th.Next()
			val := htmlutil.Text(td)
			switch {
			case key == "" || val == "":
			case strings.Contains(key, "산업"), strings.Contains(key, "업종"):
				company.Industry = val
			case strings.Contains(key, "주소"):
				company.Address = val
			case strings.Contains(key, "홈페이지"):
				if href, ok := td.Find("a").Attr("href"); ok {
					val = href
				}
				company.Homepage = val
			default:
				company.Attributes = append(company.Attributes, key+": "+val)
			}
		})
	})
	return company, nil
}

package htmlutil

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

// DefaultKeywords mark a posting body as carrying its description in text.
var DefaultKeywords = []string{
	"주요업무", "담당업무", "자격요건", "우대사항", "지원자격", "모집부문", "근무조건", "전형절차",
	"자격", "우대", "모집", "업무", "지원", "전형", "마감", "근무",
}

var (
	hiddenStyle = regexp.MustCompile(`(?i)(font-size:\s*0|height:\s*0|width:\s*0|display:\s*none|visibility:\s*hidden)`)
	hiddenClass = regexp.MustCompile(`(blind|hidden|sr-only)`)
)

// Content is the cleaned description of a posting.
type Content struct {
	Type   crawler.ContentType
	Text   string
	Images []string
}

// Classifier decides whether a posting body is text or an image poster.
type Classifier struct {
	MinTextLength int
	keywords      []string
}

// NewClassifier builds a Classifier. Zero values pick the defaults.
func NewClassifier(minText int, keywords []string) *Classifier {
	if minText <= 0 {
		minText = 200
	}
	kept := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			kept = append(kept, kw)
		}
	}
	if len(kept) == 0 {
		kept = DefaultKeywords
	}
	return &Classifier{MinTextLength: minText, keywords: kept}
}

// Extract strips scripts and visually hidden nodes from body, collects image
// sources and classifies the posting.
func (c *Classifier) Extract(body []byte) (Content, error) {
	doc, err := Parse(body)
	if err != nil {
		return Content{}, err
	}
	doc.Find("script, style, noscript").Remove()

	var images []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			images = append(images, AbsoluteURL(src))
		}
	})

	doc.Find("p[hidden]").Remove()
	doc.Find("[style]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		return hiddenStyle.MatchString(style)
	}).Remove()
	doc.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return hiddenClass.MatchString(class)
	}).Remove()

	text := blockText(doc.Selection)
	return Content{
		Type:   c.classify(Squash(text), len(images) > 0),
		Text:   text,
		Images: images,
	}, nil
}

func (c *Classifier) classify(clean string, hasImage bool) crawler.ContentType {
	if !hasImage {
		return crawler.ContentText
	}
	if utf8.RuneCountInString(clean) < c.MinTextLength {
		return crawler.ContentImage
	}
	for _, kw := range c.keywords {
		if strings.Contains(clean, kw) {
			return crawler.ContentText
		}
	}
	return crawler.ContentImage
}

// blockText renders text with one line per block element.
func blockText(s *goquery.Selection) string {
	s.Find("br").ReplaceWithHtml("\n")
	s.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, b *goquery.Selection) {
		b.AppendHtml("\n")
	})
	lines := make([]string, 0, 16)
	for _, line := range strings.Split(s.Text(), "\n") {
		if line = Squash(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

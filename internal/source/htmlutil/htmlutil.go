// Package htmlutil holds the goquery helpers shared by the HTML-backed
// sources.
package htmlutil

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var spaces = regexp.MustCompile(`\s+`)

// Parse builds a document from an HTML fragment or page.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Text returns the selection text with runs of whitespace collapsed.
func Text(s *goquery.Selection) string {
	return Squash(s.Text())
}

// Squash collapses whitespace runs into single spaces and trims.
func Squash(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// OwnText returns only the direct text children of the first node in s,
// ignoring nested elements such as tooltips.
func OwnText(s *goquery.Selection) string {
	var b strings.Builder
	s.First().Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
			b.WriteByte(' ')
		}
	})
	return Squash(b.String())
}

// Lines returns the non-empty trimmed lines of the selection text.
func Lines(s *goquery.Selection) []string {
	var out []string
	for _, line := range strings.Split(s.Text(), "\n") {
		if line = Squash(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Texts returns the squashed text of every matched node, skipping blanks.
func Texts(s *goquery.Selection) []string {
	out := make([]string, 0, s.Length())
	s.Each(func(_ int, item *goquery.Selection) {
		if t := Text(item); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// Meta returns the content of a <meta> tag matched by property or name.
func Meta(doc *goquery.Document, key string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property=%q], meta[name=%q]`, key, key)).First()
	content, _ := sel.Attr("content")
	return strings.TrimSpace(content)
}

// SectionAfter returns the element following the first heading whose text
// contains title, or an empty selection.
func SectionAfter(doc *goquery.Selection, heading, title string) *goquery.Selection {
	h := doc.Find(heading).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), title)
	}).First()
	return h.Next()
}

// AbsoluteURL completes protocol-relative links with https.
func AbsoluteURL(src string) string {
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return src
}

// LastClass returns the last class name of s.
func LastClass(s *goquery.Selection) string {
	class, _ := s.Attr("class")
	fields := strings.Fields(class)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

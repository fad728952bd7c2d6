// Package parsing extracts structured article fields from fetched news pages.
package parsing

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/jonathan/news-ingest/internal/types"
)

// MinFallbackBodyLength is the shortest readability text accepted when the site
// selectors do not match.
const MinFallbackBodyLength = 100

var reporterPattern = regexp.MustCompile(`hk_reporter\s*:\s*'([^']+)'`)

// bodySelectors are tried in order; paragraphs inside the first match form the body.
var bodySelectors = []string{"div#articletxt", "div.article-body", "[itemprop='articleBody']"}

// Article holds the fields parsed from one article page.
type Article struct {
	URL         string
	Title       string
	Body        string
	Author      string
	Source      string
	PublishedAt *time.Time
}

// ParseArticle parses a news article page. An unrecognized structure, meaning no
// title or no body, returns *Error.
func ParseArticle(html, pageURL string) (*Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &Error{URL: pageURL, Reason: ErrMalformedHTML, Cause: err}
	}

	parsedURL, _ := url.Parse(pageURL)
	article := &Article{
		URL:         pageURL,
		Title:       extractTitle(doc),
		Author:      extractAuthor(doc),
		Source:      extractSource(doc, parsedURL),
		PublishedAt: extractPublishedDate(doc),
		Body:        extractBody(doc),
	}

	if article.Body == "" || article.Title == "" || article.PublishedAt == nil {
		fillFromReadability(article, html, parsedURL)
	}

	if article.Title == "" {
		return nil, &Error{URL: pageURL, Reason: ErrNoTitle}
	}
	if article.Body == "" {
		return nil, &Error{URL: pageURL, Reason: ErrNoBody}
	}
	return article, nil
}

// Record converts the parsed article into an unevaluated ArticleRecord.
func (a *Article) Record(ownerID, company string, now time.Time) *types.ArticleRecord {
	return &types.ArticleRecord{
		URL:         a.URL,
		OwnerID:     ownerID,
		Title:       a.Title,
		BodyText:    a.Body,
		PublishedAt: a.PublishedAt,
		Source:      a.Source,
		Author:      a.Author,
		Company:     company,
		Suitability: types.SuitabilityUnevaluated,
		IngestedAt:  now.UTC(),
	}
}

func metaContent(doc *goquery.Document, attr, name string) string {
	content, _ := doc.Find(`meta[` + attr + `="` + name + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

func extractTitle(doc *goquery.Document) string {
	if title := metaContent(doc, "property", "og:title"); title != "" {
		return singleLine(title)
	}
	title := doc.Find("title").First().Text()
	if i := strings.Index(title, "|"); i >= 0 {
		title = title[:i]
	}
	return singleLine(title)
}

func extractPublishedDate(doc *goquery.Document) *time.Time {
	raw := metaContent(doc, "property", "article:published_time")
	if raw == "" {
		return nil
	}
	datePart, _, _ := strings.Cut(raw, "T")
	datePart, _, _ = strings.Cut(datePart, " ")
	return ParseDate(datePart)
}

// ParseDate parses the date formats used by the listing and article pages.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{types.DateLayout, "2006.01.02", "2006/01/02", "2006.01.02 15:04", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &day
		}
	}
	return nil
}

func extractAuthor(doc *goquery.Document) string {
	if author := metaContent(doc, "property", "dable:author"); author != "" {
		return author
	}

	var author string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		script := s.Text()
		if !strings.Contains(script, "GATrackingData") {
			return true
		}
		if m := reporterPattern.FindStringSubmatch(script); m != nil {
			name, _, _ := strings.Cut(m[1], "(")
			author = strings.TrimSpace(name)
			return false
		}
		return true
	})
	return author
}

func extractSource(doc *goquery.Document, pageURL *url.URL) string {
	if site := metaContent(doc, "property", "og:site_name"); site != "" {
		return site
	}
	if pageURL != nil {
		return pageURL.Hostname()
	}
	return ""
}

func extractBody(doc *goquery.Document) string {
	for _, selector := range bodySelectors {
		div := doc.Find(selector).First()
		if div.Length() == 0 {
			continue
		}

		var paragraphs []string
		div.Find("p").Each(func(_ int, p *goquery.Selection) {
			if text := singleLine(p.Text()); text != "" {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > 0 {
			return strings.Join(paragraphs, "\n\n")
		}

		div.Find("script, style, figure, .article-ad").Remove()
		if text := collapseLines(textWithBreaks(div)); text != "" {
			return text
		}
	}
	return ""
}

// textWithBreaks returns the text of a selection with <br> and block boundaries as newlines.
func textWithBreaks(s *goquery.Selection) string {
	s.Find("br").ReplaceWithHtml("\n")
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		b.WriteString(c.Text())
		if goquery.NodeName(c) == "div" {
			b.WriteString("\n")
		}
	})
	return b.String()
}

func fillFromReadability(article *Article, html string, pageURL *url.URL) {
	if pageURL == nil {
		return
	}
	parsed, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return
	}

	if article.Title == "" {
		article.Title = singleLine(parsed.Title)
	}
	if article.Body == "" {
		if text := CleanText(parsed.TextContent); len([]rune(text)) >= MinFallbackBodyLength {
			article.Body = text
		}
	}
	if article.Author == "" {
		article.Author = singleLine(parsed.Byline)
	}
	if article.PublishedAt == nil && parsed.PublishedTime != nil {
		t := parsed.PublishedTime.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		article.PublishedAt = &day
	}
}

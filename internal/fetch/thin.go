package fetch

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MinContentRunes is the shortest article text a plain fetch may return before
// the page is treated as a script-rendered shell. Counted in runes so Hangul
// pages are not penalized for their byte width.
const MinContentRunes = 300

// Article containers, most specific first.
var articleRegions = []string{
	"#articletxt",
	"#article-view-content-div",
	"[itemprop='articleBody']",
	".article-body",
	"article",
	"main",
}

const pageChrome = "script, style, noscript, template, iframe, nav, header, footer, aside"

// visibleText returns the collapsed text of the article region, or of the body
// when no region is marked.
func visibleText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find(pageChrome).Remove()

	region := doc.Find("body")
	for _, selector := range articleRegions {
		if found := doc.Find(selector); found.Length() > 0 {
			region = found.First()
			break
		}
	}
	return strings.Join(strings.Fields(region.Text()), " "), nil
}

// NeedsRendering reports whether html carries too little article text to be
// the finished page.
func NeedsRendering(html string) bool {
	text, err := visibleText(html)
	return err != nil || utf8.RuneCountInString(text) < MinContentRunes
}

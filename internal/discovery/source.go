package discovery

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/news-ingest/internal/parsing"
	"github.com/jonathan/news-ingest/internal/types"
)

// DefaultListingURL is the search endpoint of the Hankyung news site.
const DefaultListingURL = "https://search.hankyung.com/search/news"

// listingDateLayout is the date format of the sdate/edate query parameters.
const listingDateLayout = "2006.01.02"

var totalCountPattern = regexp.MustCompile(`/\s*([\d,]+)\s*건`)

// ListingItem is one search result entry.
type ListingItem struct {
	URL   string
	Title string
	Date  *time.Time // nil when the listing did not show one
}

// Page is one parsed listing page.
type Page struct {
	Items      []ListingItem
	TotalCount int // -1 when unknown
}

// Source knows how to address and parse a paginated listing endpoint.
type Source interface {
	PageURL(criteria types.Criteria, page int) (string, error)
	ParsePage(html, pageURL string) (*Page, error)
	// DateDescending reports whether pages are ordered newest first for the criteria.
	DateDescending(criteria types.Criteria) bool
}

// HankyungSource addresses the Hankyung news search listing.
type HankyungSource struct {
	BaseURL string
	// AllOutlets includes syndicated articles from other outlets (hk_only=n).
	AllOutlets bool
}

// NewHankyungSource creates a source for baseURL, or DefaultListingURL when empty.
func NewHankyungSource(baseURL string) *HankyungSource {
	if baseURL == "" {
		baseURL = DefaultListingURL
	}
	return &HankyungSource{BaseURL: baseURL}
}

// SortParam maps a criteria sort order to the listing's sort parameter.
func SortParam(sort string) string {
	switch sort {
	case types.SortAccuracy:
		return "RANK/DESC,DATE/ASC"
	case types.SortOldest:
		return "DATE/ASC,RANK/DESC"
	default:
		return "DATE/DESC,RANK/DESC"
	}
}

// PageURL builds the URL of the given 1-based listing page.
func (s *HankyungSource) PageURL(criteria types.Criteria, page int) (string, error) {
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid listing URL %q: %w", s.BaseURL, err)
	}

	area := criteria.Area
	if area == "" {
		area = types.AreaAll
	}

	params := url.Values{}
	params.Set("query", criteria.Company)
	params.Set("sort", SortParam(criteria.Sort))
	params.Set("period", "DATE")
	params.Set("area", area)
	params.Set("sdate", criteria.DateRange.Start.Format(listingDateLayout))
	params.Set("edate", criteria.DateRange.End.Format(listingDateLayout))
	params.Set("page", strconv.Itoa(page))
	if criteria.ExactPhrase != "" {
		params.Set("exact", criteria.ExactPhrase)
	}
	if len(criteria.Keywords) > 0 {
		params.Set("include", strings.Join(criteria.Keywords, " "))
	}
	if len(criteria.Exclude) > 0 {
		params.Set("except", strings.Join(criteria.Exclude, " "))
	}
	if s.AllOutlets {
		params.Set("hk_only", "n")
	} else {
		params.Set("hk_only", "y")
	}

	base.RawQuery = params.Encode()
	return base.String(), nil
}

// DateDescending implements Source.
func (s *HankyungSource) DateDescending(criteria types.Criteria) bool {
	return criteria.Sort == "" || criteria.Sort == types.SortLatest
}

// ParsePage extracts result entries in listing order. Relative links are resolved
// against pageURL; entries without a link are dropped.
func (s *HankyungSource) ParsePage(html, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &parsing.Error{URL: pageURL, Reason: parsing.ErrMalformedHTML, Cause: err}
	}
	base, _ := url.Parse(pageURL)

	page := &Page{TotalCount: totalCount(doc)}
	doc.Find("ul.article > li").Each(func(_ int, li *goquery.Selection) {
		href, ok := li.Find(".txt_wrap > a").First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		if base != nil {
			if ref, err := base.Parse(href); err == nil {
				href = ref.String()
			}
		}

		item := ListingItem{
			URL:   href,
			Title: strings.Join(strings.Fields(li.Find(".txt_wrap .tit").First().Text()), " "),
		}
		if date := strings.TrimSpace(li.Find(".date_time, .date").First().Text()); date != "" {
			item.Date = parsing.ParseDate(date)
		}
		page.Items = append(page.Items, item)
	})

	return page, nil
}

func totalCount(doc *goquery.Document) int {
	text := doc.Find(".section.hk_news .tit-wrap .tit span").First().Text()
	m := totalCountPattern.FindStringSubmatch(text)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return -1
	}
	return n
}

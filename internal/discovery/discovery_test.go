package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/news-ingest/internal/fetch"
	"github.com/jonathan/news-ingest/internal/logging"
	"github.com/jonathan/news-ingest/internal/retry"
	"github.com/jonathan/news-ingest/internal/types"
)

type listingEntry struct {
	href string
	date string
}

func listingHTML(total int, entries ...listingEntry) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="section hk_news"><div class="tit-wrap"><h3 class="tit">뉴스 <span>1 / `)
	b.WriteString(strconv.Itoa(total))
	b.WriteString(`건</span></h3></div><ul class="article">`)
	for i, e := range entries {
		fmt.Fprintf(&b, `<li><div class="txt_wrap"><a href="%s"><em class="tit">Article %d</em></a>`, e.href, i)
		if e.date != "" {
			fmt.Fprintf(&b, `<p class="info"><span class="date_time">%s</span></p>`, e.date)
		}
		b.WriteString(`</div></li>`)
	}
	b.WriteString(`</ul></div></body></html>`)
	return b.String()
}

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func acmeCriteria() types.Criteria {
	return types.Criteria{
		OwnerID: "owner-1",
		Company: "Acme",
		DateRange: types.DateRange{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		},
	}
}

// pagedServer serves pages[n-1] for ?page=n and an empty listing past the end.
func pagedServer(t *testing.T, pages map[int]string, fail map[int]int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if status, ok := fail[page]; ok {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		body, ok := pages[page]
		if !ok {
			body = listingHTML(0)
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func newDiscoverer(baseURL string, opts Options) *Discoverer {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = fastPolicy(3)
	}
	opts.Logger = logging.Discard()
	return New(fetch.NewClient(nil), NewHankyungSource(baseURL), opts)
}

func TestDiscover_DedupesAndResolvesRelativeLinks(t *testing.T) {
	server, _ := pagedServer(t, map[int]string{
		1: listingHTML(-1,
			listingEntry{href: "/article/1"},
			listingEntry{href: "https://www.example.com/article/2"},
			listingEntry{href: "/article/1"},
		),
		2: listingHTML(-1,
			listingEntry{href: "https://www.example.com/article/2"},
			listingEntry{href: "/article/3"},
		),
	}, nil)

	result, err := newDiscoverer(server.URL, Options{}).Discover(context.Background(), acmeCriteria())
	require.NoError(t, err)

	assert.Equal(t, []string{
		server.URL + "/article/1",
		"https://www.example.com/article/2",
		server.URL + "/article/3",
	}, result.URLs)
	assert.Equal(t, 2, result.Duplicates)
	assert.Equal(t, 3, result.Pages) // third page is empty
	assert.False(t, result.Partial)
}

func TestDiscover_StopsAtReportedTotal(t *testing.T) {
	server, hits := pagedServer(t, map[int]string{
		1: listingHTML(3, listingEntry{href: "/a"}, listingEntry{href: "/b"}),
		2: listingHTML(3, listingEntry{href: "/c"}),
		3: listingHTML(3, listingEntry{href: "/never"}),
	}, nil)

	result, err := newDiscoverer(server.URL, Options{}).Discover(context.Background(), acmeCriteria())
	require.NoError(t, err)
	assert.Len(t, result.URLs, 3)
	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestDiscover_StopsAtMaxPages(t *testing.T) {
	server, hits := pagedServer(t, map[int]string{
		1: listingHTML(-1, listingEntry{href: "/a"}),
		2: listingHTML(-1, listingEntry{href: "/b"}),
		3: listingHTML(-1, listingEntry{href: "/c"}),
	}, nil)

	criteria := acmeCriteria()
	criteria.MaxPages = 2
	result, err := newDiscoverer(server.URL, Options{}).Discover(context.Background(), criteria)
	require.NoError(t, err)
	assert.Len(t, result.URLs, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestDiscover_StopsWhenPastDateRange(t *testing.T) {
	server, hits := pagedServer(t, map[int]string{
		1: listingHTML(-1,
			listingEntry{href: "/feb", date: "2024.02.02 10:00"},
			listingEntry{href: "/jan-20", date: "2024.01.20 08:15"},
			listingEntry{href: "/dec", date: "2023.12.30 09:00"},
		),
		2: listingHTML(-1, listingEntry{href: "/older", date: "2023.12.01"}),
	}, nil)

	result, err := newDiscoverer(server.URL, Options{}).Discover(context.Background(), acmeCriteria())
	require.NoError(t, err)
	assert.Equal(t, []string{server.URL + "/jan-20"}, result.URLs)
	assert.Equal(t, 2, result.OutOfRange)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestDiscover_FirstPageFailureIsRunLevel(t *testing.T) {
	server, hits := pagedServer(t, nil, map[int]int{1: http.StatusServiceUnavailable})

	result, err := newDiscoverer(server.URL, Options{Retry: fastPolicy(3)}).Discover(context.Background(), acmeCriteria())
	require.Error(t, err)

	var discErr *Error
	require.ErrorAs(t, err, &discErr)
	assert.Equal(t, 1, discErr.Page)

	var exhausted *retry.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.Empty(t, result.URLs)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
}

func TestDiscover_LaterPageFailureIsPartial(t *testing.T) {
	server, _ := pagedServer(t, map[int]string{
		1: listingHTML(-1, listingEntry{href: "/a"}, listingEntry{href: "/b"}),
	}, map[int]int{2: http.StatusBadGateway})

	result, err := newDiscoverer(server.URL, Options{}).Discover(context.Background(), acmeCriteria())
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Len(t, result.URLs, 2)
}

func TestDiscover_TerminalPageFailureNotRetried(t *testing.T) {
	server, hits := pagedServer(t, nil, map[int]int{1: http.StatusForbidden})

	_, err := newDiscoverer(server.URL, Options{Retry: fastPolicy(5)}).Discover(context.Background(), acmeCriteria())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestDiscover_Cancelled(t *testing.T) {
	server, _ := pagedServer(t, map[int]string{
		1: listingHTML(-1, listingEntry{href: "/a"}),
		2: listingHTML(-1, listingEntry{href: "/b"}),
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	opts := Options{
		PageJitter: time.Hour,
		OnPage: func(page, _, _ int) {
			if page == 1 {
				cancel()
			}
		},
	}

	result, err := newDiscoverer(server.URL, opts).Discover(ctx, acmeCriteria())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{server.URL + "/a"}, result.URLs)
}

func TestDiscover_OnPageProgress(t *testing.T) {
	server, _ := pagedServer(t, map[int]string{
		1: listingHTML(2, listingEntry{href: "/a"}),
		2: listingHTML(2, listingEntry{href: "/b"}),
	}, nil)

	var calls [][3]int
	opts := Options{OnPage: func(page, found, total int) { calls = append(calls, [3]int{page, found, total}) }}
	_, err := newDiscoverer(server.URL, opts).Discover(context.Background(), acmeCriteria())
	require.NoError(t, err)
	assert.Equal(t, [][3]int{{1, 1, 2}, {2, 2, 2}}, calls)
}

func TestHankyungSource_PageURL(t *testing.T) {
	criteria := acmeCriteria()
	criteria.Keywords = []string{"battery", "plant"}
	criteria.Exclude = []string{"rumor"}
	criteria.ExactPhrase = "Acme Corp"
	criteria.Sort = types.SortOldest
	criteria.Area = types.AreaTitle

	raw, err := NewHankyungSource("").PageURL(criteria, 4)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "search.hankyung.com", u.Host)

	q := u.Query()
	assert.Equal(t, "Acme", q.Get("query"))
	assert.Equal(t, "DATE/ASC,RANK/DESC", q.Get("sort"))
	assert.Equal(t, "DATE", q.Get("period"))
	assert.Equal(t, "title", q.Get("area"))
	assert.Equal(t, "2024.01.01", q.Get("sdate"))
	assert.Equal(t, "2024.01.31", q.Get("edate"))
	assert.Equal(t, "4", q.Get("page"))
	assert.Equal(t, "Acme Corp", q.Get("exact"))
	assert.Equal(t, "battery plant", q.Get("include"))
	assert.Equal(t, "rumor", q.Get("except"))
	assert.Equal(t, "y", q.Get("hk_only"))
}

func TestHankyungSource_DefaultsAndOrdering(t *testing.T) {
	src := &HankyungSource{BaseURL: DefaultListingURL, AllOutlets: true}
	raw, err := src.PageURL(acmeCriteria(), 1)
	require.NoError(t, err)
	u, _ := url.Parse(raw)
	assert.Equal(t, "ALL", u.Query().Get("area"))
	assert.Equal(t, "DATE/DESC,RANK/DESC", u.Query().Get("sort"))
	assert.Equal(t, "n", u.Query().Get("hk_only"))
	assert.Empty(t, u.Query().Get("include"))

	assert.True(t, src.DateDescending(acmeCriteria()))
	accuracy := acmeCriteria()
	accuracy.Sort = types.SortAccuracy
	assert.False(t, src.DateDescending(accuracy))
	assert.Equal(t, "RANK/DESC,DATE/ASC", SortParam(types.SortAccuracy))
}

func TestHankyungSource_ParsePage(t *testing.T) {
	html := `<div class="section hk_news"><div class="tit-wrap"><h3 class="tit">뉴스 <span>1 / 1,234건</span></h3></div>
	<ul class="article">
		<li><div class="txt_wrap"><a href="https://www.hankyung.com/article/1"><em class="tit">  First
			story </em></a><p class="info"><span class="date_time">2024.01.10 11:00</span></p></div></li>
		<li><div class="txt_wrap"><em class="tit">No link</em></div></li>
	</ul></div>`

	page, err := NewHankyungSource("").ParsePage(html, "https://search.hankyung.com/search/news?page=1")
	require.NoError(t, err)
	assert.Equal(t, 1234, page.TotalCount)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "https://www.hankyung.com/article/1", page.Items[0].URL)
	assert.Equal(t, "First story", page.Items[0].Title)
	require.NotNil(t, page.Items[0].Date)
	assert.Equal(t, "2024-01-10", page.Items[0].Date.Format(types.DateLayout))

	empty, err := NewHankyungSource("").ParsePage(`<html><body>no results</body></html>`, "https://search.hankyung.com/")
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, -1, empty.TotalCount)
}

func TestDiscover_AccuracyOrderReadsPastOldItems(t *testing.T) {
	server, hits := pagedServer(t, map[int]string{
		1: listingHTML(-1,
			listingEntry{href: "/dec", date: "2023.12.30 09:00"},
			listingEntry{href: "/jan-20", date: "2024.01.20 08:15"},
		),
		2: listingHTML(-1, listingEntry{href: "/jan-05", date: "2024.01.05"}),
	}, nil)

	criteria := acmeCriteria()
	criteria.Sort = types.SortAccuracy
	result, err := newDiscoverer(server.URL, Options{}).Discover(context.Background(), criteria)
	require.NoError(t, err)
	assert.Equal(t, []string{server.URL + "/jan-20", server.URL + "/jan-05"}, result.URLs)
	assert.Equal(t, 1, result.OutOfRange)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
}

func TestWalk_StopsFetchingWhenConsumerStops(t *testing.T) {
	server, hits := pagedServer(t, map[int]string{
		1: listingHTML(-1, listingEntry{href: "/a"}, listingEntry{href: "/b"}),
		2: listingHTML(-1, listingEntry{href: "/c"}),
	}, nil)

	var got []string
	for u, err := range newDiscoverer(server.URL, Options{}).Walk(context.Background(), acmeCriteria(), nil) {
		require.NoError(t, err)
		got = append(got, u)
		if len(got) == 1 {
			break
		}
	}
	assert.Equal(t, []string{server.URL + "/a"}, got)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestWalk_RestartsFromFirstPage(t *testing.T) {
	server, hits := pagedServer(t, map[int]string{
		1: listingHTML(2, listingEntry{href: "/a"}),
		2: listingHTML(2, listingEntry{href: "/b"}),
	}, nil)

	var stats Result
	walk := newDiscoverer(server.URL, Options{}).Walk(context.Background(), acmeCriteria(), &stats)
	collect := func() []string {
		var urls []string
		for u, err := range walk {
			require.NoError(t, err)
			urls = append(urls, u)
		}
		return urls
	}

	first := collect()
	second := collect()
	assert.Equal(t, []string{server.URL + "/a", server.URL + "/b"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, int32(4), atomic.LoadInt32(hits))
}

func TestWalk_FirstPageFailureYieldsError(t *testing.T) {
	server, _ := pagedServer(t, nil, map[int]int{1: http.StatusNotFound})

	var errs []error
	for u, err := range newDiscoverer(server.URL, Options{}).Walk(context.Background(), acmeCriteria(), nil) {
		assert.Empty(t, u)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	var discErr *Error
	assert.ErrorAs(t, errs[0], &discErr)
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonathan/news-ingest/internal/config"
	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/pipeline"
	"github.com/jonathan/news-ingest/internal/suitability"
	"github.com/jonathan/news-ingest/internal/types"
)

// newNewsSite serves a one-page listing at /search. Paths with a title get an
// article page; the rest 404.
func newNewsSite(t *testing.T, paths []string, titles map[string]string) *httptest.Server {
	t.Helper()
	var site *httptest.Server
	site = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Path == "/search" {
			if r.URL.Query().Get("page") != "1" {
				_, _ = w.Write([]byte(`<html><body><ul class="article"></ul></body></html>`))
				return
			}
			var b strings.Builder
			fmt.Fprintf(&b, `<html><body><div class="section hk_news"><div class="tit-wrap"><h3 class="tit">뉴스 <span>1 / %d건</span></h3></div><ul class="article">`, len(paths))
			for i, path := range paths {
				fmt.Fprintf(&b, `<li><div class="txt_wrap"><a href="%s%s"><em class="tit">Item %d</em></a></div></li>`, site.URL, path, i)
			}
			b.WriteString(`</ul></div></body></html>`)
			_, _ = w.Write([]byte(b.String()))
			return
		}

		title, ok := titles[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><head>
<meta property="og:title" content="` + title + `">
<meta property="og:site_name" content="Example News">
<meta property="article:published_time" content="2024-01-15T09:00:00+09:00">
</head><body><div id="articletxt"><p>` + title + ` was reported today.</p><p>Further details follow.</p></div></body></html>`))
	}))
	t.Cleanup(site.Close)
	return site
}

// acmeSite lists an accepted article, a rejected one and a missing one.
func acmeSite(t *testing.T) *httptest.Server {
	return newNewsSite(t,
		[]string{"/article/1", "/article/2", "/article/3"},
		map[string]string{
			"/article/1": "Acme signs supply deal",
			"/article/2": "Local weather report",
		})
}

// dealClassifier accepts articles whose title mentions a deal.
type dealClassifier struct{}

func (dealClassifier) Evaluate(_ context.Context, rec *types.ArticleRecord) (suitability.Verdict, error) {
	if strings.Contains(rec.Title, "deal") {
		return suitability.Verdict{Suitability: types.SuitabilityAccepted, Reason: "about a deal"}, nil
	}
	return suitability.Verdict{Suitability: types.SuitabilityRejected, Reason: "unrelated"}, nil
}

var _ pipeline.Classifier = dealClassifier{}

// testConfig points the pipeline at site and a fresh SQLite file.
func testConfig(t *testing.T, site *httptest.Server) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "corpus.db")
	cfg.ListingBaseURL = site.URL + "/search"
	cfg.Retry = config.RetryConfig{MaxAttempts: 2, MinDelayMS: config.Millis(1), MaxDelayMS: config.Millis(2), Multiplier: 2}
	return &cfg
}

func openBackend(t *testing.T, cfg *config.Config) corpus.Backend {
	t.Helper()
	backend, err := pipeline.OpenBackend(context.Background(), cfg, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func acmeCriteria() types.Criteria {
	dates, _ := types.ParseDateRange("2024-01-01", "2024-01-31")
	return types.Criteria{OwnerID: "owner-1", Company: "Acme", DateRange: dates}
}

// withFlags sets the package flag variables for one test and restores them afterwards.
func withFlags(t *testing.T, set func()) {
	t.Helper()
	saved := struct {
		configPath, databaseURL, sqlitePath, apiKey, llmProvider, logLevel string
		verbose                                                            bool
		owner, company, from, to                                           string
		keywords                                                           []string
		forceRefresh                                                       bool
		corpusFrom, corpusTo                                               string
	}{configPath, databaseURL, sqlitePath, apiKey, llmProvider, logLevel, verbose,
		ingestOwner, ingestCompany, ingestFrom, ingestTo, ingestKeywords, ingestForceRefresh,
		corpusFrom, corpusTo}

	t.Cleanup(func() {
		configPath, databaseURL, sqlitePath = saved.configPath, saved.databaseURL, saved.sqlitePath
		apiKey, llmProvider, logLevel, verbose = saved.apiKey, saved.llmProvider, saved.logLevel, saved.verbose
		ingestOwner, ingestCompany, ingestFrom, ingestTo = saved.owner, saved.company, saved.from, saved.to
		ingestKeywords, ingestForceRefresh = saved.keywords, saved.forceRefresh
		corpusFrom, corpusTo = saved.corpusFrom, saved.corpusTo
	})
	set()
}

// changedSet reports the named flags as set on the command line.
func changedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

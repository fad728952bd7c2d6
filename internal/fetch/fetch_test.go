package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func htmlServer(t *testing.T, status int, contentType, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetch_Success(t *testing.T) {
	server := htmlServer(t, http.StatusOK, "text/html; charset=utf-8", "<html><body><h1>Test</h1></body></html>")

	result, err := NewClient(nil).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, server.URL, result.URL)
	assert.Contains(t, result.HTML, "<h1>Test</h1>")
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestFetch_InvalidURL(t *testing.T) {
	for _, u := range []string{"not-a-valid-url", "ftp://example.com/file", "http://"} {
		_, err := NewClient(nil).Fetch(context.Background(), u)
		require.Error(t, err, u)

		var fetchErr *Error
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, KindTerminal, fetchErr.Kind)
		assert.False(t, fetchErr.Retryable())
		assert.Contains(t, err.Error(), "invalid URL")
	}
}

func TestFetch_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		wantKind  Kind
		retryable bool
	}{
		{http.StatusNotFound, KindTerminal, false},
		{http.StatusForbidden, KindTerminal, false},
		{http.StatusGone, KindTerminal, false},
		{http.StatusRequestTimeout, KindTransient, true},
		{http.StatusTooManyRequests, KindTransient, true},
		{http.StatusInternalServerError, KindTransient, true},
		{http.StatusBadGateway, KindTransient, true},
		{http.StatusServiceUnavailable, KindTransient, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := htmlServer(t, tt.status, "text/html", "<html></html>")

			result, err := NewClient(nil).Fetch(context.Background(), server.URL)
			require.Error(t, err)
			require.NotNil(t, result) // Result is returned even on error
			assert.Equal(t, tt.status, result.StatusCode)

			var fetchErr *Error
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, tt.wantKind, fetchErr.Kind)
			assert.Equal(t, tt.retryable, fetchErr.Retryable())
			assert.Equal(t, tt.status, fetchErr.StatusCode)
		})
	}
}

func TestFetch_NonHTMLContentIsTerminal(t *testing.T) {
	server := htmlServer(t, http.StatusOK, "application/pdf", "%PDF-1.4")

	_, err := NewClient(nil).Fetch(context.Background(), server.URL)
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindTerminal, fetchErr.Kind)
	assert.Contains(t, err.Error(), "non-HTML")
}

func TestFetch_TimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(&Options{Timeout: 50 * time.Millisecond})
	_, err := client.Fetch(context.Background(), server.URL)
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindTransient, fetchErr.Kind)
	assert.Contains(t, err.Error(), "timed out")
}

func TestFetch_CallerCancellationIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(&Options{Timeout: 5 * time.Second}).Fetch(ctx, server.URL)
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.False(t, fetchErr.Retryable())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetch_RotatesUserAgent(t *testing.T) {
	pool := []string{"agent-a", "agent-b", "agent-c"}

	var mu sync.Mutex
	seen := make(map[string]int)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.Header.Get("User-Agent")]++
		mu.Unlock()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	client := NewClient(&Options{UserAgents: pool})
	for i := 0; i < 60; i++ {
		result, err := client.Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Contains(t, pool, result.UserAgent)
	}

	mu.Lock()
	defer mu.Unlock()
	for ua := range seen {
		assert.Contains(t, pool, ua)
	}
	assert.Greater(t, len(seen), 1, "expected more than one identity across 60 calls")
}

func TestFetch_DecodesDeclaredCharset(t *testing.T) {
	// "뉴스" encoded as EUC-KR
	body := []byte("<html><body>\xb4\xba\xbd\xba</body></html>")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=euc-kr")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	result, err := NewClient(nil).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, result.HTML, "뉴스")
}

func TestFetch_CustomHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ko-KR", r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	_, err := NewClient(&Options{Headers: map[string]string{"Accept-Language": "ko-KR"}}).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
}

func TestVisibleText_ArticleRegion(t *testing.T) {
	html := `<html><body>
		<nav>Markets | Industry</nav>
		<div id="articletxt">
			<p>Acme   opened a plant.</p>
			<script>track()</script>
			<p>Output starts in May.</p>
		</div>
		<div class="sidebar">Most read</div>
		<footer>Copyright</footer>
	</body></html>`

	text, err := visibleText(html)
	require.NoError(t, err)
	assert.Equal(t, "Acme opened a plant. Output starts in May.", text)
}

func TestVisibleText_FallsBackToBody(t *testing.T) {
	text, err := visibleText(`<html><body><nav>menu</nav><div>Some content here.</div></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Some content here.", text)
}

func TestNeedsRendering(t *testing.T) {
	assert.True(t, NeedsRendering(`<html><body><div id="app"></div><script>render()</script></body></html>`))

	// 300 Hangul syllables are 900 bytes but only just enough runes
	body := strings.Repeat("가", MinContentRunes)
	assert.False(t, NeedsRendering(`<html><body><article>`+body+`</article></body></html>`))
	assert.True(t, NeedsRendering(`<html><body><article>`+body[:len(body)-3]+`</article></body></html>`))
}

type stubFetcher struct {
	result *Result
	err    error
	calls  int
}

func (s *stubFetcher) Fetch(context.Context, string) (*Result, error) {
	s.calls++
	return s.result, s.err
}

func TestFallbackFetcher(t *testing.T) {
	thin := &Result{URL: "https://example.com/a", HTML: "<html><body><div id='app'></div></body></html>"}
	rendered := &Result{URL: "https://example.com/a", HTML: "<html><body>rendered</body></html>"}

	primary := &stubFetcher{result: thin}
	browser := &stubFetcher{result: rendered}
	f := &FallbackFetcher{Primary: primary, Browser: browser}

	got, err := f.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, rendered, got)
	assert.Equal(t, 1, browser.calls)

	// A browser failure keeps the plain result
	browser.err = &Error{Kind: KindTransient, Message: "boom"}
	got, err = f.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, thin, got)
}

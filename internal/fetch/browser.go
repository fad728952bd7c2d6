package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserClient is a Fetcher that renders pages in headless Chrome.
// Requires Chrome/Chromium to be installed on the system.
type BrowserClient struct {
	Timeout   time.Duration
	UserAgent string
	// SettleDelay is how long to wait after the body is ready for scripts to render.
	SettleDelay time.Duration
}

// NewBrowserClient creates a browser-backed fetcher.
func NewBrowserClient(timeout time.Duration, userAgent string) *BrowserClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserClient{Timeout: timeout, UserAgent: userAgent, SettleDelay: 2 * time.Second}
}

// Fetch renders the page and returns the resulting DOM as HTML.
func (b *BrowserClient) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return nil, terminal(urlStr, 0, "invalid URL", nil)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.UserAgent))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.Timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(urlStr),
		chromedp.WaitReady("body"),
		chromedp.Sleep(b.SettleDelay),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, terminal(urlStr, 0, "request cancelled", ctx.Err())
		}
		return nil, transient(urlStr, 0, "browser rendering failed", err)
	}
	if strings.TrimSpace(html) == "" {
		return nil, terminal(urlStr, 0, "empty body", nil)
	}

	return &Result{
		URL:         urlStr,
		FinalURL:    urlStr,
		HTML:        html,
		ContentType: "text/html; charset=utf-8",
		StatusCode:  200,
		UserAgent:   b.UserAgent,
	}, nil
}

// FallbackFetcher tries Primary first and re-renders thin pages with Browser.
// Browser failures fall back to the primary result.
type FallbackFetcher struct {
	Primary Fetcher
	Browser Fetcher
}

// Fetch implements Fetcher.
func (f *FallbackFetcher) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	result, err := f.Primary.Fetch(ctx, urlStr)
	if err != nil || f.Browser == nil {
		return result, err
	}

	if !NeedsRendering(result.HTML) {
		return result, nil
	}

	rendered, err := f.Browser.Fetch(ctx, urlStr)
	if err != nil {
		return result, nil
	}
	return rendered, nil
}

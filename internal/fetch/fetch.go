// Package fetch provides the single-request HTTP client used by discovery and article fetching.
// Each call rotates the User-Agent, applies a per-call timeout and classifies the outcome as
// success, transient failure or terminal failure. Retrying is left to the caller.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultUserAgent is used when the identity pool is empty.
const DefaultUserAgent = "Mozilla/5.0 (compatible; NewsIngest/1.0)"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 10 << 20

// Fetcher retrieves one URL. Implementations must not retry internally.
type Fetcher interface {
	Fetch(ctx context.Context, urlStr string) (*Result, error)
}

// Result holds the decoded content of a successful fetch.
type Result struct {
	URL         string
	FinalURL    string
	HTML        string
	ContentType string
	StatusCode  int
	UserAgent   string
}

// Options configures the fetch behavior.
type Options struct {
	Timeout           time.Duration
	UserAgents        []string
	Headers           map[string]string
	RequestsPerSecond float64      // 0 disables pacing
	HTTPClient        *http.Client // optional; its Timeout is ignored in favor of Timeout
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:    DefaultTimeout,
		UserAgents: []string{DefaultUserAgent},
	}
}

// Client is the default Fetcher backed by net/http.
type Client struct {
	httpClient *http.Client
	opts       Options
	limiter    *rate.Limiter
}

// NewClient creates a fetch client. A nil opts uses DefaultOptions.
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if len(o.UserAgents) == 0 {
		o.UserAgents = []string{DefaultUserAgent}
	}

	httpClient := o.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{httpClient: httpClient, opts: o}
	if o.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(o.RequestsPerSecond), 1)
	}
	return c
}

// pickUserAgent selects an identity string at random from the pool.
func (c *Client) pickUserAgent() string {
	return c.opts.UserAgents[rand.IntN(len(c.opts.UserAgents))]
}

// Fetch performs one GET request and classifies the outcome.
func (c *Client) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") || parsedURL.Host == "" {
		return nil, terminal(urlStr, 0, "invalid URL", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, terminal(urlStr, 0, "request cancelled", err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, terminal(urlStr, 0, "failed to create request", err)
	}

	userAgent := c.pickUserAgent()
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	for key, value := range c.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, urlStr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	result := &Result{
		URL:         urlStr,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		UserAgent:   userAgent,
	}

	if err := classifyStatus(urlStr, resp.StatusCode); err != nil {
		return result, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return result, classifyTransportError(ctx, urlStr, err)
	}

	if result.ContentType == "" {
		result.ContentType = http.DetectContentType(raw)
	}
	if !isHTML(result.ContentType) {
		return result, terminal(urlStr, resp.StatusCode, fmt.Sprintf("non-HTML content type %q", result.ContentType), nil)
	}

	decoded, err := decodeBody(raw, result.ContentType)
	if err != nil {
		return result, terminal(urlStr, resp.StatusCode, "failed to decode body", err)
	}
	if strings.TrimSpace(decoded) == "" {
		return result, terminal(urlStr, resp.StatusCode, "empty body", nil)
	}
	result.HTML = decoded

	return result, nil
}

// classifyStatus maps HTTP status codes onto the failure taxonomy.
func classifyStatus(urlStr string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return transient(urlStr, status, "rate limited (HTTP 429)", nil)
	case status == http.StatusRequestTimeout, status >= 500:
		return transient(urlStr, status, fmt.Sprintf("HTTP status %d", status), nil)
	default:
		return terminal(urlStr, status, fmt.Sprintf("HTTP status %d", status), nil)
	}
}

// classifyTransportError decides whether a transport-level failure is worth retrying.
// Cancellation of the caller's context is terminal; a per-call timeout is transient.
func classifyTransportError(parent context.Context, urlStr string, err error) error {
	if parent.Err() != nil {
		return terminal(urlStr, 0, "request cancelled", parent.Err())
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return terminal(urlStr, 0, "host not found", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return transient(urlStr, 0, "request timed out", err)
	}

	return transient(urlStr, 0, "HTTP request failed", err)
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// decodeBody converts the body to UTF-8 using the declared or sniffed charset.
func decodeBody(raw []byte, contentType string) (string, error) {
	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

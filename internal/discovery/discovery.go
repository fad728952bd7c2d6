// Package discovery walks a paginated listing and produces the ordered, de-duplicated
// list of article URLs for one set of criteria.
package discovery

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/news-ingest/internal/fetch"
	"github.com/jonathan/news-ingest/internal/gate"
	"github.com/jonathan/news-ingest/internal/logging"
	"github.com/jonathan/news-ingest/internal/retry"
	"github.com/jonathan/news-ingest/internal/types"
)

// DefaultPageJitter is the upper bound of the random pause between listing pages.
const DefaultPageJitter = time.Second

// Error is returned when discovery cannot produce any result, i.e. the first
// listing page could not be fetched or parsed.
type Error struct {
	Page    int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("discovery failed on page %d: %s: %v", e.Page, e.Message, e.Cause)
	}
	return fmt.Sprintf("discovery failed on page %d: %s", e.Page, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Result is the outcome of one discovery walk.
type Result struct {
	URLs       []string // listing order, no duplicates
	Partial    bool     // a later page failed after retries
	TotalCount int      // total reported by the listing, -1 when unknown
	Pages      int      // pages fetched successfully
	Duplicates int
	OutOfRange int // items skipped for a date outside the criteria range
}

// PageFunc is notified after each successfully processed listing page.
type PageFunc func(page int, found int, total int)

// Options configures a Discoverer.
type Options struct {
	Retry retry.Policy
	// Gate is shared with article fetching so listing requests count against the permits.
	Gate *gate.Gate
	// MaxPages caps the walk when criteria do not set their own limit. 0 means no limit.
	MaxPages int
	// PageJitter is the upper bound of the random pause between pages. 0 disables it.
	PageJitter time.Duration
	Logger     logrus.FieldLogger
	OnPage     PageFunc
}

// Discoverer walks listing pages one at a time.
type Discoverer struct {
	fetcher fetch.Fetcher
	source  Source
	opts    Options
	log     logrus.FieldLogger
}

// New creates a Discoverer.
func New(fetcher fetch.Fetcher, source Source, opts Options) *Discoverer {
	if opts.Gate == nil {
		opts.Gate = gate.New(1)
	}
	return &Discoverer{
		fetcher: fetcher,
		source:  source,
		opts:    opts,
		log:     logging.OrDefault(opts.Logger),
	}
}

// WithGate returns a copy of d that admits listing requests through g.
func (d *Discoverer) WithGate(g *gate.Gate) *Discoverer {
	cp := *d
	cp.opts.Gate = g
	return &cp
}

// WithPageFunc returns a copy of d that reports progress to fn after each page.
func (d *Discoverer) WithPageFunc(fn PageFunc) *Discoverer {
	cp := *d
	cp.opts.OnPage = fn
	return &cp
}

// Discover collects the whole walk. See Walk for when it stops. A failure on the
// first page returns *Error. A failure on a later page stops the walk and returns
// the URLs found so far with Partial set. Cancellation returns the partial result
// together with the context error.
func (d *Discoverer) Discover(ctx context.Context, criteria types.Criteria) (*Result, error) {
	result := &Result{}
	for u, err := range d.Walk(ctx, criteria, result) {
		if err != nil {
			return result, err
		}
		result.URLs = append(result.URLs, u)
	}
	return result, nil
}

// Walk yields de-duplicated URLs in listing order as each page is parsed; the next
// page is fetched only when the consumer asks for more. A terminal failure is
// yielded once as ("", err) and ends the sequence. Each iteration restarts from
// page 1 and resets stats, which is left holding the counters of the walk (URLs
// stays nil). stats may be nil.
//
// The walk ends when a page has no items, at the page cap, once the reported
// total has been seen, or, for listings ordered newest first, at the first item
// older than the date range. Listings in other orders are read to the end and
// out-of-range items are only skipped.
func (d *Discoverer) Walk(ctx context.Context, criteria types.Criteria, stats *Result) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		result := stats
		if result == nil {
			result = &Result{}
		}
		*result = Result{TotalCount: -1}
		seen := make(map[string]struct{})
		descending := d.source.DateDescending(criteria)

		maxPages := criteria.MaxPages
		if maxPages == 0 {
			maxPages = d.opts.MaxPages
		}

		itemsSeen := 0
		for page := 1; ; page++ {
			log := d.log.WithFields(logrus.Fields{"stage": "discovery", "page": page})

			listing, err := d.fetchPage(ctx, criteria, page)
			if err != nil {
				switch {
				case ctx.Err() != nil:
					yield("", ctx.Err())
				case page == 1:
					yield("", &Error{Page: page, Message: "first listing page failed", Cause: err})
				default:
					log.WithError(err).Warn("Listing page failed, keeping URLs discovered so far")
					result.Partial = true
				}
				return
			}
			result.Pages++

			if page == 1 {
				result.TotalCount = listing.TotalCount
			}
			if len(listing.Items) == 0 {
				log.Debug("Listing exhausted")
				return
			}

			passedRange := false
			for _, item := range listing.Items {
				itemsSeen++
				if item.Date != nil && !criteria.DateRange.Contains(*item.Date) {
					result.OutOfRange++
					if descending && criteria.DateRange.Before(*item.Date) {
						passedRange = true
					}
					continue
				}
				if _, dup := seen[item.URL]; dup {
					result.Duplicates++
					continue
				}
				seen[item.URL] = struct{}{}
				if !yield(item.URL, nil) {
					return
				}
			}

			log.WithField("found", len(seen)).Debug("Listing page processed")
			if d.opts.OnPage != nil {
				d.opts.OnPage(page, len(seen), result.TotalCount)
			}

			switch {
			case passedRange:
				log.Debug("Listing passed the start of the date range")
				return
			case maxPages > 0 && page >= maxPages:
				log.WithField("max_pages", maxPages).Debug("Page limit reached")
				return
			case result.TotalCount >= 0 && itemsSeen >= result.TotalCount:
				return
			}

			if err := d.pause(ctx); err != nil {
				yield("", err)
				return
			}
		}
	}
}

func (d *Discoverer) fetchPage(ctx context.Context, criteria types.Criteria, page int) (*Page, error) {
	pageURL, err := d.source.PageURL(criteria, page)
	if err != nil {
		return nil, err
	}

	var listing *Page
	policy := d.opts.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		d.log.WithFields(logrus.Fields{
			"stage":   "discovery",
			"url":     pageURL,
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Info("Retrying listing page")
	}

	_, err = policy.Do(ctx, func(ctx context.Context) error {
		return d.opts.Gate.Do(ctx, func(ctx context.Context) error {
			res, err := d.fetcher.Fetch(ctx, pageURL)
			if err != nil {
				return err
			}
			listing, err = d.source.ParsePage(res.HTML, pageURL)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func (d *Discoverer) pause(ctx context.Context) error {
	if d.opts.PageJitter <= 0 || ctx.Err() != nil {
		return ctx.Err()
	}
	wait := time.Duration(rand.Int64N(int64(d.opts.PageJitter)))
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

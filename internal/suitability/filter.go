// Package suitability decides whether an article is relevant enough to enter the corpus.
// Classification is delegated to an LLM and the answer is parsed fail-closed.
package suitability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/news-ingest/internal/config"
	"github.com/jonathan/news-ingest/internal/llm"
	"github.com/jonathan/news-ingest/internal/logging"
	"github.com/jonathan/news-ingest/internal/prompts"
	"github.com/jonathan/news-ingest/internal/retry"
	"github.com/jonathan/news-ingest/internal/types"
)

const truncateSuffix = "\n[...]"

// Error reports a classifier call that failed after the retry budget, or failed terminally.
type Error struct {
	URL   string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("suitability check failed for %s: %v", e.URL, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures a Filter.
type Options struct {
	Retry    retry.Policy
	MaxChars int // body runes sent to the classifier; 0 uses the default
	Tier     llm.ModelTier
	Logger   logrus.FieldLogger
}

// Filter evaluates articles with an LLM classifier.
type Filter struct {
	client llm.Client
	opts   Options
	log    logrus.FieldLogger
}

// New creates a Filter.
func New(client llm.Client, opts Options) *Filter {
	if opts.MaxChars <= 0 {
		opts.MaxChars = config.DefaultClassifierMaxChars
	}
	if opts.Tier == "" {
		opts.Tier = llm.TierLite
	}
	return &Filter{client: client, opts: opts, log: logging.OrDefault(opts.Logger)}
}

// Evaluate classifies one article. Transient classifier failures are retried. A response
// that arrives but cannot be parsed yields a rejected verdict, not an error. Errors are
// returned only when no response could be obtained.
func (f *Filter) Evaluate(ctx context.Context, article *types.ArticleRecord) (Verdict, error) {
	prompt, err := prompts.Render(prompts.SuitabilityFile, prompts.SuitabilityKey, prompts.Article{
		Company: article.Company,
		Title:   article.Title,
		Article: Truncate(article.BodyText, f.opts.MaxChars),
	})
	if err != nil {
		return Verdict{}, &Error{URL: article.URL, Cause: err}
	}

	log := f.log.WithFields(logrus.Fields{"stage": "filter", "url": article.URL})
	policy := f.opts.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).WithError(err).Info("Retrying classifier call")
	}

	var raw string
	_, err = policy.Do(ctx, func(ctx context.Context) error {
		out, err := f.client.GenerateJSON(ctx, prompt, f.opts.Tier)
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		if isEmptyResponse(err) {
			log.WithError(err).Warn("Classifier returned no usable output, rejecting")
			return ambiguous(""), nil
		}
		return Verdict{}, &Error{URL: article.URL, Cause: err}
	}

	verdict := ParseVerdict(raw)
	if verdict.Ambiguous {
		log.WithField("output", Truncate(raw, 200)).Warn("Ambiguous classifier output, rejecting")
	}
	return verdict, nil
}

// isEmptyResponse reports a provider call that succeeded but produced no text,
// e.g. a safety-blocked candidate.
func isEmptyResponse(err error) bool {
	var llmErr *llm.Error
	return errors.As(err, &llmErr) && llmErr.Cause == nil && !llmErr.Transient
}

// Truncate shortens s to at most maxRunes runes, marking the cut.
func Truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + truncateSuffix
}

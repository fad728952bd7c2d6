// Package types provides type definitions for structured data used throughout the news-ingest system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"
)

// Suitability is the classifier verdict attached to an article
type Suitability string

const (
	// SuitabilityUnevaluated is the state of a freshly parsed article
	SuitabilityUnevaluated Suitability = "unevaluated"
	// SuitabilityAccepted marks an article useful for company analysis
	SuitabilityAccepted Suitability = "accepted"
	// SuitabilityRejected marks an article that was filtered out
	SuitabilityRejected Suitability = "rejected"
)

// IsFinal reports whether a verdict has been assigned.
func (s Suitability) IsFinal() bool {
	return s == SuitabilityAccepted || s == SuitabilityRejected
}

// ArticleRecord represents one ingested article. The (OwnerID, URL) pair is unique.
type ArticleRecord struct {
	URL         string      `json:"url"`
	OwnerID     string      `json:"owner_id"`
	Title       string      `json:"title"`
	BodyText    string      `json:"body_text"`
	PublishedAt *time.Time  `json:"published_at,omitempty"` // date precision
	Source      string      `json:"source"`
	Author      string      `json:"author,omitempty"`
	Company     string      `json:"company,omitempty"`
	Suitability Suitability `json:"suitability"`
	IngestedAt  time.Time   `json:"ingested_at"`
}

// Key returns the identity key of the record
func (a *ArticleRecord) Key() ArticleKey {
	return ArticleKey{OwnerID: a.OwnerID, URL: a.URL}
}

// ArticleKey identifies an article within an owner's corpus
type ArticleKey struct {
	OwnerID string
	URL     string
}

// FetchTask tracks one pending or in-flight fetch during a run. It is never persisted.
type FetchTask struct {
	URL          string
	AttemptCount int
	LastError    error
}

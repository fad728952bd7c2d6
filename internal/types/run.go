package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the calendar date format used by criteria and CLI flags
const DateLayout = "2006-01-02"

// Listing sort orders
const (
	SortLatest   = "latest"
	SortAccuracy = "accuracy"
	SortOldest   = "oldest"
)

// Listing search areas
const (
	AreaAll     = "ALL"
	AreaTitle   = "title"
	AreaContent = "content"
)

// DateRange is an inclusive range of calendar dates
type DateRange struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtefield=Start"`
}

// Contains reports whether t falls on or between the range dates.
func (r DateRange) Contains(t time.Time) bool {
	day := truncateDay(t)
	return !day.Before(truncateDay(r.Start)) && !day.After(truncateDay(r.End))
}

// Before reports whether t falls on a date earlier than the range start.
func (r DateRange) Before(t time.Time) bool {
	return truncateDay(t).Before(truncateDay(r.Start))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDateRange parses two YYYY-MM-DD strings into a DateRange
func ParseDateRange(from, to string) (DateRange, error) {
	start, err := time.Parse(DateLayout, from)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", from, err)
	}
	end, err := time.Parse(DateLayout, to)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", to, err)
	}
	return DateRange{Start: start, End: end}, nil
}

// Criteria describes what one ingestion run should collect
type Criteria struct {
	OwnerID     string    `json:"owner_id" validate:"required,max=128"`
	Company     string    `json:"company" validate:"required,max=256"`
	DateRange   DateRange `json:"date_range"`
	Keywords    []string  `json:"keywords,omitempty" validate:"omitempty,dive,required"`
	Exclude     []string  `json:"exclude,omitempty" validate:"omitempty,dive,required"`
	ExactPhrase string    `json:"exact_phrase,omitempty"`
	Area        string    `json:"area,omitempty" validate:"omitempty,oneof=ALL title content"`
	Sort        string    `json:"sort,omitempty" validate:"omitempty,oneof=latest accuracy oldest"`
	MaxPages    int       `json:"max_pages,omitempty" validate:"gte=0"`
	// ForceRefresh re-fetches URLs already present in the corpus
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

// validate is shared; validator caches struct metadata per instance.
var validate = validator.New()

// Validate checks the criteria's field constraints.
func (c *Criteria) Validate() error {
	return validate.Struct(c)
}

// RunState is a state of the ingestion state machine
type RunState string

// Ingestion run states
const (
	StateDiscovering RunState = "discovering"
	StateFetching    RunState = "fetching"
	StateFiltering   RunState = "filtering"
	StatePersisting  RunState = "persisting"
	StateCompleted   RunState = "completed"
	StateAborted     RunState = "aborted"
)

// IsTerminal reports whether no further transitions are possible.
func (s RunState) IsTerminal() bool {
	return s == StateCompleted || s == StateAborted
}

// RunCounts are the aggregate item counts of a run
type RunCounts struct {
	Discovered int `json:"discovered"`
	Skipped    int `json:"skipped"` // already in the corpus, not re-fetched
	Fetched    int `json:"fetched"`
	Accepted   int `json:"accepted"`
	Rejected   int `json:"rejected"`
	Failed     int `json:"failed"`
}

// IngestionRun is the summary of one execution of the pipeline
type IngestionRun struct {
	ID                string     `json:"id"`
	Criteria          Criteria   `json:"criteria"`
	State             RunState   `json:"state"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	Counts            RunCounts  `json:"counts"`
	PartialDiscovery  bool       `json:"partial_discovery"`
	Error             string     `json:"error,omitempty"`
	ListingTotalCount int        `json:"listing_total_count,omitempty"` // -1 when the listing did not report it
}

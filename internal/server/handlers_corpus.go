package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/server/middleware"
	"github.com/jonathan/news-ingest/internal/types"
)

const maxListLimit = 1000

// CorpusResponse is the body of GET /corpus
type CorpusResponse struct {
	OwnerID  string                `json:"owner_id"`
	Count    int                   `json:"count"`
	Articles []types.ArticleRecord `json:"articles"`
}

// handleListCorpus returns the caller's accepted articles ordered by published date.
// Query parameters: company, from, to (YYYY-MM-DD), limit.
func (s *Server) handleListCorpus(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.GetOwnerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	params := r.URL.Query()
	q := corpus.Query{Company: params.Get("company")}

	if q.From, err = parseDay(params.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	if q.To, err = parseDay(params.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
		return
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}
	if q.Limit, err = parseLimit(params.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.backend.List(r.Context(), ownerID, q)
	if err != nil {
		s.log.WithError(err).Error("Failed to list corpus")
		writeError(w, http.StatusInternalServerError, "failed to list corpus")
		return
	}
	if records == nil {
		records = []types.ArticleRecord{}
	}

	writeJSON(w, http.StatusOK, CorpusResponse{OwnerID: ownerID, Count: len(records), Articles: records})
}

func parseDay(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	day, err := time.Parse(types.DateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("expected YYYY-MM-DD, got %q", value)
	}
	return &day, nil
}

func parseLimit(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 0 || limit > maxListLimit {
		return 0, fmt.Errorf("limit must be between 0 and %d", maxListLimit)
	}
	return limit, nil
}

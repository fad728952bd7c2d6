package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/pipeline"
	"github.com/jonathan/news-ingest/internal/server/middleware"
	"github.com/jonathan/news-ingest/internal/types"
)

// RunRequest is the body of POST /runs and POST /runs/stream. The owner comes
// from the bearer token.
type RunRequest struct {
	Company      string   `json:"company" validate:"required"`
	From         string   `json:"from" validate:"required,datetime=2006-01-02"`
	To           string   `json:"to" validate:"required,datetime=2006-01-02"`
	Keywords     []string `json:"keywords,omitempty"`
	Exclude      []string `json:"exclude,omitempty"`
	ExactPhrase  string   `json:"exact_phrase,omitempty"`
	Area         string   `json:"area,omitempty"`
	Sort         string   `json:"sort,omitempty"`
	MaxPages     int      `json:"max_pages,omitempty"`
	ForceRefresh bool     `json:"force_refresh,omitempty"`
}

// RunResponse is returned when a run is accepted or cancelled.
type RunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunStatusResponse describes one run, live or recorded.
type RunStatusResponse struct {
	Run        types.IngestionRun `json:"run"`
	Active     bool               `json:"active"`
	Cancelling bool               `json:"cancelling,omitempty"`
}

var requestValidator = validator.New()

// Criteria converts the request into validated run criteria for ownerID.
func (req *RunRequest) Criteria(ownerID string) (types.Criteria, error) {
	if err := requestValidator.Struct(req); err != nil {
		return types.Criteria{}, &ErrValidation{Field: "request", Message: extractValidationErrors(err)}
	}

	dates, err := types.ParseDateRange(req.From, req.To)
	if err != nil {
		return types.Criteria{}, &ErrValidation{Field: "from/to", Message: err.Error()}
	}

	criteria := types.Criteria{
		OwnerID:      ownerID,
		Company:      strings.TrimSpace(req.Company),
		DateRange:    dates,
		Keywords:     req.Keywords,
		Exclude:      req.Exclude,
		ExactPhrase:  req.ExactPhrase,
		Area:         req.Area,
		Sort:         req.Sort,
		MaxPages:     req.MaxPages,
		ForceRefresh: req.ForceRefresh,
	}
	if err := criteria.Validate(); err != nil {
		return types.Criteria{}, &ErrValidation{Field: "criteria", Message: extractValidationErrors(err)}
	}
	return criteria, nil
}

// decodeRunRequest reads the request body and resolves the criteria for the caller.
func (s *Server) decodeRunRequest(w http.ResponseWriter, r *http.Request) (types.Criteria, bool) {
	ownerID, err := middleware.GetOwnerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.Criteria{}, false
	}

	var req RunRequest
	if !readJSON(w, r, &req) {
		return types.Criteria{}, false
	}

	criteria, err := req.Criteria(ownerID)
	if err != nil {
		writeError(w, HTTPStatus(err), err.Error())
		return types.Criteria{}, false
	}
	return criteria, true
}

// handleStartRun starts a run in the background and returns its ID.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	criteria, ok := s.decodeRunRequest(w, r)
	if !ok {
		return
	}

	runID := pipeline.NewRunID()
	// the run outlives the request; it stops with the server or on DELETE
	run, ctx := s.runs.start(s.baseCtx, runID, criteria, s.now())

	go func() {
		defer s.runs.finish(runID)
		summary, err := s.runner.RunWithID(ctx, runID, criteria, run.observe)
		s.logRunResult(summary, err)
	}()

	s.log.WithFields(logrus.Fields{"run_id": runID, "owner_id": criteria.OwnerID, "company": criteria.Company}).
		Info("Run started")
	writeJSON(w, http.StatusAccepted, RunResponse{RunID: runID, Status: "started"})
}

// handleRunStream runs synchronously and streams progress as SSE. Disconnecting
// cancels the run.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	criteria, ok := s.decodeRunRequest(w, r)
	if !ok {
		return
	}

	stream, err := openRunStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runID := pipeline.NewRunID()
	parent, stop := context.WithCancel(s.baseCtx)
	defer stop()
	// stop with either the client or the server
	go func() {
		select {
		case <-r.Context().Done():
			stop()
		case <-parent.Done():
		}
	}()

	run, ctx := s.runs.start(parent, runID, criteria, s.now())
	defer s.runs.finish(runID)

	summary, err := s.runner.RunWithID(ctx, runID, criteria, func(event pipeline.ProgressEvent) {
		run.observe(event)
		if werr := stream.progress(event); werr != nil && !errors.Is(werr, errStreamClosed) {
			s.log.WithError(werr).Debug("Failed to write progress event")
		}
	})
	s.logRunResult(summary, err)

	if werr := stream.finish(summary, err); werr != nil {
		s.log.WithError(werr).Debug("Failed to write final event")
	}
}

func (s *Server) logRunResult(summary *types.IngestionRun, err error) {
	if summary == nil {
		return
	}
	entry := s.log.WithFields(logrus.Fields{
		"run_id":   summary.ID,
		"state":    summary.State,
		"accepted": summary.Counts.Accepted,
		"rejected": summary.Counts.Rejected,
		"failed":   summary.Counts.Failed,
	})
	if err != nil {
		entry.WithError(err).Warn("Run aborted")
		return
	}
	entry.Info("Run completed")
}

// handleListRuns returns the caller's active runs followed by recorded ones.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.GetOwnerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	active := s.runs.list(ownerID)
	recorded, err := s.backend.ListRuns(r.Context(), ownerID, limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	seen := make(map[string]bool, len(active))
	runs := make([]types.IngestionRun, 0, len(active)+len(recorded))
	for _, run := range active {
		seen[run.ID] = true
		runs = append(runs, run)
	}
	for _, run := range recorded {
		if !seen[run.ID] {
			runs = append(runs, run)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetRun returns the live summary of an active run, else the recorded one.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.GetOwnerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	runID := r.PathValue("id")

	if run, ok := s.runs.get(ownerID, runID); ok {
		snapshot, cancelling := run.status()
		writeJSON(w, http.StatusOK, RunStatusResponse{Run: snapshot, Active: true, Cancelling: cancelling})
		return
	}

	recorded, err := s.backend.GetRun(r.Context(), ownerID, runID)
	if err != nil {
		if errors.Is(err, corpus.ErrNotFound) {
			err = &ErrRunNotFound{RunID: runID}
		} else {
			s.log.WithError(err).Error("Failed to load run")
		}
		writeError(w, HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, RunStatusResponse{Run: *recorded})
}

// handleCancelRun requests cooperative cancellation of an active run.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.GetOwnerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	runID := r.PathValue("id")

	if run, ok := s.runs.get(ownerID, runID); ok {
		run.requestCancel()
		s.log.WithField("run_id", runID).Info("Run cancellation requested")
		writeJSON(w, http.StatusAccepted, RunResponse{RunID: runID, Status: "cancelling"})
		return
	}

	// a recorded run can no longer be cancelled
	if _, err := s.backend.GetRun(r.Context(), ownerID, runID); err == nil {
		err := &ErrRunFinished{RunID: runID}
		writeError(w, HTTPStatus(err), err.Error())
		return
	}
	err = &ErrRunNotFound{RunID: runID}
	writeError(w, HTTPStatus(err), err.Error())
}

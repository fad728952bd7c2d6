package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/jonathan/news-ingest/internal/types"
)

const (
	eventProgress = "progress"
	eventComplete = "complete"
	eventError    = "error"
)

var errStreamClosed = errors.New("event stream closed")

// runStream writes a run's progress as Server-Sent Events. Each event carries
// an increasing id. After the first failed write the client is assumed gone
// and later events are dropped.
type runStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
	broken  error
}

// terminalEvent ends a stream; Run is nil when the run never started.
type terminalEvent struct {
	Error string              `json:"error,omitempty"`
	Run   *types.IngestionRun `json:"run"`
}

func openRunStream(w http.ResponseWriter) (*runStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &runStream{w: w, flusher: flusher}, nil
}

func (s *runStream) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken != nil {
		return s.broken
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, event, data); err != nil {
		s.broken = fmt.Errorf("%w: %v", errStreamClosed, err)
		return s.broken
	}
	s.flusher.Flush()
	return nil
}

func (s *runStream) progress(event any) error {
	return s.send(eventProgress, event)
}

// finish sends the closing event: complete on success, error otherwise.
func (s *runStream) finish(run *types.IngestionRun, runErr error) error {
	if runErr != nil {
		return s.send(eventError, terminalEvent{Error: runErr.Error(), Run: run})
	}
	return s.send(eventComplete, run)
}

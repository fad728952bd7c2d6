package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/news-ingest/internal/config"
	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/logging"
	"github.com/jonathan/news-ingest/internal/server/middleware"
	"github.com/jonathan/news-ingest/internal/server/ratelimit"
)

// ShutdownTimeout bounds graceful shutdown, including the drain of active runs.
const ShutdownTimeout = 30 * time.Second

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	backend     corpus.Backend
	runner      Runner
	runs        *runRegistry
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	authHandler *AuthHandler
	log         logrus.FieldLogger
	now         func() time.Time

	// baseCtx parents every background run; stopRuns cancels them on shutdown.
	baseCtx  context.Context
	stopRuns context.CancelFunc
}

// Config holds server configuration. The caller owns Backend and closes it after
// the server stops.
type Config struct {
	Port      int
	Backend   corpus.Backend
	Runner    Runner
	JWT       *config.JWTConfig      // read from the environment when nil
	Passwords *config.PasswordConfig // read from the environment when nil
	RateLimit *ratelimit.Config      // read from the environment when nil
	Logger    logrus.FieldLogger
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("server requires a backend")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("server requires a runner")
	}

	var err error
	if cfg.JWT == nil {
		if cfg.JWT, err = config.NewJWTConfig(); err != nil {
			return nil, fmt.Errorf("failed to create JWT config: %w", err)
		}
	}
	if cfg.Passwords == nil {
		if cfg.Passwords, err = config.NewPasswordConfig(); err != nil {
			return nil, fmt.Errorf("failed to create password config: %w", err)
		}
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = ratelimit.LoadConfig()
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, err
	}

	baseCtx, stopRuns := context.WithCancel(context.Background())
	s := &Server{
		backend:     cfg.Backend,
		runner:      cfg.Runner,
		runs:        newRunRegistry(),
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		jwtService:  NewJWTService(cfg.JWT),
		log:         logging.OrDefault(cfg.Logger).WithField("component", "server"),
		now:         time.Now,
		baseCtx:     baseCtx,
		stopRuns:    stopRuns,
	}
	s.authHandler = NewAuthHandler(NewOwnerService(cfg.Backend, cfg.Passwords), s.jwtService)

	requireOwner := middleware.AuthMiddleware(s.jwtService)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /auth/register", s.authHandler.Register)
	mux.HandleFunc("POST /auth/login", s.authHandler.Login)

	mux.Handle("POST /runs", requireOwner(http.HandlerFunc(s.handleStartRun)))
	mux.Handle("POST /runs/stream", requireOwner(http.HandlerFunc(s.handleRunStream)))
	mux.Handle("GET /runs", requireOwner(http.HandlerFunc(s.handleListRuns)))
	mux.Handle("GET /runs/{id}", requireOwner(http.HandlerFunc(s.handleGetRun)))
	mux.Handle("DELETE /runs/{id}", requireOwner(http.HandlerFunc(s.handleCancelRun)))
	mux.Handle("GET /corpus", requireOwner(http.HandlerFunc(s.handleListCorpus)))

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.handler,
		ReadTimeout: 30 * time.Second,
		// SSE streams last as long as a run
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is done, then shuts down gracefully: active runs are
// cancelled and given ShutdownTimeout to drain.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("Server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.Shutdown(context.Background()) //nolint:errcheck
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("Server stopped")
	return nil
}

// Shutdown stops accepting requests, cancels active runs and waits for them to
// record their summaries.
func (s *Server) Shutdown(ctx context.Context) error {
	// open SSE streams keep connections busy until their runs end
	s.runs.cancelAll()
	s.stopRuns()
	err := s.httpServer.Shutdown(ctx)

	if werr := s.runs.wait(ctx); werr != nil {
		s.log.WithError(werr).Warn("Active runs did not drain before shutdown deadline")
	}

	s.rateLimiter.Stop()
	return err
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(extractClientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"status":   rec.status,
			"duration": time.Since(start).Round(time.Millisecond),
		}).Info("Request completed")
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("Error encoding JSON response")
	}
}

// writeError writes an error JSON response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request.
// X-Forwarded-For is not trusted; the peer IP from RemoteAddr is used.
func extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.log.WithFields(logrus.Fields{
		"limit":    info.Limit,
		"reset_at": info.ResetTime.Format(time.RFC3339),
	}).Warn("Rate limit exceeded")

	writeJSON(w, http.StatusTooManyRequests, response)
}

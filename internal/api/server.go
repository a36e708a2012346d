// Package api exposes each scheduled function as an HTTP endpoint so the
// platform scheduler (or a human) can invoke it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rigged/internal/config"
	"rigged/internal/pipeline"
	"rigged/internal/quotes"
)

// APIKeyHeader authorizes function invocations.
const APIKeyHeader = "X-Rigged-Key"

// StoreKeyHeader lets an invocation supply its own store credential; when
// present the run's store operations use it instead of the configured key.
const StoreKeyHeader = "X-Rigged-Store-Key"

type Server struct {
	cfg       config.Config
	log       *slog.Logger
	pipelines *pipeline.Pipelines
	mux       *chi.Mux
}

// envelope is the uniform response body of every function endpoint.
type envelope struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	Details       any    `json:"details,omitempty"`
	Error         string `json:"error,omitempty"`
	Timestamp     string `json:"timestamp"`
	ExecutionTime string `json:"executionTime"`
}

func New(cfg config.Config, logger *slog.Logger, pipelines *pipeline.Pipelines) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		log:       logger,
		pipelines: pipelines,
		mux:       chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1/functions", func(r chi.Router) {
		r.Use(s.apiKeyMiddleware)
		r.Post("/scrape", s.handleFunction("scraped external quotes", (*pipeline.Pipelines).Scrape))
		r.Post("/manipulator", s.handleFunction("manipulator updated", (*pipeline.Pipelines).UpdateManipulator))
		r.Post("/market-update", s.handleFunction("in-game market updated", (*pipeline.Pipelines).UpdateMarket))
		r.Post("/seed", s.handleFunction("in-game market seeded", (*pipeline.Pipelines).Seed))
	})
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get(APIKeyHeader) != s.cfg.APIKey {
			writeEnvelope(w, http.StatusUnauthorized, envelope{
				Error: "missing or invalid api key",
			}, time.Now())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleFunction(message string, run func(p *pipeline.Pipelines, ctx context.Context) (pipeline.Summary, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		summary, err := run(s.pipelines.WithStoreKey(r.Header.Get(StoreKeyHeader)), r.Context())
		if err != nil {
			status := statusForError(err)
			s.log.Error("function failed", "path", r.URL.Path, "status", status, "err", err)
			writeEnvelope(w, status, envelope{
				Error:   err.Error(),
				Details: summary,
			}, start)
			return
		}
		writeEnvelope(w, http.StatusOK, envelope{
			Success: true,
			Message: message,
			Details: summary,
		}, start)
	}
}

func statusForError(err error) int {
	var missing *config.MissingError
	switch {
	case errors.As(err, &missing):
		return http.StatusBadRequest
	case errors.Is(err, quotes.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope, start time.Time) {
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	body.ExecutionTime = fmt.Sprintf("%dms", time.Since(start).Milliseconds())
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Package api exposes the job lifecycle over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/userpulse/insight-miner/internal/miner"
)

// JobService is the orchestrator surface the HTTP layer depends on.
type JobService interface {
	Submit(ctx context.Context, input miner.MiningInput) (string, error)
	Poll(ctx context.Context, id string) (miner.StatusView, error)
	FetchResult(ctx context.Context, id string) (miner.Result, error)
}

// Defaults fill request fields the caller omitted.
type Defaults struct {
	Days        int
	MinScore    int
	MaxThreads  int
	Communities []string
}

// Server wires the chi router around the job service.
type Server struct {
	jobs     JobService
	defaults Defaults
	logger   *zap.Logger
	router   chi.Router
}

// NewServer builds the HTTP server surface.
func NewServer(jobs JobService, defaults Defaults, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{jobs: jobs, defaults: defaults, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/{jobID}/status", s.handleStatus)
		r.Get("/{jobID}/result", s.handleResult)
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// submitRequest mirrors MiningInput with a pointer for min_score: zero and
// negative floors are legitimate requests (source scores can be negative), so
// only an absent field falls back to the configured default.
type submitRequest struct {
	Entity      string   `json:"entity"`
	EntityURL   string   `json:"entity_url"`
	Competitors []string `json:"competitors"`
	Days        int      `json:"days"`
	MinScore    *int     `json:"min_score"`
	MaxThreads  int      `json:"max_threads"`
	Communities []string `json:"communities"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	input := s.toInput(req)

	id, err := s.jobs.Submit(r.Context(), input)
	if err != nil {
		var verr *miner.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		s.logger.Error("submit failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "could not accept job")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	view, err := s.jobs.Poll(r.Context(), id)
	if err != nil {
		if errors.Is(err, miner.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("status lookup failed", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	result, err := s.jobs.FetchResult(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, miner.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, miner.ErrNotReady):
		writeError(w, http.StatusAccepted, "not ready")
	default:
		// The job itself failed; its message is caller-facing.
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// toInput fills omitted request knobs from the configured defaults.
func (s *Server) toInput(req submitRequest) miner.MiningInput {
	input := miner.MiningInput{
		Entity:      req.Entity,
		EntityURL:   req.EntityURL,
		Competitors: req.Competitors,
		Days:        req.Days,
		MinScore:    s.defaults.MinScore,
		MaxThreads:  req.MaxThreads,
		Communities: req.Communities,
	}
	if req.MinScore != nil {
		input.MinScore = *req.MinScore
	}
	if input.Days <= 0 {
		input.Days = s.defaults.Days
	}
	if input.MaxThreads <= 0 {
		input.MaxThreads = s.defaults.MaxThreads
	}
	if len(input.Communities) == 0 {
		input.Communities = append([]string(nil), s.defaults.Communities...)
	}
	return input
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

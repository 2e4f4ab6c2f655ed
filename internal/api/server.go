package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"itinerary-planner/internal/lifecycle"
	"itinerary-planner/internal/models"
	"itinerary-planner/internal/ratelimit"
	"itinerary-planner/internal/telemetry"
)

const maxBodyBytes = 64 << 10

//go:embed static/index.html
var static embed.FS

// JobService is the part of the lifecycle manager the HTTP layer drives.
type JobService interface {
	Create(ctx context.Context, destination string, durationDays int) (string, error)
	Lookup(ctx context.Context, jobID string) (models.Job, error)
}

// Server wires HTTP handlers for the itinerary API.
type Server struct {
	jobs    JobService
	limiter ratelimit.Limiter
	logger  zerolog.Logger
}

// New constructs the API server. limiter may be nil to disable rate limiting.
func New(jobs JobService, limiter ratelimit.Limiter, logger zerolog.Logger) *Server {
	return &Server{
		jobs:    jobs,
		limiter: limiter,
		logger:  logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(s.logger), middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/generate", s.handleGenerate)
	r.Get("/itinerary", s.handleMissingJobID)
	r.Get("/itinerary/*", s.handleGetItinerary)

	r.NotFound(methodNotAllowed)
	r.MethodNotAllowed(methodNotAllowed)
	return r
}

type generateRequest struct {
	Destination  string  `json:"destination"`
	DurationDays float64 `json:"durationDays"`
}

// days accepts any integral JSON number, so 3 and 3.0 are the same request.
func (g generateRequest) days() (int, error) {
	d := g.DurationDays
	if d != math.Trunc(d) || d > math.MaxInt32 || d < math.MinInt32 {
		return 0, &models.ValidationError{Field: "durationDays", Reason: "must be a positive integer"}
	}
	return int(d), nil
}

type generateResponse struct {
	JobID string `json:"jobId"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "Error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		telemetry.ValidationRejects.Inc()
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	days, err := req.days()
	if err == nil {
		_, err = lifecycle.ValidateRequest(req.Destination, days)
	}
	if err != nil {
		telemetry.ValidationRejects.Inc()
		http.Error(w, "Missing destination or durationDays: "+err.Error(), http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), clientKey(r))
		if err != nil {
			s.logger.Error().Err(err).Msg("rate limiter unavailable")
			http.Error(w, "Error: rate limit check failed", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
	}

	jobID, err := s.jobs.Create(r.Context(), req.Destination, days)
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, "Missing destination or durationDays: "+verr.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("create job failed")
		http.Error(w, "Error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, generateResponse{JobID: jobID})
}

func (s *Server) handleMissingJobID(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "Missing jobId", http.StatusBadRequest)
}

func (s *Server) handleGetItinerary(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "*")
	if jobID == "" {
		s.handleMissingJobID(w, r)
		return
	}
	job, err := s.jobs.Lookup(r.Context(), jobID)
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "Itinerary not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("lookup failed")
		http.Error(w, "Error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "Method not allowed or invalid endpoint", http.StatusMethodNotAllowed)
}

// clientKey identifies the caller for rate limiting. RealIP has already rewritten RemoteAddr.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

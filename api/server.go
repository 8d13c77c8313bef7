package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"property-scraper/config"
	"property-scraper/models"
	"property-scraper/scheduler"
	"property-scraper/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ternarybob/arbor"
)

type Server struct {
	router    *chi.Mux
	srv       *http.Server
	jobs      *services.JobService
	monitor   *services.Monitor
	schedules *scheduler.Scheduler
	logger    arbor.ILogger
	now       func() time.Time
}

// NewServer wires the HTTP API. schedules may be nil when the scheduler is
// disabled; the schedule routes then answer 503.
func NewServer(cfg config.ServerConfig, jobs *services.JobService, monitor *services.Monitor, schedules *scheduler.Scheduler, logger arbor.ILogger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		jobs:      jobs,
		monitor:   monitor,
		schedules: schedules,
		logger:    logger,
		now:       time.Now,
	}

	s.setupRoutes(cfg.AllowedOrigins)
	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/jobs", s.handleSubmitJob)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/listings", s.handleListListings)
		r.Get("/monitor", s.handleMonitor)
		r.Post("/schedules", s.handleAddSchedule)
		r.Get("/schedules", s.handleListSchedules)
		r.Delete("/schedules/{id}", s.handleRemoveSchedule)
	})
}

func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("API server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server stopped")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}
	if depth, err := s.jobs.QueueDepth(r.Context()); err == nil {
		payload["queue_depth"] = depth
	} else {
		payload["status"] = "degraded"
		payload["queue_error"] = err.Error()
	}
	respondJSON(w, http.StatusOK, payload)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors onto HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrQueueUnavailable):
		respondError(w, http.StatusServiceUnavailable, "job queue unavailable, try again later")
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

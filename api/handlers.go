package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"property-scraper/models"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var criteria models.SearchCriteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := s.jobs.Submit(r.Context(), criteria)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.jobs.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// handleListListings answers from stored listings only; it never scrapes.
func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := models.SearchCriteria{
		TimeRange: models.TimeRange(q.Get("time_range")),
	}

	for _, a := range strings.Split(q.Get("areas"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			criteria.Areas = append(criteria.Areas, a)
		}
	}

	if v := q.Get("owner_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "owner_only must be true or false")
			return
		}
		criteria.OwnerOnly = b
	}

	if v := q.Get("max_price_per_m2"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			respondError(w, http.StatusBadRequest, "max_price_per_m2 must be a positive number")
			return
		}
		criteria.MaxPricePerM2 = f
	}

	switch criteria.TimeRange {
	case models.TimeRangeAny, models.TimeRange24h, models.TimeRange3d, models.TimeRange7d:
	default:
		respondError(w, http.StatusBadRequest, "time_range must be one of: 24h 3d 7d")
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	listings, err := s.jobs.Listings(r.Context(), criteria, limit)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": listings,
		"total": len(listings),
	})
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.monitor.Snapshot())
}

type AddScheduleRequest struct {
	Time     string                `json:"time"`
	Criteria models.SearchCriteria `json:"criteria"`
}

func (s *Server) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedules == nil {
		respondError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}

	var req AddScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sched, err := s.schedules.Add(req.Time, req.Criteria)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sched)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	if s.schedules == nil {
		respondError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": s.schedules.List(),
	})
}

func (s *Server) handleRemoveSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedules == nil {
		respondError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}
	if err := s.schedules.Remove(chi.URLParam(r, "id")); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

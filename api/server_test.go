package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"property-scraper/config"
	"property-scraper/models"
	"property-scraper/queue"
	"property-scraper/scheduler"
	"property-scraper/services"
	"property-scraper/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type downQueue struct {
	queue.Queue
}

func (downQueue) Push(context.Context, string) error {
	return &models.QueueConnectionError{Op: "push", Err: errors.New("connection refused")}
}

type testEnv struct {
	server   *Server
	jobs     *storage.JobStore
	listings *storage.BadgerListingStore
	monitor  *services.Monitor
}

func newTestEnv(t *testing.T, broken bool) testEnv {
	t.Helper()
	logger := arbor.NewLogger()

	db, err := storage.OpenBadger(filepath.Join(t.TempDir(), "badger"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bq, err := queue.NewBadgerQueue(db.Store().Badger(), "api")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bq.Close() })

	var q queue.Queue = bq
	if broken {
		q = downQueue{Queue: bq}
	}

	jobs := storage.NewJobStore(db, logger)
	listings := storage.NewBadgerListingStore(db, logger)
	svc := services.NewJobService(jobs, q, listings, logger)
	monitor := services.NewMonitor()

	sched, err := scheduler.New(svc, "UTC", logger)
	require.NoError(t, err)

	return testEnv{
		server:   NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, svc, monitor, sched, logger),
		jobs:     jobs,
		listings: listings,
		monitor:  monitor,
	}
}

func (e testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	var payload map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	}
	return rec, payload
}

func TestSubmitJobAccepted(t *testing.T) {
	env := newTestEnv(t, false)

	rec, payload := env.do(t, http.MethodPost, "/api/jobs", `{"areas":["Palermo"],"owner_only":true,"max_price_per_m2":2500}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "pending", payload["status"])

	id, _ := payload["job_id"].(string)
	require.NotEmpty(t, id)

	rec, payload = env.do(t, http.MethodGet, "/api/jobs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, payload["id"])
	assert.Equal(t, "pending", payload["status"])
	assert.NotContains(t, payload, "listings")
}

func TestSubmitJobValidation(t *testing.T) {
	env := newTestEnv(t, false)

	rec, payload := env.do(t, http.MethodPost, "/api/jobs", `{"areas":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "areas", payload["field"])

	rec, _ = env.do(t, http.MethodPost, "/api/jobs", `{"areas":["Palermo"],"time_range":"1y"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/jobs", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJobQueueDown(t *testing.T) {
	env := newTestEnv(t, true)

	rec, _ := env.do(t, http.MethodPost, "/api/jobs", `{"areas":["Palermo"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	env := newTestEnv(t, false)

	rec, _ := env.do(t, http.MethodGet, "/api/jobs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCompletedJobIncludesListings(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	job, err := env.jobs.Submit(ctx, models.SearchCriteria{Areas: []string{"Palermo"}})
	require.NoError(t, err)
	saved, err := env.listings.Upsert(ctx, models.NewListing(models.ListingInput{
		Title:      "Depto Palermo",
		URL:        "https://z/1",
		TotalPrice: 120000,
		Surface:    60,
		Source:     models.SourceZonaprop,
		Area:       "Palermo",
	}))
	require.NoError(t, err)
	_, err = env.jobs.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	_, err = env.jobs.MarkCompleted(ctx, job.ID, []string{saved.ID})
	require.NoError(t, err)

	rec, payload := env.do(t, http.MethodGet, "/api/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", payload["status"])
	listings, ok := payload["listings"].([]interface{})
	require.True(t, ok)
	assert.Len(t, listings, 1)
}

func TestListListings(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, in := range []models.ListingInput{
		{Title: "Dueño Palermo", URL: "https://z/1", TotalPrice: 120000, Surface: 60, Area: "Palermo", IsOwner: true, PublishedAt: now},
		{Title: "Inmobiliaria Palermo", URL: "https://z/2", TotalPrice: 120000, Surface: 60, Area: "Palermo", PublishedAt: now},
		{Title: "Dueño Belgrano", URL: "https://z/3", TotalPrice: 120000, Surface: 60, Area: "Belgrano", IsOwner: true, PublishedAt: now},
	} {
		in.Source = models.SourceArgenprop
		_, err := env.listings.Upsert(ctx, models.NewListing(in))
		require.NoError(t, err)
	}

	rec, payload := env.do(t, http.MethodGet, "/api/listings?areas=Palermo&owner_only=true&time_range=7d", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), payload["total"])

	rec, payload = env.do(t, http.MethodGet, "/api/listings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), payload["total"])

	rec, _ = env.do(t, http.MethodGet, "/api/listings?owner_only=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/listings?time_range=custom", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonitorEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	env.monitor.RecordFailure(models.SourceZonaprop, errors.New("blocked"))
	env.monitor.RecordSuccess(models.SourceArgenprop, 7)

	rec, payload := env.do(t, http.MethodGet, "/api/monitor", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sources, ok := payload["sources"].([]interface{})
	require.True(t, ok)
	assert.Len(t, sources, 2)
	errs, ok := payload["errors"].([]interface{})
	require.True(t, ok)
	assert.Len(t, errs, 1)
}

func TestScheduleRoutes(t *testing.T) {
	env := newTestEnv(t, false)

	rec, payload := env.do(t, http.MethodPost, "/api/schedules", `{"time":"08:00","criteria":{"areas":["Recoleta"],"email":"x@example.com"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id, _ := payload["id"].(string)
	require.NotEmpty(t, id)

	rec, payload = env.do(t, http.MethodGet, "/api/schedules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items, ok := payload["items"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)

	rec, _ = env.do(t, http.MethodPost, "/api/schedules", `{"time":"8 o'clock","criteria":{"areas":["Recoleta"]}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, "/api/schedules/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, "/api/schedules/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)

	rec, payload := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", payload["status"])
	assert.Equal(t, float64(0), payload["queue_depth"])
}

package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"property-scraper/config"
	"property-scraper/models"
	"property-scraper/queue"
	"property-scraper/services"
	"property-scraper/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// gatedRunner blocks every run until release is closed and tracks how many
// runs overlap.
type gatedRunner struct {
	release chan struct{}
	result  []models.Listing

	mu      sync.Mutex
	running int
	peak    int
	runs    int
}

func (r *gatedRunner) Run(ctx context.Context, _ models.SearchCriteria, _ services.Mode) []models.Listing {
	r.mu.Lock()
	r.running++
	r.runs++
	if r.running > r.peak {
		r.peak = r.running
	}
	r.mu.Unlock()

	<-r.release

	r.mu.Lock()
	r.running--
	r.mu.Unlock()
	return r.result
}

func (r *gatedRunner) stats() (runs, peak int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, r.peak
}

type panicRunner struct{}

func (panicRunner) Run(context.Context, models.SearchCriteria, services.Mode) []models.Listing {
	panic("selector exploded")
}

// flakyQueue fails Pop with a connection error until Connect has been called
// again.
type flakyQueue struct {
	queue.Queue

	mu       sync.Mutex
	down     bool
	connects int
}

func (q *flakyQueue) Connect(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.connects++
	if q.connects > 1 {
		q.down = false
	}
	return nil
}

func (q *flakyQueue) Pop(ctx context.Context) (string, error) {
	q.mu.Lock()
	down := q.down
	q.mu.Unlock()
	if down {
		return "", &models.QueueConnectionError{Op: "pop", Err: errors.New("connection reset")}
	}
	return q.Queue.Pop(ctx)
}

func (q *flakyQueue) connectCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.connects
}

type recordingNotifier struct {
	mu     sync.Mutex
	emails []string
}

func (n *recordingNotifier) Notify(_ context.Context, email string, _ []models.Listing, _ models.SearchCriteria) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, email)
	return nil
}

type fixture struct {
	jobs     *storage.JobStore
	queue    queue.Queue
	listings *storage.BadgerListingStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := storage.OpenBadger(filepath.Join(t.TempDir(), "badger"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	q, err := queue.NewBadgerQueue(db.Store().Badger(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	return fixture{
		jobs:     storage.NewJobStore(db, logger),
		queue:    q,
		listings: storage.NewBadgerListingStore(db, logger),
	}
}

func (f fixture) submit(t *testing.T, criteria models.SearchCriteria) models.ScrapeJob {
	t.Helper()
	job, err := f.jobs.Submit(context.Background(), criteria)
	require.NoError(t, err)
	require.NoError(t, f.queue.Push(context.Background(), job.ID))
	return job
}

func testConfig(maxConcurrent int) config.WorkerConfig {
	return config.WorkerConfig{
		PollInterval:   config.Duration(5 * time.Millisecond),
		MaxConcurrent:  maxConcurrent,
		ReconnectDelay: config.Duration(10 * time.Millisecond),
		Mode:           "serial",
	}
}

func waitTerminal(t *testing.T, jobs *storage.JobStore, id string) models.ScrapeJob {
	t.Helper()
	select {
	case job := <-jobs.Watch(id):
		return job
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s did not finish", id)
		return models.ScrapeJob{}
	}
}

func sampleListing(url, area string, total float64, owner bool) models.Listing {
	now := time.Now().UTC()
	return models.NewListing(models.ListingInput{
		Title:       "Departamento en " + area,
		URL:         url,
		TotalPrice:  total,
		Surface:     60,
		Source:      models.SourceArgenprop,
		Area:        area,
		IsOwner:     owner,
		PublishedAt: now,
		ScrapedAt:   now,
	})
}

func TestPoolRespectsConcurrencyCap(t *testing.T) {
	f := newFixture(t)
	runner := &gatedRunner{release: make(chan struct{})}

	pool, err := NewPool(testConfig(2), Deps{
		Jobs:     f.jobs,
		Queue:    f.queue,
		Runner:   runner,
		Listings: f.listings,
		Logger:   arbor.NewLogger(),
	})
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, f.submit(t, models.SearchCriteria{Areas: []string{"Palermo"}}).ID)
	}

	pool.Start(context.Background())

	require.Eventually(t, func() bool {
		runs, _ := runner.stats()
		return runs == 2
	}, 2*time.Second, 5*time.Millisecond)

	// the third job waits for a free slot
	time.Sleep(50 * time.Millisecond)
	runs, _ := runner.stats()
	assert.Equal(t, 2, runs)
	assert.Equal(t, 2, pool.Active())

	third, err := f.jobs.Get(context.Background(), ids[2])
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, third.Status)

	close(runner.release)
	for _, id := range ids {
		job := waitTerminal(t, f.jobs, id)
		assert.Equal(t, models.JobStatusCompleted, job.Status)
	}
	pool.Stop()

	runs, peak := runner.stats()
	assert.Equal(t, 3, runs)
	assert.Equal(t, 2, peak)
	assert.Equal(t, 0, pool.Active())
}

func TestPoolPersistsFilteredListings(t *testing.T) {
	f := newFixture(t)
	runner := &gatedRunner{release: make(chan struct{}), result: []models.Listing{
		sampleListing("https://argenprop/1", "Palermo", 144000, true),
		sampleListing("https://argenprop/2", "Palermo", 168000, true),
		sampleListing("https://argenprop/3", "Palermo", 120000, false),
	}}
	close(runner.release)
	notifier := &recordingNotifier{}

	pool, err := NewPool(testConfig(1), Deps{
		Jobs:     f.jobs,
		Queue:    f.queue,
		Runner:   runner,
		Listings: f.listings,
		Notifier: notifier,
		Logger:   arbor.NewLogger(),
	})
	require.NoError(t, err)

	job := f.submit(t, models.SearchCriteria{
		Areas:         []string{"Palermo"},
		OwnerOnly:     true,
		MaxPricePerM2: 2500,
		Email:         "alertas@example.com",
	})

	pool.Start(context.Background())
	done := waitTerminal(t, f.jobs, job.ID)
	pool.Stop()

	require.Equal(t, models.JobStatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	require.Len(t, done.Result.ListingIDs, 1)

	stored, err := f.listings.GetByIDs(context.Background(), done.Result.ListingIDs)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "https://argenprop/1", stored[0].URL)
	assert.Equal(t, float64(2400), stored[0].PricePerM2)

	assert.Equal(t, []string{"alertas@example.com"}, notifier.emails)
}

func TestPoolMarksPanickingJobFailed(t *testing.T) {
	f := newFixture(t)

	pool, err := NewPool(testConfig(1), Deps{
		Jobs:     f.jobs,
		Queue:    f.queue,
		Runner:   panicRunner{},
		Listings: f.listings,
		Logger:   arbor.NewLogger(),
	})
	require.NoError(t, err)

	job := f.submit(t, models.SearchCriteria{Areas: []string{"Palermo"}})
	pool.Start(context.Background())
	done := waitTerminal(t, f.jobs, job.ID)
	pool.Stop()

	assert.Equal(t, models.JobStatusFailed, done.Status)
	assert.Contains(t, done.Error, "selector exploded")
	assert.Nil(t, done.Result)
}

func TestPoolCompletesWithEmptyResult(t *testing.T) {
	f := newFixture(t)
	runner := &gatedRunner{release: make(chan struct{})}
	close(runner.release)

	pool, err := NewPool(testConfig(1), Deps{
		Jobs:     f.jobs,
		Queue:    f.queue,
		Runner:   runner,
		Listings: f.listings,
		Logger:   arbor.NewLogger(),
	})
	require.NoError(t, err)

	job := f.submit(t, models.SearchCriteria{Areas: []string{"Recoleta"}})
	pool.Start(context.Background())
	done := waitTerminal(t, f.jobs, job.ID)
	pool.Stop()

	assert.Equal(t, models.JobStatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Empty(t, done.Result.ListingIDs)
}

func TestPoolReconnectsAfterQueueLoss(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyQueue{Queue: f.queue, down: true}
	runner := &gatedRunner{release: make(chan struct{})}
	close(runner.release)

	pool, err := NewPool(testConfig(1), Deps{
		Jobs:     f.jobs,
		Queue:    flaky,
		Runner:   runner,
		Listings: f.listings,
		Logger:   arbor.NewLogger(),
	})
	require.NoError(t, err)

	job := f.submit(t, models.SearchCriteria{Areas: []string{"Palermo"}})
	pool.Start(context.Background())

	done := waitTerminal(t, f.jobs, job.ID)
	pool.Stop()

	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.GreaterOrEqual(t, flaky.connectCount(), 2)
	assert.True(t, pool.Connected())
}

func TestNewPoolRejectsUnknownMode(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig(1)
	cfg.Mode = "turbo"

	_, err := NewPool(cfg, Deps{
		Jobs:     f.jobs,
		Queue:    f.queue,
		Runner:   &gatedRunner{},
		Listings: f.listings,
		Logger:   arbor.NewLogger(),
	})
	assert.Error(t, err)
}

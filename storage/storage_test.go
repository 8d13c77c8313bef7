package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"property-scraper/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func openTestDB(t *testing.T) *BadgerDB {
	t.Helper()
	db, err := OpenBadger(filepath.Join(t.TempDir(), "badger"), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func listing(url, title, area string, total, surface float64, owner bool, published time.Time) models.Listing {
	return models.NewListing(models.ListingInput{
		Title:       title,
		URL:         url,
		TotalPrice:  total,
		Surface:     surface,
		Source:      models.SourceZonaprop,
		Area:        area,
		IsOwner:     owner,
		PublishedAt: published,
		ScrapedAt:   published,
	})
}

func TestJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobStore(openTestDB(t), arbor.NewLogger())

	job, err := jobs.Submit(ctx, models.SearchCriteria{Areas: []string{"Palermo"}})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.NotEmpty(t, job.ID)

	job, err = jobs.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	require.NotNil(t, job.StartedAt)

	job, err = jobs.MarkCompleted(ctx, job.ID, []string{})
	require.NoError(t, err)

	stored, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	require.NotNil(t, stored.Result, "completed job keeps a result even with no listings")
	assert.Empty(t, stored.Result.ListingIDs)
	assert.Equal(t, []string{"Palermo"}, stored.Criteria.Areas)

	_, err = jobs.MarkFailed(ctx, job.ID, "late failure")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	stored, err = jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status, "rejected transition leaves the job untouched")
}

func TestJobStoreFailureKeepsMessage(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobStore(openTestDB(t), arbor.NewLogger())

	job, err := jobs.Submit(ctx, models.SearchCriteria{Areas: []string{"Belgrano"}})
	require.NoError(t, err)

	_, err = jobs.MarkFailed(ctx, job.ID, "too early")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = jobs.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	job, err = jobs.MarkFailed(ctx, job.ID, "storage unavailable")
	require.NoError(t, err)
	assert.Equal(t, "storage unavailable", job.Error)
	assert.Nil(t, job.Result)

	failed, err := jobs.ListByStatus(ctx, models.JobStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, job.ID, failed[0].ID)
}

func TestJobStoreUnknownID(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobStore(openTestDB(t), arbor.NewLogger())

	_, err := jobs.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = jobs.MarkProcessing(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, ok := <-jobs.Watch("missing")
	assert.False(t, ok)
}

func TestJobStoreOnlyOneConcurrentStartWins(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobStore(openTestDB(t), arbor.NewLogger())

	job, err := jobs.Submit(ctx, models.SearchCriteria{Areas: []string{"Palermo"}})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		started  int
		rejected int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := jobs.MarkProcessing(ctx, job.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				started++
			} else if errors.Is(err, models.ErrInvalidTransition) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, 7, rejected)
}

func TestJobStoreWatch(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobStore(openTestDB(t), arbor.NewLogger())

	job, err := jobs.Submit(ctx, models.SearchCriteria{Areas: []string{"Palermo"}})
	require.NoError(t, err)

	done := jobs.Watch(job.ID)
	select {
	case <-done:
		t.Fatal("watch fired before the job finished")
	default:
	}

	_, err = jobs.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	_, err = jobs.MarkCompleted(ctx, job.ID, []string{"a", "b"})
	require.NoError(t, err)

	select {
	case finished := <-done:
		assert.Equal(t, models.JobStatusCompleted, finished.Status)
		assert.Equal(t, []string{"a", "b"}, finished.Result.ListingIDs)
	case <-time.After(time.Second):
		t.Fatal("watch did not fire")
	}

	// watching an already finished job delivers immediately
	finished, ok := <-jobs.Watch(job.ID)
	assert.True(t, ok)
	assert.Equal(t, job.ID, finished.ID)
}

func TestBadgerListingStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerListingStore(openTestDB(t), arbor.NewLogger())
	now := time.Now().UTC()

	first := listing("https://www.zonaprop.com.ar/p/1", "Depto en Palermo", "Palermo", 150000, 60, false, now)
	_, err := store.Upsert(ctx, first)
	require.NoError(t, err)

	second := first
	second.TotalPrice = 120000
	second.PricePerM2 = 1 // recomputed on write
	saved, err := store.Upsert(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, float64(2000), saved.PricePerM2)

	all, err := store.QueryByFilters(ctx, ListingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, float64(120000), all[0].TotalPrice)
	assert.Equal(t, float64(2000), all[0].PricePerM2)
}

func TestBadgerListingStoreQueryByFilters(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerListingStore(openTestDB(t), arbor.NewLogger())
	now := time.Now().UTC()

	for _, l := range []models.Listing{
		listing("https://x/1", "Palermo dueño barato", "Palermo", 120000, 60, true, now),
		listing("https://x/2", "Palermo dueño caro", "Palermo", 168000, 60, true, now),
		listing("https://x/3", "Palermo inmobiliaria", "Palermo", 132000, 60, false, now),
		listing("https://x/4", "Belgrano dueño", "Belgrano", 150000, 60, true, now),
		listing("https://x/5", "Palermo dueño viejo", "Palermo", 126000, 60, true, now.Add(-10*24*time.Hour)),
	} {
		_, err := store.Upsert(ctx, l)
		require.NoError(t, err)
	}

	got, err := store.QueryByFilters(ctx, ListingFilter{
		Areas:         []string{"Palermo"},
		OwnerOnly:     true,
		MaxPricePerM2: 2500,
		DateFrom:      now.Add(-7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://x/1", got[0].URL)

	got, err = store.QueryByFilters(ctx, ListingFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, float64(2000), got[0].PricePerM2)
	assert.Equal(t, float64(2100), got[1].PricePerM2)
}

func TestBadgerListingStoreGetByIDs(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerListingStore(openTestDB(t), arbor.NewLogger())

	a, err := store.Upsert(ctx, listing("https://x/a", "A", "Palermo", 100000, 50, false, time.Now()))
	require.NoError(t, err)
	b, err := store.Upsert(ctx, listing("https://x/b", "B", "Palermo", 100000, 50, false, time.Now()))
	require.NoError(t, err)

	got, err := store.GetByIDs(ctx, []string{b.ID, "missing", a.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
}

func TestFilterFromCriteria(t *testing.T) {
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	f := FilterFromCriteria(models.SearchCriteria{Areas: []string{"Palermo"}, TimeRange: models.TimeRange3d, MaxPricePerM2: 2000}, now)

	assert.Equal(t, now.Add(-72*time.Hour), f.DateFrom)
	assert.True(t, f.DateTo.IsZero())
	assert.Equal(t, DefaultQueryLimit, f.Limit)
	assert.InDelta(t, 2200, f.priceCap(), 0.001)
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "listings.csv")
	w := NewCSVWriter(path, arbor.NewLogger())

	require.NoError(t, w.Write([]models.Listing{
		listing("https://x/1", "Depto, con balcón", "Palermo", 180000, 65, true, time.Now()),
	}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "price_per_m2", rows[0][7])
	assert.Equal(t, "Depto, con balcón", rows[1][3])
	assert.Equal(t, "2769", rows[1][7])
}

func TestPostgresListingStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := NewPostgresListingStore(ctx, dsn, arbor.NewLogger())
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.EnsureSchema(ctx))

	l := listing("https://test.example/"+time.Now().Format(time.RFC3339Nano), "Prueba Palermo", "Palermo", 150000, 60, true, time.Now().UTC())
	_, err = store.Upsert(ctx, l)
	require.NoError(t, err)

	l.TotalPrice = 90000
	saved, err := store.Upsert(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, float64(1500), saved.PricePerM2)

	got, err := store.GetByIDs(ctx, []string{l.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, float64(90000), got[0].TotalPrice)

	n, err := store.UpsertBatch(ctx, []models.Listing{l})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

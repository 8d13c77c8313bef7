package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"property-scraper/models"
	"property-scraper/scraper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type fakeAdapter struct {
	source   models.Source
	listings []models.Listing
	err      error
	panics   bool

	mu    sync.Mutex
	calls []time.Time
}

func (a *fakeAdapter) Source() models.Source { return a.source }

func (a *fakeAdapter) Extract(ctx context.Context, _ models.SearchCriteria) ([]models.Listing, error) {
	a.mu.Lock()
	a.calls = append(a.calls, time.Now())
	a.mu.Unlock()

	if a.panics {
		panic("nil selection")
	}
	return a.listings, a.err
}

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type adapterCounts struct {
	mu       sync.Mutex
	ok, fail int
	listings int
}

func (c *adapterCounts) AdapterRun(_ models.Source, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.ok++
	} else {
		c.fail++
	}
}

func (c *adapterCounts) ListingsScraped(_ models.Source, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings += n
}

func listingsFor(source models.Source, n int) []models.Listing {
	out := make([]models.Listing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.NewListing(models.ListingInput{
			Title:      fmt.Sprintf("%s listing %d", source, i),
			URL:        fmt.Sprintf("https://%s/%d", source, i),
			TotalPrice: 100000,
			Surface:    50,
			Source:     source,
			Area:       "Palermo",
		}))
	}
	return out
}

func TestOrchestratorSurvivesFailingAdapters(t *testing.T) {
	for _, mode := range []Mode{ModeSerial, ModeParallel} {
		t.Run(string(mode), func(t *testing.T) {
			monitor := NewMonitor()
			counts := &adapterCounts{}
			orch := NewOrchestrator([]scraper.Adapter{
				&fakeAdapter{source: models.SourceZonaprop, err: errors.New("navigation failed")},
				&fakeAdapter{source: models.SourceArgenprop, listings: listingsFor(models.SourceArgenprop, 5)},
				&fakeAdapter{source: models.SourceMercadoLibre, panics: true},
			}, arbor.NewLogger(), OrchestratorOptions{Fallback: true, Monitor: monitor, Recorder: counts})

			out := orch.Run(context.Background(), models.SearchCriteria{Areas: []string{"Palermo"}}, mode)
			require.Len(t, out, 5)
			for _, l := range out {
				assert.Equal(t, models.SourceArgenprop, l.Source)
			}

			assert.Equal(t, 1, counts.ok)
			assert.Equal(t, 2, counts.fail)
			assert.Equal(t, 5, counts.listings)

			snap := monitor.Snapshot()
			require.Len(t, snap.Errors, 2)
			require.Len(t, snap.Sources, 3)
		})
	}
}

func TestOrchestratorFallsBackToSamples(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	adapters := []scraper.Adapter{
		&fakeAdapter{source: models.SourceZonaprop, err: errors.New("blocked")},
		&fakeAdapter{source: models.SourceArgenprop},
	}

	orch := NewOrchestrator(adapters, arbor.NewLogger(), OrchestratorOptions{
		Fallback: true,
		Now:      func() time.Time { return now },
	})
	out := orch.Run(context.Background(), models.SearchCriteria{Areas: []string{"Palermo"}}, ModeParallel)
	require.Len(t, out, len(curated))
	for _, l := range out {
		assert.Equal(t, models.SourceSynthetic, l.Source)
		assert.Equal(t, now, l.ScrapedAt)
		assert.False(t, l.SurfaceEstimated)
	}

	strict := NewOrchestrator(adapters, arbor.NewLogger(), OrchestratorOptions{})
	out = strict.Run(context.Background(), models.SearchCriteria{Areas: []string{"Palermo"}}, ModeParallel)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestOrchestratorSerialCooldown(t *testing.T) {
	first := &fakeAdapter{source: models.SourceZonaprop, listings: listingsFor(models.SourceZonaprop, 1)}
	second := &fakeAdapter{source: models.SourceArgenprop, listings: listingsFor(models.SourceArgenprop, 1)}

	orch := NewOrchestrator([]scraper.Adapter{first, second}, arbor.NewLogger(), OrchestratorOptions{
		Cooldown: 40 * time.Millisecond,
	})
	out := orch.Run(context.Background(), models.SearchCriteria{Areas: []string{"Palermo"}}, ModeSerial)
	require.Len(t, out, 2)
	assert.Equal(t, models.SourceZonaprop, out[0].Source)
	assert.Equal(t, models.SourceArgenprop, out[1].Source)

	gap := second.calls[0].Sub(first.calls[0])
	assert.GreaterOrEqual(t, gap, 40*time.Millisecond)
}

func TestOrchestratorSerialStopsOnCancel(t *testing.T) {
	first := &fakeAdapter{source: models.SourceZonaprop, listings: listingsFor(models.SourceZonaprop, 2)}
	second := &fakeAdapter{source: models.SourceArgenprop, listings: listingsFor(models.SourceArgenprop, 2)}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	orch := NewOrchestrator([]scraper.Adapter{first, second}, arbor.NewLogger(), OrchestratorOptions{
		Cooldown: time.Second,
	})
	out := orch.Run(ctx, models.SearchCriteria{Areas: []string{"Palermo"}}, ModeSerial)
	assert.Len(t, out, 2)
	assert.Equal(t, 0, second.callCount())
}

func TestOrchestratorCachesLiveResults(t *testing.T) {
	adapter := &fakeAdapter{source: models.SourceZonaprop, listings: listingsFor(models.SourceZonaprop, 3)}
	cache := NewResultCache(time.Minute)
	orch := NewOrchestrator([]scraper.Adapter{adapter}, arbor.NewLogger(), OrchestratorOptions{Cache: cache})

	criteria := models.SearchCriteria{Areas: []string{"Palermo", "Belgrano"}}
	first := orch.Run(context.Background(), criteria, ModeSerial)
	second := orch.Run(context.Background(), models.SearchCriteria{Areas: []string{"belgrano", "palermo"}}, ModeSerial)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, adapter.callCount())
	assert.Equal(t, 1, cache.Len())
}

func TestOrchestratorDoesNotCacheFallback(t *testing.T) {
	adapter := &fakeAdapter{source: models.SourceZonaprop, err: errors.New("blocked")}
	cache := NewResultCache(time.Minute)
	orch := NewOrchestrator([]scraper.Adapter{adapter}, arbor.NewLogger(), OrchestratorOptions{Cache: cache, Fallback: true})

	orch.Run(context.Background(), models.SearchCriteria{Areas: []string{"Palermo"}}, ModeSerial)
	orch.Run(context.Background(), models.SearchCriteria{Areas: []string{"Palermo"}}, ModeSerial)

	assert.Equal(t, 2, adapter.callCount())
	assert.Zero(t, cache.Len())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSerial, m)

	m, err = ParseMode(" Parallel ")
	require.NoError(t, err)
	assert.Equal(t, ModeParallel, m)

	_, err = ParseMode("burst")
	assert.Error(t, err)
}

func TestResultCacheExpires(t *testing.T) {
	now := time.Now()
	cache := NewResultCache(time.Minute)
	cache.now = func() time.Time { return now }

	cache.Put("k", listingsFor(models.SourceZonaprop, 1))
	_, ok := cache.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get("k")
	assert.False(t, ok)
	assert.Zero(t, cache.Len())

	disabled := NewResultCache(0)
	disabled.Put("k", listingsFor(models.SourceZonaprop, 1))
	assert.Zero(t, disabled.Len())
}

func TestMonitorKeepsLatestErrors(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 60; i++ {
		m.RecordFailure(models.SourceZonaprop, fmt.Errorf("failure %d", i))
	}
	m.RecordSuccess(models.SourceArgenprop, 4)

	snap := m.Snapshot()
	require.Len(t, snap.Errors, maxMonitorErrors)
	assert.Equal(t, "failure 59", snap.Errors[0].Message)
	assert.Equal(t, "failure 10", snap.Errors[len(snap.Errors)-1].Message)

	require.Len(t, snap.Sources, 2)
	assert.Equal(t, models.SourceArgenprop, snap.Sources[0].Source)
	assert.Equal(t, 4, snap.Sources[0].Listings)
	require.NotNil(t, snap.Sources[0].LastSuccess)
	assert.Equal(t, 60, snap.Sources[1].Failures)
	assert.Equal(t, "failure 59", snap.Sources[1].LastError)
}

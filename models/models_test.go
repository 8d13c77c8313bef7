package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewListingDerivesPricePerM2(t *testing.T) {
	tests := []struct {
		name    string
		total   float64
		surface float64
		want    float64
	}{
		{"exact", 180000, 60, 3000},
		{"rounds half up", 100001, 2, 50001},
		{"rounds down", 120000, 65, 1846},
		{"zero surface", 150000, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewListing(ListingInput{
				Title:      "Depto",
				URL:        "https://example.com/1",
				TotalPrice: tt.total,
				Surface:    tt.surface,
				Source:     SourceZonaprop,
			})
			assert.Equal(t, tt.want, l.PricePerM2)
		})
	}
}

func TestNormalizeIgnoresScrapedPricePerM2(t *testing.T) {
	l := Listing{TotalPrice: 200000, Surface: 80, PricePerM2: 1}
	l.Normalize()
	assert.Equal(t, float64(2500), l.PricePerM2)
}

func TestListingIDIsStablePerSourceAndURL(t *testing.T) {
	a := ListingID(SourceZonaprop, "https://www.zonaprop.com.ar/propiedades/1")
	b := ListingID(SourceZonaprop, " https://www.zonaprop.com.ar/propiedades/1 ")
	c := ListingID(SourceArgenprop, "https://www.zonaprop.com.ar/propiedades/1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "zonaprop-")
}

func TestSearchCriteriaValidate(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	tests := []struct {
		name      string
		criteria  SearchCriteria
		wantField string
	}{
		{"valid", SearchCriteria{Areas: []string{"Palermo"}, MaxPricePerM2: 2500}, ""},
		{"missing areas", SearchCriteria{}, "areas"},
		{"empty areas", SearchCriteria{Areas: []string{}}, "areas"},
		{"blank area", SearchCriteria{Areas: []string{"  "}}, "areas"},
		{"negative price", SearchCriteria{Areas: []string{"Palermo"}, MaxPricePerM2: -1}, "max_price_per_m2"},
		{"bad range", SearchCriteria{Areas: []string{"Palermo"}, TimeRange: "1y"}, "time_range"},
		{"custom without dates", SearchCriteria{Areas: []string{"Palermo"}, TimeRange: TimeRangeCustom}, "time_range"},
		{"custom reversed", SearchCriteria{Areas: []string{"Palermo"}, TimeRange: TimeRangeCustom, CustomStart: &end, CustomEnd: &start}, "custom_end"},
		{"custom ok", SearchCriteria{Areas: []string{"Palermo"}, TimeRange: TimeRangeCustom, CustomStart: &start, CustomEnd: &end}, ""},
		{"bad email", SearchCriteria{Areas: []string{"Palermo"}, Email: "nope"}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.criteria.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestSearchCriteriaSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, SearchCriteria{}.Since(now).IsZero())
	assert.Equal(t, now.Add(-24*time.Hour), SearchCriteria{TimeRange: TimeRange24h}.Since(now))
	assert.Equal(t, now.Add(-72*time.Hour), SearchCriteria{TimeRange: TimeRange3d}.Since(now))
	assert.Equal(t, now.Add(-168*time.Hour), SearchCriteria{TimeRange: TimeRange7d}.Since(now))
}

func TestSearchCriteriaKeyIgnoresAreaOrderAndCase(t *testing.T) {
	a := SearchCriteria{Areas: []string{"Palermo", "belgrano"}, OwnerOnly: true}
	b := SearchCriteria{Areas: []string{"Belgrano", "palermo "}, OwnerOnly: true}
	c := SearchCriteria{Areas: []string{"Belgrano", "palermo"}}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestScrapeJobTransitions(t *testing.T) {
	now := time.Now()

	t.Run("completed carries result", func(t *testing.T) {
		job := NewScrapeJob("j1", SearchCriteria{Areas: []string{"Palermo"}}, now)
		require.NoError(t, job.Start(now))
		require.NoError(t, job.Complete(nil, now))

		assert.Equal(t, JobStatusCompleted, job.Status)
		require.NotNil(t, job.Result)
		assert.Empty(t, job.Result.ListingIDs)
		assert.Empty(t, job.Error)
		assert.NotNil(t, job.CompletedAt)
	})

	t.Run("failed carries error", func(t *testing.T) {
		job := NewScrapeJob("j2", SearchCriteria{Areas: []string{"Palermo"}}, now)
		require.NoError(t, job.Start(now))
		require.NoError(t, job.Fail("", now))

		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Nil(t, job.Result)
		assert.NotEmpty(t, job.Error)
	})

	t.Run("terminal states are final", func(t *testing.T) {
		job := NewScrapeJob("j3", SearchCriteria{Areas: []string{"Palermo"}}, now)
		require.NoError(t, job.Start(now))
		require.NoError(t, job.Complete([]string{"a"}, now))

		assert.ErrorIs(t, job.Start(now), ErrInvalidTransition)
		assert.ErrorIs(t, job.Fail("late", now), ErrInvalidTransition)
		assert.ErrorIs(t, job.Complete([]string{"b"}, now), ErrInvalidTransition)
		assert.Equal(t, []string{"a"}, job.Result.ListingIDs)
	})

	t.Run("cannot skip processing", func(t *testing.T) {
		job := NewScrapeJob("j4", SearchCriteria{Areas: []string{"Palermo"}}, now)
		assert.ErrorIs(t, job.Complete(nil, now), ErrInvalidTransition)
		assert.Equal(t, JobStatusPending, job.Status)
	})
}

func TestParseProxyEndpoint(t *testing.T) {
	ep, err := ParseProxyEndpoint("proxy.local:8080:alice:secret")
	require.NoError(t, err)
	assert.Equal(t, "proxy.local:8080", ep.Key())
	assert.Equal(t, "alice", ep.Username)
	assert.Equal(t, "http://proxy.local:8080", ep.ServerURL())

	ep, err = ParseProxyEndpoint("socks5://bob:pw@10.0.0.1:1080")
	require.NoError(t, err)
	assert.Equal(t, "socks5", ep.Protocol)
	assert.Equal(t, "bob", ep.Username)
	assert.Equal(t, "pw", ep.Password)
	assert.Equal(t, 1080, ep.Port)

	_, err = ParseProxyEndpoint("nope")
	assert.Error(t, err)
}

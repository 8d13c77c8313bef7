package storage

import (
	"context"
	"time"

	"property-scraper/models"
)

const (
	DefaultQueryLimit = 50

	// queryPriceTolerance matches the pipeline's band on the per-m² cap.
	queryPriceTolerance = 1.10
)

// ListingStore persists listings keyed by ID. Upsert replaces an existing
// record with the same ID.
type ListingStore interface {
	Upsert(ctx context.Context, l models.Listing) (models.Listing, error)
	QueryByFilters(ctx context.Context, f ListingFilter) ([]models.Listing, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Listing, error)
	Close() error
}

type ListingFilter struct {
	Areas         []string
	OwnerOnly     bool
	MaxPricePerM2 float64
	DateFrom      time.Time
	DateTo        time.Time
	Limit         int
}

// FilterFromCriteria builds the stored-listing query for a search.
func FilterFromCriteria(c models.SearchCriteria, now time.Time) ListingFilter {
	return ListingFilter{
		Areas:         c.Areas,
		OwnerOnly:     c.OwnerOnly,
		MaxPricePerM2: c.MaxPricePerM2,
		DateFrom:      c.Since(now),
		DateTo:        c.Until(),
		Limit:         DefaultQueryLimit,
	}
}

func (f ListingFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultQueryLimit
	}
	return f.Limit
}

func (f ListingFilter) priceCap() float64 {
	return f.MaxPricePerM2 * queryPriceTolerance
}

func (f ListingFilter) inWindow(published time.Time) bool {
	if !f.DateFrom.IsZero() && published.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && published.After(f.DateTo) {
		return false
	}
	return true
}

package storage

import (
	"context"
	"errors"
	"fmt"

	"property-scraper/models"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerListingStore keeps listings in the embedded database. It is the
// default when no Postgres URL is configured.
type BadgerListingStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewBadgerListingStore(db *BadgerDB, logger arbor.ILogger) *BadgerListingStore {
	return &BadgerListingStore{db: db, logger: logger}
}

func (s *BadgerListingStore) Upsert(ctx context.Context, l models.Listing) (models.Listing, error) {
	if l.ID == "" {
		return models.Listing{}, fmt.Errorf("listing ID is required")
	}
	l.Normalize()
	if err := s.db.Store().Upsert(l.ID, l); err != nil {
		return models.Listing{}, fmt.Errorf("failed to save listing %s: %w", l.ID, err)
	}
	return l, nil
}

func (s *BadgerListingStore) QueryByFilters(ctx context.Context, f ListingFilter) ([]models.Listing, error) {
	query := badgerhold.Where("ID").Ne("")
	if len(f.Areas) > 0 {
		areas := make([]interface{}, len(f.Areas))
		for i, a := range f.Areas {
			areas[i] = a
		}
		query = query.And("Area").In(areas...)
	}
	if f.OwnerOnly {
		query = query.And("IsOwner").Eq(true)
	}
	if f.MaxPricePerM2 > 0 {
		query = query.And("PricePerM2").Le(f.priceCap())
	}

	var found []models.Listing
	if err := s.db.Store().Find(&found, query.SortBy("PricePerM2")); err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}

	out := make([]models.Listing, 0, len(found))
	for _, l := range found {
		if !f.inWindow(l.PublishedAt) {
			continue
		}
		out = append(out, l)
		if len(out) == f.limit() {
			break
		}
	}
	return out, nil
}

// GetByIDs returns the listings in ids order, skipping ids that are not
// stored.
func (s *BadgerListingStore) GetByIDs(ctx context.Context, ids []string) ([]models.Listing, error) {
	out := make([]models.Listing, 0, len(ids))
	for _, id := range ids {
		var l models.Listing
		if err := s.db.Store().Get(id, &l); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				s.logger.Debug().Str("listing_id", id).Msg("Listing not found")
				continue
			}
			return nil, fmt.Errorf("failed to get listing %s: %w", id, err)
		}
		out = append(out, l)
	}
	return out, nil
}

// Close is a no-op; the shared BadgerDB is closed by its owner.
func (s *BadgerListingStore) Close() error {
	return nil
}

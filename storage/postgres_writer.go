package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"property-scraper/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"
)

const listingColumns = `id, title, url, total_price, surface, surface_estimated, price_per_m2,
	source, area, is_owner, published_at, scraped_at`

const upsertSQL = `
	INSERT INTO properties (` + listingColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		url = EXCLUDED.url,
		total_price = EXCLUDED.total_price,
		surface = EXCLUDED.surface,
		surface_estimated = EXCLUDED.surface_estimated,
		price_per_m2 = EXCLUDED.price_per_m2,
		source = EXCLUDED.source,
		area = EXCLUDED.area,
		is_owner = EXCLUDED.is_owner,
		published_at = EXCLUDED.published_at,
		scraped_at = EXCLUDED.scraped_at,
		updated_at = NOW()
	RETURNING ` + listingColumns

type PostgresListingStore struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

func NewPostgresListingStore(ctx context.Context, dsn string, logger arbor.ILogger) (*PostgresListingStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	return &PostgresListingStore{pool: pool, logger: logger}, nil
}

func (s *PostgresListingStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresListingStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	sql := `
	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		total_price DOUBLE PRECISION NOT NULL,
		surface DOUBLE PRECISION NOT NULL,
		surface_estimated BOOLEAN NOT NULL DEFAULT FALSE,
		price_per_m2 DOUBLE PRECISION NOT NULL,
		source TEXT NOT NULL,
		area TEXT NOT NULL,
		is_owner BOOLEAN NOT NULL DEFAULT FALSE,
		published_at TIMESTAMPTZ NOT NULL,
		scraped_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_properties_area ON properties(area);
	CREATE INDEX IF NOT EXISTS idx_properties_price_per_m2 ON properties(price_per_m2);
	CREATE INDEX IF NOT EXISTS idx_properties_published_at ON properties(published_at);
	`

	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresListingStore) Upsert(ctx context.Context, l models.Listing) (models.Listing, error) {
	if l.ID == "" {
		return models.Listing{}, fmt.Errorf("listing ID is required")
	}
	l.Normalize()

	row := s.pool.QueryRow(ctx, upsertSQL, upsertArgs(l)...)
	stored, err := scanListing(row)
	if err != nil {
		return models.Listing{}, fmt.Errorf("failed to upsert listing %s: %w", l.ID, err)
	}
	return stored, nil
}

// UpsertBatch sends every listing in one round trip. It stops at the first
// failing row and reports how many rows were written before it.
func (s *PostgresListingStore) UpsertBatch(ctx context.Context, listings []models.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, l := range listings {
		l.Normalize()
		batch.Queue(upsertSQL, upsertArgs(l)...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range listings {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("batch upsert failed at row %d: %w", i, err)
		}
	}
	return len(listings), nil
}

func (s *PostgresListingStore) QueryByFilters(ctx context.Context, f ListingFilter) ([]models.Listing, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Areas) > 0 {
		where = append(where, "area = ANY("+arg(f.Areas)+")")
	}
	if f.OwnerOnly {
		where = append(where, "is_owner")
	}
	if f.MaxPricePerM2 > 0 {
		where = append(where, "price_per_m2 <= "+arg(f.priceCap()))
	}
	if !f.DateFrom.IsZero() {
		where = append(where, "published_at >= "+arg(f.DateFrom))
	}
	if !f.DateTo.IsZero() {
		where = append(where, "published_at <= "+arg(f.DateTo))
	}

	sql := "SELECT " + listingColumns + " FROM properties"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY price_per_m2 ASC LIMIT " + arg(f.limit())

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	return collectListings(rows)
}

func (s *PostgresListingStore) GetByIDs(ctx context.Context, ids []string) ([]models.Listing, error) {
	if len(ids) == 0 {
		return []models.Listing{}, nil
	}

	rows, err := s.pool.Query(ctx, "SELECT "+listingColumns+" FROM properties WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get listings: %w", err)
	}
	found, err := collectListings(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Listing, len(found))
	for _, l := range found {
		byID[l.ID] = l
	}
	out := make([]models.Listing, 0, len(ids))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func upsertArgs(l models.Listing) []interface{} {
	return []interface{}{
		l.ID,
		l.Title,
		l.URL,
		l.TotalPrice,
		l.Surface,
		l.SurfaceEstimated,
		l.PricePerM2,
		string(l.Source),
		l.Area,
		l.IsOwner,
		l.PublishedAt,
		l.ScrapedAt,
	}
}

func scanListing(row pgx.Row) (models.Listing, error) {
	var (
		l      models.Listing
		source string
	)
	err := row.Scan(
		&l.ID,
		&l.Title,
		&l.URL,
		&l.TotalPrice,
		&l.Surface,
		&l.SurfaceEstimated,
		&l.PricePerM2,
		&source,
		&l.Area,
		&l.IsOwner,
		&l.PublishedAt,
		&l.ScrapedAt,
	)
	l.Source = models.Source(source)
	return l, err
}

func collectListings(rows pgx.Rows) ([]models.Listing, error) {
	defer rows.Close()

	out := []models.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listings: %w", err)
	}
	return out, nil
}

package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Source string

const (
	SourceZonaprop     Source = "zonaprop"
	SourceArgenprop    Source = "argenprop"
	SourceMercadoLibre Source = "mercadolibre"
	SourceSynthetic    Source = "synthetic"
)

// Listing is one scraped or synthesized property.
//
// PricePerM2 is derived, never scraped. Use NewListing or Normalize so the
// value always matches TotalPrice / Surface.
type Listing struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	URL              string    `json:"url"`
	TotalPrice       float64   `json:"total_price"`
	Surface          float64   `json:"surface"`
	SurfaceEstimated bool      `json:"surface_estimated"`
	PricePerM2       float64   `json:"price_per_m2"`
	Source           Source    `json:"source"`
	Area             string    `json:"area"`
	IsOwner          bool      `json:"is_owner"`
	PublishedAt      time.Time `json:"published_at"`
	ScrapedAt        time.Time `json:"scraped_at"`
}

// ListingInput carries the raw fields an adapter or generator collected.
type ListingInput struct {
	ID               string
	Title            string
	URL              string
	TotalPrice       float64
	Surface          float64
	SurfaceEstimated bool
	Source           Source
	Area             string
	IsOwner          bool
	PublishedAt      time.Time
	ScrapedAt        time.Time
}

func NewListing(in ListingInput) Listing {
	l := Listing{
		ID:               in.ID,
		Title:            strings.TrimSpace(in.Title),
		URL:              strings.TrimSpace(in.URL),
		TotalPrice:       in.TotalPrice,
		Surface:          in.Surface,
		SurfaceEstimated: in.SurfaceEstimated,
		Source:           in.Source,
		Area:             strings.TrimSpace(in.Area),
		IsOwner:          in.IsOwner,
		PublishedAt:      in.PublishedAt,
		ScrapedAt:        in.ScrapedAt,
	}
	if l.ID == "" {
		l.ID = ListingID(l.Source, l.URL)
	}
	l.Normalize()
	return l
}

// Normalize recomputes PricePerM2 from TotalPrice and Surface.
func (l *Listing) Normalize() {
	l.PricePerM2 = PricePerM2(l.TotalPrice, l.Surface)
}

func PricePerM2(total, surface float64) float64 {
	if surface <= 0 {
		return 0
	}
	return math.Round(total / surface)
}

// ListingID is stable per (source, url) so re-scrapes of the same listing
// collide and upsert instead of duplicating.
func ListingID(source Source, url string) string {
	return string(source) + "-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.TrimSpace(url))).String()
}

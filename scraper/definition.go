package scraper

import (
	"time"

	"property-scraper/models"
)

// Strategy is one tagged way of reading listing cards from a results page.
// Strategies are tried in order; the first whose Container matches wins, so
// a markup change means adding a strategy, not editing control flow.
type Strategy struct {
	Name      string
	Container string
	// Title selectors are tried in order. The matched element (or the anchor
	// inside or around it) also provides the link unless Link is set.
	Title []string
	Link  []string
	Price []string
}

// Definition describes one listing source.
type Definition struct {
	Source  models.Source
	BaseURL string

	SearchURL func(models.SearchCriteria) string
	// ScopedArea names the area the search URL is restricted to, if any. It
	// is used when the title gives no hint of the area.
	ScopedArea func(models.SearchCriteria) string

	ReadySelector string
	Strategies    []Strategy
	MaxItems      int

	SettleMin   time.Duration
	SettleMax   time.Duration
	BackoffBase time.Duration

	// Surface is not published reliably, so it is synthesized in this range
	// and flagged as estimated.
	SurfaceMin float64
	SurfaceMax float64

	// ScaleThousands treats prices under 1000 as thousands. Placeholder rule
	// pending validation against live markup.
	ScaleThousands bool
}

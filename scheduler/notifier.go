package scheduler

import (
	"context"

	"property-scraper/models"

	"github.com/ternarybob/arbor"
)

// Notifier delivers a job's listings to a subscriber.
type Notifier interface {
	Notify(ctx context.Context, email string, listings []models.Listing, criteria models.SearchCriteria) error
}

// LogNotifier writes the digest to the log. Mail delivery is handled outside
// this service.
type LogNotifier struct {
	logger arbor.ILogger
}

func NewLogNotifier(logger arbor.ILogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, email string, listings []models.Listing, criteria models.SearchCriteria) error {
	event := n.logger.Info().
		Str("email", email).
		Strs("areas", criteria.Areas).
		Int("listings", len(listings))
	if len(listings) > 0 {
		best := listings[0]
		event = event.Str("best_url", best.URL).Int("best_price_per_m2", int(best.PricePerM2))
	}
	event.Msg("Digest ready")
	return nil
}

package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"property-scraper/models"

	"github.com/ternarybob/arbor"
)

// CSVWriter exports listings for the one-shot CLI run.
type CSVWriter struct {
	path   string
	logger arbor.ILogger
}

func NewCSVWriter(path string, logger arbor.ILogger) *CSVWriter {
	return &CSVWriter{path: path, logger: logger}
}

// Write saves all listings to the CSV file.
// Creates the output directory if it does not exist.
//
// CSV columns: id, source, area, title, total_price, surface,
// surface_estimated, price_per_m2, is_owner, published_at, url
func (w *CSVWriter) Write(listings []models.Listing) error {
	if len(listings) == 0 {
		w.logger.Warn().Msg("No listings to write")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("could not create output dir: %w", err)
	}

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{
		"id", "source", "area", "title", "total_price", "surface",
		"surface_estimated", "price_per_m2", "is_owner", "published_at", "url",
	}); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}

	for _, l := range listings {
		if err := writer.Write([]string{
			l.ID,
			string(l.Source),
			l.Area,
			l.Title,
			strconv.FormatFloat(l.TotalPrice, 'f', 0, 64),
			strconv.FormatFloat(l.Surface, 'f', 0, 64),
			strconv.FormatBool(l.SurfaceEstimated),
			strconv.FormatFloat(l.PricePerM2, 'f', 0, 64),
			strconv.FormatBool(l.IsOwner),
			l.PublishedAt.Format(time.RFC3339),
			l.URL,
		}); err != nil {
			return fmt.Errorf("csv write error: %w", err)
		}
	}

	// Must flush or data stays in buffer
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}

	w.logger.Info().Int("listings", len(listings)).Str("path", w.path).Msg("Saved listings to CSV")
	return nil
}

package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"property-scraper/models"
)

type Report struct {
	TotalListings     int
	OwnerListings     int
	EstimatedSurfaces int
	AveragePricePerM2 float64
	MinPricePerM2     float64
	MaxPricePerM2     float64
	Cheapest          models.Listing
	BestOwnerDeals    []models.Listing
	ListingsBySource  map[models.Source]int
	ListingsByArea    map[string]int
}

// GenerateReport summarises a result set for the one-shot CLI run.
func GenerateReport(listings []models.Listing) Report {
	report := Report{
		TotalListings:    len(listings),
		ListingsBySource: make(map[models.Source]int),
		ListingsByArea:   make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	var (
		priceSum   float64
		priceCount int
		maxPrice   = -1.0
		minPrice   = math.MaxFloat64
		owners     []models.Listing
	)

	for _, l := range listings {
		report.ListingsBySource[l.Source]++
		report.ListingsByArea[normalizeArea(l.Area)]++

		if l.SurfaceEstimated {
			report.EstimatedSurfaces++
		}
		if l.IsOwner {
			report.OwnerListings++
			owners = append(owners, l)
		}

		if l.PricePerM2 > 0 {
			priceSum += l.PricePerM2
			priceCount++

			if l.PricePerM2 > maxPrice {
				maxPrice = l.PricePerM2
			}
			if l.PricePerM2 < minPrice {
				minPrice = l.PricePerM2
				report.Cheapest = l
			}
		}
	}

	if priceCount > 0 {
		report.AveragePricePerM2 = priceSum / float64(priceCount)
		report.MinPricePerM2 = minPrice
		report.MaxPricePerM2 = maxPrice
	}

	sort.SliceStable(owners, func(i, j int) bool {
		return owners[i].PricePerM2 < owners[j].PricePerM2
	})
	if len(owners) > 5 {
		owners = owners[:5]
	}
	report.BestOwnerDeals = owners

	return report
}

func PrintReport(w io.Writer, report Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────────────────────────────────────┐")
	fmt.Fprintln(w, "│                    Property Market Insights                  │")
	fmt.Fprintln(w, "├───────────────────────────────┬──────────────────────────────┤")
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Total Listings", report.TotalListings)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Owner Listings", report.OwnerListings)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Estimated Surfaces", report.EstimatedSurfaces)
	fmt.Fprintf(w, "│ %-29s │ %-28.0f │\n", "Average USD/m²", report.AveragePricePerM2)
	fmt.Fprintf(w, "│ %-29s │ %-28.0f │\n", "Minimum USD/m²", report.MinPricePerM2)
	fmt.Fprintf(w, "│ %-29s │ %-28.0f │\n", "Maximum USD/m²", report.MaxPricePerM2)
	fmt.Fprintln(w, "└───────────────────────────────┴──────────────────────────────┘")

	if report.Cheapest.Title != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "┌──────────────────────────────────────────────────────────────┐")
		fmt.Fprintln(w, "│                     Cheapest Per Square Meter                │")
		fmt.Fprintln(w, "├───────────────────────────────┬──────────────────────────────┤")
		fmt.Fprintf(w, "│ %-29s │ %-28.0f │\n", "USD/m²", report.Cheapest.PricePerM2)
		fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Area", normalizeArea(report.Cheapest.Area))
		fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Source", string(report.Cheapest.Source))
		fmt.Fprintln(w, "└───────────────────────────────┴──────────────────────────────┘")
		fmt.Fprintf(w, "Title: %s\n", report.Cheapest.Title)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────────────────────┬───────────────┐")
	fmt.Fprintln(w, "│ Listings per Source                          │ Count         │")
	fmt.Fprintln(w, "├──────────────────────────────────────────────┼───────────────┤")
	for _, src := range sortedKeys(report.ListingsBySource) {
		fmt.Fprintf(w, "│ %-44s │ %-13d │\n", src, report.ListingsBySource[src])
	}
	fmt.Fprintln(w, "└──────────────────────────────────────────────┴───────────────┘")

	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────────────────────┬───────────────┐")
	fmt.Fprintln(w, "│ Listings per Area                            │ Count         │")
	fmt.Fprintln(w, "├──────────────────────────────────────────────┼───────────────┤")
	for _, area := range sortedKeys(report.ListingsByArea) {
		fmt.Fprintf(w, "│ %-44s │ %-13d │\n", area, report.ListingsByArea[area])
	}
	fmt.Fprintln(w, "└──────────────────────────────────────────────┴───────────────┘")

	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌─────┬──────────────────────────────────────────────┬──────────┐")
	fmt.Fprintln(w, "│ #   │ Best Owner Deals                             │ USD/m²   │")
	fmt.Fprintln(w, "├─────┼──────────────────────────────────────────────┼──────────┤")
	for i, l := range report.BestOwnerDeals {
		fmt.Fprintf(w, "│ %-3d │ %-44s │ %-8.0f │\n", i+1, truncateText(l.Title, 44), l.PricePerM2)
	}
	fmt.Fprintln(w, "└─────┴──────────────────────────────────────────────┴──────────┘")
}

func normalizeArea(area string) string {
	area = strings.TrimSpace(area)
	if area == "" {
		return "Unknown"
	}
	return area
}

func sortedKeys[K ~string](m map[K]int) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

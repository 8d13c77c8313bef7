package services

import (
	"sort"
	"strings"
	"unicode"

	"property-scraper/models"
	"property-scraper/scraper"
)

const (
	DefaultMaxResults = 25

	// priceTolerance widens the per-m² cap so listings just over it survive.
	priceTolerance = 1.10
	dedupeKeyRunes = 50
)

// Step is one stage of the post-processing pipeline. Steps never modify the
// slice they are given.
type Step func(records []models.Listing, criteria models.SearchCriteria) []models.Listing

// Pipeline filters, deduplicates, sorts and truncates merged adapter output.
// It is pure: the same input always yields the same output.
type Pipeline struct {
	steps []Step
}

func NewPipeline(maxResults int) *Pipeline {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Pipeline{steps: []Step{
		func(r []models.Listing, c models.SearchCriteria) []models.Listing { return FilterAreas(r, c.Areas) },
		func(r []models.Listing, c models.SearchCriteria) []models.Listing { return FilterOwner(r, c.OwnerOnly) },
		func(r []models.Listing, c models.SearchCriteria) []models.Listing { return FilterMaxPrice(r, c.MaxPricePerM2) },
		func(r []models.Listing, _ models.SearchCriteria) []models.Listing { return Dedupe(r) },
		func(r []models.Listing, _ models.SearchCriteria) []models.Listing { return SortByPricePerM2(r) },
		func(r []models.Listing, _ models.SearchCriteria) []models.Listing { return Truncate(r, maxResults) },
	}}
}

func (p *Pipeline) Apply(records []models.Listing, criteria models.SearchCriteria) []models.Listing {
	out := records
	for _, step := range p.steps {
		out = step(out, criteria)
	}
	if out == nil {
		out = []models.Listing{}
	}
	return out
}

// FilterAreas keeps records whose area equals a requested area or whose
// title mentions one. Comparison ignores case and accents. No areas keeps
// everything.
func FilterAreas(records []models.Listing, areas []string) []models.Listing {
	wanted := make([]string, 0, len(areas))
	for _, a := range areas {
		if f := strings.TrimSpace(scraper.Fold(a)); f != "" {
			wanted = append(wanted, f)
		}
	}
	if len(wanted) == 0 {
		return clone(records)
	}

	return filter(records, func(l models.Listing) bool {
		area := strings.TrimSpace(scraper.Fold(l.Area))
		title := scraper.Fold(l.Title)
		for _, w := range wanted {
			if area == w || strings.Contains(title, w) {
				return true
			}
		}
		return false
	})
}

func FilterOwner(records []models.Listing, ownerOnly bool) []models.Listing {
	if !ownerOnly {
		return clone(records)
	}
	return filter(records, func(l models.Listing) bool { return l.IsOwner })
}

// FilterMaxPrice keeps records at or below maxPerM2 plus a 10% band. Zero
// disables the filter.
func FilterMaxPrice(records []models.Listing, maxPerM2 float64) []models.Listing {
	if maxPerM2 <= 0 {
		return clone(records)
	}
	limit := maxPerM2 * priceTolerance
	return filter(records, func(l models.Listing) bool { return l.PricePerM2 <= limit })
}

// Dedupe drops records whose normalized title was already seen.
func Dedupe(records []models.Listing) []models.Listing {
	seen := make(map[string]bool, len(records))
	return filter(records, func(l models.Listing) bool {
		key := DedupeKey(l.Title)
		if seen[key] {
			return false
		}
		seen[key] = true
		return true
	})
}

// DedupeKey lowercases title, strips punctuation and symbols and keeps the
// first 50 runes.
func DedupeKey(title string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.ToLower(title) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		if n == dedupeKeyRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

func SortByPricePerM2(records []models.Listing) []models.Listing {
	out := clone(records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PricePerM2 < out[j].PricePerM2
	})
	return out
}

func Truncate(records []models.Listing, max int) []models.Listing {
	if max < 0 || len(records) <= max {
		return clone(records)
	}
	return clone(records[:max])
}

func filter(records []models.Listing, keep func(models.Listing) bool) []models.Listing {
	out := make([]models.Listing, 0, len(records))
	for _, l := range records {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func clone(records []models.Listing) []models.Listing {
	out := make([]models.Listing, len(records))
	copy(out, records)
	return out
}

package scraper

import (
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"property-scraper/models"

	"github.com/PuerkitoBio/goquery"
)

const maxTitleLength = 100

var priceNumber = regexp.MustCompile(`[\d.,]+`)

// ParseResult is the outcome of reading one results page.
type ParseResult struct {
	Listings []models.Listing
	Strategy string
	Skipped  []error
}

// ParseListings reads listing cards from html using def's strategy chain.
// Elements missing a title, link or price are skipped and reported in
// Skipped as *models.ExtractionError.
func ParseListings(html string, def Definition, criteria models.SearchCriteria, now time.Time) (ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ParseResult{}, fmt.Errorf("parse %s markup: %w", def.Source, err)
	}

	var (
		result ParseResult
		cards  *goquery.Selection
		strat  Strategy
	)
	for _, s := range def.Strategies {
		if found := doc.Find(s.Container); found.Length() > 0 {
			cards, strat = found, s
			break
		}
	}
	if cards == nil {
		return result, nil
	}
	result.Strategy = strat.Name

	limit := cards.Length()
	if def.MaxItems > 0 && limit > def.MaxItems {
		limit = def.MaxItems
	}

	scoped := ""
	if def.ScopedArea != nil {
		scoped = def.ScopedArea(criteria)
	}

	cards.Slice(0, limit).Each(func(i int, card *goquery.Selection) {
		listing, reason := parseCard(card, strat, def, criteria.Areas, scoped, now)
		if reason != "" {
			result.Skipped = append(result.Skipped, &models.ExtractionError{Source: def.Source, Index: i, Reason: reason})
			return
		}
		result.Listings = append(result.Listings, listing)
	})
	return result, nil
}

func parseCard(card *goquery.Selection, strat Strategy, def Definition, requested []string, scoped string, now time.Time) (models.Listing, string) {
	titleSel := firstMatch(card, strat.Title)
	if titleSel == nil {
		return models.Listing{}, "no title element"
	}
	title := collapseSpace(titleSel.Text())
	if title == "" {
		return models.Listing{}, "empty title"
	}

	href := linkFor(card, titleSel, strat.Link)
	if href == "" {
		return models.Listing{}, "no link"
	}
	link, err := absolutize(def.BaseURL, href)
	if err != nil {
		return models.Listing{}, "bad link " + href
	}

	priceSel := firstMatch(card, strat.Price)
	if priceSel == nil {
		return models.Listing{}, "no price element"
	}
	price, ok := ParsePrice(priceSel.Text(), def.ScaleThousands)
	if !ok {
		return models.Listing{}, "unreadable price " + strconv.Quote(collapseSpace(priceSel.Text()))
	}

	area, found := InferArea(title, requested)
	if !found {
		area = scoped
	}
	if area == "" {
		area = DefaultArea
	}

	return models.NewListing(models.ListingInput{
		Title:            truncateRunes(title, maxTitleLength),
		URL:              link,
		TotalPrice:       price,
		Surface:          SynthesizeSurface(def.SurfaceMin, def.SurfaceMax),
		SurfaceEstimated: true,
		Source:           def.Source,
		Area:             area,
		IsOwner:          IsOwnerListing(title),
		PublishedAt:      now,
		ScrapedAt:        now,
	}), ""
}

func firstMatch(card *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := card.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func linkFor(card, titleSel *goquery.Selection, linkSelectors []string) string {
	if len(linkSelectors) > 0 {
		if sel := firstMatch(card, linkSelectors); sel != nil {
			return strings.TrimSpace(sel.AttrOr("href", ""))
		}
		return ""
	}
	if href, ok := titleSel.Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	if inner := titleSel.Find("a[href]").First(); inner.Length() > 0 {
		return strings.TrimSpace(inner.AttrOr("href", ""))
	}
	if outer := titleSel.Closest("a[href]"); outer.Length() > 0 {
		return strings.TrimSpace(outer.AttrOr("href", ""))
	}
	return ""
}

func absolutize(base, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() || base == "" {
		return ref.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}

// ParsePrice extracts the first number in text, dropping thousands
// separators. With scaleThousands, values under 1000 are read as thousands.
func ParsePrice(text string, scaleThousands bool) (float64, bool) {
	raw := priceNumber.FindString(text)
	if raw == "" {
		return 0, false
	}
	digits := strings.NewReplacer(".", "", ",", "").Replace(raw)
	if digits == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(digits, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	if scaleThousands && value < 1000 {
		value *= 1000
	}
	return value, true
}

// SynthesizeSurface returns a whole number of m² in [min, max).
func SynthesizeSurface(min, max float64) float64 {
	if max <= min {
		return math.Round(min)
	}
	return math.Floor(min + rand.Float64()*(max-min))
}

func IsOwnerListing(title string) bool {
	t := strings.ToLower(title)
	return strings.Contains(t, "dueño") || strings.Contains(t, "dueno")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

package zonaprop

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"property-scraper/models"
	"property-scraper/scraper"
)

const (
	siteURL   = "https://www.zonaprop.com.ar"
	searchURL = siteURL + "/venta/departamento/capital-federal"

	// Zonaprop filters on total price; the per-m² cap is converted with an
	// assumed 80 m² apartment.
	assumedSurface = 80
)

// localidades maps area names to Zonaprop's localidad ids.
var localidades = map[string]string{
	"palermo":       "palermo",
	"belgrano":      "belgrano",
	"recoleta":      "recoleta",
	"puerto madero": "puerto-madero",
	"san telmo":     "san-telmo",
	"villa crespo":  "villa-crespo",
	"caballito":     "caballito",
	"flores":        "flores",
	"almagro":       "almagro",
}

func Definition() scraper.Definition {
	return scraper.Definition{
		Source:        models.SourceZonaprop,
		BaseURL:       siteURL,
		SearchURL:     SearchURL,
		ScopedArea:    scopedArea,
		ReadySelector: `[data-qa="posting PROPERTY"], .list-card-container`,
		Strategies: []scraper.Strategy{
			{
				Name:      "posting-data-qa",
				Container: `[data-qa="posting PROPERTY"]`,
				Title:     []string{`[data-qa="POSTING_TITLE_LINK"]`, "h2 a", "h3 a"},
				Price:     []string{`[data-qa="POSTING_CARD_PRICE"]`, ".price"},
			},
			{
				Name:      "list-card",
				Container: ".list-card-container",
				Title:     []string{".list-card-title a", "h2 a", "h3 a"},
				Price:     []string{".list-card-price", ".price"},
			},
			{
				Name:      "posting-card",
				Container: ".posting-card, .property-card",
				Title:     []string{`[data-qa="POSTING_TITLE_LINK"]`, "h2 a", "h3 a", "a[href*='/propiedades/']"},
				Price:     []string{`[data-qa="POSTING_CARD_PRICE"]`, ".price", "[class*='price']"},
			},
			{
				Name:      "testid-card",
				Container: `[data-testid="posting-card"]`,
				Title:     []string{"h2", "h3", "a[href*='/propiedades/']"},
				Link:      []string{"a[href*='/propiedades/']", "a[href]"},
				Price:     []string{"[class*='price']", "[data-testid*='price']"},
			},
		},
		MaxItems:       20,
		SettleMin:      2 * time.Second,
		SettleMax:      4 * time.Second,
		BackoffBase:    2 * time.Second,
		SurfaceMin:     40,
		SurfaceMax:     100,
		ScaleThousands: true,
	}
}

// SearchURL builds the results URL for the mapped areas and price cap.
func SearchURL(c models.SearchCriteria) string {
	params := url.Values{}
	if slugs := mappedAreas(c.Areas); len(slugs) > 0 {
		params.Set("localidad", strings.Join(slugs, ","))
	}
	if c.MaxPricePerM2 > 0 {
		params.Set("precio-maximo", strconv.FormatFloat(c.MaxPricePerM2*assumedSurface, 'f', 0, 64))
	}
	if len(params) == 0 {
		return searchURL
	}
	return searchURL + "?" + params.Encode()
}

func mappedAreas(areas []string) []string {
	var slugs []string
	for _, area := range areas {
		if slug, ok := localidades[strings.ToLower(strings.TrimSpace(area))]; ok {
			slugs = append(slugs, slug)
		}
	}
	return slugs
}

// scopedArea is set only when the search was narrowed to a single area.
func scopedArea(c models.SearchCriteria) string {
	if len(c.Areas) == 1 && len(mappedAreas(c.Areas)) == 1 {
		return strings.TrimSpace(c.Areas[0])
	}
	return ""
}

func New(opts scraper.AdapterOptions) *scraper.BrowserAdapter {
	return scraper.NewBrowserAdapter(Definition(), opts)
}

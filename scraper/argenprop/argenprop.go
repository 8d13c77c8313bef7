package argenprop

import (
	"net/url"
	"strings"
	"time"

	"property-scraper/models"
	"property-scraper/scraper"
)

const (
	siteURL   = "https://www.argenprop.com"
	searchURL = siteURL + "/venta/departamento/capital-federal"
)

func Definition() scraper.Definition {
	return scraper.Definition{
		Source:        models.SourceArgenprop,
		BaseURL:       siteURL,
		SearchURL:     SearchURL,
		ScopedArea:    firstArea,
		ReadySelector: ".property-item, .listing-item, .card-property",
		Strategies: []scraper.Strategy{
			{
				Name:      "listing-item",
				Container: ".listing__item",
				Title:     []string{".card__title", "h2", "h3"},
				Link:      []string{"a.card", "a[href]"},
				Price:     []string{".card__price", ".price"},
			},
			{
				Name:      "property-item",
				Container: ".property-item",
				Title:     []string{"h2 a", "h3 a", ".title a"},
				Price:     []string{".price", ".property-price"},
			},
			{
				Name:      "legacy-listing-item",
				Container: ".listing-item, .card-property",
				Title:     []string{"h2 a", "h3 a", ".title a"},
				Price:     []string{".price", ".property-price"},
			},
			{
				Name:      "resultado-item",
				Container: ".resultado-item",
				Title:     []string{"h2 a", "h3 a", ".title a", "a[href]"},
				Price:     []string{".price", ".property-price", "[class*='precio']"},
			},
		},
		MaxItems:       15,
		SettleMin:      3 * time.Second,
		SettleMax:      5 * time.Second,
		BackoffBase:    3 * time.Second,
		SurfaceMin:     45,
		SurfaceMax:     105,
		ScaleThousands: true,
	}
}

// SearchURL scopes the search to the first requested area; Argenprop only
// accepts one localidad per query.
func SearchURL(c models.SearchCriteria) string {
	area := firstArea(c)
	if area == "" {
		return searchURL
	}
	params := url.Values{}
	params.Set("localidad", scraper.Slug(area))
	return searchURL + "?" + params.Encode()
}

func firstArea(c models.SearchCriteria) string {
	for _, a := range c.Areas {
		if a = strings.TrimSpace(a); a != "" {
			return a
		}
	}
	return ""
}

func New(opts scraper.AdapterOptions) *scraper.BrowserAdapter {
	return scraper.NewBrowserAdapter(Definition(), opts)
}

package mercadolibre

import (
	"strings"
	"time"

	"property-scraper/models"
	"property-scraper/scraper"
)

const (
	siteURL   = "https://inmuebles.mercadolibre.com.ar"
	searchURL = siteURL + "/departamentos/venta/capital-federal/"
)

func Definition() scraper.Definition {
	return scraper.Definition{
		Source:        models.SourceMercadoLibre,
		BaseURL:       siteURL,
		SearchURL:     SearchURL,
		ScopedArea:    firstArea,
		ReadySelector: ".ui-search-results, .results-item",
		Strategies: []scraper.Strategy{
			{
				Name:      "ui-search-layout",
				Container: ".ui-search-layout__item",
				Title:     []string{".poly-component__title", ".ui-search-item__title"},
				Link:      []string{"a.poly-component__title", ".ui-search-link", "a[href]"},
				Price:     []string{".andes-money-amount__fraction", ".price-tag-fraction", ".ui-search-price"},
			},
			{
				Name:      "ui-search-result",
				Container: ".ui-search-result",
				Title:     []string{".ui-search-item__title", ".item-title"},
				Link:      []string{".ui-search-result__content a", ".ui-search-link", "a[href]"},
				Price:     []string{".price-tag", ".ui-search-price"},
			},
			{
				Name:      "results-item",
				Container: ".results-item, .item",
				Title:     []string{".item-title", ".ui-search-item__title", "h2"},
				Link:      []string{".item-title a", "a[href]"},
				Price:     []string{".price-tag", ".item-price", ".price"},
			},
		},
		MaxItems:    15,
		SettleMin:   2500 * time.Millisecond,
		SettleMax:   4500 * time.Millisecond,
		BackoffBase: 4 * time.Second,
		SurfaceMin:  35,
		SurfaceMax:  95,
		// Prices here are published in full.
		ScaleThousands: false,
	}
}

// SearchURL puts the first requested area in the path.
func SearchURL(c models.SearchCriteria) string {
	area := firstArea(c)
	if area == "" {
		return searchURL
	}
	return searchURL + scraper.Slug(area) + "/"
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

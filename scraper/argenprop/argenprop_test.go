package argenprop

import (
	"testing"
	"time"

	"property-scraper/models"
	"property-scraper/scraper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchURL(t *testing.T) {
	assert.Equal(t, searchURL, SearchURL(models.SearchCriteria{}))
	assert.Equal(t, searchURL+"?localidad=villa-crespo", SearchURL(models.SearchCriteria{Areas: []string{"", "Villa Crespo", "Palermo"}}))
}

func TestDefinitionFallsBackToLegacyCards(t *testing.T) {
	markup := `
<div class="listing-item">
  <h3><a href="/departamento-en-venta-en-caballito-3-ambientes--1001">Departamento en Caballito 3 ambientes</a></h3>
  <p class="price">USD 135.000</p>
</div>
<div class="card-property">
  <h2><a href="/ph-en-venta--1002">PH reciclado con patio</a></h2>
  <p class="property-price">USD 140</p>
</div>`

	result, err := scraper.ParseListings(markup, Definition(), models.SearchCriteria{Areas: []string{"Barracas"}}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "legacy-listing-item", result.Strategy)
	require.Len(t, result.Listings, 2)
	assert.Equal(t, "Caballito", result.Listings[0].Area)
	assert.Equal(t, "Barracas", result.Listings[1].Area)
	assert.Equal(t, float64(140000), result.Listings[1].TotalPrice)
	assert.Equal(t, siteURL+"/ph-en-venta--1002", result.Listings[1].URL)
}

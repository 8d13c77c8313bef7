package scraper

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultArea is used when no area can be inferred.
const DefaultArea = "CABA"

// Gazetteer lists the Buenos Aires neighbourhoods recognised in titles.
var Gazetteer = []string{
	"Palermo",
	"Belgrano",
	"Recoleta",
	"Puerto Madero",
	"San Telmo",
	"Villa Crespo",
	"Caballito",
	"Flores",
	"Almagro",
	"Barracas",
	"Núñez",
	"Colegiales",
	"Villa Urquiza",
	"Balvanera",
	"Boedo",
	"Chacarita",
	"Saavedra",
	"Retiro",
}

// InferArea matches the title against the requested areas first, then the
// gazetteer.
func InferArea(title string, requested []string) (string, bool) {
	folded := Fold(title)
	for _, area := range requested {
		if a := strings.TrimSpace(area); a != "" && strings.Contains(folded, Fold(a)) {
			return a, true
		}
	}
	for _, area := range Gazetteer {
		if strings.Contains(folded, Fold(area)) {
			return area, true
		}
	}
	return "", false
}

// Fold lower-cases s and strips diacritics so "Núñez" matches "nunez".
func Fold(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		if r >= 0x300 && r <= 0x36f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Slug turns an area name into a URL path segment: "Villa Crespo" -> "villa-crespo".
func Slug(area string) string {
	return strings.Join(strings.Fields(Fold(area)), "-")
}

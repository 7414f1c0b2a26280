package domain

import (
	"math/rand"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StyleNone is the sentinel meaning "no explicit style chosen". Confirming it
// resolves to a uniformly-chosen concrete style from the catalog.
const StyleNone = "None"

// PrimaryStyles are always visible in the selection panel; StyleNone leads.
var PrimaryStyles = []string{StyleNone, "Photorealistic", "Anime", "Cartoon", "Cinematic"}

// SecondaryStyles are revealed behind the "More..." toggle.
var SecondaryStyles = []string{
	"Oil Painting", "Cyberpunk", "Steampunk", "Watercolor", "Low Poly", "Art Deco",
	"Impressionism", "Minimalist", "Vaporwave", "Gothic", "Fantasy Art",
}

// StyleCatalog returns every concrete style, sentinel excluded.
func StyleCatalog() []string {
	catalog := make([]string, 0, len(PrimaryStyles)+len(SecondaryStyles)-1)
	for _, s := range PrimaryStyles {
		if s != StyleNone {
			catalog = append(catalog, s)
		}
	}
	catalog = append(catalog, SecondaryStyles...)
	return catalog
}

// ResolveStyle maps the selected style to a concrete one. The sentinel is
// replaced by a uniformly-random pick from the catalog; anything else is
// returned as-is. The rng is injected so resolution is deterministic in tests.
func ResolveStyle(selected string, catalog []string, rng *rand.Rand) string {
	if selected != StyleNone || len(catalog) == 0 {
		return selected
	}
	return catalog[rng.Intn(len(catalog))]
}

// NormalizeStyle title-cases free-form style input so it lines up with the
// catalog spelling. Unknown styles pass through normalized; empty input maps
// to the sentinel.
func NormalizeStyle(style string) string {
	style = strings.TrimSpace(style)
	if style == "" {
		return StyleNone
	}
	c := cases.Title(language.Und)
	normalized := c.String(strings.ToLower(style))
	for _, s := range PrimaryStyles {
		if strings.EqualFold(s, normalized) {
			return s
		}
	}
	for _, s := range SecondaryStyles {
		if strings.EqualFold(s, normalized) {
			return s
		}
	}
	return normalized
}

// Package geo resolves free-text locations against the country taxonomy used
// for intake validation and geographic matching.
package geo

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NotSpecified is stored for location parts that could not be resolved.
const NotSpecified = "Not specified"

// Confidence describes how much of a location was resolved.
type Confidence string

const (
	ConfidenceHigh Confidence = "high" // city and country resolved
	ConfidenceLow  Confidence = "low"  // something was missing or unknown
)

// Proximity ranks how close two locations are.
type Proximity int

const (
	ProximityNone Proximity = iota
	ProximityContinent
	ProximityCountry
	ProximityCity
)

func (p Proximity) String() string {
	switch p {
	case ProximityCity:
		return "city"
	case ProximityCountry:
		return "country"
	case ProximityContinent:
		return "continent"
	default:
		return "none"
	}
}

// Location is a resolved place.
type Location struct {
	City        string     `json:"city" yaml:"city"`
	Country     string     `json:"country" yaml:"country"`
	CountryCode string     `json:"countryCode,omitempty" yaml:"countryCode,omitempty"`
	Continent   string     `json:"continent,omitempty" yaml:"continent,omitempty"`
	Confidence  Confidence `json:"confidence,omitempty" yaml:"-"`
}

// Known reports whether the country resolved against the taxonomy.
func (l Location) Known() bool {
	return l.CountryCode != ""
}

// Country is one taxonomy entry.
type Country struct {
	Code      string
	Name      string
	Continent string
	Aliases   []string
}

// Taxonomy indexes countries by every accepted spelling.
type Taxonomy struct {
	byKey map[string]Country
}

// NewTaxonomy builds a taxonomy from entries.
func NewTaxonomy(countries []Country) *Taxonomy {
	t := &Taxonomy{byKey: make(map[string]Country, len(countries)*3)}
	for _, c := range countries {
		t.byKey[Fold(c.Code)] = c
		t.byKey[Fold(c.Name)] = c
		for _, alias := range c.Aliases {
			t.byKey[Fold(alias)] = c
		}
	}
	return t
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	return NewTaxonomy(defaultCountries)
}

// LookupCountry finds a country by name, ISO code or alias.
func (t *Taxonomy) LookupCountry(input string) (Country, bool) {
	c, ok := t.byKey[Fold(input)]
	return c, ok
}

// Resolve canonicalizes a (city, country) pair. Unknown parts are kept as
// NotSpecified and lower the confidence; resolution never fails.
func (t *Taxonomy) Resolve(city, country string) Location {
	loc := Location{City: NotSpecified, Country: NotSpecified, Confidence: ConfidenceLow}

	if c, ok := t.LookupCountry(country); ok {
		loc.Country = c.Name
		loc.CountryCode = c.Code
		loc.Continent = c.Continent
	}

	cleanedCity := strings.Join(strings.Fields(city), " ")
	if cleanedCity != "" && !strings.EqualFold(cleanedCity, NotSpecified) {
		// Casers are stateful, so one per call.
		loc.City = cases.Title(language.Und).String(cleanedCity)
	}

	if loc.Known() && loc.City != NotSpecified {
		loc.Confidence = ConfidenceHigh
	}
	return loc
}

// Compare returns the closest shared level between a and b.
func Compare(a, b Location) Proximity {
	if a.CountryCode == "" || b.CountryCode == "" {
		return ProximityNone
	}
	if a.CountryCode == b.CountryCode {
		if a.City != NotSpecified && b.City != NotSpecified && Fold(a.City) == Fold(b.City) {
			return ProximityCity
		}
		return ProximityCountry
	}
	if a.Continent != "" && a.Continent == b.Continent {
		return ProximityContinent
	}
	return ProximityNone
}

// Best returns the closest proximity between target and any of candidates.
func Best(target Location, candidates []Location) (Proximity, Location) {
	best := ProximityNone
	var at Location
	for _, c := range candidates {
		if p := Compare(target, c); p > best {
			best, at = p, c
			if best == ProximityCity {
				break
			}
		}
	}
	return best, at
}

// Fold lowercases, trims and strips diacritics so "Düsseldorf" == "dusseldorf".
func Fold(s string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(folder, strings.TrimSpace(s))
	if err != nil {
		out = strings.TrimSpace(s)
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}

// Package location assigns a country and continent to a session. Resolution
// is simulated, not authoritative: strategies draw from a weighted table,
// from the runtime timezone, or optionally from a GeoLite2 database.
package location

import (
	"context"
	"sync"

	"github.com/pariz/gountries"
)

// Continent names form a closed enumeration; aggregate records carry a
// counter for each of these even at zero.
const (
	ContinentNorthAmerica = "North America"
	ContinentSouthAmerica = "South America"
	ContinentEurope       = "Europe"
	ContinentAsia         = "Asia"
	ContinentAfrica       = "Africa"
	ContinentAustralia    = "Australia"
	ContinentAntarctica   = "Antarctica"
)

// Continents lists every continent key in canonical order.
var Continents = []string{
	ContinentNorthAmerica,
	ContinentSouthAmerica,
	ContinentEurope,
	ContinentAsia,
	ContinentAfrica,
	ContinentAustralia,
	ContinentAntarctica,
}

// Location is a resolved country/continent pair.
type Location struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Continent string `json:"continent"`
}

// Resolver assigns a location to a session. The second return value is
// false when no location could be resolved; unresolved sessions do not
// increment any geographic counter.
type Resolver interface {
	Resolve(ctx context.Context) (Location, bool)
}

var (
	countryQueryOnce sync.Once
	countryQuery     *gountries.Query
)

// CountryName resolves an ISO alpha-2 code to a display name via the
// gountries dataset, falling back to the code itself when unknown.
func CountryName(code string) string {
	countryQueryOnce.Do(func() {
		countryQuery = gountries.New()
	})
	country, err := countryQuery.FindCountryByAlpha(code)
	if err != nil {
		return code
	}
	return country.Name.Common
}

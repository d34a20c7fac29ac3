package location

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// WeightedCountry is one entry in the weighted draw table.
type WeightedCountry struct {
	Code      string
	Continent string
	Weight    int
}

// DefaultWeights is the stock distribution used when no table is supplied.
var DefaultWeights = []WeightedCountry{
	{Code: "US", Continent: ContinentNorthAmerica, Weight: 30},
	{Code: "IN", Continent: ContinentAsia, Weight: 25},
	{Code: "GB", Continent: ContinentEurope, Weight: 10},
	{Code: "CA", Continent: ContinentNorthAmerica, Weight: 8},
	{Code: "AU", Continent: ContinentAustralia, Weight: 7},
	{Code: "DE", Continent: ContinentEurope, Weight: 5},
	{Code: "FR", Continent: ContinentEurope, Weight: 4},
	{Code: "JP", Continent: ContinentAsia, Weight: 3},
	{Code: "BR", Continent: ContinentSouthAmerica, Weight: 3},
	{Code: "MX", Continent: ContinentNorthAmerica, Weight: 2},
	{Code: "PH", Continent: ContinentAsia, Weight: 2},
	{Code: "ZA", Continent: ContinentAfrica, Weight: 1},
}

// WeightedResolver draws a country proportional to its weight using
// cumulative-sum inversion against a uniform random draw.
type WeightedResolver struct {
	countries   []WeightedCountry
	totalWeight int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewWeightedResolver creates a resolver over the given table. A nil or
// empty table falls back to DefaultWeights; entries with non-positive
// weight are dropped.
func NewWeightedResolver(countries []WeightedCountry) *WeightedResolver {
	if len(countries) == 0 {
		countries = DefaultWeights
	}

	r := &WeightedResolver{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, c := range countries {
		if c.Weight <= 0 {
			continue
		}
		r.countries = append(r.countries, c)
		r.totalWeight += c.Weight
	}
	return r
}

// Resolve draws one country from the table.
func (r *WeightedResolver) Resolve(ctx context.Context) (Location, bool) {
	if r.totalWeight == 0 {
		return Location{}, false
	}

	r.mu.Lock()
	draw := r.rnd.Float64() * float64(r.totalWeight)
	r.mu.Unlock()

	cumulative := 0
	for _, c := range r.countries {
		cumulative += c.Weight
		if draw <= float64(cumulative) {
			return Location{Code: c.Code, Name: CountryName(c.Code), Continent: c.Continent}, true
		}
	}

	// Float edge: draw == totalWeight lands past the last bucket.
	last := r.countries[len(r.countries)-1]
	return Location{Code: last.Code, Name: CountryName(last.Code), Continent: last.Continent}, true
}

package location

import (
	"context"
	"time"
)

// timezoneTable maps IANA timezone identifiers to countries. The table is
// deliberately small: it covers the zones the weighted table's countries
// resolve to plus a few common aliases. Unlisted zones stay unresolved.
var timezoneTable = map[string]struct {
	Code      string
	Continent string
}{
	"America/New_York":    {"US", ContinentNorthAmerica},
	"America/Chicago":     {"US", ContinentNorthAmerica},
	"America/Denver":      {"US", ContinentNorthAmerica},
	"America/Los_Angeles": {"US", ContinentNorthAmerica},
	"America/Phoenix":     {"US", ContinentNorthAmerica},
	"America/Toronto":     {"CA", ContinentNorthAmerica},
	"America/Vancouver":   {"CA", ContinentNorthAmerica},
	"America/Mexico_City": {"MX", ContinentNorthAmerica},
	"America/Sao_Paulo":   {"BR", ContinentSouthAmerica},
	"Europe/London":       {"GB", ContinentEurope},
	"Europe/Berlin":       {"DE", ContinentEurope},
	"Europe/Paris":        {"FR", ContinentEurope},
	"Europe/Madrid":       {"ES", ContinentEurope},
	"Europe/Rome":         {"IT", ContinentEurope},
	"Asia/Kolkata":        {"IN", ContinentAsia},
	"Asia/Calcutta":       {"IN", ContinentAsia},
	"Asia/Tokyo":          {"JP", ContinentAsia},
	"Asia/Shanghai":       {"CN", ContinentAsia},
	"Asia/Manila":         {"PH", ContinentAsia},
	"Asia/Singapore":      {"SG", ContinentAsia},
	"Asia/Seoul":          {"KR", ContinentAsia},
	"Africa/Johannesburg": {"ZA", ContinentAfrica},
	"Africa/Lagos":        {"NG", ContinentAfrica},
	"Africa/Cairo":        {"EG", ContinentAfrica},
	"Australia/Sydney":    {"AU", ContinentAustralia},
	"Australia/Melbourne": {"AU", ContinentAustralia},
	"Pacific/Auckland":    {"NZ", ContinentAustralia},
}

// TimezoneResolver maps the runtime's resolved timezone identifier to a
// country through a static lookup table.
type TimezoneResolver struct {
	zone string
}

// NewTimezoneResolver creates a resolver for the given IANA zone name. An
// empty name uses the process-local timezone.
func NewTimezoneResolver(zone string) *TimezoneResolver {
	if zone == "" {
		zone = time.Local.String()
	}
	return &TimezoneResolver{zone: zone}
}

// Resolve looks the zone up in the static table. Unknown zones resolve to
// nothing rather than to a guess.
func (r *TimezoneResolver) Resolve(ctx context.Context) (Location, bool) {
	entry, ok := timezoneTable[r.zone]
	if !ok {
		return Location{}, false
	}
	return Location{Code: entry.Code, Name: CountryName(entry.Code), Continent: entry.Continent}, true
}

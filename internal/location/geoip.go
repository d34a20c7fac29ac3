package location

import (
	"context"
	"log/slog"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// geoip2 continent names, mapped onto the closed enumeration. GeoLite2
// labels the AU landmass "Oceania".
var geoContinents = map[string]string{
	"North America": ContinentNorthAmerica,
	"South America": ContinentSouthAmerica,
	"Europe":        ContinentEurope,
	"Asia":          ContinentAsia,
	"Africa":        ContinentAfrica,
	"Oceania":       ContinentAustralia,
	"Antarctica":    ContinentAntarctica,
}

type ipContextKey struct{}

// WithClientIP returns a context carrying the request's client IP for the
// GeoIP resolver.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipContextKey{}, ip)
}

// ClientIPFromContext extracts an IP stored with WithClientIP.
func ClientIPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ipContextKey{}).(string)
	return ip, ok
}

// GeoIPResolver resolves the session's country from the client IP using a
// GeoLite2 database. GeoIP is optional: a resolver without a database, or a
// request without a usable IP, resolves to nothing.
type GeoIPResolver struct {
	reader *geoip2.Reader
	logger *slog.Logger
}

// NewGeoIPResolver opens the GeoLite2 database at path. A missing or
// unreadable database is not an error; the resolver is returned disabled.
func NewGeoIPResolver(path string, logger *slog.Logger) *GeoIPResolver {
	r := &GeoIPResolver{logger: logger}

	if path == "" {
		logger.Debug("GeoIP database path not configured - GeoIP resolution disabled")
		return r
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("GeoLite2 database not found - GeoIP resolution disabled",
			slog.String("path", path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return r
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		logger.Error("Failed to open GeoLite2 database",
			slog.String("path", path),
			slog.Any("error", err))
		return r
	}

	logger.Info("GeoLite2 database initialized", slog.String("path", path))
	r.reader = reader
	return r
}

// Resolve looks up the client IP carried in ctx.
func (r *GeoIPResolver) Resolve(ctx context.Context) (Location, bool) {
	if r.reader == nil {
		return Location{}, false
	}

	raw, ok := ClientIPFromContext(ctx)
	if !ok {
		return Location{}, false
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return Location{}, false
	}

	record, err := r.reader.Country(ip)
	if err != nil || record.Country.IsoCode == "" {
		return Location{}, false
	}

	continent, ok := geoContinents[record.Continent.Names["en"]]
	if !ok {
		return Location{}, false
	}

	return Location{
		Code:      record.Country.IsoCode,
		Name:      CountryName(record.Country.IsoCode),
		Continent: continent,
	}, true
}

// Close releases the GeoLite2 reader.
func (r *GeoIPResolver) Close() {
	if r.reader != nil {
		r.reader.Close()
	}
}

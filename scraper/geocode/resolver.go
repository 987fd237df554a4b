package geocode

import (
	"context"

	"property-scraper/models"
	"property-scraper/utils"
)

// Location is a resolved position and where it came from.
type Location struct {
	Lat              float64
	Lon              float64
	Source           string
	FormattedAddress string
}

// Resolver applies the fallback order geocoder, gazetteer, capital. The
// geocoder is optional.
type Resolver struct {
	geocoder  Geocoder
	gazetteer *Gazetteer
	logger    *utils.Logger
}

// NewResolver creates a Resolver. A nil geocoder skips straight to the
// gazetteer.
func NewResolver(g Geocoder, gz *Gazetteer, logger *utils.Logger) *Resolver {
	if gz == nil {
		gz = TunisiaGazetteer()
	}
	return &Resolver{geocoder: g, gazetteer: gz, logger: logger}
}

// ResolveAddress finds a position for address. Gazetteer names are tried
// against the district, then the city, then the whole address. It always
// returns a location; geocoder failures are logged and absorbed.
func (r *Resolver) ResolveAddress(ctx context.Context, address, district, city string) Location {
	if r.geocoder != nil && address != "" {
		res, err := r.geocoder.Geocode(ctx, address)
		switch {
		case err != nil:
			r.logger.Warn("[geocode] %q: %v, using gazetteer", address, err)
		case res != nil && validCoordinates(res.Lat, res.Lon):
			formatted := res.FormattedAddress
			if formatted == "" {
				formatted = address
			}
			return Location{Lat: res.Lat, Lon: res.Lon, Source: models.GeoSourceGeocoder, FormattedAddress: formatted}
		default:
			r.logger.Debug("[geocode] no geocoder result for %q", address)
		}
	}

	for _, text := range []string{district, city, address} {
		if p, ok := r.gazetteer.Lookup(text); ok {
			return Location{Lat: p.Lat, Lon: p.Lon, Source: models.GeoSourceGazetteer, FormattedAddress: address}
		}
	}

	c := r.gazetteer.Capital()
	return Location{Lat: c.Lat, Lon: c.Lon, Source: models.GeoSourceDefault, FormattedAddress: address}
}

// Resolve fills the record's coordinates unless they are already set,
// normally from the page script.
func (r *Resolver) Resolve(ctx context.Context, rec *models.PropertyRecord) {
	if rec.HasCoordinates() {
		if rec.FormattedAddress == "" {
			rec.FormattedAddress = rec.FullAddress
		}
		return
	}
	loc := r.ResolveAddress(ctx, rec.FullAddress, rec.District, rec.City)
	rec.Latitude, rec.Longitude = loc.Lat, loc.Lon
	rec.GeoSource = loc.Source
	rec.FormattedAddress = loc.FormattedAddress
}

func validCoordinates(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

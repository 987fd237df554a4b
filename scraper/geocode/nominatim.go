package geocode

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Result is a geocoder hit.
type Result struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
}

// Geocoder is the external address lookup. A nil Result with a nil error
// means no match.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Result, error)
}

// NominatimOptions configures a Nominatim client.
type NominatimOptions struct {
	BaseURL      string
	UserAgent    string
	Timeout      time.Duration
	RPS          float64
	CountryCodes string
}

// Nominatim queries an OpenStreetMap Nominatim search endpoint.
type Nominatim struct {
	client       *resty.Client
	limiter      *rate.Limiter
	countryCodes string
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewNominatim creates a client. The public service allows one request per
// second, which is the default rate.
func NewNominatim(opts NominatimOptions) *Nominatim {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 1
	}
	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(opts.Timeout)
	client.SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	return &Nominatim{
		client:       client,
		limiter:      rate.NewLimiter(rate.Limit(opts.RPS), 1),
		countryCodes: opts.CountryCodes,
	}
}

func (n *Nominatim) Geocode(ctx context.Context, address string) (*Result, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := map[string]string{
		"q":      address,
		"format": "jsonv2",
		"limit":  "1",
	}
	if n.countryCodes != "" {
		params["countrycodes"] = n.countryCodes
	}

	var places []nominatimPlace
	res, err := n.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&places).
		Get("/search")
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	if res.IsError() {
		return nil, eris.Errorf("geocode: nominatim returned status %d", res.StatusCode())
	}
	if len(places) == 0 {
		return nil, nil
	}

	lat, err1 := strconv.ParseFloat(places[0].Lat, 64)
	lon, err2 := strconv.ParseFloat(places[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return nil, eris.Errorf("geocode: nominatim returned unparsable position %q,%q", places[0].Lat, places[0].Lon)
	}
	return &Result{Lat: lat, Lon: lon, FormattedAddress: places[0].DisplayName}, nil
}

package models

import "time"

// Geo sources recorded on a PropertyRecord.
const (
	GeoSourcePageScript = "page_script"
	GeoSourceGeocoder   = "geocoder"
	GeoSourceGazetteer  = "gazetteer"
	GeoSourceDefault    = "default"
)

// PropertyRecord is one listing's normalized data. It is created when a
// candidate URL is opened, filled in by the resolver stages and never
// mutated after it has been emitted.
type PropertyRecord struct {
	ID         string `json:"id"`
	SourceURL  string `json:"source_url"`
	SourceSite string `json:"source_site"`

	Title           string `json:"title"`
	Description     string `json:"description"`
	PriceRaw        string `json:"price_raw"`
	PriceNormalized int64  `json:"price_normalized"`

	LocationRaw      string  `json:"location_raw"`
	District         string  `json:"district"`
	City             string  `json:"city"`
	FullAddress      string  `json:"full_address"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	FormattedAddress string  `json:"formatted_address"`
	GeoSource        string  `json:"geo_source"`

	// Zero means unknown for the characteristics below.
	Surface   float64 `json:"surface"`
	Rooms     int     `json:"rooms"`
	Bedrooms  int     `json:"bedrooms"`
	Bathrooms int     `json:"bathrooms"`

	ContactPhone string `json:"contact_phone"`

	MainImageURL string   `json:"main_image_url"`
	ImageURLs    []string `json:"image_urls"`

	AgeText   string    `json:"age_text,omitempty"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// HasCoordinates reports whether latitude and longitude have been populated.
func (r *PropertyRecord) HasCoordinates() bool {
	return r.GeoSource != ""
}

// Query is an assembled search for one site.
type Query struct {
	BaseURL     string
	MinPrice    int64
	MaxPrice    int64
	Transaction string
	StartPage   int
}

// RunStatus is a point-in-time summary of a run.
type RunStatus struct {
	PagesProcessed   int `json:"pages_processed"`
	RecordsExtracted int `json:"records_extracted"`
	RecordsDropped   int `json:"records_dropped"`
	ListingsSkipped  int `json:"listings_skipped"`
}

package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"property-scraper/models"
)

var csvHeader = []string{
	"id", "source_site", "source_url", "title", "price_raw", "price", "location_raw",
	"district", "city", "full_address", "latitude", "longitude", "formatted_address",
	"geo_source", "surface", "rooms", "bedrooms", "bathrooms", "contact_phone",
	"main_image_url", "image_urls", "age_text", "scraped_at", "description",
}

// CSVWriter appends records to a CSV file. It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter opens the CSV file at path for appending, creating it and
// any intermediate directories. The header row is written only when the
// file is empty.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, eris.Wrap(err, "csv: create output dir")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open file %q", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, eris.Wrapf(err, "csv: stat file %q", path)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, eris.Wrap(err, "csv: write header")
		}
		w.Flush()
	}

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteBatch appends one row per record.
func (c *CSVWriter) WriteBatch(_ context.Context, records []*models.PropertyRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range records {
		if err := c.writer.Write(csvRow(r)); err != nil {
			return eris.Wrap(err, "csv: write row")
		}
	}

	c.writer.Flush()
	return eris.Wrap(c.writer.Error(), "csv: flush")
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}

func csvRow(r *models.PropertyRecord) []string {
	return []string{
		r.ID,
		r.SourceSite,
		r.SourceURL,
		r.Title,
		r.PriceRaw,
		strconv.FormatInt(r.PriceNormalized, 10),
		r.LocationRaw,
		r.District,
		r.City,
		r.FullAddress,
		formatFloat(r.Latitude),
		formatFloat(r.Longitude),
		r.FormattedAddress,
		r.GeoSource,
		formatFloat(r.Surface),
		strconv.Itoa(r.Rooms),
		strconv.Itoa(r.Bedrooms),
		strconv.Itoa(r.Bathrooms),
		r.ContactPhone,
		r.MainImageURL,
		strings.Join(r.ImageURLs, " "),
		r.AgeText,
		r.ScrapedAt.Format(time.RFC3339),
		r.Description,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mmcloughlin/geohash"
	"github.com/rotisserie/eris"

	"property-scraper/models"
)

const (
	upsertBatchSize = 50
	geohashChars    = 9
)

var propertyColumns = []string{
	"source_url", "external_id", "source_site", "title", "description",
	"price_raw", "price", "location_raw", "district", "city", "full_address",
	"latitude", "longitude", "geohash", "formatted_address", "geo_source",
	"surface", "rooms", "bedrooms", "bathrooms", "contact_phone",
	"main_image_url", "image_urls", "age_text", "scraped_at",
}

// PostgresWriter upserts records into PostgreSQL keyed by source_url.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, eris.Wrap(ctx.Err(), "postgres: ping cancelled")
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "postgres: ping failed after retries")
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "postgres: migrate")
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS properties (
			id                SERIAL PRIMARY KEY,
			source_url        TEXT          UNIQUE NOT NULL,
			external_id       TEXT          NOT NULL DEFAULT '',
			source_site       VARCHAR(50)   NOT NULL,
			title             TEXT          NOT NULL,
			description       TEXT          NOT NULL DEFAULT '',
			price_raw         TEXT          NOT NULL DEFAULT '',
			price             BIGINT        NOT NULL DEFAULT 0,
			location_raw      TEXT          NOT NULL DEFAULT '',
			district          TEXT          NOT NULL DEFAULT '',
			city              TEXT          NOT NULL DEFAULT '',
			full_address      TEXT          NOT NULL DEFAULT '',
			latitude          DOUBLE PRECISION NOT NULL,
			longitude         DOUBLE PRECISION NOT NULL,
			geohash           VARCHAR(12)   NOT NULL DEFAULT '',
			formatted_address TEXT          NOT NULL DEFAULT '',
			geo_source        VARCHAR(20)   NOT NULL DEFAULT '',
			surface           NUMERIC(10,2) NOT NULL DEFAULT 0,
			rooms             INTEGER       NOT NULL DEFAULT 0,
			bedrooms          INTEGER       NOT NULL DEFAULT 0,
			bathrooms         INTEGER       NOT NULL DEFAULT 0,
			contact_phone     VARCHAR(20)   NOT NULL DEFAULT '',
			main_image_url    TEXT          NOT NULL DEFAULT '',
			image_urls        TEXT[]        NOT NULL DEFAULT '{}',
			age_text          TEXT          NOT NULL DEFAULT '',
			scraped_at        TIMESTAMPTZ   NOT NULL,
			updated_at        TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_properties_site    ON properties(source_site);
		CREATE INDEX IF NOT EXISTS idx_properties_price   ON properties(price);
		CREATE INDEX IF NOT EXISTS idx_properties_city    ON properties(city);
		CREATE INDEX IF NOT EXISTS idx_properties_geohash ON properties(geohash);
	`)
	return err
}

// WriteBatch upserts records in chunks of upsertBatchSize.
func (pw *PostgresWriter) WriteBatch(ctx context.Context, records []*models.PropertyRecord) error {
	for i := 0; i < len(records); i += upsertBatchSize {
		end := i + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		query, args := buildUpsert(records[i:end])
		if _, err := pw.db.ExecContext(ctx, query, args...); err != nil {
			return eris.Wrapf(err, "postgres: upsert %d records", end-i)
		}
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// buildUpsert renders a multi-row INSERT ... ON CONFLICT for batch. Records
// repeating a source_url inside one batch keep the last occurrence, since
// Postgres rejects a statement that touches the same row twice.
func buildUpsert(batch []*models.PropertyRecord) (string, []any) {
	batch = lastBySourceURL(batch)
	n := len(propertyColumns)
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*n)

	for idx, r := range batch {
		placeholders := make([]string, n)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", idx*n+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			r.SourceURL, r.ID, r.SourceSite, r.Title, r.Description,
			r.PriceRaw, r.PriceNormalized, r.LocationRaw, r.District, r.City, r.FullAddress,
			r.Latitude, r.Longitude, geohash.EncodeWithPrecision(r.Latitude, r.Longitude, geohashChars),
			r.FormattedAddress, r.GeoSource,
			r.Surface, r.Rooms, r.Bedrooms, r.Bathrooms, r.ContactPhone,
			r.MainImageURL, pq.Array(nonNil(r.ImageURLs)), r.AgeText, r.ScrapedAt,
		)
	}

	updates := make([]string, 0, n)
	for _, col := range propertyColumns[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	updates = append(updates, "updated_at = NOW()")

	query := fmt.Sprintf(`
		INSERT INTO properties (%s)
		VALUES %s
		ON CONFLICT (source_url) DO UPDATE SET %s
	`, strings.Join(propertyColumns, ", "), strings.Join(valueStrings, ","), strings.Join(updates, ", "))

	return query, valueArgs
}

func lastBySourceURL(batch []*models.PropertyRecord) []*models.PropertyRecord {
	pos := make(map[string]int, len(batch))
	out := make([]*models.PropertyRecord, 0, len(batch))
	for _, r := range batch {
		if i, ok := pos[r.SourceURL]; ok {
			out[i] = r
			continue
		}
		pos[r.SourceURL] = len(out)
		out = append(out, r)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

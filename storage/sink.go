package storage

import (
	"context"

	"property-scraper/models"
)

// RecordSink is the interface any storage backend must satisfy. Batches
// arrive once per processed result page; sinks upsert or append by
// SourceURL.
type RecordSink interface {
	WriteBatch(ctx context.Context, records []*models.PropertyRecord) error
	Close() error
}

package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-scraper/models"
)

func sampleRecord(url string) *models.PropertyRecord {
	return &models.PropertyRecord{
		ID:              "123",
		SourceURL:       url,
		SourceSite:      "tayara",
		Title:           "Appartement S+2 Lac 2",
		PriceRaw:        "450 000 DT",
		PriceNormalized: 450000,
		District:        "Lac 2",
		FullAddress:     "Lac 2, Tunisia",
		Latitude:        36.8427,
		Longitude:       10.2730,
		GeoSource:       models.GeoSourceGazetteer,
		Rooms:           3,
		Bedrooms:        2,
		ImageURLs:       []string{"https://cdn.tayara.tn/a.jpg", "https://cdn.tayara.tn/b.jpg"},
		ScrapedAt:       time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestBuildUpsert(t *testing.T) {
	batch := []*models.PropertyRecord{
		sampleRecord("https://www.tayara.tn/item/1"),
		sampleRecord("https://www.tayara.tn/item/2"),
	}

	query, args := buildUpsert(batch)

	n := len(propertyColumns)
	assert.Len(t, args, 2*n)
	assert.Contains(t, query, "INSERT INTO properties (source_url, external_id,")
	assert.Contains(t, query, "ON CONFLICT (source_url) DO UPDATE SET external_id = EXCLUDED.external_id")
	assert.Contains(t, query, "updated_at = NOW()")
	assert.Contains(t, query, "$1,")
	assert.Contains(t, query, "$"+strconv.Itoa(2*n)+")")
	assert.NotContains(t, query, "source_url = EXCLUDED.source_url")

	assert.Equal(t, "https://www.tayara.tn/item/2", args[n])
	gh, ok := args[13].(string)
	require.True(t, ok)
	assert.Len(t, gh, geohashChars)
	assert.True(t, strings.HasPrefix(gh, "snx"), "geohash %q should fall in the Tunis cell", gh)
	assert.IsType(t, pq.Array([]string{}), args[22])
}

func TestBuildUpsertCollapsesDuplicateURLs(t *testing.T) {
	first := sampleRecord("https://www.tayara.tn/item/1")
	second := sampleRecord("https://www.tayara.tn/item/1")
	second.Title = "Updated"

	_, args := buildUpsert([]*models.PropertyRecord{first, second})
	require.Len(t, args, len(propertyColumns))
	assert.Equal(t, "Updated", args[3])
}

func TestCSVWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "properties.csv")
	ctx := context.Background()

	w, err := NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteBatch(ctx, []*models.PropertyRecord{sampleRecord("https://www.tayara.tn/item/1")}))
	require.NoError(t, w.Close())

	w, err = NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteBatch(ctx, []*models.PropertyRecord{sampleRecord("https://www.tayara.tn/item/2")}))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3, "one header and two records")
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "https://www.tayara.tn/item/1", rows[1][2])
	assert.Equal(t, "https://www.tayara.tn/item/2", rows[2][2])
	assert.Equal(t, "450000", rows[1][5])
	assert.Equal(t, "https://cdn.tayara.tn/a.jpg https://cdn.tayara.tn/b.jpg", rows[1][20])
}

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	failAfter int
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.failAfter > 0 && len(f.published) >= f.failAfter {
		return errors.New("channel closed")
	}
	f.published = append(f.published, msg)
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRabbitMQPublisherWriteBatch(t *testing.T) {
	ch := &fakeChannel{}
	p := newRabbitMQPublisher(ch, "properties", "")

	err := p.WriteBatch(context.Background(), []*models.PropertyRecord{
		sampleRecord("https://www.tayara.tn/item/1"),
		sampleRecord("https://www.tayara.tn/item/2"),
	})
	require.NoError(t, err)
	require.Len(t, ch.published, 2)

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, recordEventType, msg.Headers["event-type"])
	assert.Equal(t, recordEventType, ch.keys[0])

	var got models.PropertyRecord
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, "https://www.tayara.tn/item/1", got.SourceURL)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestRabbitMQPublisherError(t *testing.T) {
	ch := &fakeChannel{failAfter: 1}
	p := newRabbitMQPublisher(ch, "properties", "custom.key")

	err := p.WriteBatch(context.Background(), []*models.PropertyRecord{
		sampleRecord("https://www.tayara.tn/item/1"),
		sampleRecord("https://www.tayara.tn/item/2"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item/2")
	assert.Equal(t, []string{"custom.key"}, ch.keys)
}

type failingSink struct{ calls int }

func (f *failingSink) WriteBatch(context.Context, []*models.PropertyRecord) error {
	f.calls++
	return errors.New("disk full")
}

func (f *failingSink) Close() error { return nil }

func TestFanOutWritesEverySink(t *testing.T) {
	var got []*models.PropertyRecord
	cb := NewCallbackSink(func(_ context.Context, recs []*models.PropertyRecord) error {
		got = append(got, recs...)
		return nil
	})
	bad := &failingSink{}
	var buf bytes.Buffer

	fan := NewFanOut(bad, nil, cb, NewJSONLinesSink(&buf))
	err := fan.WriteBatch(context.Background(), []*models.PropertyRecord{sampleRecord("https://www.tayara.tn/item/1")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, bad.calls)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"source_url":"https://www.tayara.tn/item/1"`)

	require.NoError(t, fan.WriteBatch(context.Background(), nil))
	assert.Equal(t, 1, bad.calls)
	assert.NoError(t, fan.Close())
}

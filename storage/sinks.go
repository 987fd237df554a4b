package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/rotisserie/eris"

	"property-scraper/models"
)

// CallbackFunc receives one batch of records.
type CallbackFunc func(ctx context.Context, records []*models.PropertyRecord) error

// CallbackSink hands batches to a function. It is how library callers
// stream records without a storage backend.
type CallbackSink struct {
	fn CallbackFunc
}

// NewCallbackSink wraps fn as a RecordSink.
func NewCallbackSink(fn CallbackFunc) *CallbackSink {
	return &CallbackSink{fn: fn}
}

func (s *CallbackSink) WriteBatch(ctx context.Context, records []*models.PropertyRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.fn(ctx, records)
}

func (s *CallbackSink) Close() error { return nil }

// FanOut writes every batch to all of its sinks. A failing sink does not
// stop the others; the errors are joined.
type FanOut struct {
	sinks []RecordSink
}

// NewFanOut combines sinks. Nil entries are skipped.
func NewFanOut(sinks ...RecordSink) *FanOut {
	f := &FanOut{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *FanOut) WriteBatch(ctx context.Context, records []*models.PropertyRecord) error {
	if len(records) == 0 {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.WriteBatch(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FanOut) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JSONLinesSink writes one JSON object per record.
type JSONLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesSink writes to w, typically os.Stdout.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

func (s *JSONLinesSink) WriteBatch(_ context.Context, records []*models.PropertyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if err := s.enc.Encode(r); err != nil {
			return eris.Wrapf(err, "jsonl: encode %s", r.SourceURL)
		}
	}
	return nil
}

func (s *JSONLinesSink) Close() error { return nil }

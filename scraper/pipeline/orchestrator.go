// Package pipeline runs extraction end to end: it pages through a site's
// results, extracts each candidate listing in its own tab, geocodes and
// finalizes the records, and hands them to a sink one result page at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"property-scraper/browser"
	"property-scraper/config"
	"property-scraper/models"
	"property-scraper/scraper/discovery"
	"property-scraper/scraper/extract"
	"property-scraper/scraper/geocode"
	"property-scraper/scraper/recency"
	"property-scraper/scraper/reveal"
	"property-scraper/services"
	"property-scraper/storage"
	"property-scraper/utils"
)

// Request describes one extraction run.
type Request struct {
	RunID    string
	Site     config.Site
	StartURL string
	// Query is assembled into the start URL when StartURL is empty.
	Query      models.Query
	MaxPages   int
	MaxRecords int
}

// Options are the run-independent settings of an Orchestrator.
type Options struct {
	Country           string
	PageDelay         time.Duration
	NavTimeout        time.Duration
	ListingTimeout    time.Duration
	RevealStepTimeout time.Duration
	DetailConcurrency int
	MaxRetries        int
	RetryDelay        time.Duration
	MaxAgeDays        int
	UnparsedAge       recency.UnparsedPolicy
}

// Orchestrator composes discovery, extraction, reveal, recency filtering,
// geocoding and finalization for a run. It holds no per-run state, so one
// Orchestrator serves every worker.
type Orchestrator struct {
	browser  browser.Browser
	resolver *geocode.Resolver
	sink     storage.RecordSink
	opts     Options
	logger   *utils.Logger
}

// NewOrchestrator creates an Orchestrator. sink may be nil when the caller
// only wants the records returned by Run.
func NewOrchestrator(b browser.Browser, resolver *geocode.Resolver, sink storage.RecordSink, opts Options, logger *utils.Logger) *Orchestrator {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 45 * time.Second
	}
	if opts.ListingTimeout <= 0 {
		opts.ListingTimeout = 2 * time.Minute
	}
	if opts.DetailConcurrency < 1 {
		opts.DetailConcurrency = 1
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 30
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if resolver == nil {
		resolver = geocode.NewResolver(nil, nil, logger)
	}
	return &Orchestrator{browser: b, resolver: resolver, sink: sink, opts: opts, logger: logger}
}

// run is the state of one Run call.
type run struct {
	o         *Orchestrator
	req       Request
	logger    *utils.Logger
	progress  *Progress
	extractor *extract.Extractor
	reveal    *reveal.Controller
	filter    *recency.Filter
	cleaner   *services.Cleaner
	retry     utils.RetryConfig
	session   browser.Session
	emitted   int
}

// outcome is what happened to one candidate listing.
type outcome struct {
	rec    *models.PropertyRecord
	reason string
	err    error
}

// Run executes req and returns the records it emitted, in page order.
// Records are also written to the sink after every result page. A failure
// to acquire the browser session fails the run; page- and listing-level
// failures are logged and skipped. When ctx is cancelled, the listings in
// flight finish (bounded by the listing timeout) and the records emitted so
// far are returned together with the error.
func (o *Orchestrator) Run(ctx context.Context, req Request, progress *Progress) ([]*models.PropertyRecord, error) {
	if progress == nil {
		progress = &Progress{}
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	r, err := o.newRun(req, progress)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx)
}

func (o *Orchestrator) newRun(req Request, progress *Progress) (*run, error) {
	ext, err := extract.NewExtractor(req.Site, o.opts.Country)
	if err != nil {
		return nil, err
	}
	revealCfg := req.Site.Reveal
	if o.opts.RevealStepTimeout > 0 {
		revealCfg.StepTimeout = o.opts.RevealStepTimeout
	}
	logger := o.logger.With("run_id", req.RunID, "site", req.Site.Name)
	return &run{
		o:         o,
		req:       req,
		logger:    logger,
		progress:  progress,
		extractor: ext,
		reveal:    reveal.NewController(revealCfg, logger),
		filter:    recency.NewFilter(o.opts.MaxAgeDays, o.opts.UnparsedAge),
		cleaner:   services.NewCleaner(logger),
		retry: utils.RetryConfig{
			MaxAttempts: o.opts.MaxRetries,
			BaseDelay:   o.opts.RetryDelay,
			Logger:      logger,
		},
	}, nil
}

func (r *run) execute(ctx context.Context) ([]*models.PropertyRecord, error) {
	startURL := r.req.StartURL
	if startURL == "" {
		u, err := discovery.BuildStartURL(r.req.Site, r.req.Query)
		if err != nil {
			return nil, err
		}
		startURL = u
	}
	r.logger.Info("[pipeline] Starting run at %s (pages <= %d, records <= %d)",
		startURL, r.req.MaxPages, r.req.MaxRecords)

	session, err := r.o.browser.OpenSession(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	defer session.Close()
	r.session = session

	listTab, err := session.NewTab(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	defer listTab.Close()

	disc, err := discovery.New(r.req.Site, listTab, discovery.Options{
		StartURL:   startURL,
		StartPage:  r.req.Query.StartPage,
		MaxPages:   r.req.MaxPages,
		Delay:      r.o.opts.PageDelay,
		NavTimeout: r.o.opts.NavTimeout,
		Retry:      r.retry,
		Seen:       utils.NewURLSet(),
	}, r.logger)
	if err != nil {
		return nil, err
	}

	var records []*models.PropertyRecord
	for {
		page, err := disc.Next(ctx)
		if errors.Is(err, discovery.ErrDone) {
			break
		}
		if err != nil {
			r.finish(len(records))
			return records, err
		}
		r.progress.pageProcessed()

		batch, err := r.processPage(ctx, page)
		records = append(records, batch...)
		r.emit(ctx, page.Number, batch)
		if err != nil {
			r.finish(len(records))
			return records, err
		}

		if r.capReached() {
			r.logger.Info("[pipeline] Record cap %d reached, stopping", r.req.MaxRecords)
			disc.Stop()
			break
		}
		if ctx.Err() != nil {
			r.finish(len(records))
			return records, eris.Wrap(ctx.Err(), "pipeline: run cancelled")
		}
	}

	r.finish(len(records))
	return records, nil
}

func (r *run) finish(n int) {
	st := r.progress.Status()
	r.logger.Info("[pipeline] Run finished: %d records from %d pages (%d dropped, %d skipped)",
		n, st.PagesProcessed, st.RecordsDropped, st.ListingsSkipped)
}

func (r *run) capReached() bool {
	return r.req.MaxRecords > 0 && r.emitted >= r.req.MaxRecords
}

// processPage extracts the page's candidates, at most DetailConcurrency at a
// time, and returns the kept records in candidate order trimmed to the
// remaining record budget.
func (r *run) processPage(ctx context.Context, page *discovery.ResultPage) ([]*models.PropertyRecord, error) {
	results := make([]outcome, len(page.Candidates))
	var kept atomic.Int64
	remaining := int64(-1)
	if r.req.MaxRecords > 0 {
		remaining = int64(r.req.MaxRecords - r.emitted)
	}

	g := new(errgroup.Group)
	g.SetLimit(r.o.opts.DetailConcurrency)
	var stopErr error

	for i, u := range page.Candidates {
		if ctx.Err() != nil {
			stopErr = eris.Wrap(ctx.Err(), "pipeline: run cancelled")
			break
		}
		if remaining >= 0 && kept.Load() >= remaining {
			break
		}
		i, u := i, u
		g.Go(func() error {
			if remaining >= 0 && kept.Load() >= remaining {
				return nil
			}
			out := r.processListing(ctx, u)
			results[i] = out
			if out.rec != nil {
				kept.Add(1)
			}
			if errors.Is(out.err, browser.ErrSessionUnavailable) {
				return out.err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		stopErr = sessionError(err)
	}

	batch := make([]*models.PropertyRecord, 0, len(results))
	for i, out := range results {
		switch {
		case out.rec != nil:
			if remaining >= 0 && int64(len(batch)) >= remaining {
				r.logger.Debug("[pipeline] %s over record cap, discarded", page.Candidates[i])
				continue
			}
			batch = append(batch, out.rec)
		case out.err != nil:
			r.progress.skipped()
			r.logger.Warn("[pipeline] Skipping %s: %v", page.Candidates[i], out.err)
		case out.reason != "":
			r.progress.dropped()
			r.logger.Info("[pipeline] Dropping %s: %s", page.Candidates[i], out.reason)
		}
	}
	r.emitted += len(batch)
	r.progress.extracted(len(batch))
	return batch, stopErr
}

// processListing runs one candidate from navigation to a finalized record.
// It is detached from run cancellation and bounded by the listing timeout,
// so an abort never leaves a half-built record behind.
func (r *run) processListing(parent context.Context, listingURL string) (out outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = outcome{err: eris.Errorf("panic while extracting: %v", p)}
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.o.opts.ListingTimeout)
	defer cancel()

	tab, err := r.session.NewTab(ctx)
	if err != nil {
		return outcome{err: sessionError(err)}
	}
	defer tab.Close()

	err = r.retry.Do(ctx, "open "+listingURL, func(ctx context.Context) error {
		return tab.Navigate(ctx, listingURL, r.o.opts.NavTimeout)
	})
	if err != nil {
		return outcome{err: err}
	}
	html, err := tab.HTML(ctx)
	if err != nil {
		return outcome{err: err}
	}
	page, err := extract.NewPage(listingURL, html)
	if err != nil {
		return outcome{err: err}
	}

	if r.req.Site.Recency.Enabled {
		ageText, _ := r.extractor.AgeText(page)
		d := r.filter.Decide(ageText)
		if !d.Keep {
			return outcome{reason: "too old: " + d.Reason}
		}
		if !d.Parsed {
			r.logger.Warn("[pipeline] %s: %s", listingURL, d.Reason)
		}
	}

	var hints extract.Hints
	if r.reveal.Enabled() {
		res := r.reveal.Run(ctx, tab)
		if res.State == reveal.Extracted {
			hints.RevealedPhone = res.Phone
		} else {
			r.logger.Debug("[pipeline] %s: phone reveal gave up, using page text: %v", listingURL, res.Err)
		}
	}

	rec := r.extractor.Extract(page, hints)
	rec.ScrapedAt = time.Now().UTC()

	if ok, reason := r.cleaner.Finalize(rec); !ok {
		return outcome{reason: reason}
	}
	r.o.resolver.Resolve(ctx, rec)
	return outcome{rec: rec}
}

// emit hands a page's batch to the sink. Sink failures are logged; the
// records are still returned to the caller.
func (r *run) emit(ctx context.Context, pageNum int, batch []*models.PropertyRecord) {
	if r.o.sink == nil || len(batch) == 0 {
		return
	}
	if err := r.o.sink.WriteBatch(context.WithoutCancel(ctx), batch); err != nil {
		r.logger.Error("[pipeline] Writing %d records of page %d failed: %v", len(batch), pageNum, err)
		return
	}
	r.logger.Info("[pipeline] Page %d: %d records written", pageNum, len(batch))
}

func sessionError(err error) error {
	if errors.Is(err, browser.ErrSessionUnavailable) {
		return err
	}
	return eris.Wrap(browser.ErrSessionUnavailable, fmt.Sprint(err))
}

// Package discovery walks a site's paginated result pages and yields the
// detail-page URLs found on each of them.
package discovery

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"property-scraper/browser"
	"property-scraper/config"
	"property-scraper/scraper/extract"
	"property-scraper/utils"
)

// ErrDone is returned by Next once pagination has ended.
var ErrDone = eris.New("discovery: no more pages")

// State is the pagination state.
type State int

const (
	Fetching State = iota
	Parsing
	HasNextPage
	Done
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Parsing:
		return "parsing"
	case HasNextPage:
		return "has_next_page"
	case Done:
		return "done"
	}
	return "unknown"
}

// ResultPage is one fetched result page and the new candidate URLs on it.
type ResultPage struct {
	Number     int
	URL        string
	Candidates []string
}

// Options tune a Discoverer.
type Options struct {
	StartURL   string
	StartPage  int
	MaxPages   int
	Delay      time.Duration
	NavTimeout time.Duration
	Retry      utils.RetryConfig
	// Seen is shared with the caller so that URLs are deduplicated across
	// the whole run. A fresh set is used when nil.
	Seen *utils.URLSet
}

// Discoverer yields result pages lazily. It is not safe for concurrent use;
// each worker owns one.
type Discoverer struct {
	site    config.Site
	tab     browser.Tab
	opts    Options
	logger  *utils.Logger
	limiter *rate.Limiter
	include *regexp.Regexp
	seen    *utils.URLSet

	state   State
	pageNum int
	fetched int
	current string
}

// New prepares a Discoverer that loads result pages in tab.
func New(site config.Site, tab browser.Tab, opts Options, logger *utils.Logger) (*Discoverer, error) {
	d := &Discoverer{
		site:    site,
		tab:     tab,
		opts:    opts,
		logger:  logger,
		seen:    opts.Seen,
		current: opts.StartURL,
		pageNum: max(opts.StartPage, 1),
	}
	if n, ok := pageFromURL(opts.StartURL, site.Pagination.PageParam); ok {
		d.pageNum = n
	}
	if d.seen == nil {
		d.seen = utils.NewURLSet()
	}
	if d.opts.NavTimeout <= 0 {
		d.opts.NavTimeout = 45 * time.Second
	}
	if site.Listing.IncludePattern != "" {
		re, err := regexp.Compile(site.Listing.IncludePattern)
		if err != nil {
			return nil, eris.Wrapf(err, "discovery: site %q include_pattern", site.Name)
		}
		d.include = re
	}
	if opts.Delay > 0 {
		d.limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	} else {
		d.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if d.current == "" {
		return nil, eris.New("discovery: empty start url")
	}
	return d, nil
}

// State returns the current pagination state.
func (d *Discoverer) State() State { return d.state }

// PagesFetched counts result pages loaded successfully.
func (d *Discoverer) PagesFetched() int { return d.fetched }

// Stop ends pagination; later calls to Next return ErrDone.
func (d *Discoverer) Stop() { d.state = Done }

// Next fetches the next result page. It returns ErrDone when pagination has
// ended, whether because the page cap was reached, a page had no candidates,
// the next-page control was missing or disabled, or a page failed to load.
// Only cancellation and session loss are reported as errors.
func (d *Discoverer) Next(ctx context.Context) (*ResultPage, error) {
	if d.state == Done {
		return nil, ErrDone
	}
	if d.opts.MaxPages > 0 && d.fetched >= d.opts.MaxPages {
		d.state = Done
		return nil, ErrDone
	}

	if err := d.limiter.Wait(ctx); err != nil {
		d.state = Done
		return nil, eris.Wrap(err, "discovery: waiting between pages")
	}

	d.state = Fetching
	pageURL := d.current
	html, err := d.fetch(ctx, pageURL)
	if err != nil {
		d.state = Done
		if ctx.Err() != nil || errors.Is(err, browser.ErrSessionUnavailable) {
			return nil, err
		}
		if d.fetched == 0 {
			d.logger.Warn("[discovery] first page %s failed, run yields no results: %v", pageURL, err)
		} else {
			d.logger.Warn("[discovery] page %d failed, ending pagination: %v", d.pageNum, err)
		}
		return nil, ErrDone
	}
	d.fetched++

	d.state = Parsing
	page, next, err := d.parse(pageURL, html)
	if err != nil {
		d.state = Done
		d.logger.Warn("[discovery] page %d unreadable, ending pagination: %v", d.pageNum, err)
		return nil, ErrDone
	}

	first := d.fetched == 1
	if len(page.Candidates) == 0 && !(first && d.site.Pagination.EmptyFirstPageOK) {
		d.logger.Info("[discovery] page %d has no candidates, stopping", page.Number)
		d.state = Done
		return nil, ErrDone
	}

	d.logger.Info("[discovery] page %d: %d candidates", page.Number, len(page.Candidates))
	if next == "" {
		d.state = Done
	} else {
		d.state = HasNextPage
		d.current = next
		if n, ok := pageFromURL(next, d.site.Pagination.PageParam); ok && n > d.pageNum {
			d.pageNum = n
		} else {
			d.pageNum++
		}
	}
	return page, nil
}

func (d *Discoverer) fetch(ctx context.Context, pageURL string) (string, error) {
	var html string
	err := d.opts.Retry.Do(ctx, "fetch "+pageURL, func(ctx context.Context) error {
		if err := d.tab.Navigate(ctx, pageURL, d.opts.NavTimeout); err != nil {
			return err
		}
		h, err := d.tab.HTML(ctx)
		if err != nil {
			return err
		}
		html = h
		return nil
	})
	return html, err
}

// parse extracts candidates and the URL of the following page, "" when
// there is none.
func (d *Discoverer) parse(pageURL, html string) (*ResultPage, string, error) {
	p, err := extract.NewPage(pageURL, html)
	if err != nil {
		return nil, "", err
	}

	page := &ResultPage{Number: d.pageNum, URL: pageURL}
	p.Doc().Find(d.site.Listing.LinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		u := p.Resolve(href)
		if !d.accept(u) {
			return
		}
		if d.seen.Add(u) {
			page.Candidates = append(page.Candidates, u)
		}
	})

	next, err := d.nextURL(p)
	if err != nil {
		return nil, "", err
	}
	return page, next, nil
}

func (d *Discoverer) accept(u string) bool {
	if u == "" {
		return false
	}
	lower := strings.ToLower(u)
	for _, pattern := range d.site.Listing.ExcludePatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return false
		}
	}
	return d.include == nil || d.include.MatchString(u)
}

// nextURL reads the next-page control. Without a configured control the
// page parameter is simply incremented.
func (d *Discoverer) nextURL(p *extract.Page) (string, error) {
	pag := d.site.Pagination
	if pag.NextSelector == "" {
		return withPage(p.URL, pag.PageParam, d.pageNum+1)
	}

	next := p.Doc().Find(pag.NextSelector).First()
	if next.Length() == 0 || controlDisabled(next, pag.DisabledClass) {
		return "", nil
	}
	if href, ok := next.Attr("href"); ok && strings.TrimSpace(href) != "" && !strings.HasPrefix(href, "#") {
		if u := p.Resolve(href); u != "" && u != p.URL {
			return u, nil
		}
	}
	return withPage(p.URL, pag.PageParam, d.pageNum+1)
}

func controlDisabled(s *goquery.Selection, class string) bool {
	if _, ok := s.Attr("disabled"); ok {
		return true
	}
	if v, _ := s.Attr("aria-disabled"); v == "true" {
		return true
	}
	if class == "" {
		return false
	}
	return s.HasClass(class) || s.Parent().HasClass(class)
}

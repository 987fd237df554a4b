// Package browsertest provides an in-memory browser.Browser serving static
// HTML, with click and fill hooks for scripting interactive pages.
package browsertest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"property-scraper/browser"
)

// Handler mutates a tab in response to an interaction.
type Handler func(t *Tab)

// Browser is a fake browser.Browser.
type Browser struct {
	mu      sync.Mutex
	pages   map[string]string
	navErr  map[string]error
	delays  map[string]time.Duration
	clicks  map[string]Handler
	fills   map[string]Handler
	openErr error
	opened  int
	visits  []string
}

// New returns an empty fake browser.
func New() *Browser {
	return &Browser{
		pages:  make(map[string]string),
		navErr: make(map[string]error),
		delays: make(map[string]time.Duration),
		clicks: make(map[string]Handler),
		fills:  make(map[string]Handler),
	}
}

// AddPage serves html at url.
func (b *Browser) AddPage(url, html string) *Browser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[url] = html
	return b
}

// FailNavigation makes every navigation to url fail with err.
func (b *Browser) FailNavigation(url string, err error) *Browser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navErr[url] = err
	return b
}

// DelayNavigation makes navigations to url take d.
func (b *Browser) DelayNavigation(url string, d time.Duration) *Browser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delays[url] = d
	return b
}

// FailOpen makes OpenSession fail.
func (b *Browser) FailOpen(err error) *Browser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = err
	return b
}

// OnClick registers h to run when selector is clicked.
func (b *Browser) OnClick(selector string, h Handler) *Browser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clicks[selector] = h
	return b
}

// OnFill registers h to run after selector is filled.
func (b *Browser) OnFill(selector string, h Handler) *Browser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fills[selector] = h
	return b
}

// Visits returns every URL navigated to, in order.
func (b *Browser) Visits() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.visits...)
}

// SessionsOpened reports how many sessions were handed out.
func (b *Browser) SessionsOpened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

func (b *Browser) OpenSession(ctx context.Context) (browser.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, eris.Wrapf(browser.ErrSessionUnavailable, "fake: %v", b.openErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(browser.ErrSessionUnavailable, err.Error())
	}
	b.opened++
	return &Session{b: b}, nil
}

func (b *Browser) Close() error { return nil }

// Session is a fake browser.Session.
type Session struct {
	b      *Browser
	mu     sync.Mutex
	closed bool
}

func (s *Session) NewTab(context.Context) (browser.Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, eris.Wrap(browser.ErrSessionUnavailable, "fake: session closed")
	}
	return &Tab{b: s.b, values: make(map[string]string)}, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Tab is a fake browser.Tab whose DOM is a mutable HTML string.
type Tab struct {
	b      *Browser
	mu     sync.Mutex
	url    string
	html   string
	values map[string]string
	clicks []string
}

// SetHTML replaces the current document.
func (t *Tab) SetHTML(html string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.html = html
}

// ReplaceHTML substitutes old with new in the current document.
func (t *Tab) ReplaceHTML(old, new string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.html = strings.Replace(t.html, old, new, 1)
}

// Value returns the value last filled into selector.
func (t *Tab) Value(selector string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.values[selector]
}

// Clicks returns the selectors clicked so far.
func (t *Tab) Clicks() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.clicks...)
}

func (t *Tab) Navigate(ctx context.Context, url string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.b.mu.Lock()
	t.b.visits = append(t.b.visits, url)
	navErr := t.b.navErr[url]
	html, ok := t.b.pages[url]
	delay := t.b.delays[url]
	t.b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if navErr != nil {
		return eris.Wrapf(navErr, "navigate %s", url)
	}
	if !ok {
		return eris.Errorf("navigate %s: 404 not found", url)
	}
	t.mu.Lock()
	t.url = url
	t.html = html
	t.mu.Unlock()
	return nil
}

func (t *Tab) HTML(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.html, nil
}

func (t *Tab) find(selector string) (*goquery.Selection, error) {
	t.mu.Lock()
	html := t.html
	t.mu.Unlock()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "fake: parse html")
	}
	return doc.Find(selector), nil
}

func (t *Tab) Exists(_ context.Context, selector string) (bool, error) {
	sel, err := t.find(selector)
	if err != nil {
		return false, err
	}
	return sel.Length() > 0, nil
}

func (t *Tab) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := t.Exists(ctx, selector)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return eris.Wrapf(context.DeadlineExceeded, "wait visible %s", selector)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (t *Tab) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := t.WaitVisible(ctx, selector, timeout); err != nil {
		return eris.Wrapf(err, "click %s", selector)
	}
	t.mu.Lock()
	t.clicks = append(t.clicks, selector)
	t.mu.Unlock()

	t.b.mu.Lock()
	h := t.b.clicks[selector]
	t.b.mu.Unlock()
	if h != nil {
		h(t)
	}
	return nil
}

func (t *Tab) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	if err := t.WaitVisible(ctx, selector, timeout); err != nil {
		return eris.Wrapf(err, "fill %s", selector)
	}
	t.mu.Lock()
	t.values[selector] = value
	t.mu.Unlock()

	t.b.mu.Lock()
	h := t.b.fills[selector]
	t.b.mu.Unlock()
	if h != nil {
		h(t)
	}
	return nil
}

func (t *Tab) Attribute(_ context.Context, selector, name string) (string, bool, error) {
	sel, err := t.find(selector)
	if err != nil {
		return "", false, err
	}
	v, ok := sel.First().Attr(name)
	return v, ok, nil
}

func (t *Tab) Evaluate(context.Context, string, any) error {
	return eris.New("fake: evaluate not supported")
}

func (t *Tab) Close() error { return nil }

package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"property-scraper/utils"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ChromeOptions configures the Chrome allocator.
type ChromeOptions struct {
	ChromeBin string
	Headless  bool
	UserAgent string
}

// ChromeBrowser is a Browser backed by a local Chrome/Chromium process
// driven through chromedp. Each session is a separate browser instance.
type ChromeBrowser struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	logger      *utils.Logger
}

// NewChromeBrowser prepares an allocator; no process is started until the
// first session is opened.
func NewChromeBrowser(opts ChromeOptions, logger *utils.Logger) *ChromeBrowser {
	chromeBin := opts.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	logger.Info("[browser] Using browser binary: %q (headless=%v)", chromeBin, opts.Headless)

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(ua),
	)
	if chromeBin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	return &ChromeBrowser{allocCtx: allocCtx, cancelAlloc: cancel, logger: logger}
}

// OpenSession starts an isolated browser context.
func (b *ChromeBrowser) OpenSession(ctx context.Context) (Session, error) {
	// Suppress chromedp log noise
	sessCtx, cancel := chromedp.NewContext(b.allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	err := startBounded(ctx, cancel, sessionStartTimeout, func() error {
		return chromedp.Run(sessCtx)
	})
	if err != nil {
		cancel()
		return nil, eris.Wrapf(ErrSessionUnavailable, "start chrome: %v", err)
	}
	return &chromeSession{ctx: sessCtx, cancel: cancel}, nil
}

const (
	sessionStartTimeout = 30 * time.Second
	tabStartTimeout     = 15 * time.Second
)

// startBounded runs fn, the first chromedp.Run on a context. That context
// then owns the browser process or target for good, so it must not be
// derived with a deadline. The start is bounded instead by calling cancel
// once timeout passes or ctx is done.
func startBounded(ctx context.Context, cancel context.CancelFunc, timeout time.Duration, fn func() error) error {
	timer := time.AfterFunc(timeout, cancel)
	stop := context.AfterFunc(ctx, cancel)

	err := fn()
	expired := !timer.Stop()
	aborted := !stop()

	switch {
	case aborted:
		cancel()
		return eris.Wrap(context.Cause(ctx), "cancelled while starting")
	case expired:
		cancel()
		return eris.Errorf("not ready after %s", timeout)
	case err != nil:
		cancel()
		return err
	}
	return nil
}

// Close stops the allocator and every browser it started.
func (b *ChromeBrowser) Close() error {
	b.cancelAlloc()
	return nil
}

type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTab opens a target and attaches to it before returning, so later
// actions may run under short per-action deadlines.
func (s *chromeSession) NewTab(ctx context.Context) (Tab, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, eris.Wrap(ErrSessionUnavailable, "session closed")
	}
	tabCtx, cancel := chromedp.NewContext(s.ctx)
	err := startBounded(ctx, cancel, tabStartTimeout, func() error {
		return chromedp.Run(tabCtx)
	})
	if err != nil {
		cancel()
		return nil, eris.Wrapf(ErrSessionUnavailable, "open tab: %v", err)
	}
	return &chromeTab{ctx: tabCtx, cancel: cancel}, nil
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}

type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// defaultActionTimeout bounds actions that take no explicit timeout.
const defaultActionTimeout = 10 * time.Second

func (t *chromeTab) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	runCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (t *chromeTab) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	err := t.run(ctx, timeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return eris.Wrapf(err, "navigate %s", url)
	}
	return nil
}

func (t *chromeTab) HTML(ctx context.Context) (string, error) {
	var html string
	if err := t.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", eris.Wrap(err, "read page html")
	}
	return html, nil
}

func (t *chromeTab) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	script := fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector))
	if err := t.run(ctx, 0, chromedp.Evaluate(script, &found)); err != nil {
		return false, eris.Wrapf(err, "query %s", selector)
	}
	return found, nil
}

func (t *chromeTab) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := t.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return eris.Wrapf(err, "wait visible %s", selector)
	}
	return nil
}

func (t *chromeTab) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := t.run(ctx, timeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return eris.Wrapf(err, "click %s", selector)
	}
	return nil
}

func (t *chromeTab) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	commit := fmt.Sprintf(`(function() {
		var el = document.querySelector(%s);
		if (!el) return false;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		el.blur();
		return true;
	})()`, jsString(selector))

	var committed bool
	err := t.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(commit, &committed),
	)
	if err != nil {
		return eris.Wrapf(err, "fill %s", selector)
	}
	if !committed {
		return eris.Wrapf(ErrNotFound, "fill %s", selector)
	}
	return nil
}

func (t *chromeTab) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var res struct {
		OK    bool   `json:"ok"`
		Value string `json:"value"`
	}
	script := fmt.Sprintf(`(function() {
		var el = document.querySelector(%s);
		if (!el || !el.hasAttribute(%s)) return {ok: false, value: ''};
		return {ok: true, value: el.getAttribute(%s) || ''};
	})()`, jsString(selector), jsString(name), jsString(name))

	if err := t.run(ctx, 0, chromedp.Evaluate(script, &res)); err != nil {
		return "", false, eris.Wrapf(err, "attribute %s of %s", name, selector)
	}
	return res.Value, res.OK, nil
}

func (t *chromeTab) Evaluate(ctx context.Context, script string, res any) error {
	if err := t.run(ctx, 0, chromedp.Evaluate(script, res)); err != nil {
		return eris.Wrap(err, "evaluate")
	}
	return nil
}

func (t *chromeTab) Close() error {
	t.cancel()
	return nil
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

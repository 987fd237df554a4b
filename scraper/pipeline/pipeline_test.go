package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-scraper/browser"
	"property-scraper/browser/browsertest"
	"property-scraper/config"
	"property-scraper/models"
	"property-scraper/scraper/geocode"
	"property-scraper/scraper/recency"
	"property-scraper/storage"
	"property-scraper/utils"
)

const (
	startURL = "https://example.tn/annonces"
	page2URL = startURL + "?page=2"
	page3URL = startURL + "?page=3"
)

const sitesYAML = `
sites:
  - name: example
    base_url: https://example.tn
    start_path: /annonces
    id_pattern: '/item/(\d+)'
    pagination:
      next_selector: 'a[rel="next"]'
    listing:
      link_selector: 'a.card'
      include_pattern: '/item/\d+'
    fields:
      title:
        selectors: ['h1']
      price:
        selectors: ['span.price']
      location:
        selectors: ['span.location']
    precedence:
      phone: [reveal, selectors, text]
    recency:
      enabled: true
      selectors: ['time']
    reveal:
      enabled: true
      controls: ['button.showPhone']
      modal: 'div#phoneModal'
      input: 'input#name'
      submit: 'button#send'
      step_timeout: 50ms
      poll_interval: 2ms
      poll_attempts: 3
`

func testSite(t *testing.T) config.Site {
	t.Helper()
	sites, err := config.ParseSites([]byte(sitesYAML))
	require.NoError(t, err)
	site, err := sites.Get("example")
	require.NoError(t, err)
	return site
}

func resultPage(next string, ids ...string) string {
	html := "<html><body>"
	for _, id := range ids {
		html += `<article><a class="card" href="/item/` + id + `">annonce</a></article>`
	}
	if next != "" {
		html += `<a rel="next" href="` + next + `">suivant</a>`
	}
	return html + "</body></html>"
}

func detailPage(title, age string) string {
	html := "<html><body>"
	if title != "" {
		html += "<h1>" + title + "</h1>"
	}
	return html + `<span class="price">450 000 DT</span><span class="location">Lac 2</span>` +
		"<time>" + age + "</time></body></html>"
}

type collector struct {
	mu      sync.Mutex
	batches [][]*models.PropertyRecord
}

func (c *collector) sink() storage.RecordSink {
	return storage.NewCallbackSink(func(_ context.Context, recs []*models.PropertyRecord) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.batches = append(c.batches, recs)
		return nil
	})
}

func newOrchestrator(b browser.Browser, sink storage.RecordSink, tweaks ...func(*Options)) *Orchestrator {
	logger := utils.NewNopLogger()
	opts := Options{
		Country:     "Tunisia",
		NavTimeout:  time.Second,
		MaxRetries:  1,
		MaxAgeDays:  30,
		UnparsedAge: recency.KeepUnparsed,
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	return NewOrchestrator(b, geocode.NewResolver(nil, geocode.TunisiaGazetteer(), logger), sink, opts, logger)
}

func detailConcurrency(n int) func(*Options) {
	return func(o *Options) { o.DetailConcurrency = n }
}

func urls(recs []*models.PropertyRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.SourceURL)
	}
	return out
}

func TestRunStopsAfterEmptyThirdPage(t *testing.T) {
	b := browsertest.New().
		AddPage(startURL, resultPage("?page=2", "1", "2")).
		AddPage(page2URL, resultPage("?page=3", "3")).
		AddPage(page3URL, resultPage("?page=4")).
		AddPage("https://example.tn/item/1", detailPage("Appartement S+3 Tunis", "il y a 3 jours")).
		AddPage("https://example.tn/item/2", detailPage("Studio meublé", "Aujourd'hui")).
		AddPage("https://example.tn/item/3", detailPage("Villa S+4", "hier"))

	c := &collector{}
	progress := &Progress{}
	recs, err := newOrchestrator(b, c.sink()).Run(context.Background(), Request{
		Site:     testSite(t),
		StartURL: startURL,
		MaxPages: 5,
	}, progress)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.tn/item/1",
		"https://example.tn/item/2",
		"https://example.tn/item/3",
	}, urls(recs))
	require.Len(t, c.batches, 2)
	assert.Len(t, c.batches[0], 2)
	assert.Len(t, c.batches[1], 1)
	assert.NotContains(t, b.Visits(), startURL+"?page=4")

	st := progress.Status()
	assert.Equal(t, 2, st.PagesProcessed)
	assert.Equal(t, 3, st.RecordsExtracted)

	first := recs[0]
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, "example", first.SourceSite)
	assert.Equal(t, int64(450000), first.PriceNormalized)
	assert.Equal(t, 3, first.Bedrooms)
	assert.Equal(t, 4, first.Rooms)
	assert.Equal(t, "Lac 2, Tunisia", first.FullAddress)
	assert.Equal(t, models.GeoSourceGazetteer, first.GeoSource)
	assert.False(t, first.ScrapedAt.IsZero())

	assert.Equal(t, 1, recs[1].Rooms)
	assert.Equal(t, 1, recs[1].Bedrooms)
}

func TestRunEnforcesRecordCap(t *testing.T) {
	b := browsertest.New().
		AddPage(startURL, resultPage("?page=2", "1", "2", "3")).
		AddPage(page2URL, resultPage("", "4")).
		AddPage("https://example.tn/item/1", detailPage("Appartement A", "hier")).
		AddPage("https://example.tn/item/2", detailPage("Appartement B", "hier")).
		AddPage("https://example.tn/item/3", detailPage("Appartement C", "hier"))

	recs, err := newOrchestrator(b, nil).Run(context.Background(), Request{
		Site:       testSite(t),
		StartURL:   startURL,
		MaxPages:   5,
		MaxRecords: 2,
	}, nil)

	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.NotContains(t, b.Visits(), "https://example.tn/item/3")
	assert.NotContains(t, b.Visits(), page2URL)
}

func TestRunConcurrentDetailsKeepCandidateOrder(t *testing.T) {
	b := browsertest.New().
		AddPage(startURL, resultPage("", "1", "2", "3")).
		AddPage("https://example.tn/item/1", detailPage("Appartement A", "hier")).
		AddPage("https://example.tn/item/2", detailPage("Appartement B", "hier")).
		AddPage("https://example.tn/item/3", detailPage("Appartement C", "hier")).
		DelayNavigation("https://example.tn/item/1", 60*time.Millisecond).
		DelayNavigation("https://example.tn/item/2", 30*time.Millisecond)

	c := &collector{}
	recs, err := newOrchestrator(b, c.sink(), detailConcurrency(3)).Run(context.Background(), Request{
		Site:     testSite(t),
		StartURL: startURL,
		MaxPages: 1,
	}, nil)

	require.NoError(t, err)
	want := []string{
		"https://example.tn/item/1",
		"https://example.tn/item/2",
		"https://example.tn/item/3",
	}
	assert.Equal(t, want, urls(recs))
	require.Len(t, c.batches, 1)
	assert.Equal(t, want, urls(c.batches[0]))
}

func TestRunConcurrentDetailsRespectRecordCap(t *testing.T) {
	b := browsertest.New().
		AddPage(startURL, resultPage("?page=2", "1", "2", "3", "4")).
		AddPage(page2URL, resultPage("", "5")).
		AddPage("https://example.tn/item/1", detailPage("Appartement A", "hier")).
		AddPage("https://example.tn/item/2", detailPage("Appartement B", "hier")).
		AddPage("https://example.tn/item/3", detailPage("Appartement C", "hier")).
		AddPage("https://example.tn/item/4", detailPage("Appartement D", "hier")).
		DelayNavigation("https://example.tn/item/1", 40*time.Millisecond)

	progress := &Progress{}
	recs, err := newOrchestrator(b, nil, detailConcurrency(3)).Run(context.Background(), Request{
		Site:       testSite(t),
		StartURL:   startURL,
		MaxPages:   5,
		MaxRecords: 2,
	}, progress)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.tn/item/1", "https://example.tn/item/2"}, urls(recs))
	assert.Equal(t, 2, progress.Status().RecordsExtracted)
	assert.NotContains(t, b.Visits(), page2URL)
}

func TestRunDropsUnparsedAgeWhenConfigured(t *testing.T) {
	b := browsertest.New().
		AddPage(startURL, resultPage("", "1", "2", "3")).
		AddPage("https://example.tn/item/1", detailPage("Appartement A", "bientôt disponible")).
		AddPage("https://example.tn/item/2", `<html><body><h1>Appartement B</h1><span class="price">300 000 DT</span></body></html>`).
		AddPage("https://example.tn/item/3", detailPage("Appartement C", "il y a 2 jours"))

	progress := &Progress{}
	recs, err := newOrchestrator(b, nil, func(o *Options) { o.UnparsedAge = recency.DropUnparsed }).
		Run(context.Background(), Request{Site: testSite(t), StartURL: startURL, MaxPages: 1}, progress)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.tn/item/3"}, urls(recs))
	assert.Equal(t, models.RunStatus{
		PagesProcessed:   1,
		RecordsExtracted: 1,
		RecordsDropped:   2,
	}, progress.Status())
}

func TestRunKeepsUnparsedAgeByDefault(t *testing.T) {
	b := browsertest.New().
		AddPage(startURL, resultPage("", "1", "2")).
		AddPage("https://example.tn/item/1", detailPage("Appartement A", "bientôt disponible")).
		AddPage("https://example.tn/item/2", `<html><body><h1>Appartement B</h1></body></html>`)

	recs, err := newOrchestrator(b, nil).Run(context.Background(), Request{
		Site:     testSite(t),
		StartURL: startURL,
		MaxPages: 1,
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.tn/item/1", "https://example.tn/item/2"}, urls(recs))
}

func TestRunFailsWithoutSession(t *testing.T) {
	b := browsertest.New().FailOpen(errors.New("chrome not found"))
	progress := &Progress{}

	recs, err := newOrchestrator(b, nil).Run(context.Background(), Request{
		Site:     testSite(t),
		StartURL: startURL,
	}, progress)

	assert.Empty(t, recs)
	assert.True(t, errors.Is(err, browser.ErrSessionUnavailable))
	assert.Equal(t, models.RunStatus{}, progress.Status())
}

func TestRunDropsAndSkips(t *testing.T) {
	b := browsertest.New().
		AddPage(startURL, resultPage("", "1", "2", "3", "4")).
		AddPage("https://example.tn/item/1", detailPage("", "hier")).
		AddPage("https://example.tn/item/2", detailPage("Appartement ancien", "il y a 2 mois")).
		FailNavigation("https://example.tn/item/3", errors.New("net::ERR_TIMED_OUT")).
		AddPage("https://example.tn/item/4", detailPage("Duplex S+2 Sousse", "Publié il y a 5 heures"))

	progress := &Progress{}
	recs, err := newOrchestrator(b, nil).Run(context.Background(), Request{
		Site:     testSite(t),
		StartURL: startURL,
		MaxPages: 1,
	}, progress)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.tn/item/4"}, urls(recs))
	assert.Equal(t, models.RunStatus{
		PagesProcessed:   1,
		RecordsExtracted: 1,
		RecordsDropped:   2,
		ListingsSkipped:  1,
	}, progress.Status())
}

func TestRunUsesRevealedPhone(t *testing.T) {
	listing := "https://example.tn/item/7"
	b := browsertest.New().
		AddPage(startURL, resultPage("", "7")).
		AddPage(listing, `<html><body><h1>Villa avec piscine</h1><button class="showPhone">Afficher</button></body></html>`)
	b.OnClick("button.showPhone", func(t *browsertest.Tab) {
		t.ReplaceHTML("</body>", `<div id="phoneModal"><input id="name"><button id="send">Envoyer</button></div></body>`)
	})
	b.OnClick("button#send", func(t *browsertest.Tab) {
		t.ReplaceHTML("</body>", `<a href="tel:+21655123456">Appeler</a></body>`)
	})

	recs, err := newOrchestrator(b, nil).Run(context.Background(), Request{
		Site:     testSite(t),
		StartURL: startURL,
		MaxPages: 1,
	}, nil)

	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "55123456", recs[0].ContactPhone)
}

func TestRunCancelledBetweenPages(t *testing.T) {
	b := browsertest.New().
		AddPage(startURL, resultPage("?page=2", "1")).
		AddPage(page2URL, resultPage("", "2")).
		AddPage("https://example.tn/item/1", detailPage("Appartement A", "hier")).
		AddPage("https://example.tn/item/2", detailPage("Appartement B", "hier"))

	ctx, cancel := context.WithCancel(context.Background())
	sink := storage.NewCallbackSink(func(context.Context, []*models.PropertyRecord) error {
		cancel()
		return nil
	})

	recs, err := newOrchestrator(b, sink).Run(ctx, Request{
		Site:     testSite(t),
		StartURL: startURL,
		MaxPages: 5,
	}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, []string{"https://example.tn/item/1"}, urls(recs))
	assert.NotContains(t, b.Visits(), page2URL)
}

func TestRunnerRejectsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	b := browsertest.New().
		AddPage(startURL, resultPage("", "1")).
		AddPage("https://example.tn/item/1", detailPage("Appartement A", "hier"))
	sink := storage.NewCallbackSink(func(context.Context, []*models.PropertyRecord) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})

	pool := utils.NewBoundedWorkerPool(1, 0, 0, utils.PolicyReject)
	runner := NewRunner(newOrchestrator(b, sink), pool, utils.NewNopLogger())
	req := Request{Site: testSite(t), StartURL: startURL, MaxPages: 1}

	h, err := runner.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID())
	<-started

	_, err = runner.Submit(context.Background(), req)
	assert.True(t, errors.Is(err, utils.ErrPoolSaturated))

	close(release)
	recs, err := h.Wait()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 1, h.Status().RecordsExtracted)
	runner.Wait()
}

func TestHandleCancel(t *testing.T) {
	b := browsertest.New().
		AddPage(startURL, resultPage("?page=2", "1")).
		AddPage(page2URL, resultPage("", "2")).
		AddPage("https://example.tn/item/1", detailPage("Appartement A", "hier")).
		AddPage("https://example.tn/item/2", detailPage("Appartement B", "hier"))

	var h *Handle
	ready := make(chan struct{})
	sink := storage.NewCallbackSink(func(context.Context, []*models.PropertyRecord) error {
		<-ready
		h.Cancel()
		return nil
	})

	runner := NewRunner(newOrchestrator(b, sink), utils.NewBoundedWorkerPool(2, 0, 0, utils.PolicyBlock), utils.NewNopLogger())
	var err error
	h, err = runner.Submit(context.Background(), Request{Site: testSite(t), StartURL: startURL, MaxPages: 5})
	require.NoError(t, err)
	close(ready)

	recs, err := h.Wait()
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, recs, 1)
	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after Wait")
	}
}

package reveal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-scraper/browser"
	"property-scraper/browser/browsertest"
	"property-scraper/config"
	"property-scraper/utils"
)

const listingURL = "https://www.mubawab.tn/fr/a/123456/villa"

const listingHTML = `<html><body><h1>Villa</h1><button class="showPhone">Afficher le numéro</button></body></html>`

func testConfig() config.Reveal {
	return config.Reveal{
		Enabled:      true,
		Controls:     []string{"a.contactPhoneClick", "button.showPhone"},
		Modal:        "div#contactPhoneModal",
		Input:        `input[name="name"]`,
		InputValue:   "Visiteur",
		Submit:       "button#sendPhoneForm",
		Link:         `a[href^="tel:"]`,
		StepTimeout:  50 * time.Millisecond,
		PollInterval: 2 * time.Millisecond,
		PollAttempts: 5,
	}
}

func openTab(t *testing.T, b *browsertest.Browser) browser.Tab {
	t.Helper()
	ctx := context.Background()
	sess, err := b.OpenSession(ctx)
	require.NoError(t, err)
	tab, err := sess.NewTab(ctx)
	require.NoError(t, err)
	require.NoError(t, tab.Navigate(ctx, listingURL, time.Second))
	return tab
}

// scriptedSite wires the full happy path: the control opens a modal with a
// disabled submit button, filling the name enables it and submitting shows
// the tel: link.
func scriptedSite(cfg config.Reveal, href string) *browsertest.Browser {
	b := browsertest.New().AddPage(listingURL, listingHTML)
	b.OnClick("button.showPhone", func(t *browsertest.Tab) {
		t.ReplaceHTML("</body>", `<div id="contactPhoneModal"><input name="name"><button id="sendPhoneForm" disabled>Envoyer</button></div></body>`)
	})
	b.OnFill(cfg.Input, func(t *browsertest.Tab) {
		t.ReplaceHTML(`<button id="sendPhoneForm" disabled>`, `<button id="sendPhoneForm">`)
	})
	b.OnClick(cfg.Submit, func(t *browsertest.Tab) {
		t.ReplaceHTML("</body>", `<a href="`+href+`">Appeler</a></body>`)
	})
	return b
}

func TestRevealHappyPath(t *testing.T) {
	cfg := testConfig()
	b := scriptedSite(cfg, "tel:+21698123456/22333444")
	tab := openTab(t, b)

	out := NewController(cfg, utils.NewNopLogger()).Run(context.Background(), tab)

	require.NoError(t, out.Err)
	assert.Equal(t, Extracted, out.State)
	assert.Equal(t, "98123456", out.Phone)
	assert.Equal(t, "tel:+21698123456/22333444", out.Link)
	assert.Equal(t, []State{Idle, ButtonLocated, ModalOpened, InputFilled, SubmitEnabled, Revealed, Extracted}, out.Trace)
	assert.Equal(t, "Visiteur", tab.(*browsertest.Tab).Value(cfg.Input))
}

func TestRevealWithoutControlAborts(t *testing.T) {
	cfg := testConfig()
	b := browsertest.New().AddPage(listingURL, `<html><body><h1>Villa</h1></body></html>`)

	out := NewController(cfg, utils.NewNopLogger()).Run(context.Background(), openTab(t, b))

	assert.Equal(t, Aborted, out.State)
	assert.Equal(t, []State{Idle, Aborted}, out.Trace)
	assert.True(t, errors.Is(out.Err, ErrNoControl))
	assert.Empty(t, out.Phone)
}

func TestRevealModalTimeoutAborts(t *testing.T) {
	cfg := testConfig()
	b := browsertest.New().AddPage(listingURL, listingHTML)

	start := time.Now()
	out := NewController(cfg, utils.NewNopLogger()).Run(context.Background(), openTab(t, b))

	assert.Equal(t, Aborted, out.State)
	assert.Equal(t, []State{Idle, ButtonLocated, Aborted}, out.Trace)
	assert.Error(t, out.Err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRevealSubmitNeverEnabled(t *testing.T) {
	cfg := testConfig()
	b := scriptedSite(cfg, "tel:98123456")
	b.OnFill(cfg.Input, nil)

	out := NewController(cfg, utils.NewNopLogger()).Run(context.Background(), openTab(t, b))

	assert.Equal(t, Aborted, out.State)
	assert.Equal(t, []State{Idle, ButtonLocated, ModalOpened, InputFilled, Aborted}, out.Trace)
	assert.True(t, errors.Is(out.Err, ErrSubmitDisabled))
}

func TestRevealInvalidNumber(t *testing.T) {
	cfg := testConfig()
	b := scriptedSite(cfg, "tel:1234")

	out := NewController(cfg, utils.NewNopLogger()).Run(context.Background(), openTab(t, b))

	assert.Equal(t, Aborted, out.State)
	assert.True(t, errors.Is(out.Err, ErrInvalidNumber))
	assert.Empty(t, out.Phone)
}

func TestRevealCancelledContext(t *testing.T) {
	cfg := testConfig()
	b := scriptedSite(cfg, "tel:98123456")
	tab := openTab(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := NewController(cfg, utils.NewNopLogger()).Run(ctx, tab)

	assert.Equal(t, []State{Idle, Aborted}, out.Trace)
	assert.True(t, errors.Is(out.Err, context.Canceled))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "submit_enabled", SubmitEnabled.String())
	assert.Equal(t, "aborted", Aborted.String())
	assert.Equal(t, "unknown", State(42).String())
}

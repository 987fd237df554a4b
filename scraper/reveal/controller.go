// Package reveal drives the interactive workflow some sites put in front of
// a listing's phone number: click a control, fill a gating form, submit it
// and read the tel: link that appears.
package reveal

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"property-scraper/browser"
	"property-scraper/config"
	"property-scraper/scraper/extract"
	"property-scraper/utils"
)

// State is a step of the reveal workflow.
type State int

const (
	Idle State = iota
	ButtonLocated
	ModalOpened
	InputFilled
	SubmitEnabled
	Revealed
	Extracted
	Aborted
)

var stateNames = [...]string{
	Idle:          "idle",
	ButtonLocated: "button_located",
	ModalOpened:   "modal_opened",
	InputFilled:   "input_filled",
	SubmitEnabled: "submit_enabled",
	Revealed:      "revealed",
	Extracted:     "extracted",
	Aborted:       "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Extracted || s == Aborted }

// Abort reasons.
var (
	ErrNoControl      = eris.New("reveal: no reveal control on page")
	ErrSubmitDisabled = eris.New("reveal: submit control never became enabled")
	ErrInvalidNumber  = eris.New("reveal: revealed link holds no valid number")
)

// Outcome is the result of one workflow run. Phone is set only when State
// is Extracted; Err explains an Aborted run.
type Outcome struct {
	Phone string
	Link  string
	State State
	Trace []State
	Err   error
}

// Controller runs the reveal state machine against a tab. Every transition
// is bounded by the profile's step timeout.
type Controller struct {
	cfg    config.Reveal
	logger *utils.Logger
}

// NewController creates a Controller for the site's reveal settings.
func NewController(cfg config.Reveal, logger *utils.Logger) *Controller {
	return &Controller{cfg: cfg, logger: logger}
}

// Enabled reports whether the site uses a reveal workflow at all.
func (c *Controller) Enabled() bool { return c.cfg.Enabled }

type run struct {
	c       *Controller
	tab     browser.Tab
	control string
	out     Outcome
}

// Run drives the workflow until it reaches Extracted or Aborted. It never
// returns an error: failures are reported through Outcome so the caller can
// fall back to text heuristics.
func (c *Controller) Run(ctx context.Context, tab browser.Tab) Outcome {
	r := &run{c: c, tab: tab}
	r.enter(Idle)

	for !r.out.State.Terminal() {
		if err := ctx.Err(); err != nil {
			r.abort(eris.Wrap(err, "reveal: cancelled"))
			break
		}
		next, err := r.step(ctx)
		if err != nil {
			r.abort(err)
			break
		}
		r.enter(next)
	}

	if r.out.State == Aborted {
		c.logger.Debug("[reveal] aborted after %s: %v", r.out.Trace[len(r.out.Trace)-2], r.out.Err)
	} else {
		c.logger.Debug("[reveal] extracted %s", r.out.Phone)
	}
	return r.out
}

func (r *run) enter(s State) {
	r.out.State = s
	r.out.Trace = append(r.out.Trace, s)
}

func (r *run) abort(err error) {
	r.out.Err = eris.Wrapf(err, "reveal aborted at %s", r.out.State)
	r.out.Phone = ""
	r.enter(Aborted)
}

func (r *run) step(ctx context.Context) (State, error) {
	cfg := r.c.cfg
	stepCtx, cancel := context.WithTimeout(ctx, cfg.StepTimeout)
	defer cancel()

	switch r.out.State {
	case Idle:
		for _, sel := range cfg.Controls {
			ok, err := r.tab.Exists(stepCtx, sel)
			if err != nil {
				return Aborted, err
			}
			if ok {
				r.control = sel
				return ButtonLocated, nil
			}
		}
		return Aborted, ErrNoControl

	case ButtonLocated:
		if err := r.tab.Click(stepCtx, r.control, cfg.StepTimeout); err != nil {
			return Aborted, err
		}
		if cfg.Modal != "" {
			if err := r.tab.WaitVisible(stepCtx, cfg.Modal, cfg.StepTimeout); err != nil {
				return Aborted, eris.Wrap(err, "modal did not open")
			}
		}
		return ModalOpened, nil

	case ModalOpened:
		if cfg.Input != "" {
			if err := r.tab.Fill(stepCtx, cfg.Input, cfg.InputValue, cfg.StepTimeout); err != nil {
				return Aborted, err
			}
		}
		return InputFilled, nil

	case InputFilled:
		return r.pollSubmit(stepCtx)

	case SubmitEnabled:
		if err := r.tab.Click(stepCtx, cfg.Submit, cfg.StepTimeout); err != nil {
			return Aborted, err
		}
		if err := r.tab.WaitVisible(stepCtx, cfg.Link, cfg.StepTimeout); err != nil {
			return Aborted, eris.Wrap(err, "number was not revealed")
		}
		return Revealed, nil

	case Revealed:
		href, ok, err := r.tab.Attribute(stepCtx, cfg.Link, "href")
		if err != nil {
			return Aborted, err
		}
		phone, valid := extract.NormalizePhone(href)
		if !ok || !valid {
			return Aborted, eris.Wrapf(ErrInvalidNumber, "href %q", href)
		}
		r.out.Link = href
		r.out.Phone = phone
		return Extracted, nil
	}
	return Aborted, eris.Errorf("reveal: no transition from %s", r.out.State)
}

// pollSubmit waits for the submit control to be present and enabled, up to
// the configured number of attempts.
func (r *run) pollSubmit(ctx context.Context) (State, error) {
	cfg := r.c.cfg
	attempts := max(cfg.PollAttempts, 1)

	for i := 0; i < attempts; i++ {
		enabled, err := r.submitEnabled(ctx)
		if err != nil {
			return Aborted, err
		}
		if enabled {
			return SubmitEnabled, nil
		}
		select {
		case <-ctx.Done():
			return Aborted, eris.Wrap(ctx.Err(), "waiting for submit")
		case <-time.After(cfg.PollInterval):
		}
	}
	return Aborted, ErrSubmitDisabled
}

func (r *run) submitEnabled(ctx context.Context) (bool, error) {
	sel := r.c.cfg.Submit
	present, err := r.tab.Exists(ctx, sel)
	if err != nil || !present {
		return false, err
	}
	if _, disabled, err := r.tab.Attribute(ctx, sel, "disabled"); err != nil || disabled {
		return false, err
	}
	if v, ok, err := r.tab.Attribute(ctx, sel, "aria-disabled"); err != nil || (ok && v == "true") {
		return false, err
	}
	return true, nil
}

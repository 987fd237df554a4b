// Package browser defines the browser automation capability the scraper
// consumes: isolated sessions that open short-lived tabs.
package browser

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrSessionUnavailable is returned when a navigation context cannot be acquired.
var ErrSessionUnavailable = eris.New("browser session unavailable")

// ErrNotFound is returned when a selector matches nothing.
var ErrNotFound = eris.New("element not found")

// Browser hands out isolated sessions. Sessions are never shared between workers.
type Browser interface {
	OpenSession(ctx context.Context) (Session, error)
	Close() error
}

// Session is an isolated navigation context owned by one worker for the
// duration of a run.
type Session interface {
	NewTab(ctx context.Context) (Tab, error)
	Close() error
}

// Tab is a single page inside a session. Every blocking method is bounded
// either by an explicit timeout or by ctx.
type Tab interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	HTML(ctx context.Context) (string, error)
	Exists(ctx context.Context, selector string) (bool, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	// Fill sets the value of an input and fires its input and change events.
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	// Attribute reads an attribute of the first matching element; ok is false
	// when the element or the attribute is missing.
	Attribute(ctx context.Context, selector, name string) (value string, ok bool, err error)
	Evaluate(ctx context.Context, script string, res any) error
	Close() error
}

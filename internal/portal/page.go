// Package portal drives the government EWB portal through a browser page:
// login hand-off, GSTIN-wise report downloads, bill detail pages and toll
// reports. Everything above Page is testable without a browser.
package portal

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoExport means the report had no rows for the submitted filter.
	ErrNoExport = errors.New("no export available")
	// ErrNoTable means an expected HTML table was not on the page.
	ErrNoTable = errors.New("table not found")
)

// Page is the single browser tab the worker operates on. Every blocking
// call is bounded by ctx; callers choose the timeout tier.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// WaitIdle waits until the document and any partial postback have settled.
	WaitIdle(ctx context.Context) error
	// Location returns the current URL.
	Location(ctx context.Context) (string, error)

	WaitVisible(ctx context.Context, sel string) error
	// Probe reports whether sel becomes visible within timeout. Running out
	// of time is a false result, not an error.
	Probe(ctx context.Context, sel string, timeout time.Duration) (bool, error)

	Click(ctx context.Context, sel string) error
	// Submit clicks a postback button and waits for the new document.
	Submit(ctx context.Context, sel string) error
	// Type sends keystrokes to an input.
	Type(ctx context.Context, sel, value string) error
	// SetValue assigns an input's value directly, bypassing read-only widgets.
	SetValue(ctx context.Context, sel, value string) error
	// Select picks an option of a select element by value and fires change.
	Select(ctx context.Context, sel, value string) error

	Text(ctx context.Context, sel string) (string, error)
	OuterHTML(ctx context.Context, sel string) (string, error)

	// Download clicks sel and saves the resulting download to dst.
	Download(ctx context.Context, sel, dst string) error
	// ClickAwaitDialog clicks sel and waits for either a JavaScript dialog,
	// which is accepted (true), or for fallback to become visible (false).
	ClickAwaitDialog(ctx context.Context, sel, fallback string) (bool, error)
	// OpenTab clicks sel, which opens a new tab, and returns that tab.
	OpenTab(ctx context.Context, sel string) (Page, error)
	BringToFront(ctx context.Context) error

	Close() error
}

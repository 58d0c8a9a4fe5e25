// Package browser launches headless browser sessions and exposes the narrow page
// surface that scrape routines drive.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrSessionClosed is returned by page operations issued after the owning session closed.
var ErrSessionClosed = errors.New("browser session closed")

// Page is the set of interactions a scrape routine may perform on a loaded tab.
type Page interface {
	// Navigate loads url and waits until the network is almost idle, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Exists reports whether selector currently matches at least one node, without waiting.
	Exists(ctx context.Context, selector string) (bool, error)
	// Click waits for selector to be visible and clicks it, bounded by timeout.
	Click(ctx context.Context, selector string, timeout time.Duration) error
	// WaitVisible blocks until selector matches a visible node or timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Type(ctx context.Context, selector, text string) error
	PressEnter(ctx context.Context) error
	// Content returns the serialized document, doctype included.
	Content(ctx context.Context) (string, error)
}

// Session owns one browser process and its single page.
type Session interface {
	Page() Page
	// Close terminates the browser process. It is safe to call more than once.
	Close() error
}

// Launcher starts a fresh browser Session. Sessions are never shared or reused.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

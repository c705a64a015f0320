// Package browser defines the page port the runtime drives and a chromedp
// implementation of it.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrNoPage is returned when no page is open in the session.
	ErrNoPage = errors.New("no active page")
	// ErrElementNotFound is returned when an element index does not resolve.
	ErrElementNotFound = errors.New("element not found")
	// ErrClosed is returned after the session has been closed.
	ErrClosed = errors.New("browser session closed")
)

// Format is the raster encoding of a screenshot.
type Format string

// PNG is the only format evidence uses.
const PNG Format = "png"

// ScreenshotOptions controls a capture.
type ScreenshotOptions struct {
	FullPage          bool
	DisableAnimations bool
	Format            Format
}

// Element is an interactive element indexed for the reasoner.
type Element struct {
	Index int    `json:"index"`
	Tag   string `json:"tag"`
	Text  string `json:"text,omitempty"`
	Role  string `json:"role,omitempty"`
	Type  string `json:"type,omitempty"`
	Href  string `json:"href,omitempty"`
}

// State is a snapshot of the active page.
type State struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Elements []Element `json:"elements"`
}

// Page is the active browser page. Implementations serialise access; the
// runtime is the only writer.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, index int) error
	Type(ctx context.Context, index int, text string) error
	Scroll(ctx context.Context, pixels int) error
	Back(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	State(ctx context.Context) (State, error)
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
}

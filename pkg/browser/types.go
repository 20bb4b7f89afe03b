// pkg/browser/types.go
package browser

import (
	"context"
	"time"
)

// Location identifies where a page currently is.
type Location struct {
	URL   string
	Title string
}

// Page defines the interface for driving a single browser tab. The automation
// layers (indexing, actions, stability, auth) depend on this interface rather
// than on chromedp directly, so they can be exercised against fakes in tests.
type Page interface {
	// Navigate loads a URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// Location returns the current URL and document title.
	Location(ctx context.Context) (Location, error)

	// Content returns the full serialized HTML of the current document.
	Content(ctx context.Context) (string, error)

	// Screenshot captures the visible viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Evaluate runs a JavaScript expression in the page. When out is non-nil
	// the JSON result is unmarshalled into it.
	Evaluate(ctx context.Context, expression string, out any) error

	// Click dispatches a trusted mouse press/release pair at viewport coordinates.
	Click(ctx context.Context, x, y float64) error

	// TypeText inserts text into the currently focused element via synthetic
	// keyboard input.
	TypeText(ctx context.Context, text string) error

	// PressKey dispatches a single named key (e.g. "Enter") to the focused element.
	PressKey(ctx context.Context, key string) error

	// ScrollBy scrolls the viewport vertically by the given pixel delta.
	ScrollBy(ctx context.Context, deltaY float64) error

	// WaitQuiescent blocks until in-flight network activity settles or the
	// timeout elapses.
	WaitQuiescent(ctx context.Context, timeout time.Duration) error

	// Close terminates the tab and releases its slot with the manager.
	Close(ctx context.Context) error
}

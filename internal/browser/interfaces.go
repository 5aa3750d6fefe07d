package browser

import (
	"context"
	"time"
)

// BrowserHandle owns one live browser process. The session holding it is the
// sole owner of the process lifetime.
type BrowserHandle interface {
	// Close terminates the browser process. Termination is best-effort;
	// callers log failures rather than surface them.
	Close(ctx context.Context) error
}

// PageHandle drives the single page (tab) bound to a session. Implementations
// wrap a concrete automation library so that session lifecycle and scoring
// logic never touch library types directly.
type PageHandle interface {
	// Navigate drives the page to url and waits until the DOM is ready and
	// network activity has been quiet for the configured period, bounded by
	// the navigation timeout.
	Navigate(ctx context.Context, url string) error

	// Click dispatches a click on the first element matching the CSS selector.
	Click(ctx context.Context, selector string) error

	// ClickAt dispatches a click at literal viewport coordinates.
	ClickAt(ctx context.Context, x, y float64) error

	// ClickByText clicks the first anchor whose visible text matches text.
	ClickByText(ctx context.Context, text string) error

	// Type focuses the element matching selector and types text into it.
	Type(ctx context.Context, selector, text string) error

	// Hover moves the pointer over the element matching selector.
	Hover(ctx context.Context, selector string) error

	// Scroll dispatches a mouse-wheel scroll by deltaY pixels.
	Scroll(ctx context.Context, deltaY float64) error

	// Sleep blocks for d, yielding to the page's own event loop when the
	// underlying library supports it.
	Sleep(ctx context.Context, d time.Duration) error

	// Screenshot captures a viewport-sized PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Evaluate runs a JavaScript expression and unmarshals its result into out.
	Evaluate(ctx context.Context, expression string, out any) error

	// WaitNavigation blocks until a navigation triggered by a prior action
	// completes, bounded by timeout. A timeout is reported as an error; many
	// clicks legitimately change page state without navigating.
	WaitNavigation(ctx context.Context, timeout time.Duration) error
}

// LaunchOptions carries the per-session launch parameters.
type LaunchOptions struct {
	Headless bool
}

// Launcher starts one browser process and one page for a session. The
// production implementation tries an ordered list of launch strategies; tests
// substitute fakes.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (BrowserHandle, PageHandle, error)
}

package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browserd/internal/config"
)

// Per-interaction timeout for short CDP round trips (clicks, key events).
const interactionTimeout = 15 * time.Second

// When this many or fewer requests are in flight the page counts as "mostly
// idle". Long-polling pages hold a connection open forever, so zero in-flight
// is the wrong target.
const idleInflightThreshold = 2

// startChrome performs one launch attempt: allocator, tab, and page setup.
// The allocator derives from context.Background() because the process must
// outlive the create request; only the attempt itself is bounded by ctx.
func (l *ChromeLauncher) startChrome(ctx context.Context, allocOpts []chromedp.ExecAllocatorOption) (BrowserHandle, PageHandle, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	cleanup := func() {
		tabCancel()
		allocCancel()
	}

	launchCtx, cancel := context.WithTimeout(ctx, l.cfg.LaunchTimeout)
	defer cancel()

	// chromedp.Run blocks until the process is up; guard it with the launch
	// timeout so a wedged binary cannot stall session creation forever.
	errCh := make(chan error, 1)
	go func() { errCh <- chromedp.Run(tabCtx) }()

	select {
	case err := <-errCh:
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to start browser process: %w", err)
		}
	case <-launchCtx.Done():
		cleanup()
		return nil, nil, fmt.Errorf("timeout waiting for browser launch: %w", launchCtx.Err())
	}

	pg := newChromePage(tabCtx, l.cfg, l.logger)
	if err := pg.init(launchCtx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize page: %w", err)
	}

	return &chromeBrowser{tabCtx: tabCtx, cancelTab: tabCancel, cancelAlloc: allocCancel}, pg, nil
}

// chromeBrowser owns the Chrome process behind one session.
type chromeBrowser struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

var _ BrowserHandle = (*chromeBrowser)(nil)

// Close asks Chrome to shut down gracefully, bounded by ctx, then tears down
// the contexts unconditionally.
func (b *chromeBrowser) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(b.tabCtx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	b.cancelTab()
	b.cancelAlloc()
	return err
}

// chromePage implements PageHandle over a chromedp tab context.
type chromePage struct {
	tabCtx context.Context
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu       sync.Mutex
	inflight map[network.RequestID]struct{}

	// navCh receives one token per top-level frame navigation. Buffered so a
	// navigation that lands between a click and WaitNavigation is not lost.
	navCh chan struct{}
}

var _ PageHandle = (*chromePage)(nil)

func newChromePage(tabCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) *chromePage {
	return &chromePage{
		tabCtx:   tabCtx,
		cfg:      cfg,
		logger:   logger.Named("page"),
		inflight: make(map[network.RequestID]struct{}),
		navCh:    make(chan struct{}, 1),
	}
}

// init applies the fixed user agent and viewport, starts event tracking, and
// enables pass-through request interception. Interception performs no
// filtering today; it exists so request policy can be added later without
// touching this initialization path, and failure to enable it is non-fatal.
func (p *chromePage) init(ctx context.Context) error {
	chromedp.ListenTarget(p.tabCtx, p.handleEvent)

	if err := p.run(ctx,
		network.Enable(),
		emulation.SetUserAgentOverride(p.cfg.UserAgent),
		chromedp.EmulateViewport(int64(p.cfg.ViewportWidth), int64(p.cfg.ViewportHeight)),
	); err != nil {
		return fmt.Errorf("failed to apply page defaults: %w", err)
	}

	if err := p.run(ctx, fetch.Enable()); err != nil {
		p.logger.Warn("Could not enable request interception; continuing without it.", zap.Error(err))
	}

	return nil
}

// handleEvent tracks in-flight requests for the network-idle heuristic,
// top-level navigations for WaitNavigation, and continues every intercepted
// request (pass-through mode).
func (p *chromePage) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.mu.Lock()
		p.inflight[e.RequestID] = struct{}{}
		p.mu.Unlock()
	case *network.EventLoadingFinished:
		p.mu.Lock()
		delete(p.inflight, e.RequestID)
		p.mu.Unlock()
	case *network.EventLoadingFailed:
		p.mu.Lock()
		delete(p.inflight, e.RequestID)
		p.mu.Unlock()
	case *page.EventFrameNavigated:
		if e.Frame.ParentID == "" {
			select {
			case p.navCh <- struct{}{}:
			default:
			}
		}
	case *fetch.EventRequestPaused:
		// Event handlers must not block; continue the request on the target's
		// executor from a separate goroutine.
		go func() {
			c := chromedp.FromContext(p.tabCtx)
			execCtx := cdp.WithExecutor(p.tabCtx, c.Target)
			if err := fetch.ContinueRequest(e.RequestID).Do(execCtx); err != nil {
				p.logger.Debug("Failed to continue intercepted request.", zap.Error(err))
			}
		}()
	}
}

// run executes chromedp actions respecting both the tab lifetime and the
// caller's context.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate drives the page to url and settles: DOM ready, then network mostly
// idle for the configured quiet period, all bounded by the navigation timeout.
func (p *chromePage) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.cfg.NavigationTimeout)
	defer cancel()

	if err := p.run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, p.cfg.NavigationTimeout, navCtx.Err())
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	if err := p.run(navCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("page did not become ready: %w", err)
	}

	if err := p.waitNetworkIdle(navCtx, p.cfg.QuietPeriod); err != nil {
		return fmt.Errorf("page did not settle: %w", err)
	}

	// This navigation produced its own frame event; drain it so a later
	// WaitNavigation only fires for navigations that happen after this call.
	select {
	case <-p.navCh:
	default:
	}
	return nil
}

// waitNetworkIdle polls until the in-flight request count stays at or below
// the idle threshold for a full quiet period.
func (p *chromePage) waitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	if quietPeriod <= 0 {
		quietPeriod = 500 * time.Millisecond
	}
	ticker := time.NewTicker(quietPeriod / 2)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			inflight := len(p.inflight)
			p.mu.Unlock()

			if inflight > idleInflightThreshold {
				lastActivity = time.Now()
			} else if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()
	if err := p.run(opCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

func (p *chromePage) ClickAt(ctx context.Context, x, y float64) error {
	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()
	if err := p.run(opCtx, chromedp.MouseClickXY(x, y)); err != nil {
		return fmt.Errorf("click at (%.0f,%.0f) failed: %w", x, y, err)
	}
	return nil
}

func (p *chromePage) ClickByText(ctx context.Context, text string) error {
	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()
	xpath := fmt.Sprintf(`//a[normalize-space(.)=%s]`, xpathLiteral(strings.TrimSpace(text)))
	if err := p.run(opCtx, chromedp.Click(xpath, chromedp.BySearch)); err != nil {
		return fmt.Errorf("click by text %q failed: %w", text, err)
	}
	return nil
}

func (p *chromePage) Type(ctx context.Context, selector, text string) error {
	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()
	if err := p.run(opCtx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("type into %q failed: %w", selector, err)
	}
	return nil
}

// Hover centers the pointer on the element. Chrome has no first-class hover
// command, so this resolves the element's center and dispatches a mouse move.
func (p *chromePage) Hover(ctx context.Context, selector string) error {
	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()

	var center struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) { throw new Error('no element matches selector'); }
		el.scrollIntoView({block: 'center', inline: 'center'});
		const r = el.getBoundingClientRect();
		return {x: r.left + r.width / 2, y: r.top + r.height / 2};
	})()`, selector)

	if err := p.run(opCtx, chromedp.Evaluate(js, &center)); err != nil {
		return fmt.Errorf("hover target %q not resolvable: %w", selector, err)
	}

	move := input.DispatchMouseEvent(input.MouseMoved, center.X, center.Y)
	if err := p.run(opCtx, move); err != nil {
		return fmt.Errorf("hover over %q failed: %w", selector, err)
	}
	return nil
}

// Scroll dispatches a mouse-wheel event in the viewport center with the given
// vertical delta.
func (p *chromePage) Scroll(ctx context.Context, deltaY float64) error {
	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()

	cx := float64(p.cfg.ViewportWidth) / 2
	cy := float64(p.cfg.ViewportHeight) / 2
	wheel := input.DispatchMouseEvent(input.MouseWheel, cx, cy).
		WithDeltaX(0).
		WithDeltaY(deltaY)
	if err := p.run(opCtx, wheel); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// Sleep prefers the page-native wait so the tab's event loop keeps running;
// if the tab cannot service it, a plain timer gives the same caller-visible
// behavior.
func (p *chromePage) Sleep(ctx context.Context, d time.Duration) error {
	if err := p.run(ctx, chromedp.Sleep(d)); err != nil {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Screenshot captures the viewport only. Full-page capture is deliberately
// avoided to bound payload size and latency.
func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()

	var buf []byte
	if err := p.run(opCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, out any) error {
	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()
	if err := p.run(opCtx, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// WaitNavigation blocks until the next top-level frame navigation or timeout.
func (p *chromePage) WaitNavigation(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-p.navCh:
		// Let the new document settle like a regular navigation would.
		return p.waitNetworkIdle(waitCtx, p.cfg.QuietPeriod)
	case <-waitCtx.Done():
		return fmt.Errorf("no navigation within %v: %w", timeout, waitCtx.Err())
	}
}

// xpathLiteral quotes s as an XPath string literal, handling embedded quotes
// via concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `'`)
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if part != "" {
			quoted = append(quoted, "'"+part+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// combineContext derives a context canceled when either parent is canceled.
// Session-scoped work must respect both the session lifetime and the caller's
// request deadline.
func combineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

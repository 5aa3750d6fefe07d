package browser

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/browserd/api/schemas"
	"github.com/xkilldash9x/browserd/internal/config"
)

// -- Test Fakes --

// fakeBrowser records Close calls.
type fakeBrowser struct {
	mu       sync.Mutex
	closed   int
	closeErr error
}

func (b *fakeBrowser) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return b.closeErr
}

func (b *fakeBrowser) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// fakePage records every call and returns configurable results. Function
// fields, when set, override the default success behavior.
type fakePage struct {
	mu    sync.Mutex
	calls []string

	navigateErr    error
	clickErr       error
	clickAtErr     error
	clickByTextErr error
	typeErr        error
	hoverErr       error
	scrollErr      error
	screenshotErr  error
	waitNavErr     error

	screenshot []byte
	evaluateFn func(expression string, out any) error
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakePage) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.record("navigate:" + url)
	return p.navigateErr
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.record("click:" + selector)
	return p.clickErr
}

func (p *fakePage) ClickAt(ctx context.Context, x, y float64) error {
	p.record("clickAt")
	return p.clickAtErr
}

func (p *fakePage) ClickByText(ctx context.Context, text string) error {
	p.record("clickByText:" + text)
	return p.clickByTextErr
}

func (p *fakePage) Type(ctx context.Context, selector, text string) error {
	p.record("type:" + selector + ":" + text)
	return p.typeErr
}

func (p *fakePage) Hover(ctx context.Context, selector string) error {
	p.record("hover:" + selector)
	return p.hoverErr
}

func (p *fakePage) Scroll(ctx context.Context, deltaY float64) error {
	p.record("scroll")
	return p.scrollErr
}

func (p *fakePage) Sleep(ctx context.Context, d time.Duration) error {
	p.record("sleep")
	return nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.record("screenshot")
	if p.screenshotErr != nil {
		return nil, p.screenshotErr
	}
	if p.screenshot != nil {
		return p.screenshot, nil
	}
	return []byte("png"), nil
}

func (p *fakePage) Evaluate(ctx context.Context, expression string, out any) error {
	p.record("evaluate")
	if p.evaluateFn != nil {
		return p.evaluateFn(expression, out)
	}
	return nil
}

func (p *fakePage) WaitNavigation(ctx context.Context, timeout time.Duration) error {
	p.record("waitNavigation")
	return p.waitNavErr
}

// fakeLauncher hands out preconfigured handles, or fails.
type fakeLauncher struct {
	mu       sync.Mutex
	launches int

	browser *fakeBrowser
	page    *fakePage
	err     error

	// launchFn, when set, overrides the canned behavior entirely.
	launchFn func(ctx context.Context, opts LaunchOptions) (BrowserHandle, PageHandle, error)
}

func (l *fakeLauncher) Launch(ctx context.Context, opts LaunchOptions) (BrowserHandle, PageHandle, error) {
	l.mu.Lock()
	l.launches++
	l.mu.Unlock()

	if l.launchFn != nil {
		return l.launchFn(ctx, opts)
	}
	if l.err != nil {
		return nil, nil, l.err
	}
	return l.browser, l.page, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// newTestService builds a service over fakes with a controllable clock.
func newTestService(launcher Launcher) (*Service, *fakeClock) {
	cfg := config.NewDefaultConfig()
	svc := NewService(cfg, launcher, zap.NewNop())
	clock := &fakeClock{current: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc.now = clock.Now
	return svc, clock
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// pageWithLinks returns a fakePage whose Evaluate fills a PageInfo carrying
// the given links.
func pageWithLinks(links []schemas.PageLink) *fakePage {
	return &fakePage{
		evaluateFn: func(expression string, out any) error {
			if info, ok := out.(*schemas.PageInfo); ok {
				*info = schemas.PageInfo{
					Title: "Test Page",
					URL:   "https://example.com",
					Links: links,
				}
			}
			return nil
		},
	}
}

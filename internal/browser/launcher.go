package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browserd/internal/config"
)

// launchStrategy is one named combination of process-launch flags attempted
// during session creation. Strategies are tried in order with no delay in
// between: launch failures are deterministic given the environment, so the
// variation is in configuration, not timing.
type launchStrategy struct {
	name  string
	extra []chromedp.ExecAllocatorOption
}

// ChromeLauncher starts Chrome processes via chromedp's exec allocator.
type ChromeLauncher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	// start is the single-attempt launch function. Tests replace it to
	// exercise the fallback policy without spawning processes.
	start func(ctx context.Context, allocOpts []chromedp.ExecAllocatorOption) (BrowserHandle, PageHandle, error)
}

var _ Launcher = (*ChromeLauncher)(nil)

// NewChromeLauncher creates the production launcher.
func NewChromeLauncher(cfg config.BrowserConfig, logger *zap.Logger) *ChromeLauncher {
	l := &ChromeLauncher{
		cfg:    cfg,
		logger: logger.Named("launcher"),
	}
	l.start = l.startChrome
	return l
}

// Launch tries each strategy in order and returns the first success. When all
// strategies fail, the most recent error is wrapped in a LaunchError with
// platform diagnostics.
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (BrowserHandle, PageHandle, error) {
	base := l.baseOptions(opts)
	strategies := launchStrategies()

	var lastErr error
	attempted := make([]string, 0, len(strategies))

	for _, strat := range strategies {
		attempted = append(attempted, strat.name)

		allocOpts := make([]chromedp.ExecAllocatorOption, 0, len(base)+len(strat.extra))
		allocOpts = append(allocOpts, base...)
		allocOpts = append(allocOpts, strat.extra...)

		browserHandle, pageHandle, err := l.start(ctx, allocOpts)
		if err == nil {
			l.logger.Info("Browser launched.", zap.String("strategy", strat.name))
			return browserHandle, pageHandle, nil
		}

		lastErr = err
		l.logger.Warn("Launch strategy failed, trying next.",
			zap.String("strategy", strat.name), zap.Error(err))
	}

	return nil, nil, &LaunchError{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
		Attempts:  attempted,
		Hint:      launchHint(),
		Err:       lastErr,
	}
}

// launchStrategies returns the ordered fallback list. The single-process and
// no-zygote variants work around sandbox and zygote failures seen in
// containers and minimal images.
func launchStrategies() []launchStrategy {
	return []launchStrategy{
		{name: "baseline"},
		{name: "single-process", extra: []chromedp.ExecAllocatorOption{
			chromedp.Flag("single-process", true),
		}},
		{name: "no-zygote", extra: []chromedp.ExecAllocatorOption{
			chromedp.Flag("no-zygote", true),
		}},
	}
}

// baseOptions builds the launch flags shared by every strategy: sandboxing
// off, GPU and extensions off, a fixed viewport, plus platform-conditional
// flags and any extra args from configuration.
func (l *ChromeLauncher) baseOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	out := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(l.cfg.ViewportWidth, l.cfg.ViewportHeight),
	}

	if opts.Headless {
		out = append(out, chromedp.Headless, chromedp.Flag("hide-scrollbars", true))
	} else {
		// Debugging escape hatch: visible browser with an isolated profile
		// and a pinned DevTools port.
		out = append(out,
			chromedp.Flag("headless", false),
			chromedp.Flag("remote-debugging-port", fmt.Sprintf("%d", l.cfg.DebugPort)),
			chromedp.UserDataDir(l.userDataDir()),
		)
	}

	out = append(out, platformOptions(runtime.GOOS)...)
	out = append(out, parseExtraArgs(l.cfg.Args)...)
	return out
}

// platformOptions appends OS-conditional flags before any strategy is tried.
// Headless Linux hosts frequently lack GPU/display compositing; Windows needs
// the display compositor disabled for stable headless capture.
func platformOptions(goos string) []chromedp.ExecAllocatorOption {
	switch goos {
	case "linux":
		return []chromedp.ExecAllocatorOption{
			chromedp.Flag("disable-software-rasterizer", true),
			chromedp.Flag("disable-background-timer-throttling", true),
			chromedp.Flag("disable-backgrounding-occluded-windows", true),
			chromedp.Flag("disable-renderer-backgrounding", true),
			chromedp.Flag("disable-features", "VizDisplayCompositor"),
		}
	case "windows":
		return []chromedp.ExecAllocatorOption{
			chromedp.Flag("disable-gpu-compositing", true),
		}
	default:
		return nil
	}
}

// parseExtraArgs converts config-file args ("no-first-run", "lang=en-US")
// into allocator flags, prefix-normalized.
func parseExtraArgs(args []string) []chromedp.ExecAllocatorOption {
	var out []chromedp.ExecAllocatorOption
	for _, arg := range args {
		arg = strings.TrimPrefix(arg, "--")
		if arg == "" {
			continue
		}
		if key, value, found := strings.Cut(arg, "="); found {
			out = append(out, chromedp.Flag(key, value))
			continue
		}
		out = append(out, chromedp.Flag(arg, true))
	}
	return out
}

// userDataDir returns an isolated per-launch profile directory so concurrent
// debug sessions never share browser state.
func (l *ChromeLauncher) userDataDir() string {
	if l.cfg.UserDataDir != "" {
		return l.cfg.UserDataDir
	}
	return filepath.Join(os.TempDir(), "browserd-profile-"+uuid.NewString())
}

// launchHint returns the remediation hint attached to a LaunchError. Missing
// shared libraries are the common real-world cause on Linux hosts.
func launchHint() string {
	if runtime.GOOS == "linux" {
		return "verify Chrome's shared library dependencies are installed " +
			"(e.g. libnss3, libatk, libgbm; on Debian/Ubuntu: apt-get install -y chromium)"
	}
	return ""
}

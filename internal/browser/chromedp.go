package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-gateway/internal/metrics"
)

const (
	// DefaultViewportWidth and DefaultViewportHeight size every page.
	DefaultViewportWidth  = 1366
	DefaultViewportHeight = 768
	// DefaultUserAgent is the fixed desktop user agent presented to target sites.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	// DefaultLaunchTimeout bounds process start-up and the initial DevTools handshake.
	DefaultLaunchTimeout = 30 * time.Second
)

// launchFlags keep Chrome runnable inside an unprivileged container.
var launchFlags = []string{
	"no-sandbox",
	"disable-setuid-sandbox",
	"disable-dev-shm-usage",
	"disable-accelerated-2d-canvas",
	"no-first-run",
	"no-zygote",
	"single-process",
	"disable-gpu",
}

// contentScript serializes the document the same way a DevTools "page content" call does.
const contentScript = `(() => {
	let out = '';
	if (document.doctype) {
		out = new XMLSerializer().serializeToString(document.doctype);
	}
	if (document.documentElement) {
		out += document.documentElement.outerHTML;
	}
	return out;
})()`

// Options controls how each browser process is started.
type Options struct {
	Headless       bool
	ExecPath       string
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	LaunchTimeout  time.Duration
}

// Chromedp launches one headless Chrome process per session.
type Chromedp struct {
	opts   Options
	logger *zap.Logger
}

// NewChromedp validates opts and returns a launcher. No process is started until Launch.
func NewChromedp(opts Options, logger *zap.Logger) (*Chromedp, error) {
	if opts.ViewportWidth < 0 || opts.ViewportHeight < 0 {
		return nil, fmt.Errorf("viewport must be non-negative, got %dx%d", opts.ViewportWidth, opts.ViewportHeight)
	}
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = DefaultViewportWidth
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = DefaultViewportHeight
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = DefaultLaunchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chromedp{opts: opts, logger: logger}, nil
}

func (c *Chromedp) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if c.opts.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	for _, flag := range launchFlags {
		opts = append(opts, chromedp.Flag(flag, true))
	}
	opts = append(opts,
		chromedp.WindowSize(c.opts.ViewportWidth, c.opts.ViewportHeight),
		chromedp.UserAgent(c.opts.UserAgent),
	)
	if c.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ExecPath))
	}
	return opts
}

// Launch starts a new browser process bound to ctx and prepares its first tab.
// Canceling ctx kills the process; callers must still Close the session.
func (c *Chromedp) Launch(ctx context.Context) (Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	sugar := c.logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Warnf),
	)

	life := newLifecycle()
	chromedp.ListenTarget(tabCtx, life.handle)

	// The first Run allocates the browser, so it must not carry its own deadline.
	err := withinDeadline(c.opts.LaunchTimeout, tabCancel, func() error {
		return chromedp.Run(tabCtx,
			page.SetLifecycleEventsEnabled(true),
			emulation.SetDeviceMetricsOverride(int64(c.opts.ViewportWidth), int64(c.opts.ViewportHeight), 1, false),
			emulation.SetUserAgentOverride(c.opts.UserAgent),
			chromedp.ActionFunc(life.captureMainFrame),
		)
	})
	if err != nil {
		tabCancel()
		allocCancel()
		metrics.ObserveBrowserLaunchFailure()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	metrics.IncActiveBrowsers()
	c.logger.Debug("browser launched",
		zap.String("exec_path", c.opts.ExecPath),
		zap.Int("viewport_width", c.opts.ViewportWidth),
		zap.Int("viewport_height", c.opts.ViewportHeight),
	)
	return &chromeSession{
		page:        &chromePage{tabCtx: tabCtx, life: life},
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		logger:      c.logger,
	}, nil
}

type chromeSession struct {
	page        *chromePage
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	once     sync.Once
	closeErr error
}

func (s *chromeSession) Page() Page {
	return s.page
}

// Close cancels the tab, waits for the browser to exit, then releases the allocator.
func (s *chromeSession) Close() error {
	s.once.Do(func() {
		s.page.closed.Store(true)
		err := chromedp.Cancel(s.tabCtx)
		s.tabCancel()
		s.allocCancel()
		metrics.DecActiveBrowsers()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = fmt.Errorf("close browser: %w", err)
			return
		}
		s.logger.Debug("browser closed")
	})
	return s.closeErr
}

// withinDeadline runs start with a watchdog that calls abort after timeout.
// A watchdog that fired is a failure even when start itself returned nil.
func withinDeadline(timeout time.Duration, abort func(), start func() error) error {
	watchdog := time.AfterFunc(timeout, abort)
	err := start()
	if !watchdog.Stop() && err == nil {
		err = fmt.Errorf("browser did not start within %s", timeout)
	}
	return err
}

type chromePage struct {
	tabCtx context.Context
	life   *lifecycle
	closed atomic.Bool
}

// scope derives a run context from the tab that also ends when ctx does.
func (p *chromePage) scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if p.closed.Load() {
		return nil, nil, ErrSessionClosed
	}
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(p.tabCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(p.tabCtx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}, nil
}

func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel, err := p.scope(ctx, timeout)
	if err != nil {
		return err
	}
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	runCtx, cancel, err := p.scope(ctx, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	p.life.reset()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := p.life.waitIdle(runCtx); err != nil {
		return fmt.Errorf("wait for network idle on %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, 0, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return false, fmt.Errorf("query %q: %w", selector, err)
	}
	return len(nodes) > 0, nil
}

func (p *chromePage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.run(ctx, timeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Type(ctx context.Context, selector, text string) error {
	if err := p.run(ctx, 0, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("type into %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) PressEnter(ctx context.Context) error {
	if err := p.run(ctx, 0, chromedp.KeyEvent(kb.Enter)); err != nil {
		return fmt.Errorf("press enter: %w", err)
	}
	return nil
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, 0, chromedp.Evaluate(contentScript, &html)); err != nil {
		return "", fmt.Errorf("capture content: %w", err)
	}
	return html, nil
}

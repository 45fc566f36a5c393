package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// ChromeOptions configures the headless browser
type ChromeOptions struct {
	ExecPath      string
	Headless      bool
	UserAgent     string
	Timeout       time.Duration
	ReadyTimeout  time.Duration
	ReadySelector string
}

// DefaultReadyTimeout bounds the wait for the ready selector when none is set
const DefaultReadyTimeout = 5 * time.Second

// withDefaults fills unset values. The ready wait always ends strictly before
// the page deadline so an anchor-less page is returned instead of failed.
func (o ChromeOptions) withDefaults() ChromeOptions {
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = DefaultReadyTimeout
	}
	if o.ReadyTimeout >= o.Timeout {
		o.ReadyTimeout = o.Timeout / 2
	}
	if strings.TrimSpace(o.ReadySelector) == "" {
		o.ReadySelector = "a"
	}
	return o
}

// ChromeBrowser owns a single Chrome process shared by all of its sessions
type ChromeBrowser struct {
	opts          ChromeOptions
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
}

// NewChromeBrowser launches Chrome and fails fast if it cannot start
func NewChromeBrowser(ctx context.Context, opts ChromeOptions) (*ChromeBrowser, error) {
	opts = opts.withDefaults()

	execOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	execOpts = append(execOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
	)
	if opts.ExecPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Running with no actions starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}

	logrus.Infof("Chrome started (headless=%t)", opts.Headless)

	return &ChromeBrowser{
		opts:          opts,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewSession opens a new tab. Each tab must be owned by exactly one worker.
func (b *ChromeBrowser) NewSession() (*ChromeSession, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return &ChromeSession{opts: b.opts, tabCtx: tabCtx, tabCancel: tabCancel}, nil
}

// Close shuts down the browser and every tab. Safe to call multiple times.
func (b *ChromeBrowser) Close() {
	b.closeOnce.Do(func() {
		b.browserCancel()
		b.allocCancel()
		logrus.Info("Chrome stopped")
	})
}

// ChromeSession renders pages in a single browser tab
type ChromeSession struct {
	opts      ChromeOptions
	tabCtx    context.Context
	tabCancel context.CancelFunc
}

// Open navigates to url, waits for anchors to appear and returns the rendered DOM
func (s *ChromeSession) Open(ctx context.Context, url string) (*Page, error) {
	if err := s.tabCtx.Err(); err != nil {
		return nil, &RenderError{URL: url, Kind: KindSession, Err: err}
	}

	runCtx, cancel := context.WithTimeout(s.tabCtx, s.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return nil, newRenderError(url, err)
	}

	waitCtx, waitCancel := context.WithTimeout(runCtx, s.opts.ReadyTimeout)
	waitErr := chromedp.Run(waitCtx, chromedp.WaitReady(s.opts.ReadySelector, chromedp.ByQuery))
	anchorsReady, err := readyOutcome(url, waitErr, waitCtx, runCtx)
	waitCancel()
	if err != nil {
		return nil, err
	}
	if !anchorsReady {
		logrus.Warnf("No %q element on %s after %v, continuing without anchors", s.opts.ReadySelector, url, s.opts.ReadyTimeout)
	}

	var markup, finalURL string
	err = chromedp.Run(runCtx,
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return nil, newRenderError(url, err)
	}
	if finalURL == "" {
		finalURL = url
	}

	return &Page{
		URL:          url,
		FinalURL:     finalURL,
		Markup:       markup,
		AnchorsReady: anchorsReady,
		Latency:      time.Since(start),
	}, nil
}

// Close closes the tab. The browser keeps running for other sessions.
func (s *ChromeSession) Close() {
	s.tabCancel()
}

// readyOutcome decides what a failed ready-selector wait means. Expiry of the
// wait's own budget only marks the page as not ready, while expiry of the page
// deadline (or any other failure) fails the visit.
func readyOutcome(url string, waitErr error, waitCtx, runCtx context.Context) (bool, error) {
	if waitErr == nil {
		return true, nil
	}
	if err := runCtx.Err(); err != nil {
		return false, newRenderError(url, err)
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return false, nil
	}
	return false, newRenderError(url, waitErr)
}

// browser.go provides the chromedp-backed session factory used in production.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jonathan/apply-engine/internal/platform"
)

// BrowserSession is a pooled headless Chrome instance. The allocator and
// browser contexts live for the session's pooled lifetime; page work runs in
// tabs derived from the browser context.
type BrowserSession struct {
	platform   platform.Platform
	browserCtx context.Context
	cancels    []context.CancelFunc
}

// ChromeFactory creates headless Chrome sessions via chromedp.
// Requires Chrome/Chromium to be installed on the system.
type ChromeFactory struct {
	Headless bool
	Verbose  bool
}

// NewChromeFactory returns a factory producing headless sessions.
func NewChromeFactory(verbose bool) *ChromeFactory {
	return &ChromeFactory{Headless: true, Verbose: verbose}
}

// Create starts a new browser instance for the platform.
func (f *ChromeFactory) Create(ctx context.Context, p platform.Platform) (Handle, error) {
	if f.Verbose {
		log.Printf("[Browser] starting headless browser for platform: %s", p)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", f.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
		)...,
	)

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so a broken Chrome install
	// fails at Create rather than on first use.
	startCtx, cancelStart := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancelStart()
	if err := chromedp.Run(startCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &BrowserSession{
		platform:   p,
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{cancelBrowser, cancelAlloc},
	}, nil
}

// Ping verifies the browser still evaluates JavaScript.
func (s *BrowserSession) Ping(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(s.browserCtx, 10*time.Second)
	defer cancel()

	var result int
	if err := chromedp.Run(probeCtx, chromedp.Evaluate("1 + 1", &result)); err != nil {
		return fmt.Errorf("browser probe failed: %w", err)
	}
	if result != 2 {
		return fmt.Errorf("browser probe returned unexpected result: %d", result)
	}
	return nil
}

// Close tears down the browser and its allocator.
func (s *BrowserSession) Close(_ context.Context) error {
	for _, cancel := range s.cancels {
		cancel()
	}
	return nil
}

// Context returns the browser context for running page actions in this
// session. Callers derive tab contexts from it.
func (s *BrowserSession) Context() context.Context {
	return s.browserCtx
}

// Platform returns the platform this session was created for.
func (s *BrowserSession) Platform() platform.Platform {
	return s.platform
}

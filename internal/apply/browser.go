package apply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/jonathan/apply-engine/internal/platform"
	"github.com/jonathan/apply-engine/internal/session"
)

// pageLoadTimeout bounds a single navigation. Job boards behind interstitials
// can hang a tab indefinitely otherwise.
const pageLoadTimeout = 2 * time.Minute

// NewBrowserFunc returns a Func that drives a pooled headless browser to the
// job posting. It opens the posting in a fresh tab, confirms the page loaded,
// and reports the application for review. Known platforms resolve to
// pending_review; unrecognized hosts resolve to external so the operator
// finishes them by hand.
func NewBrowserFunc(pool *session.Pool) Func {
	return func(ctx context.Context, req Request) (*Result, error) {
		handle, err := pool.Acquire(ctx, req.Platform)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire browser session: %w", err)
		}
		browser, ok := handle.(*session.BrowserSession)
		if !ok {
			return nil, &PermanentError{Message: "session pool did not produce a browser session"}
		}

		tabCtx, cancelTab := chromedp.NewContext(browser.Context())
		defer cancelTab()
		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, pageLoadTimeout)
		defer cancelTimeout()

		var title string
		if err := chromedp.Run(tabCtx,
			chromedp.Navigate(req.JobURL),
			chromedp.Title(&title),
		); err != nil {
			return nil, fmt.Errorf("failed to load job posting %s: %w", req.JobURL, err)
		}

		lower := strings.ToLower(title)
		if strings.Contains(lower, "429") || strings.Contains(lower, "too many requests") ||
			strings.Contains(lower, "access denied") {
			return nil, &RateLimitError{
				Platform: string(req.Platform),
				Message:  "job board blocked the request: " + title,
			}
		}

		status := StatusPendingReview
		if !platform.Known(req.Platform) {
			status = StatusExternal
		}
		return &Result{
			ApplicationID: uuid.New(),
			Status:        status,
			Message:       "opened: " + title,
		}, nil
	}
}

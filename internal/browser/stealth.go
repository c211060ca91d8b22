package browser

import (
	"context"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

// hideAutomation runs before any page script so career sites that sniff
// navigator.webdriver serve the normal listing.
const hideAutomation = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });`

// RandomDelay waits between min and max milliseconds, or until ctx ends.
func RandomDelay(ctx context.Context, min, max int) error {
	d := time.Duration(rand.Intn(max-min+1)+min) * time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// HumanScroll scrolls through the page in steps so lazy-loaded job
// descriptions get rendered before the HTML is read.
func HumanScroll(ctx context.Context, page playwright.Page) error {
	for i := 0; i < 4; i++ {
		if _, err := page.Evaluate("window.scrollBy(0, window.innerHeight / 2)"); err != nil {
			return err
		}
		if err := RandomDelay(ctx, 200, 600); err != nil {
			return err
		}
	}
	_, err := page.Evaluate("window.scrollTo(0, 0)")
	return err
}

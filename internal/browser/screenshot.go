package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// screenshotName turns a page URL into a timestamped file name.
func screenshotName(pageURL string, at time.Time) string {
	name := unsafeName.ReplaceAllString(pageURL, "_")
	if len(name) > 80 {
		name = name[:80]
	}
	return fmt.Sprintf("%s_%s.png", name, at.Format("2006-01-02_15-04-05"))
}

// SetScreenshotDir enables full-page captures of pages that fail to render.
func (m *Manager) SetScreenshotDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenshotDir = dir
}

// capture saves a screenshot of page when a screenshot directory is set.
// Failures are logged and otherwise ignored.
func (m *Manager) capture(page playwright.Page, pageURL, reason string) {
	m.mu.Lock()
	dir := m.screenshotDir
	m.mu.Unlock()
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.logger.Warn().Err(err).Str("dir", dir).Msg("⚠️ Failed to create screenshot dir")
		return
	}

	path := filepath.Join(dir, screenshotName(pageURL, time.Now()))
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		m.logger.Warn().Err(err).Str("url", pageURL).Msg("⚠️ Failed to capture screenshot")
		return
	}
	m.logger.Info().Str("url", pageURL).Str("reason", reason).Str("path", path).Msg("📸 Screenshot saved")
}

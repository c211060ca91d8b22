package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

const (
	navigationTimeout = 30000
	userAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Manager owns one headless Chromium and a shared context with the loaded
// cookies. It is safe for sequential use from several goroutines.
type Manager struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  zerolog.Logger

	mu            sync.Mutex
	ctx           playwright.BrowserContext
	screenshotDir string
}

// NewManager starts Playwright and launches Chromium. Callers must Close it.
func NewManager(logger zerolog.Logger) (*Manager, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args:     []string{"--disable-blink-features=AutomationControlled", "--no-sandbox"},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("could not launch chromium browser: %w", err)
	}

	logger.Info().Msg("🌐 Headless Chromium launched")
	return &Manager{pw: pw, browser: browser, logger: logger}, nil
}

// NewContext creates an isolated browser context carrying cookies.
func (m *Manager) NewContext(cookies []playwright.OptionalCookie) (playwright.BrowserContext, error) {
	bctx, err := m.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(userAgent),
		Viewport:  &playwright.Size{Width: 1366, Height: 900},
		Locale:    playwright.String("en-US"),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(hideAutomation)}); err != nil {
		bctx.Close()
		return nil, fmt.Errorf("could not install init script: %w", err)
	}
	if len(cookies) > 0 {
		if err := bctx.AddCookies(cookies); err != nil {
			bctx.Close()
			return nil, fmt.Errorf("could not add cookies: %w", err)
		}
	}
	return bctx, nil
}

// UseCookies replaces the shared context with one carrying cookies.
func (m *Manager) UseCookies(cookies []playwright.OptionalCookie) error {
	bctx, err := m.NewContext(cookies)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		m.ctx.Close()
	}
	m.ctx = bctx
	return nil
}

func (m *Manager) shared() (playwright.BrowserContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return m.ctx, nil
	}
	bctx, err := m.NewContext(nil)
	if err != nil {
		return nil, err
	}
	m.ctx = bctx
	return bctx, nil
}

// FetchHTML renders pageURL, scrolls it to trigger lazy content, and
// returns the resulting document.
func (m *Manager) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	bctx, err := m.shared()
	if err != nil {
		return "", err
	}
	page, err := bctx.NewPage()
	if err != nil {
		return "", fmt.Errorf("could not create new page: %w", err)
	}
	defer page.Close()

	resp, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(navigationTimeout),
	})
	if err != nil {
		m.capture(page, pageURL, "navigation failed")
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if resp != nil && resp.Status() >= 400 {
		m.capture(page, pageURL, fmt.Sprintf("status %d", resp.Status()))
		return "", fmt.Errorf("navigate %s: status %d", pageURL, resp.Status())
	}

	// Best effort: some boards never go network idle.
	_ = page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(5000),
	})
	if err := HumanScroll(ctx, page); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		m.logger.Debug().Err(err).Str("url", pageURL).Msg("scroll failed")
	}

	html, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("read content of %s: %w", pageURL, err)
	}
	return html, nil
}

// RenderPDF loads html into a blank page and prints it as A4.
func (m *Manager) RenderPDF(html string) ([]byte, error) {
	page, err := m.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("could not create new page: %w", err)
	}
	defer page.Close()

	if err := page.SetContent(html, playwright.PageSetContentOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return nil, fmt.Errorf("could not set page content: %w", err)
	}

	data, err := page.PDF(playwright.PagePdfOptions{
		Format:          playwright.String("A4"),
		PrintBackground: playwright.Bool(true),
		Margin: &playwright.Margin{
			Top:    playwright.String("12mm"),
			Bottom: playwright.String("12mm"),
			Left:   playwright.String("10mm"),
			Right:  playwright.String("10mm"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not generate PDF: %w", err)
	}
	return data, nil
}

func (m *Manager) Close() error {
	var errs []error
	m.mu.Lock()
	if m.ctx != nil {
		errs = append(errs, m.ctx.Close())
		m.ctx = nil
	}
	m.mu.Unlock()
	errs = append(errs, m.browser.Close(), m.pw.Stop())
	return errors.Join(errs...)
}

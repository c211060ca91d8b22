// Package validate drops postings whose page says the role is no longer open.
package validate

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go-internship-scanner/internal/htmltext"
	"go-internship-scanner/internal/models"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 10 * time.Second
	maxPageSize    = 2 << 20
	userAgent      = "Mozilla/5.0 (compatible; internship-scanner/1.0)"
)

var closedIndicators = []string{
	"this position has been filled",
	"this job is no longer available",
	"job no longer exists",
	"position is closed",
	"no longer accepting applications",
	"this posting has expired",
	"job has been removed",
	"position has been closed",
	"no longer open",
}

// Checker is best effort: anything it cannot decide counts as open.
type Checker struct {
	client *http.Client
	logger zerolog.Logger
}

func NewChecker(client *http.Client, logger zerolog.Logger) *Checker {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Checker{client: client, logger: logger}
}

func (c *Checker) IsOpen(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return true
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("url", url).Msg("open check failed, assuming open")
		return true
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return false
	case http.StatusOK:
	default:
		return true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return true
	}
	text := strings.ToLower(htmltext.Extract(string(body)))
	for _, indicator := range closedIndicators {
		if strings.Contains(text, indicator) {
			return false
		}
	}
	return true
}

// FilterOpen keeps the postings whose page still looks open, in order.
func (c *Checker) FilterOpen(ctx context.Context, postings []models.Posting) []models.Posting {
	open := make([]models.Posting, 0, len(postings))
	for _, p := range postings {
		if ctx.Err() != nil {
			// Out of time: keep the rest unchecked.
			open = append(open, p)
			continue
		}
		if c.IsOpen(ctx, p.URL) {
			open = append(open, p)
			continue
		}
		c.logger.Info().Str("company", p.Company).Str("title", p.Title).Msg("🚫 Posting closed, dropping")
	}
	return open
}

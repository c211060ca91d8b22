// Source adapters turn ATS APIs and plain career pages into models.Posting.

package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go-internship-scanner/internal/htmltext"
	"go-internship-scanner/internal/models"

	"github.com/rs/zerolog"
)

const (
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	snippetLength   = 500
	maxAttempts     = 3
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 10 << 20
)

// retryBackoff is the first wait between attempts; it doubles each retry.
var retryBackoff = 2 * time.Second

// Source fetches every currently listed posting from one board.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.Posting, error)
}

// Classifier assigns a function family from title and description.
type Classifier interface {
	Classify(title, description string) (models.FunctionFamily, float64)
}

// Deps are the collaborators every adapter shares.
type Deps struct {
	Client     *http.Client
	Classifier Classifier
	Logger     zerolog.Logger
	Now        func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Client == nil {
		d.Client = &http.Client{Timeout: defaultTimeout}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.url, e.status)
}

// doJSON sends the request with retries on network errors and 5xx responses,
// then decodes the JSON body into out.
func doJSON(ctx context.Context, client *http.Client, method, url string, body any, out any) error {
	return doJSONHeader(ctx, client, method, url, nil, body, out)
}

// doJSONHeader is doJSON with extra request headers, for APIs keyed by header.
func doJSONHeader(ctx context.Context, client *http.Client, method, url string, header http.Header, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	wait := retryBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}

		data, retry, err := doOnce(ctx, client, method, url, header, payload)
		if err == nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode %s: %w", url, err)
			}
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func doOnce(ctx context.Context, client *http.Client, method, url string, header http.Header, payload []byte) ([]byte, bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, true, fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= 500, &statusError{url: url, status: resp.StatusCode}
	}
	return data, false, nil
}

// newPosting fills the fields every adapter derives the same way.
func newPosting(d Deps, source models.Source, company, title, url, location, text string, postedAt *time.Time) models.Posting {
	if location == "" {
		location = models.DefaultLocation
	}
	family, confidence := models.FamilyOther, 0.0
	if d.Classifier != nil {
		family, confidence = d.Classifier.Classify(title, text)
	}
	return models.Posting{
		Company:        company,
		Title:          htmltext.Collapse(title),
		URL:            url,
		Location:       location,
		FunctionFamily: family,
		Confidence:     confidence,
		Source:         source,
		PostedAt:       postedAt,
		Text:           text,
		RawSnippet:     htmltext.Truncate(text, snippetLength),
		RetrievedAt:    d.Now(),
	}
}

package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-internship-scanner/internal/canonical"
	"go-internship-scanner/internal/filter"
	"go-internship-scanner/internal/htmltext"
	"go-internship-scanner/internal/models"
)

type leverPosting struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	DescriptionPlain string `json:"descriptionPlain"`
	Lists            []struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	} `json:"lists"`
	AdditionalPlain string `json:"additionalPlain"`
	Categories      struct {
		Location   string `json:"location"`
		Team       string `json:"team"`
		Commitment string `json:"commitment"`
	} `json:"categories"`
	CreatedAt int64  `json:"createdAt"`
	HostedURL string `json:"hostedUrl"`
	ApplyURL  string `json:"applyUrl"`
}

type Lever struct {
	slug     string
	endpoint string
	deps     Deps
}

func NewLever(slug string, deps Deps) *Lever {
	return &Lever{slug: slug, endpoint: canonical.LeverAPIURL(slug), deps: deps.withDefaults()}
}

func (l *Lever) Name() string { return "lever:" + l.slug }

func (l *Lever) Fetch(ctx context.Context) ([]models.Posting, error) {
	var resp []leverPosting
	if err := doJSON(ctx, l.deps.Client, "GET", l.endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("lever board %q: %w", l.slug, err)
	}

	company := canonical.CompanyFromSlug(l.slug)
	postings := make([]models.Posting, 0, len(resp))
	for _, job := range resp {
		if p, ok := leverToPosting(l.deps, company, job); ok {
			postings = append(postings, p)
		}
	}

	l.deps.Logger.Debug().Str("board", l.slug).Int("jobs", len(postings)).Msg("🎚️ Lever board fetched")
	return postings, nil
}

func leverToPosting(d Deps, company string, job leverPosting) (models.Posting, bool) {
	url := job.HostedURL
	if url == "" {
		url = job.ApplyURL
	}
	if job.Text == "" || url == "" {
		return models.Posting{}, false
	}

	parts := []string{job.DescriptionPlain}
	for _, list := range job.Lists {
		parts = append(parts, list.Text, htmltext.Extract(list.Content))
	}
	parts = append(parts, job.AdditionalPlain)
	text := htmltext.Collapse(strings.Join(parts, " "))

	var postedAt *time.Time
	if job.CreatedAt > 0 {
		postedAt = filter.ParseDateAt(strconv.FormatInt(job.CreatedAt, 10), d.Now())
	}

	return newPosting(d, models.SourceLever, company, job.Text,
		canonical.Canonicalize(url), job.Categories.Location, text, postedAt), true
}

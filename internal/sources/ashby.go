package sources

import (
	"context"
	"fmt"

	"go-internship-scanner/internal/canonical"
	"go-internship-scanner/internal/filter"
	"go-internship-scanner/internal/htmltext"
	"go-internship-scanner/internal/models"
)

type ashbyResponse struct {
	Jobs []struct {
		ID               string `json:"id"`
		Title            string `json:"title"`
		Location         string `json:"location"`
		DescriptionHTML  string `json:"descriptionHtml"`
		DescriptionPlain string `json:"descriptionPlain"`
		PublishedAt      string `json:"publishedAt"`
		JobURL           string `json:"jobUrl"`
		IsListed         *bool  `json:"isListed"`
	} `json:"jobs"`
}

type Ashby struct {
	slug     string
	endpoint string
	deps     Deps
}

func NewAshby(slug string, deps Deps) *Ashby {
	return &Ashby{slug: slug, endpoint: canonical.AshbyAPIURL(slug), deps: deps.withDefaults()}
}

func (a *Ashby) Name() string { return "ashby:" + a.slug }

func (a *Ashby) Fetch(ctx context.Context) ([]models.Posting, error) {
	var resp ashbyResponse
	if err := doJSON(ctx, a.deps.Client, "GET", a.endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("ashby board %q: %w", a.slug, err)
	}

	company := canonical.CompanyFromSlug(a.slug)
	now := a.deps.Now()
	postings := make([]models.Posting, 0, len(resp.Jobs))
	for _, job := range resp.Jobs {
		if job.IsListed != nil && !*job.IsListed {
			continue
		}
		url := job.JobURL
		if url == "" && job.ID != "" {
			url = fmt.Sprintf("https://jobs.ashbyhq.com/%s/%s", a.slug, job.ID)
		}
		if job.Title == "" || url == "" {
			continue
		}

		text := htmltext.Collapse(job.DescriptionPlain)
		if text == "" {
			text = htmltext.Extract(job.DescriptionHTML)
		}

		postings = append(postings, newPosting(a.deps, models.SourceAshby, company, job.Title,
			canonical.Canonicalize(url), job.Location, text, filter.ParseDateAt(job.PublishedAt, now)))
	}

	a.deps.Logger.Debug().Str("board", a.slug).Int("jobs", len(postings)).Msg("🅰️ Ashby board fetched")
	return postings, nil
}

package sources

import (
	"context"
	"fmt"

	"go-internship-scanner/internal/canonical"
	"go-internship-scanner/internal/filter"
	"go-internship-scanner/internal/htmltext"
	"go-internship-scanner/internal/models"
)

type greenhouseJob struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	UpdatedAt   string `json:"updated_at"`
	AbsoluteURL string `json:"absolute_url"`
}

type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

type Greenhouse struct {
	slug     string
	endpoint string
	deps     Deps
}

func NewGreenhouse(slug string, deps Deps) *Greenhouse {
	return &Greenhouse{slug: slug, endpoint: canonical.GreenhouseAPIURL(slug), deps: deps.withDefaults()}
}

func (g *Greenhouse) Name() string { return "greenhouse:" + g.slug }

func (g *Greenhouse) Fetch(ctx context.Context) ([]models.Posting, error) {
	var resp greenhouseResponse
	if err := doJSON(ctx, g.deps.Client, "GET", g.endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("greenhouse board %q: %w", g.slug, err)
	}

	company := canonical.CompanyFromSlug(g.slug)
	postings := make([]models.Posting, 0, len(resp.Jobs))
	for _, job := range resp.Jobs {
		if p, ok := greenhousePosting(g.deps, company, job); ok {
			postings = append(postings, p)
		}
	}

	g.deps.Logger.Debug().Str("board", g.slug).Int("jobs", len(postings)).Msg("🌱 Greenhouse board fetched")
	return postings, nil
}

func greenhousePosting(d Deps, company string, job greenhouseJob) (models.Posting, bool) {
	if job.Title == "" || job.AbsoluteURL == "" {
		return models.Posting{}, false
	}
	text := htmltext.FromEscaped(job.Content)
	return newPosting(d, models.SourceGreenhouse, company, job.Title,
		canonical.Canonicalize(job.AbsoluteURL), job.Location.Name, text, filter.ParseDateAt(job.UpdatedAt, d.Now())), true
}

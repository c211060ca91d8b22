package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-internship-scanner/internal/canonical"
	"go-internship-scanner/internal/filter"
	"go-internship-scanner/internal/models"
)

const (
	companiesPerBatch = 10

	grokSearchSystem = "You are a job search assistant with real-time web access. Search the web for current job postings and return structured JSON results."
)

// ChatCompleter is an LLM that can browse; ai.GrokClient implements it.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type GrokSearchOptions struct {
	Functions       []string
	UnderclassTerms []string
	ExcludedYears   []int
	Companies       []string
	RecencyDays     int
	MaxResults      int
	MaxBatches      int
}

// GrokSearch asks the model to find underclass postings on the web, one
// request per batch of target companies, or a single open request when no
// companies are configured.
type GrokSearch struct {
	chat ChatCompleter
	opts GrokSearchOptions
	deps Deps
}

func NewGrokSearch(chat ChatCompleter, opts GrokSearchOptions, deps Deps) *GrokSearch {
	return &GrokSearch{chat: chat, opts: opts, deps: deps.withDefaults()}
}

func (g *GrokSearch) Name() string { return "grok-search" }

func (g *GrokSearch) Fetch(ctx context.Context) ([]models.Posting, error) {
	batches := companyBatches(g.opts.Companies, g.opts.MaxBatches)

	var (
		postings []models.Posting
		failed   int
		lastErr  error
	)
	seen := make(map[string]bool)
	for i, batch := range batches {
		answer, err := g.chat.Complete(ctx, grokSearchSystem, g.prompt(batch))
		if err != nil {
			if ctx.Err() != nil {
				return postings, ctx.Err()
			}
			failed++
			lastErr = err
			g.deps.Logger.Warn().Err(err).Int("batch", i+1).Msg("⚠️ Grok search request failed")
			continue
		}

		found := g.parse(answer)
		for _, p := range found {
			if seen[p.URL] {
				continue
			}
			seen[p.URL] = true
			postings = append(postings, p)
		}
		g.deps.Logger.Info().Int("batch", i+1).Int("of", len(batches)).Int("found", len(found)).Msg("🤖 Grok search batch done")
	}

	if failed == len(batches) {
		return nil, fmt.Errorf("grok search: all %d requests failed: %w", failed, lastErr)
	}
	return postings, nil
}

// companyBatches splits companies into groups of ten, at most limit groups.
// No companies yields one empty batch.
func companyBatches(companies []string, limit int) [][]string {
	if len(companies) == 0 {
		return [][]string{nil}
	}
	var out [][]string
	for start := 0; start < len(companies); start += companiesPerBatch {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, companies[start:min(start+companiesPerBatch, len(companies))])
	}
	return out
}

func (g *GrokSearch) prompt(companies []string) string {
	functions := strings.Join(g.opts.Functions, ", ")
	terms := strings.Join(g.opts.UnderclassTerms[:min(5, len(g.opts.UnderclassTerms))], " OR ")

	years := make([]string, len(g.opts.ExcludedYears))
	for i, y := range g.opts.ExcludedYears {
		years[i] = strconv.Quote(strconv.Itoa(y))
	}

	var query, addendum string
	if len(companies) > 0 {
		query = fmt.Sprintf("(%s) internship (%s) at %s", terms, functions, strings.Join(companies, ", "))
		addendum = "\n\nPRIORITY COMPANIES TO CHECK:\n- " + strings.Join(companies, "\n- ") +
			"\n\nSearch for internship programs at ALL of these companies."
	} else {
		query = fmt.Sprintf("(%s) internship (%s) site:greenhouse.io OR site:lever.co OR site:ashbyhq.com", terms, functions)
	}

	return `Search for underclass (freshman/sophomore) internship programs.

Requirements:
- Must be explicitly for freshmen, sophomores, first-year, or second-year students
- Programs labeled: "Discovery", "Explore", "Early Insight", "Pre-internship"
- Roles in: ` + functions + `
- Posted within the last ` + strconv.Itoa(g.opts.RecencyDays) + ` days
- On job boards: Greenhouse, Lever, Ashby, Workday

EXCLUDE any postings mentioning:
- ` + strings.Join(years, " or ") + ` graduation years
- "junior", "senior", "penultimate", "rising senior"
- PhD, masters, graduate students

Search query: ` + query + `

Return a JSON array of findings with:
- company: Company name
- title: Job title
- url: Direct link to posting
- location: City/State or Remote
- posted_at: Date if known (YYYY-MM-DD) or null
- underclass_evidence: Exact phrase showing underclass targeting
- function_family: ` + functions + `, or Other
- description: Brief 1-2 sentence description

Return ONLY valid JSON array. Empty array [] if none found.` + addendum
}

type grokFinding struct {
	Company            string  `json:"company"`
	Title              string  `json:"title"`
	URL                string  `json:"url"`
	Location           string  `json:"location"`
	PostedAt           *string `json:"posted_at"`
	UnderclassEvidence string  `json:"underclass_evidence"`
	FunctionFamily     string  `json:"function_family"`
	Description        string  `json:"description"`
}

// parse pulls the JSON array out of the answer. Anything unparseable yields
// no postings rather than an error.
func (g *GrokSearch) parse(answer string) []models.Posting {
	start := strings.Index(answer, "[")
	end := strings.LastIndex(answer, "]")
	if start < 0 || end <= start {
		g.deps.Logger.Warn().Int("bytes", len(answer)).Msg("⚠️ Grok answer has no JSON array")
		return nil
	}

	var findings []grokFinding
	if err := json.Unmarshal([]byte(answer[start:end+1]), &findings); err != nil {
		g.deps.Logger.Warn().Err(err).Msg("⚠️ Failed to decode Grok search results")
		return nil
	}
	if g.opts.MaxResults > 0 && len(findings) > g.opts.MaxResults {
		findings = findings[:g.opts.MaxResults]
	}

	now := g.deps.Now()
	postings := make([]models.Posting, 0, len(findings))
	for _, f := range findings {
		if strings.TrimSpace(f.URL) == "" {
			continue
		}
		company := strings.TrimSpace(f.Company)
		if company == "" {
			company = "Unknown"
		}
		title := strings.TrimSpace(f.Title)
		if title == "" {
			title = "Unknown"
		}
		var postedAt *time.Time
		if f.PostedAt != nil {
			postedAt = filter.ParseDateAt(*f.PostedAt, now)
		}

		source := models.SourceSearch
		if ats, ok := canonical.DetectATS(f.URL); ok {
			source = ats
		}

		p := newPosting(g.deps, source, company, title, canonical.Canonicalize(f.URL),
			strings.TrimSpace(f.Location), strings.TrimSpace(f.Description), postedAt)
		if p.FunctionFamily == models.FamilyOther && f.FunctionFamily != "" {
			p.FunctionFamily = models.FunctionFamily(strings.TrimSpace(f.FunctionFamily))
		}
		p.UnderclassEvidence = strings.TrimSpace(f.UnderclassEvidence)
		postings = append(postings, p)
	}
	return postings
}

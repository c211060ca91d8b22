package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go-internship-scanner/internal/canonical"
	"go-internship-scanner/internal/models"
)

const (
	googleCSEURL = "https://www.googleapis.com/customsearch/v1"
	bingURL      = "https://api.bing.microsoft.com/v7.0/search"
	serpAPIURL   = "https://serpapi.com/search"

	greenhouseBoardsAPI = "https://boards-api.greenhouse.io/v1/boards"
	leverPostingsAPI    = "https://api.lever.co/v0/postings"

	atsSiteFilter = "site:greenhouse.io OR site:lever.co OR site:ashbyhq.com OR site:myworkdayjobs.com"
)

var ErrUnknownProvider = errors.New("unknown search provider")

type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// SearchProvider runs one web query limited to the last recencyDays days.
// Results gathered before a failing page are returned alongside the error.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, recencyDays, maxResults int) ([]SearchResult, error)
}

// NewSearchProvider builds the provider named in search.provider.
func NewSearchProvider(kind, apiKey, cx string, client *http.Client) (SearchProvider, error) {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	switch kind {
	case "google_cse":
		if cx == "" {
			return nil, errors.New("google_cse needs a search engine id (cx)")
		}
		return &GoogleCSE{apiKey: apiKey, cx: cx, endpoint: googleCSEURL, client: client}, nil
	case "bing":
		return &Bing{apiKey: apiKey, endpoint: bingURL, client: client}, nil
	case "serpapi":
		return &SerpAPI{apiKey: apiKey, endpoint: serpAPIURL, client: client}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
}

type GoogleCSE struct {
	apiKey   string
	cx       string
	endpoint string
	client   *http.Client
}

type googleCSEResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
	Queries struct {
		NextPage []json.RawMessage `json:"nextPage"`
	} `json:"queries"`
}

func (g *GoogleCSE) Name() string { return "google_cse" }

func (g *GoogleCSE) Search(ctx context.Context, query string, recencyDays, maxResults int) ([]SearchResult, error) {
	var results []SearchResult
	for start := 1; len(results) < maxResults; start += 10 {
		params := url.Values{
			"key":          {g.apiKey},
			"cx":           {g.cx},
			"q":            {query},
			"dateRestrict": {"d" + strconv.Itoa(recencyDays)},
			"start":        {strconv.Itoa(start)},
			"num":          {strconv.Itoa(min(10, maxResults-len(results)))},
		}
		var resp googleCSEResponse
		if err := doJSON(ctx, g.client, http.MethodGet, g.endpoint+"?"+params.Encode(), nil, &resp); err != nil {
			return results, fmt.Errorf("google cse: %w", err)
		}
		if len(resp.Items) == 0 {
			break
		}
		for _, item := range resp.Items {
			results = append(results, SearchResult{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
		}
		if len(resp.Queries.NextPage) == 0 {
			break
		}
	}
	return capResults(results, maxResults), nil
}

type Bing struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"value"`
		TotalEstimatedMatches int `json:"totalEstimatedMatches"`
	} `json:"webPages"`
}

func (b *Bing) Name() string { return "bing" }

func (b *Bing) Search(ctx context.Context, query string, recencyDays, maxResults int) ([]SearchResult, error) {
	freshness := "Month"
	switch {
	case recencyDays <= 1:
		freshness = "Day"
	case recencyDays <= 7:
		freshness = "Week"
	}
	header := http.Header{"Ocp-Apim-Subscription-Key": {b.apiKey}}

	var results []SearchResult
	for offset := 0; len(results) < maxResults; {
		params := url.Values{
			"q":              {query},
			"count":          {strconv.Itoa(min(50, maxResults-len(results)))},
			"offset":         {strconv.Itoa(offset)},
			"freshness":      {freshness},
			"responseFilter": {"Webpages"},
		}
		var resp bingResponse
		if err := doJSONHeader(ctx, b.client, http.MethodGet, b.endpoint+"?"+params.Encode(), header, nil, &resp); err != nil {
			return results, fmt.Errorf("bing: %w", err)
		}
		pages := resp.WebPages.Value
		if len(pages) == 0 {
			break
		}
		for _, page := range pages {
			results = append(results, SearchResult{Title: page.Name, URL: page.URL, Snippet: page.Snippet})
		}
		offset += len(pages)
		if offset >= resp.WebPages.TotalEstimatedMatches {
			break
		}
	}
	return capResults(results, maxResults), nil
}

type SerpAPI struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

type serpAPIResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
	Pagination struct {
		Next string `json:"next"`
	} `json:"serpapi_pagination"`
}

func (s *SerpAPI) Name() string { return "serpapi" }

func (s *SerpAPI) Search(ctx context.Context, query string, recencyDays, maxResults int) ([]SearchResult, error) {
	tbs := "qdr:m"
	if recencyDays <= 30 {
		tbs = "qdr:d" + strconv.Itoa(recencyDays)
	}

	var results []SearchResult
	for start := 0; len(results) < maxResults; {
		params := url.Values{
			"api_key": {s.apiKey},
			"engine":  {"google"},
			"q":       {query},
			"tbs":     {tbs},
			"start":   {strconv.Itoa(start)},
			"num":     {strconv.Itoa(min(100, maxResults-len(results)))},
		}
		var resp serpAPIResponse
		if err := doJSON(ctx, s.client, http.MethodGet, s.endpoint+"?"+params.Encode(), nil, &resp); err != nil {
			return results, fmt.Errorf("serpapi: %w", err)
		}
		if len(resp.OrganicResults) == 0 {
			break
		}
		for _, item := range resp.OrganicResults {
			results = append(results, SearchResult{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
		}
		if resp.Pagination.Next == "" {
			break
		}
		start += len(resp.OrganicResults)
	}
	return capResults(results, maxResults), nil
}

func capResults(results []SearchResult, n int) []SearchResult {
	if len(results) > n {
		return results[:n]
	}
	return results
}

// BuildInternshipQuery ORs the first five underclass and role terms around
// "internship", optionally restricted to ATS hosts.
func BuildInternshipQuery(underclass, roles []string, siteFilter bool) string {
	parts := []string{"(" + quotedOr(underclass) + ")", "internship", "(" + quotedOr(roles) + ")"}
	if siteFilter {
		parts = append(parts, "("+atsSiteFilter+")")
	}
	return strings.Join(parts, " ")
}

func quotedOr(terms []string) string {
	terms = terms[:min(5, len(terms))]
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = strconv.Quote(t)
	}
	return strings.Join(quoted, " OR ")
}

// WebSearch runs queries through a search API and turns each hit into a
// posting: single-job API lookups for Greenhouse and Lever, page parsing
// for everything else.
type WebSearch struct {
	provider    SearchProvider
	queries     []string
	recencyDays int
	maxResults  int
	pages       *Generic
	deps        Deps

	greenhouseAPI string
	leverAPI      string
}

func NewWebSearch(provider SearchProvider, queries []string, recencyDays, maxResults int, fetcher Fetcher, deps Deps) *WebSearch {
	deps = deps.withDefaults()
	return &WebSearch{
		provider:      provider,
		queries:       queries,
		recencyDays:   recencyDays,
		maxResults:    maxResults,
		pages:         NewGeneric(nil, fetcher, deps),
		deps:          deps,
		greenhouseAPI: greenhouseBoardsAPI,
		leverAPI:      leverPostingsAPI,
	}
}

func (w *WebSearch) Name() string { return "search:" + w.provider.Name() }

// Fetch fails only when every query fails; a result that cannot be resolved
// is skipped.
func (w *WebSearch) Fetch(ctx context.Context) ([]models.Posting, error) {
	var (
		postings []models.Posting
		failed   int
		lastErr  error
	)
	seen := make(map[string]bool)

	for _, query := range w.queries {
		results, err := w.provider.Search(ctx, query, w.recencyDays, w.maxResults)
		if err != nil {
			if ctx.Err() != nil {
				return postings, ctx.Err()
			}
			failed++
			lastErr = err
			w.deps.Logger.Warn().Err(err).Str("query", query).Int("partial", len(results)).Msg("⚠️ Search query failed")
		}
		w.deps.Logger.Info().Str("provider", w.provider.Name()).Int("results", len(results)).Msg("🔎 Search query done")

		for _, r := range results {
			key := canonical.Canonicalize(r.URL)
			if r.URL == "" || seen[key] {
				continue
			}
			seen[key] = true

			p, ok := w.resolve(ctx, r)
			if ctx.Err() != nil {
				return postings, ctx.Err()
			}
			if ok {
				postings = append(postings, p)
			}
		}
	}

	if failed > 0 && failed == len(w.queries) {
		return postings, fmt.Errorf("all %d search queries failed: %w", failed, lastErr)
	}
	return postings, nil
}

func (w *WebSearch) resolve(ctx context.Context, r SearchResult) (models.Posting, bool) {
	source, isATS := canonical.DetectATS(r.URL)
	slug, hasSlug := canonical.ExtractCompanySlug(r.URL)
	id := jobID(r.URL, slug)

	if hasSlug && id != "" {
		company := canonical.CompanyFromSlug(slug)
		switch source {
		case models.SourceGreenhouse:
			var job greenhouseJob
			endpoint := fmt.Sprintf("%s/%s/jobs/%s?content=true", w.greenhouseAPI, slug, id)
			if err := doJSON(ctx, w.deps.Client, http.MethodGet, endpoint, nil, &job); err == nil {
				if p, ok := greenhousePosting(w.deps, company, job); ok {
					return p, true
				}
			} else {
				w.deps.Logger.Debug().Err(err).Str("url", r.URL).Msg("Greenhouse job lookup failed, parsing page")
			}
		case models.SourceLever:
			var job leverPosting
			endpoint := fmt.Sprintf("%s/%s/%s?mode=json", w.leverAPI, slug, id)
			if err := doJSON(ctx, w.deps.Client, http.MethodGet, endpoint, nil, &job); err == nil {
				if p, ok := leverToPosting(w.deps, company, job); ok {
					return p, true
				}
			} else {
				w.deps.Logger.Debug().Err(err).Str("url", r.URL).Msg("Lever job lookup failed, parsing page")
			}
		}
	}

	page, err := w.pages.fetcher.FetchHTML(ctx, r.URL)
	if err != nil {
		w.deps.Logger.Debug().Err(err).Str("url", r.URL).Msg("Failed to fetch search result")
		return models.Posting{}, false
	}
	p, ok := w.pages.parse(r.URL, page)
	if !ok {
		return models.Posting{}, false
	}
	p.Source = models.SourceSearch
	if isATS {
		p.Source = source
	}
	return p, true
}

// jobID is the last path segment of an ATS job URL, ignoring a trailing
// "apply". The board root has none.
func jobID(raw, slug string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if n := len(segments); n > 1 && segments[n-1] == "apply" {
		segments = segments[:n-1]
	}
	last := segments[len(segments)-1]
	if last == "" || last == slug || last == "jobs" {
		return ""
	}
	return last
}

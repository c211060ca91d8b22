package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go-internship-scanner/internal/config"
	"go-internship-scanner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func organicItems(t *testing.T, from, n int, titleKey, urlKey string) []map[string]string {
	t.Helper()
	items := make([]map[string]string, n)
	for i := range items {
		items[i] = map[string]string{
			titleKey:  fmt.Sprintf("Job %d", from+i),
			urlKey:    fmt.Sprintf("https://jobs.example.com/%d", from+i),
			"snippet": "internship",
		}
	}
	return items
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestBuildInternshipQuery(t *testing.T) {
	underclass := []string{"freshman", "sophomore", "first-year", "second-year", "underclassmen", "1st year"}

	got := BuildInternshipQuery(underclass, []string{"software", "product"}, true)
	assert.Equal(t, `("freshman" OR "sophomore" OR "first-year" OR "second-year" OR "underclassmen") internship `+
		`("software" OR "product") (site:greenhouse.io OR site:lever.co OR site:ashbyhq.com OR site:myworkdayjobs.com)`, got)

	got = BuildInternshipQuery([]string{"sophomore"}, []string{"analyst"}, false)
	assert.Equal(t, `("sophomore") internship ("analyst")`, got)
}

func TestNewSearchProvider(t *testing.T) {
	tests := []struct {
		kind, cx string
		want     string
		wantErr  bool
	}{
		{kind: "google_cse", cx: "engine", want: "google_cse"},
		{kind: "google_cse", wantErr: true},
		{kind: "bing", want: "bing"},
		{kind: "serpapi", want: "serpapi"},
		{kind: "yahoo", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.kind+tt.cx, func(t *testing.T) {
			p, err := NewSearchProvider(tt.kind, "key", tt.cx, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}

	_, err := NewSearchProvider("yahoo", "key", "", nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestGoogleCSEPages(t *testing.T) {
	var starts, nums []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "k", q.Get("key"))
		assert.Equal(t, "engine", q.Get("cx"))
		assert.Equal(t, "d7", q.Get("dateRestrict"))
		starts = append(starts, q.Get("start"))
		nums = append(nums, q.Get("num"))

		if q.Get("start") == "1" {
			writeJSON(t, w, map[string]any{
				"items":   organicItems(t, 0, 10, "title", "link"),
				"queries": map[string]any{"nextPage": []any{map[string]int{"startIndex": 11}}},
			})
			return
		}
		writeJSON(t, w, map[string]any{"items": organicItems(t, 10, 2, "title", "link")})
	}))
	defer srv.Close()

	g := &GoogleCSE{apiKey: "k", cx: "engine", endpoint: srv.URL, client: srv.Client()}
	results, err := g.Search(context.Background(), "sophomore internship", 7, 15)
	require.NoError(t, err)

	assert.Len(t, results, 12)
	assert.Equal(t, []string{"1", "11"}, starts)
	assert.Equal(t, []string{"10", "5"}, nums)
	assert.Equal(t, "https://jobs.example.com/11", results[11].URL)
}

func TestBingSearch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "bkey", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "Week", r.URL.Query().Get("freshness"))
		assert.Equal(t, "20", r.URL.Query().Get("count"))
		writeJSON(t, w, map[string]any{"webPages": map[string]any{
			"value":                 organicItems(t, 0, 3, "name", "url"),
			"totalEstimatedMatches": 3,
		}})
	}))
	defer srv.Close()

	b := &Bing{apiKey: "bkey", endpoint: srv.URL, client: srv.Client()}
	results, err := b.Search(context.Background(), "q", 7, 20)
	require.NoError(t, err)

	assert.Len(t, results, 3)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "Job 0", results[0].Title)
}

func TestSerpAPISearch(t *testing.T) {
	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "google", q.Get("engine"))
		assert.Equal(t, "qdr:d14", q.Get("tbs"))
		starts = append(starts, q.Get("start"))

		if q.Get("start") == "0" {
			writeJSON(t, w, map[string]any{
				"organic_results":    organicItems(t, 0, 2, "title", "link"),
				"serpapi_pagination": map[string]string{"next": "https://serpapi.com/search?start=2"},
			})
			return
		}
		writeJSON(t, w, map[string]any{"organic_results": []any{}})
	}))
	defer srv.Close()

	s := &SerpAPI{apiKey: "skey", endpoint: srv.URL, client: srv.Client()}
	results, err := s.Search(context.Background(), "q", 14, 5)
	require.NoError(t, err)

	assert.Len(t, results, 2)
	assert.Equal(t, []string{"0", "2"}, starts)
}

func TestSearchProviderKeepsPartialResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start") != "0" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		writeJSON(t, w, map[string]any{
			"organic_results":    organicItems(t, 0, 2, "title", "link"),
			"serpapi_pagination": map[string]string{"next": "more"},
		})
	}))
	defer srv.Close()

	s := &SerpAPI{apiKey: "skey", endpoint: srv.URL, client: srv.Client()}
	results, err := s.Search(context.Background(), "q", 7, 10)
	require.Error(t, err)
	assert.Len(t, results, 2)
}

type fakeProvider struct {
	results map[string][]SearchResult
	errs    map[string]error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Search(_ context.Context, query string, _, _ int) ([]SearchResult, error) {
	return f.results[query], f.errs[query]
}

func TestWebSearchResolvesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gh/acme/jobs/123":
			fmt.Fprint(w, `{"id":123,"title":"Software Engineering Intern","content":"&lt;p&gt;Open to any sophomore&lt;/p&gt;",
				"location":{"name":"New York"},"updated_at":"2026-01-30T10:00:00Z",
				"absolute_url":"https://boards.greenhouse.io/acme/jobs/123"}`)
		case "/lever/widgets/abc-123":
			assert.Equal(t, "json", r.URL.Query().Get("mode"))
			fmt.Fprint(w, `{"id":"abc-123","text":"Product Intern","descriptionPlain":"First-year students welcome",
				"categories":{"location":"Remote"},"hostedUrl":"https://jobs.lever.co/widgets/abc-123"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	pages := stubFetcher{
		"https://careers.example.org/jobs/7": `<html><head><title>Strategy Explore Program | Example</title></head>
			<body><main>Location: Boston. A two-day program for first-year students.</main></body></html>`,
		"https://jobs.ashbyhq.com/ramp/4f1c": `<html><head><title>Software Engineer Intern | Ramp</title></head>
			<body><main>Sophomore friendly.</main></body></html>`,
	}
	provider := &fakeProvider{results: map[string][]SearchResult{
		"q1": {
			{Title: "SWE Intern", URL: "https://boards.greenhouse.io/acme/jobs/123?gh_src=search"},
			{Title: "Product Intern", URL: "https://jobs.lever.co/widgets/abc-123/apply"},
			{Title: "Explore", URL: "https://careers.example.org/jobs/7"},
		},
		"q2": {
			{Title: "Explore again", URL: "https://careers.example.org/jobs/7?utm_source=google"},
			{Title: "Ramp", URL: "https://jobs.ashbyhq.com/ramp/4f1c"},
			{Title: "Gone", URL: "https://gone.example.org/x"},
			{Title: "No link"},
		},
	}}

	ws := NewWebSearch(provider, []string{"q1", "q2"}, 7, 10, pages, testDeps(srv.Client()))
	ws.greenhouseAPI = srv.URL + "/gh"
	ws.leverAPI = srv.URL + "/lever"
	assert.Equal(t, "search:fake", ws.Name())

	postings, err := ws.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, postings, 4)

	gh := postings[0]
	assert.Equal(t, models.SourceGreenhouse, gh.Source)
	assert.Equal(t, "Acme", gh.Company)
	assert.Equal(t, "Open to any sophomore", gh.Text)

	lever := postings[1]
	assert.Equal(t, models.SourceLever, lever.Source)
	assert.Equal(t, "Widgets", lever.Company)
	assert.Equal(t, "Product Intern", lever.Title)
	assert.Equal(t, "Remote", lever.Location)

	page := postings[2]
	assert.Equal(t, models.SourceSearch, page.Source)
	assert.Equal(t, "Strategy Explore Program", page.Title)
	assert.Equal(t, "https://careers.example.org/jobs/7", page.URL)

	assert.Equal(t, models.SourceAshby, postings[3].Source)
}

func TestWebSearchGreenhouseLookupFallsBackToPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	u := "https://boards.greenhouse.io/acme/jobs/55"
	pages := stubFetcher{u: `<html><head><title>Data Intern - Acme</title></head><body><main>Freshman cohort.</main></body></html>`}
	provider := &fakeProvider{results: map[string][]SearchResult{"q": {{URL: u}}}}

	ws := NewWebSearch(provider, []string{"q"}, 7, 10, pages, testDeps(srv.Client()))
	ws.greenhouseAPI = srv.URL

	postings, err := ws.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, "Data Intern", postings[0].Title)
	assert.Equal(t, models.SourceGreenhouse, postings[0].Source)
}

func TestWebSearchQueryFailures(t *testing.T) {
	boom := errors.New("quota exceeded")
	provider := &fakeProvider{
		results: map[string][]SearchResult{"ok": nil},
		errs:    map[string]error{"bad1": boom, "bad2": boom},
	}

	_, err := NewWebSearch(provider, []string{"bad1", "ok"}, 7, 10, stubFetcher{}, testDeps(nil)).Fetch(context.Background())
	assert.NoError(t, err, "one good query is enough")

	_, err = NewWebSearch(provider, []string{"bad1", "bad2"}, 7, 10, stubFetcher{}, testDeps(nil)).Fetch(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestJobID(t *testing.T) {
	tests := []struct {
		url, slug, want string
	}{
		{"https://boards.greenhouse.io/acme/jobs/123", "acme", "123"},
		{"https://jobs.lever.co/widgets/abc-123/apply", "widgets", "abc-123"},
		{"https://jobs.lever.co/widgets", "widgets", ""},
		{"https://boards.greenhouse.io/acme/jobs/", "acme", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, jobID(tt.url, tt.slug))
		})
	}
}

type fakeChat struct {
	prompts []string
	answer  string
	err     error
}

func (f *fakeChat) Complete(_ context.Context, system, user string) (string, error) {
	f.prompts = append(f.prompts, user)
	return f.answer, f.err
}

const grokAnswer = "Here is what I found:\n```json\n" + `[
	{"company":"Acme","title":"Software Engineering Intern","url":"https://boards.greenhouse.io/acme/jobs/9?utm_source=x",
	 "location":"New York, NY","posted_at":"2026-01-29","underclass_evidence":" open to sophomores ",
	 "function_family":"SWE","description":"Build tools. Open to sophomores."},
	{"company":"Bain","title":"Strategy Explore Program","url":"https://www.bain.com/careers/explore",
	 "location":"","posted_at":null,"underclass_evidence":"first-year students",
	 "function_family":"Consulting","description":"Two-day program for first-year students."},
	{"company":"Nowhere","title":"Mystery Intern","url":""}
]` + "\n```"

func TestGrokSearchFetch(t *testing.T) {
	chat := &fakeChat{answer: grokAnswer}
	g := NewGrokSearch(chat, GrokSearchOptions{
		Functions:       []string{"SWE", "Consulting"},
		UnderclassTerms: []string{"freshman", "sophomore"},
		ExcludedYears:   []int{2027, 2028},
		RecencyDays:     7,
		MaxResults:      20,
	}, testDeps(nil))

	postings, err := g.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, postings, 2)

	require.Len(t, chat.prompts, 1)
	prompt := chat.prompts[0]
	assert.Contains(t, prompt, "Roles in: SWE, Consulting")
	assert.Contains(t, prompt, `"2027" or "2028" graduation years`)
	assert.Contains(t, prompt, "(freshman OR sophomore) internship (SWE, Consulting) site:greenhouse.io")
	assert.NotContains(t, prompt, "PRIORITY COMPANIES")

	acme := postings[0]
	assert.Equal(t, models.SourceGreenhouse, acme.Source)
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/9", acme.URL)
	assert.Equal(t, "open to sophomores", acme.UnderclassEvidence)
	assert.Equal(t, models.FamilySWE, acme.FunctionFamily)
	require.NotNil(t, acme.PostedAt)
	assert.Equal(t, "2026-01-29", acme.PostedAt.Format("2006-01-02"))

	bain := postings[1]
	assert.Equal(t, models.SourceSearch, bain.Source)
	assert.Nil(t, bain.PostedAt)
	assert.Equal(t, models.DefaultLocation, bain.Location)
	assert.Equal(t, models.FamilyConsulting, bain.FunctionFamily)
}

func TestGrokSearchCompanyBatches(t *testing.T) {
	companies := make([]string, 25)
	for i := range companies {
		companies[i] = fmt.Sprintf("Company %02d", i)
	}
	chat := &fakeChat{answer: grokAnswer}
	g := NewGrokSearch(chat, GrokSearchOptions{
		Functions:       []string{"SWE"},
		UnderclassTerms: []string{"sophomore"},
		Companies:       companies,
		RecencyDays:     7,
		MaxBatches:      2,
	}, testDeps(nil))

	postings, err := g.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, chat.prompts, 2)
	assert.Contains(t, chat.prompts[0], "PRIORITY COMPANIES TO CHECK:\n- Company 00")
	assert.Contains(t, chat.prompts[0], "- Company 09")
	assert.NotContains(t, chat.prompts[0], "Company 10")
	assert.Contains(t, chat.prompts[1], "- Company 19")
	assert.NotContains(t, strings.Join(chat.prompts, ""), "Company 20")

	assert.Len(t, postings, 2, "the same findings from both batches collapse")
}

func TestGrokSearchFailures(t *testing.T) {
	boom := errors.New("rate limited")
	_, err := NewGrokSearch(&fakeChat{err: boom}, GrokSearchOptions{}, testDeps(nil)).Fetch(context.Background())
	assert.ErrorIs(t, err, boom)

	postings, err := NewGrokSearch(&fakeChat{answer: "Sorry, nothing today."}, GrokSearchOptions{}, testDeps(nil)).Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, postings)
}

func TestFromConfigSearchSources(t *testing.T) {
	cfg := config.Default()
	cfg.Search.Provider = "bing"
	cfg.Search.APIKey = "bkey"
	cfg.Search.LLMSearch = true

	var names []string
	for _, s := range FromConfig(cfg, nil, &fakeChat{}, testDeps(nil)) {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"search:bing", "grok-search"}, names)

	assert.Empty(t, FromConfig(cfg, nil, nil, testDeps(nil))[1:], "no chat client, no LLM search")
}

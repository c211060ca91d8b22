package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go-internship-scanner/internal/canonical"
	"go-internship-scanner/internal/filter"
	"go-internship-scanner/internal/htmltext"
	"go-internship-scanner/internal/models"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	maxBodyText       = 5000
	minDescriptionLen = 100
	unknownTitle      = "Unknown Position"
)

var (
	titleSuffix      = regexp.MustCompile(`\s+[-|]\s+.*$`)
	descriptionClass = []*regexp.Regexp{
		regexp.MustCompile(`(?i)job[-_]?description`),
		regexp.MustCompile(`(?i)posting[-_]?description`),
		regexp.MustCompile(`(?i)description`),
	}
	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:location|office):\s*([^\n.|]+)`),
		regexp.MustCompile(`(?i)(?:based in|located in)\s+([^\n.|]+)`),
	}
)

// Fetcher returns the HTML of a page. HTTPFetcher is the plain version;
// the browser package renders JavaScript-heavy career sites.
type Fetcher interface {
	FetchHTML(ctx context.Context, pageURL string) (string, error)
}

type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &statusError{url: pageURL, status: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}
	return string(data), nil
}

// Generic parses single job pages that have no ATS adapter.
type Generic struct {
	urls    []string
	fetcher Fetcher
	deps    Deps
}

func NewGeneric(urls []string, fetcher Fetcher, deps Deps) *Generic {
	deps = deps.withDefaults()
	if fetcher == nil {
		fetcher = HTTPFetcher{Client: deps.Client}
	}
	return &Generic{urls: urls, fetcher: fetcher, deps: deps}
}

func (g *Generic) Name() string { return "generic-html" }

// Fetch parses each configured page; pages that fail are logged and skipped.
func (g *Generic) Fetch(ctx context.Context) ([]models.Posting, error) {
	var postings []models.Posting
	for _, u := range g.urls {
		page, err := g.fetcher.FetchHTML(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return postings, ctx.Err()
			}
			g.deps.Logger.Warn().Err(err).Str("url", u).Msg("⚠️ Failed to fetch job page")
			continue
		}
		p, ok := g.parse(u, page)
		if !ok {
			g.deps.Logger.Warn().Str("url", u).Msg("⚠️ Could not extract a title from job page")
			continue
		}
		postings = append(postings, p)
	}
	return postings, nil
}

type pageFacts struct {
	meta         map[string]string
	ldJSON       []map[string]any
	h1           string
	title        string
	descriptions []string
	main         string
	body         string
	allText      string
}

func (g *Generic) parse(pageURL, page string) (models.Posting, bool) {
	doc, err := xhtml.Parse(strings.NewReader(page))
	if err != nil {
		return models.Posting{}, false
	}
	facts := collectFacts(doc)

	title := extractTitle(facts)
	if title == "" {
		return models.Posting{}, false
	}
	description := extractDescription(facts)
	now := g.deps.Now()

	return newPosting(g.deps, models.SourceGeneric, extractCompany(facts, pageURL), title,
		canonical.Canonicalize(pageURL), extractLocation(facts), description,
		extractPostedAt(facts, description, now)), true
}

func collectFacts(doc *xhtml.Node) pageFacts {
	facts := pageFacts{meta: map[string]string{}}

	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			switch n.DataAtom {
			case atom.Meta:
				key := attr(n, "property")
				if key == "" {
					key = attr(n, "name")
				}
				if key != "" {
					if _, exists := facts.meta[key]; !exists {
						facts.meta[key] = attr(n, "content")
					}
				}
			case atom.Script:
				if attr(n, "type") == "application/ld+json" && n.FirstChild != nil {
					facts.ldJSON = append(facts.ldJSON, decodeLDJSON(n.FirstChild.Data)...)
				}
				return
			case atom.Title:
				if facts.title == "" {
					facts.title = htmltext.NodeText(n)
				}
			case atom.H1:
				if facts.h1 == "" {
					facts.h1 = htmltext.NodeText(n)
				}
			case atom.Main, atom.Article:
				if facts.main == "" {
					facts.main = htmltext.NodeText(n)
				}
			case atom.Body:
				facts.body = bodyText(n)
				facts.allText = htmltext.NodeText(n)
			}
			if n.DataAtom == atom.Div || n.DataAtom == atom.Section || n.DataAtom == atom.Article {
				if isDescriptionContainer(n) {
					facts.descriptions = append(facts.descriptions, htmltext.NodeText(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return facts
}

func attr(n *xhtml.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func isDescriptionContainer(n *xhtml.Node) bool {
	if attr(n, "itemprop") == "description" {
		return true
	}
	class, id := attr(n, "class"), attr(n, "id")
	for _, re := range descriptionClass {
		if re.MatchString(class) {
			return true
		}
	}
	return descriptionClass[0].MatchString(id)
}

// bodyText is the page text without navigation chrome.
func bodyText(body *xhtml.Node) string {
	var b strings.Builder
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Nav, atom.Footer, atom.Header:
				return
			}
		}
		if n.Type == xhtml.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
	return htmltext.Collapse(b.String())
}

// decodeLDJSON accepts a single object, an array, or an @graph wrapper.
func decodeLDJSON(raw string) []map[string]any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	var out []map[string]any
	switch t := v.(type) {
	case map[string]any:
		if graph, ok := t["@graph"].([]any); ok {
			for _, item := range graph {
				if m, ok := item.(map[string]any); ok {
					out = append(out, m)
				}
			}
		}
		out = append(out, t)
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func extractCompany(f pageFacts, pageURL string) string {
	if site := strings.TrimSpace(f.meta["og:site_name"]); site != "" {
		return site
	}
	for _, ld := range f.ldJSON {
		if org, ok := ld["hiringOrganization"].(map[string]any); ok {
			if name := str(org, "name"); name != "" {
				return name
			}
		}
	}
	u, err := url.Parse(pageURL)
	if err != nil || u.Hostname() == "" {
		return "Unknown"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return canonical.CompanyFromSlug(strings.Split(host, ".")[0])
}

func extractTitle(f pageFacts) string {
	if og := titleSuffix.ReplaceAllString(strings.TrimSpace(f.meta["og:title"]), ""); og != "" {
		return og
	}
	if f.h1 != "" {
		return f.h1
	}
	if f.title != "" {
		if t := titleSuffix.ReplaceAllString(f.title, ""); t != "" {
			return t
		}
		return unknownTitle
	}
	return ""
}

func extractDescription(f pageFacts) string {
	for _, d := range f.descriptions {
		if len(d) > minDescriptionLen {
			return d
		}
	}
	if f.main != "" {
		return f.main
	}
	return htmltext.Truncate(f.body, maxBodyText)
}

func extractLocation(f pageFacts) string {
	for _, ld := range f.ldJSON {
		loc := ld["jobLocation"]
		if list, ok := loc.([]any); ok && len(list) > 0 {
			loc = list[0]
		}
		place, ok := loc.(map[string]any)
		if !ok {
			continue
		}
		address, ok := place["address"].(map[string]any)
		if !ok {
			continue
		}
		var parts []string
		for _, key := range []string{"addressLocality", "addressRegion", "addressCountry"} {
			if v := str(address, key); v != "" {
				parts = append(parts, v)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}

	for _, re := range locationPatterns {
		if m := re.FindStringSubmatch(f.allText); m != nil {
			return htmltext.Truncate(strings.TrimSpace(m[1]), 100)
		}
	}
	return models.DefaultLocation
}

func extractPostedAt(f pageFacts, description string, now time.Time) *time.Time {
	for _, ld := range f.ldJSON {
		if t := filter.ParseDateAt(str(ld, "datePosted"), now); t != nil {
			return t
		}
	}
	if t := filter.ParseDateAt(f.meta["article:published_time"], now); t != nil {
		return t
	}
	return filter.ExtractDateFromText(description, now)
}

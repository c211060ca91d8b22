package canonical

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go-internship-scanner/internal/models"
)

// trackingParams are dropped from every query string (keys compared lowercased).
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"ref": {}, "source": {}, "fbclid": {}, "gclid": {}, "msclkid": {},
	"mc_cid": {}, "mc_eid": {}, "gh_src": {}, "lever_source": {}, "lever_origin": {},
	"ashby_jid": {}, "_ga": {}, "_gl": {}, "_hsenc": {}, "_hsmi": {},
	"trk": {}, "trkinfo": {},
}

var (
	greenhouseSlug = regexp.MustCompile(`greenhouse\.io/(?:v1/boards/)?([a-zA-Z0-9_-]+)`)
	leverSlug      = regexp.MustCompile(`lever\.co/([a-zA-Z0-9_-]+)`)
	ashbySlug      = regexp.MustCompile(`ashbyhq\.com/([a-zA-Z0-9_-]+)`)
	workdaySlug    = regexp.MustCompile(`(?:https?://)?([a-zA-Z0-9_-]+)\.wd\d+\.myworkdayjobs\.com`)
)

func isTracking(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, "utm_") {
		return true
	}
	_, ok := trackingParams[k]
	return ok
}

// Canonicalize lowercases the host, drops tracking params, trailing slashes and
// the fragment, and re-encodes the remaining query sorted by key.
// Unparseable input comes back unchanged.
func Canonicalize(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")

	kept := url.Values{}
	for key, values := range query {
		if isTracking(key) {
			continue
		}
		for _, v := range values {
			if v != "" {
				kept.Add(key, v)
			}
		}
	}
	u.RawQuery = kept.Encode()
	u.ForceQuery = false

	return u.String()
}

// DetectATS reports which applicant tracking system hosts the URL, if any.
func DetectATS(raw string) (models.Source, bool) {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "greenhouse.io"):
		return models.SourceGreenhouse, true
	case strings.Contains(lower, "lever.co"):
		return models.SourceLever, true
	case strings.Contains(lower, "ashbyhq.com"):
		return models.SourceAshby, true
	case strings.Contains(lower, "myworkdayjobs.com"), strings.Contains(lower, "workday.com"):
		return models.SourceWorkday, true
	}
	return "", false
}

// ExtractCompanySlug pulls the board/company identifier out of an ATS URL.
func ExtractCompanySlug(raw string) (string, bool) {
	source, ok := DetectATS(raw)
	if !ok {
		return "", false
	}

	var pattern *regexp.Regexp
	switch source {
	case models.SourceGreenhouse:
		pattern = greenhouseSlug
	case models.SourceLever:
		pattern = leverSlug
	case models.SourceAshby:
		pattern = ashbySlug
	case models.SourceWorkday:
		pattern = workdaySlug
	}

	m := pattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func GreenhouseAPIURL(slug string) string {
	return fmt.Sprintf("https://boards-api.greenhouse.io/v1/boards/%s/jobs?content=true", slug)
}

func LeverAPIURL(slug string) string {
	return fmt.Sprintf("https://api.lever.co/v0/postings/%s?mode=json", slug)
}

func AshbyAPIURL(slug string) string {
	return fmt.Sprintf("https://api.ashbyhq.com/posting-api/job-board/%s", slug)
}

func WorkdayBaseURL(tenant, instance string) string {
	return fmt.Sprintf("https://%s.%s.myworkdayjobs.com", tenant, instance)
}

func WorkdayJobsURL(tenant, instance, portal string) string {
	return fmt.Sprintf("%s/wday/cxs/%s/%s/jobs", WorkdayBaseURL(tenant, instance), tenant, portal)
}

// CompanyFromSlug turns "jane-street_capital" into "Jane Street Capital".
func CompanyFromSlug(slug string) string {
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(slug))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

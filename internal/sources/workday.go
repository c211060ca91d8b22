package sources

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go-internship-scanner/internal/canonical"
	"go-internship-scanner/internal/filter"
	"go-internship-scanner/internal/htmltext"
	"go-internship-scanner/internal/models"
)

const workdayPageSize = 20

var workdayDaysAgo = regexp.MustCompile(`(\d+)\+?\s*days?\s*ago`)

type workdayListRequest struct {
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	AppliedFacets map[string]any `json:"appliedFacets"`
	SearchText    string         `json:"searchText"`
}

type workdayListResponse struct {
	Total       int `json:"total"`
	JobPostings []struct {
		Title         string   `json:"title"`
		ExternalPath  string   `json:"externalPath"`
		LocationsText string   `json:"locationsText"`
		PostedOn      string   `json:"postedOn"`
		BulletFields  []string `json:"bulletFields"`
	} `json:"jobPostings"`
}

type workdayDetailResponse struct {
	JobPostingInfo struct {
		Title          string `json:"title"`
		JobDescription string `json:"jobDescription"`
		Location       string `json:"location"`
		StartDate      string `json:"startDate"`
	} `json:"jobPostingInfo"`
}

type Workday struct {
	tenant, instance, portal string
	// apiBase is the cxs endpoint root; siteBase builds the public job URL
	apiBase  string
	siteBase string
	search   string
	deps     Deps
}

// NewWorkday builds a source for one Workday career site. Every listing is
// passed on; exclusion is left to the posting filter.
func NewWorkday(tenant, instance, portal, search string, deps Deps) *Workday {
	base := canonical.WorkdayBaseURL(tenant, instance)
	return &Workday{
		tenant:   tenant,
		instance: instance,
		portal:   portal,
		apiBase:  fmt.Sprintf("%s/wday/cxs/%s/%s", base, tenant, portal),
		siteBase: base,
		search:   search,
		deps:     deps.withDefaults(),
	}
}

func (w *Workday) Name() string { return "workday:" + w.tenant }

func (w *Workday) Fetch(ctx context.Context) ([]models.Posting, error) {
	company := canonical.CompanyFromSlug(w.tenant)
	now := w.deps.Now()

	var postings []models.Posting
	for offset := 0; ; {
		var page workdayListResponse
		req := workdayListRequest{Limit: workdayPageSize, Offset: offset, AppliedFacets: map[string]any{}, SearchText: w.search}
		if err := doJSON(ctx, w.deps.Client, "POST", w.apiBase+"/jobs", req, &page); err != nil {
			if len(postings) > 0 {
				w.deps.Logger.Warn().Err(err).Str("tenant", w.tenant).Msg("⚠️ Workday paging stopped early")
				break
			}
			return nil, fmt.Errorf("workday tenant %q: %w", w.tenant, err)
		}
		if len(page.JobPostings) == 0 {
			break
		}

		for _, job := range page.JobPostings {
			if job.Title == "" || job.ExternalPath == "" {
				continue
			}
			text, location := strings.Join(job.BulletFields, " | "), job.LocationsText
			var detail workdayDetailResponse
			if err := doJSON(ctx, w.deps.Client, "GET", w.apiBase+job.ExternalPath, nil, &detail); err != nil {
				w.deps.Logger.Warn().Err(err).Str("path", job.ExternalPath).Msg("⚠️ Workday detail unavailable, using listing")
			} else {
				if d := htmltext.Extract(detail.JobPostingInfo.JobDescription); d != "" {
					text = d
				}
				if detail.JobPostingInfo.Location != "" {
					location = detail.JobPostingInfo.Location
				}
			}

			url := canonical.Canonicalize(fmt.Sprintf("%s/%s%s", w.siteBase, w.portal, job.ExternalPath))
			postings = append(postings, newPosting(w.deps, models.SourceWorkday, company, job.Title,
				url, location, text, parseWorkdayDate(job.PostedOn, now)))
		}

		offset += len(page.JobPostings)
		if offset >= page.Total {
			break
		}
	}

	w.deps.Logger.Debug().Str("tenant", w.tenant).Int("jobs", len(postings)).Msg("🏢 Workday site fetched")
	return postings, nil
}

// parseWorkdayDate reads "Posted Today", "Posted Yesterday", "Posted 3 Days Ago"
// and "Posted 30+ Days Ago", falling back to the general parser.
func parseWorkdayDate(postedOn string, now time.Time) *time.Time {
	text := strings.ToLower(strings.TrimSpace(postedOn))
	if text == "" {
		return nil
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch {
	case strings.Contains(text, "today"):
		return &midnight
	case strings.Contains(text, "yesterday"):
		t := midnight.AddDate(0, 0, -1)
		return &t
	}
	if m := workdayDaysAgo.FindStringSubmatch(text); m != nil {
		days, err := strconv.Atoi(m[1])
		if err == nil {
			t := midnight.AddDate(0, 0, -days)
			return &t
		}
	}
	return filter.ParseDateAt(strings.TrimPrefix(text, "posted "), now)
}

package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go-internship-scanner/internal/models"
)

const (
	maxNearMisses  = 10
	contextRadius  = 50
	seasonLookback = 10
)

var (
	seasonRegex = regexp.MustCompile(`(?i)\b(?:summer|fall|spring|winter)\s+`)
	// named programs that count as internships even without "intern" in the title
	programRegex = compileTerms([]string{"discovery program", "explore program", "summer analyst", "summer associate"})
)

// Options configures one PostingFilter.
type Options struct {
	UnderclassTerms []string
	InternshipTerms []string
	// RoleTerms is carried for consumers such as the enrichment prompt;
	// the rule chain itself does not consult it.
	RoleTerms              []string
	UpperclassTerms        []string
	ExcludedYears          []int
	RecencyDays            int
	RequirePostDate        bool
	RequireUnderclassTerms bool
}

// Result is the decision for a single posting.
type Result struct {
	Included bool
	Reason   string
	Evidence string
}

// Stats counts one outcome per processed posting.
type Stats struct {
	TotalProcessed        int `json:"total_processed"`
	Included              int `json:"included"`
	ExcludedYear          int `json:"excluded_year"`
	ExcludedUpperclass    int `json:"excluded_upperclass"`
	ExcludedNotInternship int `json:"excluded_not_internship"`
	ExcludedNoUnderclass  int `json:"excluded_no_underclass"`
	ExcludedWrongFunction int `json:"excluded_wrong_function"`
	ExcludedNoDate        int `json:"excluded_no_date"`
	ExcludedTooOld        int `json:"excluded_too_old"`
}

// PostingFilter applies the ordered inclusion rules to a batch of postings.
// An instance holds per-run counters and must not be shared across runs.
type PostingFilter struct {
	opts       Options
	classifier *Classifier
	now        func() time.Time

	underclass *regexp.Regexp
	internship *regexp.Regexp
	upperclass *regexp.Regexp
	years      *regexp.Regexp

	stats      Stats
	nearMisses []models.NearMiss
}

type Option func(*PostingFilter)

// WithClock replaces time.Now for recency checks.
func WithClock(now func() time.Time) Option {
	return func(f *PostingFilter) { f.now = now }
}

func New(opts Options, classifier *Classifier, options ...Option) *PostingFilter {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	f := &PostingFilter{
		opts:       opts,
		classifier: classifier,
		now:        time.Now,
		underclass: compileTerms(opts.UnderclassTerms),
		internship: compileTerms(opts.InternshipTerms),
		upperclass: compileTerms(opts.UpperclassTerms),
		years:      compileYears(opts.ExcludedYears),
	}
	for _, o := range options {
		o(f)
	}
	return f
}

// compileTerms builds a case-insensitive whole-word alternation of literal
// terms. No terms means a nil pattern that never matches.
func compileTerms(terms []string) *regexp.Regexp {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(NormalizeText(t))
		if t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// compileYears builds one whole-word alternation so matches come back in
// text order, whichever year they are.
func compileYears(years []int) *regexp.Regexp {
	if len(years) == 0 {
		return nil
	}
	alts := make([]string, len(years))
	for i, y := range years {
		alts[i] = strconv.Itoa(y)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(alts, "|") + `)\b`)
}

func findTerm(re *regexp.Regexp, text string) []int {
	if re == nil {
		return nil
	}
	return re.FindStringIndex(text)
}

// FilterOne runs the rules in order and stops at the first failure. The
// returned posting carries any classification and evidence produced on the way;
// the input is never modified.
func (f *PostingFilter) FilterOne(p models.Posting) (models.Posting, Result) {
	f.stats.TotalProcessed++

	title := NormalizeText(p.Title)
	text := title + " " + NormalizeText(p.Text)

	//rule 1: excluded graduation year, ignoring "Summer 2027" style cohorts
	if f.years != nil {
		for _, loc := range f.years.FindAllStringIndex(text, -1) {
			if seasonRegex.MatchString(text[max(0, loc[0]-seasonLookback):loc[0]]) {
				continue
			}
			f.stats.ExcludedYear++
			return p, Result{
				Reason:   "Contains excluded graduation year: " + text[loc[0]:loc[1]],
				Evidence: contextAround(text, loc[0], loc[1], contextRadius),
			}
		}
	}

	//rule 2: upperclass term, unless the title itself targets underclassmen
	if findTerm(f.underclass, title) == nil {
		if loc := findTerm(f.upperclass, text); loc != nil {
			f.stats.ExcludedUpperclass++
			return p, Result{
				Reason:   fmt.Sprintf("Contains upperclass term: %s", text[loc[0]:loc[1]]),
				Evidence: contextAround(text, loc[0], loc[1], contextRadius),
			}
		}
	}

	//rule 3: internship in the title, or a named program anywhere
	if findTerm(f.internship, title) == nil && findTerm(programRegex, text) == nil {
		f.stats.ExcludedNotInternship++
		return p, Result{Reason: "Not an internship/co-op position", Evidence: p.Title}
	}

	//rule 4: recency
	if p.PostedAt == nil {
		if f.opts.RequirePostDate {
			f.stats.ExcludedNoDate++
			return p, Result{Reason: "No reliable post date available"}
		}
	} else if !IsWithinDays(p.PostedAt, f.opts.RecencyDays, f.now()) {
		f.stats.ExcludedTooOld++
		return p, Result{
			Reason:   fmt.Sprintf("Posted more than %d days ago", f.opts.RecencyDays),
			Evidence: "Posted: " + p.PostedAt.Format("2006-01-02"),
		}
	}

	//rule 5: underclass evidence
	evidence := ""
	if loc := findTerm(f.underclass, text); loc != nil {
		evidence = text[loc[0]:loc[1]]
	} else if f.opts.RequireUnderclassTerms {
		f.stats.ExcludedNoUnderclass++
		return p, Result{Reason: "No underclass-specific terms found"}
	}

	//rule 6: function family
	if p.FunctionFamily == "" || p.FunctionFamily == models.FamilyOther {
		p.FunctionFamily, p.Confidence = f.classifier.Classify(p.Title, p.Text)
	}
	if !f.classifier.IsTarget(p.FunctionFamily) {
		f.stats.ExcludedWrongFunction++
		return p, Result{
			Reason:   fmt.Sprintf("Function family not in target list: %s", p.FunctionFamily),
			Evidence: evidence,
		}
	}

	f.stats.Included++
	if evidence == "" {
		// Search-sourced postings may carry a quoted phrase the short text lacks.
		evidence = p.UnderclassEvidence
	}
	p.UnderclassEvidence = evidence
	return p, Result{Included: true, Reason: "Passed all filters", Evidence: evidence}
}

// FilterBatch splits postings into included ones (input order) and the ten
// most recently posted near misses.
func (f *PostingFilter) FilterBatch(postings []models.Posting) ([]models.Posting, []models.NearMiss) {
	var included []models.Posting
	var misses []models.NearMiss

	for _, p := range postings {
		updated, res := f.FilterOne(p)
		if res.Included {
			included = append(included, updated)
			continue
		}
		misses = append(misses, models.NearMiss{
			Posting:         updated,
			ExclusionReason: res.Reason,
			EvidenceSnippet: res.Evidence,
		})
	}

	sort.SliceStable(misses, func(i, j int) bool {
		a, b := misses[i].Posting.PostedAt, misses[j].Posting.PostedAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
	if len(misses) > maxNearMisses {
		misses = misses[:maxNearMisses]
	}
	f.nearMisses = misses

	return included, misses
}

// NearMisses returns the list kept by the last FilterBatch call.
func (f *PostingFilter) NearMisses() []models.NearMiss {
	return f.nearMisses
}

func (f *PostingFilter) Stats() Stats {
	return f.stats
}

func (f *PostingFilter) StatsSummary() string {
	s := f.stats
	return fmt.Sprintf(
		"Processed: %d | Included: %d | Excluded - Year: %d, Upperclass: %d, Not internship: %d, No underclass: %d, Wrong function: %d, No date: %d, Too old: %d",
		s.TotalProcessed, s.Included, s.ExcludedYear, s.ExcludedUpperclass, s.ExcludedNotInternship,
		s.ExcludedNoUnderclass, s.ExcludedWrongFunction, s.ExcludedNoDate, s.ExcludedTooOld,
	)
}

// contextAround returns up to radius bytes either side of text[start:end],
// widened to rune boundaries and marked with "..." where cut.
func contextAround(text string, start, end, radius int) string {
	from := max(0, start-radius)
	to := min(len(text), end+radius)
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}

	snippet := strings.TrimSpace(text[from:to])
	if from > 0 {
		snippet = "..." + snippet
	}
	if to < len(text) {
		snippet += "..."
	}
	return snippet
}

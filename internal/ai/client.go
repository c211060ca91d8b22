package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-internship-scanner/internal/htmltext"
	"go-internship-scanner/internal/models"
)

// ErrNoChoices is returned when the provider answers without a completion.
var ErrNoChoices = errors.New("no choices returned from LLM API")

const maxPromptDescription = 3000

// Classification is the JSON object the model is asked to produce.
type Classification struct {
	Decision           string   `json:"decision"`
	RoleFamily         string   `json:"role_family"`
	UnderclassEvidence string   `json:"underclass_evidence"`
	WhyFits            string   `json:"why_fits"`
	SummaryBullets     []string `json:"summary_bullets"`
	Confidence         float64  `json:"confidence"`
	ExcludeReason      string   `json:"exclude_reason"`
}

// Client classifies a single posting.
type Client interface {
	Classify(ctx context.Context, p models.Posting) (*Classification, error)
}

// PromptTerms carries the configured vocabulary into the system prompt so
// the model and the rule engine judge by the same words.
type PromptTerms struct {
	Underclass     []string
	Upperclass     []string
	RoleTerms      []string
	ExcludedYears  []int
	TargetFamilies []string
}

func buildSystemPrompt(t PromptTerms) string {
	years := make([]string, len(t.ExcludedYears))
	for i, y := range t.ExcludedYears {
		years[i] = fmt.Sprint(y)
	}
	quote := func(terms []string) string {
		if len(terms) == 0 {
			return "(none configured)"
		}
		return `"` + strings.Join(terms, `", "`) + `"`
	}

	return `You classify job postings for underclass (freshman/sophomore) internships.

MUST EXCLUDE if any of these hold:
1. The posting mentions any of these graduation years: ` + strings.Join(years, ", ") + `
2. It contains upperclass terms: ` + quote(t.Upperclass) + `
3. No explicit underclass-targeting language is present

MUST INCLUDE only if all of these hold:
1. It contains underclass signals such as ` + quote(t.Underclass) + `
2. The role belongs to a target function: ` + strings.Join(t.TargetFamilies, ", ") + `
3. None of the exclusion criteria apply

Role vocabulary that suggests a target function: ` + quote(t.RoleTerms) + `

Respond with one raw JSON object and nothing else:
{
  "decision": "include" or "exclude",
  "role_family": ` + familyChoices(t.TargetFamilies) + `,
  "underclass_evidence": "exact phrase from the posting" or null,
  "why_fits": "one sentence",
  "summary_bullets": ["2 to 4 short points about the role"],
  "confidence": 0.0 to 1.0,
  "exclude_reason": "reason if excluded" or null
}`
}

func familyChoices(families []string) string {
	choices := make([]string, 0, len(families)+1)
	for _, f := range families {
		choices = append(choices, `"`+f+`"`)
	}
	return strings.Join(append(choices, `"Other"`), " or ")
}

func buildUserPrompt(p models.Posting) string {
	description := htmltext.Truncate(p.Text, maxPromptDescription)
	if len([]rune(p.Text)) > maxPromptDescription {
		description += "... [truncated]"
	}
	return fmt.Sprintf("Company: %s\nTitle: %s\nLocation: %s\n\nDescription:\n%s\n\nRespond with JSON only. Quote the underclass evidence exactly as written.",
		p.Company, p.Title, p.Location, description)
}

package filter

import (
	"regexp"
	"strings"

	"go-internship-scanner/internal/models"
)

const (
	titleMatchWeight       = 3.0
	descriptionMatchWeight = 0.5
	boostKeywordWeight     = 0.3
	confidenceScale        = 5.0
	minimumFamilyScore     = 1.0
)

// Family is the configured shape of one function family.
type Family struct {
	Key                 models.FunctionFamily
	DisplayName         string
	TitlePatterns       []string
	DescriptionPatterns []string
	BoostKeywords       []string
	Target              bool
}

type compiledFamily struct {
	Family
	patterns []*regexp.Regexp
	boosts   []string
}

// Classifier scores free text against the configured families.
// Families keep their configuration order, which decides ties.
type Classifier struct {
	families []compiledFamily
	byKey    map[models.FunctionFamily]int
}

// NewClassifier compiles every family pattern once. Patterns that fail to
// compile are skipped; the rest of the family still works.
func NewClassifier(families []Family) *Classifier {
	c := &Classifier{byKey: make(map[models.FunctionFamily]int, len(families))}
	for _, f := range families {
		if _, dup := c.byKey[f.Key]; dup || f.Key == "" || f.Key == models.FamilyOther {
			continue
		}
		cf := compiledFamily{Family: f}
		for _, p := range append(append([]string{}, f.TitlePatterns...), f.DescriptionPatterns...) {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				continue
			}
			cf.patterns = append(cf.patterns, re)
		}
		for _, kw := range f.BoostKeywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				cf.boosts = append(cf.boosts, kw)
			}
		}
		c.byKey[f.Key] = len(c.families)
		c.families = append(c.families, cf)
	}
	return c
}

// Classify returns the best-scoring family and a confidence in [0,1].
// A best score under 1.0 yields (Other, 0).
func (c *Classifier) Classify(title, description string) (models.FunctionFamily, float64) {
	title = NormalizeText(title)
	description = NormalizeText(description)
	combined := title + " " + description

	bestFamily := models.FamilyOther
	bestScore := 0.0
	for _, f := range c.families {
		score := 0.0
		for _, re := range f.patterns {
			if re.MatchString(title) {
				score += titleMatchWeight
			}
			if description != "" && re.MatchString(description) {
				score += descriptionMatchWeight
			}
		}
		for _, kw := range f.boosts {
			if strings.Contains(combined, kw) {
				score += boostKeywordWeight
			}
		}
		if score > bestScore {
			bestScore = score
			bestFamily = f.Key
		}
	}

	if bestScore < minimumFamilyScore {
		return models.FamilyOther, 0.0
	}
	confidence := bestScore / confidenceScale
	if confidence > 1.0 {
		confidence = 1.0
	}
	return bestFamily, confidence
}

// IsTarget reports whether postings of this family belong in the digest.
// Other and unconfigured families never do.
func (c *Classifier) IsTarget(family models.FunctionFamily) bool {
	i, ok := c.byKey[family]
	if !ok {
		return false
	}
	return c.families[i].Target
}

func (c *Classifier) DisplayName(family models.FunctionFamily) string {
	if family == models.FamilyOther {
		return "Other"
	}
	i, ok := c.byKey[family]
	if !ok || c.families[i].DisplayName == "" {
		return string(family)
	}
	return c.families[i].DisplayName
}

// TargetFamilies lists target family keys in configuration order.
func (c *Classifier) TargetFamilies() []models.FunctionFamily {
	var out []models.FunctionFamily
	for _, f := range c.families {
		if f.Target {
			out = append(out, f.Key)
		}
	}
	return out
}

// DefaultFamilies is the built-in SWE / PM / Consulting / IB taxonomy.
func DefaultFamilies() []Family {
	return []Family{
		{
			Key:         models.FamilySWE,
			DisplayName: "Software Engineering",
			TitlePatterns: []string{
				`\b(?:software|swe|developer|engineer(?:ing)?|programming|coding)\b`,
				`\b(?:backend|frontend|full[- ]?stack|devops|sre|platform)\b`,
				`\b(?:data\s+engineer|ml\s+engineer|machine\s+learning)\b`,
				`\b(?:ios|android|mobile)\s+(?:developer|engineer)\b`,
				`\b(?:web\s+developer|application\s+developer)\b`,
			},
			BoostKeywords: []string{
				"python", "java", "javascript", "typescript", "react", "node",
				"sql", "database", "api", "cloud", "aws", "azure", "gcp",
				"git", "agile", "scrum", "ci/cd", "kubernetes", "docker",
			},
			Target: true,
		},
		{
			Key:         models.FamilyPM,
			DisplayName: "Product Management",
			TitlePatterns: []string{
				`\b(?:product\s+manag|pm\b|product\s+lead)`,
				`\b(?:program\s+manag|technical\s+program)\b`,
				`\b(?:product\s+owner|product\s+strateg)\b`,
				`\bapm\b`,
			},
			BoostKeywords: []string{
				"roadmap", "stakeholder", "user research", "sprint", "backlog",
				"prioritization", "metrics", "kpi", "a/b test", "user story",
				"product vision", "go-to-market", "feature",
			},
			Target: true,
		},
		{
			Key:         models.FamilyConsulting,
			DisplayName: "Consulting",
			TitlePatterns: []string{
				`\b(?:consult(?:ant|ing)?)\b`,
				`\b(?:strategy|strateg(?:ic|y)\s+(?:analyst|associate))\b`,
				`\b(?:management\s+consult|business\s+analyst)\b`,
				`\b(?:advisory|transformation)\b`,
			},
			BoostKeywords: []string{
				"client", "engagement", "deliverable", "workstream", "framework",
				"recommendation", "presentation", "deck", "case study", "bain",
				"mckinsey", "bcg", "deloitte", "accenture", "pwc", "ey", "kpmg",
			},
			Target: true,
		},
		{
			Key:         models.FamilyIB,
			DisplayName: "Investment Banking",
			TitlePatterns: []string{
				`\b(?:investment\s+bank(?:ing)?|ib\s+analyst)\b`,
				`\b(?:m&a|mergers?\s+(?:and|&)\s+acquisitions?)\b`,
				`\b(?:capital\s+markets|equity\s+research)\b`,
				`\b(?:corporate\s+finance|financial\s+analyst)\b`,
				`\b(?:private\s+equity|venture\s+capital|pe/vc)\b`,
				`\b(?:trading|sales\s+(?:and|&)\s+trading)\b`,
				`\bsummer\s+analyst\b`,
			},
			BoostKeywords: []string{
				"deal", "transaction", "valuation", "dcf", "lbo", "pitch book",
				"financial model", "due diligence", "goldman", "morgan stanley",
				"jpmorgan", "citi", "barclays", "bofa", "ubs", "credit suisse",
			},
			Target: true,
		},
	}
}

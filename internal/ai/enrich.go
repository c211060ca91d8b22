package ai

import (
	"context"
	"fmt"
	"strings"

	"go-internship-scanner/internal/models"

	"github.com/rs/zerolog"
)

const (
	maxWhyFits = 300
	maxBullet  = 200
	maxBullets = 4
	ellipsis   = "..."
)

func (c *Classification) normalize() error {
	c.Decision = strings.ToLower(strings.TrimSpace(c.Decision))
	if c.Decision != "include" && c.Decision != "exclude" {
		return fmt.Errorf("invalid decision %q", c.Decision)
	}

	c.WhyFits = strings.TrimSpace(c.WhyFits)
	if r := []rune(c.WhyFits); len(r) > maxWhyFits {
		c.WhyFits = string(r[:maxWhyFits-len(ellipsis)]) + ellipsis
	}

	bullets := make([]string, 0, maxBullets)
	for _, b := range c.SummaryBullets {
		b = strings.TrimSpace(b)
		if b == "" || len([]rune(b)) > maxBullet {
			continue
		}
		bullets = append(bullets, b)
		if len(bullets) == maxBullets {
			break
		}
	}
	if len(bullets) == 0 {
		return fmt.Errorf("classification has no usable summary bullets")
	}
	c.SummaryBullets = bullets

	switch {
	case c.Confidence < 0:
		c.Confidence = 0
	case c.Confidence > 1:
		c.Confidence = 1
	}
	c.UnderclassEvidence = strings.TrimSpace(c.UnderclassEvidence)
	return nil
}

// Apply returns a copy of p carrying the model's summary. The family is only
// replaced when role_family names one of families (keyed by lowercase name).
func (c *Classification) Apply(p models.Posting, families map[string]models.FunctionFamily) models.Posting {
	p.WhyFits = c.WhyFits
	p.SummaryBullets = append([]string(nil), c.SummaryBullets...)
	p.Confidence = c.Confidence
	if c.UnderclassEvidence != "" {
		p.UnderclassEvidence = c.UnderclassEvidence
	}
	if family, ok := families[strings.ToLower(strings.TrimSpace(c.RoleFamily))]; ok {
		p.FunctionFamily = family
	}
	return p
}

// Enricher runs a Client over the included postings.
type Enricher struct {
	client   Client
	families map[string]models.FunctionFamily
	logger   zerolog.Logger
}

// NewEnricher accepts the configured target families; a role_family outside
// them never changes a posting's family.
func NewEnricher(client Client, targets []models.FunctionFamily, logger zerolog.Logger) *Enricher {
	families := make(map[string]models.FunctionFamily, len(targets))
	for _, f := range targets {
		if f != models.FamilyOther {
			families[strings.ToLower(string(f))] = f
		}
	}
	return &Enricher{client: client, families: families, logger: logger}
}

// EnrichAll classifies each posting that has not been summarized yet. A failed
// call leaves that posting as it was. An "exclude" verdict is only logged;
// the rule engine already decided inclusion.
func (e *Enricher) EnrichAll(ctx context.Context, postings []models.Posting) []models.Posting {
	out := make([]models.Posting, len(postings))
	enriched := 0
	for i, p := range postings {
		out[i] = p
		if p.WhyFits != "" || ctx.Err() != nil {
			continue
		}

		result, err := e.client.Classify(ctx, p)
		if err != nil {
			e.logger.Warn().Err(err).Str("title", p.Title).Msg("⚠️ Could not enrich posting")
			continue
		}
		if result.Decision == "exclude" {
			e.logger.Info().Str("title", p.Title).Str("reason", result.ExcludeReason).Msg("🤔 LLM disagrees with inclusion")
		}
		out[i] = result.Apply(p, e.families)
		enriched++
		e.logger.Debug().Str("title", p.Title).Str("family", string(out[i].FunctionFamily)).
			Float64("confidence", out[i].Confidence).Msg("classified")
	}

	e.logger.Info().Int("enriched", enriched).Int("total", len(postings)).Msg("🤖 LLM enrichment finished")
	return out
}

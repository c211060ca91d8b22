package sources

import "go-internship-scanner/internal/config"

// FromConfig builds one Source per configured board, plus the search
// sources the config enables. fetcher may be nil, in which case generic
// pages are fetched over plain HTTP. chat may be nil to skip LLM search.
func FromConfig(cfg *config.Config, fetcher Fetcher, chat ChatCompleter, deps Deps) []Source {
	t := cfg.Targets
	var out []Source
	for _, slug := range t.Greenhouse {
		out = append(out, NewGreenhouse(slug, deps))
	}
	for _, slug := range t.Lever {
		out = append(out, NewLever(slug, deps))
	}
	for _, slug := range t.Ashby {
		out = append(out, NewAshby(slug, deps))
	}

	for _, w := range t.Workday {
		out = append(out, NewWorkday(w.Tenant, w.Instance, w.Portal, "intern", deps))
	}
	if len(t.Generic) > 0 {
		out = append(out, NewGeneric(t.Generic, fetcher, deps))
	}

	s := cfg.Search
	if cfg.WebSearchEnabled() {
		provider, err := NewSearchProvider(s.Provider, s.APIKey, s.CX, deps.Client)
		if err != nil {
			deps.Logger.Warn().Err(err).Msg("⚠️ Web search disabled")
		} else {
			queries := s.Queries
			if len(queries) == 0 {
				queries = []string{BuildInternshipQuery(cfg.Keywords.Underclass, cfg.Keywords.RoleTerms, true)}
			}
			out = append(out, NewWebSearch(provider, queries, s.RecencyDays, s.MaxResultsPerQuery, fetcher, deps))
		}
	}

	if chat != nil && s.LLMSearch {
		var functions []string
		for _, f := range cfg.Families() {
			if f.Target {
				functions = append(functions, string(f.Key))
			}
		}
		out = append(out, NewGrokSearch(chat, GrokSearchOptions{
			Functions:       functions,
			UnderclassTerms: cfg.Keywords.Underclass,
			ExcludedYears:   cfg.ExcludedYears(),
			Companies:       s.TargetCompanies,
			RecencyDays:     s.RecencyDays,
			MaxResults:      s.MaxResultsPerQuery,
			MaxBatches:      s.MaxCompanyBatches,
		}, deps))
	}
	return out
}

// Load .env, then the YAML file over built-in defaults, then env overrides.
// Validate once; everything downstream trusts the result.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go-internship-scanner/internal/filter"
	"go-internship-scanner/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Recipients []string         `yaml:"recipients"`
	Search     SearchConfig     `yaml:"search"`
	Profile    ProfileConfig    `yaml:"profile"`
	Targets    TargetsConfig    `yaml:"targets"`
	Keywords   KeywordsConfig   `yaml:"keywords"`
	Exclusions ExclusionsConfig `yaml:"exclusions"`
	Functions  []FamilyConfig   `yaml:"functions"`
	Email      EmailConfig      `yaml:"email"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	LLM        LLMConfig        `yaml:"llm"`
	Storage    StorageConfig    `yaml:"storage"`
	Browser    BrowserConfig    `yaml:"browser"`
	Schedule   string           `yaml:"schedule"`
	Server     ServerConfig     `yaml:"server"`
	LogFile    string           `yaml:"log_file"`

	// Path is the file the config was read from; empty when only defaults were used.
	Path string `yaml:"-"`
}

type SearchConfig struct {
	RecencyDays            int  `yaml:"recency_days"`
	RequirePostDate        bool `yaml:"require_post_date"`
	RequireUnderclassTerms bool `yaml:"require_underclass_terms"`
	MaxResults             int  `yaml:"max_results"`

	// Provider selects a web search API: google_cse, bing or serpapi.
	// Empty turns web search off.
	Provider           string   `yaml:"provider"`
	APIKey             string   `yaml:"api_key"`
	CX                 string   `yaml:"cx"`
	Queries            []string `yaml:"queries"`
	MaxResultsPerQuery int      `yaml:"max_results_per_query"`

	// LLMSearch asks the xAI model to search the web for postings.
	LLMSearch         bool     `yaml:"llm_search"`
	TargetCompanies   []string `yaml:"target_companies"`
	MaxCompanyBatches int      `yaml:"max_company_batches"`
}

var searchProviders = map[string]bool{"google_cse": true, "bing": true, "serpapi": true}

type ProfileConfig struct {
	Name           string `yaml:"name"`
	School         string `yaml:"school"`
	GraduationYear int    `yaml:"graduation_year"`
}

type WorkdayTarget struct {
	Tenant   string `yaml:"tenant"`
	Instance string `yaml:"instance"`
	Portal   string `yaml:"portal"`
}

type TargetsConfig struct {
	Greenhouse []string        `yaml:"greenhouse"`
	Lever      []string        `yaml:"lever"`
	Ashby      []string        `yaml:"ashby"`
	Workday    []WorkdayTarget `yaml:"workday"`
	Generic    []string        `yaml:"generic"`
}

type KeywordsConfig struct {
	Underclass      []string `yaml:"underclass"`
	InternshipTerms []string `yaml:"internship_terms"`
	RoleTerms       []string `yaml:"role_terms"`
}

type ExclusionsConfig struct {
	GraduationYears []int    `yaml:"graduation_years"`
	UpperclassTerms []string `yaml:"upperclass_terms"`
}

type FamilyConfig struct {
	Key                 string   `yaml:"key"`
	DisplayName         string   `yaml:"display_name"`
	TitlePatterns       []string `yaml:"title_patterns"`
	DescriptionPatterns []string `yaml:"description_patterns"`
	BoostKeywords       []string `yaml:"boost_keywords"`
	Target              *bool    `yaml:"target"`
}

type EmailConfig struct {
	From         string `yaml:"from"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type LLMConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`

	SearchBaseURL string `yaml:"search_base_url"`
	SearchModel   string `yaml:"search_model"`
	SearchAPIKey  string `yaml:"search_api_key"`
}

type StorageConfig struct {
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url"`
}

type BrowserConfig struct {
	Enabled     bool   `yaml:"enabled"`
	CookiesPath string `yaml:"cookies_path"`

	// ScreenshotDir receives a full-page capture of every page that fails
	// to render. Empty disables capturing.
	ScreenshotDir string `yaml:"screenshot_dir"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// Default returns the configuration used when the YAML file is silent.
func Default() *Config {
	families := filter.DefaultFamilies()
	functions := make([]FamilyConfig, 0, len(families))
	for _, f := range families {
		target := f.Target
		functions = append(functions, FamilyConfig{
			Key:                 string(f.Key),
			DisplayName:         f.DisplayName,
			TitlePatterns:       f.TitlePatterns,
			DescriptionPatterns: f.DescriptionPatterns,
			BoostKeywords:       f.BoostKeywords,
			Target:              &target,
		})
	}

	return &Config{
		Search: SearchConfig{RecencyDays: 7, MaxResultsPerQuery: 50, MaxCompanyBatches: 10},
		Keywords: KeywordsConfig{
			Underclass: []string{
				"freshman", "sophomore", "first-year", "first year", "second-year",
				"second year", "underclassmen", "underclassman",
				"pre-internship", "early insight", "early insights",
				"freshman/sophomore", "1st year", "2nd year",
			},
			InternshipTerms: []string{
				"intern", "internship", "co-op", "coop", "summer analyst",
				"summer associate", "discovery program", "explore program",
			},
			RoleTerms: []string{
				"software", "engineer", "developer", "swe", "product", "pm",
				"consulting", "consultant", "investment banking", "ib", "analyst",
			},
		},
		Exclusions: ExclusionsConfig{
			GraduationYears: []int{2027, 2028},
			UpperclassTerms: []string{
				"junior", "senior", "penultimate", "rising senior", "final year",
				"final-year", "3rd year", "4th year", "upperclassmen", "upperclassman",
				"third year", "fourth year", "junior/senior", "new grad", "new graduate",
			},
		},
		Functions: functions,
		Email: EmailConfig{
			From:     "internships@example.com",
			SMTPPort: 587,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.groq.com/openai/v1/chat/completions",
			Model:   "llama-3.3-70b-versatile",

			SearchBaseURL: "https://api.x.ai/v1/chat/completions",
			SearchModel:   "grok-3",
		},
		Storage: StorageConfig{SQLitePath: "data/internships.db"},
		Browser: BrowserConfig{CookiesPath: ".cookies", ScreenshotDir: "logs/screenshots"},
		Server:  ServerConfig{Port: "8080"},
	}
}

// Load reads .env and the YAML file at path. A missing file is not an error:
// defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Path = path
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.Email.SMTPHost, "SMTP_HOST")
	setString(&c.Email.SMTPUser, "SMTP_USER")
	setString(&c.Email.SMTPPassword, "SMTP_PASSWORD")
	setString(&c.Email.From, "EMAIL_FROM")
	setString(&c.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	setString(&c.LLM.APIKey, "XAI_API_KEY")
	setString(&c.LLM.APIKey, "GROQ_API_KEY")
	setString(&c.Storage.PostgresURL, "DATABASE_URL")
	setString(&c.Server.Port, "PORT")
	setString(&c.LLM.SearchAPIKey, "XAI_API_KEY")
	if c.LLM.SearchAPIKey == "" {
		c.LLM.SearchAPIKey = c.LLM.APIKey
	}

	switch c.Search.Provider {
	case "google_cse":
		setString(&c.Search.APIKey, "GOOGLE_CSE_API_KEY")
		setString(&c.Search.CX, "GOOGLE_CSE_CX")
	case "bing":
		setString(&c.Search.APIKey, "BING_API_KEY")
	case "serpapi":
		setString(&c.Search.APIKey, "SERPAPI_KEY")
	}

	if port := os.Getenv("SMTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: SMTP_PORT %q is not a number", ErrInvalid, port)
		}
		c.Email.SMTPPort = p
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: TELEGRAM_CHAT_ID %q: %v", ErrInvalid, chatID, err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

// Validate checks the values that would otherwise fail deep inside a run.
// Bad family regexes are not checked here; the classifier skips them.
func (c *Config) Validate() error {
	for _, r := range c.Recipients {
		if !strings.Contains(r, "@") {
			return fmt.Errorf("%w: invalid email address %q", ErrInvalid, r)
		}
	}
	if c.Search.RecencyDays < 1 || c.Search.RecencyDays > 30 {
		return fmt.Errorf("%w: search.recency_days must be between 1 and 30, got %d", ErrInvalid, c.Search.RecencyDays)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("%w: search.max_results must not be negative", ErrInvalid)
	}
	if c.Search.Provider != "" && !searchProviders[c.Search.Provider] {
		return fmt.Errorf("%w: unknown search.provider %q", ErrInvalid, c.Search.Provider)
	}
	if c.Search.MaxResultsPerQuery < 1 || c.Search.MaxResultsPerQuery > 100 {
		return fmt.Errorf("%w: search.max_results_per_query must be between 1 and 100, got %d", ErrInvalid, c.Search.MaxResultsPerQuery)
	}
	if c.Search.MaxCompanyBatches < 1 || c.Search.MaxCompanyBatches > 50 {
		return fmt.Errorf("%w: search.max_company_batches must be between 1 and 50, got %d", ErrInvalid, c.Search.MaxCompanyBatches)
	}
	if c.Email.SMTPPort < 1 || c.Email.SMTPPort > 65535 {
		return fmt.Errorf("%w: email.smtp_port out of range: %d", ErrInvalid, c.Email.SMTPPort)
	}

	seen := make(map[string]bool, len(c.Functions))
	for _, f := range c.Functions {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			return fmt.Errorf("%w: function family without a key", ErrInvalid)
		}
		if key == string(models.FamilyOther) {
			return fmt.Errorf("%w: %q is reserved", ErrInvalid, key)
		}
		if seen[key] {
			return fmt.Errorf("%w: duplicate function family %q", ErrInvalid, key)
		}
		seen[key] = true
	}

	for _, w := range c.Targets.Workday {
		if w.Tenant == "" || w.Instance == "" || w.Portal == "" {
			return fmt.Errorf("%w: workday target needs tenant, instance and portal", ErrInvalid)
		}
	}
	return nil
}

// ExcludedYears derives upperclass graduation years from the profile when one
// is set, otherwise uses the configured list.
func (c *Config) ExcludedYears() []int {
	if gy := c.Profile.GraduationYear; gy > 0 {
		return []int{gy - 2, gy - 1}
	}
	return c.Exclusions.GraduationYears
}

func (c *Config) Families() []filter.Family {
	out := make([]filter.Family, 0, len(c.Functions))
	for _, f := range c.Functions {
		target := true
		if f.Target != nil {
			target = *f.Target
		}
		out = append(out, filter.Family{
			Key:                 models.FunctionFamily(strings.TrimSpace(f.Key)),
			DisplayName:         f.DisplayName,
			TitlePatterns:       f.TitlePatterns,
			DescriptionPatterns: f.DescriptionPatterns,
			BoostKeywords:       f.BoostKeywords,
			Target:              target,
		})
	}
	return out
}

func (c *Config) FilterOptions() filter.Options {
	return filter.Options{
		UnderclassTerms:        c.Keywords.Underclass,
		InternshipTerms:        c.Keywords.InternshipTerms,
		RoleTerms:              c.Keywords.RoleTerms,
		UpperclassTerms:        c.Exclusions.UpperclassTerms,
		ExcludedYears:          c.ExcludedYears(),
		RecencyDays:            c.Search.RecencyDays,
		RequirePostDate:        c.Search.RequirePostDate,
		RequireUnderclassTerms: c.Search.RequireUnderclassTerms,
	}
}

// EmailEnabled reports whether a digest can actually be delivered.
func (c *Config) EmailEnabled() bool {
	return len(c.Recipients) > 0 && c.Email.SMTPHost != ""
}

// WebSearchEnabled reports whether a search API provider has what it needs.
func (c *Config) WebSearchEnabled() bool {
	s := c.Search
	if s.Provider == "" || s.APIKey == "" {
		return false
	}
	return s.Provider != "google_cse" || s.CX != ""
}

func (c *Config) LLMSearchEnabled() bool {
	return c.Search.LLMSearch && c.LLM.SearchAPIKey != ""
}

func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != "" && c.Telegram.ChatID != 0
}

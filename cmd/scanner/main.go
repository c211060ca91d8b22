package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-internship-scanner/internal/ai"
	"go-internship-scanner/internal/browser"
	"go-internship-scanner/internal/config"
	"go-internship-scanner/internal/database"
	"go-internship-scanner/internal/filter"
	"go-internship-scanner/internal/logging"
	"go-internship-scanner/internal/mailer"
	"go-internship-scanner/internal/pdf"
	"go-internship-scanner/internal/pipeline"
	"go-internship-scanner/internal/scheduler"
	"go-internship-scanner/internal/sources"
	"go-internship-scanner/internal/telegram"
	"go-internship-scanner/internal/validate"

	"github.com/rs/zerolog"
)

const shutdownTimeout = 30 * time.Second

type flags struct {
	configPath string
	dryRun     bool
	force      bool
	maxResults int
	noPDF      bool
	schedule   bool
	logLevel   string
	pruneDays  int
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "configs/config.yaml", "path to the YAML config file")
	flag.BoolVar(&f.dryRun, "dry-run", false, "print the digest instead of sending it")
	flag.BoolVar(&f.force, "force", false, "re-evaluate postings seen in earlier runs (already emailed ones are still skipped)")
	flag.IntVar(&f.maxResults, "max-results", 0, "cap on postings evaluated per run (0 uses search.max_results)")
	flag.BoolVar(&f.noPDF, "no-pdf", false, "do not attach a PDF of the digest")
	flag.BoolVar(&f.schedule, "schedule", false, "keep running on the configured cron schedule until interrupted")
	flag.StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error")
	flag.IntVar(&f.pruneDays, "prune-days", 0, "delete state rows not seen for this many days, then exit")
	flag.Parse()
	return f
}

func main() {
	if err := run(parseFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := logging.New(f.logLevel, os.Stderr, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info().Str("config", cfg.Path).Int("recipients", len(cfg.Recipients)).Msg("🔧 Config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.Storage.SQLitePath, cfg.Storage.PostgresURL)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	if f.pruneDays > 0 {
		removed, err := store.ClearOld(ctx, f.pruneDays)
		if err != nil {
			return fmt.Errorf("prune state store: %w", err)
		}
		logger.Info().Int64("removed", removed).Int("days", f.pruneDays).Msg("🧹 Old postings pruned")
		return nil
	}

	runner, bot, cleanup := buildRunner(cfg, store, f, logger)
	defer cleanup()

	opts := pipeline.Options{DryRun: f.dryRun, Force: f.force, MaxResults: f.maxResults, SkipPDF: f.noPDF}
	if opts.MaxResults == 0 {
		opts.MaxResults = cfg.Search.MaxResults
	}
	scan := func(ctx context.Context) error {
		res, err := runner.Run(ctx, opts)
		if res != nil && res.Digest != nil && f.dryRun {
			fmt.Println(res.Digest.RenderText())
		}
		return err
	}

	if !f.schedule {
		return scan(ctx)
	}

	if cfg.Schedule == "" {
		return errors.New("--schedule needs a schedule in the config file")
	}
	s := scheduler.New(cfg.Schedule, true, func(context.Context) error { return scan(ctx) }, logger)
	if err := s.Start(); err != nil {
		return err
	}
	if bot != nil {
		if err := bot.SendStatus("Scanner running on schedule " + cfg.Schedule); err != nil {
			logger.Warn().Err(err).Msg("⚠️ Failed to send Telegram status")
		}
	}
	<-ctx.Done()
	logger.Info().Msg("👋 Shutting down scheduler")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Stop(shutdownCtx)
}

// buildRunner wires the optional collaborators from config. Anything that
// fails to start is logged and left out of the run.
func buildRunner(cfg *config.Config, store database.Store, f flags, logger zerolog.Logger) (*pipeline.Runner, *telegram.Bot, func()) {
	classifier := filter.NewClassifier(cfg.Families())
	cleanup := func() {}

	var mgr *browser.Manager
	if cfg.Browser.Enabled || !f.noPDF {
		m, err := browser.NewManager(logger)
		if err != nil {
			logger.Warn().Err(err).Msg("⚠️ Chromium unavailable: no rendered pages or PDF this run")
		} else {
			mgr = m
			mgr.SetScreenshotDir(cfg.Browser.ScreenshotDir)
			cleanup = func() {
				if err := mgr.Close(); err != nil {
					logger.Warn().Err(err).Msg("⚠️ Failed to close browser")
				}
			}
		}
	}

	var fetcher sources.Fetcher
	if cfg.Browser.Enabled && mgr != nil {
		cookies, failed := browser.LoadCookieDir(cfg.Browser.CookiesPath)
		for file, err := range failed {
			logger.Warn().Err(err).Str("file", file).Msg("⚠️ Could not load cookies, continuing")
		}
		if err := mgr.UseCookies(cookies); err != nil {
			logger.Warn().Err(err).Msg("⚠️ Could not apply cookies")
		} else {
			logger.Info().Int("cookies", len(cookies)).Msg("🍪 Browser cookies loaded")
		}
		fetcher = mgr
	}

	var chat sources.ChatCompleter
	if cfg.LLMSearchEnabled() {
		chat = ai.NewGrokClient(cfg.LLM.SearchAPIKey, cfg.LLM.SearchBaseURL, cfg.LLM.SearchModel, ai.PromptTerms{})
	} else if cfg.Search.LLMSearch {
		logger.Warn().Msg("⚠️ LLM search enabled but no xAI key set, skipping")
	}

	srcs := sources.FromConfig(cfg, fetcher, chat, sources.Deps{
		Client:     &http.Client{Timeout: 30 * time.Second},
		Classifier: classifier,
		Logger:     logger.With().Str("component", "sources").Logger(),
	})

	deps := pipeline.Deps{
		Sources:    srcs,
		Store:      store,
		Filter:     cfg.FilterOptions(),
		Classifier: classifier,
		Recipients: cfg.Recipients,
		Validator:  validate.NewChecker(nil, logger.With().Str("component", "validate").Logger()),
		Logger:     logger,
	}

	if cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		opts := cfg.FilterOptions()
		var targets []string
		for _, fam := range classifier.TargetFamilies() {
			targets = append(targets, string(fam))
		}
		client := ai.NewGrokClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, ai.PromptTerms{
			Underclass:     opts.UnderclassTerms,
			Upperclass:     opts.UpperclassTerms,
			RoleTerms:      opts.RoleTerms,
			ExcludedYears:  opts.ExcludedYears,
			TargetFamilies: targets,
		})
		deps.Enricher = ai.NewEnricher(client, classifier.TargetFamilies(), logger.With().Str("component", "llm").Logger())
	} else if cfg.LLM.Enabled {
		logger.Warn().Msg("⚠️ LLM enabled but no API key set, skipping enrichment")
	}

	if mgr != nil && !f.noPDF {
		deps.PDF = pdf.NewGenerator(mgr)
	}

	if cfg.EmailEnabled() {
		deps.Mailer = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUser,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		})
	}

	var bot *telegram.Bot
	if cfg.TelegramEnabled() {
		b, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.Warn().Err(err).Msg("⚠️ Telegram disabled")
		} else {
			bot = b
			deps.Notifier = bot
			logger.Info().Msg("🤖 Telegram Bot initialized.")
		}
	}

	return pipeline.New(deps), bot, cleanup
}

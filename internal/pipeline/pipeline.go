// Package pipeline runs one scan: fetch, dedupe, filter, enrich, report and
// deliver, then records what was emailed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-internship-scanner/internal/database"
	"go-internship-scanner/internal/dedup"
	"go-internship-scanner/internal/filter"
	"go-internship-scanner/internal/mailer"
	"go-internship-scanner/internal/models"
	"go-internship-scanner/internal/report"
	"go-internship-scanner/internal/sources"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrStore wraps every state store failure. A run that hits one stops before
// anything is emailed.
var ErrStore = errors.New("state store failure")

type OpenChecker interface {
	FilterOpen(ctx context.Context, postings []models.Posting) []models.Posting
}

type Enricher interface {
	EnrichAll(ctx context.Context, postings []models.Posting) []models.Posting
}

type PDFGenerator interface {
	Generate(d *report.Digest) ([]byte, error)
}

type Notifier interface {
	SendDigest(d *report.Digest) error
	SendError(err error) error
}

// Deps wires a Runner. Validator, Enricher, PDF, Mailer and Notifier are
// optional; a nil one skips its step.
type Deps struct {
	Sources    []sources.Source
	Store      database.Store
	Filter     filter.Options
	Classifier *filter.Classifier
	Recipients []string

	Validator OpenChecker
	Enricher  Enricher
	PDF       PDFGenerator
	Mailer    mailer.Sender
	Notifier  Notifier

	Logger zerolog.Logger
	Now    func() time.Time
}

type Options struct {
	DryRun     bool
	Force      bool
	MaxResults int
	SkipPDF    bool
}

type Result struct {
	RunID      string
	Fetched    int
	New        int
	Included   int
	NearMisses int
	Emailed    bool
	Stats      filter.Stats
	Digest     *report.Digest
}

type Runner struct {
	deps Deps
}

func New(deps Deps) *Runner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Classifier == nil {
		deps.Classifier = filter.NewClassifier(filter.DefaultFamilies())
	}
	return &Runner{deps: deps}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// Run performs one scan. A run-fatal error is also pushed to the notifier
// unless the context was cancelled.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	res, err := r.run(ctx, opts)
	if err != nil && ctx.Err() == nil && r.deps.Notifier != nil {
		if nerr := r.deps.Notifier.SendError(err); nerr != nil {
			r.deps.Logger.Warn().Err(nerr).Str("run_id", res.RunID).Msg("⚠️ Failed to report scan error")
		}
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	log := r.deps.Logger.With().Str("run_id", res.RunID).Logger()
	log.Info().Int("sources", len(r.deps.Sources)).Bool("dry_run", opts.DryRun).Bool("force", opts.Force).Msg("🚀 Starting scan")

	//fetch
	batches := make([][]models.Posting, 0, len(r.deps.Sources))
	for _, src := range r.deps.Sources {
		postings, err := src.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Warn().Err(err).Str("source", src.Name()).Msg("❌ Source failed, skipping")
			continue
		}
		log.Info().Str("source", src.Name()).Int("postings", len(postings)).Msg("✅ Source fetched")
		batches = append(batches, postings)
	}
	candidates := dedup.Merge(batches...)
	res.Fetched = len(candidates)
	log.Info().Int("unique", len(candidates)).Msg("📦 Total postings collected")

	if opts.MaxResults > 0 && len(candidates) > opts.MaxResults {
		candidates = candidates[:opts.MaxResults]
	}

	//dedup against previous runs
	if opts.Force {
		log.Info().Msg("⏩ Force mode: evaluating previously seen postings again")
	} else {
		fresh, err := r.deps.Store.FilterNew(ctx, candidates)
		if err != nil {
			return res, storeErr("filter new", err)
		}
		log.Info().Int("total", len(candidates)).Int("new", len(fresh)).Msg("🔍 Deduplication")
		candidates = fresh
	}
	res.New = len(candidates)

	//rules
	pf := filter.New(r.deps.Filter, r.deps.Classifier, filter.WithClock(r.deps.Now))
	included, nearMisses := pf.FilterBatch(candidates)
	res.Stats = pf.Stats()
	log.Info().Msg("📊 " + pf.StatsSummary())

	// Never email a posting twice, even in force mode.
	before := len(included)
	included, err := r.deps.Store.FilterNotEmailed(ctx, included)
	if err != nil {
		return res, storeErr("filter not emailed", err)
	}
	if dropped := before - len(included); dropped > 0 {
		log.Info().Int("dropped", dropped).Int("remaining", len(included)).Msg("📭 Already emailed postings removed")
	}

	if r.deps.Validator != nil && len(included) > 0 {
		included = r.deps.Validator.FilterOpen(ctx, included)
	}
	if r.deps.Enricher != nil && len(included) > 0 {
		included = r.deps.Enricher.EnrichAll(ctx, included)
	}
	res.Included = len(included)
	res.NearMisses = len(nearMisses)

	digest := &report.Digest{
		RunID:        res.RunID,
		GeneratedAt:  r.deps.Now(),
		Included:     included,
		NearMisses:   nearMisses,
		Stats:        res.Stats,
		StatsSummary: pf.StatsSummary(),
		FamilyNames:  r.familyNames(included),
	}
	res.Digest = digest

	if err := r.deliver(ctx, log, digest, opts); err != nil {
		return res, err
	}
	res.Emailed = r.shouldEmail(digest, opts)

	log.Info().Int("included", res.Included).Int("near_misses", res.NearMisses).Bool("emailed", res.Emailed).Msg("🏁 Scan complete")
	return res, nil
}

func (r *Runner) familyNames(included []models.Posting) map[models.FunctionFamily]string {
	names := map[models.FunctionFamily]string{}
	for _, p := range included {
		names[p.FunctionFamily] = r.deps.Classifier.DisplayName(p.FunctionFamily)
	}
	return names
}

func (r *Runner) shouldEmail(d *report.Digest, opts Options) bool {
	return !opts.DryRun && r.deps.Mailer != nil && len(r.deps.Recipients) > 0 && len(d.Included) > 0
}

func (r *Runner) deliver(ctx context.Context, log zerolog.Logger, d *report.Digest, opts Options) error {
	switch {
	case opts.DryRun:
		log.Info().Msg("📝 Dry run: skipping delivery")
		return nil
	case len(d.Included) == 0:
		log.Info().Msg("📭 No matching internships, nothing to send")
		return nil
	}

	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.SendDigest(d); err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram notification failed")
		}
	}

	if !r.shouldEmail(d, opts) {
		log.Info().Msg("📪 Email not configured, skipping")
		return nil
	}

	msg, err := r.buildMessage(log, d, opts)
	if err != nil {
		return err
	}
	if err := r.deps.Mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	log.Info().Int("recipients", len(msg.To)).Int("attachments", len(msg.Attachments)).Msg("📧 Digest emailed")

	// The mail is out: a shutdown signal from here on must not leave the
	// postings unmarked.
	markCtx := context.WithoutCancel(ctx)
	for _, p := range d.Included {
		if err := r.deps.Store.MarkEmailed(markCtx, p); err != nil {
			return storeErr("mark emailed", err)
		}
	}
	return nil
}

func (r *Runner) buildMessage(log zerolog.Logger, d *report.Digest, opts Options) (mailer.Message, error) {
	html, err := d.RenderHTML()
	if err != nil {
		return mailer.Message{}, fmt.Errorf("render digest: %w", err)
	}
	csvData, err := d.RenderCSV()
	if err != nil {
		return mailer.Message{}, fmt.Errorf("render csv: %w", err)
	}

	stamp := d.GeneratedAt.Format("20060102")
	msg := mailer.Message{
		To:      r.deps.Recipients,
		Subject: d.Subject(),
		Text:    d.RenderText(),
		HTML:    html,
		Attachments: []mailer.Attachment{
			{Filename: "internships_" + stamp + ".csv", ContentType: "text/csv", Data: csvData},
		},
	}

	if r.deps.PDF != nil && !opts.SkipPDF {
		data, err := r.deps.PDF.Generate(d)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ PDF rendering failed, sending without it")
		} else {
			msg.Attachments = append(msg.Attachments, mailer.Attachment{
				Filename: "internships_" + stamp + ".pdf", ContentType: "application/pdf", Data: data,
			})
		}
	}
	return msg, nil
}

package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go-internship-scanner/internal/config"
	"go-internship-scanner/internal/database"
	"go-internship-scanner/internal/filter"
	"go-internship-scanner/internal/mailer"
	"go-internship-scanner/internal/models"
	"go-internship-scanner/internal/report"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

type fakeSource struct {
	name     string
	postings []models.Posting
	err      error
}

func (f fakeSource) Name() string { return f.name }

func (f fakeSource) Fetch(context.Context) ([]models.Posting, error) {
	return f.postings, f.err
}

type fakeMailer struct {
	sent []mailer.Message
	err  error
	// onSend runs before the message is accepted
	onSend func()
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	if f.onSend != nil {
		f.onSend()
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeNotifier struct {
	digests []*report.Digest
	errs    []error
}

func (f *fakeNotifier) SendDigest(d *report.Digest) error {
	f.digests = append(f.digests, d)
	return errors.New("telegram down")
}

func (f *fakeNotifier) SendError(err error) error {
	f.errs = append(f.errs, err)
	return nil
}

type fakePDF struct{ err error }

func (f fakePDF) Generate(*report.Digest) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF"), nil
}

type closedValidator struct{ closedURL string }

func (c closedValidator) FilterOpen(_ context.Context, in []models.Posting) []models.Posting {
	var out []models.Posting
	for _, p := range in {
		if p.URL != c.closedURL {
			out = append(out, p)
		}
	}
	return out
}

func posting(company, title, text string, age int) models.Posting {
	posted := now.AddDate(0, 0, -age)
	return models.Posting{
		Company:  company,
		Title:    title,
		URL:      "https://jobs.example.com/" + company,
		Location: "New York",
		Text:     text,
		PostedAt: &posted,
		Source:   models.SourceGreenhouse,
	}
}

func goodPosting() models.Posting {
	return posting("acme", "Software Engineering Intern", "Open to freshman and sophomore students.", 1)
}

func seniorPosting() models.Posting {
	return posting("bolt", "Software Engineering Intern", "For rising senior students.", 1)
}

func newStore(t *testing.T) *database.SQLiteStore {
	t.Helper()
	s, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"),
		database.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRunner(store database.Store, m mailer.Sender, srcs ...fakeSource) *Runner {
	cfg := config.Default()
	deps := Deps{
		Store:      store,
		Filter:     cfg.FilterOptions(),
		Classifier: filter.NewClassifier(cfg.Families()),
		Recipients: []string{"student@example.com"},
		Mailer:     m,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return now },
	}
	for _, s := range srcs {
		deps.Sources = append(deps.Sources, s)
	}
	return New(deps)
}

func TestRunEmailsIncludedPostings(t *testing.T) {
	store := newStore(t)
	m := &fakeMailer{}
	dup := goodPosting()
	dup.Text = ""
	r := newRunner(store, m,
		fakeSource{name: "a", postings: []models.Posting{goodPosting(), seniorPosting()}},
		fakeSource{name: "broken", err: errors.New("timeout")},
		fakeSource{name: "b", postings: []models.Posting{dup}},
	)

	res, err := r.Run(context.Background(), Options{SkipPDF: true})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, 1, res.Included)
	assert.Equal(t, 1, res.NearMisses)
	assert.True(t, res.Emailed)
	assert.Equal(t, 1, res.Stats.ExcludedUpperclass)

	require.Len(t, m.sent, 1)
	msg := m.sent[0]
	assert.Equal(t, "Underclass Internship Digest - 2026-02-01", msg.Subject)
	assert.Equal(t, []string{"student@example.com"}, msg.To)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "internships_20260201.csv", msg.Attachments[0].Filename)
	assert.Contains(t, msg.HTML, "Software Engineering")

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Emailed)
}

func TestRunNeverEmailsTwice(t *testing.T) {
	store := newStore(t)
	m := &fakeMailer{}
	r := newRunner(store, m, fakeSource{name: "a", postings: []models.Posting{goodPosting()}})

	_, err := r.Run(context.Background(), Options{SkipPDF: true})
	require.NoError(t, err)

	// Second run: already seen.
	res, err := r.Run(context.Background(), Options{SkipPDF: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.New)
	assert.False(t, res.Emailed)

	// Force bypasses seen-dedup but not the emailed check.
	res, err = r.Run(context.Background(), Options{Force: true, SkipPDF: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.New)
	assert.Equal(t, 0, res.Included)
	assert.False(t, res.Emailed)

	assert.Len(t, m.sent, 1)
}

func TestRunMarksEmailedWhenCancelledDuringSend(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := &fakeMailer{onSend: cancel}
	r := newRunner(store, m, fakeSource{name: "a", postings: []models.Posting{goodPosting()}})

	res, err := r.Run(ctx, Options{SkipPDF: true})
	require.NoError(t, err)
	assert.True(t, res.Emailed)
	require.Len(t, m.sent, 1)

	left, err := store.FilterNotEmailed(context.Background(), []models.Posting{goodPosting()})
	require.NoError(t, err)
	assert.Empty(t, left)

	res, err = r.Run(context.Background(), Options{Force: true, SkipPDF: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Included)
	assert.Len(t, m.sent, 1)
}

func TestRunDryRun(t *testing.T) {
	store := newStore(t)
	m := &fakeMailer{}
	notifier := &fakeNotifier{}
	r := newRunner(store, m, fakeSource{name: "a", postings: []models.Posting{goodPosting()}})
	r.deps.Notifier = notifier

	res, err := r.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Included)
	assert.False(t, res.Emailed)
	assert.Empty(t, m.sent)
	assert.Empty(t, notifier.digests)
	require.NotNil(t, res.Digest)
	assert.Len(t, res.Digest.Included, 1)

	// Not marked emailed, so a forced real run still sends it.
	res, err = r.Run(context.Background(), Options{Force: true, SkipPDF: true})
	require.NoError(t, err)
	assert.True(t, res.Emailed)
	assert.Len(t, notifier.digests, 1, "notifier failure does not fail the run")
}

func TestRunAttachesPDFAndSurvivesPDFFailure(t *testing.T) {
	m := &fakeMailer{}
	r := newRunner(newStore(t), m, fakeSource{name: "a", postings: []models.Posting{goodPosting()}})
	r.deps.PDF = fakePDF{}

	_, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, m.sent[0].Attachments, 2)
	assert.Equal(t, "internships_20260201.pdf", m.sent[0].Attachments[1].Filename)

	m2 := &fakeMailer{}
	r2 := newRunner(newStore(t), m2, fakeSource{name: "a", postings: []models.Posting{goodPosting()}})
	r2.deps.PDF = fakePDF{err: errors.New("no chromium")}
	_, err = r2.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, m2.sent[0].Attachments, 1)
}

func TestRunDropsClosedPostings(t *testing.T) {
	m := &fakeMailer{}
	r := newRunner(newStore(t), m, fakeSource{name: "a", postings: []models.Posting{goodPosting()}})
	r.deps.Validator = closedValidator{closedURL: goodPosting().URL}

	res, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Included)
	assert.Empty(t, m.sent)
}

func TestRunStoreFailureIsFatal(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Close())
	m := &fakeMailer{}
	notifier := &fakeNotifier{}
	r := newRunner(store, m, fakeSource{name: "a", postings: []models.Posting{goodPosting()}})
	r.deps.Notifier = notifier

	_, err := r.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
	assert.Empty(t, m.sent)
	require.Len(t, notifier.errs, 1)
	assert.ErrorIs(t, notifier.errs[0], ErrStore)
	assert.Empty(t, notifier.digests)

	_, err = r.Run(context.Background(), Options{Force: true})
	assert.ErrorIs(t, err, ErrStore)
	assert.Empty(t, m.sent)
}

func TestRunSendFailureLeavesPostingsUnmarked(t *testing.T) {
	store := newStore(t)
	r := newRunner(store, &fakeMailer{err: errors.New("smtp 421")},
		fakeSource{name: "a", postings: []models.Posting{goodPosting()}})

	res, err := r.Run(context.Background(), Options{SkipPDF: true})
	require.ErrorContains(t, err, "smtp 421")
	assert.False(t, res.Emailed)

	left, err := store.FilterNotEmailed(context.Background(), []models.Posting{goodPosting()})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestRunMaxResults(t *testing.T) {
	other := goodPosting()
	other.Company = "comet"
	other.URL = "https://jobs.example.com/comet"

	r := newRunner(newStore(t), nil, fakeSource{name: "a", postings: []models.Posting{goodPosting(), other}})
	res, err := r.Run(context.Background(), Options{MaxResults: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.New)
	assert.False(t, res.Emailed, "no mailer configured")
}

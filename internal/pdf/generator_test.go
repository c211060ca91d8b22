package pdf

import (
	"errors"
	"os"
	"testing"
	"time"

	"go-internship-scanner/internal/browser"
	"go-internship-scanner/internal/models"
	"go-internship-scanner/internal/report"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePrinter struct {
	html string
	out  []byte
	err  error
}

func (f *fakePrinter) RenderPDF(html string) ([]byte, error) {
	f.html = html
	return f.out, f.err
}

func digest() *report.Digest {
	return &report.Digest{
		RunID:       "r1",
		GeneratedAt: time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC),
		Included: []models.Posting{
			{Company: "Acme", Title: "SWE Intern", FunctionFamily: models.FamilySWE, URL: "https://acme.com/1"},
		},
	}
}

func TestGenerate(t *testing.T) {
	p := &fakePrinter{out: []byte("%PDF-1.7")}
	data, err := NewGenerator(p).Generate(digest())
	require.NoError(t, err)

	assert.Equal(t, []byte("%PDF-1.7"), data)
	assert.Contains(t, p.html, "SWE Intern")
}

func TestGenerateErrors(t *testing.T) {
	_, err := NewGenerator(nil).Generate(digest())
	assert.Error(t, err)

	_, err = NewGenerator(&fakePrinter{err: errors.New("chromium crashed")}).Generate(digest())
	assert.ErrorContains(t, err, "chromium crashed")

	_, err = NewGenerator(&fakePrinter{}).Generate(digest())
	assert.ErrorContains(t, err, "empty PDF")
}

func TestGenerateWithChromium(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if os.Getenv("RUN_BROWSER_TESTS") == "" {
		t.Skip("set RUN_BROWSER_TESTS=1 with Chromium installed to run")
	}

	m, err := browser.NewManager(zerolog.Nop())
	require.NoError(t, err)
	defer m.Close()

	data, err := NewGenerator(m).Generate(digest())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data[:4]))
}

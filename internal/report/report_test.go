package report

import (
	"encoding/csv"
	"fmt"
	"strings"
	"testing"
	"time"

	"go-internship-scanner/internal/filter"
	"go-internship-scanner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var generated = time.Date(2026, 2, 1, 14, 30, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := generated.AddDate(0, 0, -n)
	return &t
}

func sampleDigest() *Digest {
	return &Digest{
		RunID:       "run-1",
		GeneratedAt: generated,
		Included: []models.Posting{
			{Company: "Acme", Title: "SWE Intern", FunctionFamily: models.FamilySWE, Location: "NYC",
				URL: "https://acme.com/1", PostedAt: daysAgo(2), UnderclassEvidence: "...for sophomores...",
				Confidence: 0.8, Source: models.SourceGreenhouse, SummaryBullets: []string{"a", "b", "c", "d"}},
			{Company: "Bolt, Inc.", Title: "PM Intern", FunctionFamily: models.FamilyPM, Location: "Remote",
				URL: "https://bolt.com/2", Source: models.SourceLever},
			{Company: "Comet", Title: "Backend Intern", FunctionFamily: models.FamilySWE, Location: "SF",
				URL: "https://comet.com/3", PostedAt: daysAgo(9), Source: models.SourceAshby, WhyFits: "First-years welcome."},
		},
		NearMisses: []models.NearMiss{
			{Posting: models.Posting{Company: "Delta", Title: "Intern", URL: "https://delta.com/x"},
				ExclusionReason: "Contains excluded graduation year: 2027", EvidenceSnippet: "...class of 2027..."},
		},
		Stats:        filter.Stats{TotalProcessed: 4, Included: 3, ExcludedYear: 1},
		StatsSummary: "processed=4 included=3",
		FamilyNames: map[models.FunctionFamily]string{
			models.FamilySWE: "Software Engineering",
			models.FamilyPM:  "Product Management",
		},
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "Underclass Internship Digest - 2026-02-01", sampleDigest().Subject())
}

func TestGroups(t *testing.T) {
	groups := sampleDigest().Groups()
	require.Len(t, groups, 2)

	assert.Equal(t, "Software Engineering", groups[0].DisplayName)
	assert.Equal(t, []string{"SWE Intern", "Backend Intern"}, []string{groups[0].Postings[0].Title, groups[0].Postings[1].Title})
	assert.Equal(t, "Product Management", groups[1].DisplayName)

	d := &Digest{Included: []models.Posting{{FunctionFamily: models.FamilyIB}}}
	assert.Equal(t, "IB", d.Groups()[0].DisplayName)
}

func TestRenderHTML(t *testing.T) {
	html, err := sampleDigest().RenderHTML()
	require.NoError(t, err)

	assert.Contains(t, html, "<title>Underclass Internship Digest - 2026-02-01</title>")
	assert.Contains(t, html, "Software Engineering (2)")
	assert.Contains(t, html, "Product Management (1)")
	assert.Contains(t, html, "2 days ago")
	assert.Contains(t, html, "1 week ago")
	assert.Contains(t, html, "Unknown")
	assert.Contains(t, html, "confidence 80%")
	assert.Contains(t, html, "<li>c</li>")
	assert.NotContains(t, html, "<li>d</li>")
	assert.Contains(t, html, "Contains excluded graduation year: 2027")
	assert.Contains(t, html, `href="https://acme.com/1"`)
	assert.Contains(t, html, "run run-1")
}

func TestRenderHTMLEscapes(t *testing.T) {
	d := &Digest{GeneratedAt: generated, Included: []models.Posting{
		{Company: "<script>alert(1)</script>", Title: "Intern", FunctionFamily: models.FamilySWE},
	}}
	html, err := d.RenderHTML()
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestRenderHTMLEmpty(t *testing.T) {
	html, err := (&Digest{GeneratedAt: generated}).RenderHTML()
	require.NoError(t, err)
	assert.Contains(t, html, "No matching internships found in this scan.")
	assert.NotContains(t, html, "Near Misses")
}

func TestRenderText(t *testing.T) {
	text := sampleDigest().RenderText()

	assert.Contains(t, text, "UNDERCLASS INTERNSHIP DIGEST")
	assert.Contains(t, text, "Run: 2026-02-01 14:30 UTC (run-1)")
	assert.Contains(t, text, "Included: 3 | Near Misses: 1")
	assert.Contains(t, text, "SOFTWARE ENGINEERING (2)")
	assert.Contains(t, text, "Bolt, Inc. - PM Intern")
	assert.Contains(t, text, "  Evidence: N/A")
	assert.Contains(t, text, "  Why: First-years welcome.")
	assert.Contains(t, text, "NEAR MISSES")

	empty := (&Digest{GeneratedAt: generated}).RenderText()
	assert.Contains(t, empty, "No matching internships found.")
}

func TestRenderCSV(t *testing.T) {
	data, err := sampleDigest().RenderCSV()
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"Acme", "SWE Intern", "SWE", "NYC", "2026-01-30", "2",
		"https://acme.com/1", "...for sophomores...", "0.80", "greenhouse"}, records[1])
	assert.Equal(t, "Bolt, Inc.", records[2][0])
	assert.Equal(t, "", records[2][4])
	assert.Equal(t, "", records[2][5])
}

func TestNearMissesCapped(t *testing.T) {
	d := &Digest{GeneratedAt: generated}
	for i := 0; i < 15; i++ {
		d.NearMisses = append(d.NearMisses, models.NearMiss{Posting: models.Posting{Title: fmt.Sprint(i)}})
	}
	assert.Len(t, d.shownNearMisses(), maxNearMisses)
	assert.Contains(t, d.RenderText(), "Near Misses: 15")
}

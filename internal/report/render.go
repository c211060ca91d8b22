package report

import (
	"bytes"
	"embed"
	"encoding/csv"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"go-internship-scanner/internal/models"
)

//go:embed templates/digest.html
var templateFS embed.FS

var digestTemplate = template.Must(template.New("digest.html").Funcs(template.FuncMap{
	"join": strings.Join,
	"pct":  func(f float64) string { return strconv.Itoa(int(f*100+0.5)) + "%" },
}).ParseFS(templateFS, "templates/digest.html"))

var csvHeader = []string{
	"company", "title", "function_family", "location", "posted", "age_days",
	"url", "underclass_evidence", "confidence", "source",
}

type htmlView struct {
	*Digest
	Generated  string
	Groups     []htmlGroup
	NearMisses []models.NearMiss
}

type htmlGroup struct {
	DisplayName string
	Rows        []htmlRow
}

type htmlRow struct {
	models.Posting
	Posted  string
	Bullets []string
}

// RenderHTML produces the email body; the same HTML is printed to PDF.
func (d *Digest) RenderHTML() (string, error) {
	view := htmlView{
		Digest:     d,
		Generated:  d.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"),
		NearMisses: d.shownNearMisses(),
	}
	for _, g := range d.Groups() {
		hg := htmlGroup{DisplayName: g.DisplayName}
		for _, p := range g.Postings {
			bullets := p.SummaryBullets
			if len(bullets) > 3 {
				bullets = bullets[:3]
			}
			hg.Rows = append(hg.Rows, htmlRow{Posting: p, Posted: d.posted(p), Bullets: bullets})
		}
		view.Groups = append(view.Groups, hg)
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func (d *Digest) RenderText() string {
	rule := strings.Repeat("=", 60)
	thin := strings.Repeat("-", 60)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nUNDERCLASS INTERNSHIP DIGEST\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Run: %s (%s)\n", d.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"), d.RunID)
	fmt.Fprintf(&b, "Included: %d | Near Misses: %d\n", len(d.Included), len(d.NearMisses))
	if d.StatsSummary != "" {
		fmt.Fprintf(&b, "Filter: %s\n", d.StatsSummary)
	}

	if len(d.Included) == 0 {
		fmt.Fprintf(&b, "\n%s\nMATCHING INTERNSHIPS\n%s\n\nNo matching internships found.\n", thin, thin)
	}
	for _, g := range d.Groups() {
		fmt.Fprintf(&b, "\n%s\n%s (%d)\n%s\n", thin, strings.ToUpper(g.DisplayName), len(g.Postings), thin)
		for _, p := range g.Postings {
			evidence := p.UnderclassEvidence
			if evidence == "" {
				evidence = "N/A"
			}
			fmt.Fprintf(&b, "\n%s - %s\n", p.Company, p.Title)
			fmt.Fprintf(&b, "  Location: %s\n", p.Location)
			fmt.Fprintf(&b, "  Posted: %s\n", d.posted(p))
			fmt.Fprintf(&b, "  Evidence: %s\n", evidence)
			if p.WhyFits != "" {
				fmt.Fprintf(&b, "  Why: %s\n", p.WhyFits)
			}
			fmt.Fprintf(&b, "  URL: %s\n", p.URL)
		}
	}

	if nm := d.shownNearMisses(); len(nm) > 0 {
		fmt.Fprintf(&b, "\n%s\nNEAR MISSES\n%s\n", thin, thin)
		for _, m := range nm {
			fmt.Fprintf(&b, "\n%s - %s\n  Reason: %s\n  URL: %s\n", m.Posting.Company, m.Posting.Title, m.ExclusionReason, m.Posting.URL)
		}
	}
	return b.String()
}

// RenderCSV writes one row per included posting under a fixed header.
func (d *Digest) RenderCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, p := range d.Included {
		posted, age := "", ""
		if p.PostedAt != nil {
			posted = p.PostedAt.Format("2006-01-02")
		}
		if days := p.AgeDays(d.GeneratedAt); days != nil {
			age = strconv.Itoa(*days)
		}
		row := []string{
			p.Company, p.Title, string(p.FunctionFamily), p.Location, posted, age,
			p.URL, p.UnderclassEvidence, strconv.FormatFloat(p.Confidence, 'f', 2, 64), string(p.Source),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

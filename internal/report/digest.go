// Package report turns a run's results into the digest that gets delivered.
package report

import (
	"time"

	"go-internship-scanner/internal/filter"
	"go-internship-scanner/internal/models"
)

const maxNearMisses = 10

// Digest is everything one run reports.
type Digest struct {
	RunID        string
	GeneratedAt  time.Time
	Included     []models.Posting
	NearMisses   []models.NearMiss
	Stats        filter.Stats
	StatsSummary string
	// FamilyNames maps family keys to the heading shown in the report.
	FamilyNames map[models.FunctionFamily]string
}

// Group is the postings of one function family, in digest order.
type Group struct {
	Family      models.FunctionFamily
	DisplayName string
	Postings    []models.Posting
}

func (d *Digest) Subject() string {
	return "Underclass Internship Digest - " + d.GeneratedAt.Format("2006-01-02")
}

func (d *Digest) displayName(f models.FunctionFamily) string {
	if name, ok := d.FamilyNames[f]; ok && name != "" {
		return name
	}
	return string(f)
}

// Groups buckets the included postings by family, ordered by the family's
// first appearance.
func (d *Digest) Groups() []Group {
	var groups []Group
	index := map[models.FunctionFamily]int{}
	for _, p := range d.Included {
		i, ok := index[p.FunctionFamily]
		if !ok {
			i = len(groups)
			index[p.FunctionFamily] = i
			groups = append(groups, Group{Family: p.FunctionFamily, DisplayName: d.displayName(p.FunctionFamily)})
		}
		groups[i].Postings = append(groups[i].Postings, p)
	}
	return groups
}

func (d *Digest) shownNearMisses() []models.NearMiss {
	if len(d.NearMisses) > maxNearMisses {
		return d.NearMisses[:maxNearMisses]
	}
	return d.NearMisses
}

func (d *Digest) posted(p models.Posting) string {
	return filter.FormatRelative(p.PostedAt, d.GeneratedAt)
}

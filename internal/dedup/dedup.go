package dedup

import (
	"go-internship-scanner/internal/canonical"
	"go-internship-scanner/internal/models"
)

// Merge flattens per-source batches into one list with a single entry per
// canonical URL. The first sighting wins; later ones only fill blank fields.
func Merge(batches ...[]models.Posting) []models.Posting {
	index := make(map[string]int)
	var merged []models.Posting

	for _, batch := range batches {
		for _, p := range batch {
			key := canonical.Canonicalize(p.URL)
			i, seen := index[key]
			if !seen {
				p.URL = key
				index[key] = len(merged)
				merged = append(merged, p)
				continue
			}
			fillBlanks(&merged[i], p)
		}
	}
	return merged
}

func fillBlanks(dst *models.Posting, src models.Posting) {
	if dst.PostedAt == nil && src.PostedAt != nil {
		dst.PostedAt = src.PostedAt
	}
	if (dst.Location == "" || dst.Location == models.DefaultLocation) && src.Location != "" {
		dst.Location = src.Location
	}
	if len(dst.Text) < len(src.Text) {
		dst.Text = src.Text
		dst.RawSnippet = src.RawSnippet
	}
}

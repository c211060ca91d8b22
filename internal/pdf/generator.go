package pdf

import (
	"errors"
	"fmt"

	"go-internship-scanner/internal/report"
)

// Printer turns a complete HTML document into PDF bytes.
// browser.Manager is the production implementation.
type Printer interface {
	RenderPDF(html string) ([]byte, error)
}

// Generator is responsible for converting a digest into a PDF attachment
type Generator struct {
	printer Printer
}

func NewGenerator(printer Printer) *Generator {
	return &Generator{printer: printer}
}

// Generate renders the digest's HTML and prints it.
func (g *Generator) Generate(d *report.Digest) ([]byte, error) {
	if g.printer == nil {
		return nil, errors.New("no PDF printer configured")
	}
	html, err := d.RenderHTML()
	if err != nil {
		return nil, err
	}

	data, err := g.printer.RenderPDF(html)
	if err != nil {
		return nil, fmt.Errorf("could not print digest: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("printer returned an empty PDF")
	}
	return data, nil
}

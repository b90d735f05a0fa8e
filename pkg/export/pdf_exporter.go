package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a Dataset as a one-table A4 document.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render draws the title, a header row and one row per record.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf export needs headers")
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(10, 15, 10)
	doc.SetAutoPageBreak(true, 15)
	doc.AddPage()

	if title != "" {
		doc.SetFont("Arial", "B", 14)
		doc.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		doc.SetFont("Arial", "", 8)
		doc.CellFormat(0, 5, "Generated "+time.Now().UTC().Format("2006-01-02 15:04 UTC"), "", 1, "C", false, 0, "")
		doc.Ln(4)
	}

	width := 190.0 / float64(len(data.Headers))
	e.drawHeader(doc, data.Headers, width)

	doc.SetFont("Arial", "", 9)
	for i, row := range data.Rows {
		// Repeat the header after a page break.
		if doc.GetY() > 270 {
			doc.AddPage()
			e.drawHeader(doc, data.Headers, width)
			doc.SetFont("Arial", "", 9)
		}
		fill := i%2 == 1
		for _, cell := range data.record(row) {
			doc.CellFormat(width, 7, cell, "1", 0, "", fill, 0, "")
		}
		doc.Ln(-1)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf output: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) drawHeader(doc *gofpdf.Fpdf, headers []string, width float64) {
	doc.SetFont("Arial", "B", 10)
	doc.SetFillColor(230, 230, 230)
	for _, h := range headers {
		doc.CellFormat(width, 8, h, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)
	doc.SetFillColor(245, 245, 245)
}

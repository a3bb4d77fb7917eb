package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// SlipField is one labelled line of a printable slip.
type SlipField struct {
	Label string
	Value string
}

// Slip is a single-page confirmation document.
type Slip struct {
	Title    string
	Subtitle string
	Fields   []SlipField
	Footer   string
}

// PDFExporter renders slips into PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderSlip lays out the slip as a two-column label/value table.
func (e *PDFExporter) RenderSlip(slip Slip) ([]byte, error) {
	if len(slip.Fields) == 0 {
		return nil, fmt.Errorf("slip requires at least one field")
	}
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 15, 12)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if slip.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(slip.Title)), "", 1, "C", false, 0, "")
	}
	if slip.Subtitle != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, tr(slip.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	labelWidth := 45.0
	valueWidth := pageWidth - left - right - labelWidth

	for _, field := range slip.Fields {
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(labelWidth, 8, tr(field.Label), "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		value := field.Value
		if value == "" {
			value = "-"
		}
		pdf.CellFormat(valueWidth, 8, tr(value), "1", 1, "", false, 0, "")
	}

	if slip.Footer != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 5, tr(slip.Footer), "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Document is the layout-independent content of one printable document.
// Building it is deterministic; only this renderer touches the PDF library.
type Document struct {
	SchoolName    string
	SchoolAddress string
	Title         string
	Paragraphs    []string
	Table         *Dataset
	Signatories   []Signatory
	IssuedOn      string
}

// Signatory is one signature line at the bottom of a document.
type Signatory struct {
	Name string
	Role string
}

// PDFExporter renders Documents and plain datasets into PDF bytes.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderDocument lays out an official document with letterhead, body
// paragraphs, an optional table and signature lines.
func (e *PDFExporter) RenderDocument(doc Document) ([]byte, error) {
	if doc.Title == "" {
		return nil, fmt.Errorf("document requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, doc.SchoolName, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, doc.SchoolAddress, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 10, strings.ToUpper(doc.Title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 11)
	for _, paragraph := range doc.Paragraphs {
		pdf.MultiCell(0, 6, paragraph, "", "L", false)
		pdf.Ln(3)
	}

	if doc.Table != nil && len(doc.Table.Headers) > 0 {
		pdf.Ln(2)
		pdf.SetFont("Arial", "B", 10)
		colWidth := 180.0 / float64(len(doc.Table.Headers))
		for _, header := range doc.Table.Headers {
			pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, row := range doc.Table.Rows {
			for _, header := range doc.Table.Headers {
				pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	if doc.IssuedOn != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, "Issued on "+doc.IssuedOn, "", 1, "L", false, 0, "")
	}

	if len(doc.Signatories) > 0 {
		pdf.Ln(14)
		pdf.SetFont("Arial", "B", 10)
		for _, signatory := range doc.Signatories {
			pdf.CellFormat(0, 5, signatory.Name, "", 1, "R", false, 0, "")
			pdf.SetFont("Arial", "", 9)
			pdf.CellFormat(0, 5, signatory.Role, "", 1, "R", false, 0, "")
			pdf.SetFont("Arial", "B", 10)
			pdf.Ln(6)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Render creates a PDF with an optional title and table body. Used for plain
// tabular exports such as student lists.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

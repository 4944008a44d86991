package exporter

import (
	"io"

	"github.com/go-pdf/fpdf"
)

const pdfRowHeight = 7.0

// PDFEncoder lays rows out as a bordered grid on landscape A4 pages. The
// whole document is held in memory until Flush.
type PDFEncoder struct {
	doc     *fpdf.Fpdf
	w       io.Writer
	done    bool
	err     error
}

func NewPDFEncoder(w io.Writer) *PDFEncoder {
	doc := fpdf.New("L", "mm", "A4", "")
	doc.SetFont("Arial", "", 10)
	doc.AddPage()
	return &PDFEncoder{doc: doc, w: w}
}

func (e *PDFEncoder) WriteHeader(columns []string) error {
	e.doc.SetFont("Arial", "B", 10)
	width := e.cellWidth(len(columns))
	for _, c := range columns {
		e.doc.CellFormat(width, pdfRowHeight, c, "1", 0, "C", false, 0, "")
	}
	e.doc.Ln(-1)
	e.doc.SetFont("Arial", "", 10)
	return e.check()
}

func (e *PDFEncoder) WriteRow(values []any) error {
	width := e.cellWidth(len(values))
	for _, v := range values {
		e.doc.CellFormat(width, pdfRowHeight, cellString(v), "1", 0, "L", false, 0, "")
	}
	e.doc.Ln(-1)
	return e.check()
}

// cellWidth spreads n columns evenly over the printable width.
func (e *PDFEncoder) cellWidth(n int) float64 {
	if n == 0 {
		n = 1
	}
	page, _ := e.doc.GetPageSize()
	left, _, right, _ := e.doc.GetMargins()
	return (page - left - right) / float64(n)
}

func (e *PDFEncoder) check() error {
	if e.err == nil && e.doc.Err() {
		e.err = e.doc.Error()
	}
	return e.err
}

// Flush renders the document once.
func (e *PDFEncoder) Flush() error {
	if e.err != nil || e.done {
		return e.err
	}
	e.done = true
	e.err = e.doc.Output(e.w)
	return e.err
}

func (e *PDFEncoder) Error() error {
	return e.check()
}

func (e *PDFEncoder) Close() error {
	return e.Flush()
}

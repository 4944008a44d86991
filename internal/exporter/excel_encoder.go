package exporter

import (
	"errors"
	"io"

	"github.com/xuri/excelize/v2"
)

const excelMaxRows = 1048576

var ErrExcelRowLimit = errors.New("excel row limit exceeded")

// ExcelEncoder streams rows into a single-sheet workbook. The workbook is
// written to w on Flush.
type ExcelEncoder struct {
	book  *excelize.File
	sheet *excelize.StreamWriter
	w     io.Writer
	next  int
	done  bool
	err   error
}

func NewExcelEncoder(w io.Writer) *ExcelEncoder {
	book := excelize.NewFile()
	sheet, err := book.NewStreamWriter("Sheet1")
	return &ExcelEncoder{book: book, sheet: sheet, w: w, next: 1, err: err}
}

func (e *ExcelEncoder) WriteHeader(columns []string) error {
	cells := make([]any, len(columns))
	for i, c := range columns {
		cells[i] = c
	}
	return e.setRow(cells)
}

// WriteRow keeps numbers native so the spreadsheet can sum them. Text goes
// through the formula guard.
func (e *ExcelEncoder) WriteRow(values []any) error {
	cells := make([]any, len(values))
	for i, v := range values {
		switch v.(type) {
		case int64, int, float64, bool:
			cells[i] = v
		default:
			cells[i] = defuseFormula(cellString(v))
		}
	}
	return e.setRow(cells)
}

func (e *ExcelEncoder) setRow(cells []any) error {
	if e.err != nil {
		return e.err
	}
	if e.next > excelMaxRows {
		e.err = ErrExcelRowLimit
		return e.err
	}
	cell, err := excelize.CoordinatesToCellName(1, e.next)
	if err == nil {
		err = e.sheet.SetRow(cell, cells)
	}
	if err != nil {
		e.err = err
		return err
	}
	e.next++
	return nil
}

// Flush writes the workbook. Subsequent calls are no-ops.
func (e *ExcelEncoder) Flush() error {
	if e.err != nil || e.done {
		return e.err
	}
	e.done = true
	if err := e.sheet.Flush(); err != nil {
		e.err = err
		return err
	}
	if err := e.book.Write(e.w); err != nil {
		e.err = err
	}
	return e.err
}

func (e *ExcelEncoder) Error() error {
	return e.err
}

func (e *ExcelEncoder) Close() error {
	return e.book.Close()
}

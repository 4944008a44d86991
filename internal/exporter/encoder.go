package exporter

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// RowEncoder writes an executed result set in one output format.
type RowEncoder interface {
	// WriteHeader receives the column names once, before any row.
	WriteHeader(columns []string) error

	// WriteRow writes one row; values line up with the header.
	WriteRow(values []any) error

	// Flush writes buffered output to the underlying writer.
	Flush() error

	// Error returns the first error hit while encoding.
	Error() error

	// Close releases encoder resources. It does not close the writer.
	io.Closer
}

// Formats lists the names accepted by NewEncoder.
var Formats = []string{"csv", "json", "excel", "pdf"}

// NewEncoder returns the encoder for format ("excel" and "xlsx" are the same).
func NewEncoder(format string, w io.Writer) (RowEncoder, error) {
	switch strings.ToLower(format) {
	case "", "csv":
		return NewCSVEncoder(w), nil
	case "json", "jsonl":
		return NewJSONEncoder(w), nil
	case "excel", "xlsx":
		return NewExcelEncoder(w), nil
	case "pdf":
		return NewPDFEncoder(w), nil
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// Extension returns the file extension for format.
func Extension(format string) string {
	switch strings.ToLower(format) {
	case "", "csv":
		return "csv"
	case "json", "jsonl":
		return "jsonl"
	case "excel", "xlsx":
		return "xlsx"
	default:
		return strings.ToLower(format)
	}
}

// cellString renders a driver value as text. NULL becomes "NULL".
func cellString(val any) string {
	switch v := val.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case string:
		return v
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(v)
	}
}

// defuseFormula prefixes values a spreadsheet would evaluate as a formula.
func defuseFormula(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@':
		return "'" + s
	}
	return s
}

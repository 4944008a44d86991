// Package shape converts raw result rows into the layouts returned by the
// connection helpers: ordered rows, a single column, a scalar, or rows keyed
// by their first column.
package shape

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoColumns     = errors.New("row has no columns")
	ErrTooFewColumns = errors.New("string mode needs at least two columns")
	ErrUnknownMode   = errors.New("unknown keyed mode")
)

// Mode selects how the columns after the first are represented in a Keyed entry.
type Mode int

const (
	// AsString keeps only the second column's value.
	AsString Mode = iota
	// AsRecord keeps the remaining columns as an ordered Row.
	AsRecord
	// AsValues keeps the remaining values in order, without names.
	AsValues
	// AsObject keeps the remaining columns as a name to value map.
	AsObject
)

func (m Mode) String() string {
	switch m {
	case AsString:
		return "string"
	case AsRecord:
		return "record"
	case AsValues:
		return "values"
	case AsObject:
		return "object"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps the names returned by Mode.String back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string":
		return AsString, nil
	case "record":
		return AsRecord, nil
	case "values":
		return AsValues, nil
	case "object":
		return AsObject, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Row is one result row. Column order is significant: the first column is
// the key column for the keyed shapes.
type Row struct {
	Columns []string
	Values  []any
}

// NewRow copies columns and values into a Row, normalizing driver values.
func NewRow(columns []string, values []any) Row {
	r := Row{
		Columns: make([]string, len(columns)),
		Values:  make([]any, len(values)),
	}
	copy(r.Columns, columns)
	for i, v := range values {
		r.Values[i] = Normalize(v)
	}
	return r
}

func (r Row) Len() int {
	return len(r.Columns)
}

// Get returns the value of the named column.
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a column name to value map. Duplicate column names
// keep the last value, like an associative fetch does.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// Tail returns the row without its first column.
func (r Row) Tail() Row {
	if len(r.Columns) == 0 {
		return Row{}
	}
	return Row{Columns: r.Columns[1:], Values: r.Values[1:]}
}

// Keyed is a single-entry mapping from the first column's value to the
// remaining columns shaped by a Mode.
type Keyed struct {
	Key   any
	Value any
}

// Key shapes a single row.
func Key(r Row, mode Mode) (Keyed, error) {
	if r.Len() == 0 {
		return Keyed{}, ErrNoColumns
	}

	k := Keyed{Key: r.Values[0]}
	tail := r.Tail()

	switch mode {
	case AsString:
		if r.Len() < 2 {
			return Keyed{}, ErrTooFewColumns
		}
		k.Value = r.Values[1]
	case AsRecord:
		k.Value = tail
	case AsValues:
		values := make([]any, len(tail.Values))
		copy(values, tail.Values)
		k.Value = values
	case AsObject:
		k.Value = tail.Map()
	default:
		return Keyed{}, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}
	return k, nil
}

// KeyAll shapes every row. Zero rows yield an empty slice.
func KeyAll(rows []Row, mode Mode) ([]Keyed, error) {
	out := make([]Keyed, 0, len(rows))
	for i, r := range rows {
		k, err := Key(r, mode)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, k)
	}
	return out, nil
}

// Column returns the first column's value of every row.
func Column(rows []Row) []any {
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		if r.Len() == 0 {
			out = append(out, nil)
			continue
		}
		out = append(out, r.Values[0])
	}
	return out
}

// Normalize turns driver byte buffers into strings. Other values pass through.
func Normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

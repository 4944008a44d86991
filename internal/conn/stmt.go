package conn

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fluxconn/internal/driver"
	"fluxconn/internal/shape"
)

var errNotExecuted = errors.New("statement has not been executed")

// Stmt is a prepared statement together with its bound values and, once
// executed, its open result set.
type Stmt struct {
	query   string
	native  driver.Statement
	args    []any
	cached  bool
	rows    driver.RowStreamer
	columns []string

	// executed is set once run succeeds; rows may be nil again afterwards
	// when the result set was drained or replaced.
	executed bool
}

func newStmt(query string, native driver.Statement, cached bool) *Stmt {
	return &Stmt{query: query, native: native, cached: cached}
}

// Query returns the statement text.
func (s *Stmt) Query() string {
	return s.query
}

// Args returns the bound values.
func (s *Stmt) Args() []any {
	return s.args
}

// Bind replaces the bound values.
func (s *Stmt) Bind(args ...any) *Stmt {
	s.args = append([]any(nil), args...)
	return s
}

// Debug renders the query with the bound values interpolated, followed by
// the raw values. It is meant for logs, not for execution.
func (s *Stmt) Debug() string {
	return debugString(s.query, s.args)
}

// run executes the statement, replacing any result set still open.
func (s *Stmt) run(ctx context.Context) error {
	s.closeRows()
	s.executed = false
	rows, err := s.native.Query(ctx, s.args...)
	if err != nil {
		return err
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return err
	}
	s.rows = rows
	s.columns = cols
	s.executed = true
	return nil
}

// Columns returns the column names of the executed result set.
func (s *Stmt) Columns() []string {
	return s.columns
}

// Fetch reads the next row. It reports false once the result set is exhausted,
// at which point it is closed, and keeps reporting false on later calls.
func (s *Stmt) Fetch() (shape.Row, bool, error) {
	if s.rows == nil {
		if s.executed {
			return shape.Row{}, false, nil
		}
		return shape.Row{}, false, errNotExecuted
	}
	if !s.rows.Next() {
		err := s.rows.Err()
		s.closeRows()
		return shape.Row{}, false, err
	}

	values := make([]any, len(s.columns))
	pointers := make([]any, len(s.columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := s.rows.Scan(pointers...); err != nil {
		s.closeRows()
		return shape.Row{}, false, fmt.Errorf("row scan failed: %w", err)
	}
	return shape.NewRow(s.columns, values), true, nil
}

// FetchAll reads every remaining row and closes the result set.
func (s *Stmt) FetchAll() ([]shape.Row, error) {
	out := []shape.Row{}
	for {
		row, ok, err := s.Fetch()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, row)
	}
}

// first reads one row and closes the result set: the physical session
// carries a single open result set at a time.
func (s *Stmt) first() (*shape.Row, error) {
	row, ok, err := s.Fetch()
	s.closeRows()
	if err != nil || !ok {
		return nil, err
	}
	return &row, nil
}

// Rows returns every row. Zero rows yield an empty slice.
func (s *Stmt) Rows() ([]shape.Row, error) {
	return s.FetchAll()
}

// Row returns the first row, or nil when there is none.
func (s *Stmt) Row() (*shape.Row, error) {
	return s.first()
}

// Column returns the first column's value of every row.
func (s *Stmt) Column() ([]any, error) {
	rows, err := s.FetchAll()
	if err != nil {
		return nil, err
	}
	return shape.Column(rows), nil
}

// Value returns the first column of the first row, or nil when there is none.
func (s *Stmt) Value() (any, error) {
	row, err := s.first()
	if err != nil || row == nil || row.Len() == 0 {
		return nil, err
	}
	return row.Values[0], nil
}

// Keyed shapes the first row by mode, or returns nil when there is none.
func (s *Stmt) Keyed(mode shape.Mode) (*shape.Keyed, error) {
	row, err := s.first()
	if err != nil || row == nil {
		return nil, err
	}
	k, err := shape.Key(*row, mode)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// AllKeyed shapes every row by mode.
func (s *Stmt) AllKeyed(mode shape.Mode) ([]shape.Keyed, error) {
	rows, err := s.FetchAll()
	if err != nil {
		return nil, err
	}
	return shape.KeyAll(rows, mode)
}

// Close closes the open result set. Statements owned by the cache stay
// prepared until the cache is cleared.
func (s *Stmt) Close() error {
	s.closeRows()
	if s.cached {
		return nil
	}
	return s.release()
}

func (s *Stmt) release() error {
	s.closeRows()
	if s.native == nil {
		return nil
	}
	err := s.native.Close()
	s.native = nil
	return err
}

func (s *Stmt) closeRows() {
	if s.rows != nil {
		_ = s.rows.Close()
		s.rows = nil
	}
}

// debugString substitutes "?" and "$n" placeholders outside of quoted
// literals with the rendered values.
func debugString(query string, args []any) string {
	if len(args) == 0 {
		return query
	}

	var b strings.Builder
	next := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
			b.WriteByte(ch)
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			b.WriteByte(ch)
		case ch == '?' && next < len(args):
			b.WriteString(literal(args[next]))
			next++
		case ch == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9':
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			n, _ := strconv.Atoi(query[i+1 : j])
			if n >= 1 && n <= len(args) {
				b.WriteString(literal(args[n-1]))
				i = j - 1
				continue
			}
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}

	b.WriteString("\n-- args:")
	for i, a := range args {
		fmt.Fprintf(&b, " [%d]=%s", i+1, literal(a))
	}
	return b.String()
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case []byte:
		return "'" + strings.ReplaceAll(string(x), "'", "''") + "'"
	case time.Time:
		return "'" + x.Format("2006-01-02 15:04:05") + "'"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(x)
	}
}

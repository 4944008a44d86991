package conn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"fluxconn/internal/driver"
)

// fakeDriver is an in-memory driver that records every call made through it.
type fakeDriver struct {
	opens    int
	failOpen error
	probeErr error
	results  map[string]fakeResult
	handles  []*fakeHandle
}

type fakeResult struct {
	columns []string
	rows    [][]any
	err     error
}

type fakeError struct {
	code string
	msg  string
}

func (e *fakeError) Error() string {
	return fmt.Sprintf("fake error %s: %s", e.code, e.msg)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{results: map[string]fakeResult{
		"SELECT id, name FROM people": {
			columns: []string{"id", "name"},
			rows:    [][]any{{int64(1), "a"}, {int64(2), "b"}},
		},
		"SELECT id, name, age FROM people": {
			columns: []string{"id", "name", "age"},
			rows:    [][]any{{int64(1), []byte("a"), int64(30)}},
		},
		"SELECT id FROM nobody": {
			columns: []string{"id"},
		},
		"SELECT broken": {
			err: &fakeError{code: "1064", msg: "syntax error"},
		},
	}}
}

func (d *fakeDriver) last() *fakeHandle {
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

func (d *fakeDriver) Name() string {
	return "fake"
}

func (d *fakeDriver) Open(_ context.Context, _ driver.Descriptor) (driver.Handle, error) {
	d.opens++
	if d.failOpen != nil {
		return nil, d.failOpen
	}
	h := &fakeHandle{drv: d}
	d.handles = append(d.handles, h)
	return h, nil
}

type fakeHandle struct {
	drv      *fakeDriver
	prepares int
	probes   int
	closed   bool
}

func (h *fakeHandle) Prepare(_ context.Context, query string, _ driver.Options) (driver.Statement, error) {
	h.prepares++
	if h.closed {
		return nil, errors.New("handle closed")
	}
	if strings.HasPrefix(query, "BAD") {
		return nil, &fakeError{code: "42000", msg: "cannot prepare"}
	}
	return &fakeStmt{h: h, query: query}, nil
}

func (h *fakeHandle) Probe(context.Context) error {
	h.probes++
	return h.drv.probeErr
}

func (h *fakeHandle) ErrorCode(err error) string {
	var fe *fakeError
	if errors.As(err, &fe) {
		return fe.code
	}
	return ""
}

func (h *fakeHandle) Native() any {
	return h
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

type fakeStmt struct {
	h      *fakeHandle
	query  string
	closed bool
}

func (s *fakeStmt) Query(_ context.Context, _ ...any) (driver.RowStreamer, error) {
	if s.closed || s.h.closed {
		return nil, errors.New("statement closed")
	}
	res := s.h.drv.results[s.query]
	if res.err != nil {
		return nil, res.err
	}
	return &fakeRows{columns: res.columns, rows: res.rows, pos: -1}, nil
}

func (s *fakeStmt) Exec(_ context.Context, _ ...any) (driver.Result, error) {
	if s.closed || s.h.closed {
		return driver.Result{}, errors.New("statement closed")
	}
	if res := s.h.drv.results[s.query]; res.err != nil {
		return driver.Result{}, res.err
	}
	return driver.Result{RowsAffected: 1}, nil
}

func (s *fakeStmt) Close() error {
	s.closed = true
	return nil
}

type fakeRows struct {
	columns []string
	rows    [][]any
	pos     int
	closed  bool
}

func (r *fakeRows) Columns() ([]string, error)              { return r.columns, nil }
func (r *fakeRows) ColumnTypes() ([]*sql.ColumnType, error) { return nil, nil }
func (r *fakeRows) Err() error                              { return nil }

func (r *fakeRows) Next() bool {
	if r.closed {
		return false
	}
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	row := r.rows[r.pos]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		*(d.(*any)) = row[i]
	}
	return nil
}

func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

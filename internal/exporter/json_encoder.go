package exporter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strconv"
)

// JSONEncoder writes JSON Lines: one object per row, keys in column order.
type JSONEncoder struct {
	buf     *bufio.Writer
	columns []string
	line    bytes.Buffer
	err     error
}

func NewJSONEncoder(w io.Writer) *JSONEncoder {
	return &JSONEncoder{buf: bufio.NewWriterSize(w, 64*1024)}
}

// WriteHeader captures the column names used as object keys.
func (e *JSONEncoder) WriteHeader(columns []string) error {
	e.columns = columns
	return nil
}

func (e *JSONEncoder) WriteRow(values []any) error {
	if e.err != nil {
		return e.err
	}

	e.line.Reset()
	e.line.WriteByte('{')
	for i, v := range values {
		name := "column_" + strconv.Itoa(i)
		if i < len(e.columns) {
			name = e.columns[i]
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}

		key, err := json.Marshal(name)
		if err != nil {
			return e.fail(err)
		}
		val, err := json.Marshal(v)
		if err != nil {
			return e.fail(err)
		}
		if i > 0 {
			e.line.WriteByte(',')
		}
		e.line.Write(key)
		e.line.WriteByte(':')
		e.line.Write(val)
	}
	e.line.WriteString("}\n")

	if _, err := e.buf.Write(e.line.Bytes()); err != nil {
		return e.fail(err)
	}
	return nil
}

func (e *JSONEncoder) fail(err error) error {
	e.err = err
	return err
}

func (e *JSONEncoder) Flush() error {
	if e.err != nil {
		return e.err
	}
	return e.buf.Flush()
}

func (e *JSONEncoder) Error() error {
	return e.err
}

func (e *JSONEncoder) Close() error {
	return e.Flush()
}

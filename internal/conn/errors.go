package conn

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnection is returned when a statement is issued and no live
	// physical connection is available, even after the implicit reconnect.
	ErrConnection = errors.New("connection isn't active")

	// ErrNoDriver is returned when a Conn built around an adopted handle is
	// asked to open a connection of its own.
	ErrNoDriver = errors.New("no driver configured")

	// ErrStatementClosed is returned when executing a statement whose
	// prepared handle was released (cache cleared or connection replaced).
	ErrStatementClosed = errors.New("statement is closed")
)

// StatementError is returned when a statement fails to execute. Err is the
// untouched driver error; Debug renders the effective query so the failure
// can be logged with the SQL that caused it.
type StatementError struct {
	Err   error
	Code  string
	Query string
	Args  []any
	Debug string
}

func (e *StatementError) Error() string {
	var b strings.Builder
	b.WriteString("statement failed")
	if e.Code != "" {
		fmt.Fprintf(&b, " (code %s)", e.Code)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

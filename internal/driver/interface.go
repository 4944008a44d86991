package driver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned by adapters for operations their backend cannot perform.
	ErrUnsupported = errors.New("operation not supported by driver")
	// ErrUnknownDriver is returned by Lookup for names without an adapter.
	ErrUnknownDriver = errors.New("unknown driver")
)

// Driver opens physical connections to one kind of database.
type Driver interface {
	// Name returns the driver name (e.g., "mysql", "postgres").
	Name() string

	// Open creates a new physical connection from the descriptor.
	// Implementations configure the connection so that failures are
	// returned as errors and never as silent status codes.
	Open(ctx context.Context, desc Descriptor) (Handle, error)
}

// Handle is one live physical connection.
type Handle interface {
	// Prepare parses the statement on the server.
	Prepare(ctx context.Context, query string, opts Options) (Statement, error)

	// Probe runs a trivial round trip to test liveness.
	Probe(ctx context.Context) error

	// ErrorCode extracts the backend error code from err, or "" when err
	// did not come from the backend.
	ErrorCode(err error) string

	// Native returns the backend object (*sql.Conn, *mongo.Client) for
	// operations not covered by this interface.
	Native() any

	// Close releases the physical connection.
	Close() error
}

// Statement is a prepared statement bound to the Handle that produced it.
type Statement interface {
	// Query executes the statement and returns its rows.
	Query(ctx context.Context, args ...any) (RowStreamer, error)

	// Exec executes a statement that returns no rows.
	Exec(ctx context.Context, args ...any) (Result, error)

	// Close releases the server side statement.
	Close() error
}

// Result reports the outcome of Exec.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// Credentials are kept apart from the DSN so they can be merged by each adapter.
type Credentials struct {
	User     string
	Password string
}

// Options are driver-specific settings passed through unexamined.
type Options map[string]string

// Descriptor holds everything needed to (re)open a physical connection.
type Descriptor struct {
	DSN         string
	Credentials Credentials
	Options     Options
}

// RowStreamer iterates over query results.
// It is designed to be memory-efficient and stream-oriented.
type RowStreamer interface {
	// Columns returns the column names. Safe to call after Query returns.
	Columns() ([]string, error)

	// ColumnTypes returns column information such as database type name.
	ColumnTypes() ([]*sql.ColumnType, error)

	// Next advances to the next row. Returns false when there are no more rows or an error occurs.
	Next() bool

	// Scan copies the columns in the current row into the values pointed at by dest.
	// The number of values must be the same as the number of columns.
	Scan(dest ...interface{}) error

	// Err returns the error, if any, that was encountered during iteration.
	Err() error

	// Close closes the streamer and frees resources.
	Close() error
}

// canonicalName folds the accepted aliases onto the adapter names.
func canonicalName(name string) string {
	switch name {
	case "postgresql":
		return "postgres"
	case "sqlite3":
		return "sqlite"
	case "mongodb":
		return "mongo"
	}
	return name
}

// Lookup returns the adapter registered under name.
func Lookup(name string) (Driver, error) {
	switch canonicalName(name) {
	case "mysql":
		return MySQL(), nil
	case "postgres":
		return Postgres(), nil
	case "sqlite":
		return SQLite(), nil
	case "mongo":
		return Mongo(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
}

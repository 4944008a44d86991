package driver

import (
	"context"
	"database/sql"
	"fmt"
)

// probeQuery is the trivial round trip used to test liveness.
const probeQuery = "SELECT 1+1"

// sqlDriver adapts a database/sql driver. Every Handle pins exactly one
// physical session with (*sql.DB).Conn so the logical connection never fans
// out to a pool.
type sqlDriver struct {
	name string
	dsn  func(Descriptor) (string, error)
	code func(error) string
}

func (d *sqlDriver) Name() string {
	return d.name
}

func (d *sqlDriver) Open(ctx context.Context, desc Descriptor) (Handle, error) {
	dsn, err := d.dsn(desc)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: invalid dsn: %w", d.name, err)
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", d.name, err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s connection: %w", d.name, err)
	}

	return &sqlHandle{name: d.name, db: db, conn: conn, code: d.code, ownsDB: true}, nil
}

// FromDB pins one session of an existing pool as a Handle. Closing the Handle
// returns the session to db and leaves db open; the caller keeps owning it.
func FromDB(ctx context.Context, name string, db *sql.DB) (Handle, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire %s session: %w", name, err)
	}
	return &sqlHandle{name: name, db: db, conn: conn, code: codeFor(name)}, nil
}

func codeFor(name string) func(error) string {
	switch canonicalName(name) {
	case "mysql":
		return mysqlCode
	case "postgres":
		return postgresCode
	case "sqlite":
		return sqliteCode
	}
	return func(error) string { return "" }
}

type sqlHandle struct {
	name   string
	db     *sql.DB
	conn   *sql.Conn
	code   func(error) string
	ownsDB bool
}

// Prepare ignores opts: database/sql has no per-statement driver options.
func (h *sqlHandle) Prepare(ctx context.Context, query string, _ Options) (Statement, error) {
	stmt, err := h.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &sqlStatement{stmt: stmt}, nil
}

func (h *sqlHandle) Probe(ctx context.Context) error {
	var n int
	return h.conn.QueryRowContext(ctx, probeQuery).Scan(&n)
}

func (h *sqlHandle) ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	return h.code(err)
}

func (h *sqlHandle) Native() any {
	return h.conn
}

func (h *sqlHandle) Close() error {
	err := h.conn.Close()
	if h.ownsDB {
		if dbErr := h.db.Close(); err == nil {
			err = dbErr
		}
	}
	return err
}

type sqlStatement struct {
	stmt *sql.Stmt
}

func (s *sqlStatement) Query(ctx context.Context, args ...any) (RowStreamer, error) {
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *sqlStatement) Exec(ctx context.Context, args ...any) (Result, error) {
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return Result{}, err
	}

	// Not every backend reports both numbers (lib/pq has no LastInsertId).
	var out Result
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	return out, nil
}

func (s *sqlStatement) Close() error {
	return s.stmt.Close()
}

package conn

import (
	"context"

	"fluxconn/internal/driver"
	"fluxconn/internal/shape"
)

// SetCaching toggles the statement cache. Disabling it closes and drops
// every cached statement; re-enabling starts from an empty cache.
func (c *Conn) SetCaching(enabled bool) {
	c.caching = enabled
	if enabled {
		return
	}
	if err := c.cache.clear(); err != nil {
		c.logger.Warn("Closing cached statements failed", "error", err)
	}
}

// Caching reports whether the statement cache is enabled.
func (c *Conn) Caching() bool {
	return c.caching
}

// CacheLen returns the number of cached statements.
func (c *Conn) CacheLen() int {
	return c.cache.len()
}

// Prepare returns a prepared statement for query, reusing the cached one for
// identical text when caching is enabled. Non-empty args are bound onto it.
// Driver prepare failures are returned unwrapped.
func (c *Conn) Prepare(ctx context.Context, query string, args ...any) (*Stmt, error) {
	return c.PrepareOptions(ctx, query, nil, args...)
}

// PrepareOptions is Prepare with driver-specific options for the prepare call.
func (c *Conn) PrepareOptions(ctx context.Context, query string, opts driver.Options, args ...any) (*Stmt, error) {
	if err := c.live(ctx); err != nil {
		return nil, err
	}

	var st *Stmt
	if c.caching {
		fp := fingerprint(query)
		cached, ok := c.cache.lookup(fp)
		if !ok {
			native, err := c.handle.Prepare(ctx, query, opts)
			if err != nil {
				return nil, err
			}
			cached = newStmt(query, native, true)
			c.cache.set(fp, cached)
			c.logger.Debug("Statement cached", "fingerprint", fp, "cached_statements", c.cache.len())
		}
		st = cached
	} else {
		native, err := c.handle.Prepare(ctx, query, opts)
		if err != nil {
			return nil, err
		}
		st = newStmt(query, native, false)
	}

	c.setLatest(st)
	if len(args) > 0 {
		st.Bind(args...)
	}
	return st, nil
}

// Use takes an already prepared statement verbatim, bypassing the cache.
func (c *Conn) Use(ctx context.Context, st *Stmt, args ...any) (*Stmt, error) {
	if err := c.live(ctx); err != nil {
		return nil, err
	}
	c.setLatest(st)
	if len(args) > 0 {
		st.Bind(args...)
	}
	return st, nil
}

// Execute prepares (or reuses) query, binds args and executes it. Prepare
// and execution failures are returned as *StatementError carrying the
// driver error code and a debug rendering of the query.
func (c *Conn) Execute(ctx context.Context, query string, args ...any) (*Stmt, error) {
	return c.ExecuteOptions(ctx, query, nil, args...)
}

// ExecuteOptions is Execute with driver-specific prepare options.
func (c *Conn) ExecuteOptions(ctx context.Context, query string, opts driver.Options, args ...any) (*Stmt, error) {
	st, err := c.PrepareOptions(ctx, query, opts, args...)
	if err != nil {
		if c.handle == nil {
			return nil, err
		}
		return nil, c.statementError(query, args, err)
	}
	return c.ExecuteStmt(ctx, st)
}

// ExecuteStmt executes an already prepared statement, binding args first
// when given.
func (c *Conn) ExecuteStmt(ctx context.Context, st *Stmt, args ...any) (*Stmt, error) {
	if err := c.live(ctx); err != nil {
		return nil, err
	}
	c.setLatest(st)
	if len(args) > 0 {
		st.Bind(args...)
	}
	if st.native == nil {
		return nil, c.statementError(st.query, st.args, ErrStatementClosed)
	}
	if err := st.run(ctx); err != nil {
		return nil, c.statementError(st.query, st.args, err)
	}
	return st, nil
}

// Exec runs a statement that returns no rows.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (driver.Result, error) {
	st, err := c.Prepare(ctx, query, args...)
	if err != nil {
		if c.handle == nil {
			return driver.Result{}, err
		}
		return driver.Result{}, c.statementError(query, args, err)
	}
	defer c.finish(st)
	res, err := st.native.Exec(ctx, st.args...)
	if err != nil {
		return driver.Result{}, c.statementError(query, st.args, err)
	}
	return res, nil
}

// finish releases a statement the cache does not own once a helper has
// consumed it.
func (c *Conn) finish(st *Stmt) {
	if st.cached {
		return
	}
	if err := st.release(); err != nil {
		c.logger.Debug("Closing statement failed", "error", err)
	}
}

// setLatest records st and closes the previous statement's result set: the
// physical session carries one open result set at a time.
func (c *Conn) setLatest(st *Stmt) {
	if c.latest != nil && c.latest != st {
		c.latest.closeRows()
	}
	c.latest = st
}

func (c *Conn) statementError(query string, args []any, err error) error {
	se := &StatementError{
		Err:   err,
		Query: query,
		Args:  args,
		Debug: debugString(query, args),
	}
	if c.handle != nil {
		se.Code = c.handle.ErrorCode(err)
	}
	c.logger.Error("Statement failed", "code", se.Code, "query", se.Debug, "error", err)
	return se
}

// FetchAll returns every row of the executed query.
func (c *Conn) FetchAll(ctx context.Context, query string, args ...any) ([]shape.Row, error) {
	st, err := c.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer c.finish(st)
	return st.Rows()
}

// FetchOne returns the first row, or nil if the query returned none.
func (c *Conn) FetchOne(ctx context.Context, query string, args ...any) (*shape.Row, error) {
	st, err := c.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer c.finish(st)
	return st.Row()
}

// FetchColumn returns the first column of every row.
func (c *Conn) FetchColumn(ctx context.Context, query string, args ...any) ([]any, error) {
	st, err := c.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer c.finish(st)
	return st.Column()
}

// FetchValue returns the first column of the first row, or nil.
func (c *Conn) FetchValue(ctx context.Context, query string, args ...any) (any, error) {
	st, err := c.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer c.finish(st)
	return st.Value()
}

// FetchKeyed keys the first row by its first column, or returns nil.
func (c *Conn) FetchKeyed(ctx context.Context, mode shape.Mode, query string, args ...any) (*shape.Keyed, error) {
	st, err := c.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer c.finish(st)
	return st.Keyed(mode)
}

// FetchAllKeyed keys every row by its first column.
func (c *Conn) FetchAllKeyed(ctx context.Context, mode shape.Mode, query string, args ...any) ([]shape.Keyed, error) {
	st, err := c.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer c.finish(st)
	return st.AllKeyed(mode)
}

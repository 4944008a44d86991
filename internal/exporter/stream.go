package exporter

import (
	"context"
	"fmt"
	"time"

	"fluxconn/internal/conn"
)

// ExportResult contains stats about the export.
type ExportResult struct {
	RowsProcessed int64
	Duration      time.Duration
}

// Query executes query on c and streams the result set into enc.
func Query(ctx context.Context, c *conn.Conn, enc RowEncoder, query string, args ...any) (*ExportResult, error) {
	st, err := c.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return Export(ctx, st, enc)
}

// Export streams the rows of an executed statement into enc one at a time
// and flushes it. Memory use does not depend on the size of the result set.
func Export(ctx context.Context, st *conn.Stmt, enc RowEncoder) (*ExportResult, error) {
	start := time.Now()

	if err := enc.WriteHeader(st.Columns()); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	var count int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, ok, err := st.Fetch()
		if err != nil {
			return nil, fmt.Errorf("fetch row %d: %w", count+1, err)
		}
		if !ok {
			break
		}
		if err := enc.WriteRow(row.Values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", count+1, err)
		}
		count++
	}

	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush encoder: %w", err)
	}
	if err := enc.Error(); err != nil {
		return nil, fmt.Errorf("encoder error: %w", err)
	}

	return &ExportResult{
		RowsProcessed: count,
		Duration:      time.Since(start),
	}, nil
}

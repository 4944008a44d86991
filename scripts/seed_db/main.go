package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fluxconn/internal/config"
	"fluxconn/internal/conn"
)

// Seeds users and transactions tables through the configured DB_DRIVER, for
// exercising exports against realistic volumes.
func main() {
	users := flag.Int("users", 10000, "Number of users")
	txPerUser := flag.Int("tx", 5, "Transactions per user")
	batch := flag.Int("batch", 500, "Rows per INSERT")
	flag.Parse()

	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	cfg := config.Load()
	cfg.AutoConnect = true
	ctx := context.Background()

	var c *conn.Conn
	var err error
	for i := 0; i < 30; i++ {
		if c, err = cfg.OpenConn(ctx, logger); err == nil {
			if c.Ping(ctx) {
				break
			}
			_ = c.Close()
			err = errors.New("database not ready")
		}
		logger.Info("Waiting for database...", "attempt", i+1, "error", err)
		time.Sleep(time.Second)
	}
	if err != nil {
		logger.Error("Connect failed", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	schema := []string{
		"CREATE TABLE IF NOT EXISTS users (id BIGINT PRIMARY KEY, name TEXT, email TEXT, created_at TIMESTAMP, score DOUBLE PRECISION)",
		"CREATE TABLE IF NOT EXISTS transactions (id BIGINT PRIMARY KEY, user_id BIGINT, amount DECIMAL(15, 2), currency VARCHAR(3), status VARCHAR(20), created_at TIMESTAMP)",
	}
	for _, q := range schema {
		if _, err := c.Exec(ctx, q); err != nil {
			logger.Error("Schema failed", "error", err)
			os.Exit(1)
		}
	}

	dollar := cfg.DBDriver == "postgres" || cfg.DBDriver == "postgresql"
	now := time.Now().UTC()

	seed(ctx, c, logger, "users", *users, *batch, dollar, 5, func(i int) []any {
		return []any{i, fmt.Sprintf("User%d", i), fmt.Sprintf("user%d@example.com", i), now, float64(i) * 0.1}
	}, "id, name, email, created_at, score")

	transactions := *users * *txPerUser
	seed(ctx, c, logger, "transactions", transactions, *batch, dollar, 6, func(i int) []any {
		uid := (i-1)%*users + 1
		return []any{i, uid, float64(uid) * 0.25, "USD", "COMPLETED", now}
	}, "id, user_id, amount, currency, status, created_at")

	logger.Info("Database schema and data prep complete.", "cached_statements", c.CacheLen())
}

// seed inserts total rows in batches. Full batches share one query text and
// so reuse one cached prepared statement.
func seed(ctx context.Context, c *conn.Conn, logger *slog.Logger, table string, total, batch int, dollar bool, width int, row func(int) []any, columns string) {
	have, err := c.FetchValue(ctx, "SELECT COUNT(*) FROM "+table)
	if err != nil {
		logger.Error("Count failed", "table", table, "error", err)
		os.Exit(1)
	}
	if n, ok := have.(int64); ok && n >= int64(total) {
		logger.Info("Already seeded", "table", table, "count", n)
		return
	}

	start := time.Now()
	for i := 0; i < total; i += batch {
		n := min(batch, total-i)
		args := make([]any, 0, n*width)
		for j := 1; j <= n; j++ {
			args = append(args, row(i+j)...)
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, columns, placeholders(n, width, dollar))
		if _, err := c.Exec(ctx, query, args...); err != nil {
			logger.Error("Insert failed", "table", table, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("Seeding complete", "table", table, "rows", total, "duration", time.Since(start))
}

func placeholders(rows, width int, dollar bool) string {
	groups := make([]string, rows)
	n := 0
	for r := range groups {
		marks := make([]string, width)
		for i := range marks {
			n++
			if dollar {
				marks[i] = fmt.Sprintf("$%d", n)
			} else {
				marks[i] = "?"
			}
		}
		groups[r] = "(" + strings.Join(marks, ", ") + ")"
	}
	return strings.Join(groups, ", ")
}

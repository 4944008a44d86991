package config

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxconn/internal/conn"
	"fluxconn/internal/driver"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DB_DRIVER", "DB_OPTIONS", "DB_STMT_CACHE", "IDLE_PAUSE", "WORKER_COUNT"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, "", cfg.DBDriver, "set but empty values are kept")
	assert.Nil(t, cfg.DBOptions)
	assert.True(t, cfg.StmtCache, "unparsable bools fall back")
	assert.Equal(t, time.Duration(0), cfg.IdlePause)
	assert.Equal(t, 5, cfg.WorkerCount)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "host=db dbname=app")
	t.Setenv("DB_USER", "svc")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_OPTIONS", "sslmode=disable, connect_timeout=3,broken")
	t.Setenv("DB_STMT_CACHE", "false")
	t.Setenv("IDLE_PAUSE", "30s")
	t.Setenv("MAX_DB_CONCURRENCY", "7")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.False(t, cfg.StmtCache)
	assert.Equal(t, 30*time.Second, cfg.IdlePause)
	assert.Equal(t, int64(7), cfg.MaxDBConcurrency)
	assert.Equal(t, driver.Descriptor{
		DSN:         "host=db dbname=app",
		Credentials: driver.Credentials{User: "svc", Password: "pw"},
		Options:     driver.Options{"sslmode": "disable", "connect_timeout": "3"},
	}, cfg.Descriptor())
}

func TestOpenConn(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{
		DBDriver:     "sqlite",
		DBDSN:        filepath.Join(t.TempDir(), "cfg.db"),
		StmtCache:    true,
		ProbeTimeout: time.Second,
	}

	lazy, err := cfg.OpenConn(ctx, logger)
	require.NoError(t, err)
	defer lazy.Close()
	assert.Equal(t, conn.Paused, lazy.State())

	v, err := lazy.FetchValue(ctx, "SELECT 40 + 2")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
	assert.Equal(t, conn.Connected, lazy.State())

	cfg.AutoConnect = true
	eager, err := cfg.OpenConn(ctx, logger)
	require.NoError(t, err)
	defer eager.Close()
	assert.True(t, eager.IsConnected())

	cfg.DBDriver = "oracle"
	_, err = cfg.OpenConn(ctx, logger)
	assert.ErrorIs(t, err, driver.ErrUnknownDriver)
}

package config

import (
	"context"
	"log/slog"

	"fluxconn/internal/conn"
	"fluxconn/internal/driver"
)

// ConnConfig resolves the configured adapter.
func (c *Config) ConnConfig(logger *slog.Logger) (conn.Config, error) {
	drv, err := driver.Lookup(c.DBDriver)
	if err != nil {
		return conn.Config{}, err
	}
	return conn.Config{
		Driver:         drv,
		Descriptor:     c.Descriptor(),
		DisableCaching: !c.StmtCache,
		ProbeTimeout:   c.ProbeTimeout,
		Logger:         logger,
	}, nil
}

// OpenConn builds the configured connection. Without AutoConnect it starts
// paused and connects on the first statement.
func (c *Config) OpenConn(ctx context.Context, logger *slog.Logger) (*conn.Conn, error) {
	cc, err := c.ConnConfig(logger)
	if err != nil {
		return nil, err
	}
	if c.AutoConnect {
		return conn.Open(ctx, cc)
	}
	lazy := conn.New(cc)
	if err := lazy.Pause(); err != nil {
		return nil, err
	}
	return lazy, nil
}

// Package conn manages one logical database connection: its lifecycle
// (connect, pause, transparent reconnect, disconnect), a cache of prepared
// statements keyed by query text, and execution helpers that return results
// in the layouts of package shape.
//
// A Conn does no internal locking. It is meant to be owned by one goroutine
// at a time; give every worker its own Conn or serialize access externally.
package conn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fluxconn/internal/driver"
)

// State is the lifecycle state of a Conn.
type State int

const (
	Disconnected State = iota
	Connected
	Paused
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config controls how a Conn opens and uses its physical connection.
type Config struct {
	// Driver opens physical connections. It may be nil for a Conn that only
	// ever adopts handles.
	Driver driver.Driver
	// Descriptor is remembered for reconnects.
	Descriptor driver.Descriptor
	// DisableCaching prepares every statement afresh.
	DisableCaching bool
	// ProbeTimeout bounds the liveness probe. Zero leaves it to the driver.
	ProbeTimeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Conn is a single logical connection. The physical handle is non-nil if and
// only if the state is Connected.
type Conn struct {
	drv          driver.Driver
	desc         driver.Descriptor
	handle       driver.Handle
	paused       bool
	caching      bool
	cache        stmtCache
	latest       *Stmt
	probeTimeout time.Duration
	logger       *slog.Logger
}

// New builds a disconnected Conn.
func New(cfg Config) *Conn {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		drv:          cfg.Driver,
		desc:         cfg.Descriptor,
		caching:      !cfg.DisableCaching,
		probeTimeout: cfg.ProbeTimeout,
	}
	c.logger = logger.With("driver", c.driverName())
	return c
}

// Open builds a Conn and connects it.
func Open(ctx context.Context, cfg Config) (*Conn, error) {
	c := New(cfg)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// FromHandle builds a Conn around an existing physical handle instead of
// opening a second one. The Conn owns h from then on.
func FromHandle(ctx context.Context, h driver.Handle, cfg Config) (*Conn, error) {
	c := New(cfg)
	if err := c.Adopt(ctx, h); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) driverName() string {
	if c.drv == nil {
		return "adopted"
	}
	return c.drv.Name()
}

// State reports the current lifecycle state.
func (c *Conn) State() State {
	switch {
	case c.handle != nil:
		return Connected
	case c.paused:
		return Paused
	default:
		return Disconnected
	}
}

func (c *Conn) IsConnected() bool {
	return c.handle != nil
}

func (c *Conn) IsPaused() bool {
	return c.paused
}

// Handle returns the physical handle, or nil when not connected. Use it for
// driver operations Conn does not cover.
func (c *Conn) Handle() driver.Handle {
	return c.handle
}

// Native returns the backend object behind the handle (e.g. *sql.Conn).
func (c *Conn) Native() any {
	if c.handle == nil {
		return nil
	}
	return c.handle.Native()
}

// Connect opens a new physical connection from the stored descriptor,
// releasing any existing one first.
//
// The state follows the handle: once the driver hands one back the Conn is
// Connected, even if the liveness probe that follows fails. The probe
// outcome is logged and stays observable through Ping.
func (c *Conn) Connect(ctx context.Context) error {
	return c.attach(ctx, nil)
}

// Adopt uses h as the physical connection instead of opening one.
func (c *Conn) Adopt(ctx context.Context, h driver.Handle) error {
	if h == nil {
		return fmt.Errorf("adopt: %w", ErrConnection)
	}
	return c.attach(ctx, h)
}

// Reconnect discards the current handle and its prepared statements and
// opens a new one with the stored descriptor.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.logger.Info("Reconnecting", "state", c.State().String())
	return c.attach(ctx, nil)
}

func (c *Conn) attach(ctx context.Context, h driver.Handle) error {
	if err := c.release(); err != nil {
		c.logger.Warn("Closing previous connection failed", "error", err)
	}

	if h == nil {
		if c.drv == nil {
			return ErrNoDriver
		}
		opened, err := c.drv.Open(ctx, c.desc)
		if err != nil {
			c.logger.Error("Connection failed", "error", err)
			return err
		}
		h = opened
	}

	c.handle = h
	c.paused = false

	if !c.Ping(ctx) {
		c.logger.Warn("Liveness probe failed after connect")
	}
	c.logger.Info("Connected")
	return nil
}

// Disconnect releases the physical connection and every cached statement.
// It is idempotent.
func (c *Conn) Disconnect() error {
	c.paused = false
	return c.release()
}

// Close is Disconnect, for use with defer.
func (c *Conn) Close() error {
	return c.Disconnect()
}

// Pause releases the physical connection but remembers the descriptor: the
// next statement transparently reconnects.
func (c *Conn) Pause() error {
	err := c.release()
	c.paused = true
	c.logger.Info("Connection paused")
	return err
}

func (c *Conn) release() error {
	if c.latest != nil {
		c.latest.closeRows()
	}
	if c.handle == nil {
		return nil
	}

	n := c.cache.len()
	cacheErr := c.cache.clear()
	err := c.handle.Close()
	c.handle = nil
	if err == nil {
		err = cacheErr
	}
	c.logger.Debug("Connection released", "cached_statements", n)
	return err
}

// Ping reports whether the connection answers a trivial query. A paused
// Conn returns false without touching the network. Probe failures are
// never returned.
func (c *Conn) Ping(ctx context.Context) bool {
	if c.paused || c.handle == nil {
		return false
	}
	if c.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.probeTimeout)
		defer cancel()
	}
	if err := c.handle.Probe(ctx); err != nil {
		c.logger.Debug("Liveness probe failed", "error", err)
		return false
	}
	return true
}

// live gates every statement: a paused Conn reconnects, and anything still
// without a handle afterwards fails with ErrConnection.
func (c *Conn) live(ctx context.Context) error {
	if c.paused {
		if err := c.Reconnect(ctx); err != nil {
			return fmt.Errorf("%w: reconnect: %w", ErrConnection, err)
		}
	}
	if c.handle == nil {
		return ErrConnection
	}
	return nil
}

// LatestStatement returns the statement most recently prepared or executed,
// or nil before the first one.
func (c *Conn) LatestStatement() *Stmt {
	return c.latest
}

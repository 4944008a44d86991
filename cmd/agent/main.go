package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fluxconn/internal/config"
)

var version = "dev"

const retryDelay = 5 * time.Second

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fluxconn agent %s\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  fluxconn-agent [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  REACTOR_URL   WebSocket URL (e.g., wss://reactor.example.com)\n")
		fmt.Fprintf(os.Stderr, "  AGENT_KEY     Agent key sent with every connection\n")
		fmt.Fprintf(os.Stderr, "  AGENT_SECRET  Shared secret for job signatures (optional)\n")
		fmt.Fprintf(os.Stderr, "  DB_DRIVER     mysql, postgres, sqlite or mongo\n")
		fmt.Fprintf(os.Stderr, "  DB_DSN        Database connection string\n")
		fmt.Fprintf(os.Stderr, "  IDLE_PAUSE    Pause the DB connection after this long without jobs (e.g., 5m)\n")
	}
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fluxconn agent %s\n", version)
		return
	}

	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	cfg := config.Load()

	if cfg.ReactorURL == "" {
		logger.Error("Missing configuration (REACTOR_URL)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("Starting agent", "reactor", cfg.ReactorURL, "driver", cfg.DBDriver, "idle_pause", cfg.IdlePause)

	c, err := cfg.OpenConn(ctx, logger)
	if err != nil {
		logger.Error("Failed to connect to Local DB", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	a := &agent{
		conn:       c,
		reactorURL: cfg.ReactorURL,
		agentKey:   cfg.AgentKey,
		secret:     cfg.AgentSecret,
		idlePause:  cfg.IdlePause,
		timeout:    cfg.DefaultTimeout,
		dialer:     websocket.DefaultDialer,
		logger:     logger,
	}

	a.serve(ctx)
	logger.Info("Agent shutting down...")
}

// serve keeps the control channel up and runs jobs until ctx is done. It
// returns only after the job loop has stopped, so the caller may close the
// connection.
func (a *agent) serve(ctx context.Context) {
	jobs := make(chan JobCommand, 16)

	var g errgroup.Group
	g.Go(func() error {
		a.run(ctx, jobs)
		return nil
	})
	g.Go(func() error {
		for ctx.Err() == nil {
			if err := a.listen(ctx, jobs); err != nil && ctx.Err() == nil {
				a.logger.Error("Control Plane connection lost", "error", err, "retry_in", retryDelay)
				select {
				case <-time.After(retryDelay):
				case <-ctx.Done():
				}
			}
		}
		return nil
	})
	_ = g.Wait()
}

// listen reads jobs from the control plane until the socket fails.
func (a *agent) listen(ctx context.Context, jobs chan<- JobCommand) error {
	ws, err := a.dialControl(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()
	a.logger.Info("Connected to Control Plane")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		var job JobCommand
		if err := json.Unmarshal(message, &job); err != nil {
			a.logger.Error("Invalid command", "error", err)
			continue
		}
		a.logger.Info("Received Job", "id", job.ID)
		select {
		case jobs <- job:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

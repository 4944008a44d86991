package main

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"fluxconn/internal/conn"
	"fluxconn/internal/security"
)

// JobCommand is what the control plane pushes to the agent.
type JobCommand struct {
	ID        string `json:"id"`
	Query     string `json:"query"`
	Args      []any  `json:"args,omitempty"`
	Timestamp int64  `json:"ts"`
	Signature string `json:"sig"`
}

func init() {
	gob.Register([]any{})
	gob.Register(map[string]any{})
	gob.Register([]byte{})
	gob.Register(time.Time{})
}

// agent runs jobs one at a time on a single logical connection.
type agent struct {
	conn       *conn.Conn
	reactorURL string
	agentKey   string
	secret     string
	idlePause  time.Duration
	timeout    time.Duration
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

// run executes jobs until ctx is done or jobs is closed. The connection is
// paused after idlePause without work and reconnects on the next job.
func (a *agent) run(ctx context.Context, jobs <-chan JobCommand) {
	var idle <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if timer != nil {
				timer.Stop()
				idle = nil
			}
			a.execute(ctx, job)
			if a.idlePause > 0 {
				timer = time.NewTimer(a.idlePause)
				idle = timer.C
			}
		case <-idle:
			idle = nil
			if a.conn.IsConnected() {
				if err := a.conn.Pause(); err != nil {
					a.logger.Warn("Pausing idle connection failed", "error", err)
				}
			}
		}
	}
}

// accept checks signature and query text before anything touches the DB.
func (a *agent) accept(job JobCommand) error {
	if err := security.VerifyJob(a.secret, job.ID, job.Query, job.Args, job.Timestamp, job.Signature, time.Now()); err != nil {
		return err
	}
	return security.ValidateQuery(job.Query)
}

func (a *agent) execute(ctx context.Context, job JobCommand) {
	log := a.logger.With("id", job.ID)
	if err := a.accept(job); err != nil {
		log.Error("Job rejected", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	st, err := a.conn.Execute(ctx, job.Query, job.Args...)
	if err != nil {
		log.Error("Query execution failed", "error", err)
		return
	}
	defer st.Close()

	ws, err := a.dialData(ctx, job.ID)
	if err != nil {
		log.Error("Failed to connect to Data Stream", "error", err)
		return
	}
	defer ws.Close()

	rows, err := streamRows(ctx, st, &wsWriter{conn: ws})
	if err != nil {
		log.Error("Streaming failed", "rows", rows, "error", err)
		return
	}
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	log.Info("Job Completed", "rows", rows)
}

func (a *agent) header() http.Header {
	h := http.Header{}
	h.Set("X-Agent-Key", a.agentKey)
	return h
}

func (a *agent) dialControl(ctx context.Context) (*websocket.Conn, error) {
	ws, _, err := a.dialer.DialContext(ctx, a.reactorURL+"/agent/control", a.header())
	return ws, err
}

func (a *agent) dialData(ctx context.Context, jobID string) (*websocket.Conn, error) {
	u := a.reactorURL + "/agent/data?job_id=" + url.QueryEscape(jobID)
	ws, _, err := a.dialer.DialContext(ctx, u, a.header())
	return ws, err
}

// streamRows gob-encodes the column names and then every row.
func streamRows(ctx context.Context, st *conn.Stmt, w io.Writer) (int, error) {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(st.Columns()); err != nil {
		return 0, fmt.Errorf("encode columns: %w", err)
	}

	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		row, ok, err := st.Fetch()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		if err := enc.Encode(row.Values); err != nil {
			return n, fmt.Errorf("encode row %d: %w", n+1, err)
		}
		n++
	}
}

// wsWriter sends every Write as one binary message.
type wsWriter struct {
	conn *websocket.Conn
}

func (w *wsWriter) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

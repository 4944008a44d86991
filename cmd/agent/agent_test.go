package main

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxconn/internal/conn"
	"fluxconn/internal/driver"
	"fluxconn/internal/security"
)

func newAgent(t *testing.T, reactorURL string) *agent {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := conn.Open(ctx, conn.Config{
		Driver:     driver.SQLite(),
		Descriptor: driver.Descriptor{DSN: filepath.Join(t.TempDir(), "agent.db")},
		Logger:     logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Exec(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = c.Exec(ctx, "INSERT INTO items (name) VALUES ('x'), ('y')")
	require.NoError(t, err)

	return &agent{
		conn:       c,
		reactorURL: reactorURL,
		agentKey:   "key-1",
		secret:     "s3cret",
		timeout:    time.Minute,
		dialer:     websocket.DefaultDialer,
		logger:     logger,
	}
}

func signed(t *testing.T, secret, id, query string, args ...any) JobCommand {
	t.Helper()
	ts := time.Now().Unix()
	sig, err := security.SignJob(secret, id, query, args, ts)
	require.NoError(t, err)
	return JobCommand{ID: id, Query: query, Args: args, Timestamp: ts, Signature: sig}
}

func TestAcceptJob(t *testing.T) {
	a := newAgent(t, "")

	assert.NoError(t, a.accept(signed(t, "s3cret", "j1", "SELECT id FROM items")))
	assert.ErrorIs(t, a.accept(signed(t, "wrong", "j1", "SELECT id FROM items")), security.ErrInvalidSignature)
	assert.ErrorIs(t, a.accept(signed(t, "s3cret", "j1", "DROP TABLE items")), security.ErrNotSelect)
}

func TestAcceptRejectsRewrittenArgs(t *testing.T) {
	a := newAgent(t, "")
	job := signed(t, "s3cret", "j2", "SELECT id FROM items WHERE name = ?", "tenant-A")

	// Jobs reach the agent as JSON.
	wire, err := json.Marshal(job)
	require.NoError(t, err)
	var received JobCommand
	require.NoError(t, json.Unmarshal(wire, &received))
	assert.NoError(t, a.accept(received))

	received.Args = []any{"tenant-B"}
	assert.ErrorIs(t, a.accept(received), security.ErrInvalidSignature)

	received.Args = nil
	assert.ErrorIs(t, a.accept(received), security.ErrInvalidSignature)
}

func TestStreamRows(t *testing.T) {
	a := newAgent(t, "")
	ctx := context.Background()

	st, err := a.conn.Execute(ctx, "SELECT id, name FROM items ORDER BY id")
	require.NoError(t, err)
	defer st.Close()

	var buf bytes.Buffer
	n, err := streamRows(ctx, st, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dec := gob.NewDecoder(&buf)
	var cols []string
	require.NoError(t, dec.Decode(&cols))
	assert.Equal(t, []string{"id", "name"}, cols)
	var row []any
	require.NoError(t, dec.Decode(&row))
	assert.Equal(t, []any{int64(1), "x"}, row)
}

func TestExecuteStreamsToDataChannel(t *testing.T) {
	type received struct {
		jobID, key string
		cols       []string
		rows       [][]any
	}
	got := make(chan received, 1)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		rd, wr := io.Pipe()
		go func() {
			for {
				_, msg, err := ws.ReadMessage()
				if err != nil {
					_ = wr.Close()
					return
				}
				_, _ = wr.Write(msg)
			}
		}()

		res := received{jobID: r.URL.Query().Get("job_id"), key: r.Header.Get("X-Agent-Key")}
		dec := gob.NewDecoder(rd)
		_ = dec.Decode(&res.cols)
		for {
			var row []any
			if err := dec.Decode(&row); err != nil {
				break
			}
			res.rows = append(res.rows, row)
		}
		got <- res
	}))
	defer srv.Close()

	a := newAgent(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	a.idlePause = 10 * time.Millisecond

	jobs := make(chan JobCommand, 1)
	jobs <- signed(t, "s3cret", "job-42", "SELECT name FROM items ORDER BY id")
	close(jobs)
	a.run(context.Background(), jobs)

	select {
	case res := <-got:
		assert.Equal(t, "job-42", res.jobID)
		assert.Equal(t, "key-1", res.key)
		assert.Equal(t, []string{"name"}, res.cols)
		assert.Equal(t, [][]any{{"x"}, {"y"}}, res.rows)
	case <-time.After(5 * time.Second):
		t.Fatal("data channel received nothing")
	}
}

func TestRunPausesWhenIdle(t *testing.T) {
	a := newAgent(t, "ws://127.0.0.1:1")
	a.idlePause = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	jobs := make(chan JobCommand, 1)
	// Rejected job: still counts as activity and arms the idle timer.
	jobs <- JobCommand{ID: "bad", Query: "SELECT 1"}
	done := make(chan struct{})
	go func() {
		a.run(ctx, jobs)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	assert.True(t, a.conn.IsPaused())
	v, err := a.conn.FetchValue(context.Background(), "SELECT COUNT(*) FROM items")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.True(t, a.conn.IsConnected())
}

func TestServeJoinsJobLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	closeCode := make(chan int, 1)
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/agent/control", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		job := signedAt("s3cret", "job-7", "SELECT name FROM items")
		_ = ws.WriteJSON(job)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/agent/data", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				code := -1
				if ce, ok := err.(*websocket.CloseError); ok {
					code = ce.Code
				}
				closeCode <- code
				cancel()
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := newAgent(t, "ws"+strings.TrimPrefix(srv.URL, "http"))

	served := make(chan struct{})
	go func() {
		a.serve(ctx)
		close(served)
	}()

	select {
	case <-served:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	assert.Equal(t, websocket.CloseNormalClosure, <-closeCode, "job finished before serve returned")
	assert.NoError(t, a.conn.Close())
}

// signedAt is signed for use off the test goroutine.
func signedAt(secret, id, query string) JobCommand {
	ts := time.Now().Unix()
	sig, _ := security.SignJob(secret, id, query, nil, ts)
	return JobCommand{ID: id, Query: query, Timestamp: ts, Signature: sig}
}

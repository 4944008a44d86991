// Package worker runs export jobs on a fixed set of workers. Every worker
// owns one logical connection for its whole life and pauses it when idle.
package worker

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"fluxconn/internal/conn"
	"fluxconn/internal/exporter"
	"fluxconn/internal/security"
	"fluxconn/internal/storage"
)

var ErrStopped = errors.New("worker pool stopped")

// ConnFactory builds the connection a worker keeps.
type ConnFactory func(ctx context.Context) (*conn.Conn, error)

type Config struct {
	Workers int
	// MaxDBConcurrency caps jobs talking to the database at once.
	MaxDBConcurrency int64
	// QueueSize bounds pending jobs. Zero means 100.
	QueueSize int
	Connect   ConnFactory
	Storage   storage.Provider
	// Compress gzips stored files.
	Compress bool
	// IdlePause pauses a worker's connection after this long without a job.
	// Zero keeps connections open.
	IdlePause time.Duration
	// ReadOnly rejects anything but a single SELECT.
	ReadOnly bool
	Logger   *slog.Logger
}

// Pool manages concurrent export jobs and limits database load.
type Pool struct {
	cfg    Config
	queue  chan *ExportJob
	dbSem  *semaphore.Weighted
	logger *slog.Logger

	mu      sync.RWMutex
	stopped bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewPool does not start the workers; call Start.
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxDBConcurrency <= 0 {
		cfg.MaxDBConcurrency = int64(cfg.Workers)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:    cfg,
		queue:  make(chan *ExportJob, cfg.QueueSize),
		dbSem:  semaphore.NewWeighted(cfg.MaxDBConcurrency),
		logger: logger,
		quit:   make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	p.logger.Info("Worker pool started", "workers", p.cfg.Workers, "idle_pause", p.cfg.IdlePause)
}

// Submit queues job. It returns false when the queue is full or the pool
// has stopped.
func (p *Pool) Submit(job *ExportJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.queue <- job:
		return true
	default:
		return false
	}
}

// Stop lets running jobs finish, fails the queued ones with ErrStopped and
// closes every worker connection.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()

	p.wg.Wait()
	for {
		select {
		case job := <-p.queue:
			job.finish(ErrStopped)
		default:
			p.logger.Info("Worker pool stopped")
			return
		}
	}
}

type worker struct {
	id   int
	conn *conn.Conn
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()
	w := &worker{id: id}
	defer p.closeConn(w)

	var idle *time.Timer
	var idleC <-chan time.Time
	stopIdle := func() {
		if idle != nil {
			idle.Stop()
			idle, idleC = nil, nil
		}
	}
	defer stopIdle()

	for {
		select {
		case job := <-p.queue:
			stopIdle()
			p.processJob(w, job)
			if p.cfg.IdlePause > 0 && w.conn != nil {
				idle = time.NewTimer(p.cfg.IdlePause)
				idleC = idle.C
			}
		case <-idleC:
			idle, idleC = nil, nil
			p.pauseConn(w)
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) pauseConn(w *worker) {
	if w.conn == nil || !w.conn.IsConnected() {
		return
	}
	if err := w.conn.Pause(); err != nil {
		p.logger.Warn("Pausing idle connection failed", "worker_id", w.id, "error", err)
		return
	}
	p.logger.Debug("Idle connection paused", "worker_id", w.id)
}

func (p *Pool) closeConn(w *worker) {
	if w.conn == nil {
		return
	}
	if err := w.conn.Close(); err != nil {
		p.logger.Warn("Closing worker connection failed", "worker_id", w.id, "error", err)
	}
}

func (p *Pool) processJob(w *worker, job *ExportJob) {
	job.Started = time.Now()
	job.Status = StatusProcessing
	p.logger.Info("Processing job", "worker_id", w.id, "job_id", job.ID, "wait", job.Started.Sub(job.Submitted))

	if p.cfg.ReadOnly {
		if err := security.ValidateQuery(job.Query); err != nil {
			p.failJob(job, fmt.Errorf("query rejected: %w", err))
			return
		}
	}

	if err := p.dbSem.Acquire(job.ctx, 1); err != nil {
		p.failJob(job, fmt.Errorf("failed to acquire db slot: %w", err))
		return
	}
	err := p.executeExport(w, job)
	p.dbSem.Release(1)

	if err != nil {
		p.failJob(job, err)
		return
	}
	job.finish(nil)
	p.logger.Info("Job completed", "job_id", job.ID, "rows", job.Stats.RowsProcessed,
		"query_duration", job.Stats.Duration, "key", job.Key)
}

func (p *Pool) connFor(ctx context.Context, w *worker) (*conn.Conn, error) {
	if w.conn != nil {
		return w.conn, nil
	}
	if p.cfg.Connect == nil {
		return nil, conn.ErrNoDriver
	}
	c, err := p.cfg.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("open worker connection: %w", err)
	}
	w.conn = c
	return c, nil
}

// executeExport runs DB -> encoder -> [gzip] -> storage.
func (p *Pool) executeExport(w *worker, job *ExportJob) error {
	c, err := p.connFor(job.ctx, w)
	if err != nil {
		return err
	}

	job.Key = fmt.Sprintf("exports/%s.%s", job.ID, exporter.Extension(job.Format))
	if p.cfg.Compress {
		job.Key += ".gz"
	}

	upload, err := p.cfg.Storage.Create(job.ctx, job.Key)
	if err != nil {
		return fmt.Errorf("storage create failed: %w", err)
	}

	var out io.Writer = upload
	var gz *gzip.Writer
	if p.cfg.Compress {
		gz = gzip.NewWriter(upload)
		out = gz
	}

	enc, err := exporter.NewEncoder(job.Format, out)
	if err != nil {
		_ = upload.Close()
		_ = upload.Wait()
		return err
	}

	stats, exportErr := exporter.Query(job.ctx, c, enc, job.Query, job.Args...)
	closeErr := enc.Close()
	var gzErr error
	if gz != nil {
		gzErr = gz.Close()
	}
	storeErr := upload.Close()
	uploadErr := upload.Wait()

	switch {
	case exportErr != nil:
		return fmt.Errorf("export failed: %w", exportErr)
	case closeErr != nil:
		return fmt.Errorf("encoder close failed: %w", closeErr)
	case gzErr != nil:
		return fmt.Errorf("gzip close failed: %w", gzErr)
	case storeErr != nil:
		return fmt.Errorf("storage close failed: %w", storeErr)
	case uploadErr != nil:
		return fmt.Errorf("upload failed: %w", uploadErr)
	}
	job.Stats = stats
	return nil
}

func (p *Pool) failJob(job *ExportJob, err error) {
	job.finish(err)
	p.logger.Error("Job failed", "job_id", job.ID, "error", err)
}

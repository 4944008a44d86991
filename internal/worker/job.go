package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fluxconn/internal/exporter"
)

type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// ExportJob is one query exported to one stored file.
type ExportJob struct {
	// ID is a UUID v4, also used to name the stored file.
	ID    string
	Query string
	Args  []any
	// Format is an exporter format name; empty means csv.
	Format string
	// Key is where the file was stored, set once processing starts.
	Key string

	Submitted time.Time
	Started   time.Time
	Finished  time.Time
	Status    JobStatus
	Err       error
	Stats     *exporter.ExportResult

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExportJob builds a pending job bounded by timeout.
func NewExportJob(query, format string, timeout time.Duration, args ...any) *ExportJob {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	if format == "" {
		format = "csv"
	}
	return &ExportJob{
		ID:        uuid.New().String(),
		Query:     query,
		Args:      args,
		Format:    format,
		Submitted: time.Now(),
		Status:    StatusPending,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Cancel aborts the job if it has not finished yet.
func (j *ExportJob) Cancel() {
	j.cancel()
}

// Wait blocks until the job has finished and returns its error.
func (j *ExportJob) Wait() error {
	<-j.done
	return j.Err
}

func (j *ExportJob) finish(err error) {
	j.Finished = time.Now()
	j.Err = err
	if err != nil {
		j.Status = StatusFailed
	} else {
		j.Status = StatusCompleted
	}
	j.cancel()
	close(j.done)
}

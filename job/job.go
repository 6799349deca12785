// Package job runs long-running work off the request path. Submission is
// cheap and returns a pollable job id; a bounded worker pool does the actual
// work, and a watchdog guarantees no job stays non-terminal forever.
package job

import (
	"context"
	"errors"
	"time"

	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/tool"
)

// Status is a job's lifecycle state. The only legal transitions are
// pending -> running -> succeeded | failed. Terminal states never change.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

var (
	// ErrJobInFlight is returned by Submit while the session already has a
	// non-terminal job.
	ErrJobInFlight = errors.New("a job is already in flight for this session")
	// ErrJobNotFound is returned by Status for unknown or expired job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueFull is returned by Submit when the work queue is saturated.
	ErrQueueFull = errors.New("job queue is full")
	// ErrStopped is returned by Submit after the manager shut down.
	ErrStopped = errors.New("job manager is stopped")
)

// Task is the unit of work a job executes. The context carries the per-job
// deadline; tasks must honor it.
type Task func(ctx context.Context) (*tool.Result, error)

// Job is a status-table row. Snapshots returned by the manager are copies;
// mutating them has no effect on the table.
type Job struct {
	ID          string
	SessionID   string
	Status      Status
	Result      *tool.Result
	ErrorCode   core.Code
	ErrorDetail string
	Created     time.Time
	Started     time.Time
	Finished    time.Time
}

func (j *Job) snapshot() *Job {
	cp := *j
	return &cp
}

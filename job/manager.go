package job

import (
	"context"
	"sync"
	"time"

	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/logging"
	"github.com/rosterflow/rosterflow/tool"
)

// Options holds configuration overrides passed to NewManager.
type Options struct {
	// Workers bounds how many jobs run concurrently.
	Workers int
	// QueueSize sets the submission buffer; Submit fails fast when full.
	QueueSize int
	// JobTimeout bounds a single job's execution via its context.
	JobTimeout time.Duration
	// WatchdogGrace is how long past JobTimeout a running job may linger
	// before the watchdog forces it to failed. Covers tasks that ignore
	// their context.
	WatchdogGrace time.Duration
	// Retention is how long terminal jobs stay pollable before GC.
	Retention time.Duration
	// SweepInterval is the watchdog and GC cadence.
	SweepInterval time.Duration
	// Logger receives job transition logs.
	Logger logging.Logger
}

// Manager owns the status table and the worker pool. All public methods are
// safe for concurrent use.
type Manager struct {
	workers       int
	jobTimeout    time.Duration
	watchdogGrace time.Duration
	retention     time.Duration
	sweepInterval time.Duration
	logger        logging.Logger

	mu        sync.RWMutex
	jobs      map[string]*Job
	bySession map[string]string

	queue   chan submission
	stop    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

type submission struct {
	jobID string
	task  Task
}

// NewManager constructs a stopped manager with optional overrides; call
// Start before submitting.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{
		Workers:       4,
		QueueSize:     64,
		JobTimeout:    2 * time.Minute,
		WatchdogGrace: 30 * time.Second,
		Retention:     15 * time.Minute,
		SweepInterval: 10 * time.Second,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Manager{
		workers:       opts.Workers,
		jobTimeout:    opts.JobTimeout,
		watchdogGrace: opts.WatchdogGrace,
		retention:     opts.Retention,
		sweepInterval: opts.SweepInterval,
		logger:        opts.Logger,
		jobs:          make(map[string]*Job),
		bySession:     make(map[string]string),
		queue:         make(chan submission, opts.QueueSize),
		stop:          make(chan struct{}),
	}
}

// Start launches the worker pool and the watchdog.
func (m *Manager) Start() {
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	m.wg.Add(1)
	go m.sweeper()
}

// Stop drains no further work and waits for idle workers. Jobs already
// running keep running until they finish or time out.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()
	close(m.stop)
	m.wg.Wait()
}

// Submit enqueues a task for the session and returns the pending job
// snapshot. It never blocks on the work itself: a saturated queue or an
// in-flight job for the same session fails immediately.
func (m *Manager) Submit(sessionID string, task Task) (*Job, error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrStopped
	}
	if existingID, ok := m.bySession[sessionID]; ok {
		if existing := m.jobs[existingID]; existing != nil && !existing.Status.Terminal() {
			m.mu.Unlock()
			return nil, ErrJobInFlight
		}
	}
	j := &Job{
		ID:        core.NewID(),
		SessionID: sessionID,
		Status:    StatusPending,
		Created:   time.Now().UTC(),
	}
	m.jobs[j.ID] = j
	m.bySession[sessionID] = j.ID
	snap := j.snapshot()
	m.mu.Unlock()

	select {
	case m.queue <- submission{jobID: j.ID, task: task}:
		m.logger.Info("job submitted", "job_id", j.ID, "session_id", sessionID)
		return snap, nil
	default:
		m.mu.Lock()
		delete(m.jobs, j.ID)
		delete(m.bySession, sessionID)
		m.mu.Unlock()
		return nil, ErrQueueFull
	}
}

// Status returns a snapshot of the job or ErrJobNotFound.
func (m *Manager) Status(jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.snapshot(), nil
}

// ActiveJob returns the session's non-terminal job, if any.
func (m *Manager) ActiveJob(sessionID string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySession[sessionID]
	if !ok {
		return nil, false
	}
	j, ok := m.jobs[id]
	if !ok || j.Status.Terminal() {
		return nil, false
	}
	return j.snapshot(), true
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case sub := <-m.queue:
			m.run(sub)
		}
	}
}

func (m *Manager) run(sub submission) {
	if !m.transition(sub.jobID, StatusRunning, nil, "", "") {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.jobTimeout)
	defer cancel()

	result, err := sub.task(ctx)
	switch {
	case err != nil:
		code := core.CodeOf(err)
		if ctx.Err() == context.DeadlineExceeded {
			code = core.CodeAsyncTimeout
		}
		m.transition(sub.jobID, StatusFailed, nil, code, err.Error())
	case result != nil && result.Status == tool.StatusError:
		m.transition(sub.jobID, StatusFailed, result, result.ErrorCode, result.ErrorDetail)
	default:
		m.transition(sub.jobID, StatusSucceeded, result, "", "")
	}
}

// transition applies a status change unless the job is already terminal.
// Reports whether the change took effect.
func (m *Manager) transition(jobID string, next Status, result *tool.Result, code core.Code, detail string) bool {
	m.mu.Lock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status.Terminal() {
		m.mu.Unlock()
		return false
	}
	now := time.Now().UTC()
	j.Status = next
	switch next {
	case StatusRunning:
		j.Started = now
	case StatusSucceeded, StatusFailed:
		j.Finished = now
		j.Result = result
		j.ErrorCode = code
		j.ErrorDetail = detail
	}
	sessionID := j.SessionID
	m.mu.Unlock()

	if next == StatusFailed {
		m.logger.Warn("job transition", "job_id", jobID, "session_id", sessionID, "status", string(next), "error_code", string(code))
	} else {
		m.logger.Info("job transition", "job_id", jobID, "session_id", sessionID, "status", string(next))
	}
	return true
}

// sweeper is the watchdog and GC loop.
func (m *Manager) sweeper() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep(time.Now().UTC())
		}
	}
}

// sweep forces overdue running jobs to failed and drops terminal jobs past
// retention. Exposed to tests via sweepNow.
func (m *Manager) sweep(now time.Time) {
	deadline := m.jobTimeout + m.watchdogGrace

	m.mu.Lock()
	var overdue []string
	for id, j := range m.jobs {
		switch {
		case j.Status == StatusRunning && now.Sub(j.Started) > deadline:
			overdue = append(overdue, id)
		case j.Status.Terminal() && now.Sub(j.Finished) > m.retention:
			delete(m.jobs, id)
			if m.bySession[j.SessionID] == id {
				delete(m.bySession, j.SessionID)
			}
		}
	}
	m.mu.Unlock()

	for _, id := range overdue {
		m.transition(id, StatusFailed, nil, core.CodeAsyncTimeout, "job exceeded its deadline and was abandoned")
	}
}

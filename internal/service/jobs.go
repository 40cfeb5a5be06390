package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"docflow/internal/auth"
)

// JobKind names the work a job performs.
type JobKind string

const JobAnalyzeAll JobKind = "analyze_all"

// JobState is the lifecycle of a server-owned job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
	JobStopped   JobState = "stopped"
)

// Terminal reports whether the job will not change state again.
func (s JobState) Terminal() bool {
	return s != JobQueued && s != JobRunning
}

// Job is a snapshot of a background run.
type Job struct {
	ID         string           `json:"id"`
	Kind       JobKind          `json:"kind"`
	State      JobState         `json:"state"`
	Progress   AnalyzeAllResult `json:"progress"`
	Error      string           `json:"error,omitempty"`
	CreatedBy  string           `json:"created_by"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// JobService starts and tracks background jobs.
type JobService interface {
	Submit(ctx context.Context, kind JobKind) (Job, error)
	Poll(id string) (Job, error)
	Cancel(id string) (Job, error)
}

var _ JobService = (*JobManager)(nil)

// JobConfig configures the worker pool.
type JobConfig struct {
	Workers    int
	BufferSize int
	// Retain bounds how many finished jobs are kept for polling.
	Retain int
	Logger *zap.Logger
}

type jobEntry struct {
	job    Job
	caller auth.Caller
	cancel context.CancelFunc
}

// JobManager runs bulk jobs on an in-memory goroutine pool so a client can start a
// long run, poll it and cancel it without holding a request open.
type JobManager struct {
	bulk    BulkService
	workers int
	retain  int
	log     *zap.Logger
	now     func() time.Time

	queue    chan *jobEntry
	ctx      context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	jobs     map[string]*jobEntry
	finished []string
}

// NewJobManager builds a manager. Call Start before Submit.
func NewJobManager(bulk BulkService, cfg JobConfig) *JobManager {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.Retain <= 0 {
		cfg.Retain = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &JobManager{
		bulk:    bulk,
		workers: cfg.Workers,
		retain:  cfg.Retain,
		log:     cfg.Logger,
		now:     func() time.Time { return time.Now().UTC() },
		queue:   make(chan *jobEntry, cfg.BufferSize),
		jobs:    make(map[string]*jobEntry),
	}
}

// Start launches the workers. Safe to call once.
func (m *JobManager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.ctx, m.stop = context.WithCancel(ctx)
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	m.started = true
	m.log.Info("job workers started", zap.Int("workers", m.workers))
}

// Stop cancels running jobs and waits for the workers to exit.
func (m *JobManager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.stop()
	m.mu.Unlock()
	m.wg.Wait()
	m.log.Info("job workers stopped")
}

// Submit queues a job of kind on behalf of the caller in ctx.
func (m *JobManager) Submit(ctx context.Context, kind JobKind) (Job, error) {
	if kind != JobAnalyzeAll {
		return Job{}, fmt.Errorf("%w: unknown job kind %q", ErrValidation, kind)
	}
	caller := auth.CallerOrSystem(ctx)
	e := &jobEntry{
		caller: caller,
		job: Job{
			ID:        newID(),
			Kind:      kind,
			State:     JobQueued,
			CreatedBy: caller.UserID,
			CreatedAt: m.now(),
		},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return Job{}, errors.New("job manager not started")
	}
	if m.ctx.Err() != nil {
		return Job{}, fmt.Errorf("job manager stopped: %w", m.ctx.Err())
	}
	select {
	case m.queue <- e:
	default:
		return Job{}, fmt.Errorf("%w: job queue is full", ErrConflict)
	}
	m.jobs[e.job.ID] = e
	return e.job, nil
}

// Poll returns the current snapshot of job id.
func (m *JobManager) Poll(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return e.job, nil
}

// Cancel stops a queued or running job. A running job ends at the next chunk boundary.
func (m *JobManager) Cancel(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	switch e.job.State {
	case JobQueued:
		m.finishLocked(e, JobCancelled, "")
	case JobRunning:
		e.cancel()
	default:
		return e.job, fmt.Errorf("%w: job %s already %s", ErrConflict, id, e.job.State)
	}
	return e.job, nil
}

func (m *JobManager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case e := <-m.queue:
			m.run(e)
		}
	}
}

func (m *JobManager) run(e *jobEntry) {
	m.mu.Lock()
	if e.job.State != JobQueued {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(auth.WithCaller(m.ctx, e.caller))
	defer cancel()
	e.cancel = cancel
	started := m.now()
	e.job.State = JobRunning
	e.job.StartedAt = &started
	m.mu.Unlock()

	m.log.Info("job started", zap.String("job_id", e.job.ID), zap.String("kind", string(e.job.Kind)))
	res, err := m.bulk.RunAnalyzeAll(ctx, func(p AnalyzeAllResult) {
		m.mu.Lock()
		e.job.Progress = p
		m.mu.Unlock()
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if res != nil {
		e.job.Progress = *res
	}
	switch {
	case err == nil:
		m.finishLocked(e, JobSucceeded, "")
	case errors.Is(err, ErrCircuitBreakerStop):
		m.finishLocked(e, JobStopped, err.Error())
	case errors.Is(err, context.Canceled):
		m.finishLocked(e, JobCancelled, err.Error())
	default:
		m.finishLocked(e, JobFailed, err.Error())
	}
	m.log.Info("job finished",
		zap.String("job_id", e.job.ID),
		zap.String("state", string(e.job.State)),
		zap.Int("analyzed", e.job.Progress.Analyzed),
		zap.Int("failed", e.job.Progress.Failed),
		zap.Int("errors", e.job.Progress.Errors),
	)
}

// finishLocked moves e to a terminal state and evicts the oldest finished jobs past the retention bound.
func (m *JobManager) finishLocked(e *jobEntry, state JobState, msg string) {
	now := m.now()
	e.job.State = state
	e.job.Error = msg
	e.job.FinishedAt = &now

	m.finished = append(m.finished, e.job.ID)
	for len(m.finished) > m.retain {
		delete(m.jobs, m.finished[0])
		m.finished = m.finished[1:]
	}
}

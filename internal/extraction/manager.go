package extraction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/jonathan/talent-match/internal/logger"
	"github.com/jonathan/talent-match/internal/types"
)

// ErrManagerClosed is returned by Submit after Close.
var ErrManagerClosed = errors.New("extraction manager is closed")

// JobState is the lifecycle state of an asynchronous extraction.
type JobState string

// Job states. A finished job carries its draft, whatever the outcome.
const (
	JobPending JobState = "pending"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
)

// Job is a snapshot of an asynchronous extraction.
type Job struct {
	ID          string                 `json:"id"`
	State       JobState               `json:"state"`
	Mode        Mode                   `json:"mode"`
	Draft       *types.ExtractionDraft `json:"draft,omitempty"`
	SubmittedAt time.Time              `json:"submittedAt"`
	FinishedAt  *time.Time             `json:"finishedAt,omitempty"`
}

// ManagerConfig bounds the asynchronous surface.
type ManagerConfig struct {
	Concurrency int64         `mapstructure:"concurrency"`
	ResultTTL   time.Duration `mapstructure:"result_ttl"`
}

// Manager runs extractions in the background. Finished jobs stay readable
// for ResultTTL.
type Manager struct {
	pipeline *Pipeline
	jobs     *cache.Cache
	sem      *semaphore.Weighted
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
	base    context.Context
	stop    context.CancelFunc
}

// NewManager creates a Manager around p.
func NewManager(p *Pipeline, cfg ManagerConfig, log *zap.Logger) *Manager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 15 * time.Minute
	}
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		pipeline: p,
		jobs:     cache.New(cfg.ResultTTL, 2*cfg.ResultTTL),
		sem:      semaphore.NewWeighted(cfg.Concurrency),
		ttl:      cfg.ResultTTL,
		logger:   logger.Named(log, "extraction_jobs"),
		now:      time.Now,
		cancels:  make(map[string]context.CancelFunc),
		base:     base,
		stop:     stop,
	}
}

// Submit queues an extraction and returns its job id. An empty mode uses the
// pipeline default.
func (m *Manager) Submit(ref DocumentRef, mode Mode, timeout time.Duration) (string, error) {
	if mode == "" {
		mode = m.pipeline.DefaultMode()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(m.base)
	job := &Job{ID: id, State: JobPending, Mode: mode, SubmittedAt: m.now()}
	m.jobs.Set(id, job, cache.NoExpiration)
	m.cancels[id] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ctx, id, ref, mode, timeout)
	m.logger.Debug("extraction submitted", zap.String("job_id", id), zap.String("mode", string(mode)))
	return id, nil
}

func (m *Manager) run(ctx context.Context, id string, ref DocumentRef, mode Mode, timeout time.Duration) {
	defer m.wg.Done()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(id, &types.ExtractionDraft{
			Status:    types.ExtractionCancelled,
			Extractor: string(mode),
			Message:   "extraction cancelled",
		})
		return
	}
	defer m.sem.Release(1)

	if !m.start(id) {
		return
	}
	m.finish(id, m.pipeline.ExtractMode(ctx, ref, mode, timeout))
}

func (m *Manager) lookup(id string) (*Job, bool) {
	v, ok := m.jobs.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Job), true
}

func (m *Manager) start(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.lookup(id)
	if !ok || job.State != JobPending {
		return false
	}
	job.State = JobRunning
	return true
}

// finish records the outcome unless the job already ended.
func (m *Manager) finish(id string, draft *types.ExtractionDraft) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
	job, ok := m.lookup(id)
	if !ok || job.State == JobDone {
		return
	}
	finished := m.now()
	job.State = JobDone
	job.Draft = draft
	job.FinishedAt = &finished
	m.jobs.Set(id, job, m.ttl)
}

func snapshot(job *Job) Job {
	out := *job
	if job.Draft != nil {
		out.Draft = cloneDraft(job.Draft)
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// Get returns a snapshot of a job.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.lookup(id)
	if !ok {
		return Job{}, false
	}
	return snapshot(job), true
}

// Cancel stops a job. A pending job ends immediately as cancelled; a running
// job ends as cancelled once the pipeline observes it. The boolean is false
// when the job is unknown.
func (m *Manager) Cancel(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.lookup(id)
	if !ok {
		return Job{}, false
	}
	if cancel, ok := m.cancels[id]; ok {
		cancel()
	}
	if job.State == JobPending {
		finished := m.now()
		job.State = JobDone
		job.Draft = &types.ExtractionDraft{
			Status:    types.ExtractionCancelled,
			Extractor: string(job.Mode),
			Message:   "extraction cancelled",
		}
		job.FinishedAt = &finished
		m.jobs.Set(id, job, m.ttl)
	}
	return snapshot(job), true
}

// Close cancels every job and waits for workers to exit or ctx to end.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

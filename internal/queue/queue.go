package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shopifyapp/internal/metrics"
	"shopifyapp/pkg/config"
)

// DefaultQueue receives jobs dispatched to an unknown queue name.
const DefaultQueue = "default"

var ErrQueueFull = errors.New("queue full")

// Job is a unit of background work.
type Job interface {
	Name() string
	Handle(ctx context.Context) error
}

// Dispatcher hands jobs to background workers or runs them inline.
type Dispatcher interface {
	Dispatch(job Job, queue string) error
	DispatchNow(ctx context.Context, job Job) error
}

type task struct {
	id  string
	job Job
}

type pool struct {
	name string
	jobs chan task
	n    int
}

// Manager runs one small worker pool per named queue. Submissions never
// block: a saturated queue drops the job and reports ErrQueueFull.
type Manager struct {
	pools   map[string]*pool
	timeout time.Duration
	log     zerolog.Logger

	wg   sync.WaitGroup
	quit chan struct{}
	once sync.Once
}

var _ Dispatcher = (*Manager)(nil)

func NewManager(cfg config.JobsConfig, log zerolog.Logger) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	m := &Manager{
		pools:   map[string]*pool{},
		timeout: cfg.Timeout,
		log:     log,
		quit:    make(chan struct{}),
	}
	for _, name := range []string{DefaultQueue, cfg.WebhooksQueue, cfg.ScriptTagsQueue} {
		if name == "" {
			continue
		}
		if _, ok := m.pools[name]; !ok {
			m.pools[name] = &pool{name: name, jobs: make(chan task, workers*4), n: workers}
		}
	}
	return m
}

func (m *Manager) Start(ctx context.Context) {
	for _, p := range m.pools {
		for i := 0; i < p.n; i++ {
			m.wg.Add(1)
			go func(p *pool) {
				defer m.wg.Done()
				for {
					select {
					case <-ctx.Done():
						return
					case <-m.quit:
						return
					case t := <-p.jobs:
						_ = m.run(ctx, p.name, t)
					}
				}
			}(p)
		}
	}
}

// Stop signals the workers and waits for running jobs to return. Jobs still
// queued are discarded.
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.quit) })
	m.wg.Wait()
}

func (m *Manager) Dispatch(job Job, queue string) error {
	if job == nil {
		return errors.New("nil job")
	}
	p, ok := m.pools[queue]
	if !ok {
		p = m.pools[DefaultQueue]
	}
	t := task{id: uuid.NewString(), job: job}
	select {
	case p.jobs <- t:
		m.log.Debug().Str("queue", p.name).Str("job", job.Name()).Str("job_id", t.id).Msg("job queued")
		return nil
	default:
		metrics.IncJob(p.name, job.Name(), "dropped")
		return fmt.Errorf("%s: %w", p.name, ErrQueueFull)
	}
}

// DispatchNow runs job on the caller's goroutine.
func (m *Manager) DispatchNow(ctx context.Context, job Job) error {
	return m.run(ctx, "sync", task{id: uuid.NewString(), job: job})
}

func (m *Manager) run(ctx context.Context, queue string, t task) (err error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	log := m.log.With().Str("queue", queue).Str("job", t.job.Name()).Str("job_id", t.id).Logger()
	ctx = log.WithContext(ctx)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", t.job.Name(), r)
		}
		status := "completed"
		if err != nil {
			status = "failed"
			log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		} else {
			log.Info().Dur("duration", time.Since(start)).Msg("job done")
		}
		metrics.IncJob(queue, t.job.Name(), status)
	}()

	return t.job.Handle(ctx)
}

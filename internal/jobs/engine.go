package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduler/internal/clock"
	redisclient "github.com/hackgods/clinic-scheduler/internal/redis"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 100
)

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	next     time.Time
}

// Engine dispatches due one-shot jobs to handlers registered by kind and ticks
// recurring tasks. Recurring tasks run under the locker, when one is set, so that
// only one engine in a fleet executes a given task per tick.
type Engine struct {
	store        Store
	clock        clock.Clock
	logger       zerolog.Logger
	locker       redisclient.Locker
	pollInterval time.Duration
	batchSize    int

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	tasks    []*task
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLocker(l redisclient.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func NewEngine(store Store, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		clock:        clock.System(),
		logger:       logger.With().Str("component", "jobs").Logger(),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		handlers:     make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schedule stores job for later dispatch, replacing any pending job with the same id.
func (e *Engine) Schedule(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	job.FireAt = clock.UTC(job.FireAt)
	return e.store.Put(ctx, job)
}

// Cancel drops a pending job. Cancelling an unknown id is not an error.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	return e.store.Remove(ctx, id)
}

// Handle registers the handler for a job kind, replacing any previous one.
func (e *Engine) Handle(kind string, h HandlerFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = h
}

// Every registers a recurring task. The first run happens on the first tick.
func (e *Engine) Every(name string, interval time.Duration, fn TaskFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, &task{name: name, interval: interval, fn: fn})
}

// RunDue claims every job due at the current instant and dispatches it. It returns the
// number of jobs handed to a handler. Handler failures are logged; the job is not retried.
func (e *Engine) RunDue(ctx context.Context) (int, error) {
	dispatched := 0
	for {
		due, err := e.store.ClaimDue(ctx, e.clock.Now(), e.batchSize)
		for _, job := range due {
			e.dispatch(ctx, job)
			dispatched++
		}
		if errors.Is(err, ErrUndecodableJob) {
			e.logger.Error().Err(err).Msg("dropped undecodable jobs")
			err = nil
		}
		if err != nil {
			return dispatched, fmt.Errorf("claim due jobs: %w", err)
		}

		if len(due) < e.batchSize {
			return dispatched, nil
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, job Job) {
	e.mu.RLock()
	h, ok := e.handlers[job.Kind]
	e.mu.RUnlock()

	log := e.logger.With().Str("job_id", job.ID).Str("kind", job.Kind).Logger()
	if !ok {
		log.Warn().Msg("no handler registered, dropping job")
		return
	}

	start := time.Now()
	if err := h(ctx, job); err != nil {
		log.Error().Err(err).Msg("job failed")
		return
	}
	log.Debug().Dur("took", time.Since(start)).Msg("job done")
}

// RunRecurring executes every recurring task whose interval has elapsed.
func (e *Engine) RunRecurring(ctx context.Context) {
	now := e.clock.Now()

	e.mu.Lock()
	var ready []*task
	for _, t := range e.tasks {
		if t.next.IsZero() || !now.Before(t.next) {
			t.next = now.Add(t.interval)
			ready = append(ready, t)
		}
	}
	e.mu.Unlock()

	for _, t := range ready {
		e.runTask(ctx, t)
	}
}

func (e *Engine) runTask(ctx context.Context, t *task) {
	log := e.logger.With().Str("task", t.name).Logger()
	start := time.Now()

	var err error
	if e.locker != nil {
		err = e.locker.WithLock(ctx, t.name, t.fn)
	} else {
		err = t.fn(ctx)
	}

	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		log.Debug().Msg("held by another engine, skipping")
	case err != nil:
		log.Error().Err(err).Msg("task failed")
	default:
		log.Debug().Dur("took", time.Since(start)).Msg("task done")
	}
}

// Tick performs one full pass: due jobs first, then recurring tasks.
func (e *Engine) Tick(ctx context.Context) {
	if n, err := e.RunDue(ctx); err != nil {
		e.logger.Error().Err(err).Msg("dispatch due jobs")
	} else if n > 0 {
		e.logger.Info().Int("dispatched", n).Msg("dispatched due jobs")
	}
	e.RunRecurring(ctx)
}

// Run ticks immediately and then on every poll interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Dur("poll_interval", e.pollInterval).Msg("job engine started")

	e.Tick(ctx)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("job engine stopping")
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

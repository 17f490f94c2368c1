package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/infra/logging"
	"async-ask-bot/internal/usecase"
)

// JobRunner is what the dispatcher runs for each job id.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// JobStarter is a runner that can take the intake payload in memory.
type JobStarter interface {
	Start(ctx context.Context, params usecase.StartParams) error
}

// JobDispatcher turns job ids into pool tasks. A job id that is already queued or
// running is not queued again.
type JobDispatcher struct {
	pool   *Pool
	runner JobRunner
	log    *zerolog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewJobDispatcher(pool *Pool, runner JobRunner, log *zerolog.Logger) *JobDispatcher {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	l := log.With().Str("component", "job_dispatcher").Logger()
	return &JobDispatcher{pool: pool, runner: runner, log: &l, pending: make(map[string]struct{})}
}

func (d *JobDispatcher) Dispatch(jobID string) error {
	return d.submit(jobID, func(ctx context.Context) error { return d.runner.Run(ctx, jobID) })
}

// Handoff queues a fresh job together with its payload. Runners that are not
// JobStarters load the payload from the store instead.
func (d *JobDispatcher) Handoff(params usecase.StartParams) error {
	starter, ok := d.runner.(JobStarter)
	if !ok {
		return d.Dispatch(params.JobID)
	}
	return d.submit(params.JobID, func(ctx context.Context) error { return starter.Start(ctx, params) })
}

func (d *JobDispatcher) submit(jobID string, run func(ctx context.Context) error) error {
	d.mu.Lock()
	if _, ok := d.pending[jobID]; ok {
		d.mu.Unlock()
		return nil
	}
	d.pending[jobID] = struct{}{}
	d.mu.Unlock()

	err := d.pool.Submit(func(ctx context.Context) error {
		defer d.release(jobID)
		return d.process(ctx, jobID, run)
	})
	if err != nil {
		d.release(jobID)
		return err
	}
	return nil
}

func (d *JobDispatcher) release(jobID string) {
	d.mu.Lock()
	delete(d.pending, jobID)
	d.mu.Unlock()
}

// InFlight reports whether jobID is queued or running in this process.
func (d *JobDispatcher) InFlight(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[jobID]
	return ok
}

func (d *JobDispatcher) process(ctx context.Context, jobID string, run func(ctx context.Context) error) error {
	ctx = logging.WithJobID(ctx, jobID)
	log := logging.With(ctx, d.log)
	start := time.Now()

	err := run(ctx)
	switch {
	case err == nil:
		log.Info().Dur("duration", time.Since(start)).Msg("job run finished")
	case errors.Is(err, domain.ErrJobBusy):
		log.Debug().Msg("job is running elsewhere, skipped")
		return nil
	default:
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job run failed")
	}
	return err
}

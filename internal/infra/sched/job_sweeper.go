package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/infra/metrics"
)

// UnfinishedLister is the slice of the job store the sweeper reads.
type UnfinishedLister interface {
	ListUnfinished(ctx context.Context, olderThan time.Time, limit int) ([]*model.Job, error)
}

type Dispatcher interface {
	Dispatch(jobID string) error
}

// JobSweeper periodically re-dispatches PENDING and PROCESSING jobs that have not
// moved for a while: jobs dropped by a full queue or orphaned by a crashed process.
type JobSweeper struct {
	interval time.Duration
	minAge   time.Duration
	batch    int
	jobs     UnfinishedLister
	disp     Dispatcher
	now      func() time.Time
	log      *zerolog.Logger
}

func NewJobSweeper(interval, minAge time.Duration, batch int, jobs UnfinishedLister, disp Dispatcher, logger *zerolog.Logger) *JobSweeper {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	swLog := logger.With().Str("component", "JobSweeper").Logger()
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	return &JobSweeper{
		interval: interval,
		minAge:   minAge,
		batch:    batch,
		jobs:     jobs,
		disp:     disp,
		now:      time.Now,
		log:      &swLog,
	}
}

// Run sweeps once immediately, then every interval until ctx is done.
func (w *JobSweeper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("min_age", w.minAge).Msg("Starting job sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping job sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *JobSweeper) tick(ctx context.Context) {
	n, err := w.SweepOnce(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("job sweeper error")
	}
	if n > 0 {
		metrics.AddSweeperRedispatched(n)
		w.log.Info().Int("count", n).Msg("unfinished jobs re-dispatched")
	}
}

// SweepOnce dispatches up to one batch of stale unfinished jobs and returns how many
// were handed over. It stops early when the worker queue is full.
func (w *JobSweeper) SweepOnce(ctx context.Context) (int, error) {
	jobs, err := w.jobs.ListUnfinished(ctx, w.now().Add(-w.minAge), w.batch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range jobs {
		if err := w.disp.Dispatch(j.ID); err != nil {
			if errors.Is(err, domain.ErrQueueFull) {
				w.log.Warn().Int("remaining", len(jobs)-n).Msg("worker queue full, continuing next sweep")
				return n, nil
			}
			return n, err
		}
		n++
	}
	return n, nil
}

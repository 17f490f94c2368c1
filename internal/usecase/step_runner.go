package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/repository"
)

// RetryPolicy controls how often and how fast a failing step is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	StepTimeout time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// Backoff is the delay before attempt+1: BaseDelay doubled per attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// StepFunc is one step body. The returned string is recorded as the step output.
type StepFunc func(ctx context.Context) (string, error)

// StepFailedError reports a step that gave up, after retries or on a permanent error.
type StepFailedError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *StepFailedError) Unwrap() error { return e.Err }

// StepRunner executes named steps at most once per job: completed steps are
// read back from the step log instead of being run again.
type StepRunner struct {
	steps  repository.StepLog
	policy RetryPolicy
	obs    Observer
	log    *zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

func NewStepRunner(steps repository.StepLog, policy RetryPolicy, obs Observer, log *zerolog.Logger) *StepRunner {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	l := log.With().Str("component", "step_runner").Logger()
	return &StepRunner{
		steps:  steps,
		policy: policy.withDefaults(),
		obs:    observerOrNop(obs),
		log:    &l,
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

// Do runs step for jobID unless it is already checkpointed, in which case the recorded
// output is returned. Failures come back as *StepFailedError.
func (r *StepRunner) Do(ctx context.Context, jobID, step string, fn StepFunc) (string, error) {
	rec, err := r.lookup(ctx, jobID, step)
	if err != nil {
		return "", &StepFailedError{Step: step, Err: err}
	}
	if rec != nil {
		r.log.Debug().Str("job_id", jobID).Str("step", step).Msg("step already completed, replaying output")
		return rec.Output, nil
	}

	started := r.now()
	out, attempts, err := r.attempt(ctx, jobID, step, fn)
	if err != nil {
		r.obs.StepFinished(step, "failed", r.now().Sub(started))
		return "", &StepFailedError{Step: step, Attempts: attempts, Err: err}
	}

	if err := r.mark(ctx, &model.StepRecord{
		JobID:       jobID,
		Step:        step,
		Outcome:     model.StepOutcomeDone,
		Output:      out,
		Attempts:    attempts,
		CompletedAt: r.now().UTC(),
	}); err != nil {
		// The body ran; without the checkpoint a later run repeats it.
		return "", &StepFailedError{Step: step, Attempts: attempts, Err: err}
	}
	r.obs.StepFinished(step, string(model.StepOutcomeDone), r.now().Sub(started))
	return out, nil
}

// DoBestEffort runs a cleanup step. Failure is logged and recorded as skipped; it is
// never returned.
func (r *StepRunner) DoBestEffort(ctx context.Context, jobID, step string, fn func(ctx context.Context) error) {
	rec, err := r.lookup(ctx, jobID, step)
	if err == nil && rec != nil {
		return
	}

	started := r.now()
	_, attempts, err := r.attempt(ctx, jobID, step, func(ctx context.Context) (string, error) {
		return "", fn(ctx)
	})
	outcome := model.StepOutcomeDone
	rec = &model.StepRecord{JobID: jobID, Step: step, Attempts: attempts}
	if err != nil {
		outcome = model.StepOutcomeSkipped
		rec.Error = err.Error()
		r.log.Warn().Err(err).Str("job_id", jobID).Str("step", step).Msg("best-effort step failed, skipping")
	}
	rec.Outcome = outcome
	rec.CompletedAt = r.now().UTC()
	if err := r.mark(ctx, rec); err != nil {
		r.log.Warn().Err(err).Str("job_id", jobID).Str("step", step).Msg("could not record best-effort step")
	}
	r.obs.StepFinished(step, string(outcome), r.now().Sub(started))
}

func (r *StepRunner) attempt(ctx context.Context, jobID, step string, fn StepFunc) (string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		actx, cancel := r.attemptContext(ctx)
		out, err := fn(actx)
		cancel()
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err
		if domain.IsPermanent(err) || ctx.Err() != nil {
			return "", attempt, err
		}
		if attempt == r.policy.MaxAttempts {
			return "", attempt, err
		}
		delay := r.policy.Backoff(attempt)
		r.log.Warn().Err(err).Str("job_id", jobID).Str("step", step).
			Int("attempt", attempt).Dur("retry_in", delay).Msg("step attempt failed")
		if err := r.sleep(ctx, delay); err != nil {
			return "", attempt, errors.Join(lastErr, err)
		}
	}
	return "", r.policy.MaxAttempts, lastErr
}

func (r *StepRunner) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.policy.StepTimeout > 0 {
		return context.WithTimeout(ctx, r.policy.StepTimeout)
	}
	return context.WithCancel(ctx)
}

// lookup returns the checkpoint for step, or nil when the step has not completed.
// Step log outages are retried like step bodies.
func (r *StepRunner) lookup(ctx context.Context, jobID, step string) (*model.StepRecord, error) {
	var rec *model.StepRecord
	_, _, err := r.attempt(ctx, jobID, step+":lookup", func(ctx context.Context) (string, error) {
		got, err := r.steps.Get(ctx, jobID, step)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return "", nil
		case err != nil:
			return "", err
		}
		rec = got
		return "", nil
	})
	return rec, err
}

func (r *StepRunner) mark(ctx context.Context, rec *model.StepRecord) error {
	_, _, err := r.attempt(ctx, rec.JobID, rec.Step+":mark", func(ctx context.Context) (string, error) {
		return "", r.steps.Mark(ctx, rec)
	})
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

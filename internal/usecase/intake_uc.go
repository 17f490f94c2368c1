package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/repository"
)

// Compile-time check
var _ IntakeUseCase = (*intakeUC)(nil)

// IntakeUseCase accepts questions from the chat front-ends.
type IntakeUseCase interface {
	// Submit records a PENDING job and hands it to the pipeline. The job is returned
	// even when the hand-off is deferred to the sweeper.
	Submit(ctx context.Context, question, token string, target model.DeliveryTarget) (*model.Job, error)
	// Status returns the current job record.
	Status(ctx context.Context, jobID string) (*model.Job, error)
}

// Dispatcher schedules a pipeline run for a job without waiting for it.
type Dispatcher interface {
	Dispatch(jobID string) error
}

// Handoff is implemented by dispatchers that pass the intake payload straight to
// JobPipeline.Start, saving the pipeline a store read.
type Handoff interface {
	Handoff(params StartParams) error
}

type IntakeConfig struct {
	RateLimit  int // questions per requester per window; 0 disables
	RateWindow time.Duration
}

type intakeUC struct {
	jobs       repository.JobRepository
	dispatcher Dispatcher
	limiter    repository.RateLimiter
	cfg        IntakeConfig
	log        *zerolog.Logger
}

func NewIntakeUseCase(jobs repository.JobRepository, dispatcher Dispatcher, limiter repository.RateLimiter, cfg IntakeConfig, log *zerolog.Logger) *intakeUC {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	l := log.With().Str("component", "intake").Logger()
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &intakeUC{jobs: jobs, dispatcher: dispatcher, limiter: limiter, cfg: cfg, log: &l}
}

func rateKey(target model.DeliveryTarget) string {
	return fmt.Sprintf("rate_limit:ask:%s:%s", target.Channel, target.Requester.ID)
}

func (u *intakeUC) Submit(ctx context.Context, question, token string, target model.DeliveryTarget) (*model.Job, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if !model.KnownChannel(target.Channel) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownChannel, target.Channel)
	}

	if u.limiter != nil && u.cfg.RateLimit > 0 && target.Requester.ID != "" {
		ok, err := u.limiter.Allow(ctx, rateKey(target), u.cfg.RateLimit, u.cfg.RateWindow)
		switch {
		case err != nil:
			// limiter outage must not block intake
			u.log.Warn().Err(err).Str("channel", target.Channel).Msg("rate limiter unavailable")
		case !ok:
			return nil, domain.ErrRateLimited
		}
	}

	job := model.NewJob(ulid.Make().String(), token, question, target)
	if err := u.jobs.Create(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if u.dispatcher != nil {
		if err := u.dispatch(job); err != nil {
			lvl := u.log.Error()
			if errors.Is(err, domain.ErrQueueFull) {
				lvl = u.log.Warn()
			}
			lvl.Err(err).Str("job_id", job.ID).Msg("dispatch deferred, job left PENDING for the sweeper")
		}
	}

	u.log.Info().Str("job_id", job.ID).Str("channel", target.Channel).Msg("job accepted")
	return job, nil
}

func (u *intakeUC) dispatch(job *model.Job) error {
	if h, ok := u.dispatcher.(Handoff); ok {
		return h.Handoff(StartParams{JobID: job.ID, Question: job.Question, Token: job.Token, Target: job.Target})
	}
	return u.dispatcher.Dispatch(job.ID)
}

func (u *intakeUC) Status(ctx context.Context, jobID string) (*model.Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.jobs.FindByID(ctx, nil, jobID)
}

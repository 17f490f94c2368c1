package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/adapter"
	"async-ask-bot/internal/domain/ports/repository"
)

// Pipeline step names. They are the checkpoint keys in the step log and must not change.
const (
	StepUpdateStatusProcessing = "update-status-processing"
	StepGenerateAnswer         = "generate-answer"
	StepDeliverQuestion        = "deliver-question"
	StepDeliverAnswer          = "deliver-answer"
	StepRetractAcknowledgement = "retract-acknowledgement"
	StepUpdateStatusCompleted  = "update-status-completed"
)

// PipelineSteps lists the steps in execution order.
var PipelineSteps = []string{
	StepUpdateStatusProcessing,
	StepGenerateAnswer,
	StepDeliverQuestion,
	StepDeliverAnswer,
	StepRetractAcknowledgement,
	StepUpdateStatusCompleted,
}

// Compile-time check
var _ JobPipeline = (*jobPipeline)(nil)

type JobPipeline interface {
	// Run drives jobID from its current state to COMPLETED or FAILED, reading the
	// question and delivery target from the job record.
	Run(ctx context.Context, jobID string) error
	// Start is Run with the intake payload handed over in memory.
	Start(ctx context.Context, params StartParams) error
}

// StartParams is the intake hand-off for a freshly created job.
type StartParams struct {
	JobID    string
	Question string
	Token    string
	Target   model.DeliveryTarget
}

type PipelineConfig struct {
	LockTTL        time.Duration
	SystemIdentity model.Identity
}

type jobPipeline struct {
	jobs     repository.JobRepository
	runner   *StepRunner
	gen      AnswerGenerator
	delivery adapter.Delivery
	locker   repository.Locker
	cfg      PipelineConfig
	obs      Observer
	log      *zerolog.Logger
}

func NewJobPipeline(
	jobs repository.JobRepository,
	runner *StepRunner,
	gen AnswerGenerator,
	delivery adapter.Delivery,
	locker repository.Locker,
	cfg PipelineConfig,
	obs Observer,
	log *zerolog.Logger,
) *jobPipeline {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	l := log.With().Str("component", "pipeline").Logger()
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &jobPipeline{
		jobs:     jobs,
		runner:   runner,
		gen:      gen,
		delivery: delivery,
		locker:   locker,
		cfg:      cfg,
		obs:      observerOrNop(obs),
		log:      &l,
	}
}

func lockKey(jobID string) string { return "job:run:" + jobID }

func (p *jobPipeline) Run(ctx context.Context, jobID string) error {
	return p.execute(ctx, jobID, nil)
}

func (p *jobPipeline) Start(ctx context.Context, params StartParams) error {
	if params.JobID == "" {
		return domain.ErrInvalidArgument
	}
	return p.execute(ctx, params.JobID, func(job *model.Job) {
		job.Question = params.Question
		job.Token = params.Token
		job.Target = params.Target
	})
}

func (p *jobPipeline) execute(ctx context.Context, jobID string, override func(*model.Job)) error {
	if p.locker != nil {
		token, err := p.locker.TryLock(ctx, lockKey(jobID), p.cfg.LockTTL)
		if err != nil {
			return err
		}
		defer func() {
			// the run context may already be done; release with a fresh one
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := p.locker.Unlock(uctx, lockKey(jobID), token); err != nil {
				p.log.Warn().Err(err).Str("job_id", jobID).Msg("unlock failed")
			}
		}()
	}

	job, err := p.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		p.log.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("job already finished")
		return nil
	}
	if override != nil {
		override(job)
	}

	log := p.log.With().Str("job_id", jobID).Str("channel", job.Target.Channel).Logger()
	log.Info().Str("status", string(job.Status)).Msg("pipeline run started")

	if _, err := p.runner.Do(ctx, jobID, StepUpdateStatusProcessing, func(ctx context.Context) (string, error) {
		return "", p.setStatus(ctx, jobID, model.JobStatusProcessing)
	}); err != nil {
		return p.fail(ctx, &log, job, err)
	}

	answer, err := p.runner.Do(ctx, jobID, StepGenerateAnswer, func(ctx context.Context) (string, error) {
		return p.gen.Generate(ctx, job.Question)
	})
	if err != nil {
		return p.fail(ctx, &log, job, err)
	}

	if _, err := p.runner.Do(ctx, jobID, StepDeliverQuestion, func(ctx context.Context) (string, error) {
		return "", p.post(ctx, job.Target, job.Question, job.Target.Requester)
	}); err != nil {
		return p.fail(ctx, &log, job, err)
	}

	if _, err := p.runner.Do(ctx, jobID, StepDeliverAnswer, func(ctx context.Context) (string, error) {
		return "", p.post(ctx, job.Target, answer, p.cfg.SystemIdentity)
	}); err != nil {
		return p.fail(ctx, &log, job, err)
	}

	p.runner.DoBestEffort(ctx, jobID, StepRetractAcknowledgement, func(ctx context.Context) error {
		if job.Target.AckRef == "" {
			return nil
		}
		return p.delivery.RetractAcknowledgement(ctx, job.Target)
	})

	if _, err := p.runner.Do(ctx, jobID, StepUpdateStatusCompleted, func(ctx context.Context) (string, error) {
		return "", p.complete(ctx, jobID, model.JobStatusCompleted, answer)
	}); err != nil {
		return p.fail(ctx, &log, job, err)
	}

	p.obs.JobFinished(string(model.JobStatusCompleted))
	log.Info().Int("answer_len", utf8.RuneCountInString(answer)).Msg("pipeline run completed")
	return nil
}

func (p *jobPipeline) post(ctx context.Context, target model.DeliveryTarget, content string, as model.Identity) error {
	content = Truncate(content, p.delivery.ContentLimit(target))
	err := p.delivery.PostMessage(ctx, target, content, as)
	var de *adapter.DeliveryError
	if errors.As(err, &de) && !de.Transient() {
		return domain.Permanent(err)
	}
	if errors.Is(err, domain.ErrUnknownChannel) {
		return domain.Permanent(err)
	}
	return err
}

func (p *jobPipeline) setStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	err := p.jobs.SetStatus(ctx, nil, jobID, status)
	if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
		return domain.Permanent(err)
	}
	return err
}

func (p *jobPipeline) complete(ctx context.Context, jobID string, status model.JobStatus, result string) error {
	err := p.jobs.Complete(ctx, nil, jobID, status, result)
	if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
		return domain.Permanent(err)
	}
	return err
}

// fail marks the job FAILED. When the run was cancelled the job is left as is so the
// sweeper can resume it.
func (p *jobPipeline) fail(ctx context.Context, log *zerolog.Logger, job *model.Job, cause error) error {
	if ctx.Err() != nil {
		log.Warn().Err(cause).Msg("pipeline run interrupted, leaving job for recovery")
		return cause
	}
	log.Error().Err(cause).Msg("pipeline step failed, marking job FAILED")

	err := p.complete(ctx, job.ID, model.JobStatusFailed, "")
	for attempt := 1; err != nil && !domain.IsPermanent(err) && attempt < 3; attempt++ {
		if serr := sleepCtx(ctx, p.runner.policy.Backoff(attempt)); serr != nil {
			break
		}
		err = p.complete(ctx, job.ID, model.JobStatusFailed, "")
	}
	if err != nil {
		log.Error().Err(err).Msg("could not mark job FAILED")
		return errors.Join(cause, err)
	}
	p.obs.JobFinished(string(model.JobStatusFailed))
	return cause
}

// Truncate cuts s to at most limit runes. limit <= 0 disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

package repository

import (
	"context"
	"time"

	"async-ask-bot/internal/domain/model"
)

// JobRepository is the Job Record Store. Every write is keyed by job id and guarded
// by model.CanTransition, so concurrent or repeated writes never move a job backwards.
type JobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// SetStatus moves the job to status. Re-applying the current status is a no-op;
	// an illegal move returns domain.ErrInvalidTransition.
	SetStatus(ctx context.Context, tx Tx, id string, status model.JobStatus) error
	// Complete moves the job to a terminal status. result is stored only for
	// JobStatusCompleted and cleared otherwise.
	Complete(ctx context.Context, tx Tx, id string, status model.JobStatus, result string) error
	// ListUnfinished returns PENDING/PROCESSING jobs last updated before olderThan,
	// oldest first.
	ListUnfinished(ctx context.Context, olderThan time.Time, limit int) ([]*model.Job, error)
}

package repository

import (
	"context"

	"async-ask-bot/internal/domain/model"
)

// StepLog persists "step X finished for job Y" markers. A pipeline consults it before
// running a step and skips steps that already have a marker.
type StepLog interface {
	// Get returns domain.ErrNotFound when the step has no marker yet.
	Get(ctx context.Context, jobID, step string) (*model.StepRecord, error)
	// Mark records the step as finished. Marking an already-marked step keeps the first record.
	Mark(ctx context.Context, rec *model.StepRecord) error
	List(ctx context.Context, jobID string) ([]*model.StepRecord, error)
}

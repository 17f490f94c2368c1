// Package memory holds process-local implementations of the storage ports, used in
// dev mode and by tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.JobRepository = (*JobRepo)(nil)

type JobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	now  func() time.Time
}

func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]*model.Job), now: time.Now}
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}

func (r *JobRepo) Create(_ context.Context, _ repository.Tx, job *model.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *JobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (r *JobRepo) SetStatus(_ context.Context, _ repository.Tx, id string, status model.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !model.CanTransition(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Status, status)
	}
	if j.Status == status {
		return nil
	}
	j.Status = status
	j.UpdatedAt = r.now().UTC()
	return nil
}

func (r *JobRepo) Complete(_ context.Context, _ repository.Tx, id string, status model.JobStatus, result string) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal status", domain.ErrInvalidArgument, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !model.CanTransition(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Status, status)
	}
	if j.Status == status {
		return nil
	}
	j.Status = status
	j.Result = nil
	if status == model.JobStatusCompleted {
		res := result
		j.Result = &res
	}
	j.UpdatedAt = r.now().UTC()
	return nil
}

func (r *JobRepo) ListUnfinished(_ context.Context, olderThan time.Time, limit int) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, j := range r.jobs {
		if j.Status.Terminal() || j.UpdatedAt.After(olderThan) {
			continue
		}
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

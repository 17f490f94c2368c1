package memory

import (
	"context"
	"sort"
	"sync"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/repository"
)

var _ repository.StepLog = (*StepLog)(nil)

type StepLog struct {
	mu   sync.Mutex
	recs map[string]map[string]model.StepRecord
}

func NewStepLog() *StepLog {
	return &StepLog{recs: make(map[string]map[string]model.StepRecord)}
}

func (s *StepLog) Get(_ context.Context, jobID, step string) (*model.StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[jobID][step]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// Mark stores rec unless the step is already recorded; the first record wins.
func (s *StepLog) Mark(_ context.Context, rec *model.StepRecord) error {
	if rec == nil || rec.JobID == "" || rec.Step == "" {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byStep, ok := s.recs[rec.JobID]
	if !ok {
		byStep = make(map[string]model.StepRecord)
		s.recs[rec.JobID] = byStep
	}
	if _, done := byStep[rec.Step]; done {
		return nil
	}
	byStep[rec.Step] = *rec
	return nil
}

func (s *StepLog) List(_ context.Context, jobID string) ([]*model.StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.StepRecord, 0, len(s.recs[jobID]))
	for _, rec := range s.recs[jobID] {
		r := rec
		out = append(out, &r)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CompletedAt.Before(out[b].CompletedAt) })
	return out, nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/repository"
)

var _ repository.StepLog = (*StepLog)(nil)

// StepLog keeps one hash per job (field = step, value = JSON record). Records expire
// ttl after the last write.
type StepLog struct {
	cli *redis.Client
	ttl time.Duration
}

func NewStepLog(c *Client, ttl time.Duration) *StepLog {
	return &StepLog{cli: c.cli, ttl: ttl}
}

func stepKey(jobID string) string { return "job_steps:" + jobID }

func (s *StepLog) Get(ctx context.Context, jobID, step string) (*model.StepRecord, error) {
	data, err := s.cli.HGet(ctx, stepKey(jobID), step).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable("redis step log get", err)
	}
	var rec model.StepRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Mark uses HSETNX so the first record for a step wins.
func (s *StepLog) Mark(ctx context.Context, rec *model.StepRecord) error {
	if rec == nil || rec.JobID == "" || rec.Step == "" {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := stepKey(rec.JobID)
	pipe := s.cli.TxPipeline()
	pipe.HSetNX(ctx, key, rec.Step, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Unavailable("redis step log mark", err)
	}
	return nil
}

func (s *StepLog) List(ctx context.Context, jobID string) ([]*model.StepRecord, error) {
	all, err := s.cli.HGetAll(ctx, stepKey(jobID)).Result()
	if err != nil {
		return nil, domain.Unavailable("redis step log list", err)
	}
	out := make([]*model.StepRecord, 0, len(all))
	for _, data := range all {
		var rec model.StepRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CompletedAt.Before(out[b].CompletedAt) })
	return out, nil
}

package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/repository"
)

var _ repository.StepLog = (*stepLog)(nil)

type stepLog struct {
	pool *pgxpool.Pool
}

func NewStepLog(pool *pgxpool.Pool) *stepLog {
	return &stepLog{pool: pool}
}

func (s *stepLog) Get(ctx context.Context, jobID, step string) (*model.StepRecord, error) {
	const q = `
SELECT job_id, step, outcome, output, attempts, error, completed_at
FROM job_steps WHERE job_id = $1 AND step = $2`
	return scanStep(s.pool.QueryRow(ctx, q, jobID, step))
}

// Mark keeps the first record for a (job, step) pair.
func (s *stepLog) Mark(ctx context.Context, rec *model.StepRecord) error {
	if rec == nil || rec.JobID == "" || rec.Step == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO job_steps (job_id, step, outcome, output, attempts, error, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (job_id, step) DO NOTHING`
	_, err := s.pool.Exec(ctx, q, rec.JobID, rec.Step, string(rec.Outcome), rec.Output,
		rec.Attempts, rec.Error, rec.CompletedAt)
	return mapErr("mark step", err)
}

func (s *stepLog) List(ctx context.Context, jobID string) ([]*model.StepRecord, error) {
	const q = `
SELECT job_id, step, outcome, output, attempts, error, completed_at
FROM job_steps WHERE job_id = $1 ORDER BY completed_at ASC`
	rows, err := s.pool.Query(ctx, q, jobID)
	if err != nil {
		return nil, mapErr("list steps", err)
	}
	defer rows.Close()
	var out []*model.StepRecord
	for rows.Next() {
		rec, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, mapErr("list steps", rows.Err())
}

func scanStep(row rowScanner) (*model.StepRecord, error) {
	var (
		rec     model.StepRecord
		outcome string
	)
	if err := row.Scan(&rec.JobID, &rec.Step, &outcome, &rec.Output, &rec.Attempts, &rec.Error, &rec.CompletedAt); err != nil {
		return nil, mapErr("scan step", err)
	}
	rec.Outcome = model.StepOutcome(outcome)
	rec.CompletedAt = rec.CompletedAt.UTC()
	return &rec, nil
}

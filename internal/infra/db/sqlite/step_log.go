package sqlite

import (
	"context"
	"database/sql"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/repository"
)

var _ repository.StepLog = (*StepLog)(nil)

type StepLog struct {
	db *sql.DB
}

func NewStepLog(db *sql.DB) *StepLog { return &StepLog{db: db} }

func (s *StepLog) Get(ctx context.Context, jobID, step string) (*model.StepRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, step, outcome, output, attempts, error, completed_at
		 FROM job_steps WHERE job_id = ? AND step = ?`, jobID, step)
	return scanStep(row)
}

func (s *StepLog) Mark(ctx context.Context, rec *model.StepRecord) error {
	if rec == nil || rec.JobID == "" || rec.Step == "" {
		return domain.ErrInvalidArgument
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO job_steps (job_id, step, outcome, output, attempts, error, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.Step, string(rec.Outcome), rec.Output, rec.Attempts, rec.Error, formatTime(rec.CompletedAt))
	return mapErr("mark step", err)
}

func (s *StepLog) List(ctx context.Context, jobID string) ([]*model.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, step, outcome, output, attempts, error, completed_at
		 FROM job_steps WHERE job_id = ? ORDER BY completed_at ASC, rowid ASC`, jobID)
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

func scanStep(row scanner) (*model.StepRecord, error) {
	var (
		rec       model.StepRecord
		outcome   string
		completed string
	)
	if err := row.Scan(&rec.JobID, &rec.Step, &outcome, &rec.Output, &rec.Attempts, &rec.Error, &completed); err != nil {
		return nil, mapErr("scan step", err)
	}
	rec.Outcome = model.StepOutcome(outcome)
	t, err := parseTime(completed)
	if err != nil {
		return nil, err
	}
	rec.CompletedAt = t
	return &rec, nil
}

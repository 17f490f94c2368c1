package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*JobRepo)(nil)

type JobRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db, now: time.Now}
}

func (r *JobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidArgument
	}
	ex, err := executor(r.db, tx)
	if err != nil {
		return err
	}
	target, err := json.Marshal(job.Target)
	if err != nil {
		return fmt.Errorf("marshal target: %w", err)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO jobs (id, token, status, result, question, target, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?, ?, ?)`,
		job.ID, job.Token, string(job.Status), job.Question, string(target),
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	return mapErr("create job", err)
}

func (r *JobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	ex, err := executor(r.db, tx)
	if err != nil {
		return nil, err
	}
	row := ex.QueryRowContext(ctx,
		`SELECT id, token, status, result, question, target, created_at, updated_at FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (r *JobRepo) SetStatus(ctx context.Context, tx repository.Tx, id string, status model.JobStatus) error {
	if !status.Valid() {
		return domain.ErrInvalidArgument
	}
	return r.transition(ctx, tx, id, status, false, nil)
}

func (r *JobRepo) Complete(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, result string) error {
	if !status.Terminal() {
		return domain.ErrInvalidArgument
	}
	var res *string
	if status == model.JobStatusCompleted {
		res = &result
	}
	return r.transition(ctx, tx, id, status, true, res)
}

// transition issues a guarded UPDATE that only matches rows in a legal
// predecessor status; on a miss it reads the row to tell the cases apart.
func (r *JobRepo) transition(ctx context.Context, tx repository.Tx, id string, to model.JobStatus, setResult bool, result *string) error {
	ex, err := executor(r.db, tx)
	if err != nil {
		return err
	}
	var from []any
	for _, s := range model.PredecessorsOf(to) {
		if s != to {
			from = append(from, string(s))
		}
	}
	if len(from) > 0 {
		set := "status = ?, updated_at = ?"
		args := []any{string(to), formatTime(r.now())}
		if setResult {
			set += ", result = ?"
			args = append(args, result)
		}
		args = append(args, id)
		args = append(args, from...)
		q := fmt.Sprintf(`UPDATE jobs SET %s WHERE id = ? AND status IN (%s)`,
			set, strings.TrimSuffix(strings.Repeat("?,", len(from)), ","))
		res, err := ex.ExecContext(ctx, q, args...)
		if err != nil {
			return mapErr("update job status", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}
	}

	var cur string
	if err := ex.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&cur); err != nil {
		return mapErr("read job status", err)
	}
	if model.JobStatus(cur) == to {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, cur, to)
}

func (r *JobRepo) ListUnfinished(ctx context.Context, olderThan time.Time, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, token, status, result, question, target, created_at, updated_at
		 FROM jobs
		 WHERE status IN ('PENDING', 'PROCESSING') AND updated_at <= ?
		 ORDER BY created_at ASC
		 LIMIT ?`, formatTime(olderThan), limit)
	if err != nil {
		return nil, mapErr("list unfinished jobs", err)
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, mapErr("list unfinished jobs", rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*model.Job, error) {
	var (
		j                model.Job
		status, target   string
		result           sql.NullString
		created, updated string
	)
	if err := row.Scan(&j.ID, &j.Token, &status, &result, &j.Question, &target, &created, &updated); err != nil {
		return nil, mapErr("scan job", err)
	}
	j.Status = model.JobStatus(status)
	if result.Valid {
		s := result.String
		j.Result = &s
	}
	if err := json.Unmarshal([]byte(target), &j.Target); err != nil {
		return nil, fmt.Errorf("%w: target: %v", domain.ErrReadDatabaseRow, err)
	}
	var err error
	if j.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &j, nil
}

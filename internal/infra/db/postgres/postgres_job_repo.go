package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

// FieldCipher seals question and result columns at rest.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type jobRepo struct {
	pool   *pgxpool.Pool
	tm     *TxManager
	cipher FieldCipher
}

// NewJobRepo returns a Postgres-backed JobRepository. cipher may be nil.
func NewJobRepo(pool *pgxpool.Pool, tm *TxManager, cipher FieldCipher) *jobRepo {
	return &jobRepo{pool: pool, tm: tm, cipher: cipher}
}

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidArgument
	}
	qx, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	target, err := json.Marshal(job.Target)
	if err != nil {
		return fmt.Errorf("marshal target: %w", err)
	}
	question, err := r.seal(job.Question)
	if err != nil {
		return err
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}

	const q = `
INSERT INTO jobs (id, token, status, result, question, target, encrypted, created_at, updated_at)
VALUES ($1, $2, $3, NULL, $4, $5, $6, $7, $8)`
	_, err = qx.Exec(ctx, q, job.ID, job.Token, string(job.Status), question, target,
		r.cipher != nil, job.CreatedAt, job.UpdatedAt)
	return mapErr("create job", err)
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	qx, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, token, status, result, question, target, encrypted, created_at, updated_at
FROM jobs WHERE id = $1`
	return r.scan(qx.QueryRow(ctx, q, id))
}

// SetStatus locks the row, checks the transition and writes it.
func (r *jobRepo) SetStatus(ctx context.Context, tx repository.Tx, id string, status model.JobStatus) error {
	if !status.Valid() {
		return domain.ErrInvalidArgument
	}
	return inTx(ctx, r.tm, tx, func(ctx context.Context, tx repository.Tx) error {
		qx, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		cur, err := lockStatus(ctx, qx, id)
		if err != nil {
			return err
		}
		if cur == status {
			return nil
		}
		if !model.CanTransition(cur, status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, cur, status)
		}
		_, err = qx.Exec(ctx, `UPDATE jobs SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
		return mapErr("set job status", err)
	})
}

func (r *jobRepo) Complete(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, result string) error {
	if !status.Terminal() {
		return domain.ErrInvalidArgument
	}
	var stored *string
	if status == model.JobStatusCompleted {
		sealed, err := r.seal(result)
		if err != nil {
			return err
		}
		stored = &sealed
	}
	return inTx(ctx, r.tm, tx, func(ctx context.Context, tx repository.Tx) error {
		qx, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		cur, err := lockStatus(ctx, qx, id)
		if err != nil {
			return err
		}
		if cur == status {
			return nil
		}
		if !model.CanTransition(cur, status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, cur, status)
		}
		_, err = qx.Exec(ctx, `UPDATE jobs SET status = $2, result = $3, updated_at = NOW() WHERE id = $1`,
			id, string(status), stored)
		return mapErr("complete job", err)
	})
}

func (r *jobRepo) ListUnfinished(ctx context.Context, olderThan time.Time, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, token, status, result, question, target, encrypted, created_at, updated_at
FROM jobs
WHERE status IN ('PENDING', 'PROCESSING') AND updated_at <= $1
ORDER BY created_at ASC
LIMIT $2`
	rows, err := r.pool.Query(ctx, q, olderThan, limit)
	if err != nil {
		return nil, mapErr("list unfinished jobs", err)
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list unfinished jobs", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *jobRepo) scan(row rowScanner) (*model.Job, error) {
	var (
		j         model.Job
		status    string
		result    *string
		target    []byte
		encrypted bool
	)
	if err := row.Scan(&j.ID, &j.Token, &status, &result, &j.Question, &target, &encrypted, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, mapErr("scan job", err)
	}
	j.Status = model.JobStatus(status)
	if len(target) > 0 {
		if err := json.Unmarshal(target, &j.Target); err != nil {
			return nil, fmt.Errorf("%w: target: %v", domain.ErrReadDatabaseRow, err)
		}
	}
	if encrypted {
		q, err := r.open(j.Question)
		if err != nil {
			return nil, err
		}
		j.Question = q
		if result != nil {
			res, err := r.open(*result)
			if err != nil {
				return nil, err
			}
			result = &res
		}
	}
	j.Result = result
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func (r *jobRepo) seal(s string) (string, error) {
	if r.cipher == nil {
		return s, nil
	}
	out, err := r.cipher.Encrypt(s)
	if err != nil {
		return "", domain.Permanent(fmt.Errorf("encrypt: %w", err))
	}
	return out, nil
}

func (r *jobRepo) open(s string) (string, error) {
	if r.cipher == nil {
		return "", fmt.Errorf("%w: row is encrypted but no key is configured", domain.ErrReadDatabaseRow)
	}
	out, err := r.cipher.Decrypt(s)
	if err != nil {
		return "", fmt.Errorf("%w: decrypt: %v", domain.ErrReadDatabaseRow, err)
	}
	return out, nil
}

func lockStatus(ctx context.Context, qx executor, id string) (model.JobStatus, error) {
	var s string
	if err := qx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&s); err != nil {
		return "", mapErr("lock job", err)
	}
	return model.JobStatus(s), nil
}

package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type Repository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	MarkSucceeded(ctx context.Context, id string) (bool, error)
	MarkFailed(ctx context.Context, id, message string) (bool, error)
	MarkFailedSubmission(ctx context.Context, id, message string) (bool, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// Every transition names the statuses it may leave, so a terminal status is
// never overwritten and no status is entered twice.
const (
	markRunningQuery          = `UPDATE embedding_jobs SET status = 'running', updated_at = NOW() WHERE id = $1 AND status = 'queued'`
	markSucceededQuery        = `UPDATE embedding_jobs SET status = 'succeeded', updated_at = NOW() WHERE id = $1 AND status = 'running'`
	markFailedQuery           = `UPDATE embedding_jobs SET status = 'failed', error = $2, updated_at = NOW() WHERE id = $1 AND status IN ('queued', 'running')`
	markFailedSubmissionQuery = `UPDATE embedding_jobs SET status = 'failed_submission', error = $2, updated_at = NOW() WHERE id = $1 AND status = 'queued'`
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, job *Job) error {
	req, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encode job request: %w", err)
	}
	query := `INSERT INTO embedding_jobs (id, status, external_run_id, request) VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, job.ID, job.Status, job.ExternalRunID, req).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	var (
		runID  sql.NullString
		errMsg sql.NullString
		req    []byte
	)
	query := `SELECT id, status, external_run_id, request, error, created_at, updated_at FROM embedding_jobs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&j.ID, &j.Status, &runID, &req, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(req, &j.Request); err != nil {
		return nil, fmt.Errorf("decode job request: %w", err)
	}
	j.ExternalRunID = runID.String
	if errMsg.Valid {
		j.Error = &errMsg.String
	}
	return j, nil
}

func (r *PostgresRepo) MarkRunning(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, markRunningQuery, id)
}

func (r *PostgresRepo) MarkSucceeded(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, markSucceededQuery, id)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	return r.transition(ctx, markFailedQuery, id, message)
}

func (r *PostgresRepo) MarkFailedSubmission(ctx context.Context, id, message string) (bool, error) {
	return r.transition(ctx, markFailedSubmissionQuery, id, message)
}

func (r *PostgresRepo) transition(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM embedding_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Status]int{}
	for rows.Next() {
		var (
			status Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

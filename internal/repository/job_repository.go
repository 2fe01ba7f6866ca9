package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sentraops/siteops-api/internal/models"
)

// JobRepository persists jobs (checklist templates).
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository constructs the repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// FindByID fetches a job by identifier.
func (r *JobRepository) FindByID(ctx context.Context, id string) (*models.Job, error) {
	const query = `SELECT id, site_id, name, status, plan_start, plan_end, created_at, mdtz FROM jobs WHERE id = $1`
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// CurrentStatus re-reads only the status column.
func (r *JobRepository) CurrentStatus(ctx context.Context, id string) (models.Status, error) {
	var status models.Status
	if err := r.db.GetContext(ctx, &status, `SELECT status FROM jobs WHERE id = $1`, id); err != nil {
		return "", err
	}
	return status, nil
}

// TransitionStatus moves the job between statuses with a guarded
// update and writes the transition audit atomically.
func (r *JobRepository) TransitionStatus(ctx context.Context, id string, from, to models.Status, audit *models.TransitionAudit) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = $1, mdtz = $2 WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("transition job status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	if err := appendTransitionTx(ctx, tx, audit); err != nil {
		return err
	}
	return tx.Commit()
}

// TouchMDTZ bumps the job's last-modified stamp. Called when a child
// jobneed changes so sync clients re-fetch the parent.
func (r *JobRepository) TouchMDTZ(ctx context.Context, id string, ts time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE jobs SET mdtz = $1 WHERE id = $2`, ts, id)
	if err != nil {
		return fmt.Errorf("touch job mdtz: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check touch rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

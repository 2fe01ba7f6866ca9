package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sentraops/siteops-api/internal/models"
)

// JobneedRepository persists jobneeds (scheduled checkpoints).
type JobneedRepository struct {
	db *sqlx.DB
}

// NewJobneedRepository constructs the repository.
func NewJobneedRepository(db *sqlx.DB) *JobneedRepository {
	return &JobneedRepository{db: db}
}

// FindByID fetches a jobneed by identifier.
func (r *JobneedRepository) FindByID(ctx context.Context, id string) (*models.Jobneed, error) {
	const query = `SELECT id, job_id, site_id, checkpoint, status, expiry_time, plan_time, actual_time, assigned_to, created_at, mdtz
		FROM jobneeds WHERE id = $1`
	var jn models.Jobneed
	if err := r.db.GetContext(ctx, &jn, query, id); err != nil {
		return nil, err
	}
	return &jn, nil
}

// CurrentStatus re-reads only the status column.
func (r *JobneedRepository) CurrentStatus(ctx context.Context, id string) (models.Status, error) {
	var status models.Status
	if err := r.db.GetContext(ctx, &status, `SELECT status FROM jobneeds WHERE id = $1`, id); err != nil {
		return "", err
	}
	return status, nil
}

// TransitionStatus moves the jobneed between statuses with a guarded
// update and writes the transition audit atomically. Completing a
// jobneed stamps the actual execution time.
func (r *JobneedRepository) TransitionStatus(ctx context.Context, id string, from, to models.Status, audit *models.TransitionAudit) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var result sql.Result
	if to == models.StatusCompleted {
		result, err = tx.ExecContext(ctx,
			`UPDATE jobneeds SET status = $1, mdtz = $2, actual_time = $3 WHERE id = $4 AND status = $5`,
			to, now, now, id, from)
	} else {
		result, err = tx.ExecContext(ctx,
			`UPDATE jobneeds SET status = $1, mdtz = $2 WHERE id = $3 AND status = $4`,
			to, now, id, from)
	}
	if err != nil {
		return fmt.Errorf("transition jobneed status: %w", err)
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

// UpdateCheckpointWithParent patches allowed jobneed fields and bumps
// the parent job's mdtz in one transaction. The caller holds the
// parent-keyed advisory lock.
func (r *JobneedRepository) UpdateCheckpointWithParent(ctx context.Context, id, jobID string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return fmt.Errorf("no checkpoint fields to update")
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	setParts := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+2)
	for _, column := range []string{"expiry_time", "checkpoint", "assigned_to"} {
		if value, ok := fields[column]; ok {
			args = append(args, value)
			setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	if len(setParts) == 0 {
		return fmt.Errorf("no supported checkpoint fields to update")
	}
	args = append(args, now)
	setParts = append(setParts, fmt.Sprintf("mdtz = $%d", len(args)))
	args = append(args, id)
	query := fmt.Sprintf("UPDATE jobneeds SET %s WHERE id = $%d", strings.Join(setParts, ", "), len(args))

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update jobneed checkpoint: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check checkpoint rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET mdtz = $1 WHERE id = $2`, now, jobID); err != nil {
		return fmt.Errorf("touch parent job: %w", err)
	}
	return tx.Commit()
}

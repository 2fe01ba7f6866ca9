package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sentraops/siteops-api/internal/models"
)

// WorkOrderRepository persists work orders.
type WorkOrderRepository struct {
	db *sqlx.DB
}

// NewWorkOrderRepository constructs the repository.
func NewWorkOrderRepository(db *sqlx.DB) *WorkOrderRepository {
	return &WorkOrderRepository{db: db}
}

// FindByID fetches a work order by identifier.
func (r *WorkOrderRepository) FindByID(ctx context.Context, id string) (*models.WorkOrder, error) {
	const query = `SELECT id, site_id, description, priority, vendor_id, status, assigned_to, started_at, completed_at, created_at, mdtz
		FROM workorders WHERE id = $1`
	var wo models.WorkOrder
	if err := r.db.GetContext(ctx, &wo, query, id); err != nil {
		return nil, err
	}
	return &wo, nil
}

// CurrentStatus re-reads only the status column. The state machine
// calls this after acquiring the lock to avoid acting on a stale
// in-memory row.
func (r *WorkOrderRepository) CurrentStatus(ctx context.Context, id string) (models.Status, error) {
	var status models.Status
	if err := r.db.GetContext(ctx, &status, `SELECT status FROM workorders WHERE id = $1`, id); err != nil {
		return "", err
	}
	return status, nil
}

// TransitionStatus moves the work order from one status to another and
// appends the transition audit in the same transaction. The guarded
// WHERE clause is the row-level backstop behind the advisory lock:
// zero rows affected means the entity already left the source status.
func (r *WorkOrderRepository) TransitionStatus(ctx context.Context, id string, from, to models.Status, audit *models.TransitionAudit) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	query := `UPDATE workorders SET status = $1, mdtz = $2`
	args := []interface{}{to, now}
	switch to {
	case models.StatusInProgress:
		query += `, started_at = $3 WHERE id = $4 AND status = $5`
		args = append(args, now, id, from)
	case models.StatusCompleted:
		query += `, completed_at = $3 WHERE id = $4 AND status = $5`
		args = append(args, now, id, from)
	default:
		query += ` WHERE id = $3 AND status = $4`
		args = append(args, id, from)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition workorder status: %w", err)
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

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sentraops/siteops-api/internal/models"
)

// ApprovalRepository persists approval slots for changesets.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a pending approval slot.
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.Approval) error {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.Status == "" {
		approval.Status = models.ApprovalStatusPending
	}
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approvals
		(id, changeset_id, approver, level, status, decision_at, reason, conditions, modifications, ip_address, user_agent, created_at)
		VALUES (:id, :changeset_id, :approver, :level, :status, :decision_at, :reason, :conditions, :modifications, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, approval); err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// GetByID fetches an approval by identifier.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.Approval, error) {
	const query = `SELECT id, changeset_id, approver, level, status, decision_at, reason, conditions, modifications, ip_address, user_agent, created_at
		FROM approvals WHERE id = $1`
	var approval models.Approval
	if err := r.db.GetContext(ctx, &approval, query, id); err != nil {
		return nil, err
	}
	return &approval, nil
}

// ListByChangeSet returns all approval slots for a changeset.
func (r *ApprovalRepository) ListByChangeSet(ctx context.Context, changesetID string) ([]models.Approval, error) {
	const query = `SELECT id, changeset_id, approver, level, status, decision_at, reason, conditions, modifications, ip_address, user_agent, created_at
		FROM approvals WHERE changeset_id = $1 ORDER BY created_at ASC`
	var approvals []models.Approval
	if err := r.db.SelectContext(ctx, &approvals, query, changesetID); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return approvals, nil
}

// DecideApprovalParams groups mutable columns for a decision.
type DecideApprovalParams struct {
	ID            string
	Status        models.ApprovalStatus
	DecisionAt    time.Time
	Reason        *string
	Conditions    *string
	Modifications []byte
	IPAddress     string
	UserAgent     string
}

// Decide stamps the decision. The guarded WHERE makes a second
// decision on the same slot surface as sql.ErrNoRows.
func (r *ApprovalRepository) Decide(ctx context.Context, params DecideApprovalParams) error {
	const query = `UPDATE approvals SET status = :status, decision_at = :decision_at, reason = :reason,
		conditions = :conditions, modifications = :modifications, ip_address = :ip_address, user_agent = :user_agent
		WHERE id = :id AND status = 'PENDING'`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":            params.ID,
		"status":        params.Status,
		"decision_at":   params.DecisionAt,
		"reason":        params.Reason,
		"conditions":    params.Conditions,
		"modifications": params.Modifications,
		"ip_address":    params.IPAddress,
		"user_agent":    params.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("decide approval: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approval decision rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

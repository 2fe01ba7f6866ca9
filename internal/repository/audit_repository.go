package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sentraops/siteops-api/internal/models"
)

// AuditRepository persists transition audits and request audit logs.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const insertTransitionAuditQuery = `INSERT INTO transition_audits
	(id, entity_kind, entity_id, seq, from_status, to_status, actor, reason, comments, metadata, created_at)
	VALUES (:id, :entity_kind, :entity_id,
		(SELECT COALESCE(MAX(seq), 0) + 1 FROM transition_audits WHERE entity_kind = :entity_kind AND entity_id = :entity_id),
		:from_status, :to_status, :actor, :reason, :comments, :metadata, :created_at)`

func prepareTransitionAudit(rec *models.TransitionAudit) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if len(rec.Metadata) == 0 {
		rec.Metadata = []byte("{}")
	}
}

// AppendTransition writes one committed state change. Seq is assigned
// inside the insert so audit order matches commit order per entity.
func (r *AuditRepository) AppendTransition(ctx context.Context, rec *models.TransitionAudit) error {
	prepareTransitionAudit(rec)
	if _, err := r.db.NamedExecContext(ctx, insertTransitionAuditQuery, rec); err != nil {
		return fmt.Errorf("append transition audit: %w", err)
	}
	return nil
}

// appendTransitionTx writes the audit row inside the caller's
// transaction so the status change and its audit commit atomically.
func appendTransitionTx(ctx context.Context, tx *sqlx.Tx, rec *models.TransitionAudit) error {
	prepareTransitionAudit(rec)
	if _, err := tx.NamedExecContext(ctx, insertTransitionAuditQuery, rec); err != nil {
		return fmt.Errorf("append transition audit: %w", err)
	}
	return nil
}

// ListTransitions returns the audit trail for one entity in commit order.
func (r *AuditRepository) ListTransitions(ctx context.Context, entityKind, entityID string, limit int) ([]models.TransitionAudit, error) {
	if limit <= 0 || limit > 5000 {
		limit = 500
	}
	const query = `SELECT id, entity_kind, entity_id, seq, from_status, to_status, actor, reason, comments, metadata, created_at
		FROM transition_audits WHERE entity_kind = $1 AND entity_id = $2 ORDER BY seq ASC LIMIT $3`
	var records []models.TransitionAudit
	if err := r.db.SelectContext(ctx, &records, query, entityKind, entityID, limit); err != nil {
		return nil, fmt.Errorf("list transition audits: %w", err)
	}
	return records, nil
}

// CreateAuditLog records a request-level audit entry.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs
		(id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at)
		VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

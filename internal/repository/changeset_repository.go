package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sentraops/siteops-api/internal/models"
)

// ChangeSetRepository persists changesets and their change records.
type ChangeSetRepository struct {
	db *sqlx.DB
}

// NewChangeSetRepository constructs the repository.
func NewChangeSetRepository(db *sqlx.DB) *ChangeSetRepository {
	return &ChangeSetRepository{db: db}
}

// Create inserts a new changeset row.
func (r *ChangeSetRepository) Create(ctx context.Context, cs *models.ChangeSet) error {
	if cs.ID == "" {
		cs.ID = uuid.NewString()
	}
	if cs.Status == "" {
		cs.Status = models.ChangeSetStatusPending
	}
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO changesets
		(id, description, status, total_changes, successful_changes, failed_changes, risk_score, approved_by,
		 applied_at, rolled_back_at, rolled_back_by, rollback_reason, created_at)
		VALUES (:id, :description, :status, :total_changes, :successful_changes, :failed_changes, :risk_score, :approved_by,
		 :applied_at, :rolled_back_at, :rolled_back_by, :rollback_reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cs); err != nil {
		return fmt.Errorf("create changeset: %w", err)
	}
	return nil
}

// GetByID fetches a changeset by identifier.
func (r *ChangeSetRepository) GetByID(ctx context.Context, id string) (*models.ChangeSet, error) {
	const query = `SELECT id, description, status, total_changes, successful_changes, failed_changes, risk_score, approved_by,
		applied_at, rolled_back_at, rolled_back_by, rollback_reason, created_at
		FROM changesets WHERE id = $1`
	var cs models.ChangeSet
	if err := r.db.GetContext(ctx, &cs, query, id); err != nil {
		return nil, err
	}
	return &cs, nil
}

// List returns changesets matching the filter (latest first).
func (r *ChangeSetRepository) List(ctx context.Context, filter models.ChangeSetFilter) ([]models.ChangeSet, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT id, description, status, total_changes, successful_changes, failed_changes, risk_score, approved_by,
		applied_at, rolled_back_at, rolled_back_by, rollback_reason, created_at FROM changesets`)

	conditions := make([]string, 0, 2)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ApprovedBy != "" {
		args = append(args, filter.ApprovedBy)
		conditions = append(conditions, fmt.Sprintf("approved_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var sets []models.ChangeSet
	if err := r.db.SelectContext(ctx, &sets, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list changesets: %w", err)
	}
	return sets, nil
}

// UpdateApplyOutcome persists counters and terminal apply status.
func (r *ChangeSetRepository) UpdateApplyOutcome(ctx context.Context, id string, status models.ChangeSetStatus, total, successful, failed int, riskScore float64, appliedAt time.Time) error {
	const query = `UPDATE changesets SET status = $1, total_changes = $2, successful_changes = $3, failed_changes = $4,
		risk_score = $5, applied_at = $6 WHERE id = $7`
	result, err := r.db.ExecContext(ctx, query, status, total, successful, failed, riskScore, appliedAt, id)
	if err != nil {
		return fmt.Errorf("update changeset apply outcome: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check changeset update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateRiskScore persists the recomputed score after tracking.
func (r *ChangeSetRepository) UpdateRiskScore(ctx context.Context, id string, total int, riskScore float64) error {
	const query = `UPDATE changesets SET total_changes = $1, risk_score = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, total, riskScore, id); err != nil {
		return fmt.Errorf("update changeset risk score: %w", err)
	}
	return nil
}

// MarkRolledBack stamps rollback outcome. The guarded WHERE keeps a
// changeset from being rolled back twice.
func (r *ChangeSetRepository) MarkRolledBack(ctx context.Context, id string, status models.ChangeSetStatus, by, reason string, at time.Time) error {
	const query = `UPDATE changesets SET status = $1, rolled_back_at = $2, rolled_back_by = $3, rollback_reason = $4
		WHERE id = $5 AND status IN ($6, $7)`
	result, err := r.db.ExecContext(ctx, query, status, at, by, reason, id,
		models.ChangeSetStatusApplied, models.ChangeSetStatusPartiallyApplied)
	if err != nil {
		return fmt.Errorf("mark changeset rolled back: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rollback rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateRecord inserts one change record. The (changeset_id, seq)
// unique constraint surfaces duplicate sequence numbers as an error;
// that is a programming mistake, not a retryable race.
func (r *ChangeSetRepository) CreateRecord(ctx context.Context, rec *models.ChangeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = models.ChangeRecordStatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO change_records
		(id, changeset_id, seq, entity_kind, entity_id, action, before_state, after_state, status, error,
		 rollback_attempted_at, rollback_success, rollback_error, created_at)
		VALUES (:id, :changeset_id, :seq, :entity_kind, :entity_id, :action, :before_state, :after_state, :status, :error,
		 :rollback_attempted_at, :rollback_success, :rollback_error, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("create change record: %w", err)
	}
	return nil
}

// UpdateRecordOutcome stores the apply outcome of a previously tracked
// record.
func (r *ChangeSetRepository) UpdateRecordOutcome(ctx context.Context, rec *models.ChangeRecord) error {
	const query = `UPDATE change_records SET entity_id = $1, before_state = $2, after_state = $3, status = $4, error = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(ctx, query, rec.EntityID, rec.BeforeState, rec.AfterState, rec.Status, rec.Error, rec.ID)
	if err != nil {
		return fmt.Errorf("update change record outcome: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check change record outcome rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListRecords returns a changeset's records ordered by seq. Rollback
// consumes them in descending order, apply in ascending.
func (r *ChangeSetRepository) ListRecords(ctx context.Context, changesetID string, descending bool) ([]models.ChangeRecord, error) {
	order := "ASC"
	if descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT id, changeset_id, seq, entity_kind, entity_id, action, before_state, after_state, status, error,
		rollback_attempted_at, rollback_success, rollback_error, created_at
		FROM change_records WHERE changeset_id = $1 ORDER BY seq %s`, order)
	var records []models.ChangeRecord
	if err := r.db.SelectContext(ctx, &records, query, changesetID); err != nil {
		return nil, fmt.Errorf("list change records: %w", err)
	}
	return records, nil
}

// UpdateRecordRollback stores the per-record rollback outcome.
func (r *ChangeSetRepository) UpdateRecordRollback(ctx context.Context, recordID string, status models.ChangeRecordStatus, attemptedAt time.Time, success bool, rollbackErr *string) error {
	const query = `UPDATE change_records SET status = $1, rollback_attempted_at = $2, rollback_success = $3, rollback_error = $4
		WHERE id = $5`
	if _, err := r.db.ExecContext(ctx, query, status, attemptedAt, success, rollbackErr, recordID); err != nil {
		return fmt.Errorf("update change record rollback: %w", err)
	}
	return nil
}

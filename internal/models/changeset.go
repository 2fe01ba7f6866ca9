package models

import "time"

// ChangeSetStatus captures the lifecycle of a tracked batch.
type ChangeSetStatus string

const (
	ChangeSetStatusPending          ChangeSetStatus = "PENDING"
	ChangeSetStatusApplied          ChangeSetStatus = "APPLIED"
	ChangeSetStatusPartiallyApplied ChangeSetStatus = "PARTIALLY_APPLIED"
	ChangeSetStatusRolledBack       ChangeSetStatus = "ROLLED_BACK"
)

// ChangeAction enumerates tracked mutation kinds.
type ChangeAction string

const (
	ChangeActionCreate ChangeAction = "CREATE"
	ChangeActionUpdate ChangeAction = "UPDATE"
	ChangeActionDelete ChangeAction = "DELETE"
)

// ChangeRecordStatus captures the per-record outcome.
type ChangeRecordStatus string

const (
	ChangeRecordStatusPending    ChangeRecordStatus = "PENDING"
	ChangeRecordStatusSuccess    ChangeRecordStatus = "SUCCESS"
	ChangeRecordStatusFailed     ChangeRecordStatus = "FAILED"
	ChangeRecordStatusRolledBack ChangeRecordStatus = "ROLLED_BACK"
)

// ChangeSet is an auditable batch of entity mutations applied and
// rolled back as a unit. Rows are retained indefinitely; a rolled-back
// set is never re-applied, a fresh set is raised instead.
type ChangeSet struct {
	ID                string          `db:"id" json:"id"`
	Description       string          `db:"description" json:"description"`
	Status            ChangeSetStatus `db:"status" json:"status"`
	TotalChanges      int             `db:"total_changes" json:"total_changes"`
	SuccessfulChanges int             `db:"successful_changes" json:"successful_changes"`
	FailedChanges     int             `db:"failed_changes" json:"failed_changes"`
	RiskScore         float64         `db:"risk_score" json:"risk_score"`
	ApprovedBy        string          `db:"approved_by" json:"approved_by"`
	AppliedAt         *time.Time      `db:"applied_at" json:"applied_at,omitempty"`
	RolledBackAt      *time.Time      `db:"rolled_back_at" json:"rolled_back_at,omitempty"`
	RolledBackBy      *string         `db:"rolled_back_by" json:"rolled_back_by,omitempty"`
	RollbackReason    *string         `db:"rollback_reason" json:"rollback_reason,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// ChangeRecord is one mutation within a ChangeSet, with enough
// before/after state to reverse it. Seq is unique within the set and
// fixes forward-apply and reverse-rollback order.
type ChangeRecord struct {
	ID                  string             `db:"id" json:"id"`
	ChangeSetID         string             `db:"changeset_id" json:"changeset_id"`
	Seq                 int                `db:"seq" json:"seq"`
	EntityKind          string             `db:"entity_kind" json:"entity_kind"`
	EntityID            string             `db:"entity_id" json:"entity_id"`
	Action              ChangeAction       `db:"action" json:"action"`
	BeforeState         []byte             `db:"before_state" json:"before_state,omitempty"`
	AfterState          []byte             `db:"after_state" json:"after_state,omitempty"`
	Status              ChangeRecordStatus `db:"status" json:"status"`
	Error               *string            `db:"error" json:"error,omitempty"`
	RollbackAttemptedAt *time.Time         `db:"rollback_attempted_at" json:"rollback_attempted_at,omitempty"`
	RollbackSuccess     *bool              `db:"rollback_success" json:"rollback_success,omitempty"`
	RollbackError       *string            `db:"rollback_error" json:"rollback_error,omitempty"`
	CreatedAt           time.Time          `db:"created_at" json:"created_at"`
}

// ChangeSetFilter constrains listing queries.
type ChangeSetFilter struct {
	Status     []ChangeSetStatus
	ApprovedBy string
	Limit      int
	Offset     int
}

// RollbackResult summarises a rollback pass.
type RollbackResult struct {
	ChangeSetID  string          `json:"changeset_id"`
	RolledBack   int             `json:"rolled_back"`
	Failed       int             `json:"failed"`
	Skipped      int             `json:"skipped"`
	FinalStatus  ChangeSetStatus `json:"final_status"`
	FailedRecord []string        `json:"failed_records,omitempty"`
}

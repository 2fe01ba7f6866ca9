package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin             = "LOGIN"
	AuditActionTransition        = "TRANSITION"
	AuditActionChangesetCreate   = "CHANGESET_CREATE"
	AuditActionChangesetApply    = "CHANGESET_APPLY"
	AuditActionChangesetRollback = "CHANGESET_ROLLBACK"
	AuditActionApprovalDecision  = "APPROVAL_DECISION"
)

// TransitionAudit is one committed state change. Rows are append-only
// and ordered per entity by Seq; the count of rows for an entity
// equals the count of successful transitions.
type TransitionAudit struct {
	ID         string    `db:"id" json:"id"`
	EntityKind string    `db:"entity_kind" json:"entity_kind"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Seq        int       `db:"seq" json:"seq"`
	FromStatus Status    `db:"from_status" json:"from_status"`
	ToStatus   Status    `db:"to_status" json:"to_status"`
	Actor      string    `db:"actor" json:"actor"`
	Reason     string    `db:"reason" json:"reason"`
	Comments   string    `db:"comments" json:"comments"`
	Metadata   []byte    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditLog represents a request-level audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

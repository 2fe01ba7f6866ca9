package models

import "time"

// ApprovalLevel distinguishes the primary reviewer from the
// independent second pair of eyes.
type ApprovalLevel string

const (
	ApprovalLevelPrimary   ApprovalLevel = "PRIMARY"
	ApprovalLevelSecondary ApprovalLevel = "SECONDARY"
)

// ApprovalStatus captures the decision lifecycle. A decision is
// terminal; deciding twice is a conflict.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "PENDING"
	ApprovalStatusApproved  ApprovalStatus = "APPROVED"
	ApprovalStatusRejected  ApprovalStatus = "REJECTED"
	ApprovalStatusEscalated ApprovalStatus = "ESCALATED"
)

// Approval is one reviewer's decision slot on a changeset. A set
// requiring two-person approval owns exactly one primary and at most
// one secondary approval.
type Approval struct {
	ID            string         `db:"id" json:"id"`
	ChangeSetID   string         `db:"changeset_id" json:"changeset_id"`
	Approver      string         `db:"approver" json:"approver"`
	Level         ApprovalLevel  `db:"level" json:"level"`
	Status        ApprovalStatus `db:"status" json:"status"`
	DecisionAt    *time.Time     `db:"decision_at" json:"decision_at,omitempty"`
	Reason        *string        `db:"reason" json:"reason,omitempty"`
	Conditions    *string        `db:"conditions" json:"conditions,omitempty"`
	Modifications []byte         `db:"modifications" json:"modifications,omitempty"`
	IPAddress     string         `db:"ip_address" json:"ip_address"`
	UserAgent     string         `db:"user_agent" json:"user_agent"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

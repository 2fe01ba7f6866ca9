package models

import "time"

// TicketStatus captures the helpdesk lifecycle of an escalation.
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "OPEN"
	TicketStatusResolved TicketStatus = "RESOLVED"
)

// EscalationTicket is raised when an approver escalates a changeset
// for human follow-up. It carries full context for the helpdesk.
type EscalationTicket struct {
	ID          string       `db:"id" json:"id"`
	ChangeSetID string       `db:"changeset_id" json:"changeset_id"`
	ApprovalID  string       `db:"approval_id" json:"approval_id"`
	Subject     string       `db:"subject" json:"subject"`
	Description string       `db:"description" json:"description"`
	Status      TicketStatus `db:"status" json:"status"`
	RaisedBy    string       `db:"raised_by" json:"raised_by"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

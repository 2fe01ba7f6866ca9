package dto

// CreateApprovalRequest opens the approval workflow for a changeset.
// The primary approver is the caller; a secondary slot is auto-created
// when the changeset requires two-person approval.
type CreateApprovalRequest struct {
	Reason string `json:"reason"`
}

// ApprovalDecisionRequest records an approve/reject/escalate decision.
// IPAddress and UserAgent are stamped by the handler, not the client.
type ApprovalDecisionRequest struct {
	Reason        string `json:"reason" validate:"required"`
	Conditions    string `json:"conditions"`
	Modifications string `json:"modifications"`
	IPAddress     string `json:"-"`
	UserAgent     string `json:"-"`
}

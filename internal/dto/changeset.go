package dto

import (
	"encoding/json"

	"github.com/sentraops/siteops-api/internal/models"
)

// CreateChangeSetRequest opens a new tracked batch.
type CreateChangeSetRequest struct {
	Description string `json:"description" validate:"required"`
}

// Recommendation is one proposed mutation within a batch. LookupFields
// name the natural-key columns used for the idempotent find; for
// updates, UpdateFields limits which payload keys are written.
type Recommendation struct {
	EntityKind   string          `json:"entity_kind" validate:"required"`
	Action       string          `json:"action" validate:"required,oneof=CREATE UPDATE DELETE create update delete"`
	Payload      json.RawMessage `json:"payload"`
	LookupFields []string        `json:"lookup_fields"`
	UpdateFields []string        `json:"update_fields"`
}

// ApplyRecommendationsRequest applies a batch of proposed mutations
// under the given changeset.
type ApplyRecommendationsRequest struct {
	Recommendations []Recommendation `json:"recommendations" validate:"required,min=1"`
}

// RollbackChangeSetRequest reverses an applied changeset.
type RollbackChangeSetRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ChangeSetQuery mirrors supported listing filters.
type ChangeSetQuery struct {
	Status     []models.ChangeSetStatus
	ApprovedBy string
	Limit      int
	Offset     int
}

// ChangeSetDetail bundles a changeset with its records and approvals.
type ChangeSetDetail struct {
	ChangeSet models.ChangeSet      `json:"changeset"`
	Records   []models.ChangeRecord `json:"records"`
	Approvals []models.Approval     `json:"approvals,omitempty"`

	RequiresTwoPersonApproval bool   `json:"requires_two_person_approval"`
	CanBeApplied              bool   `json:"can_be_applied"`
	RollbackComplexity        string `json:"rollback_complexity"`
}

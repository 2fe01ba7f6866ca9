package dto

import (
	"encoding/json"

	"github.com/sentraops/siteops-api/internal/models"
)

// TransitionRequest asks the state machine to move an entity into a
// target status. SkipPermissions is honored only for internal callers
// (system jobs); the HTTP layer never sets it.
type TransitionRequest struct {
	ToStatus models.Status   `json:"to_status" validate:"required"`
	Reason   string          `json:"reason" validate:"required"`
	Comments string          `json:"comments"`
	Metadata json.RawMessage `json:"metadata"`
}

// TransitionResult reports the committed state change.
type TransitionResult struct {
	Success    bool          `json:"success"`
	EntityKind string        `json:"entity_kind"`
	EntityID   string        `json:"entity_id"`
	FromStatus models.Status `json:"from_status"`
	ToStatus   models.Status `json:"to_status"`
	NoOp       bool          `json:"no_op,omitempty"`
}

// CheckpointUpdateRequest patches a jobneed checkpoint while touching
// the parent job's last-modified stamp.
type CheckpointUpdateRequest struct {
	ExpiryTime *int    `json:"expiry_time"`
	Checkpoint *string `json:"checkpoint"`
	AssignedTo *string `json:"assigned_to"`
}

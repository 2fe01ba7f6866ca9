package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleSupervisor UserRole = "SUPERVISOR"
	RoleGuard      UserRole = "GUARD"
)

// Capability names an action an actor may perform. Transition
// capabilities are derived from the target status so the permission
// check stays specific to the requested state change.
type Capability string

const (
	CapChangesetCreate   Capability = "changeset:create"
	CapChangesetApply    Capability = "changeset:apply"
	CapChangesetRollback Capability = "changeset:rollback"
	CapApprovalDecide    Capability = "approval:decide"
	CapCheckpointUpdate  Capability = "checkpoint:update"
)

// TransitionCapability derives the capability guarding a transition
// into the given status.
func TransitionCapability(kind string, to Status) Capability {
	return Capability(kind + ":transition:" + string(to))
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// HasCapability reports whether the role may perform the action.
// Guards may only advance field work (start and complete jobs or
// jobneeds and record checkpoints); supervisors additionally cancel
// work and raise changesets; admins hold everything.
func HasCapability(role UserRole, cap Capability) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin:
		return true
	case RoleSupervisor:
		return cap != CapChangesetApply && cap != CapChangesetRollback
	case RoleGuard:
		switch cap {
		case CapCheckpointUpdate,
			TransitionCapability(EntityKindJob, StatusInProgress),
			TransitionCapability(EntityKindJob, StatusCompleted),
			TransitionCapability(EntityKindJobneed, StatusInProgress),
			TransitionCapability(EntityKindJobneed, StatusCompleted):
			return true
		}
		return false
	default:
		return false
	}
}

package models

import (
	"encoding/json"
	"time"
)

// Entity kinds targeted by transitions and changesets.
const (
	EntityKindWorkOrder = "workorder"
	EntityKindJob       = "job"
	EntityKindJobneed   = "jobneed"
	EntityKindSite      = "site"
	EntityKindShift     = "shift"
)

// Status enumerates workflow states shared by work orders, jobs and
// jobneeds. COMPLETED and CANCELLED are terminal.
type Status string

const (
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "INPROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// WorkOrder is a maintenance/security task raised against a site.
type WorkOrder struct {
	ID          string     `db:"id" json:"id"`
	SiteID      string     `db:"site_id" json:"site_id"`
	Description string     `db:"description" json:"description"`
	Priority    string     `db:"priority" json:"priority"`
	VendorID    *string    `db:"vendor_id" json:"vendor_id,omitempty"`
	Status      Status     `db:"status" json:"status"`
	AssignedTo  *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	MDTZ        time.Time  `db:"mdtz" json:"mdtz"`
}

// Job is a recurring checklist template (guard tour, PPM round).
type Job struct {
	ID        string    `db:"id" json:"id"`
	SiteID    string    `db:"site_id" json:"site_id"`
	Name      string    `db:"name" json:"name"`
	Status    Status    `db:"status" json:"status"`
	PlanStart time.Time `db:"plan_start" json:"plan_start"`
	PlanEnd   time.Time `db:"plan_end" json:"plan_end"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	MDTZ      time.Time `db:"mdtz" json:"mdtz"`
}

// Jobneed is a scheduled occurrence of a Job, typically one checkpoint
// of a tour. MDTZ tracks last modification for sync clients.
type Jobneed struct {
	ID         string     `db:"id" json:"id"`
	JobID      string     `db:"job_id" json:"job_id"`
	SiteID     string     `db:"site_id" json:"site_id"`
	Checkpoint string     `db:"checkpoint" json:"checkpoint"`
	Status     Status     `db:"status" json:"status"`
	ExpiryTime int        `db:"expiry_time" json:"expiry_time"`
	PlanTime   time.Time  `db:"plan_time" json:"plan_time"`
	ActualTime *time.Time `db:"actual_time" json:"actual_time,omitempty"`
	AssignedTo *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	MDTZ       time.Time  `db:"mdtz" json:"mdtz"`
}

// Site is a business unit (client premises) changesets provision.
type Site struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	Timezone  string    `db:"timezone" json:"timezone"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	MDTZ      time.Time `db:"mdtz" json:"mdtz"`
}

// Shift is a staffing window at a site. Natural key: site + name.
type Shift struct {
	ID        string    `db:"id" json:"id"`
	SiteID    string    `db:"site_id" json:"site_id"`
	Name      string    `db:"name" json:"name"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	Headcount int       `db:"headcount" json:"headcount"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	MDTZ      time.Time `db:"mdtz" json:"mdtz"`
}

// StateMap is a plain field→value capture of an entity row, used for
// before/after snapshots in change records.
type StateMap map[string]interface{}

// JSON renders the state map for persistence.
func (s StateMap) JSON() []byte {
	if s == nil {
		return []byte("null")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

// StateMapFromJSON parses a stored snapshot.
func StateMapFromJSON(raw []byte) (StateMap, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m StateMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// StringField reads a string value from the snapshot.
func (s StateMap) StringField(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// BoolField reads a boolean value from the snapshot.
func (s StateMap) BoolField(key string) bool {
	v, _ := s[key].(bool)
	return v
}

// IntField reads a numeric value from the snapshot. JSON numbers
// decode as float64.
func (s StateMap) IntField(key string) int {
	switch v := s[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

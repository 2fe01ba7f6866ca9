package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sentraops/siteops-api/internal/models"
)

// shiftColumns are the snapshot/writable fields for shifts.
var shiftColumns = []string{"site_id", "name", "start_time", "end_time", "headcount", "active"}

// ShiftRepository persists staffing shifts.
type ShiftRepository struct {
	db *sqlx.DB
}

// NewShiftRepository constructs the repository.
func NewShiftRepository(db *sqlx.DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

// FindByID fetches a shift by identifier.
func (r *ShiftRepository) FindByID(ctx context.Context, id string) (*models.Shift, error) {
	const query = `SELECT id, site_id, name, start_time, end_time, headcount, active, created_at, mdtz FROM shifts WHERE id = $1`
	var shift models.Shift
	if err := r.db.GetContext(ctx, &shift, query, id); err != nil {
		return nil, err
	}
	return &shift, nil
}

// FindBySiteAndName fetches a shift by its natural key.
func (r *ShiftRepository) FindBySiteAndName(ctx context.Context, siteID, name string) (*models.Shift, error) {
	const query = `SELECT id, site_id, name, start_time, end_time, headcount, active, created_at, mdtz
		FROM shifts WHERE site_id = $1 AND name = $2`
	var shift models.Shift
	if err := r.db.GetContext(ctx, &shift, query, siteID, name); err != nil {
		return nil, err
	}
	return &shift, nil
}

// Create inserts a new shift row.
func (r *ShiftRepository) Create(ctx context.Context, shift *models.Shift) error {
	if shift.ID == "" {
		shift.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if shift.CreatedAt.IsZero() {
		shift.CreatedAt = now
	}
	shift.MDTZ = now
	const query = `INSERT INTO shifts (id, site_id, name, start_time, end_time, headcount, active, created_at, mdtz)
		VALUES (:id, :site_id, :name, :start_time, :end_time, :headcount, :active, :created_at, :mdtz)`
	if _, err := r.db.NamedExecContext(ctx, query, shift); err != nil {
		return fmt.Errorf("create shift: %w", err)
	}
	return nil
}

// UpdateFields writes a subset of snapshot columns.
func (r *ShiftRepository) UpdateFields(ctx context.Context, id string, fields models.StateMap) error {
	setParts := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+2)
	for _, column := range shiftColumns {
		if value, ok := fields[column]; ok {
			args = append(args, value)
			setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	if len(setParts) == 0 {
		return fmt.Errorf("no supported shift fields to update")
	}
	args = append(args, time.Now().UTC())
	setParts = append(setParts, fmt.Sprintf("mdtz = $%d", len(args)))
	args = append(args, id)
	query := fmt.Sprintf("UPDATE shifts SET %s WHERE id = $%d", strings.Join(setParts, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update shift: %w", err)
	}
	return nil
}

// Delete removes the shift row. Missing rows are not an error.
func (r *ShiftRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM shifts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete shift: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check delete rows: %w", err)
	}
	return rows > 0, nil
}

// Snapshot captures the writable columns of a shift row.
func (r *ShiftRepository) Snapshot(shift *models.Shift) models.StateMap {
	if shift == nil {
		return nil
	}
	return models.StateMap{
		"id":         shift.ID,
		"site_id":    shift.SiteID,
		"name":       shift.Name,
		"start_time": shift.StartTime,
		"end_time":   shift.EndTime,
		"headcount":  shift.Headcount,
		"active":     shift.Active,
	}
}

// FromState reconstructs a shift from a stored snapshot.
func (r *ShiftRepository) FromState(state models.StateMap) *models.Shift {
	shift := &models.Shift{
		ID:        state.StringField("id"),
		SiteID:    state.StringField("site_id"),
		Name:      state.StringField("name"),
		StartTime: state.StringField("start_time"),
		EndTime:   state.StringField("end_time"),
		Headcount: state.IntField("headcount"),
		Active:    state.BoolField("active"),
	}
	if shift.ID == "" {
		shift.ID = uuid.NewString()
	}
	return shift
}

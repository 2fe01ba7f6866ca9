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

// siteColumns are the fields captured in before/after snapshots and
// writable through changesets. An explicit list keeps state capture
// schema-driven instead of reflective.
var siteColumns = []string{"code", "name", "address", "timezone", "active"}

// SiteRepository persists sites (business units).
type SiteRepository struct {
	db *sqlx.DB
}

// NewSiteRepository constructs the repository.
func NewSiteRepository(db *sqlx.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// FindByID fetches a site by identifier.
func (r *SiteRepository) FindByID(ctx context.Context, id string) (*models.Site, error) {
	const query = `SELECT id, code, name, address, timezone, active, created_at, mdtz FROM sites WHERE id = $1`
	var site models.Site
	if err := r.db.GetContext(ctx, &site, query, id); err != nil {
		return nil, err
	}
	return &site, nil
}

// FindByCode fetches a site by its natural key.
func (r *SiteRepository) FindByCode(ctx context.Context, code string) (*models.Site, error) {
	const query = `SELECT id, code, name, address, timezone, active, created_at, mdtz FROM sites WHERE code = $1`
	var site models.Site
	if err := r.db.GetContext(ctx, &site, query, code); err != nil {
		return nil, err
	}
	return &site, nil
}

// Create inserts a new site row.
func (r *SiteRepository) Create(ctx context.Context, site *models.Site) error {
	if site.ID == "" {
		site.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if site.CreatedAt.IsZero() {
		site.CreatedAt = now
	}
	site.MDTZ = now
	const query = `INSERT INTO sites (id, code, name, address, timezone, active, created_at, mdtz)
		VALUES (:id, :code, :name, :address, :timezone, :active, :created_at, :mdtz)`
	if _, err := r.db.NamedExecContext(ctx, query, site); err != nil {
		return fmt.Errorf("create site: %w", err)
	}
	return nil
}

// UpdateFields writes a subset of snapshot columns.
func (r *SiteRepository) UpdateFields(ctx context.Context, id string, fields models.StateMap) error {
	setParts := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+2)
	for _, column := range siteColumns {
		if value, ok := fields[column]; ok {
			args = append(args, value)
			setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	if len(setParts) == 0 {
		return fmt.Errorf("no supported site fields to update")
	}
	args = append(args, time.Now().UTC())
	setParts = append(setParts, fmt.Sprintf("mdtz = $%d", len(args)))
	args = append(args, id)
	query := fmt.Sprintf("UPDATE sites SET %s WHERE id = $%d", strings.Join(setParts, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	return nil
}

// Delete removes the site row. Missing rows are not an error so
// rollback of a CREATE stays idempotent.
func (r *SiteRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete site: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check delete rows: %w", err)
	}
	return rows > 0, nil
}

// Snapshot captures the writable columns of a site row.
func (r *SiteRepository) Snapshot(site *models.Site) models.StateMap {
	if site == nil {
		return nil
	}
	return models.StateMap{
		"id":       site.ID,
		"code":     site.Code,
		"name":     site.Name,
		"address":  site.Address,
		"timezone": site.Timezone,
		"active":   site.Active,
	}
}

// FromState reconstructs a site from a stored snapshot. A fresh
// surrogate id is assigned when the snapshot carries none.
func (r *SiteRepository) FromState(state models.StateMap) *models.Site {
	site := &models.Site{
		ID:       state.StringField("id"),
		Code:     state.StringField("code"),
		Name:     state.StringField("name"),
		Address:  state.StringField("address"),
		Timezone: state.StringField("timezone"),
		Active:   state.BoolField("active"),
	}
	if site.ID == "" {
		site.ID = uuid.NewString()
	}
	return site
}

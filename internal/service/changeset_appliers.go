package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sentraops/siteops-api/internal/models"
)

// EntityRef identifies a concrete row touched by a change record.
type EntityRef struct {
	ID    string
	State models.StateMap
}

// EntityApplier executes tracked mutations for one entity kind. Lookup
// resolves the natural key so re-running a batch finds rows created by
// an earlier attempt instead of duplicating them; Restore re-inserts a
// deleted row from its before-state during rollback.
type EntityApplier interface {
	Kind() string
	Lookup(ctx context.Context, payload models.StateMap) (*EntityRef, error)
	Create(ctx context.Context, payload models.StateMap) (*EntityRef, error)
	Update(ctx context.Context, id string, fields models.StateMap) (*EntityRef, error)
	Delete(ctx context.Context, id string) (bool, error)
	Restore(ctx context.Context, state models.StateMap) error
}

type siteApplierStore interface {
	FindByID(ctx context.Context, id string) (*models.Site, error)
	FindByCode(ctx context.Context, code string) (*models.Site, error)
	Create(ctx context.Context, site *models.Site) error
	UpdateFields(ctx context.Context, id string, fields models.StateMap) error
	Delete(ctx context.Context, id string) (bool, error)
	Snapshot(site *models.Site) models.StateMap
	FromState(state models.StateMap) *models.Site
}

// SiteApplier applies changesets against sites, keyed by code.
type SiteApplier struct {
	repo siteApplierStore
}

// NewSiteApplier constructs the applier.
func NewSiteApplier(repo siteApplierStore) *SiteApplier {
	return &SiteApplier{repo: repo}
}

// Kind returns the entity kind handled by this applier.
func (a *SiteApplier) Kind() string { return models.EntityKindSite }

// Lookup resolves a site by its code. A missing row returns nil, nil.
func (a *SiteApplier) Lookup(ctx context.Context, payload models.StateMap) (*EntityRef, error) {
	code := payload.StringField("code")
	if code == "" {
		return nil, fmt.Errorf("site payload missing code")
	}
	site, err := a.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &EntityRef{ID: site.ID, State: a.repo.Snapshot(site)}, nil
}

// Create inserts a site from the payload.
func (a *SiteApplier) Create(ctx context.Context, payload models.StateMap) (*EntityRef, error) {
	site := a.repo.FromState(payload)
	if err := a.repo.Create(ctx, site); err != nil {
		return nil, err
	}
	return &EntityRef{ID: site.ID, State: a.repo.Snapshot(site)}, nil
}

// Update writes the given fields and returns the resulting state.
func (a *SiteApplier) Update(ctx context.Context, id string, fields models.StateMap) (*EntityRef, error) {
	if err := a.repo.UpdateFields(ctx, id, fields); err != nil {
		return nil, err
	}
	site, err := a.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &EntityRef{ID: site.ID, State: a.repo.Snapshot(site)}, nil
}

// Delete removes the site. A missing row is not an error so rollback
// of a CREATE stays idempotent.
func (a *SiteApplier) Delete(ctx context.Context, id string) (bool, error) {
	return a.repo.Delete(ctx, id)
}

// Restore re-inserts a site from its captured state.
func (a *SiteApplier) Restore(ctx context.Context, state models.StateMap) error {
	return a.repo.Create(ctx, a.repo.FromState(state))
}

type shiftApplierStore interface {
	FindByID(ctx context.Context, id string) (*models.Shift, error)
	FindBySiteAndName(ctx context.Context, siteID, name string) (*models.Shift, error)
	Create(ctx context.Context, shift *models.Shift) error
	UpdateFields(ctx context.Context, id string, fields models.StateMap) error
	Delete(ctx context.Context, id string) (bool, error)
	Snapshot(shift *models.Shift) models.StateMap
	FromState(state models.StateMap) *models.Shift
}

// ShiftApplier applies changesets against shifts, keyed by site + name.
type ShiftApplier struct {
	repo shiftApplierStore
}

// NewShiftApplier constructs the applier.
func NewShiftApplier(repo shiftApplierStore) *ShiftApplier {
	return &ShiftApplier{repo: repo}
}

// Kind returns the entity kind handled by this applier.
func (a *ShiftApplier) Kind() string { return models.EntityKindShift }

// Lookup resolves a shift by site and name. A missing row returns nil, nil.
func (a *ShiftApplier) Lookup(ctx context.Context, payload models.StateMap) (*EntityRef, error) {
	siteID := payload.StringField("site_id")
	name := payload.StringField("name")
	if siteID == "" || name == "" {
		return nil, fmt.Errorf("shift payload missing site_id or name")
	}
	shift, err := a.repo.FindBySiteAndName(ctx, siteID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &EntityRef{ID: shift.ID, State: a.repo.Snapshot(shift)}, nil
}

// Create inserts a shift from the payload.
func (a *ShiftApplier) Create(ctx context.Context, payload models.StateMap) (*EntityRef, error) {
	shift := a.repo.FromState(payload)
	if err := a.repo.Create(ctx, shift); err != nil {
		return nil, err
	}
	return &EntityRef{ID: shift.ID, State: a.repo.Snapshot(shift)}, nil
}

// Update writes the given fields and returns the resulting state.
func (a *ShiftApplier) Update(ctx context.Context, id string, fields models.StateMap) (*EntityRef, error) {
	if err := a.repo.UpdateFields(ctx, id, fields); err != nil {
		return nil, err
	}
	shift, err := a.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &EntityRef{ID: shift.ID, State: a.repo.Snapshot(shift)}, nil
}

// Delete removes the shift. A missing row is not an error.
func (a *ShiftApplier) Delete(ctx context.Context, id string) (bool, error) {
	return a.repo.Delete(ctx, id)
}

// Restore re-inserts a shift from its captured state.
func (a *ShiftApplier) Restore(ctx context.Context, state models.StateMap) error {
	return a.repo.Create(ctx, a.repo.FromState(state))
}

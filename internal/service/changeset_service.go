package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentraops/siteops-api/internal/dto"
	"github.com/sentraops/siteops-api/internal/models"
	"github.com/sentraops/siteops-api/internal/repository"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
	"github.com/sentraops/siteops-api/pkg/retry"
)

// Rollback complexity labels reported on changeset details.
const (
	RollbackComplexityLow  = "low"
	RollbackComplexityHigh = "high"
)

type changeSetStore interface {
	Create(ctx context.Context, cs *models.ChangeSet) error
	GetByID(ctx context.Context, id string) (*models.ChangeSet, error)
	List(ctx context.Context, filter models.ChangeSetFilter) ([]models.ChangeSet, error)
	UpdateApplyOutcome(ctx context.Context, id string, status models.ChangeSetStatus, total, successful, failed int, riskScore float64, appliedAt time.Time) error
	UpdateRiskScore(ctx context.Context, id string, total int, riskScore float64) error
	MarkRolledBack(ctx context.Context, id string, status models.ChangeSetStatus, by, reason string, at time.Time) error
	CreateRecord(ctx context.Context, rec *models.ChangeRecord) error
	UpdateRecordOutcome(ctx context.Context, rec *models.ChangeRecord) error
	ListRecords(ctx context.Context, changesetID string, descending bool) ([]models.ChangeRecord, error)
	UpdateRecordRollback(ctx context.Context, recordID string, status models.ChangeRecordStatus, attemptedAt time.Time, success bool, rollbackErr *string) error
}

type approvalReader interface {
	ListByChangeSet(ctx context.Context, changesetID string) ([]models.Approval, error)
}

type changesetObserver interface {
	ObserveChangesetApply(outcome string, records int)
	ObserveChangesetRollback(outcome string, records int)
}

// ChangeSetSettings tunes risk scoring and the apply retry policy.
type ChangeSetSettings struct {
	RiskThreshold     float64
	MaxSingleApprover int
	DeleteRiskFloor   float64
	RiskPerChange     float64
	ApplyRetry        retry.Policy
}

// DefaultChangeSetSettings returns the settings used when none are
// configured.
func DefaultChangeSetSettings() ChangeSetSettings {
	policy := retry.Default()
	policy.Retryable = repository.IsUniqueViolation
	return ChangeSetSettings{
		RiskThreshold:     0.7,
		MaxSingleApprover: 10,
		DeleteRiskFloor:   0.5,
		RiskPerChange:     0.05,
		ApplyRetry:        policy,
	}
}

// ChangeSetService tracks batches of entity mutations, scores their
// risk, applies them idempotently and reverses them record by record.
type ChangeSetService struct {
	repo      changeSetStore
	appliers  map[string]EntityApplier
	approvals approvalReader
	audit     auditLogger
	observer  changesetObserver
	logger    *zap.Logger
	settings  ChangeSetSettings
}

// ChangeSetServiceOption configures the service.
type ChangeSetServiceOption func(*ChangeSetService)

// WithEntityAppliers registers appliers keyed by entity kind.
func WithEntityAppliers(appliers ...EntityApplier) ChangeSetServiceOption {
	return func(s *ChangeSetService) {
		for _, applier := range appliers {
			if applier != nil {
				s.appliers[applier.Kind()] = applier
			}
		}
	}
}

// WithApprovalReader wires the approval gate checked before apply.
func WithApprovalReader(reader approvalReader) ChangeSetServiceOption {
	return func(s *ChangeSetService) {
		s.approvals = reader
	}
}

// WithChangesetObserver wires metrics collection.
func WithChangesetObserver(observer changesetObserver) ChangeSetServiceOption {
	return func(s *ChangeSetService) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// WithChangeSetSettings overrides risk scoring and retry behaviour.
func WithChangeSetSettings(settings ChangeSetSettings) ChangeSetServiceOption {
	return func(s *ChangeSetService) {
		if settings.RiskPerChange > 0 {
			s.settings.RiskPerChange = settings.RiskPerChange
		}
		if settings.DeleteRiskFloor > 0 {
			s.settings.DeleteRiskFloor = settings.DeleteRiskFloor
		}
		if settings.RiskThreshold > 0 {
			s.settings.RiskThreshold = settings.RiskThreshold
		}
		if settings.MaxSingleApprover > 0 {
			s.settings.MaxSingleApprover = settings.MaxSingleApprover
		}
		if settings.ApplyRetry.MaxAttempts > 0 {
			s.settings.ApplyRetry = settings.ApplyRetry
		}
	}
}

// NewChangeSetService constructs the service with defaults.
func NewChangeSetService(repo changeSetStore, audit auditLogger, logger *zap.Logger, opts ...ChangeSetServiceOption) *ChangeSetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ChangeSetService{
		repo:     repo,
		appliers: make(map[string]EntityApplier),
		audit:    audit,
		logger:   logger,
		settings: DefaultChangeSetSettings(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create opens a new pending changeset owned by the caller.
func (s *ChangeSetService) Create(ctx context.Context, req dto.CreateChangeSetRequest, actor *models.JWTClaims) (*models.ChangeSet, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasCapability(models.CapChangesetCreate) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "creating changesets requires the changeset:create capability")
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "description is required")
	}
	cs := &models.ChangeSet{
		Description: strings.TrimSpace(req.Description),
		Status:      models.ChangeSetStatusPending,
		ApprovedBy:  actor.UserID,
	}
	if err := s.repo.Create(ctx, cs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create changeset")
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionChangesetCreate, cs.ID, nil)
	return cs, nil
}

// List returns changesets matching the query.
func (s *ChangeSetService) List(ctx context.Context, query dto.ChangeSetQuery) ([]models.ChangeSet, error) {
	sets, err := s.repo.List(ctx, models.ChangeSetFilter{
		Status:     query.Status,
		ApprovedBy: query.ApprovedBy,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list changesets")
	}
	return sets, nil
}

// Get returns a changeset with its records, approvals and derived
// gating facts.
func (s *ChangeSetService) Get(ctx context.Context, id string) (*dto.ChangeSetDetail, error) {
	cs, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load changeset")
	}
	records, err := s.repo.ListRecords(ctx, id, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change records")
	}
	var approvals []models.Approval
	if s.approvals != nil {
		approvals, err = s.approvals.ListByChangeSet(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
		}
	}

	total := cs.TotalChanges
	if total < len(records) {
		total = len(records)
	}
	hasDelete := hasDeleteRecord(records)
	risk := s.CalculateRiskScore(total, hasDelete)
	if cs.RiskScore > risk {
		risk = cs.RiskScore
	}

	return &dto.ChangeSetDetail{
		ChangeSet:                 *cs,
		Records:                   records,
		Approvals:                 approvals,
		RequiresTwoPersonApproval: s.RequiresTwoPersonApproval(total, risk),
		CanBeApplied:              s.canBeApplied(cs, total, risk, approvals),
		RollbackComplexity:        s.rollbackComplexity(cs),
	}, nil
}

// TrackChangeParams describes one mutation recorded against a pending
// changeset without applying it.
type TrackChangeParams struct {
	EntityKind string
	EntityID   string
	Action     models.ChangeAction
	Before     models.StateMap
	After      models.StateMap
}

// TrackChange appends a record to a pending changeset and recomputes
// the risk score. Scores never decrease as records accumulate.
func (s *ChangeSetService) TrackChange(ctx context.Context, changesetID string, params TrackChangeParams) (*models.ChangeRecord, error) {
	cs, err := s.repo.GetByID(ctx, changesetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load changeset")
	}
	if cs.Status != models.ChangeSetStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "changeset is no longer accepting changes")
	}
	records, err := s.repo.ListRecords(ctx, changesetID, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change records")
	}

	rec := &models.ChangeRecord{
		ChangeSetID: changesetID,
		Seq:         len(records) + 1,
		EntityKind:  params.EntityKind,
		EntityID:    params.EntityID,
		Action:      params.Action,
		BeforeState: params.Before.JSON(),
		AfterState:  params.After.JSON(),
		Status:      models.ChangeRecordStatusPending,
	}
	if err := s.repo.CreateRecord(ctx, rec); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to track change")
	}

	total := len(records) + 1
	hasDelete := params.Action == models.ChangeActionDelete || hasDeleteRecord(records)
	risk := s.CalculateRiskScore(total, hasDelete)
	if risk < cs.RiskScore {
		risk = cs.RiskScore
	}
	if err := s.repo.UpdateRiskScore(ctx, changesetID, total, risk); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update risk score")
	}
	return rec, nil
}

// CalculateRiskScore grows linearly with batch size, capped at 1.0. A
// batch containing any delete never scores below the delete floor.
func (s *ChangeSetService) CalculateRiskScore(totalChanges int, hasDelete bool) float64 {
	if totalChanges < 0 {
		totalChanges = 0
	}
	score := s.settings.RiskPerChange * float64(totalChanges)
	if score > 1 {
		score = 1
	}
	if hasDelete && score < s.settings.DeleteRiskFloor {
		score = s.settings.DeleteRiskFloor
	}
	return score
}

// RequiresTwoPersonApproval decides whether a second approver must sign
// off. Batches above the single-approver cap always need one; batches
// of three or fewer never do.
func (s *ChangeSetService) RequiresTwoPersonApproval(totalChanges int, riskScore float64) bool {
	if totalChanges > s.settings.MaxSingleApprover {
		return true
	}
	if totalChanges <= 3 {
		return false
	}
	return riskScore >= s.settings.RiskThreshold
}

// ApplyRecommendations applies a batch of proposed mutations under the
// changeset. Records tracked earlier but never executed run first, in
// their original seq order, so the changeset can only reach a terminal
// status with every record decided. Each recommendation is applied at
// most once per entity: the natural-key lookup turns re-runs of creates
// into updates, and duplicate-key races are retried. Partial failure
// never aborts the batch.
func (s *ChangeSetService) ApplyRecommendations(ctx context.Context, changesetID string, req dto.ApplyRecommendationsRequest, actor *models.JWTClaims) (*dto.ChangeSetDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasCapability(models.CapChangesetApply) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "applying changesets requires the changeset:apply capability")
	}

	cs, err := s.repo.GetByID(ctx, changesetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load changeset")
	}
	if cs.Status != models.ChangeSetStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "changeset has already been applied or rolled back")
	}

	existing, err := s.repo.ListRecords(ctx, changesetID, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change records")
	}
	pending := 0
	for i := range existing {
		if existing[i].Status == models.ChangeRecordStatusPending {
			pending++
		}
	}
	if len(req.Recommendations) == 0 && pending == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one recommendation is required")
	}

	total := len(existing) + len(req.Recommendations)
	hasDelete := hasDeleteRecommendation(req.Recommendations) || hasDeleteRecord(existing)
	risk := s.CalculateRiskScore(total, hasDelete)
	if risk < cs.RiskScore {
		risk = cs.RiskScore
	}

	if s.approvals != nil {
		approvals, err := s.approvals.ListByChangeSet(ctx, changesetID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
		}
		if !s.approvalsSatisfied(total, risk, approvals) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "changeset requires approval before it can be applied")
		}
	}

	successful := cs.SuccessfulChanges
	failed := cs.FailedChanges
	applied := 0
	for i := range existing {
		rec := &existing[i]
		if rec.Status != models.ChangeRecordStatusPending {
			continue
		}
		payload := rec.AfterState
		if rec.Action == models.ChangeActionDelete {
			payload = rec.BeforeState
		}
		s.execute(ctx, rec, payload, nil)
		if rec.Status == models.ChangeRecordStatusSuccess {
			successful++
		} else {
			failed++
		}
		applied++
		if err := s.repo.UpdateRecordOutcome(ctx, rec); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist change record")
		}
	}
	seq := len(existing)
	for _, rec := range req.Recommendations {
		seq++
		record := s.applyOne(ctx, changesetID, seq, rec)
		if record.Status == models.ChangeRecordStatusSuccess {
			successful++
		} else {
			failed++
		}
		applied++
		if err := s.repo.CreateRecord(ctx, record); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist change record")
		}
	}

	status := models.ChangeSetStatusApplied
	if failed > 0 {
		status = models.ChangeSetStatusPartiallyApplied
	}
	if err := s.repo.UpdateApplyOutcome(ctx, changesetID, status, total, successful, failed, risk, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "changeset was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize changeset")
	}
	if s.observer != nil {
		s.observer.ObserveChangesetApply(string(status), applied)
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionChangesetApply, changesetID, []byte(fmt.Sprintf(`{"status":%q,"successful":%d,"failed":%d}`, status, successful, failed)))

	return s.Get(ctx, changesetID)
}

// applyOne executes a single recommendation and returns its record.
// Failures are captured in the record, never returned as errors.
func (s *ChangeSetService) applyOne(ctx context.Context, changesetID string, seq int, rec dto.Recommendation) *models.ChangeRecord {
	record := &models.ChangeRecord{
		ChangeSetID: changesetID,
		Seq:         seq,
		EntityKind:  strings.ToLower(strings.TrimSpace(rec.EntityKind)),
		Action:      models.ChangeAction(strings.ToUpper(strings.TrimSpace(rec.Action))),
	}
	s.execute(ctx, record, rec.Payload, rec.UpdateFields)
	return record
}

// execute runs a record's action through its applier, stamping status,
// entity id and captured states on the record in place. Failures are
// captured in the record, never returned.
func (s *ChangeSetService) execute(ctx context.Context, record *models.ChangeRecord, payloadJSON []byte, updateFields []string) {
	record.Status = models.ChangeRecordStatusSuccess
	record.Error = nil
	fail := func(err error) {
		msg := err.Error()
		record.Status = models.ChangeRecordStatusFailed
		record.Error = &msg
	}

	applier, ok := s.appliers[record.EntityKind]
	if !ok {
		fail(fmt.Errorf("no applier registered for entity kind %q", record.EntityKind))
		return
	}
	payload, err := models.StateMapFromJSON(payloadJSON)
	if err != nil {
		fail(fmt.Errorf("invalid payload: %w", err))
		return
	}

	var before, after models.StateMap
	applyErr := s.settings.ApplyRetry.Do(ctx, func(ctx context.Context) error {
		ref, err := applier.Lookup(ctx, payload)
		if err != nil {
			return err
		}
		switch record.Action {
		case models.ChangeActionCreate:
			if ref != nil {
				// Already exists, most likely from an earlier attempt of
				// this same batch. Converge instead of duplicating.
				before = ref.State
				updated, err := applier.Update(ctx, ref.ID, restrictFields(payload, updateFields))
				if err != nil {
					return err
				}
				record.EntityID = ref.ID
				after = updated.State
				return nil
			}
			created, err := applier.Create(ctx, payload)
			if err != nil {
				return err
			}
			record.EntityID = created.ID
			after = created.State
			return nil
		case models.ChangeActionUpdate:
			if ref == nil {
				return fmt.Errorf("entity not found for update")
			}
			before = ref.State
			updated, err := applier.Update(ctx, ref.ID, restrictFields(payload, updateFields))
			if err != nil {
				return err
			}
			record.EntityID = ref.ID
			after = updated.State
			return nil
		case models.ChangeActionDelete:
			if ref == nil {
				// Already gone; deleting again is a success.
				return nil
			}
			before = ref.State
			record.EntityID = ref.ID
			_, err := applier.Delete(ctx, ref.ID)
			return err
		default:
			return fmt.Errorf("unsupported action %q", record.Action)
		}
	})
	if applyErr != nil {
		fail(applyErr)
		return
	}
	record.BeforeState = before.JSON()
	record.AfterState = after.JSON()
}

// Rollback reverses a changeset's successful records in reverse apply
// order. Each record is attempted independently; the changeset only
// reaches ROLLED_BACK when every attempted reversal succeeds.
func (s *ChangeSetService) Rollback(ctx context.Context, changesetID string, req dto.RollbackChangeSetRequest, actor *models.JWTClaims) (*models.RollbackResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasCapability(models.CapChangesetRollback) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "rolling back changesets requires the changeset:rollback capability")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rollback reason is required")
	}

	cs, err := s.repo.GetByID(ctx, changesetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load changeset")
	}
	if cs.Status != models.ChangeSetStatusApplied && cs.Status != models.ChangeSetStatusPartiallyApplied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only applied changesets can be rolled back")
	}

	records, err := s.repo.ListRecords(ctx, changesetID, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change records")
	}

	result := &models.RollbackResult{ChangeSetID: changesetID}
	now := time.Now().UTC()
	for i := range records {
		rec := &records[i]
		if rec.Status != models.ChangeRecordStatusSuccess {
			result.Skipped++
			continue
		}
		if err := s.reverseRecord(ctx, rec); err != nil {
			msg := err.Error()
			result.Failed++
			result.FailedRecord = append(result.FailedRecord, rec.ID)
			if updErr := s.repo.UpdateRecordRollback(ctx, rec.ID, rec.Status, now, false, &msg); updErr != nil {
				s.logger.Warn("failed to persist rollback failure", zap.String("record", rec.ID), zap.Error(updErr))
			}
			continue
		}
		result.RolledBack++
		if updErr := s.repo.UpdateRecordRollback(ctx, rec.ID, models.ChangeRecordStatusRolledBack, now, true, nil); updErr != nil {
			s.logger.Warn("failed to persist rollback outcome", zap.String("record", rec.ID), zap.Error(updErr))
		}
	}

	finalStatus := models.ChangeSetStatusRolledBack
	if result.Failed > 0 {
		finalStatus = models.ChangeSetStatusPartiallyApplied
	}
	result.FinalStatus = finalStatus
	if err := s.repo.MarkRolledBack(ctx, changesetID, finalStatus, actor.UserID, strings.TrimSpace(req.Reason), now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "changeset was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize rollback")
	}
	if s.observer != nil {
		s.observer.ObserveChangesetRollback(string(finalStatus), result.RolledBack)
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionChangesetRollback, changesetID, []byte(fmt.Sprintf(`{"status":%q,"rolled_back":%d,"failed":%d}`, finalStatus, result.RolledBack, result.Failed)))
	return result, nil
}

func (s *ChangeSetService) reverseRecord(ctx context.Context, rec *models.ChangeRecord) error {
	applier, ok := s.appliers[rec.EntityKind]
	if !ok {
		return fmt.Errorf("no applier registered for entity kind %q", rec.EntityKind)
	}
	before, err := models.StateMapFromJSON(rec.BeforeState)
	if err != nil {
		return fmt.Errorf("invalid before state: %w", err)
	}
	switch rec.Action {
	case models.ChangeActionCreate:
		if rec.EntityID == "" {
			return nil
		}
		_, err := applier.Delete(ctx, rec.EntityID)
		return err
	case models.ChangeActionUpdate:
		if before == nil || rec.EntityID == "" {
			return fmt.Errorf("no before state captured")
		}
		_, err := applier.Update(ctx, rec.EntityID, before)
		return err
	case models.ChangeActionDelete:
		if before == nil {
			// Delete was a no-op, nothing to restore.
			return nil
		}
		return applier.Restore(ctx, before)
	default:
		return fmt.Errorf("unsupported action %q", rec.Action)
	}
}

func (s *ChangeSetService) canBeApplied(cs *models.ChangeSet, total int, risk float64, approvals []models.Approval) bool {
	if cs.Status != models.ChangeSetStatusPending {
		return false
	}
	if s.approvals == nil {
		return true
	}
	return s.approvalsSatisfied(total, risk, approvals)
}

// approvalsSatisfied checks decided slots against the gating rules. A
// rejection anywhere blocks apply outright.
func (s *ChangeSetService) approvalsSatisfied(total int, risk float64, approvals []models.Approval) bool {
	var primaryApproved, secondaryApproved bool
	for _, approval := range approvals {
		switch approval.Status {
		case models.ApprovalStatusRejected:
			return false
		case models.ApprovalStatusApproved:
			switch approval.Level {
			case models.ApprovalLevelPrimary:
				primaryApproved = true
			case models.ApprovalLevelSecondary:
				secondaryApproved = true
			}
		}
	}
	if s.RequiresTwoPersonApproval(total, risk) {
		return primaryApproved && secondaryApproved
	}
	if risk >= s.settings.RiskThreshold {
		return primaryApproved
	}
	return true
}

// rollbackComplexity is "high" exactly when the set carries failed
// records, signalling a manual review before attempting rollback.
func (s *ChangeSetService) rollbackComplexity(cs *models.ChangeSet) string {
	if cs.FailedChanges > 0 {
		return RollbackComplexityHigh
	}
	return RollbackComplexityLow
}

func (s *ChangeSetService) emitAudit(ctx context.Context, userID, action, resourceID string, values []byte) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "changeset",
		ResourceID: &resourceID,
		NewValues:  values,
		IPAddress:  "system",
		UserAgent:  "changeset-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func restrictFields(payload models.StateMap, fields []string) models.StateMap {
	if len(fields) == 0 {
		return payload
	}
	restricted := make(models.StateMap, len(fields))
	for _, field := range fields {
		if value, ok := payload[field]; ok {
			restricted[field] = value
		}
	}
	return restricted
}

func hasDeleteRecord(records []models.ChangeRecord) bool {
	for _, rec := range records {
		if rec.Action == models.ChangeActionDelete {
			return true
		}
	}
	return false
}

func hasDeleteRecommendation(recs []dto.Recommendation) bool {
	for _, rec := range recs {
		if strings.EqualFold(rec.Action, string(models.ChangeActionDelete)) {
			return true
		}
	}
	return false
}

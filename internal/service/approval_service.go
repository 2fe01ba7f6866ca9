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
)

type approvalStore interface {
	Create(ctx context.Context, approval *models.Approval) error
	GetByID(ctx context.Context, id string) (*models.Approval, error)
	ListByChangeSet(ctx context.Context, changesetID string) ([]models.Approval, error)
	Decide(ctx context.Context, params repository.DecideApprovalParams) error
}

type approvalChangesetReader interface {
	GetByID(ctx context.Context, id string) (*models.ChangeSet, error)
	ListRecords(ctx context.Context, changesetID string, descending bool) ([]models.ChangeRecord, error)
}

type secondaryApproverFinder interface {
	FindSecondaryApprover(ctx context.Context, excludeUserID string) (*models.User, error)
}

// approvalGate answers the two-person question for a changeset. The
// ChangeSetService implements it so scoring rules live in one place.
type approvalGate interface {
	CalculateRiskScore(totalChanges int, hasDelete bool) float64
	RequiresTwoPersonApproval(totalChanges int, riskScore float64) bool
}

type escalationSink interface {
	Raise(ctx context.Context, ticket *models.EscalationTicket) error
}

// ApprovalService runs the review workflow for changesets: one primary
// slot per set, an auto-assigned secondary when two-person approval is
// required, and escalation tickets for decisions neither approver will
// own.
type ApprovalService struct {
	repo       approvalStore
	changesets approvalChangesetReader
	users      secondaryApproverFinder
	gate       approvalGate
	tickets    escalationSink
	audit      auditLogger
	logger     *zap.Logger
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithEscalationSink wires ticket creation for escalated decisions.
func WithEscalationSink(sink escalationSink) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.tickets = sink
	}
}

// NewApprovalService constructs the service.
func NewApprovalService(repo approvalStore, changesets approvalChangesetReader, users secondaryApproverFinder, gate approvalGate, audit auditLogger, logger *zap.Logger, opts ...ApprovalServiceOption) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApprovalService{
		repo:       repo,
		changesets: changesets,
		users:      users,
		gate:       gate,
		audit:      audit,
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Open creates the approval slots for a pending changeset. The caller
// becomes the primary approver; when the batch requires two-person
// approval a secondary slot is assigned to another administrator.
func (s *ApprovalService) Open(ctx context.Context, changesetID string, actor *models.JWTClaims) ([]models.Approval, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasCapability(models.CapApprovalDecide) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "opening approvals requires the approval:decide capability")
	}

	cs, err := s.changesets.GetByID(ctx, changesetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load changeset")
	}
	if cs.Status != models.ChangeSetStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "changeset is no longer pending approval")
	}

	existing, err := s.repo.ListByChangeSet(ctx, changesetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	if len(existing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "approval workflow already opened for this changeset")
	}

	records, err := s.changesets.ListRecords(ctx, changesetID, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change records")
	}
	total := cs.TotalChanges
	if total < len(records) {
		total = len(records)
	}
	risk := s.gate.CalculateRiskScore(total, hasDeleteRecord(records))
	if cs.RiskScore > risk {
		risk = cs.RiskScore
	}

	primary := &models.Approval{
		ChangeSetID: changesetID,
		Approver:    actor.UserID,
		Level:       models.ApprovalLevelPrimary,
		Status:      models.ApprovalStatusPending,
	}
	if err := s.repo.Create(ctx, primary); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create primary approval")
	}
	slots := []models.Approval{*primary}

	if s.gate.RequiresTwoPersonApproval(total, risk) {
		second, err := s.users.FindSecondaryApprover(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no eligible secondary approver available")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign secondary approver")
		}
		secondary := &models.Approval{
			ChangeSetID: changesetID,
			Approver:    second.ID,
			Level:       models.ApprovalLevelSecondary,
			Status:      models.ApprovalStatusPending,
		}
		if err := s.repo.Create(ctx, secondary); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create secondary approval")
		}
		slots = append(slots, *secondary)
	}
	return slots, nil
}

// ListByChangeSet returns the approval slots for a changeset.
func (s *ApprovalService) ListByChangeSet(ctx context.Context, changesetID string) ([]models.Approval, error) {
	approvals, err := s.repo.ListByChangeSet(ctx, changesetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	return approvals, nil
}

// Decide records an approve, reject or escalate decision on a pending
// slot. Decisions are terminal; a second decision on the same slot is
// a conflict. Escalations raise a ticket for manual review.
func (s *ApprovalService) Decide(ctx context.Context, approvalID string, decision models.ApprovalStatus, req dto.ApprovalDecisionRequest, actor *models.JWTClaims) (*models.Approval, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasCapability(models.CapApprovalDecide) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "deciding approvals requires the approval:decide capability")
	}
	switch decision {
	case models.ApprovalStatusApproved, models.ApprovalStatusRejected, models.ApprovalStatusEscalated:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be APPROVED, REJECTED or ESCALATED")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason is required")
	}

	approval, err := s.repo.GetByID(ctx, approvalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval")
	}
	if approval.Approver != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "approval is assigned to a different reviewer")
	}
	if approval.Status != models.ApprovalStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "approval has already been decided")
	}

	now := time.Now().UTC()
	reason := strings.TrimSpace(req.Reason)
	params := repository.DecideApprovalParams{
		ID:         approvalID,
		Status:     decision,
		DecisionAt: now,
		Reason:     &reason,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	}
	if strings.TrimSpace(req.Conditions) != "" {
		conditions := strings.TrimSpace(req.Conditions)
		params.Conditions = &conditions
	}
	if strings.TrimSpace(req.Modifications) != "" {
		params.Modifications = []byte(req.Modifications)
	}
	if err := s.repo.Decide(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race with another decision on the same slot.
			return nil, appErrors.Clone(appErrors.ErrConflict, "approval has already been decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	approval.Status = decision
	approval.DecisionAt = &now
	approval.Reason = params.Reason
	approval.Conditions = params.Conditions
	approval.Modifications = params.Modifications
	approval.IPAddress = params.IPAddress
	approval.UserAgent = params.UserAgent

	if decision == models.ApprovalStatusEscalated {
		s.escalate(ctx, approval, actor, reason)
	}
	s.emitAudit(ctx, actor.UserID, approval, decision)
	return approval, nil
}

func (s *ApprovalService) escalate(ctx context.Context, approval *models.Approval, actor *models.JWTClaims, reason string) {
	if s.tickets == nil {
		return
	}
	ticket := &models.EscalationTicket{
		ChangeSetID: approval.ChangeSetID,
		ApprovalID:  approval.ID,
		Subject:     fmt.Sprintf("Changeset %s escalated by %s review", approval.ChangeSetID, strings.ToLower(string(approval.Level))),
		Description: reason,
		RaisedBy:    actor.UserID,
	}
	if err := s.tickets.Raise(ctx, ticket); err != nil {
		s.logger.Error("failed to raise escalation ticket",
			zap.String("changeset_id", approval.ChangeSetID),
			zap.String("approval_id", approval.ID),
			zap.Error(err))
	}
}

func (s *ApprovalService) emitAudit(ctx context.Context, userID string, approval *models.Approval, decision models.ApprovalStatus) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionApprovalDecision,
		Resource:   "approval",
		ResourceID: &approval.ID,
		NewValues:  []byte(fmt.Sprintf(`{"changeset_id":%q,"decision":%q,"level":%q}`, approval.ChangeSetID, decision, approval.Level)),
		IPAddress:  "system",
		UserAgent:  "approval-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

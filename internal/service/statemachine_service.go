package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sentraops/siteops-api/internal/dto"
	"github.com/sentraops/siteops-api/internal/models"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
	"github.com/sentraops/siteops-api/pkg/lock"
	"github.com/sentraops/siteops-api/pkg/retry"
)

// transitionStore is the per-kind persistence surface the state machine
// drives. TransitionStatus must perform a guarded update and write the
// transition audit in the same transaction.
type transitionStore interface {
	CurrentStatus(ctx context.Context, id string) (models.Status, error)
	TransitionStatus(ctx context.Context, id string, from, to models.Status, audit *models.TransitionAudit) error
}

// transitionObserver receives transition outcomes for instrumentation.
type transitionObserver interface {
	ObserveTransition(kind, outcome string, lockWait time.Duration)
}

// transitionGraph is shared by every guarded entity kind. COMPLETED and
// CANCELLED are terminal.
var transitionGraph = map[models.Status][]models.Status{
	models.StatusAssigned:   {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelled},
	models.StatusCompleted:  {},
	models.StatusCancelled:  {},
}

func transitionAllowed(from, to models.Status) bool {
	for _, next := range transitionGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionParams carries one transition request through the engine.
// SkipPermissions is reserved for internal callers such as scheduled
// jobs; HTTP handlers always leave it false.
type TransitionParams struct {
	EntityKind      string
	EntityID        string
	Request         dto.TransitionRequest
	Actor           *models.JWTClaims
	SkipPermissions bool
}

// StateMachineService serializes status transitions behind per-entity
// locks. Every committed transition leaves exactly one audit row; a
// request that targets the entity's current status is a successful
// no-op and leaves none.
type StateMachineService struct {
	stores   map[string]transitionStore
	locks    lock.Manager
	audit    auditLogger
	observer transitionObserver
	logger   *zap.Logger

	lockTTL     time.Duration
	lockTimeout time.Duration
	lockPolicy  retry.Policy
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// StateMachineOption configures the service.
type StateMachineOption func(*StateMachineService)

// WithTransitionStore registers the persistence for one entity kind.
func WithTransitionStore(kind string, store transitionStore) StateMachineOption {
	return func(s *StateMachineService) {
		if kind != "" && store != nil {
			s.stores[kind] = store
		}
	}
}

// WithTransitionObserver wires metrics collection.
func WithTransitionObserver(observer transitionObserver) StateMachineOption {
	return func(s *StateMachineService) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// WithLockSettings overrides lease TTL, blocking timeout and the
// acquisition retry policy.
func WithLockSettings(ttl, timeout time.Duration, policy retry.Policy) StateMachineOption {
	return func(s *StateMachineService) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
		if timeout > 0 {
			s.lockTimeout = timeout
		}
		if policy.MaxAttempts > 0 {
			s.lockPolicy = policy
		}
	}
}

// NewStateMachineService constructs the engine with defaults.
func NewStateMachineService(locks lock.Manager, audit auditLogger, logger *zap.Logger, opts ...StateMachineOption) *StateMachineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := retry.Default()
	policy.Retryable = func(err error) bool {
		return errors.Is(err, lock.ErrNotAcquired)
	}
	svc := &StateMachineService{
		stores:      make(map[string]transitionStore),
		locks:       locks,
		audit:       audit,
		logger:      logger,
		lockTTL:     30 * time.Second,
		lockTimeout: 5 * time.Second,
		lockPolicy:  policy,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// TransitionWithLock moves an entity into the target status under its
// per-entity lock. The status is re-read after acquisition so the
// decision is never made on a stale row.
func (s *StateMachineService) TransitionWithLock(ctx context.Context, params TransitionParams) (*dto.TransitionResult, error) {
	store, ok := s.stores[params.EntityKind]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported entity kind: %s", params.EntityKind))
	}
	to := params.Request.ToStatus
	if _, known := transitionGraph[to]; !known {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown target status: %s", to))
	}

	if !params.SkipPermissions {
		if params.Actor == nil {
			return nil, appErrors.ErrUnauthorized
		}
		if !models.HasCapability(params.Actor.Role, models.TransitionCapability(params.EntityKind, to)) {
			return nil, appErrors.Clone(appErrors.ErrPermissionDenied,
				fmt.Sprintf("role %s may not move %s to %s", params.Actor.Role, params.EntityKind, to))
		}
	}

	lockStart := time.Now()
	handle, err := s.acquire(ctx, params.EntityKind, params.EntityID)
	lockWait := time.Since(lockStart)
	if err != nil {
		s.observe(params.EntityKind, "lock_timeout", lockWait)
		return nil, appErrors.Wrap(err, appErrors.ErrLockAcquisition.Code, appErrors.ErrLockAcquisition.Status, appErrors.ErrLockAcquisition.Message)
	}
	defer func() {
		if releaseErr := s.locks.Release(context.WithoutCancel(ctx), handle); releaseErr != nil {
			s.logger.Warn("lock release failed",
				zap.String("key", handle.Key),
				zap.Error(releaseErr))
		}
	}()

	current, err := store.CurrentStatus(ctx, params.EntityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read entity status")
	}

	result := &dto.TransitionResult{
		Success:    true,
		EntityKind: params.EntityKind,
		EntityID:   params.EntityID,
		FromStatus: current,
		ToStatus:   to,
	}
	if current == to {
		result.NoOp = true
		s.observe(params.EntityKind, "noop", lockWait)
		return result, nil
	}
	if !transitionAllowed(current, to) {
		s.observe(params.EntityKind, "invalid", lockWait)
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move %s from %s to %s", params.EntityKind, current, to))
	}

	audit := &models.TransitionAudit{
		EntityKind: params.EntityKind,
		EntityID:   params.EntityID,
		FromStatus: current,
		ToStatus:   to,
		Actor:      actorID(params.Actor),
		Reason:     params.Request.Reason,
		Comments:   params.Request.Comments,
		Metadata:   append([]byte(nil), params.Request.Metadata...),
	}
	if err := store.TransitionStatus(ctx, params.EntityID, current, to, audit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The row left the source status despite the lock, e.g. a
			// direct DB write. Surface as a conflict, not a 500.
			s.observe(params.EntityKind, "conflict", lockWait)
			return nil, appErrors.Clone(appErrors.ErrConflict, "entity status changed concurrently")
		}
		s.observe(params.EntityKind, "error", lockWait)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transition")
	}

	s.observe(params.EntityKind, "success", lockWait)
	s.emitAudit(ctx, params, current)
	return result, nil
}

func (s *StateMachineService) acquire(ctx context.Context, kind, id string) (*lock.Handle, error) {
	key := lock.Key(kind, id)
	var handle *lock.Handle
	err := s.lockPolicy.Do(ctx, func(ctx context.Context) error {
		var acquireErr error
		handle, acquireErr = s.locks.Acquire(ctx, key, s.lockTTL, s.lockTimeout)
		return acquireErr
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (s *StateMachineService) observe(kind, outcome string, lockWait time.Duration) {
	if s.observer != nil {
		s.observer.ObserveTransition(kind, outcome, lockWait)
	}
}

func (s *StateMachineService) emitAudit(ctx context.Context, params TransitionParams, from models.Status) {
	if s.audit == nil {
		return
	}
	actor := actorID(params.Actor)
	log := &models.AuditLog{
		Action:     models.AuditActionTransition,
		Resource:   params.EntityKind,
		ResourceID: &params.EntityID,
		OldValues:  []byte(fmt.Sprintf(`{"status":%q}`, from)),
		NewValues:  []byte(fmt.Sprintf(`{"status":%q}`, params.Request.ToStatus)),
		IPAddress:  "system",
		UserAgent:  "statemachine-service",
	}
	if actor != "" {
		log.UserID = &actor
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func actorID(claims *models.JWTClaims) string {
	if claims == nil {
		return "system"
	}
	return claims.UserID
}

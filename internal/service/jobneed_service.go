package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sentraops/siteops-api/internal/dto"
	"github.com/sentraops/siteops-api/internal/models"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
	"github.com/sentraops/siteops-api/pkg/lock"
	"github.com/sentraops/siteops-api/pkg/retry"
)

type jobneedStore interface {
	FindByID(ctx context.Context, id string) (*models.Jobneed, error)
	UpdateCheckpointWithParent(ctx context.Context, id, jobID string, fields map[string]interface{}) error
}

// JobneedService handles checkpoint patches. Updates lock the parent
// job, not the jobneed: all checkpoints of one tour serialize against
// each other and against transitions of the job itself.
type JobneedService struct {
	repo   jobneedStore
	locks  lock.Manager
	logger *zap.Logger

	lockTTL     time.Duration
	lockTimeout time.Duration
	lockPolicy  retry.Policy
}

// JobneedServiceOption configures the service.
type JobneedServiceOption func(*JobneedService)

// WithJobneedLockSettings overrides lease TTL, blocking timeout and the
// acquisition retry policy.
func WithJobneedLockSettings(ttl, timeout time.Duration, policy retry.Policy) JobneedServiceOption {
	return func(s *JobneedService) {
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

// NewJobneedService constructs the service with defaults.
func NewJobneedService(repo jobneedStore, locks lock.Manager, logger *zap.Logger, opts ...JobneedServiceOption) *JobneedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := retry.Default()
	policy.Retryable = func(err error) bool {
		return errors.Is(err, lock.ErrNotAcquired)
	}
	svc := &JobneedService{
		repo:        repo,
		locks:       locks,
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

// UpdateCheckpoint patches allowed jobneed fields and bumps the parent
// job's modification stamp, all under the parent-keyed lock.
func (s *JobneedService) UpdateCheckpoint(ctx context.Context, jobneedID string, req dto.CheckpointUpdateRequest, actor *models.JWTClaims) (*models.Jobneed, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasCapability(models.CapCheckpointUpdate) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "checkpoint updates require the checkpoint:update capability")
	}

	fields := make(map[string]interface{}, 3)
	if req.ExpiryTime != nil {
		fields["expiry_time"] = *req.ExpiryTime
	}
	if req.Checkpoint != nil {
		fields["checkpoint"] = *req.Checkpoint
	}
	if req.AssignedTo != nil {
		fields["assigned_to"] = *req.AssignedTo
	}
	if len(fields) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no checkpoint fields provided")
	}

	jobneed, err := s.repo.FindByID(ctx, jobneedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load jobneed")
	}

	key := lock.Key(models.EntityKindJob, jobneed.JobID)
	var handle *lock.Handle
	err = s.lockPolicy.Do(ctx, func(ctx context.Context) error {
		var acquireErr error
		handle, acquireErr = s.locks.Acquire(ctx, key, s.lockTTL, s.lockTimeout)
		return acquireErr
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrLockAcquisition.Code, appErrors.ErrLockAcquisition.Status, appErrors.ErrLockAcquisition.Message)
	}
	defer func() {
		if releaseErr := s.locks.Release(context.WithoutCancel(ctx), handle); releaseErr != nil {
			s.logger.Warn("lock release failed", zap.String("key", handle.Key), zap.Error(releaseErr))
		}
	}()

	if err := s.repo.UpdateCheckpointWithParent(ctx, jobneedID, jobneed.JobID, fields); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update checkpoint")
	}

	updated, err := s.repo.FindByID(ctx, jobneedID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload jobneed")
	}
	return updated, nil
}

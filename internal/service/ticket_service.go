package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentraops/siteops-api/internal/models"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
	"github.com/sentraops/siteops-api/pkg/jobs"
)

type ticketStore interface {
	Create(ctx context.Context, ticket *models.EscalationTicket) error
	ListByChangeSet(ctx context.Context, changesetID string) ([]models.EscalationTicket, error)
}

// TicketService persists escalation tickets. With a queue attached,
// Raise hands the write to a background worker so the approval decision
// does not wait on it.
type TicketService struct {
	repo   ticketStore
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewTicketService constructs the service. Pass a nil queue for
// synchronous writes.
func NewTicketService(repo ticketStore, logger *zap.Logger) *TicketService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{repo: repo, logger: logger}
}

// StartQueue attaches a background queue and launches its workers.
func (s *TicketService) StartQueue(ctx context.Context, opts jobs.Options) {
	s.queue = jobs.NewQueue("escalation-tickets", func(ctx context.Context, task jobs.Task) error {
		ticket, ok := task.Payload.(*models.EscalationTicket)
		if !ok {
			s.logger.Error("unexpected ticket payload", zap.String("task_id", task.ID))
			return nil
		}
		return s.repo.Create(ctx, ticket)
	}, opts)
	s.queue.Start(ctx)
}

// StopQueue drains the background workers.
func (s *TicketService) StopQueue() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

// Raise records an escalation ticket, asynchronously when a queue is
// running.
func (s *TicketService) Raise(ctx context.Context, ticket *models.EscalationTicket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Task{ID: ticket.ID, Kind: "escalation", Payload: ticket}); err == nil {
			return nil
		}
		// Queue unavailable, fall through to a direct write.
	}
	if err := s.repo.Create(ctx, ticket); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create escalation ticket")
	}
	return nil
}

// ListByChangeSet returns the tickets raised for a changeset.
func (s *TicketService) ListByChangeSet(ctx context.Context, changesetID string) ([]models.EscalationTicket, error) {
	tickets, err := s.repo.ListByChangeSet(ctx, changesetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list escalation tickets")
	}
	return tickets, nil
}

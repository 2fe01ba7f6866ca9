package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sentraops/siteops-api/internal/models"
)

// TicketRepository persists escalation tickets.
type TicketRepository struct {
	db *sqlx.DB
}

// NewTicketRepository constructs the repository.
func NewTicketRepository(db *sqlx.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// Create inserts an escalation ticket.
func (r *TicketRepository) Create(ctx context.Context, ticket *models.EscalationTicket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.Status == "" {
		ticket.Status = models.TicketStatusOpen
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO escalation_tickets
		(id, changeset_id, approval_id, subject, description, status, raised_by, created_at)
		VALUES (:id, :changeset_id, :approval_id, :subject, :description, :status, :raised_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, ticket); err != nil {
		return fmt.Errorf("create escalation ticket: %w", err)
	}
	return nil
}

// ListByChangeSet returns tickets raised for a changeset.
func (r *TicketRepository) ListByChangeSet(ctx context.Context, changesetID string) ([]models.EscalationTicket, error) {
	const query = `SELECT id, changeset_id, approval_id, subject, description, status, raised_by, created_at
		FROM escalation_tickets WHERE changeset_id = $1 ORDER BY created_at ASC`
	var tickets []models.EscalationTicket
	if err := r.db.SelectContext(ctx, &tickets, query, changesetID); err != nil {
		return nil, fmt.Errorf("list escalation tickets: %w", err)
	}
	return tickets, nil
}

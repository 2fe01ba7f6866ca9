package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sentraops/siteops-api/internal/dto"
	"github.com/sentraops/siteops-api/internal/models"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
	"github.com/sentraops/siteops-api/pkg/response"
)

type approvalService interface {
	Open(ctx context.Context, changesetID string, actor *models.JWTClaims) ([]models.Approval, error)
	ListByChangeSet(ctx context.Context, changesetID string) ([]models.Approval, error)
	Decide(ctx context.Context, approvalID string, decision models.ApprovalStatus, req dto.ApprovalDecisionRequest, actor *models.JWTClaims) (*models.Approval, error)
}

type ticketService interface {
	ListByChangeSet(ctx context.Context, changesetID string) ([]models.EscalationTicket, error)
}

// ApprovalHandler exposes the review workflow endpoints.
type ApprovalHandler struct {
	service approvalService
	tickets ticketService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(svc approvalService, tickets ticketService) *ApprovalHandler {
	return &ApprovalHandler{service: svc, tickets: tickets}
}

// Open godoc
// @Summary Open the approval workflow for a changeset
// @Description The caller becomes primary approver; a secondary slot is auto-assigned when required
// @Tags Approvals
// @Produce json
// @Param id path string true "Changeset ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /changesets/{id}/approvals [post]
func (h *ApprovalHandler) Open(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "approval service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	slots, err := h.service.Open(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, slots, nil)
}

// List godoc
// @Summary List approval slots for a changeset
// @Tags Approvals
// @Produce json
// @Param id path string true "Changeset ID"
// @Success 200 {object} response.Envelope
// @Router /changesets/{id}/approvals [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "approval service not configured"))
		return
	}
	approvals, err := h.service.ListByChangeSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, nil)
}

type approvalDecisionPayload struct {
	Decision string `json:"decision" binding:"required"`
	dto.ApprovalDecisionRequest
}

// Decide godoc
// @Summary Record a decision on an approval slot
// @Description Decisions are terminal; deciding the same slot twice is a conflict
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval ID"
// @Param payload body handler.approvalDecisionPayload true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/{id}/decision [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "approval service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload approvalDecisionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	payload.IPAddress = c.ClientIP()
	payload.UserAgent = c.Request.UserAgent()
	decision := models.ApprovalStatus(strings.ToUpper(strings.TrimSpace(payload.Decision)))
	approval, err := h.service.Decide(c.Request.Context(), c.Param("id"), decision, payload.ApprovalDecisionRequest, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// Tickets godoc
// @Summary List escalation tickets for a changeset
// @Tags Approvals
// @Produce json
// @Param id path string true "Changeset ID"
// @Success 200 {object} response.Envelope
// @Router /changesets/{id}/tickets [get]
func (h *ApprovalHandler) Tickets(c *gin.Context) {
	if h.tickets == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "ticket service not configured"))
		return
	}
	tickets, err := h.tickets.ListByChangeSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tickets, nil)
}

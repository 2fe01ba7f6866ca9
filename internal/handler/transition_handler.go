package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentraops/siteops-api/internal/dto"
	"github.com/sentraops/siteops-api/internal/models"
	"github.com/sentraops/siteops-api/internal/service"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
	"github.com/sentraops/siteops-api/pkg/response"
)

type transitionService interface {
	TransitionWithLock(ctx context.Context, params service.TransitionParams) (*dto.TransitionResult, error)
}

// TransitionHandler exposes lock-guarded status transitions for work
// orders, jobs and jobneeds.
type TransitionHandler struct {
	service transitionService
}

// NewTransitionHandler constructs the handler.
func NewTransitionHandler(svc transitionService) *TransitionHandler {
	return &TransitionHandler{service: svc}
}

// TransitionWorkOrder godoc
// @Summary Transition a work order
// @Tags Transitions
// @Accept json
// @Produce json
// @Param id path string true "Work order ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /workorders/{id}/transitions [post]
func (h *TransitionHandler) TransitionWorkOrder(c *gin.Context) {
	h.transition(c, models.EntityKindWorkOrder)
}

// TransitionJob godoc
// @Summary Transition a job
// @Tags Transitions
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /jobs/{id}/transitions [post]
func (h *TransitionHandler) TransitionJob(c *gin.Context) {
	h.transition(c, models.EntityKindJob)
}

// TransitionJobneed godoc
// @Summary Transition a jobneed
// @Tags Transitions
// @Accept json
// @Produce json
// @Param id path string true "Jobneed ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /jobneeds/{id}/transitions [post]
func (h *TransitionHandler) TransitionJobneed(c *gin.Context) {
	h.transition(c, models.EntityKindJobneed)
}

func (h *TransitionHandler) transition(c *gin.Context, kind string) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "transition service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	result, err := h.service.TransitionWithLock(c.Request.Context(), service.TransitionParams{
		EntityKind: kind,
		EntityID:   c.Param("id"),
		Request:    req,
		Actor:      claims,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

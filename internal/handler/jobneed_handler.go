package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentraops/siteops-api/internal/dto"
	"github.com/sentraops/siteops-api/internal/models"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
	"github.com/sentraops/siteops-api/pkg/response"
)

type jobneedService interface {
	UpdateCheckpoint(ctx context.Context, jobneedID string, req dto.CheckpointUpdateRequest, actor *models.JWTClaims) (*models.Jobneed, error)
}

// JobneedHandler exposes checkpoint patch endpoints.
type JobneedHandler struct {
	service jobneedService
}

// NewJobneedHandler constructs the handler.
func NewJobneedHandler(svc jobneedService) *JobneedHandler {
	return &JobneedHandler{service: svc}
}

// UpdateCheckpoint godoc
// @Summary Patch a jobneed checkpoint
// @Description Updates checkpoint fields and bumps the parent job's modification stamp
// @Tags Jobneeds
// @Accept json
// @Produce json
// @Param id path string true "Jobneed ID"
// @Param payload body dto.CheckpointUpdateRequest true "Fields to patch"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /jobneeds/{id}/checkpoint [patch]
func (h *JobneedHandler) UpdateCheckpoint(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "jobneed service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CheckpointUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid checkpoint payload"))
		return
	}
	jobneed, err := h.service.UpdateCheckpoint(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobneed, nil)
}

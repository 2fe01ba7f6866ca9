package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sentraops/siteops-api/internal/dto"
	"github.com/sentraops/siteops-api/internal/models"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
	"github.com/sentraops/siteops-api/pkg/response"
)

type changesetService interface {
	Create(ctx context.Context, req dto.CreateChangeSetRequest, actor *models.JWTClaims) (*models.ChangeSet, error)
	List(ctx context.Context, query dto.ChangeSetQuery) ([]models.ChangeSet, error)
	Get(ctx context.Context, id string) (*dto.ChangeSetDetail, error)
	ApplyRecommendations(ctx context.Context, changesetID string, req dto.ApplyRecommendationsRequest, actor *models.JWTClaims) (*dto.ChangeSetDetail, error)
	Rollback(ctx context.Context, changesetID string, req dto.RollbackChangeSetRequest, actor *models.JWTClaims) (*models.RollbackResult, error)
}

// ChangeSetHandler exposes REST endpoints for tracked batches.
type ChangeSetHandler struct {
	service changesetService
}

// NewChangeSetHandler constructs the handler.
func NewChangeSetHandler(svc changesetService) *ChangeSetHandler {
	return &ChangeSetHandler{service: svc}
}

// Create godoc
// @Summary Open a new changeset
// @Tags Changesets
// @Accept json
// @Produce json
// @Param payload body dto.CreateChangeSetRequest true "Changeset payload"
// @Success 201 {object} response.Envelope
// @Router /changesets [post]
func (h *ChangeSetHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "changeset service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateChangeSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid changeset payload"))
		return
	}
	cs, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, cs, nil)
}

// List godoc
// @Summary List changesets
// @Tags Changesets
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param approved_by query string false "Creator user ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Router /changesets [get]
func (h *ChangeSetHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "changeset service not configured"))
		return
	}
	query := dto.ChangeSetQuery{
		ApprovedBy: strings.TrimSpace(c.Query("approved_by")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.ChangeSetStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ChangeSetStatus(part))
		}
		query.Status = statuses
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			query.Limit = limit
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			query.Offset = offset
		}
	}
	sets, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sets, nil)
}

// Get godoc
// @Summary Get changeset detail
// @Tags Changesets
// @Produce json
// @Param id path string true "Changeset ID"
// @Success 200 {object} response.Envelope
// @Router /changesets/{id} [get]
func (h *ChangeSetHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "changeset service not configured"))
		return
	}
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Apply godoc
// @Summary Apply recommendations under a changeset
// @Tags Changesets
// @Accept json
// @Produce json
// @Param id path string true "Changeset ID"
// @Param payload body dto.ApplyRecommendationsRequest true "Recommendations"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /changesets/{id}/apply [post]
func (h *ChangeSetHandler) Apply(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "changeset service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ApplyRecommendationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid recommendations payload"))
		return
	}
	detail, err := h.service.ApplyRecommendations(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Rollback godoc
// @Summary Roll back an applied changeset
// @Tags Changesets
// @Accept json
// @Produce json
// @Param id path string true "Changeset ID"
// @Param payload body dto.RollbackChangeSetRequest true "Rollback reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /changesets/{id}/rollback [post]
func (h *ChangeSetHandler) Rollback(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "changeset service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RollbackChangeSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rollback payload"))
		return
	}
	result, err := h.service.Rollback(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

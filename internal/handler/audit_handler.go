package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sentraops/siteops-api/internal/models"
	"github.com/sentraops/siteops-api/internal/service"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
	"github.com/sentraops/siteops-api/pkg/response"
)

type auditTrailService interface {
	ListTransitions(ctx context.Context, entityKind, entityID string, limit int) ([]models.TransitionAudit, error)
}

type auditExportService interface {
	AuditTrail(ctx context.Context, entityKind, entityID, format string) (*service.ExportFile, error)
}

// AuditHandler serves transition audit trails and their exports.
type AuditHandler struct {
	audits  auditTrailService
	exports auditExportService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(audits auditTrailService, exports auditExportService) *AuditHandler {
	return &AuditHandler{audits: audits, exports: exports}
}

// Trail godoc
// @Summary Get the transition audit trail of an entity
// @Tags Audit
// @Produce json
// @Param kind path string true "Entity kind"
// @Param id path string true "Entity ID"
// @Param limit query int false "Max rows"
// @Success 200 {object} response.Envelope
// @Router /audit/{kind}/{id} [get]
func (h *AuditHandler) Trail(c *gin.Context) {
	if h.audits == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "audit repository not configured"))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	trail, err := h.audits.ListTransitions(c.Request.Context(), c.Param("kind"), c.Param("id"), limit)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail"))
		return
	}
	response.JSON(c, http.StatusOK, trail, nil)
}

// Export godoc
// @Summary Download the audit trail as CSV or PDF
// @Tags Audit
// @Produce text/csv
// @Produce application/pdf
// @Param kind path string true "Entity kind"
// @Param id path string true "Entity ID"
// @Param format query string true "csv or pdf"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /audit/{kind}/{id}/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	file, err := h.exports.AuditTrail(c.Request.Context(), c.Param("kind"), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}

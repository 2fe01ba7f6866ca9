package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentraops/siteops-api/internal/models"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
	"github.com/sentraops/siteops-api/pkg/export"
)

// Export formats supported for audit trails.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type auditTrailReader interface {
	ListTransitions(ctx context.Context, entityKind, entityID string, limit int) ([]models.TransitionAudit, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered document ready for download.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders an entity's transition audit trail as CSV or
// PDF.
type ExportService struct {
	audits  auditTrailReader
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
	maxRows int
}

// NewExportService constructs the service. maxRows caps the trail
// length pulled into one document.
func NewExportService(audits auditTrailReader, maxRows int, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRows <= 0 {
		maxRows = 5000
	}
	return &ExportService{
		audits:  audits,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		maxRows: maxRows,
	}
}

// AuditTrail renders the transition history of one entity.
func (s *ExportService) AuditTrail(ctx context.Context, entityKind, entityID, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	trail, err := s.audits.ListTransitions(ctx, entityKind, entityID, s.maxRows)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}

	headers := []string{"Seq", "From", "To", "Actor", "Reason", "Comments", "At"}
	rows := make([]map[string]string, 0, len(trail))
	for _, rec := range trail {
		rows = append(rows, map[string]string{
			"Seq":      fmt.Sprintf("%d", rec.Seq),
			"From":     string(rec.FromStatus),
			"To":       string(rec.ToStatus),
			"Actor":    rec.Actor,
			"Reason":   rec.Reason,
			"Comments": rec.Comments,
			"At":       rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{Headers: headers, Rows: rows}

	timestamp := time.Now().UTC().Format("20060102_150405")
	filename := fmt.Sprintf("audit_%s_%s_%s.%s", entityKind, sanitizeFilename(entityID), timestamp, format)

	var payload []byte
	var contentType string
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case ExportFormatPDF:
		title := fmt.Sprintf("Transition Audit %s %s", entityKind, entityID)
		payload, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit trail")
	}
	return &ExportFile{Filename: filename, ContentType: contentType, Payload: payload}, nil
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

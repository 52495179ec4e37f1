package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campus-hq/ops-api/internal/models"
	appErrors "github.com/campus-hq/ops-api/pkg/errors"
	"github.com/campus-hq/ops-api/pkg/export"
)

// RosterFormat selects the rendered export format.
type RosterFormat string

const (
	RosterFormatCSV RosterFormat = "csv"
	RosterFormatPDF RosterFormat = "pdf"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type rosterEnrollmentLister interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type rosterRunReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseRun, error)
}

// RosterExport is a rendered roster with its serving metadata.
type RosterExport struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders course run rosters as CSV or PDF.
type ExportService struct {
	enrollments rosterEnrollmentLister
	runs        rosterRunReader
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(enrollments rosterEnrollmentLister, runs rosterRunReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		enrollments: enrollments,
		runs:        runs,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

var rosterHeaders = []string{"Student", "Status", "Payment", "Enrolled At", "Confirmed At"}

// rosterPageSize is the largest page the enrollment listing serves; the
// roster walks pages so runs beyond one page still export in full.
const rosterPageSize = 100

// Roster renders the enrollment roster for a course run. Cancelled and
// withdrawn enrollments are excluded.
func (s *ExportService) Roster(ctx context.Context, runID string, format RosterFormat) (*RosterExport, error) {
	run, err := s.runs.FindByID(ctx, runID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course run")
	}

	var details []models.EnrollmentDetail
	for page := 1; ; page++ {
		batch, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{
			CourseRunID: runID,
			Page:        page,
			PageSize:    rosterPageSize,
			SortBy:      "created_at",
			SortOrder:   "asc",
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
		}
		details = append(details, batch...)
		if len(batch) < rosterPageSize {
			break
		}
	}

	dataset := export.Dataset{Headers: rosterHeaders}
	for i := range details {
		d := &details[i]
		if d.Status == models.EnrollmentCancelled || d.Status == models.EnrollmentWithdrawn {
			continue
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":      d.StudentName,
			"Status":       string(d.Status),
			"Payment":      string(d.PaymentState()),
			"Enrolled At":  formatRosterTime(d.EnrolledAt),
			"Confirmed At": formatRosterTime(d.ConfirmedAt),
		})
	}

	switch format {
	case RosterFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
		}
		return &RosterExport{
			Filename:    fmt.Sprintf("roster-%s.csv", runID),
			ContentType: "text/csv",
			Payload:     payload,
		}, nil
	case RosterFormatPDF:
		payload, err := s.pdf.Render(dataset, fmt.Sprintf("Roster %s", run.ID))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster pdf")
		}
		return &RosterExport{
			Filename:    fmt.Sprintf("roster-%s.pdf", runID),
			ContentType: "application/pdf",
			Payload:     payload,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported roster format")
	}
}

func formatRosterTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/models"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
	"github.com/openregistrar/registrar-api/pkg/export"
)

// ExportService renders student lists as CSV or PDF downloads.
type ExportService struct {
	students studentRepository
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(students studentRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		students: students,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// ExportStudents renders the filtered student list in the requested format.
// Supported formats are "csv" and "pdf".
func (s *ExportService) ExportStudents(ctx context.Context, filter models.StudentFilter, format string) ([]byte, string, string, error) {
	filter.Page = 1
	filter.PageSize = 100
	dataset := export.Dataset{Headers: []string{"Student No", "Name", "Course", "Year Level", "Email", "Status"}}

	for {
		students, total, err := s.students.List(ctx, filter)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
		}
		for _, student := range students {
			status := "active"
			if !student.Active {
				status = "inactive"
			}
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Student No": student.StudentNo,
				"Name":       student.FullName(),
				"Course":     student.Course,
				"Year Level": student.YearLevel,
				"Email":      student.Email,
				"Status":     status,
			})
		}
		if len(dataset.Rows) >= total || len(students) == 0 {
			break
		}
		filter.Page++
	}

	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", fmt.Sprintf("students-%s.csv", stamp), nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, "Student Masterlist")
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", fmt.Sprintf("students-%s.pdf", stamp), nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

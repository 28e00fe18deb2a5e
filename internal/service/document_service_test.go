package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/models"
)

func mustParseTime(t *testing.T, raw string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, raw)
	require.NoError(t, err)
	return ts
}

func fixedClock(t *testing.T) func() time.Time {
	ts := mustParseTime(t, "2026-09-01T08:00:00Z")
	return func() time.Time { return ts }
}

func sampleDocumentData(docType models.DocumentType) models.DocumentData {
	return models.DocumentData{
		Request: models.DocumentRequest{
			ID:           "req-1",
			DocumentType: docType,
			Purpose:      "scholarship application",
			Status:       models.RequestApproved,
		},
		Student: models.Student{
			StudentNo: "2026-00042",
			FirstName: "Ana",
			LastName:  "Reyes",
			Course:    "BSCS",
			YearLevel: "2",
		},
		Settings: models.Settings{
			SchoolName:        "Sample State College",
			SchoolAddress:     "Poblacion, Sample City",
			RegistrarName:     "Maria L. Santos",
			PrincipalName:     "Jose P. Ramirez",
			CurrentSchoolYear: "2026-2027",
			CurrentSemester:   "1st",
		},
	}
}

func TestDocumentBuildIsDeterministic(t *testing.T) {
	svc := NewDocumentService(nil, fixedClock(t), zap.NewNop())
	data := sampleDocumentData(models.DocumentTOR)

	first := svc.Build(data)
	second := svc.Build(data)
	assert.Equal(t, first, second)
	assert.Equal(t, "Official Transcript of Records", first.Title)
	assert.Equal(t, "September 1, 2026", first.IssuedOn)
}

func TestDocumentBuildDispatchesEveryType(t *testing.T) {
	svc := NewDocumentService(nil, fixedClock(t), zap.NewNop())

	titles := map[models.DocumentType]string{
		models.DocumentTOR:           "Official Transcript of Records",
		models.DocumentGradeSlip:     "Grade Slip",
		models.DocumentGoodMoral:     "Certificate of Good Moral Character",
		models.DocumentCertification: "Certificate of Enrollment",
		models.DocumentDiploma:       "Diploma",
	}
	for docType, title := range titles {
		doc := svc.Build(sampleDocumentData(docType))
		assert.Equal(t, title, doc.Title, "document type %s", docType)
		assert.Equal(t, "Sample State College", doc.SchoolName)
		assert.NotEmpty(t, doc.Signatories)
	}
}

func TestDocumentBuildUnknownTypeFallsBackToPlaceholder(t *testing.T) {
	svc := NewDocumentService(nil, fixedClock(t), zap.NewNop())
	doc := svc.Build(sampleDocumentData(models.DocumentType("FORM_137")))

	assert.Equal(t, "Template Not Available", doc.Title)
	require.Len(t, doc.Paragraphs, 1)
	assert.Contains(t, doc.Paragraphs[0], `"FORM_137"`)
}

func TestDocumentTranscriptUsesReferenceGradesWhenEmpty(t *testing.T) {
	svc := NewDocumentService(nil, fixedClock(t), zap.NewNop())
	doc := svc.Build(sampleDocumentData(models.DocumentTOR))

	require.NotNil(t, doc.Table)
	assert.Len(t, doc.Table.Rows, len(referenceGrades))
	assert.Equal(t, "ENG101", doc.Table.Rows[0]["Code"])
}

func TestDocumentTranscriptUsesProvidedGrades(t *testing.T) {
	svc := NewDocumentService(nil, fixedClock(t), zap.NewNop())
	data := sampleDocumentData(models.DocumentTOR)
	data.Grades = []models.GradeLine{
		{SubjectCode: "CS101", SubjectName: "Introduction to Computing", Units: 3, Grade: 1.5},
	}
	doc := svc.Build(data)

	require.NotNil(t, doc.Table)
	require.Len(t, doc.Table.Rows, 1)
	assert.Equal(t, "CS101", doc.Table.Rows[0]["Code"])
	assert.Equal(t, "1.50", doc.Table.Rows[0]["Grade"])
}

func TestDocumentGenerateProducesPDF(t *testing.T) {
	svc := NewDocumentService(nil, fixedClock(t), zap.NewNop())
	payload, err := svc.Generate(sampleDocumentData(models.DocumentGoodMoral))
	require.NoError(t, err)
	require.NotEmpty(t, payload)
	assert.Equal(t, "%PDF", string(payload[:4]))
}

func TestDocumentGoodMoralCarriesBothSignatories(t *testing.T) {
	svc := NewDocumentService(nil, fixedClock(t), zap.NewNop())
	doc := svc.Build(sampleDocumentData(models.DocumentGoodMoral))

	require.Len(t, doc.Signatories, 2)
	assert.Equal(t, "Maria L. Santos", doc.Signatories[0].Name)
	assert.Equal(t, "Jose P. Ramirez", doc.Signatories[1].Name)
}

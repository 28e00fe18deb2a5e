package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/models"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
	"github.com/openregistrar/registrar-api/pkg/jobs"
	"github.com/openregistrar/registrar-api/pkg/mailer"
	"github.com/openregistrar/registrar-api/pkg/storage"
)

type requestRepoStub struct {
	requests    map[string]*models.DocumentRequest
	attachments []*models.RequestAttachment
}

func newRequestRepoStub() *requestRepoStub {
	return &requestRepoStub{requests: make(map[string]*models.DocumentRequest)}
}

func (r *requestRepoStub) Create(_ context.Context, request *models.DocumentRequest) error {
	if request.ID == "" {
		request.ID = fmt.Sprintf("req-%d", len(r.requests)+1)
	}
	copied := *request
	r.requests[request.ID] = &copied
	return nil
}

func (r *requestRepoStub) FindByID(_ context.Context, id string) (*models.DocumentRequest, error) {
	request, ok := r.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *request
	return &copied, nil
}

func (r *requestRepoStub) FindDetailByID(_ context.Context, id string) (*models.RequestDetail, error) {
	request, ok := r.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.RequestDetail{DocumentRequest: *request}, nil
}

func (r *requestRepoStub) List(_ context.Context, filter models.RequestFilter) ([]models.RequestDetail, int, error) {
	out := []models.RequestDetail{}
	for _, request := range r.requests {
		if filter.StudentID != "" && request.StudentID != filter.StudentID {
			continue
		}
		out = append(out, models.RequestDetail{DocumentRequest: *request})
	}
	return out, len(out), nil
}

func (r *requestRepoStub) UpdateStatus(_ context.Context, id string, status models.RequestStatus) error {
	request, ok := r.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	request.Status = status
	return nil
}

func (r *requestRepoStub) UpdateStatusAndAmount(_ context.Context, id string, status models.RequestStatus, amount decimal.Decimal) error {
	request, ok := r.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	request.Status = status
	request.Amount = decimal.NewNullDecimal(amount)
	return nil
}

func (r *requestRepoStub) UpdateResultPath(_ context.Context, id, path string) error {
	request, ok := r.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	request.ResultPath = &path
	return nil
}

func (r *requestRepoStub) CreateAttachment(_ context.Context, attachment *models.RequestAttachment) error {
	r.attachments = append(r.attachments, attachment)
	return nil
}

func (r *requestRepoStub) ListAttachments(_ context.Context, requestID string) ([]models.RequestAttachment, error) {
	out := []models.RequestAttachment{}
	for _, a := range r.attachments {
		if a.RequestID == requestID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type requestStudentStub struct {
	students map[string]*models.Student
}

func (r *requestStudentStub) FindByID(_ context.Context, id string) (*models.Student, error) {
	student, ok := r.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

func (r *requestStudentStub) FindByUserID(_ context.Context, userID string) (*models.Student, error) {
	for _, student := range r.students {
		if student.UserID != nil && *student.UserID == userID {
			return student, nil
		}
	}
	return nil, sql.ErrNoRows
}

type settingsStub struct{}

func (settingsStub) Get(_ context.Context) (*models.Settings, error) {
	return &models.Settings{
		SchoolName:        "Sample State College",
		SchoolAddress:     "Poblacion, Sample City",
		RegistrarName:     "Maria L. Santos",
		PrincipalName:     "Jose P. Ramirez",
		CurrentSchoolYear: "2026-2027",
		CurrentSemester:   "1st",
	}, nil
}

type notificationSink struct {
	created []*models.Notification
}

func (n *notificationSink) Create(_ context.Context, notification *models.Notification) error {
	n.created = append(n.created, notification)
	return nil
}

type auditSink struct {
	logs []*models.AuditLog
}

func (a *auditSink) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type mailSink struct {
	jobs []jobs.Job[mailer.Message]
}

func (m *mailSink) Enqueue(job jobs.Job[mailer.Message]) error {
	m.jobs = append(m.jobs, job)
	return nil
}

type requestFixture struct {
	svc           *RequestService
	requests      *requestRepoStub
	students      *requestStudentStub
	notifications *notificationSink
	audit         *auditSink
	mail          *mailSink
	store         *storage.LocalStorage
}

func newRequestFixture(t *testing.T) *requestFixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	userID := "user-7"
	fixture := &requestFixture{
		requests: newRequestRepoStub(),
		students: &requestStudentStub{students: map[string]*models.Student{
			"stu-1": {ID: "stu-1", UserID: &userID, StudentNo: "2026-00042", FirstName: "Ana", LastName: "Reyes", Email: "ana@example.edu", Course: "BSCS", YearLevel: "2", Active: true},
		}},
		notifications: &notificationSink{},
		audit:         &auditSink{},
		mail:          &mailSink{},
		store:         store,
	}
	fixture.svc = NewRequestService(RequestServiceDeps{
		Requests:      fixture.requests,
		Students:      fixture.students,
		Settings:      settingsStub{},
		Notifications: fixture.notifications,
		Audit:         fixture.audit,
		Documents:     NewDocumentService(nil, fixedClock(t), zap.NewNop()),
		Storage:       store,
		Signer:        storage.NewSignedURLSigner("test-secret", time.Hour),
		MailQueue:     fixture.mail,
		Logger:        zap.NewNop(),
	})
	return fixture
}

func (f *requestFixture) pendingRequest(t *testing.T, docType models.DocumentType) *models.DocumentRequest {
	t.Helper()
	request, err := f.svc.Create(context.Background(), models.RequestCreateRequest{
		StudentID:    "stu-1",
		DocumentType: string(docType),
		Purpose:      "board exam application",
	}, "staff-1", models.RoleRegistrar)
	require.NoError(t, err)
	return request
}

func TestRequestCreateResolvesStudentFromAccount(t *testing.T) {
	f := newRequestFixture(t)

	request, err := f.svc.Create(context.Background(), models.RequestCreateRequest{
		DocumentType: "good moral",
		Purpose:      "transfer",
	}, "user-7", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", request.StudentID)
	assert.Equal(t, models.DocumentGoodMoral, request.DocumentType)
	assert.Equal(t, models.RequestPending, request.Status)
}

func TestRequestCreateUnknownType(t *testing.T) {
	f := newRequestFixture(t)

	_, err := f.svc.Create(context.Background(), models.RequestCreateRequest{
		StudentID:    "stu-1",
		DocumentType: "FORM_137",
		Purpose:      "records",
	}, "staff-1", models.RoleRegistrar)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown document type "FORM_137"`)
}

func TestRequestCreateStaffRequiresStudentID(t *testing.T) {
	f := newRequestFixture(t)

	_, err := f.svc.Create(context.Background(), models.RequestCreateRequest{
		DocumentType: "TOR",
		Purpose:      "records",
	}, "staff-1", models.RoleRegistrar)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "student_id is required")
}

func TestRequestForwardTypeMismatchCitesBothValues(t *testing.T) {
	f := newRequestFixture(t)
	request := f.pendingRequest(t, models.DocumentTOR)

	_, err := f.svc.Forward(context.Background(), request.ID, models.RequestForwardRequest{
		DocumentType: "DIPLOMA",
		Amount:       decimal.NewFromInt(150),
	}, "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTypeMismatch.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), fmt.Sprintf(`request %s is for "TOR" but was forwarded as "DIPLOMA"`, request.ID))

	// The stored request is untouched.
	stored, err := f.requests.FindByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
	assert.False(t, stored.Amount.Valid)
}

func TestRequestForwardSetsAmountAndNotifies(t *testing.T) {
	f := newRequestFixture(t)
	request := f.pendingRequest(t, models.DocumentTOR)

	forwarded, err := f.svc.Forward(context.Background(), request.ID, models.RequestForwardRequest{
		DocumentType: "tor",
		Amount:       decimal.NewFromInt(150),
	}, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPaymentRequired, forwarded.Status)
	require.True(t, forwarded.Amount.Valid)
	assert.Equal(t, "150", forwarded.Amount.Decimal.String())

	require.Len(t, f.notifications.created, 1)
	assert.Equal(t, "user-7", f.notifications.created[0].UserID)
	assert.Contains(t, f.notifications.created[0].Body, "150.00")
	require.Len(t, f.mail.jobs, 1)
	assert.Equal(t, "ana@example.edu", f.mail.jobs[0].Payload.ToEmail)
	assert.Equal(t, "Payment required", f.mail.jobs[0].Payload.Subject)

	// Status and amount land together; the stored row never carries the new
	// status without its fee.
	stored, err := f.requests.FindByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPaymentRequired, stored.Status)
	require.True(t, stored.Amount.Valid)
	assert.Equal(t, "150", stored.Amount.Decimal.String())
}

func TestRequestForwardRejectsNonPositiveAmount(t *testing.T) {
	f := newRequestFixture(t)
	request := f.pendingRequest(t, models.DocumentTOR)

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-150)} {
		_, err := f.svc.Forward(context.Background(), request.ID, models.RequestForwardRequest{
			DocumentType: "TOR",
			Amount:       amount,
		}, "staff-1")
		require.Error(t, err, "amount %s", amount)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		assert.Contains(t, err.Error(), "amount must be greater than zero")
	}

	stored, err := f.requests.FindByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
	assert.False(t, stored.Amount.Valid)
}

func TestRequestWorkflowHappyPath(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	request := f.pendingRequest(t, models.DocumentGoodMoral)

	_, err := f.svc.Forward(ctx, request.ID, models.RequestForwardRequest{DocumentType: "GOOD_MORAL", Amount: decimal.NewFromInt(100)}, "staff-1")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, request.ID, "staff-1")
	require.NoError(t, err)

	finalized, err := f.svc.Finalize(ctx, request.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestReadyForPickup, finalized.Status)
	require.NotNil(t, finalized.ResultPath)

	// The generated document exists at the recorded path.
	file, err := f.store.Open(*finalized.ResultPath)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	info, err := file.Stat()
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestRequestApproveSkippingPaymentFails(t *testing.T) {
	f := newRequestFixture(t)
	request := f.pendingRequest(t, models.DocumentTOR)

	_, err := f.svc.Approve(context.Background(), request.ID, "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "cannot move request from PENDING to APPROVED")
}

func TestRequestFinalizeBeforeApprovalFails(t *testing.T) {
	f := newRequestFixture(t)
	request := f.pendingRequest(t, models.DocumentTOR)

	_, err := f.svc.Finalize(context.Background(), request.ID, "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	// Nothing was generated or recorded.
	stored, err := f.requests.FindByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ResultPath)
}

func TestRequestRejectIsTerminal(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	request := f.pendingRequest(t, models.DocumentTOR)

	rejected, err := f.svc.Reject(ctx, request.ID, models.RequestRejectRequest{Reason: "unsettled balance"}, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, rejected.Status)
	require.Len(t, f.notifications.created, 1)
	assert.Contains(t, f.notifications.created[0].Body, "unsettled balance")

	_, err = f.svc.Forward(ctx, request.ID, models.RequestForwardRequest{DocumentType: "TOR", Amount: decimal.NewFromInt(100)}, "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestRequestTransitionsRecordAudit(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	request := f.pendingRequest(t, models.DocumentTOR)

	_, err := f.svc.Forward(ctx, request.ID, models.RequestForwardRequest{DocumentType: "TOR", Amount: decimal.NewFromInt(100)}, "staff-1")
	require.NoError(t, err)

	var transitions []*models.AuditLog
	for _, log := range f.audit.logs {
		if log.Action == models.AuditActionTransition {
			transitions = append(transitions, log)
		}
	}
	require.Len(t, transitions, 1)
	assert.Equal(t, `{"from":"PENDING","to":"PAYMENT_REQUIRED"}`, string(transitions[0].NewValues))
}

func TestRequestDownloadTokenRequiresGeneratedDocument(t *testing.T) {
	f := newRequestFixture(t)
	request := f.pendingRequest(t, models.DocumentTOR)

	_, _, err := f.svc.DownloadToken(context.Background(), request.ID, "staff-1", models.RoleRegistrar)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestRequestDownloadRoundTrip(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	request := f.pendingRequest(t, models.DocumentGoodMoral)

	_, err := f.svc.Forward(ctx, request.ID, models.RequestForwardRequest{DocumentType: "GOOD_MORAL", Amount: decimal.NewFromInt(100)}, "staff-1")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, request.ID, "staff-1")
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, request.ID, "staff-1")
	require.NoError(t, err)

	token, expiresAt, err := f.svc.DownloadToken(ctx, request.ID, "staff-1", models.RoleRegistrar)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	file, err := f.svc.OpenResult(token)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	payload, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(payload[:4]))

	_, err = f.svc.OpenResult("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRequestListScopesStudentsToOwnRequests(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	f.pendingRequest(t, models.DocumentTOR)

	otherStudent := &models.Student{ID: "stu-2", StudentNo: "2026-00043", FirstName: "Ben", LastName: "Cruz", Active: true}
	f.students.students["stu-2"] = otherStudent
	_, err := f.svc.Create(ctx, models.RequestCreateRequest{StudentID: "stu-2", DocumentType: "TOR", Purpose: "records"}, "staff-1", models.RoleRegistrar)
	require.NoError(t, err)

	// A student listing with someone else's filter still only sees their own.
	requests, _, err := f.svc.List(ctx, models.RequestFilter{StudentID: "stu-2"}, "user-7", models.RoleStudent)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "stu-1", requests[0].StudentID)
}

func TestRequestStudentCannotTouchAnotherStudentsRequest(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	request := f.pendingRequest(t, models.DocumentTOR)

	otherUserID := "user-8"
	f.students.students["stu-2"] = &models.Student{ID: "stu-2", UserID: &otherUserID, StudentNo: "2026-00043", FirstName: "Ben", LastName: "Cruz", Active: true}

	_, err := f.svc.Get(ctx, request.ID, "user-8", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, _, err = f.svc.DownloadToken(ctx, request.ID, "user-8", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.AddAttachment(ctx, request.ID, "receipt.pdf", "application/pdf", 128,
		strings.NewReader("%PDF-1.4"), "user-8", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.requests.attachments)

	// The owning student still gets through.
	detail, err := f.svc.Get(ctx, request.ID, "user-7", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, request.ID, detail.ID)
}

func TestRequestAttachmentBounds(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()
	request := f.pendingRequest(t, models.DocumentTOR)

	_, err := f.svc.AddAttachment(ctx, request.ID, "scan.pdf", "application/pdf", (10<<20)+1,
		strings.NewReader("%PDF-1.4"), "staff-1", models.RoleRegistrar)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "attachment exceeds the maximum size")

	_, err = f.svc.AddAttachment(ctx, request.ID, "archive.zip", "application/zip", 1024,
		strings.NewReader("PK"), "staff-1", models.RoleRegistrar)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), `content type "application/zip" is not allowed`)

	assert.Empty(t, f.requests.attachments)

	attachment, err := f.svc.AddAttachment(ctx, request.ID, "receipt.pdf", "application/pdf", 8,
		strings.NewReader("%PDF-1.4"), "user-7", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, request.ID, attachment.RequestID)
	assert.Equal(t, int64(8), attachment.SizeBytes)
}

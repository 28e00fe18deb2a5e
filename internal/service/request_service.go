package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/models"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
	"github.com/openregistrar/registrar-api/pkg/jobs"
	"github.com/openregistrar/registrar-api/pkg/mailer"
	"github.com/openregistrar/registrar-api/pkg/storage"
)

// MailQueueName names the outbound status email queue.
const MailQueueName = "request_status_email"

type requestRepository interface {
	Create(ctx context.Context, request *models.DocumentRequest) error
	FindByID(ctx context.Context, id string) (*models.DocumentRequest, error)
	FindDetailByID(ctx context.Context, id string) (*models.RequestDetail, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.RequestDetail, int, error)
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error
	UpdateStatusAndAmount(ctx context.Context, id string, status models.RequestStatus, amount decimal.Decimal) error
	UpdateResultPath(ctx context.Context, id, path string) error
	CreateAttachment(ctx context.Context, attachment *models.RequestAttachment) error
	ListAttachments(ctx context.Context, requestID string) ([]models.RequestAttachment, error)
}

type requestStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type requestSettingsRepository interface {
	Get(ctx context.Context) (*models.Settings, error)
}

type requestNotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type requestAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type mailEnqueuer interface {
	Enqueue(job jobs.Job[mailer.Message]) error
}

// AttachmentConfig bounds supporting files uploaded with a request.
type AttachmentConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// RequestService owns the document request workflow. Every status change
// goes through the transition table; clients never set statuses directly.
type RequestService struct {
	requests      requestRepository
	students      requestStudentRepository
	settings      requestSettingsRepository
	notifications requestNotificationRepository
	audit         requestAuditRepository
	documents     *DocumentService
	storage       *storage.LocalStorage
	signer        *storage.SignedURLSigner
	mailQueue     mailEnqueuer
	attachments   AttachmentConfig
	validator     *validator.Validate
	logger        *zap.Logger
}

// RequestServiceDeps bundles the collaborators of RequestService.
type RequestServiceDeps struct {
	Requests      requestRepository
	Students      requestStudentRepository
	Settings      requestSettingsRepository
	Notifications requestNotificationRepository
	Audit         requestAuditRepository
	Documents     *DocumentService
	Storage       *storage.LocalStorage
	Signer        *storage.SignedURLSigner
	MailQueue     mailEnqueuer
	Attachments   AttachmentConfig
	Validator     *validator.Validate
	Logger        *zap.Logger
}

// NewRequestService constructs a RequestService.
func NewRequestService(deps RequestServiceDeps) *RequestService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Attachments.MaxFileSizeBytes <= 0 {
		deps.Attachments.MaxFileSizeBytes = 10 << 20
	}
	if len(deps.Attachments.AllowedMIMEs) == 0 {
		deps.Attachments.AllowedMIMEs = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	return &RequestService{
		requests:      deps.Requests,
		students:      deps.Students,
		settings:      deps.Settings,
		notifications: deps.Notifications,
		audit:         deps.Audit,
		documents:     deps.Documents,
		storage:       deps.Storage,
		signer:        deps.Signer,
		mailQueue:     deps.MailQueue,
		attachments:   deps.Attachments,
		validator:     deps.Validator,
		logger:        deps.Logger,
	}
}

// Create opens a document request in PENDING state. Students are resolved
// from their own account; staff must name the student explicitly.
func (s *RequestService) Create(ctx context.Context, req models.RequestCreateRequest, actorUserID string, actorRole models.UserRole) (*models.DocumentRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	docType, ok := models.ParseDocumentType(req.DocumentType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document type %q", req.DocumentType))
	}

	var student *models.Student
	var err error
	if actorRole == models.RoleStudent {
		student, err = s.students.FindByUserID(ctx, actorUserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "no student record linked to this account")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
	} else {
		if req.StudentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
		}
		student, err = s.students.FindByID(ctx, req.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
	}

	request := &models.DocumentRequest{
		StudentID:    student.ID,
		DocumentType: docType,
		Purpose:      strings.TrimSpace(req.Purpose),
		Status:       models.RequestPending,
		CreatedBy:    actorUserID,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document request")
	}

	s.recordAudit(ctx, actorUserID, models.AuditActionCreate, request.ID, fmt.Sprintf(`{"document_type":%q}`, docType))
	s.logger.Info("document request created",
		zap.String("request_id", request.ID),
		zap.String("document_type", string(docType)),
		zap.String("student_id", student.ID))

	return request, nil
}

// List returns requests matching the filter. Student accounts only ever see
// their own requests regardless of the filter they send.
func (s *RequestService) List(ctx context.Context, filter models.RequestFilter, actorUserID string, actorRole models.UserRole) ([]models.RequestDetail, *models.Pagination, error) {
	if actorRole == models.RoleStudent {
		student, err := s.students.FindByUserID(ctx, actorUserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "no student record linked to this account")
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		filter.StudentID = student.ID
	}

	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list document requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a request with its student details. Student accounts can only
// read their own requests.
func (s *RequestService) Get(ctx context.Context, id, actorUserID string, actorRole models.UserRole) (*models.RequestDetail, error) {
	detail, err := s.requests.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document request")
	}
	if err := s.ensureOwner(ctx, detail.StudentID, actorUserID, actorRole); err != nil {
		return nil, err
	}
	return detail, nil
}

// Forward moves a pending request to PAYMENT_REQUIRED with the assessed fee.
// The caller repeats the document type; any mismatch against the stored
// request aborts the transition and reports both values.
func (s *RequestService) Forward(ctx context.Context, id string, req models.RequestForwardRequest, actorUserID string) (*models.DocumentRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid forward payload")
	}

	request, err := s.findRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}

	confirmedType, _ := models.ParseDocumentType(req.DocumentType)
	if confirmedType != request.DocumentType {
		return nil, appErrors.Clone(appErrors.ErrTypeMismatch,
			fmt.Sprintf("request %s is for %q but was forwarded as %q", request.ID, request.DocumentType, req.DocumentType))
	}

	if err := s.transition(ctx, request, models.RequestPaymentRequired, actorUserID, &req.Amount); err != nil {
		return nil, err
	}
	request.Amount.Decimal = req.Amount
	request.Amount.Valid = true

	s.notifyStudent(ctx, request, "Payment required",
		fmt.Sprintf("Your %s request requires a payment of %s before it can be processed.", request.DocumentType, req.Amount.StringFixed(2)))

	return request, nil
}

// Approve moves a request from PAYMENT_REQUIRED to APPROVED once payment is
// confirmed.
func (s *RequestService) Approve(ctx context.Context, id, actorUserID string) (*models.DocumentRequest, error) {
	request, err := s.findRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, request, models.RequestApproved, actorUserID, nil); err != nil {
		return nil, err
	}
	s.notifyStudent(ctx, request, "Request approved",
		fmt.Sprintf("Your %s request has been approved and is being prepared.", request.DocumentType))
	return request, nil
}

// Reject closes a request with a reason. Only PENDING and PAYMENT_REQUIRED
// requests can be rejected.
func (s *RequestService) Reject(ctx context.Context, id string, req models.RequestRejectRequest, actorUserID string) (*models.DocumentRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reject payload")
	}
	request, err := s.findRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, request, models.RequestRejected, actorUserID, nil); err != nil {
		return nil, err
	}
	s.notifyStudent(ctx, request, "Request rejected",
		fmt.Sprintf("Your %s request was rejected: %s", request.DocumentType, req.Reason))
	return request, nil
}

// Finalize generates the approved document, stores it and marks the request
// READY_FOR_PICKUP. A request never reaches pickup without a stored result.
func (s *RequestService) Finalize(ctx context.Context, id, actorUserID string) (*models.DocumentRequest, error) {
	request, err := s.findRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(request.Status, models.RequestReadyForPickup) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move request from %s to %s", request.Status, models.RequestReadyForPickup))
	}

	student, err := s.students.FindByID(ctx, request.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}

	payload, err := s.documents.Generate(models.DocumentData{
		Request:  *request,
		Student:  *student,
		Settings: *settings,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate document")
	}

	relPath := fmt.Sprintf("requests/%s/%s.pdf", request.ID, strings.ToLower(string(request.DocumentType)))
	if _, err := s.storage.Save(relPath, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}
	if err := s.requests.UpdateResultPath(ctx, request.ID, relPath); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document location")
	}
	request.ResultPath = &relPath

	if err := s.transition(ctx, request, models.RequestReadyForPickup, actorUserID, nil); err != nil {
		return nil, err
	}

	s.notifyStudent(ctx, request, "Document ready for pickup",
		fmt.Sprintf("Your %s is ready for pickup at the registrar's office.", request.DocumentType))

	return request, nil
}

// DownloadToken returns a signed token for the generated document. Only
// requests that reached pickup with a stored result can be downloaded, and
// students only get tokens for their own requests.
func (s *RequestService) DownloadToken(ctx context.Context, id, actorUserID string, actorRole models.UserRole) (string, time.Time, error) {
	request, err := s.findRequest(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.ensureOwner(ctx, request.StudentID, actorUserID, actorRole); err != nil {
		return "", time.Time{}, err
	}
	if request.Status != models.RequestReadyForPickup || request.ResultPath == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "document has not been generated yet")
	}
	token, expiresAt, err := s.signer.Generate(request.ID, *request.ResultPath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}
	return token, expiresAt, nil
}

// OpenResult validates a signed token and opens the stored document.
func (s *RequestService) OpenResult(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download link is invalid or expired")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document no longer available")
	}
	return file, nil
}

// AddAttachment stores a supporting file uploaded with a request. Uploads
// are bounded the same way profile photos are; students can only attach to
// their own requests.
func (s *RequestService) AddAttachment(ctx context.Context, requestID, filename, contentType string, size int64, r io.Reader, actorUserID string, actorRole models.UserRole) (*models.RequestAttachment, error) {
	if size > s.attachments.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("attachment exceeds the maximum size of %d bytes", s.attachments.MaxFileSizeBytes))
	}
	if !s.attachmentMIMEAllowed(contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("content type %q is not allowed for attachments", contentType))
	}

	request, err := s.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOwner(ctx, request.StudentID, actorUserID, actorRole); err != nil {
		return nil, err
	}
	relPath := fmt.Sprintf("requests/%s/attachments/%s-%s", request.ID, uuid.NewString(), filename)
	limited := io.LimitReader(r, s.attachments.MaxFileSizeBytes)
	if _, err := s.storage.SaveStream(relPath, limited); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}
	attachment := &models.RequestAttachment{
		RequestID:   request.ID,
		Filename:    filename,
		Path:        relPath,
		ContentType: contentType,
		SizeBytes:   size,
	}
	if err := s.requests.CreateAttachment(ctx, attachment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attachment")
	}
	return attachment, nil
}

// Attachments lists the files uploaded with a request.
func (s *RequestService) Attachments(ctx context.Context, requestID string) ([]models.RequestAttachment, error) {
	attachments, err := s.requests.ListAttachments(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attachments")
	}
	return attachments, nil
}

// ensureOwner rejects student callers acting on another student's request.
// Staff roles pass through untouched.
func (s *RequestService) ensureOwner(ctx context.Context, studentID, actorUserID string, actorRole models.UserRole) error {
	if actorRole != models.RoleStudent {
		return nil
	}
	student, err := s.students.FindByUserID(ctx, actorUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student")
	}
	return nil
}

func (s *RequestService) attachmentMIMEAllowed(contentType string) bool {
	for _, allowed := range s.attachments.AllowedMIMEs {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}

func (s *RequestService) findRequest(ctx context.Context, id string) (*models.DocumentRequest, error) {
	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document request")
	}
	return request, nil
}

// transition validates the move against the workflow table, persists it and
// records the audit entry. When the move carries an assessed fee, status and
// amount are written in a single statement so neither lands without the other.
func (s *RequestService) transition(ctx context.Context, request *models.DocumentRequest, to models.RequestStatus, actorUserID string, amount *decimal.Decimal) error {
	if !models.CanTransition(request.Status, to) {
		return appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move request from %s to %s", request.Status, to))
	}
	var err error
	if amount != nil {
		err = s.requests.UpdateStatusAndAmount(ctx, request.ID, to, *amount)
	} else {
		err = s.requests.UpdateStatus(ctx, request.ID, to)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request status")
	}
	from := request.Status
	request.Status = to

	s.recordAudit(ctx, actorUserID, models.AuditActionTransition, request.ID,
		fmt.Sprintf(`{"from":%q,"to":%q}`, from, to))
	s.logger.Info("request status changed",
		zap.String("request_id", request.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return nil
}

// notifyStudent writes an in-app notification and queues an email when the
// student has a linked account. Failures are logged, never surfaced.
func (s *RequestService) notifyStudent(ctx context.Context, request *models.DocumentRequest, title, body string) {
	student, err := s.students.FindByID(ctx, request.StudentID)
	if err != nil {
		s.logger.Warn("failed to load student for notification", zap.String("request_id", request.ID), zap.Error(err))
		return
	}

	if student.UserID != nil {
		if err := s.notifications.Create(ctx, &models.Notification{
			UserID: *student.UserID,
			Title:  title,
			Body:   body,
		}); err != nil {
			s.logger.Warn("failed to create notification", zap.String("request_id", request.ID), zap.Error(err))
		}
	}

	if s.mailQueue != nil && student.Email != "" {
		job := jobs.Job[mailer.Message]{
			ID: uuid.NewString(),
			Payload: mailer.Message{
				ToName:   student.FullName(),
				ToEmail:  student.Email,
				Subject:  title,
				TextBody: body,
			},
		}
		if err := s.mailQueue.Enqueue(job); err != nil {
			s.logger.Warn("failed to queue status email", zap.String("request_id", request.ID), zap.Error(err))
		}
	}
}

func (s *RequestService) recordAudit(ctx context.Context, actorUserID, action, resourceID, payload string) {
	if s.audit == nil {
		return
	}
	var userID *string
	if actorUserID != "" {
		userID = &actorUserID
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "document_request",
		ResourceID: &resourceID,
		NewValues:  []byte(payload),
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("resource_id", resourceID), zap.Error(err))
	}
}

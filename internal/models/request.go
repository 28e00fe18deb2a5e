package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType enumerates the papers the registrar can issue.
type DocumentType string

const (
	DocumentTOR           DocumentType = "TOR"
	DocumentGradeSlip     DocumentType = "GRADE_SLIP"
	DocumentGoodMoral     DocumentType = "GOOD_MORAL"
	DocumentCertification DocumentType = "CERTIFICATION"
	DocumentDiploma       DocumentType = "DIPLOMA"
)

// ParseDocumentType matches a document type case-insensitively, tolerating
// spaces in place of underscores ("grade slip" == GRADE_SLIP).
func ParseDocumentType(raw string) (DocumentType, bool) {
	normalized := DocumentType(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), " ", "_"))
	switch normalized {
	case DocumentTOR, DocumentGradeSlip, DocumentGoodMoral, DocumentCertification, DocumentDiploma:
		return normalized, true
	}
	return normalized, false
}

// RequestStatus is the workflow state of a document request. The backend owns
// the progression; clients only ask for transitions.
type RequestStatus string

const (
	RequestPending         RequestStatus = "PENDING"
	RequestPaymentRequired RequestStatus = "PAYMENT_REQUIRED"
	RequestApproved        RequestStatus = "APPROVED"
	RequestRejected        RequestStatus = "REJECTED"
	RequestReadyForPickup  RequestStatus = "READY_FOR_PICKUP"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:         {RequestPaymentRequired, RequestRejected},
	RequestPaymentRequired: {RequestApproved, RequestRejected},
	RequestApproved:        {RequestReadyForPickup},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to RequestStatus) bool {
	for _, allowed := range requestTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// DocumentRequest is a student's ask for an official paper.
type DocumentRequest struct {
	ID           string              `db:"id" json:"id"`
	StudentID    string              `db:"student_id" json:"student_id"`
	DocumentType DocumentType        `db:"document_type" json:"document_type"`
	Purpose      string              `db:"purpose" json:"purpose"`
	Status       RequestStatus       `db:"status" json:"status"`
	Amount       decimal.NullDecimal `db:"amount" json:"amount,omitempty"`
	ResultPath   *string             `db:"result_path" json:"-"`
	CreatedBy    string              `db:"created_by" json:"created_by"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updated_at"`
}

// RequestDetail joins request data with the student it belongs to.
type RequestDetail struct {
	DocumentRequest
	StudentNo   string `db:"student_no" json:"student_no"`
	StudentName string `db:"student_name" json:"student_name"`
}

// RequestAttachment is a file a student uploaded with a request.
type RequestAttachment struct {
	ID          string    `db:"id" json:"id"`
	RequestID   string    `db:"request_id" json:"request_id"`
	Filename    string    `db:"filename" json:"filename"`
	Path        string    `db:"path" json:"-"`
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RequestCreateRequest is the payload for opening a document request.
// Students may omit the student ID; it is resolved from their account.
type RequestCreateRequest struct {
	StudentID    string `json:"student_id"`
	DocumentType string `json:"document_type" validate:"required"`
	Purpose      string `json:"purpose" validate:"required"`
}

// RequestForwardRequest moves a pending request to payment. The document type
// is repeated so accounting confirms what they are charging for; the backend
// rejects the transition when it does not match the stored request.
type RequestForwardRequest struct {
	DocumentType string          `json:"document_type" validate:"required"`
	Amount       decimal.Decimal `json:"amount" validate:"required"`
}

// RequestRejectRequest carries the rejection reason shown to the student.
type RequestRejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// RequestFilter captures list parameters for document requests.
type RequestFilter struct {
	StudentID string
	Status    RequestStatus
	Type      DocumentType
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

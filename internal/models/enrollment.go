package models

import "time"

// EnrollmentDraftStatus is the wizard state of a draft.
type EnrollmentDraftStatus string

const (
	DraftCollectingInfo    EnrollmentDraftStatus = "COLLECTING_INFO"
	DraftSelectingSubjects EnrollmentDraftStatus = "SELECTING_SUBJECTS"
	DraftReviewing         EnrollmentDraftStatus = "REVIEWING"
)

// DraftSubject is one selected subject line on an enrollment draft.
type DraftSubject struct {
	SubjectCode string `db:"subject_code" json:"subject_code"`
	Title       string `db:"title" json:"title"`
	Units       int    `db:"units" json:"units"`
}

// EnrollmentDraft is the server-held state of the enrollment wizard. At most
// one draft exists per student; opening a new one replaces it.
type EnrollmentDraft struct {
	ID         string                `db:"id" json:"id"`
	StudentID  string                `db:"student_id" json:"student_id"`
	SchoolYear string                `db:"school_year" json:"school_year"`
	Semester   string                `db:"semester" json:"semester"`
	Status     EnrollmentDraftStatus `db:"status" json:"status"`
	Subjects   []DraftSubject        `db:"-" json:"subjects"`
	CreatedBy  string                `db:"created_by" json:"created_by"`
	CreatedAt  time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time             `db:"updated_at" json:"updated_at"`
}

// TotalUnits is always derived from the selected subjects, never stored.
func (d EnrollmentDraft) TotalUnits() int {
	total := 0
	for _, s := range d.Subjects {
		total += s.Units
	}
	return total
}

// HasSubject reports whether a subject code is already selected.
func (d EnrollmentDraft) HasSubject(code string) bool {
	for _, s := range d.Subjects {
		if s.SubjectCode == code {
			return true
		}
	}
	return false
}

// Enrollment is a completed, persisted enrollment.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	SchoolYear string    `db:"school_year" json:"school_year"`
	Semester   string    `db:"semester" json:"semester"`
	TotalUnits int       `db:"total_units" json:"total_units"`
	EnrolledBy string    `db:"enrolled_by" json:"enrolled_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentSubject is one subject line of a completed enrollment.
type EnrollmentSubject struct {
	ID           string `db:"id" json:"id"`
	EnrollmentID string `db:"enrollment_id" json:"enrollment_id"`
	SubjectCode  string `db:"subject_code" json:"subject_code"`
	Title        string `db:"title" json:"title"`
	Units        int    `db:"units" json:"units"`
}

// EnrollmentDetail bundles an enrollment with its subject lines.
type EnrollmentDetail struct {
	Enrollment
	Subjects []EnrollmentSubject `json:"subjects"`
}

// EnrollmentFilter captures list parameters.
type EnrollmentFilter struct {
	StudentID  string
	SchoolYear string
	Semester   string
	Page       int
	PageSize   int
}

// EnrollmentStartRequest opens the wizard for an existing student.
type EnrollmentStartRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	SchoolYear string `json:"school_year" validate:"required"`
	Semester   string `json:"semester" validate:"required"`
}

// EnrollmentNewStudentRequest opens the wizard for a student who has no
// record yet; the account is created inline with generated credentials.
type EnrollmentNewStudentRequest struct {
	FirstName  string `json:"first_name" validate:"required"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Course     string `json:"course" validate:"required"`
	YearLevel  string `json:"year_level" validate:"required"`
	SchoolYear string `json:"school_year" validate:"required"`
	Semester   string `json:"semester" validate:"required"`
}

// AddSubjectRequest selects one subject by catalog code.
type AddSubjectRequest struct {
	SubjectCode string `json:"subject_code" validate:"required"`
}

// GeneratedCredentials is returned exactly once when a registrar creates a
// student account inline during enrollment.
type GeneratedCredentials struct {
	StudentNo string `json:"student_no"`
	Password  string `json:"password"`
}

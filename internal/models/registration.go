package models

import "time"

// Registration wizard step bounds. Steps are strictly linear; movement is
// always ±1 clamped to this range, and all validation happens at submit.
const (
	RegistrationFirstStep = 1
	RegistrationLastStep  = 5
)

// PersonalInfo is the step 1 field group.
type PersonalInfo struct {
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`
	Gender     string `json:"gender"`
	BirthDate  string `json:"birth_date"`
	Address    string `json:"address"`
	Phone      string `json:"phone"`
}

// FamilyInfo is the step 2 field group.
type FamilyInfo struct {
	FatherName    string `json:"father_name"`
	MotherName    string `json:"mother_name"`
	GuardianName  string `json:"guardian_name"`
	GuardianPhone string `json:"guardian_phone"`
	GuardianRel   string `json:"guardian_relation"`
}

// AcademicCurrentInfo is the step 3 field group.
type AcademicCurrentInfo struct {
	Course     string `json:"course"`
	YearLevel  string `json:"year_level"`
	SchoolYear string `json:"school_year"`
	Semester   string `json:"semester"`
}

// AcademicHistoryInfo is the step 4 field group.
type AcademicHistoryInfo struct {
	LastSchool     string `json:"last_school"`
	LastSchoolYear string `json:"last_school_year"`
	Honors         string `json:"honors"`
}

// CredentialsInfo is the step 5 field group. Passwords are never persisted in
// the draft; they arrive only with the final submit payload.
type CredentialsInfo struct {
	Email string `json:"email"`
}

// RegistrationDraft accumulates the five field groups of the registration
// wizard on the server until the final submit.
type RegistrationDraft struct {
	ID              string              `json:"id"`
	CurrentStep     int                 `json:"current_step"`
	Personal        PersonalInfo        `json:"personal"`
	Family          FamilyInfo          `json:"family"`
	AcademicCurrent AcademicCurrentInfo `json:"academic_current"`
	AcademicHistory AcademicHistoryInfo `json:"academic_history"`
	Credentials     CredentialsInfo     `json:"credentials"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// RegistrationStepRequest carries partial field-group updates for a draft.
// Only the groups present in the payload are touched.
type RegistrationStepRequest struct {
	Personal        *PersonalInfo        `json:"personal,omitempty"`
	Family          *FamilyInfo          `json:"family,omitempty"`
	AcademicCurrent *AcademicCurrentInfo `json:"academic_current,omitempty"`
	AcademicHistory *AcademicHistoryInfo `json:"academic_history,omitempty"`
	Credentials     *CredentialsInfo     `json:"credentials,omitempty"`
}

// RegistrationSubmitRequest completes the wizard. The password pair is checked
// before anything is written; it is never stored with the draft.
type RegistrationSubmitRequest struct {
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// RegistrationResult is returned once the draft has been submitted.
type RegistrationResult struct {
	Student Student  `json:"student"`
	User    UserInfo `json:"user"`
}

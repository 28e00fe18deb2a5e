package models

import "time"

// Student represents a learner registered with the institution.
type Student struct {
	ID         string     `db:"id" json:"id"`
	UserID     *string    `db:"user_id" json:"user_id,omitempty"`
	StudentNo  string     `db:"student_no" json:"student_no"`
	FirstName  string     `db:"first_name" json:"first_name"`
	MiddleName string     `db:"middle_name" json:"middle_name"`
	LastName   string     `db:"last_name" json:"last_name"`
	Email      string     `db:"email" json:"email"`
	Gender     string     `db:"gender" json:"gender"`
	BirthDate  *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Address    string     `db:"address" json:"address"`
	Phone      string     `db:"phone" json:"phone"`
	Course     string     `db:"course" json:"course"`
	YearLevel  string     `db:"year_level" json:"year_level"`
	PhotoPath  *string    `db:"photo_path" json:"photo_path,omitempty"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName joins the name parts for display and documents.
func (s Student) FullName() string {
	name := s.FirstName
	if s.MiddleName != "" {
		name += " " + s.MiddleName
	}
	if s.LastName != "" {
		name += " " + s.LastName
	}
	return name
}

// StudentCreateRequest is the payload for adding a student record.
type StudentCreateRequest struct {
	StudentNo  string `json:"student_no" validate:"required"`
	FirstName  string `json:"first_name" validate:"required"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Gender     string `json:"gender"`
	BirthDate  string `json:"birth_date"`
	Address    string `json:"address"`
	Phone      string `json:"phone"`
	Course     string `json:"course" validate:"required"`
	YearLevel  string `json:"year_level" validate:"required"`
}

// StudentUpdateRequest is the payload for editing a student record.
type StudentUpdateRequest struct {
	FirstName  string `json:"first_name" validate:"required"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Gender     string `json:"gender"`
	BirthDate  string `json:"birth_date"`
	Address    string `json:"address"`
	Phone      string `json:"phone"`
	Course     string `json:"course" validate:"required"`
	YearLevel  string `json:"year_level" validate:"required"`
	Active     *bool  `json:"active"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Course    string
	YearLevel string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

package models

import "time"

// Settings is the singleton institution configuration row. Signatory names
// are interpolated into generated documents.
type Settings struct {
	ID                string    `db:"id" json:"id"`
	SchoolName        string    `db:"school_name" json:"school_name"`
	SchoolAddress     string    `db:"school_address" json:"school_address"`
	RegistrarName     string    `db:"registrar_name" json:"registrar_name"`
	PrincipalName     string    `db:"principal_name" json:"principal_name"`
	CurrentSchoolYear string    `db:"current_school_year" json:"current_school_year"`
	CurrentSemester   string    `db:"current_semester" json:"current_semester"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

package models

import "time"

// Subject is one entry of the subject catalog.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Title     string    `db:"title" json:"title"`
	Units     int       `db:"units" json:"units"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectFilter captures catalog search parameters.
type SubjectFilter struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}

package models

import "time"

// Notification is a per-user message created by workflow transitions.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NotificationFilter captures list parameters.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}

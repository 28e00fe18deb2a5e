package models

import "time"

// DashboardSummary is the aggregate snapshot shown on the landing page.
type DashboardSummary struct {
	TotalActiveStudents int                   `json:"total_active_students"`
	EnrollmentsThisTerm int                   `json:"enrollments_this_term"`
	RequestsByStatus    map[RequestStatus]int `json:"requests_by_status"`
	UnreadNotifications int                   `json:"unread_notifications"`
	SchoolYear          string                `json:"school_year"`
	Semester            string                `json:"semester"`
	GeneratedAt         time.Time             `json:"generated_at"`
}

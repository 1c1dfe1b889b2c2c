package models

import "time"

// Course is the read model for the course catalogue consumed by the
// dashboards. Course mutation lives in a separate service; this API only
// serves authenticated reads.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CourseFilter captures list criteria for the course catalogue.
type CourseFilter struct {
	TeacherID string
	Search    string
	Page      int
	PageSize  int
}

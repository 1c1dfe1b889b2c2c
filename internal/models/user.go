package models

import (
	"database/sql"
	"strings"
	"time"
)

// UserRole represents the available roles for the RBAC system. Role strings
// are user-facing; comparisons elsewhere are case-insensitive.
type UserRole string

const (
	RoleStudent UserRole = "Student"
	RoleTeacher UserRole = "Teacher"
	RoleAdmin   UserRole = "Admin"
)

// ParseRole normalises arbitrary casing into a canonical role. Unknown input
// returns false.
func ParseRole(raw string) (UserRole, bool) {
	for _, role := range []UserRole{RoleStudent, RoleTeacher, RoleAdmin} {
		if strings.EqualFold(raw, string(role)) {
			return role, true
		}
	}
	return "", false
}

// User represents an application user stored in the users table. Accounts are
// created on first successful login and never deleted by the auth subsystem.
type User struct {
	ID         string         `db:"id" json:"id"`
	Email      string         `db:"email" json:"email"`
	GoogleID   sql.NullString `db:"google_id" json:"-"`
	GivenName  string         `db:"given_name" json:"given_name"`
	FamilyName string         `db:"family_name" json:"family_name"`
	AvatarURL  string         `db:"avatar_url" json:"avatar_url"`
	Role       UserRole       `db:"role" json:"role"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

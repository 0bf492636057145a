package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Phone        string     `db:"phone" json:"phone"`
	Department   string     `db:"department" json:"department"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentProfile links a student user to their thesis group. GroupID is nil
// while the student has not created or joined a group.
type StudentProfile struct {
	UserID    string    `db:"user_id" json:"user_id"`
	GroupID   *string   `db:"group_id" json:"group_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherProfile carries teacher-specific attributes. External marks the
// teacher as eligible for the external examiner role.
type TeacherProfile struct {
	UserID      string    `db:"user_id" json:"user_id"`
	Designation string    `db:"designation" json:"designation"`
	External    bool      `db:"external" json:"external"`
	FieldID     *string   `db:"field_id" json:"field_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ResearchField is a thesis topic area teachers can be attached to.
type ResearchField struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// TeacherChoice is a teacher candidate row offered during group creation,
// annotated with the number of groups the teacher currently supervises.
type TeacherChoice struct {
	UserID     string `db:"user_id" json:"user_id"`
	FullName   string `db:"full_name" json:"full_name"`
	GroupCount int    `db:"group_count" json:"group_count"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
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

package models

import (
	"time"
)

type UserRole string
type Role = UserRole // Alias for compatibility

const (
	RoleLearner     UserRole = "learner"
	RoleInterviewer UserRole = "interviewer"
	RoleAdmin       UserRole = "admin"
)

// User is owned by Casdoor; the service only reads it.
type User struct {
	ID       string   `json:"id"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
	Groups   []string `json:"groups"`

	// Profile info
	AvatarURL *string `json:"avatar_url"`

	EmailVerified bool `json:"email_verified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) CanAuthor() bool {
	return u != nil && (u.Role == RoleInterviewer || u.Role == RoleAdmin)
}

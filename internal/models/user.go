package models

import "time"

const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
)

// ValidRole reports whether role is one of the two participant roles.
func ValidRole(role string) bool {
	return role == RoleStudent || role == RoleTutor
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

package models

import "time"

// Role is the dashboard role of the signed-in user.
type Role string

const (
	RoleAdmin          Role = "Admin"
	RoleProjectManager Role = "ProjectManager"
	RoleDeveloper      Role = "Developer"
)

// Session is the identity handed to pm by the auth collaborator.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"userId"`
	UserName  string    `json:"userName"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the token is past its expiry. A zero expiry never expires.
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

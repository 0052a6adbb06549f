package auth

import (
	"time"

	"github.com/hemodash/hemodash/internal/rbac"
)

// User represents an account allowed to view the dashboard.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	Region       string
	Site         string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal returns the scope-bearing view of the account.
func (u *User) Principal() *rbac.User {
	if u == nil {
		return nil
	}
	return &rbac.User{
		ID:     u.ID,
		Email:  u.Email,
		Role:   rbac.ParseRole(u.Role),
		Region: u.Region,
		Site:   u.Site,
	}
}

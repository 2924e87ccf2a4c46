package accounts

import (
	"time"

	"github.com/rentops/rentops/internal/permissions"
)

// Account is a role-bound identity of the dashboard. Its effective grants
// are the role matrix with the per-account overrides merged cell by cell.
type Account struct {
	ID           int64
	Login        string
	DisplayName  string
	PasswordHash string
	RoleID       int64
	RoleName     string
	IsAdmin      bool
	Active       bool
	Overrides    permissions.Matrix
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

package roles

import (
	"time"

	"github.com/rentops/rentops/internal/permissions"
)

// Role is a named, shareable bundle of ordered permission rules.
type Role struct {
	ID          int64
	Name        string
	Description string
	Rules       []permissions.Rule
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Matrix resolves the role's rule list into the admin-facing grant table.
func (r Role) Matrix() permissions.Matrix {
	return permissions.Resolve(r.Rules)
}

// MatrixView pairs a resolved matrix with its unrestricted flag for admin
// listings.
type MatrixView struct {
	Matrix  permissions.Matrix
	IsAdmin bool
}

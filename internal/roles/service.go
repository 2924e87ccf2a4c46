package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/rentops/rentops/internal/permissions"
	"github.com/rentops/rentops/internal/shared"
)

// Service wraps role business rules. Every save runs the view dependency
// predicate over the resolved matrix; the resolver itself stays permissive,
// the gate lives here.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// Get fetches a role by ID.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and inserts a new role.
func (s *Service) Create(ctx context.Context, name, description string, rules []permissions.Rule) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("roles: role name required")
	}
	if err := gateMatrix(rules); err != nil {
		return Role{}, err
	}
	return s.repo.Create(ctx, name, strings.TrimSpace(description), rules)
}

// Update validates and replaces an existing role.
func (s *Service) Update(ctx context.Context, id int64, name, description string, rules []permissions.Rule) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("roles: role name required")
	}
	if err := gateMatrix(rules); err != nil {
		return Role{}, err
	}
	return s.repo.Update(ctx, id, name, strings.TrimSpace(description), rules)
}

// Delete removes a role.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// MatrixPreview resolves a rule list without saving, for the matrix editor.
func (s *Service) MatrixPreview(rules []permissions.Rule) MatrixView {
	matrix := permissions.Resolve(rules)
	return MatrixView{Matrix: matrix, IsAdmin: permissions.IsAdmin(matrix)}
}

func gateMatrix(rules []permissions.Rule) error {
	matrix := permissions.Resolve(rules)
	if violations := permissions.DependencyViolations(matrix); len(violations) > 0 {
		return fmt.Errorf("%w: view required for modules with other grants: %s",
			shared.ErrInvalidMatrix, strings.Join(violations, ", "))
	}
	return nil
}

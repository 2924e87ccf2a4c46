package accounts

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/rentops/rentops/internal/permissions"
	"github.com/rentops/rentops/internal/roles"
	"github.com/rentops/rentops/internal/shared"
)

// RoleSource resolves roles when gating override edits.
type RoleSource interface {
	Get(ctx context.Context, id int64) (roles.Role, error)
}

// Service handles account business logic.
type Service struct {
	repo  Repository
	roles RoleSource
}

// NewService builds a Service instance.
func NewService(repo Repository, roleSource RoleSource) *Service {
	return &Service{repo: repo, roles: roleSource}
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// Get fetches one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// Create hashes the password and inserts the account.
func (s *Service) Create(ctx context.Context, login, displayName, password string, roleID int64, isAdmin bool) (Account, error) {
	login = strings.TrimSpace(strings.ToLower(login))
	if login == "" {
		return Account{}, fmt.Errorf("accounts: login required")
	}
	if len(password) < 8 {
		return Account{}, fmt.Errorf("accounts: password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("accounts: hash password: %w", err)
	}
	return s.repo.Create(ctx, Account{
		Login:        login,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		RoleID:       roleID,
		IsAdmin:      isAdmin,
		Active:       true,
	})
}

// Update replaces profile fields.
func (s *Service) Update(ctx context.Context, id int64, displayName string, roleID int64, isAdmin bool) (Account, error) {
	return s.repo.Update(ctx, Account{
		ID:          id,
		DisplayName: strings.TrimSpace(displayName),
		RoleID:      roleID,
		IsAdmin:     isAdmin,
	})
}

// SetOverrides stores a per-account override matrix. The merged result of
// role matrix plus overrides must satisfy the view dependency rule, so an
// override cannot put the account into an invalid state the role alone
// would not allow.
func (s *Service) SetOverrides(ctx context.Context, id int64, overrides permissions.Matrix) (Account, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	base := permissions.Matrix{}
	if account.RoleID != 0 {
		role, err := s.roles.Get(ctx, account.RoleID)
		if err != nil {
			return Account{}, err
		}
		base = role.Matrix()
	}
	merged := permissions.Merge(base, overrides)
	if violations := permissions.DependencyViolations(merged); len(violations) > 0 {
		return Account{}, fmt.Errorf("%w: view required for modules with other grants: %s",
			shared.ErrInvalidMatrix, strings.Join(violations, ", "))
	}
	return s.repo.SetOverrides(ctx, id, overrides)
}

// Suspend deactivates the account; a suspended account cannot log in.
func (s *Service) Suspend(ctx context.Context, id int64) (Account, error) {
	return s.repo.SetActive(ctx, id, false)
}

// Activate reactivates the account.
func (s *Service) Activate(ctx context.Context, id int64) (Account, error) {
	return s.repo.SetActive(ctx, id, true)
}

// EffectiveGrants resolves the account's flat grant set: role matrix merged
// with overrides, then flattened. This is the only place an account's
// wildcard rules are expanded before handoff to a session.
func (s *Service) EffectiveGrants(ctx context.Context, account Account) (permissions.GrantSet, permissions.Matrix, error) {
	base := permissions.Matrix{}
	if account.RoleID != 0 {
		role, err := s.roles.Get(ctx, account.RoleID)
		if err != nil {
			return nil, nil, err
		}
		base = role.Matrix()
	}
	merged := permissions.Merge(base, account.Overrides)
	return permissions.Flatten(merged), merged, nil
}

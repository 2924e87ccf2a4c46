package identity

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/rentops/rentops/internal/permissions"
	"github.com/rentops/rentops/internal/shared"
)

// DirectoryAccount is the slice of an operator account the directory
// validator needs. The account store adapts its own record into this view,
// so the validator has no dependency on how accounts are managed.
type DirectoryAccount struct {
	ID           int64
	Login        string
	DisplayName  string
	PasswordHash string
	RoleName     string
	IsAdmin      bool
	Active       bool
	RoleID       int64
	Overrides    permissions.Matrix
}

// AccountSource looks up accounts by login.
type AccountSource interface {
	FindByLogin(ctx context.Context, login string) (DirectoryAccount, error)
}

// GrantResolver expands an account's role and overrides into a flat set.
type GrantResolver interface {
	EffectiveGrants(ctx context.Context, account DirectoryAccount) (permissions.GrantSet, permissions.Matrix, error)
}

// Directory validates credentials against the local account store. It is
// the in-process stand-in for a remote validator: same contract, including
// the rule that rejected credentials are a Result, not an error.
type Directory struct {
	source   AccountSource
	resolver GrantResolver
}

// NewDirectory constructs a Directory validator.
func NewDirectory(source AccountSource, resolver GrantResolver) *Directory {
	return &Directory{source: source, resolver: resolver}
}

// Validate checks the password hash and resolves the flat grant set.
func (d *Directory) Validate(ctx context.Context, login, credential string) (Result, error) {
	login = strings.TrimSpace(strings.ToLower(login))
	account, err := d.source.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return deny(), nil
		}
		return Result{}, err
	}
	if !account.Active {
		return deny(), nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(credential)); err != nil {
		return deny(), nil
	}

	grants, merged, err := d.resolver.EffectiveGrants(ctx, account)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Success:     true,
		IdentityID:  strconv.FormatInt(account.ID, 10),
		DisplayName: account.DisplayName,
		RoleName:    account.RoleName,
		IsAdmin:     account.IsAdmin || permissions.IsAdmin(merged),
		Grants:      grants.Tokens(),
	}, nil
}

func deny() Result {
	return Result{Success: false, Message: shared.ErrInvalidCredentials.Error()}
}

var _ Validator = (*Directory)(nil)

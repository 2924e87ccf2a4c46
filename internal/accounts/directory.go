package accounts

import (
	"context"

	"github.com/rentops/rentops/internal/identity"
	"github.com/rentops/rentops/internal/permissions"
)

// NewDirectoryValidator adapts the account store and grant resolution into
// the built-in directory validator.
func NewDirectoryValidator(repo Repository, service *Service) *identity.Directory {
	return identity.NewDirectory(directorySource{repo: repo}, directoryResolver{service: service})
}

type directorySource struct {
	repo Repository
}

func (s directorySource) FindByLogin(ctx context.Context, login string) (identity.DirectoryAccount, error) {
	account, err := s.repo.FindByLogin(ctx, login)
	if err != nil {
		return identity.DirectoryAccount{}, err
	}
	return identity.DirectoryAccount{
		ID:           account.ID,
		Login:        account.Login,
		DisplayName:  account.DisplayName,
		PasswordHash: account.PasswordHash,
		RoleName:     account.RoleName,
		IsAdmin:      account.IsAdmin,
		Active:       account.Active,
		RoleID:       account.RoleID,
		Overrides:    account.Overrides,
	}, nil
}

type directoryResolver struct {
	service *Service
}

func (r directoryResolver) EffectiveGrants(ctx context.Context, account identity.DirectoryAccount) (permissions.GrantSet, permissions.Matrix, error) {
	return r.service.EffectiveGrants(ctx, Account{
		ID:        account.ID,
		RoleID:    account.RoleID,
		Overrides: account.Overrides,
	})
}

package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rentops/rentops/internal/permissions"
	"github.com/rentops/rentops/internal/shared"
)

func TestDirectoryValidatorLoginFlow(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, clerkRoles())
	_, err := svc.Create(context.Background(), "ana", "Ana Lima", "long-enough", 1, false)
	require.NoError(t, err)

	validator := NewDirectoryValidator(repo, svc)

	result, err := validator.Validate(context.Background(), "ana", "long-enough")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "Ana Lima", result.DisplayName)
	require.Equal(t, []string{"clients:update", "clients:view"}, result.Grants)

	result, err = validator.Validate(context.Background(), "ana", "wrong")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, shared.ErrInvalidCredentials.Error(), result.Message)
}

func TestDirectoryValidatorHonorsOverrides(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, clerkRoles())
	account, err := svc.Create(context.Background(), "ana", "Ana", "long-enough", 1, false)
	require.NoError(t, err)
	_, err = svc.SetOverrides(context.Background(), account.ID, permissions.Matrix{
		permissions.ModuleClients: {permissions.ActionUpdate: false},
	})
	require.NoError(t, err)

	validator := NewDirectoryValidator(repo, svc)
	result, err := validator.Validate(context.Background(), "ana", "long-enough")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, []string{"clients:view"}, result.Grants)
}

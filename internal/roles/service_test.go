package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rentops/rentops/internal/permissions"
	"github.com/rentops/rentops/internal/shared"
)

type stubRepo struct {
	roles  map[int64]Role
	nextID int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{roles: make(map[int64]Role), nextID: 1}
}

func (s *stubRepo) List(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role)
	}
	return out, nil
}

func (s *stubRepo) Get(ctx context.Context, id int64) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (s *stubRepo) Create(ctx context.Context, name, description string, rules []permissions.Rule) (Role, error) {
	for _, existing := range s.roles {
		if existing.Name == name {
			return Role{}, shared.ErrDuplicate
		}
	}
	role := Role{ID: s.nextID, Name: name, Description: description, Rules: rules}
	s.roles[role.ID] = role
	s.nextID++
	return role, nil
}

func (s *stubRepo) Update(ctx context.Context, id int64, name, description string, rules []permissions.Rule) (Role, error) {
	if _, ok := s.roles[id]; !ok {
		return Role{}, shared.ErrNotFound
	}
	role := Role{ID: id, Name: name, Description: description, Rules: rules}
	s.roles[id] = role
	return role, nil
}

func (s *stubRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := s.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

func TestCreateAcceptsValidMatrix(t *testing.T) {
	svc := NewService(newStubRepo())

	role, err := svc.Create(context.Background(), "  Billing Clerk ", "handles invoices", []permissions.Rule{
		permissions.Grant(permissions.ModuleBilling, permissions.ActionView, true),
		permissions.Grant(permissions.ModuleBilling, permissions.ActionUpdate, true),
	})
	require.NoError(t, err)
	require.Equal(t, "Billing Clerk", role.Name)
	require.True(t, role.Matrix()[permissions.ModuleBilling][permissions.ActionUpdate])
}

func TestCreateRejectsViewDependencyViolation(t *testing.T) {
	svc := NewService(newStubRepo())

	// Update without view is saveable nowhere: the gate runs at save time.
	_, err := svc.Create(context.Background(), "Broken", "", []permissions.Rule{
		permissions.Grant(permissions.ModuleBilling, permissions.ActionUpdate, true),
	})
	require.ErrorIs(t, err, shared.ErrInvalidMatrix)
	require.Contains(t, err.Error(), "billing")
}

func TestCreateRequiresName(t *testing.T) {
	svc := NewService(newStubRepo())
	_, err := svc.Create(context.Background(), "   ", "", nil)
	require.Error(t, err)
}

func TestUpdateRunsSameGate(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	role, err := svc.Create(context.Background(), "Clerk", "", []permissions.Rule{
		permissions.Grant(permissions.ModuleClients, permissions.ActionView, true),
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), role.ID, "Clerk", "", []permissions.Rule{
		permissions.Grant(permissions.ModuleClients, permissions.ActionDelete, true),
	})
	require.ErrorIs(t, err, shared.ErrInvalidMatrix)

	// The stored role is unchanged after the rejected update.
	stored, err := svc.Get(context.Background(), role.ID)
	require.NoError(t, err)
	require.True(t, stored.Matrix()[permissions.ModuleClients][permissions.ActionView])
	require.False(t, stored.Matrix()[permissions.ModuleClients][permissions.ActionDelete])
}

func TestNegatedCellDoesNotTriggerGate(t *testing.T) {
	svc := NewService(newStubRepo())

	// An explicit false cell is not a grant; only true cells demand view.
	_, err := svc.Create(context.Background(), "Viewer", "", []permissions.Rule{
		permissions.Grant(permissions.ModuleClients, permissions.ActionView, true),
		permissions.Negate(permissions.ModuleBilling, permissions.ActionDelete),
	})
	require.NoError(t, err)
}

func TestMatrixPreview(t *testing.T) {
	svc := NewService(newStubRepo())

	view := svc.MatrixPreview([]permissions.Rule{
		permissions.Grant(permissions.Wildcard, permissions.Wildcard, true),
	})
	require.True(t, view.IsAdmin)

	view = svc.MatrixPreview([]permissions.Rule{
		permissions.Grant(permissions.ModuleClients, permissions.ActionView, true),
	})
	require.False(t, view.IsAdmin)
	require.True(t, view.Matrix[permissions.ModuleClients][permissions.ActionView])
}

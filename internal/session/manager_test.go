package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rentops/rentops/internal/shared"
)

func newRedisPersister(t *testing.T) (*RedisPersister, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPersister(client, time.Hour), mr
}

func TestRedisPersisterRoundTrip(t *testing.T) {
	persister, _ := newRedisPersister(t)
	ctx := context.Background()

	_, err := persister.Load(ctx, "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)

	rec := PersistedSession{
		Kind:            KindRoleBound,
		IdentityID:      "7",
		DisplayName:     "Ana",
		RoleName:        "manager",
		Grants:          []string{"clients:view"},
		LastValidatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, persister.Save(ctx, "sess-1", rec))

	loaded, err := persister.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, rec, loaded)

	require.NoError(t, persister.Delete(ctx, "sess-1"))
	_, err = persister.Load(ctx, "sess-1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestManagerCreateGetDestroy(t *testing.T) {
	persister, _ := newRedisPersister(t)
	validator := &stubValidator{result: grantedResult()}
	manager := NewManager(ManagerConfig{
		Validator:          validator,
		Persister:          persister,
		RevalidateInterval: time.Hour,
	})
	defer manager.Shutdown()
	ctx := context.Background()

	store := manager.Create()
	require.NotEmpty(t, store.ID())
	require.NoError(t, store.LoginRoleBound(ctx, "ana", "secret"))

	require.Same(t, store, manager.Get(ctx, store.ID()))
	require.Nil(t, manager.Get(ctx, ""))
	require.Nil(t, manager.Get(ctx, "unknown-id"))

	manager.Destroy(ctx, store.ID())
	require.False(t, store.Active())
	require.Nil(t, manager.Get(ctx, store.ID()))
}

func TestManagerRehydratesFromPersistedCopy(t *testing.T) {
	persister, _ := newRedisPersister(t)
	validator := &stubValidator{result: grantedResult()}
	ctx := context.Background()

	// First process: a session logs in and its redacted copy is persisted.
	first := NewManager(ManagerConfig{
		Validator:          validator,
		Persister:          persister,
		RevalidateInterval: time.Hour,
	})
	store := first.Create()
	require.NoError(t, store.LoginRoleBound(ctx, "ana", "secret"))
	id := store.ID()
	first.Shutdown()

	// Second process: the cookie comes back, the store is rebuilt without a
	// credential.
	second := NewManager(ManagerConfig{
		Validator:          validator,
		Persister:          persister,
		RevalidateInterval: time.Hour,
	})
	defer second.Shutdown()

	restored := second.Get(ctx, id)
	require.NotNil(t, restored)
	require.True(t, restored.Active())
	require.True(t, restored.HasGrant("clients", "view"))
	require.False(t, restored.CanRevalidate())
	require.ErrorIs(t, restored.Revalidate(ctx), ErrRevalidationUnavailable)

	// Repeated lookups return the same rebuilt store.
	require.Same(t, restored, second.Get(ctx, id))
}

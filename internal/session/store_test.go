package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rentops/rentops/internal/identity"
	"github.com/rentops/rentops/internal/shared"
)

type stubValidator struct {
	mu     sync.Mutex
	result identity.Result
	err    error
	calls  int
	block  chan struct{}
}

func (v *stubValidator) Validate(ctx context.Context, login, credential string) (identity.Result, error) {
	v.mu.Lock()
	v.calls++
	result, err, block := v.result, v.err, v.block
	v.mu.Unlock()
	if block != nil {
		<-block
	}
	return result, err
}

func (v *stubValidator) set(result identity.Result, err error) {
	v.mu.Lock()
	v.result, v.err = result, err
	v.mu.Unlock()
}

func (v *stubValidator) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type memPersister struct {
	mu      sync.Mutex
	records map[string]PersistedSession
	deletes int
}

func newMemPersister() *memPersister {
	return &memPersister{records: make(map[string]PersistedSession)}
}

func (p *memPersister) Save(ctx context.Context, id string, rec PersistedSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[id] = rec
	return nil
}

func (p *memPersister) Load(ctx context.Context, id string) (PersistedSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[id]
	if !ok {
		return PersistedSession{}, shared.ErrNotFound
	}
	return rec, nil
}

func (p *memPersister) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.records, id)
	p.deletes++
	return nil
}

func grantedResult() identity.Result {
	return identity.Result{
		Success:     true,
		IdentityID:  "7",
		DisplayName: "Ana",
		RoleName:    "manager",
		Grants:      []string{"clients:view", "clients:update"},
	}
}

func ownerHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("owner-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestStore(v identity.Validator, p Persister) *Store {
	return New(Config{
		ID:        "sess-1",
		Validator: v,
		Persister: p,
	})
}

func TestLoginRoleBoundSuccess(t *testing.T) {
	validator := &stubValidator{result: grantedResult()}
	persist := newMemPersister()
	store := newTestStore(validator, persist)

	require.NoError(t, store.LoginRoleBound(context.Background(), "ana", "secret"))

	require.True(t, store.Active())
	kind, ok := store.Kind()
	require.True(t, ok)
	require.Equal(t, KindRoleBound, kind)
	require.True(t, store.HasGrant("clients", "view"))
	require.False(t, store.HasGrant("clients", "delete"))
	require.False(t, store.HasGrant("billing", "view"))
	require.True(t, store.CanRevalidate())

	// The durable copy exists and carries no credential by construction.
	rec, err := persist.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, []string{"clients:update", "clients:view"}, rec.Grants)
}

func TestLoginRoleBoundDeniedKeepsExistingSession(t *testing.T) {
	validator := &stubValidator{result: grantedResult()}
	store := newTestStore(validator, nil)
	require.NoError(t, store.LoginRoleBound(context.Background(), "ana", "secret"))

	validator.set(identity.Result{Success: false, Message: "account suspended by administrator"}, nil)
	err := store.LoginRoleBound(context.Background(), "bob", "nope")

	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	// The validator message is surfaced verbatim.
	require.Equal(t, "account suspended by administrator", denied.Message)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// The previous session is untouched.
	require.True(t, store.Active())
	snap, ok := store.Current()
	require.True(t, ok)
	require.Equal(t, "7", snap.IdentityID)
}

func TestLoginRoleBoundTransportError(t *testing.T) {
	validator := &stubValidator{err: errors.New("connection refused")}
	store := newTestStore(validator, nil)

	err := store.LoginRoleBound(context.Background(), "ana", "secret")
	require.Error(t, err)
	var denied *DeniedError
	require.False(t, errors.As(err, &denied))
	require.False(t, store.Active())
}

func TestLoginOwner(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("owner-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	store := New(Config{ID: "sess-1", OwnerName: "Rita", OwnerHash: string(hash)})

	require.ErrorIs(t, store.LoginOwner(context.Background(), "wrong"), shared.ErrInvalidCredentials)
	require.False(t, store.Active())

	require.NoError(t, store.LoginOwner(context.Background(), "owner-pass"))
	kind, _ := store.Kind()
	require.Equal(t, KindOwner, kind)

	// Owner passes every check without a grant set.
	require.True(t, store.HasGrant("billing", "delete"))
	require.True(t, store.HasGrant("anything", "whatever"))
	require.False(t, store.CanRevalidate())

	snap, ok := store.Current()
	require.True(t, ok)
	require.Equal(t, "owner", snap.IdentityID)
	require.Equal(t, "Rita", snap.DisplayName)
	require.True(t, snap.IsAdmin)
}

func TestHasGrantRequiresActiveSession(t *testing.T) {
	store := newTestStore(&stubValidator{}, nil)
	require.False(t, store.Active())
	require.False(t, store.HasGrant("clients", "view"))
}

func TestAdminBypassesGrantSet(t *testing.T) {
	validator := &stubValidator{result: identity.Result{
		Success: true, IdentityID: "9", DisplayName: "Root", IsAdmin: true,
	}}
	store := newTestStore(validator, nil)
	require.NoError(t, store.LoginRoleBound(context.Background(), "root", "secret"))
	require.True(t, store.HasGrant("billing", "delete"))
}

func TestLogoutClearsStateAndDurableCopy(t *testing.T) {
	validator := &stubValidator{result: grantedResult()}
	persist := newMemPersister()
	store := newTestStore(validator, persist)
	require.NoError(t, store.LoginRoleBound(context.Background(), "ana", "secret"))

	store.Logout(context.Background())

	require.False(t, store.Active())
	require.False(t, store.HasGrant("clients", "view"))
	_, err := persist.Load(context.Background(), "sess-1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRevalidateSwapsGrantsOnSuccess(t *testing.T) {
	validator := &stubValidator{result: grantedResult()}
	persist := newMemPersister()
	store := newTestStore(validator, persist)
	require.NoError(t, store.LoginRoleBound(context.Background(), "ana", "secret"))

	promoted := grantedResult()
	promoted.Grants = []string{"clients:view", "clients:update", "billing:view"}
	validator.set(promoted, nil)

	require.NoError(t, store.Revalidate(context.Background()))
	require.True(t, store.HasGrant("billing", "view"))

	rec, err := persist.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, rec.Grants, 3)
}

func TestRevalidateFailureKeepsLastKnownGood(t *testing.T) {
	validator := &stubValidator{result: grantedResult()}
	store := newTestStore(validator, nil)
	require.NoError(t, store.LoginRoleBound(context.Background(), "ana", "secret"))

	before, _ := store.Current()

	validator.set(identity.Result{}, errors.New("gateway timeout"))
	err := store.Revalidate(context.Background())
	require.ErrorIs(t, err, ErrRevalidationFailed)

	after, _ := store.Current()
	require.True(t, store.HasGrant("clients", "view"))
	require.Equal(t, before.Grants, after.Grants)
	require.Equal(t, before.LastValidatedAt, after.LastValidatedAt)
}

func TestRevalidateStallWarningFiresOnceAtThreshold(t *testing.T) {
	validator := &stubValidator{result: grantedResult()}
	var stalls int
	store := New(Config{
		ID:            "sess-1",
		Validator:     validator,
		WarnThreshold: 3,
		OnStall:       func(error) { stalls++ },
	})
	require.NoError(t, store.LoginRoleBound(context.Background(), "ana", "secret"))

	validator.set(identity.Result{}, errors.New("gateway timeout"))
	for i := 0; i < 5; i++ {
		require.ErrorIs(t, store.Revalidate(context.Background()), ErrRevalidationFailed)
	}
	// Fired at the third consecutive failure, not again on the fourth.
	require.Equal(t, 1, stalls)

	// A success resets the streak and the stall can fire again.
	validator.set(grantedResult(), nil)
	require.NoError(t, store.Revalidate(context.Background()))
	validator.set(identity.Result{}, errors.New("gateway timeout"))
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, store.Revalidate(context.Background()), ErrRevalidationFailed)
	}
	require.Equal(t, 2, stalls)
}

func TestRevalidateRejectionTreatedAsTransient(t *testing.T) {
	validator := &stubValidator{result: grantedResult()}
	store := newTestStore(validator, nil)
	require.NoError(t, store.LoginRoleBound(context.Background(), "ana", "secret"))

	validator.set(identity.Result{Success: false, Message: "role removed"}, nil)
	err := store.Revalidate(context.Background())
	require.ErrorIs(t, err, ErrRevalidationFailed)

	// Fail-open: the background deny does not log the session out.
	require.True(t, store.Active())
	require.True(t, store.HasGrant("clients", "view"))
}

func TestRevalidateSkipsWhenInFlight(t *testing.T) {
	block := make(chan struct{})
	validator := &stubValidator{result: grantedResult()}
	store := newTestStore(validator, nil)
	require.NoError(t, store.LoginRoleBound(context.Background(), "ana", "secret"))

	validator.mu.Lock()
	validator.block = block
	validator.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- store.Revalidate(context.Background()) }()

	require.Eventually(t, func() bool {
		return validator.callCount() == 2 // login plus the blocked revalidation
	}, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, store.Revalidate(context.Background()), ErrRevalidationInFlight)

	close(block)
	require.NoError(t, <-done)
}

func TestRevalidateDiscardsStaleResultAfterLogout(t *testing.T) {
	block := make(chan struct{})
	validator := &stubValidator{result: grantedResult()}
	store := newTestStore(validator, nil)
	require.NoError(t, store.LoginRoleBound(context.Background(), "ana", "secret"))

	validator.mu.Lock()
	validator.block = block
	validator.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- store.Revalidate(context.Background()) }()
	require.Eventually(t, func() bool {
		return validator.callCount() == 2
	}, time.Second, 5*time.Millisecond)

	// Logout lands while the revalidation is still in flight.
	store.Logout(context.Background())
	close(block)

	require.NoError(t, <-done)
	// The stale result must not resurrect the session.
	require.False(t, store.Active())
}

func TestRevalidateNoSessionAndOwner(t *testing.T) {
	store := newTestStore(&stubValidator{}, nil)
	require.ErrorIs(t, store.Revalidate(context.Background()), ErrNoSession)

	hash, err := bcrypt.GenerateFromPassword([]byte("owner-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	owner := New(Config{ID: "sess-2", OwnerHash: string(hash)})
	require.NoError(t, owner.LoginOwner(context.Background(), "owner-pass"))
	require.NoError(t, owner.Revalidate(context.Background()))
}

func TestRehydratedSessionCannotRevalidate(t *testing.T) {
	validator := &stubValidator{result: grantedResult()}
	store := Rehydrate(Config{ID: "sess-1", Validator: validator}, PersistedSession{
		Kind:        KindRoleBound,
		IdentityID:  "7",
		DisplayName: "Ana",
		Grants:      []string{"clients:view"},
	})

	// Last-known grants still answer synchronous checks.
	require.True(t, store.Active())
	require.True(t, store.HasGrant("clients", "view"))
	require.False(t, store.CanRevalidate())

	err := store.Revalidate(context.Background())
	require.ErrorIs(t, err, ErrRevalidationUnavailable)
	require.Zero(t, validator.callCount())
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rentops/rentops/internal/identity"
	"github.com/rentops/rentops/internal/permissions"
	"github.com/rentops/rentops/internal/shared"
)

// Kind discriminates the two identity shapes a session can hold.
type Kind string

const (
	// KindOwner is the business owner: implicit full grant, never matched
	// against the matrix and never revalidated against a role.
	KindOwner Kind = "owner"
	// KindRoleBound derives its grants from a role plus overrides and is
	// refreshed in the background.
	KindRoleBound Kind = "role_bound"
)

var (
	// ErrNoSession indicates no identity is logged in.
	ErrNoSession = errors.New("session: no active session")
	// ErrRevalidationInFlight indicates a prior revalidation has not
	// finished yet; the tick is skipped, never queued.
	ErrRevalidationInFlight = errors.New("session: revalidation already in flight")
	// ErrRevalidationUnavailable indicates the session has no credential to
	// revalidate with (rehydrated after restart). Degraded mode, not a fault.
	ErrRevalidationUnavailable = errors.New("session: no credential for revalidation")
	// ErrRevalidationFailed wraps transient validator failures. The session
	// keeps its last-known-good grants.
	ErrRevalidationFailed = errors.New("session: revalidation failed")
)

// DeniedError carries the validator's rejection message verbatim.
type DeniedError struct {
	Message string
}

func (e *DeniedError) Error() string { return e.Message }

// Is lets callers match the generic credential failure sentinel.
func (e *DeniedError) Is(target error) bool { return target == shared.ErrInvalidCredentials }

// Snapshot is a read-only copy of the current session state.
type Snapshot struct {
	Kind            Kind
	IdentityID      string
	DisplayName     string
	RoleName        string
	IsAdmin         bool
	Grants          []string
	LastValidatedAt time.Time
	CanRevalidate   bool
}

// Listener observes session lifecycle transitions. The revalidation
// scheduler uses it to arm on login and disarm on logout.
type Listener interface {
	SessionStarted(kind Kind)
	SessionEnded()
}

// Config collects the store's dependencies.
type Config struct {
	ID            string
	Validator     identity.Validator
	Persister     Persister
	OwnerName     string
	OwnerHash     string
	Logger        *slog.Logger
	WarnThreshold int
	OnStall       func(error)
	Clock         func() time.Time
}

// Store owns one identity session: its resolved flat grant set, the
// credential used for background revalidation, and the redacted durable
// copy. Single-owner and lifecycle-scoped; create on login, drop on logout.
type Store struct {
	id            string
	validator     identity.Validator
	persist       Persister
	ownerName     string
	ownerHash     []byte
	logger        *slog.Logger
	warnThreshold int
	onStall       func(error)
	clock         func() time.Time

	mu           sync.Mutex
	listener     Listener
	cur          *state
	epoch        uint64
	revalidating bool
	failStreak   int
}

type state struct {
	kind            Kind
	identityID      string
	displayName     string
	roleName        string
	isAdmin         bool
	grants          permissions.GrantSet
	login           string
	credential      string
	lastValidatedAt time.Time
}

// New constructs an empty Store.
func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	threshold := cfg.WarnThreshold
	if threshold <= 0 {
		threshold = 3
	}
	return &Store{
		id:            cfg.ID,
		validator:     cfg.Validator,
		persist:       cfg.Persister,
		ownerName:     cfg.OwnerName,
		ownerHash:     []byte(cfg.OwnerHash),
		logger:        logger,
		warnThreshold: threshold,
		onStall:       cfg.OnStall,
		clock:         clock,
	}
}

// Rehydrate builds a store from a persisted redacted copy. The credential is
// never part of that copy, so the result answers HasGrant from last-known
// state but cannot revalidate until a fresh login.
func Rehydrate(cfg Config, rec PersistedSession) *Store {
	store := New(cfg)
	store.cur = &state{
		kind:            rec.Kind,
		identityID:      rec.IdentityID,
		displayName:     rec.DisplayName,
		roleName:        rec.RoleName,
		isAdmin:         rec.IsAdmin,
		grants:          permissions.NewGrantSet(rec.Grants...),
		lastValidatedAt: rec.LastValidatedAt,
	}
	return store
}

// ID returns the session identifier used for persistence and cookies.
func (s *Store) ID() string { return s.id }

// SetListener attaches the lifecycle listener.
func (s *Store) SetListener(l Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// LoginOwner authenticates the owner credential locally. The owner is not a
// role-bound identity; no validator call and no grant set are involved.
func (s *Store) LoginOwner(ctx context.Context, credential string) error {
	if len(s.ownerHash) == 0 {
		return shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.ownerHash, []byte(credential)); err != nil {
		return shared.ErrInvalidCredentials
	}
	s.mu.Lock()
	s.cur = &state{
		kind:            KindOwner,
		identityID:      "owner",
		displayName:     s.ownerName,
		isAdmin:         true,
		lastValidatedAt: s.clock(),
	}
	s.epoch++
	s.failStreak = 0
	record := s.cur.persisted()
	listener := s.listener
	s.mu.Unlock()

	s.save(ctx, record)
	if listener != nil {
		listener.SessionStarted(KindOwner)
	}
	return nil
}

// LoginRoleBound authenticates against the Identity Validator. On rejection
// the validator's message is surfaced verbatim and the existing session, if
// any, stays untouched.
func (s *Store) LoginRoleBound(ctx context.Context, login, credential string) error {
	result, err := s.validator.Validate(ctx, login, credential)
	if err != nil {
		return fmt.Errorf("session: login: %w", err)
	}
	if !result.Success {
		return &DeniedError{Message: result.Message}
	}

	s.mu.Lock()
	s.cur = &state{
		kind:            KindRoleBound,
		identityID:      result.IdentityID,
		displayName:     result.DisplayName,
		roleName:        result.RoleName,
		isAdmin:         result.IsAdmin,
		grants:          permissions.NewGrantSet(result.Grants...),
		login:           login,
		credential:      credential,
		lastValidatedAt: s.clock(),
	}
	s.epoch++
	s.failStreak = 0
	record := s.cur.persisted()
	listener := s.listener
	s.mu.Unlock()

	s.save(ctx, record)
	if listener != nil {
		listener.SessionStarted(KindRoleBound)
	}
	return nil
}

// Logout clears the session and its durable copy unconditionally.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.cur = nil
	s.epoch++
	s.failStreak = 0
	listener := s.listener
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.Delete(ctx, s.id); err != nil {
			s.logger.Warn("delete persisted session", slog.Any("error", err))
		}
	}
	if listener != nil {
		listener.SessionEnded()
	}
}

// Current returns a snapshot of the active session, if any.
func (s *Store) Current() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		Kind:            s.cur.kind,
		IdentityID:      s.cur.identityID,
		DisplayName:     s.cur.displayName,
		RoleName:        s.cur.roleName,
		IsAdmin:         s.cur.isAdmin,
		Grants:          s.cur.grants.Tokens(),
		LastValidatedAt: s.cur.lastValidatedAt,
		CanRevalidate:   s.cur.kind == KindRoleBound && s.cur.credential != "",
	}, true
}

// Active reports whether any identity is logged in.
func (s *Store) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Kind returns the active identity kind.
func (s *Store) Kind() (Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return "", false
	}
	return s.cur.kind, true
}

// HasGrant answers the synchronous permission check. Owner and admin pass
// unconditionally; everyone else is a literal membership test against the
// flat set. No wildcard interpretation happens here: expansion already
// happened behind the Flatten boundary.
func (s *Store) HasGrant(module, action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return false
	}
	if s.cur.kind == KindOwner || s.cur.isAdmin {
		return true
	}
	return s.cur.grants.Has(module, action)
}

// CanRevalidate reports whether a revalidation credential is held.
func (s *Store) CanRevalidate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil && s.cur.kind == KindRoleBound && s.cur.credential != ""
}

// Revalidate re-runs the validator with the stored credential and, on
// success, swaps in the fresh grants. Any failure leaves the session at its
// last-known-good state: background sync fails open, explicit checks stay
// fail-closed. At most one revalidation runs at a time; a tick that lands
// while one is in flight is skipped. A result that arrives after logout or
// re-login is discarded by the epoch/identity guard.
func (s *Store) Revalidate(ctx context.Context) error {
	s.mu.Lock()
	if s.cur == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.cur.kind != KindRoleBound {
		s.mu.Unlock()
		return nil
	}
	if s.cur.credential == "" {
		s.mu.Unlock()
		return ErrRevalidationUnavailable
	}
	if s.revalidating {
		s.mu.Unlock()
		return ErrRevalidationInFlight
	}
	s.revalidating = true
	epoch := s.epoch
	login := s.cur.login
	credential := s.cur.credential
	identityID := s.cur.identityID
	s.mu.Unlock()

	result, err := s.validator.Validate(ctx, login, credential)

	s.mu.Lock()
	s.revalidating = false
	if s.epoch != epoch || s.cur == nil || s.cur.identityID != identityID {
		s.mu.Unlock()
		s.logger.Debug("discard stale revalidation result", slog.String("identity_id", identityID))
		return nil
	}
	if err == nil && !result.Success {
		// Reusing previously accepted credentials; a deny here is treated as
		// transient, same as a network fault (see the fail-open contract).
		err = fmt.Errorf("validator rejected: %s", result.Message)
	}
	if err != nil {
		s.failStreak++
		streak := s.failStreak
		onStall := s.onStall
		s.mu.Unlock()
		if streak == s.warnThreshold {
			s.logger.Warn("revalidation stalled, keeping last-known-good grants",
				slog.Int("consecutive_failures", streak), slog.Any("error", err))
			if onStall != nil {
				onStall(err)
			}
		}
		return fmt.Errorf("%w: %v", ErrRevalidationFailed, err)
	}

	s.cur.grants = permissions.NewGrantSet(result.Grants...)
	s.cur.isAdmin = result.IsAdmin
	s.cur.displayName = result.DisplayName
	s.cur.roleName = result.RoleName
	s.cur.lastValidatedAt = s.clock()
	s.failStreak = 0
	record := s.cur.persisted()
	s.mu.Unlock()

	s.save(ctx, record)
	return nil
}

func (s *Store) save(ctx context.Context, record PersistedSession) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Save(ctx, s.id, record); err != nil {
		s.logger.Warn("persist session", slog.Any("error", err))
	}
}

// persisted builds the durable copy. The credential is deliberately absent:
// a rehydrated session can answer HasGrant but never revalidate.
func (st *state) persisted() PersistedSession {
	return PersistedSession{
		Kind:            st.kind,
		IdentityID:      st.identityID,
		DisplayName:     st.displayName,
		RoleName:        st.roleName,
		IsAdmin:         st.isAdmin,
		Grants:          st.grants.Tokens(),
		LastValidatedAt: st.lastValidatedAt,
	}
}

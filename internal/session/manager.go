package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rentops/rentops/internal/identity"
	"github.com/rentops/rentops/internal/observability"
	"github.com/rentops/rentops/internal/shared"
)

// ManagerConfig collects shared dependencies for all session stores.
type ManagerConfig struct {
	Validator          identity.Validator
	Persister          Persister
	OwnerName          string
	OwnerHash          string
	Logger             *slog.Logger
	RevalidateInterval time.Duration
	WarnThreshold      int
	Metrics            *observability.Metrics
}

// Manager maps session identifiers (cookie values) to stores. Each store
// gets its own revalidation scheduler. Unknown identifiers are rehydrated
// lazily from the persister in degraded, no-credential mode.
type Manager struct {
	cfg ManagerConfig

	mu     sync.Mutex
	active map[string]*managed
}

type managed struct {
	store     *Store
	scheduler *Scheduler
}

// NewManager constructs a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{cfg: cfg, active: make(map[string]*managed)}
}

// Create builds a fresh store under a new session identifier.
func (m *Manager) Create() *Store {
	id := uuid.NewString()
	store := New(m.storeConfig(id))
	m.register(id, store)
	return store
}

// Get returns the store for the identifier. A miss falls back to the
// persisted redacted copy; a session restored that way answers HasGrant
// from last-known state but cannot revalidate until a fresh login.
func (m *Manager) Get(ctx context.Context, id string) *Store {
	if id == "" {
		return nil
	}
	m.mu.Lock()
	if entry, ok := m.active[id]; ok {
		m.mu.Unlock()
		return entry.store
	}
	m.mu.Unlock()

	if m.cfg.Persister == nil {
		return nil
	}
	rec, err := m.cfg.Persister.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			m.cfg.Logger.Warn("rehydrate session", slog.Any("error", err))
		}
		return nil
	}
	store := Rehydrate(m.storeConfig(id), rec)
	m.register(id, store)
	m.cfg.Logger.Info("session rehydrated without credential",
		slog.String("identity_id", rec.IdentityID))
	return store
}

// Destroy logs the session out and forgets the store.
func (m *Manager) Destroy(ctx context.Context, id string) {
	m.mu.Lock()
	entry, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	entry.store.Logout(ctx)
	entry.scheduler.Stop()
}

// Shutdown disarms every scheduler. Sessions themselves stay persisted.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := make([]*managed, 0, len(m.active))
	for _, entry := range m.active {
		entries = append(entries, entry)
	}
	m.mu.Unlock()
	for _, entry := range entries {
		entry.scheduler.Stop()
	}
}

func (m *Manager) storeConfig(id string) Config {
	return Config{
		ID:            id,
		Validator:     m.cfg.Validator,
		Persister:     m.cfg.Persister,
		OwnerName:     m.cfg.OwnerName,
		OwnerHash:     m.cfg.OwnerHash,
		Logger:        m.cfg.Logger,
		WarnThreshold: m.cfg.WarnThreshold,
	}
}

func (m *Manager) register(id string, store *Store) {
	scheduler := NewScheduler(store, m.cfg.RevalidateInterval, m.cfg.Logger, m.cfg.Metrics)
	m.mu.Lock()
	m.active[id] = &managed{store: store, scheduler: scheduler}
	m.mu.Unlock()
}

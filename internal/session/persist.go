package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rentops/rentops/internal/shared"
)

// PersistedSession is the redacted durable copy of a session: everything a
// restarted process needs for synchronous grant checks, minus the
// revalidation credential.
type PersistedSession struct {
	Kind            Kind      `json:"kind"`
	IdentityID      string    `json:"identity_id"`
	DisplayName     string    `json:"display_name"`
	RoleName        string    `json:"role,omitempty"`
	IsAdmin         bool      `json:"is_admin"`
	Grants          []string  `json:"grants"`
	LastValidatedAt time.Time `json:"last_validated_at"`
}

// Persister stores redacted session copies keyed by session ID.
type Persister interface {
	Save(ctx context.Context, id string, rec PersistedSession) error
	Load(ctx context.Context, id string) (PersistedSession, error)
	Delete(ctx context.Context, id string) error
}

// RedisPersister keeps session copies in Redis with a TTL. Single writer:
// only the owning Store saves or deletes its record.
type RedisPersister struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPersister constructs a RedisPersister.
func NewRedisPersister(client *redis.Client, ttl time.Duration) *RedisPersister {
	return &RedisPersister{client: client, ttl: ttl}
}

func (p *RedisPersister) key(id string) string {
	return "opsession:" + id
}

// Save writes the redacted copy.
func (p *RedisPersister) Save(ctx context.Context, id string, rec PersistedSession) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode persisted copy: %w", err)
	}
	if err := p.client.Set(ctx, p.key(id), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("session: persist: %w", err)
	}
	return nil
}

// Load reads a persisted copy; shared.ErrNotFound when none exists.
func (p *RedisPersister) Load(ctx context.Context, id string) (PersistedSession, error) {
	data, err := p.client.Get(ctx, p.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return PersistedSession{}, shared.ErrNotFound
		}
		return PersistedSession{}, fmt.Errorf("session: load persisted copy: %w", err)
	}
	var rec PersistedSession
	if err := json.Unmarshal(data, &rec); err != nil {
		return PersistedSession{}, fmt.Errorf("session: decode persisted copy: %w", err)
	}
	return rec, nil
}

// Delete removes the persisted copy.
func (p *RedisPersister) Delete(ctx context.Context, id string) error {
	if err := p.client.Del(ctx, p.key(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: delete persisted copy: %w", err)
	}
	return nil
}

var _ Persister = (*RedisPersister)(nil)

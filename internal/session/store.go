package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultSessionTTL = 30 * 24 * time.Hour
	DefaultNameTTL    = 365 * 24 * time.Hour
)

// RedisStore keeps the unlock flags under session:<id> with a sliding TTL,
// and the display name under session_name:<id> so it outlives the flags.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	nameTTL time.Duration
}

func NewRedisStore(client *redis.Client, ttl, nameTTL time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if nameTTL <= 0 {
		nameTTL = DefaultNameTTL
	}
	return &RedisStore{client: client, ttl: ttl, nameTTL: nameTTL}
}

func sessionKey(id string) string { return "session:" + id }
func nameKey(id string) string    { return "session_name:" + id }

func (r *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	s := Session{ID: id}

	raw, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return s, fmt.Errorf("failed to load session: %w", err)
	default:
		if err := json.Unmarshal(raw, &s); err != nil {
			return Session{ID: id}, fmt.Errorf("failed to decode session: %w", err)
		}
		// Slide the expiry on every read.
		r.client.Expire(ctx, sessionKey(id), r.ttl)
	}

	name, err := r.client.Get(ctx, nameKey(id)).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return s, fmt.Errorf("failed to load display name: %w", err)
	default:
		s.DisplayName = name
	}
	s.ID = id
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, s Session) error {
	flags := s
	flags.DisplayName = ""
	raw, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), raw, r.ttl)
	if s.DisplayName != "" {
		pipe.Set(ctx, nameKey(s.ID), s.DisplayName, r.nameTTL)
	} else {
		pipe.Del(ctx, nameKey(s.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// MemoryStore is used when Redis is disabled and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]Session{}}
}

func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return Session{ID: id}, nil
}

func (m *MemoryStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

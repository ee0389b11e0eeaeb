package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ideaforge-dev/ideaforge/pkg/state"
)

// RedisStore persists session states in Redis, suitable for multi-node
// deployments. Each idea id maps to one blob key plus membership in an
// index set used for listing.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all session keys (default: "ideaforge:session:").
	Prefix string
	// SessionTTL is the session expiry duration (0 = never expire).
	SessionTTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ideaforge:session:"
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client, prefix: prefix, ttl: cfg.SessionTTL}, nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests and by
// hosts that manage their own connection pool.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ideaforge:session:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Save persists the serialized state and indexes the idea id.
func (s *RedisStore) Save(ctx context.Context, st *state.State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	text, err := state.Serialize(st)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.stateKey(st.IdeaID), text, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), st.IdeaID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

// Load retrieves the state for an idea id.
func (s *RedisStore) Load(ctx context.Context, ideaID string) (*state.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	text, err := s.client.Get(ctx, s.stateKey(ideaID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ideaID)
		}
		return nil, fmt.Errorf("redis load: %w", err)
	}
	return state.Deserialize(text)
}

// Delete removes the persisted state and its index entry.
func (s *RedisStore) Delete(ctx context.Context, ideaID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.stateKey(ideaID))
	pipe.SRem(ctx, s.indexKey(), ideaID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// List returns the indexed idea ids.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	return ids, nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func (s *RedisStore) stateKey(ideaID string) string {
	return s.prefix + ideaID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "_index"
}

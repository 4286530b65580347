package store

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/ports"
)

// RedisNonceStore is a Redis implementation of the NonceStore interface.
// Key TTLs give expiry-as-absence for free and GETDEL makes consumption
// atomic, so two concurrent consumers can never both win.
type RedisNonceStore struct {
	client *redis.Client
	prefix string

	// generate produces nonce bytes; overridable for deterministic tests.
	generate func() ([]byte, error)
}

// NewRedisNonceStore creates a new Redis-backed nonce store.
func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{
		client:   client,
		prefix:   "siwn:nonce:",
		generate: randomNonce,
	}
}

func randomNonce() ([]byte, error) {
	b := make([]byte, core.NonceLength)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return b, nil
}

// Issue stores a fresh nonce under the identity key, overwriting any prior
// value (last-write-wins).
func (s *RedisNonceStore) Issue(ctx context.Context, identityKey string, ttl time.Duration) ([]byte, error) {
	value, err := s.generate()
	if err != nil {
		return nil, err
	}

	if err := s.client.Set(ctx, s.prefix+identityKey, value, ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store nonce: %w", err)
	}

	return value, nil
}

// Consume atomically fetches and deletes the nonce for the identity key.
func (s *RedisNonceStore) Consume(ctx context.Context, identityKey string) (*core.NonceRecord, error) {
	value, err := s.client.GetDel(ctx, s.prefix+identityKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrInvalidNonce
		}
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}

	return &core.NonceRecord{IdentityKey: identityKey, Value: value}, nil
}

// RedisSessionStore is a Redis implementation of the SessionStore interface.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore creates a new Redis-backed session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		prefix: "siwn:session:",
	}
}

func (s *RedisSessionStore) Create(ctx context.Context, session *core.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+session.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	payload, err := s.client.Get(ctx, s.prefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session core.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.prefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

var (
	_ ports.NonceStore   = (*RedisNonceStore)(nil)
	_ ports.SessionStore = (*RedisSessionStore)(nil)
)

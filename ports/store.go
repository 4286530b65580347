package ports

import (
	"context"
	"time"

	"github.com/layer-3/siwn/core"
)

// NonceStore issues and consumes single-use, time-bounded challenge values.
type NonceStore interface {
	// Issue persists a fresh nonce for the identity key, superseding any
	// prior unconsumed nonce for the same key, and returns its value.
	Issue(ctx context.Context, identityKey string, ttl time.Duration) ([]byte, error)

	// Consume atomically fetches and deletes the record for the key.
	// Absent or expired records fail with core.ErrInvalidNonce; under
	// concurrent calls for the same key at most one caller succeeds.
	Consume(ctx context.Context, identityKey string) (*core.NonceRecord, error)
}

// SessionStore persists sessions for the lifetime of their TTL.
type SessionStore interface {
	Create(ctx context.Context, session *core.Session, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*core.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

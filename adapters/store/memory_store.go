package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/ports"
)

// MemoryNonceStore is an in-memory implementation of the NonceStore
// interface, used in tests and single-instance deployments.
type MemoryNonceStore struct {
	mu      sync.Mutex
	records map[string]*core.NonceRecord

	generate func() ([]byte, error)
	now      func() time.Time
}

// NewMemoryNonceStore creates a new in-memory nonce store.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{
		records:  make(map[string]*core.NonceRecord),
		generate: randomNonce,
		now:      time.Now,
	}
}

func (s *MemoryNonceStore) Issue(ctx context.Context, identityKey string, ttl time.Duration) ([]byte, error) {
	value, err := s.generate()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[identityKey] = &core.NonceRecord{
		IdentityKey: identityKey,
		Value:       value,
		ExpiresAt:   s.now().Add(ttl),
	}

	return value, nil
}

func (s *MemoryNonceStore) Consume(ctx context.Context, identityKey string) (*core.NonceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[identityKey]
	if !ok {
		return nil, core.ErrInvalidNonce
	}
	delete(s.records, identityKey)

	// Expired records are treated as absent even if never cleaned up.
	if record.Expired(s.now()) {
		return nil, core.ErrInvalidNonce
	}

	return record, nil
}

// MemorySessionStore is an in-memory implementation of the SessionStore
// interface.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	now      func() time.Time
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*core.Session),
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *core.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok || s.now().After(session.ExpiresAt) {
		return nil, core.ErrNotFound
	}

	copied := *session
	return &copied, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

var (
	_ ports.NonceStore   = (*MemoryNonceStore)(nil)
	_ ports.SessionStore = (*MemorySessionStore)(nil)
)

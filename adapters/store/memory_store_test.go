package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/siwn/core"
)

func TestNonceSingleUse(t *testing.T) {
	t.Parallel()

	s := NewMemoryNonceStore()
	ctx := context.Background()

	value, err := s.Issue(ctx, "siwn:alice.near:mainnet:pk", 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, value, core.NonceLength)

	record, err := s.Consume(ctx, "siwn:alice.near:mainnet:pk")
	require.NoError(t, err)
	assert.Equal(t, value, record.Value)

	// A second consume for the same key observes nothing.
	_, err = s.Consume(ctx, "siwn:alice.near:mainnet:pk")
	assert.True(t, errors.Is(err, core.ErrInvalidNonce))
}

func TestNonceExpiry(t *testing.T) {
	t.Parallel()

	s := NewMemoryNonceStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	_, err := s.Issue(ctx, "key", 15*time.Minute)
	require.NoError(t, err)

	// 20 minutes later the record is treated as absent even though it was
	// never deleted.
	s.now = func() time.Time { return now.Add(20 * time.Minute) }

	_, err = s.Consume(ctx, "key")
	assert.True(t, errors.Is(err, core.ErrInvalidNonce))
}

func TestNonceSupersede(t *testing.T) {
	t.Parallel()

	s := NewMemoryNonceStore()
	ctx := context.Background()

	first, err := s.Issue(ctx, "key", 15*time.Minute)
	require.NoError(t, err)

	second, err := s.Issue(ctx, "key", 15*time.Minute)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// Only the latest value survives; a stale client holding the first
	// nonce fails verification rather than silently succeeding.
	record, err := s.Consume(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, second, record.Value)
}

func TestNonceConcurrentConsumeSingleWinner(t *testing.T) {
	t.Parallel()

	s := NewMemoryNonceStore()
	ctx := context.Background()

	_, err := s.Issue(ctx, "key", 15*time.Minute)
	require.NoError(t, err)

	const goroutines = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, "key"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1, "exactly one concurrent consume may win")
}

func TestNonceDistinctKeysDoNotCollide(t *testing.T) {
	t.Parallel()

	s := NewMemoryNonceStore()
	ctx := context.Background()

	aliceNonce, err := s.Issue(ctx, "siwn:alice.near:mainnet:pkA", 15*time.Minute)
	require.NoError(t, err)
	bobNonce, err := s.Issue(ctx, "siwn:bob.near:mainnet:pkB", 15*time.Minute)
	require.NoError(t, err)

	aliceRecord, err := s.Consume(ctx, "siwn:alice.near:mainnet:pkA")
	require.NoError(t, err)
	bobRecord, err := s.Consume(ctx, "siwn:bob.near:mainnet:pkB")
	require.NoError(t, err)

	assert.Equal(t, aliceNonce, aliceRecord.Value)
	assert.Equal(t, bobNonce, bobRecord.Value)
}

func TestSessionStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewMemorySessionStore()
	ctx := context.Background()

	now := time.Now()
	session := &core.Session{
		ID:        "session-1",
		UserID:    "user-1",
		AccountID: "alice.near",
		Network:   "mainnet",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}

	require.NoError(t, s.Create(ctx, session, time.Hour))

	loaded, err := s.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, session, loaded)

	require.NoError(t, s.Delete(ctx, "session-1"))

	_, err = s.Get(ctx, "session-1")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestSessionStoreExpiry(t *testing.T) {
	t.Parallel()

	s := NewMemorySessionStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	session := &core.Session{
		ID:        "session-1",
		UserID:    "user-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.Create(ctx, session, time.Hour))

	s.now = func() time.Time { return now.Add(2 * time.Hour) }

	_, err := s.Get(ctx, "session-1")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/siwn/adapters/identity"
	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/ports"
)

// hookedStore runs a one-shot hook after FindAccount returns, to force a
// specific interleaving between two resolves.
type hookedStore struct {
	ports.IdentityStore
	mu   sync.Mutex
	hook func()
}

func (s *hookedStore) FindAccount(ctx context.Context, accountID, network string) (*core.NearAccount, error) {
	account, err := s.IdentityStore.FindAccount(ctx, accountID, network)

	s.mu.Lock()
	hook := s.hook
	s.hook = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	return account, err
}

type fakeProfiles struct {
	profile *core.Profile
	err     error
}

func (f *fakeProfiles) Fetch(ctx context.Context, accountID string) (*core.Profile, error) {
	return f.profile, f.err
}

func mainnetIdentity(accountID string) *core.VerifiedIdentity {
	return &core.VerifiedIdentity{
		AccountID: accountID,
		PublicKey: "ed25519:6E8sCci9badyRkXb3JoRpBj5p8C6Tw41ELDZoiihKEtp",
		Network:   "mainnet",
	}
}

func TestResolveCreatesUserWithPrimaryLink(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	resolver := NewResolver(store, nil, true, "wallet.example")

	user, err := resolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
	require.NoError(t, err)

	assert.Equal(t, "alice.near@wallet.example", user.Email)
	assert.Equal(t, "alice.near", user.Name)

	accounts, err := store.ListAccounts(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].IsPrimary)
	assert.Equal(t, "mainnet", accounts[0].Network)
}

func TestResolveReturningUser(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	resolver := NewResolver(store, nil, true, "wallet.example")

	first, err := resolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
	require.NoError(t, err)

	second, err := resolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	accounts, err := store.ListAccounts(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestResolveCrossNetworkContinuity(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	resolver := NewResolver(store, nil, true, "wallet.example")

	first, err := resolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
	require.NoError(t, err)

	testnet := mainnetIdentity("alice.near")
	testnet.Network = "testnet"
	second, err := resolver.Resolve(context.Background(), testnet, "")
	require.NoError(t, err)

	// Same logical user; the testnet link joins as non-primary.
	assert.Equal(t, first.ID, second.ID)

	accounts, err := store.ListAccounts(context.Background(), first.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	primaries := 0
	for _, account := range accounts {
		if account.IsPrimary {
			primaries++
			assert.Equal(t, "mainnet", account.Network)
		}
	}
	assert.Equal(t, 1, primaries)
}

func TestResolveEmailRequired(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(identity.NewMemoryStore(), nil, false, "")

	_, err := resolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
	assert.True(t, errors.Is(err, core.ErrEmailRequired))
}

func TestResolveExplicitEmail(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(identity.NewMemoryStore(), nil, false, "")

	user, err := resolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestResolveSeedsProfileMetadata(t *testing.T) {
	t.Parallel()

	profiles := &fakeProfiles{profile: &core.Profile{
		Name:  "Alice",
		Image: "https://img.example/alice.png",
	}}
	resolver := NewResolver(identity.NewMemoryStore(), profiles, true, "wallet.example")

	user, err := resolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "https://img.example/alice.png", user.Image)
}

func TestResolveProfileFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	profiles := &fakeProfiles{err: errors.New("rpc unavailable")}
	resolver := NewResolver(identity.NewMemoryStore(), profiles, true, "wallet.example")

	user, err := resolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
	require.NoError(t, err)
	assert.Equal(t, "alice.near", user.Name)
}

func TestResolveConcurrentCreationSingleUser(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	resolver := NewResolver(store, nil, true, "wallet.example")

	const workers = 16
	users := make([]*core.User, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			users[i], errs[i] = resolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, users[0].ID, users[i].ID)
	}

	accounts, err := store.ListAccounts(context.Background(), users[0].ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestResolveConvergesWhenLinkAppearsMidResolve(t *testing.T) {
	t.Parallel()

	base := identity.NewMemoryStore()
	hooked := &hookedStore{IdentityStore: base}
	loserResolver := NewResolver(hooked, nil, true, "wallet.example")
	winnerResolver := NewResolver(base, nil, true, "wallet.example")

	// A full concurrent resolve for the same identity completes between the
	// loser's exact lookup and its any-network lookup.
	var winner *core.User
	hooked.hook = func() {
		user, err := winnerResolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
		require.NoError(t, err)
		winner = user
	}

	loser, err := loserResolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, winner.ID, loser.ID)

	accounts, err := base.ListAccounts(context.Background(), winner.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestResolveConvergesWhenCrossNetworkLinkRaces(t *testing.T) {
	t.Parallel()

	base := identity.NewMemoryStore()
	seed := NewResolver(base, nil, true, "wallet.example")

	first, err := seed.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
	require.NoError(t, err)

	testnet := mainnetIdentity("alice.near")
	testnet.Network = "testnet"

	hooked := &hookedStore{IdentityStore: base}
	loserResolver := NewResolver(hooked, nil, true, "wallet.example")

	// A concurrent resolve creates the testnet link while the loser is
	// between its lookups; the loser's own link attempt must converge
	// instead of failing on the existing link.
	hooked.hook = func() {
		racing := mainnetIdentity("alice.near")
		racing.Network = "testnet"
		_, err := seed.Resolve(context.Background(), racing, "")
		require.NoError(t, err)
	}

	loser, err := loserResolver.Resolve(context.Background(), testnet, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, loser.ID)

	accounts, err := base.ListAccounts(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestLinkSecondAccount(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	resolver := NewResolver(store, nil, true, "wallet.example")

	user, err := resolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
	require.NoError(t, err)

	require.NoError(t, resolver.Link(context.Background(), user.ID, mainnetIdentity("alice2.near")))

	accounts, err := store.ListAccounts(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	for _, account := range accounts {
		if account.AccountID == "alice2.near" {
			assert.False(t, account.IsPrimary)
		}
	}
}

func TestLinkAlreadyLinkedAccount(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	resolver := NewResolver(store, nil, true, "wallet.example")

	alice, err := resolver.Resolve(context.Background(), mainnetIdentity("alice.near"), "")
	require.NoError(t, err)
	bob, err := resolver.Resolve(context.Background(), mainnetIdentity("bob.near"), "")
	require.NoError(t, err)

	// Linked to its own user already.
	err = resolver.Link(context.Background(), alice.ID, mainnetIdentity("alice.near"))
	assert.True(t, errors.Is(err, core.ErrAccountAlreadyLinked))

	// Linked to somebody else.
	err = resolver.Link(context.Background(), alice.ID, mainnetIdentity("bob.near"))
	assert.True(t, errors.Is(err, core.ErrAccountAlreadyLinked))
	_ = bob
}

func TestUnlink(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	resolver := NewResolver(store, nil, true, "wallet.example")
	ctx := context.Background()

	user, err := resolver.Resolve(ctx, mainnetIdentity("alice.near"), "")
	require.NoError(t, err)

	// Last remaining account stays put, even though it is primary too: the
	// last-account rule is checked first.
	err = resolver.Unlink(ctx, user.ID, "alice.near", "mainnet")
	assert.True(t, errors.Is(err, core.ErrCannotUnlinkLastAccount))

	require.NoError(t, resolver.Link(ctx, user.ID, mainnetIdentity("alice2.near")))

	// Primary is protected while a secondary exists.
	err = resolver.Unlink(ctx, user.ID, "alice.near", "mainnet")
	assert.True(t, errors.Is(err, core.ErrCannotUnlinkPrimary))

	// Unknown target.
	err = resolver.Unlink(ctx, user.ID, "carol.near", "mainnet")
	assert.True(t, errors.Is(err, core.ErrNotFound))

	// The secondary unlinks cleanly.
	require.NoError(t, resolver.Unlink(ctx, user.ID, "alice2.near", "mainnet"))

	accounts, err := store.ListAccounts(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

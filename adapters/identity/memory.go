package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/ports"
)

type accountKey struct {
	accountID string
	network   string
}

// MemoryStore is an in-memory implementation of the IdentityStore interface.
// A single mutex serializes lookups and creation, giving the same
// create-or-fetch guarantee the unique index gives the Postgres store.
type MemoryStore struct {
	mu        sync.Mutex
	users     map[string]*core.User
	accounts  map[accountKey]*core.NearAccount
	providers map[string]string // providerAccountID -> userID
}

// NewMemoryStore creates a new in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*core.User),
		accounts:  make(map[accountKey]*core.NearAccount),
		providers: make(map[string]string),
	}
}

func (s *MemoryStore) FindAccount(ctx context.Context, accountID, network string) (*core.NearAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findAccountLocked(accountID, network)
}

func (s *MemoryStore) findAccountLocked(accountID, network string) (*core.NearAccount, error) {
	account, ok := s.accounts[accountKey{accountID, network}]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (s *MemoryStore) FindAccountAnyNetwork(ctx context.Context, accountID string) (*core.NearAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *core.NearAccount
	for key, account := range s.accounts {
		if key.accountID != accountID {
			continue
		}
		if oldest == nil || account.CreatedAt.Before(oldest.CreatedAt) {
			oldest = account
		}
	}
	if oldest == nil {
		return nil, core.ErrNotFound
	}

	copied := *oldest
	return &copied, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryStore) CreateUserWithAccount(ctx context.Context, user *core.User, account *core.NearAccount) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{account.AccountID, account.Network}
	if existing, ok := s.accounts[key]; ok {
		// Lost the race: return the owning user already created.
		owner, ok := s.users[existing.UserID]
		if !ok {
			return nil, core.ErrNotFound
		}
		copied := *owner
		return &copied, nil
	}

	userCopy := *user
	accountCopy := *account
	s.users[user.ID] = &userCopy
	s.accounts[key] = &accountCopy

	result := userCopy
	return &result, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, account *core.NearAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{account.AccountID, account.Network}
	if _, ok := s.accounts[key]; ok {
		return fmt.Errorf("account %s on %s: %w", account.AccountID, account.Network, core.ErrAccountAlreadyLinked)
	}

	copied := *account
	s.accounts[key] = &copied
	return nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context, userID string) ([]core.NearAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []core.NearAccount
	for _, account := range s.accounts {
		if account.UserID == userID {
			accounts = append(accounts, *account)
		}
	}
	return accounts, nil
}

func (s *MemoryStore) DeleteAccount(ctx context.Context, userID, accountID, network string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{accountID, network}
	account, ok := s.accounts[key]
	if !ok || account.UserID != userID {
		return core.ErrNotFound
	}

	delete(s.accounts, key)
	return nil
}

func (s *MemoryStore) RegisterProvider(ctx context.Context, userID, providerAccountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.providers[providerAccountID] = userID
	return nil
}

var _ ports.IdentityStore = (*MemoryStore)(nil)

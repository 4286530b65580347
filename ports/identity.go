package ports

import (
	"context"

	"github.com/layer-3/siwn/core"
)

// IdentityStore is the relational storage adapter for users and their linked
// NEAR accounts. Lookups return core.ErrNotFound when no row matches.
type IdentityStore interface {
	// FindAccount looks up a link by exact (accountId, network).
	FindAccount(ctx context.Context, accountID, network string) (*core.NearAccount, error)

	// FindAccountAnyNetwork looks up a link by accountId on any network.
	FindAccountAnyNetwork(ctx context.Context, accountID string) (*core.NearAccount, error)

	// GetUser loads a user by id.
	GetUser(ctx context.Context, userID string) (*core.User, error)

	// CreateUserWithAccount atomically creates a user together with its first,
	// primary account link. When a concurrent call already created a link for
	// the same (accountId, network), the existing link's owning user is
	// returned instead of creating a duplicate.
	CreateUserWithAccount(ctx context.Context, user *core.User, account *core.NearAccount) (*core.User, error)

	// CreateAccount adds an additional (non-primary) link to an existing user.
	CreateAccount(ctx context.Context, account *core.NearAccount) error

	// ListAccounts returns all links owned by the user.
	ListAccounts(ctx context.Context, userID string) ([]core.NearAccount, error)

	// DeleteAccount removes one link owned by the user.
	DeleteAccount(ctx context.Context, userID, accountID, network string) error

	// RegisterProvider records the provider association ("siwn") between the
	// user and the external account table.
	RegisterProvider(ctx context.Context, userID, providerAccountID string) error
}

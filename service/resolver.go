package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/ports"
)

// Resolver maps a verified NEAR identity to an application user, creating
// the user and its links as needed.
type Resolver struct {
	identities ports.IdentityStore
	profiles   ports.ProfileFetcher

	anonymous   bool
	emailDomain string
	now         func() time.Time
}

// NewResolver creates a resolver. When anonymous is true and no email is
// supplied, a placeholder email is synthesized from the account id and
// emailDomain.
func NewResolver(identities ports.IdentityStore, profiles ports.ProfileFetcher, anonymous bool, emailDomain string) *Resolver {
	return &Resolver{
		identities:  identities,
		profiles:    profiles,
		anonymous:   anonymous,
		emailDomain: emailDomain,
		now:         time.Now,
	}
}

// Resolve returns the user owning the verified identity, first match wins:
// an exact (accountId, network) link, then a link for the same accountId on
// another network (a new non-primary link is added for this network), and
// finally a brand-new user with a primary link.
func (r *Resolver) Resolve(ctx context.Context, identity *core.VerifiedIdentity, email string) (*core.User, error) {
	account, err := r.identities.FindAccount(ctx, identity.AccountID, identity.Network)
	if err == nil {
		return r.identities.GetUser(ctx, account.UserID)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	// Cross-network continuity: the same accountId on another network is
	// the same logical user.
	account, err = r.identities.FindAccountAnyNetwork(ctx, identity.AccountID)
	if err == nil {
		// A concurrent resolve may have created this network's link between
		// the two lookups; converge on its user instead of re-linking.
		if account.Network == identity.Network {
			return r.identities.GetUser(ctx, account.UserID)
		}

		user, err := r.identities.GetUser(ctx, account.UserID)
		if err != nil {
			return nil, err
		}
		if err := r.link(ctx, user.ID, identity, false); err != nil {
			if errors.Is(err, core.ErrAccountAlreadyLinked) {
				return r.ownerOf(ctx, identity)
			}
			return nil, err
		}
		return user, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	return r.createUser(ctx, identity, email)
}

// ownerOf returns the user behind an identity whose link already exists,
// written by a resolve that won a race against this one.
func (r *Resolver) ownerOf(ctx context.Context, identity *core.VerifiedIdentity) (*core.User, error) {
	account, err := r.identities.FindAccount(ctx, identity.AccountID, identity.Network)
	if err != nil {
		return nil, err
	}
	return r.identities.GetUser(ctx, account.UserID)
}

// Link attaches the verified identity to an existing user as a non-primary
// account. Identities already linked (to this or any other user) fail with
// core.ErrAccountAlreadyLinked.
func (r *Resolver) Link(ctx context.Context, userID string, identity *core.VerifiedIdentity) error {
	_, err := r.identities.FindAccount(ctx, identity.AccountID, identity.Network)
	if err == nil {
		return core.ErrAccountAlreadyLinked
	}
	if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	return r.link(ctx, userID, identity, false)
}

func (r *Resolver) link(ctx context.Context, userID string, identity *core.VerifiedIdentity, primary bool) error {
	err := r.identities.CreateAccount(ctx, &core.NearAccount{
		UserID:    userID,
		AccountID: identity.AccountID,
		Network:   identity.Network,
		PublicKey: identity.PublicKey,
		IsPrimary: primary,
		CreatedAt: r.now(),
	})
	if err != nil {
		return err
	}

	return r.identities.RegisterProvider(ctx, userID, identity.AccountID+":"+identity.Network)
}

func (r *Resolver) createUser(ctx context.Context, identity *core.VerifiedIdentity, email string) (*core.User, error) {
	if email == "" {
		if !r.anonymous {
			return nil, core.ErrEmailRequired
		}
		email = fmt.Sprintf("%s@%s", identity.AccountID, r.emailDomain)
	}

	name := identity.AccountID
	image := ""
	if r.profiles != nil {
		// Profile metadata is a nicety; resolution proceeds without it.
		if profile, err := r.profiles.Fetch(ctx, identity.AccountID); err == nil && profile != nil {
			if profile.Name != "" {
				name = profile.Name
			}
			image = profile.Image
		}
	}

	now := r.now()
	user := &core.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Image:     image,
		CreatedAt: now,
	}

	// Create-or-fetch: when a concurrent verification for the same account
	// wins the race, the store hands back the winner's user instead.
	created, err := r.identities.CreateUserWithAccount(ctx, user, &core.NearAccount{
		UserID:    user.ID,
		AccountID: identity.AccountID,
		Network:   identity.Network,
		PublicKey: identity.PublicKey,
		IsPrimary: true,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	if created.ID == user.ID {
		if err := r.identities.RegisterProvider(ctx, user.ID, identity.AccountID+":"+identity.Network); err != nil {
			return nil, err
		}
	}

	return created, nil
}

// Unlink removes one of a user's linked accounts, refusing to remove the
// primary account or the last remaining one.
func (r *Resolver) Unlink(ctx context.Context, userID, accountID, network string) error {
	accounts, err := r.identities.ListAccounts(ctx, userID)
	if err != nil {
		return err
	}

	var target *core.NearAccount
	for i := range accounts {
		if accounts[i].AccountID == accountID && accounts[i].Network == network {
			target = &accounts[i]
			break
		}
	}
	if target == nil {
		return core.ErrNotFound
	}

	if len(accounts) == 1 {
		return core.ErrCannotUnlinkLastAccount
	}
	if target.IsPrimary {
		return core.ErrCannotUnlinkPrimary
	}

	return r.identities.DeleteAccount(ctx, userID, accountID, network)
}

package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/internal/nearid"
	"github.com/layer-3/siwn/ports"
)

// AuthService handles the Sign-In-With-NEAR flows: nonce issuance, proof
// verification, identity resolution and session issuance.
type AuthService struct {
	nonces    ports.NonceStore
	sessions  ports.SessionStore
	tokenizer ports.Tokenizer
	eventPub  ports.EventPublisher
	verifier  *Verifier
	resolver  *Resolver
	profiles  ports.ProfileFetcher
	log       *slog.Logger

	sessionTTL time.Duration
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	nonces ports.NonceStore,
	sessions ports.SessionStore,
	tokenizer ports.Tokenizer,
	eventPub ports.EventPublisher,
	verifier *Verifier,
	resolver *Resolver,
	profiles ports.ProfileFetcher,
	log *slog.Logger,
) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		nonces:     nonces,
		sessions:   sessions,
		tokenizer:  tokenizer,
		eventPub:   eventPub,
		verifier:   verifier,
		resolver:   resolver,
		profiles:   profiles,
		log:        log,
		sessionTTL: defaultSessionTTL,
	}
}

const defaultSessionTTL = 7 * 24 * time.Hour

// SetSessionTTL overrides the default session lifetime. Call before serving;
// sessions already issued keep their expiry.
func (s *AuthService) SetSessionTTL(ttl time.Duration) {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
}

// IssueNonce creates a challenge nonce for the claimed identity and returns
// it base64-encoded. The networkId must match the network implied by the
// account id.
func (s *AuthService) IssueNonce(ctx context.Context, accountID, publicKey, networkID string) (string, error) {
	network := nearid.NetworkFromAccountID(accountID)
	if networkID != network {
		return "", core.ErrNetworkMismatch
	}

	nonce, err := s.nonces.Issue(ctx, core.IdentityKey(accountID, network, publicKey), nonceTTL)
	if err != nil {
		return "", fmt.Errorf("failed to issue nonce: %w", err)
	}

	return base64.StdEncoding.EncodeToString(nonce), nil
}

// SignIn verifies a signed proof, resolves the application user and issues a
// session. It returns the session, its bearer token and the resolved user.
func (s *AuthService) SignIn(ctx context.Context, authToken, accountID, email string) (*core.Session, string, *core.User, error) {
	identity, err := s.verifier.Verify(ctx, authToken, accountID)
	if err != nil {
		return nil, "", nil, err
	}

	user, err := s.resolver.Resolve(ctx, identity, email)
	if err != nil {
		return nil, "", nil, err
	}

	session, token, err := s.issueSession(ctx, user, identity)
	if err != nil {
		return nil, "", nil, err
	}

	if err := s.eventPub.PublishSignIn(ctx, user.ID, identity.AccountID, identity.Network); err != nil {
		// The session already exists; a missed event is not worth failing
		// the sign-in over.
		s.log.Warn("failed to publish sign-in event", "error", err, "user", user.ID)
	}

	return session, token, user, nil
}

// issueSession persists a session and renders its bearer token. A storage
// failure surfaces as ErrSessionCreation and is never retried here: the
// identity-resolution side effects are already applied.
func (s *AuthService) issueSession(ctx context.Context, user *core.User, identity *core.VerifiedIdentity) (*core.Session, string, error) {
	now := time.Now()
	session := &core.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		AccountID: identity.AccountID,
		Network:   identity.Network,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	if err := s.sessions.Create(ctx, session, s.sessionTTL); err != nil {
		return nil, "", fmt.Errorf("%w: %v", core.ErrSessionCreation, err)
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", core.ErrSessionCreation, err)
	}

	return session, token, nil
}

// LinkAccount verifies a signed proof and attaches the proven identity to
// the given (already signed-in) user. It never creates a user.
func (s *AuthService) LinkAccount(ctx context.Context, userID, authToken, accountID string) error {
	identity, err := s.verifier.Verify(ctx, authToken, accountID)
	if err != nil {
		return err
	}

	if err := s.resolver.Link(ctx, userID, identity); err != nil {
		return err
	}

	if err := s.eventPub.PublishAccountLinked(ctx, userID, identity.AccountID, identity.Network); err != nil {
		s.log.Warn("failed to publish link event", "error", err, "user", userID)
	}

	return nil
}

// UnlinkAccount removes a linked account, deriving the network from the
// account id when none is given.
func (s *AuthService) UnlinkAccount(ctx context.Context, userID, accountID, network string) error {
	if network == "" {
		network = nearid.NetworkFromAccountID(accountID)
	}

	if err := s.resolver.Unlink(ctx, userID, accountID, network); err != nil {
		return err
	}

	if err := s.eventPub.PublishAccountUnlinked(ctx, userID, accountID, network); err != nil {
		s.log.Warn("failed to publish unlink event", "error", err, "user", userID)
	}

	return nil
}

// ListAccounts returns all NEAR accounts linked to the user.
func (s *AuthService) ListAccounts(ctx context.Context, userID string) ([]core.NearAccount, error) {
	return s.resolver.identities.ListAccounts(ctx, userID)
}

// Profile fetches account metadata, defaulting to the user's primary account
// when no account id is given.
func (s *AuthService) Profile(ctx context.Context, userID, accountID string) (*core.Profile, error) {
	if accountID == "" {
		accounts, err := s.resolver.identities.ListAccounts(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, account := range accounts {
			if account.IsPrimary {
				accountID = account.AccountID
				break
			}
		}
		if accountID == "" {
			return nil, core.ErrNotFound
		}
	}

	if s.profiles == nil {
		return nil, core.ErrNotFound
	}

	profile, err := s.profiles.Fetch(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if profile == nil {
		return nil, core.ErrNotFound
	}

	return profile, nil
}

// SessionFromToken resolves a bearer token to its live session. Tokens that
// parse but whose session record is gone (logged out, expired server-side)
// fail with core.ErrSessionInvalid.
func (s *AuthService) SessionFromToken(ctx context.Context, token string) (*core.Session, error) {
	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSessionInvalid, err)
	}

	if time.Now().After(session.ExpiresAt) {
		return nil, core.ErrSessionInvalid
	}

	stored, err := s.sessions.Get(ctx, session.ID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrSessionInvalid
		}
		return nil, err
	}

	return stored, nil
}

// Logout deletes the session behind the bearer token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrSessionInvalid, err)
	}

	return s.sessions.Delete(ctx, session.ID)
}

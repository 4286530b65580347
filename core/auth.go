package core

import (
	"fmt"
	"time"
)

// NonceRecord is a single-use, time-bounded challenge value scoped to one
// claimed identity.
type NonceRecord struct {
	IdentityKey string    // Composite key scoping the nonce to one identity
	Value       []byte    // Random challenge bytes to be signed
	ExpiresAt   time.Time // When the nonce becomes unusable
}

// Expired reports whether the record is past its expiry at the given time.
func (r *NonceRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// IdentityKey composes the nonce-store key for one claimed identity.
// Scoping on (accountId, network, publicKey) keeps concurrent sign-in
// attempts for different accounts from colliding.
func IdentityKey(accountID, network, publicKey string) string {
	return fmt.Sprintf("siwn:%s:%s:%s", accountID, network, publicKey)
}

// VerifiedIdentity is the output of a successful proof verification.
type VerifiedIdentity struct {
	AccountID string
	PublicKey string
	Network   string
}

// User is the application identity record a NEAR account resolves to.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NearAccount links one NEAR identity to one application user.
type NearAccount struct {
	UserID    string    `json:"userId"`
	AccountID string    `json:"accountId"`
	Network   string    `json:"network"`
	PublicKey string    `json:"publicKey"`
	IsPrimary bool      `json:"isPrimary"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session represents an authenticated user session.
type Session struct {
	ID        string    // Unique session identifier
	UserID    string    // Owning user
	AccountID string    // NEAR account the session was established with
	Network   string    // Network of that account
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // When the session expires
}

// Profile is account metadata fetched from an external collaborator.
type Profile struct {
	AccountID string `json:"accountId"`
	Name      string `json:"name,omitempty"`
	Image     string `json:"image,omitempty"`
}

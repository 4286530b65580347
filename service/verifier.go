package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/internal/nearid"
	"github.com/layer-3/siwn/internal/nep413"
	"github.com/layer-3/siwn/ports"
)

// Policy configures how a signed proof is judged.
type Policy struct {
	// ExpectedRecipient is the identity proofs must be addressed to.
	ExpectedRecipient string

	// ValidateRecipient, when set, replaces the ExpectedRecipient equality
	// check.
	ValidateRecipient func(recipient string) bool

	// ValidateNonce, when set, additionally gates the consumed nonce value.
	ValidateNonce func(nonce []byte) bool

	// ValidateMessage, when set, replaces the canonical-message check.
	ValidateMessage func(message string) bool

	// RequireFullAccessKey demands the signing key be a full-access key of
	// the account. When false, ValidateLimitedAccessKey may additionally
	// gate function-call keys.
	RequireFullAccessKey bool

	// ValidateLimitedAccessKey gates restricted keys when full access is not
	// required.
	ValidateLimitedAccessKey func(ctx context.Context, accountID, publicKey, recipient string) (bool, error)
}

// Verifier validates signed proof envelopes against a policy.
type Verifier struct {
	nonces     ports.NonceStore
	accessKeys ports.AccessKeyValidator
	policy     Policy
}

// NewVerifier creates a verifier over the given nonce store and access-key
// validator.
func NewVerifier(nonces ports.NonceStore, accessKeys ports.AccessKeyValidator, policy Policy) *Verifier {
	return &Verifier{
		nonces:     nonces,
		accessKeys: accessKeys,
		policy:     policy,
	}
}

// Verify checks a signed proof claimed to belong to accountID and returns
// the verified identity.
//
// The nonce is consumed before any signature math runs and stays consumed
// even when a later step fails: a partially-failed verification must never
// leave a replayable nonce behind.
func (v *Verifier) Verify(ctx context.Context, authToken, accountID string) (*core.VerifiedIdentity, error) {
	envelope, err := core.DecodeProof(authToken)
	if err != nil {
		return nil, err
	}
	return v.verifyEnvelope(ctx, envelope, accountID)
}

// VerifyClaimed verifies a proof against the account the envelope itself
// names, for callers with no out-of-band claim to check it against.
func (v *Verifier) VerifyClaimed(ctx context.Context, authToken string) (*core.VerifiedIdentity, error) {
	envelope, err := core.DecodeProof(authToken)
	if err != nil {
		return nil, err
	}
	return v.verifyEnvelope(ctx, envelope, envelope.AccountID)
}

func (v *Verifier) verifyEnvelope(ctx context.Context, envelope *core.ProofEnvelope, accountID string) (*core.VerifiedIdentity, error) {
	network := nearid.NetworkFromAccountID(accountID)
	identityKey := core.IdentityKey(accountID, network, envelope.PublicKey)

	record, err := v.nonces.Consume(ctx, identityKey)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(envelope.Nonce, record.Value) {
		return nil, core.ErrInvalidNonce
	}
	if v.policy.ValidateNonce != nil && !v.policy.ValidateNonce(envelope.Nonce) {
		return nil, core.ErrInvalidNonce
	}

	if err := v.verifySignature(envelope); err != nil {
		return nil, err
	}

	if err := v.verifyKeyScope(ctx, envelope); err != nil {
		return nil, err
	}

	if v.policy.ValidateRecipient != nil {
		if !v.policy.ValidateRecipient(envelope.Recipient) {
			return nil, core.ErrRecipientMismatch
		}
	} else if envelope.Recipient != v.policy.ExpectedRecipient {
		return nil, core.ErrRecipientMismatch
	}

	// A valid proof for a different account must not satisfy the nonce we
	// just consumed.
	if envelope.AccountID != accountID {
		return nil, core.ErrAccountMismatch
	}

	return &core.VerifiedIdentity{
		AccountID: envelope.AccountID,
		PublicKey: envelope.PublicKey,
		Network:   network,
	}, nil
}

func (v *Verifier) verifySignature(envelope *core.ProofEnvelope) error {
	pub, err := nearid.ParsePublicKey(envelope.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}

	sig, err := base64.StdEncoding.DecodeString(envelope.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature not base64", core.ErrInvalidSignature)
	}

	payload := &nep413.Payload{
		Message:   envelope.Message,
		Recipient: envelope.Recipient,
	}
	copy(payload.Nonce[:], envelope.Nonce)

	if !nep413.Verify(pub, payload, sig) {
		return core.ErrInvalidSignature
	}

	// The signature binds whatever message the wallet displayed; the message
	// must additionally be the canonical challenge for this proof, or a
	// tampered statement could carry a genuine signature.
	if v.policy.ValidateMessage != nil {
		if !v.policy.ValidateMessage(envelope.Message) {
			return core.ErrInvalidSignature
		}
	} else if envelope.Message != core.BuildChallenge(envelope.Recipient, envelope.AccountID, envelope.Nonce) {
		return core.ErrInvalidSignature
	}

	return nil
}

func (v *Verifier) verifyKeyScope(ctx context.Context, envelope *core.ProofEnvelope) error {
	if v.policy.RequireFullAccessKey {
		full, err := v.accessKeys.IsFullAccessKey(ctx, envelope.AccountID, envelope.PublicKey)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrInsufficientKeyScope, err)
		}
		if !full {
			return core.ErrInsufficientKeyScope
		}
		return nil
	}

	if v.policy.ValidateLimitedAccessKey != nil {
		ok, err := v.policy.ValidateLimitedAccessKey(ctx, envelope.AccountID, envelope.PublicKey, envelope.Recipient)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrInsufficientKeyScope, err)
		}
		if !ok {
			return core.ErrInsufficientKeyScope
		}
	}

	return nil
}

// nonceTTL is shared by issuance and verification; a nonce older than this
// is unusable whether or not it was ever cleaned up.
const nonceTTL = 15 * time.Minute

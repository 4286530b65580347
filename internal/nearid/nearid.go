// Package nearid handles NEAR account id and public key conventions: mapping
// an account id to its network and parsing "ed25519:<base58>" encoded keys.
package nearid

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"

	ed25519Prefix = "ed25519:"
)

// NetworkFromAccountID derives the network implied by an account id suffix.
// "*.testnet" accounts live on testnet; named "*.near" accounts and implicit
// (hex) accounts live on mainnet.
func NetworkFromAccountID(accountID string) string {
	if strings.HasSuffix(accountID, ".testnet") {
		return NetworkTestnet
	}
	return NetworkMainnet
}

// ParsePublicKey decodes an "ed25519:<base58>" public key string.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, ok := strings.CutPrefix(s, ed25519Prefix)
	if !ok {
		return nil, fmt.Errorf("public key %q: missing %q prefix", s, ed25519Prefix)
	}

	decoded, err := base58.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("public key base58 decode failed: %w", err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(decoded))
	}

	return ed25519.PublicKey(decoded), nil
}

// ParsePrivateKey decodes an "ed25519:<base58>" private key string. NEAR
// encodes the 64-byte expanded form (seed followed by public key).
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	raw, ok := strings.CutPrefix(s, ed25519Prefix)
	if !ok {
		return nil, fmt.Errorf("private key: missing %q prefix", ed25519Prefix)
	}

	decoded, err := base58.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("private key base58 decode failed: %w", err)
	}
	if len(decoded) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(decoded))
	}

	return ed25519.PrivateKey(decoded), nil
}

// EncodePublicKey renders a raw ed25519 public key in NEAR's string form.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return ed25519Prefix + base58.Encode(pub)
}

// EncodePrivateKey renders a raw ed25519 private key in NEAR's string form.
func EncodePrivateKey(priv ed25519.PrivateKey) string {
	return ed25519Prefix + base58.Encode(priv)
}

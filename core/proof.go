package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// NonceLength is the required size of a challenge nonce in bytes.
const NonceLength = 32

// ProofEnvelope carries a signed sign-in message and everything needed to
// verify it. It travels opaquely between signer and verifier as the "auth
// token".
type ProofEnvelope struct {
	AccountID string `json:"accountId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
	Nonce     []byte `json:"nonce"`
}

// EncodeProof serializes an envelope into the opaque auth token format.
func EncodeProof(p *ProofEnvelope) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode proof: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeProof parses an auth token back into an envelope. Schema violations
// fail with ErrMalformedToken.
func DecodeProof(token string) (*ProofEnvelope, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64", ErrMalformedToken)
	}

	var p ProofEnvelope
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: not valid JSON", ErrMalformedToken)
	}

	if p.AccountID == "" || p.PublicKey == "" || p.Signature == "" ||
		p.Message == "" || p.Recipient == "" {
		return nil, fmt.Errorf("%w: missing required field", ErrMalformedToken)
	}
	if len(p.Nonce) != NonceLength {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", ErrMalformedToken, NonceLength)
	}

	return &p, nil
}

package core

import (
	"encoding/base64"
	"fmt"
)

// BuildChallenge returns the canonical human-readable sign-in message for a
// recipient, account and nonce. Issuance and verification must produce the
// same bytes, so this is the single place the format lives.
func BuildChallenge(recipient, accountID string, nonce []byte) string {
	return fmt.Sprintf("Sign in to %s\n\nAccount ID: %s\nNonce: %s",
		recipient, accountID, base64.StdEncoding.EncodeToString(nonce))
}

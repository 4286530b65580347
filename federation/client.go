// Package federation lets one server authenticate its outbound calls to
// another server with the same signed-message mechanism the browser flow
// uses, except the key pair is held directly by the server process.
//
// Nonce scheme: the caller performs a prior round trip to the callee's
// /near/nonce endpoint before signing. The callee already serves nonce
// issuance for the base protocol, so federation inherits single-use and
// expiry without a second scheme.
package federation

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/internal/nearid"
	"github.com/layer-3/siwn/internal/nep413"
)

// Client signs federation proofs for one server identity.
type Client struct {
	accountID string
	networkID string
	privKey   ed25519.PrivateKey
	publicKey string

	targetURL string // base URL of the callee, e.g. "https://api.example.com"
	recipient string // the callee's configured identity
	http      *http.Client
}

// NewClient creates a federation client. privateKey is the server's NEAR key
// in "ed25519:<base58>" form; recipient is the identity the callee expects
// proofs to be addressed to.
func NewClient(accountID, privateKey, targetURL, recipient string) (*Client, error) {
	priv, err := nearid.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{
		accountID: accountID,
		networkID: nearid.NetworkFromAccountID(accountID),
		privKey:   priv,
		publicKey: nearid.EncodePublicKey(priv.Public().(ed25519.PublicKey)),
		targetURL: targetURL,
		recipient: recipient,
		http:      &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// AccountID returns the identity this client signs as.
func (c *Client) AccountID() string { return c.accountID }

// PublicKey returns the signing key in NEAR string form.
func (c *Client) PublicKey() string { return c.publicKey }

// AuthToken fetches a nonce from the callee, signs the canonical challenge
// and returns the encoded proof. Each token is good for exactly one verified
// call: the nonce it carries is single-use.
func (c *Client) AuthToken(ctx context.Context) (string, error) {
	nonce, err := c.fetchNonce(ctx)
	if err != nil {
		return "", err
	}

	message := core.BuildChallenge(c.recipient, c.accountID, nonce)

	payload := &nep413.Payload{
		Message:   message,
		Recipient: c.recipient,
	}
	copy(payload.Nonce[:], nonce)

	sig, err := nep413.Sign(c.privKey, payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign federation proof: %w", err)
	}

	return core.EncodeProof(&core.ProofEnvelope{
		AccountID: c.accountID,
		PublicKey: c.publicKey,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Message:   message,
		Recipient: c.recipient,
		Nonce:     nonce,
	})
}

func (c *Client) fetchNonce(ctx context.Context) ([]byte, error) {
	body, err := json.Marshal(map[string]string{
		"accountId": c.accountID,
		"publicKey": c.publicKey,
		"networkId": c.networkID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nonce request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.targetURL+"/near/nonce", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build nonce request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nonce request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nonce request returned status %d", resp.StatusCode)
	}

	var result struct {
		Nonce string `json:"nonce"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode nonce response: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(result.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}

	return nonce, nil
}

// HTTPClient returns a client whose requests to the callee carry a fresh
// federation proof as a bearer credential.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: &signingRoundTripper{client: c, base: http.DefaultTransport},
	}
}

// signingRoundTripper attaches a freshly signed proof to every request.
// Tokens are not reused: the nonce inside is consumed by the first
// verification.
type signingRoundTripper struct {
	client *Client
	base   http.RoundTripper
}

func (t *signingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.client.AuthToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to obtain auth token: %w", err)
	}

	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+token)

	return t.base.RoundTrip(cloned)
}

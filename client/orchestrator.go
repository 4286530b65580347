// Package client implements the client-side half of the Sign-In-With-NEAR
// protocol: wallet connection, the two-phase nonce/sign-in flow and account
// linking, driven from a browser shell or a CLI.
package client

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/ports"
)

// Orchestrator owns the client-side protocol state: the connection state
// machine, the cached nonce and the single in-flight connect slot. Construct
// one per client session and tear it down with Close on disconnect.
type Orchestrator struct {
	wallet ports.WalletAdapter
	api    *API

	mu      sync.Mutex
	phase   Phase
	conn    *Connection
	pending chan error // single in-flight connect completion, nil when idle
	nonce   *CachedNonce

	now  func() time.Time
	done chan struct{}
}

// New creates an orchestrator and starts consuming wallet events.
func New(wallet ports.WalletAdapter, api *API) *Orchestrator {
	o := &Orchestrator{
		wallet: wallet,
		api:    api,
		phase:  Disconnected,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go o.pumpEvents()
	return o
}

// pumpEvents feeds wallet push events into the state machine.
func (o *Orchestrator) pumpEvents() {
	for {
		select {
		case <-o.done:
			return
		case event, ok := <-o.wallet.Events():
			if !ok {
				return
			}
			switch event.Kind {
			case ports.WalletSignedIn:
				o.handleSignedIn(event)
			case ports.WalletSignedOut:
				o.handleSignedOut()
			}
		}
	}
}

func (o *Orchestrator) handleSignedIn(event ports.WalletEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.phase = Connected
	o.conn = &Connection{
		AccountID: event.AccountID,
		PublicKey: event.PublicKey,
		NetworkID: event.NetworkID,
	}

	if o.pending != nil {
		o.pending <- nil
		o.pending = nil
	}
}

func (o *Orchestrator) handleSignedOut() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.phase = Disconnected
	o.conn = nil
	o.nonce = nil

	if o.pending != nil {
		o.pending <- newError(CodeWalletNotConnected, "wallet signed out during connect")
		o.pending = nil
	}
}

// State returns a snapshot of the connection state machine.
func (o *Orchestrator) State() ConnState {
	o.mu.Lock()
	defer o.mu.Unlock()

	state := ConnState{Phase: o.phase}
	if o.conn != nil {
		conn := *o.conn
		state.Conn = &conn
	}
	return state
}

// AccountID returns the connected account id, or "" when not connected.
func (o *Orchestrator) AccountID() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.conn == nil {
		return ""
	}
	return o.conn.AccountID
}

// RequestSignIn runs phase one of the two-phase flow: connect the wallet,
// fetch a nonce for the connected account and cache it for SignIn. A second
// call while a connect is already pending fails with CONNECT_PENDING rather
// than racing the first.
func (o *Orchestrator) RequestSignIn(ctx context.Context, recipient string) error {
	o.mu.Lock()
	o.nonce = nil

	var wait chan error
	switch o.phase {
	case Connecting:
		o.mu.Unlock()
		return newError(CodeConnectPending, "a connect attempt is already in progress")
	case Disconnected:
		wait = make(chan error, 1)
		o.pending = wait
		o.phase = Connecting
	}
	o.mu.Unlock()

	if wait != nil {
		if err := o.wallet.Connect(ctx); err != nil {
			o.abandonConnect()
			return err
		}

		select {
		case err := <-wait:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			o.abandonConnect()
			return ctx.Err()
		}
	}

	conn, err := o.connection()
	if err != nil {
		return err
	}

	// The wallet event may not carry a public key; learn it from a probe
	// signature, which is the only thing wallets always return it with.
	if conn.PublicKey == "" {
		signed, err := o.wallet.SignMessage(ctx, "test", recipient, make([]byte, core.NonceLength))
		if err != nil {
			o.clearNonce()
			return err
		}
		o.setPublicKey(signed.PublicKey)
		conn.PublicKey = signed.PublicKey
	}

	nonce, err := o.api.Nonce(ctx, conn.AccountID, conn.PublicKey, conn.NetworkID)
	if err != nil {
		o.clearNonce()
		return err
	}

	o.mu.Lock()
	o.nonce = &CachedNonce{
		Nonce:     nonce,
		AccountID: conn.AccountID,
		PublicKey: conn.PublicKey,
		NetworkID: conn.NetworkID,
		Timestamp: o.now(),
	}
	o.mu.Unlock()

	return nil
}

// abandonConnect rolls the state machine back after a failed or cancelled
// connect so the in-flight slot frees up.
func (o *Orchestrator) abandonConnect() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase == Connecting {
		o.phase = Disconnected
	}
	o.pending = nil
}

// SignIn runs phase two: spend the cached nonce, have the wallet sign the
// canonical challenge and submit the proof for verification. The cached
// nonce is cleared on every outcome so a failed attempt can never reuse it.
func (o *Orchestrator) SignIn(ctx context.Context, recipient string) (*VerifyResult, error) {
	conn, err := o.connection()
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	nonce := o.nonce
	o.mu.Unlock()

	if !nonce.fresh(o.now()) {
		o.clearNonce()
		return nil, newError(CodeNonceNotFound, "no valid nonce; call RequestSignIn first")
	}
	// The mismatch is decided locally; the server is never contacted with a
	// proof for the wrong account.
	if nonce.AccountID != conn.AccountID {
		o.clearNonce()
		return nil, newError(CodeAccountMismatch, "cached nonce belongs to a different account; call RequestSignIn again")
	}

	defer o.clearNonce()

	authToken, err := o.signChallenge(ctx, recipient, conn.AccountID, nonce.Nonce)
	if err != nil {
		return nil, err
	}

	result, err := o.api.Verify(ctx, authToken, conn.AccountID, "")
	if err != nil {
		return nil, err
	}

	o.api.SetSessionToken(result.Token)
	return result, nil
}

// Link signs a fresh proof and attaches the connected account to the current
// session's user. Unlike SignIn it fetches its own nonce: linking is a
// one-shot flow.
func (o *Orchestrator) Link(ctx context.Context, recipient string) error {
	conn, err := o.connection()
	if err != nil {
		return err
	}

	nonce, err := o.api.Nonce(ctx, conn.AccountID, conn.PublicKey, conn.NetworkID)
	if err != nil {
		return err
	}

	authToken, err := o.signChallenge(ctx, recipient, conn.AccountID, nonce)
	if err != nil {
		return err
	}

	return o.api.Link(ctx, authToken, conn.AccountID)
}

// signChallenge builds the canonical message, has the wallet sign it and
// encodes the proof envelope.
func (o *Orchestrator) signChallenge(ctx context.Context, recipient, accountID, nonceB64 string) (string, error) {
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return "", newError(CodeNonceNotFound, "cached nonce is not valid base64")
	}

	message := core.BuildChallenge(recipient, accountID, nonce)

	signed, err := o.wallet.SignMessage(ctx, message, recipient, nonce)
	if err != nil {
		return "", newError(CodeSignerNotAvailable, err.Error())
	}

	o.setPublicKey(signed.PublicKey)

	return core.EncodeProof(&core.ProofEnvelope{
		AccountID: signed.AccountID,
		PublicKey: signed.PublicKey,
		Signature: signed.Signature,
		Message:   message,
		Recipient: recipient,
		Nonce:     nonce,
	})
}

// Unlink removes a linked account from the session's user.
func (o *Orchestrator) Unlink(ctx context.Context, accountID, network string) error {
	return o.api.Unlink(ctx, accountID, network)
}

// ListAccounts returns the session user's linked accounts.
func (o *Orchestrator) ListAccounts(ctx context.Context) ([]core.NearAccount, error) {
	return o.api.ListAccounts(ctx)
}

// Profile fetches metadata for an account, defaulting to the session's
// primary account.
func (o *Orchestrator) Profile(ctx context.Context, accountID string) (*core.Profile, error) {
	return o.api.Profile(ctx, accountID)
}

// Disconnect tears down the wallet connection and resets the state machine.
func (o *Orchestrator) Disconnect(ctx context.Context) error {
	err := o.wallet.Disconnect(ctx)

	o.mu.Lock()
	o.phase = Disconnected
	o.conn = nil
	o.nonce = nil
	o.pending = nil
	o.mu.Unlock()

	return err
}

// Close stops the event pump. The orchestrator must not be used afterwards.
func (o *Orchestrator) Close() {
	close(o.done)
}

func (o *Orchestrator) connection() (*Connection, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != Connected || o.conn == nil {
		return nil, newError(CodeWalletNotConnected, "wallet not connected; connect your wallet first")
	}
	conn := *o.conn
	return &conn, nil
}

func (o *Orchestrator) setPublicKey(publicKey string) {
	if publicKey == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn != nil && o.conn.PublicKey == "" {
		o.conn.PublicKey = publicKey
	}
}

func (o *Orchestrator) clearNonce() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nonce = nil
}

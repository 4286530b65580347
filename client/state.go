package client

import "time"

// Phase is the connection state machine's discriminant.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Connected
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Connection describes the wallet account while Phase == Connected.
type Connection struct {
	AccountID string
	PublicKey string // may be empty until the first signed message
	NetworkID string
}

// ConnState is a snapshot of the connection state machine. Conn is non-nil
// only while Phase == Connected.
type ConnState struct {
	Phase Phase
	Conn  *Connection
}

// CachedNonce decouples the challenge request from proof submission in the
// two-phase sign-in flow. It lives only in the orchestrator's memory.
type CachedNonce struct {
	Nonce     string // base64 form, exactly as the server issued it
	AccountID string
	PublicKey string
	NetworkID string
	Timestamp time.Time
}

// cachedNonceMaxAge bounds client-side reuse of a fetched nonce; the server
// enforces its own, longer expiry.
const cachedNonceMaxAge = 5 * time.Minute

// fresh reports whether the cached nonce is still within its client-side
// window. An account mismatch is reported separately by the caller.
func (n *CachedNonce) fresh(now time.Time) bool {
	return n != nil && now.Sub(n.Timestamp) < cachedNonceMaxAge
}

package ports

import "context"

// WalletEventKind discriminates events pushed by a wallet adapter.
type WalletEventKind int

const (
	WalletSignedIn WalletEventKind = iota
	WalletSignedOut
)

// WalletEvent is delivered on the adapter's event channel when the wallet
// connects or disconnects out-of-band.
type WalletEvent struct {
	Kind      WalletEventKind
	AccountID string
	PublicKey string // may be empty until the first signed message
	NetworkID string
}

// SignedMessage is the wallet's response to a signing request.
type SignedMessage struct {
	AccountID string
	PublicKey string
	Signature string
}

// WalletAdapter abstracts a browser or CLI wallet. Connect triggers the
// wallet's own flow; the resulting account arrives as a WalletSignedIn event
// on Events.
type WalletAdapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SignMessage(ctx context.Context, message, recipient string, nonce []byte) (*SignedMessage, error)
	Events() <-chan WalletEvent
}

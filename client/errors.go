package client

import "fmt"

// Code classifies orchestrator failures so calling UI can react to each
// distinctly from transport-level errors.
type Code string

const (
	CodeSignerNotAvailable Code = "SIGNER_NOT_AVAILABLE"
	CodeWalletNotConnected Code = "WALLET_NOT_CONNECTED"
	CodeNonceNotFound      Code = "NONCE_NOT_FOUND"
	CodeAccountMismatch    Code = "ACCOUNT_MISMATCH"
	CodeConnectPending     Code = "CONNECT_PENDING"
)

// Error is a typed orchestrator error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf extracts the code from an orchestrator error, or "" for other
// errors.
func CodeOf(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

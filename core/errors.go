package core

import "errors"

var (
	ErrMalformedToken          = errors.New("malformed auth token")
	ErrInvalidNonce            = errors.New("invalid or expired nonce")
	ErrInvalidSignature        = errors.New("invalid signature")
	ErrRecipientMismatch       = errors.New("recipient mismatch")
	ErrAccountMismatch         = errors.New("account id mismatch")
	ErrInsufficientKeyScope    = errors.New("insufficient access key scope")
	ErrNetworkMismatch         = errors.New("network id mismatch with account id")
	ErrEmailRequired           = errors.New("email is required")
	ErrCannotUnlinkPrimary     = errors.New("cannot unlink primary account")
	ErrCannotUnlinkLastAccount = errors.New("cannot unlink last remaining account")
	ErrAccountAlreadyLinked    = errors.New("account already linked")
	ErrNotFound                = errors.New("not found")
	ErrSessionCreation         = errors.New("session creation failed")
	ErrSessionInvalid          = errors.New("session is invalid")
	ErrTokenExpired            = errors.New("token has expired")
	ErrInvalidToken            = errors.New("invalid token")
)

package rpc

import "context"

// StaticAccessKeyValidator trusts a fixed answer for every lookup. Useful in
// tests and in federation deployments where peers are known out-of-band.
type StaticAccessKeyValidator struct {
	FullAccess bool
}

func (v StaticAccessKeyValidator) IsFullAccessKey(ctx context.Context, accountID, publicKey string) (bool, error) {
	return v.FullAccess, nil
}

package ports

import (
	"context"

	"github.com/layer-3/siwn/core"
)

// AccessKeyValidator checks, against chain state, that a public key is an
// access key of the account and reports its permission scope.
type AccessKeyValidator interface {
	// IsFullAccessKey reports whether publicKey is a full-access key of
	// accountID. A key unknown to the account fails with an error.
	IsFullAccessKey(ctx context.Context, accountID, publicKey string) (bool, error)
}

// ProfileFetcher retrieves account metadata from an external collaborator.
// A missing profile returns (nil, nil).
type ProfileFetcher interface {
	Fetch(ctx context.Context, accountID string) (*core.Profile, error)
}

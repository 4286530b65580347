// Package profile fetches NEAR account metadata from the on-chain social
// contract.
package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/layer-3/siwn/adapters/rpc"
	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/ports"
)

const ipfsGateway = "https://ipfs.near.social/ipfs/"

// SocialFetcher reads profiles from the near.social contract via a JSON-RPC
// node.
type SocialFetcher struct {
	client   *rpc.Client
	contract string
}

// NewSocialFetcher creates a fetcher using the given RPC client. The contract
// defaults to "social.near".
func NewSocialFetcher(client *rpc.Client) *SocialFetcher {
	return &SocialFetcher{client: client, contract: "social.near"}
}

type socialProfile struct {
	Name  string `json:"name"`
	Image struct {
		URL  string `json:"url"`
		IPFS struct {
			CID string `json:"cid"`
		} `json:"ipfs_cid"`
	} `json:"image"`
}

// Fetch looks up "<accountId>/profile/**" on the social contract. A missing
// profile returns (nil, nil).
func (f *SocialFetcher) Fetch(ctx context.Context, accountID string) (*core.Profile, error) {
	args, err := json.Marshal(map[string]any{
		"keys": []string{accountID + "/profile/**"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal contract args: %w", err)
	}

	raw, err := f.client.CallFunction(ctx, f.contract, "get", args)
	if err != nil {
		return nil, err
	}

	// Result shape: {"<accountId>": {"profile": {...}}}
	var data map[string]struct {
		Profile socialProfile `json:"profile"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	entry, ok := data[accountID]
	if !ok {
		return nil, nil
	}

	image := entry.Profile.Image.URL
	if image == "" && entry.Profile.Image.IPFS.CID != "" {
		image = ipfsGateway + entry.Profile.Image.IPFS.CID
	}

	return &core.Profile{
		AccountID: accountID,
		Name:      entry.Profile.Name,
		Image:     image,
	}, nil
}

var _ ports.ProfileFetcher = (*SocialFetcher)(nil)

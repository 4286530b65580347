// Package rpc talks to a NEAR JSON-RPC node for the chain-state checks the
// protocol needs: access-key scope lookups and social-contract profile reads.
package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/layer-3/siwn/ports"
)

// Client is a minimal NEAR JSON-RPC client.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a client for the given JSON-RPC endpoint, e.g.
// "https://rpc.mainnet.near.org".
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Name  string          `json:"name"`
	Cause json.RawMessage `json:"cause"`
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "siwn",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc call returned status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error: %s", rpcResp.Error.Name)
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("failed to unmarshal rpc result: %w", err)
	}

	return nil
}

type viewAccessKeyResult struct {
	// Permission is either the string "FullAccess" or an object describing
	// a function-call key, so it stays raw until inspected.
	Permission json.RawMessage `json:"permission"`
	Error      string          `json:"error"`
}

// IsFullAccessKey reports whether publicKey is a full-access key of
// accountID, by querying view_access_key on the node.
func (c *Client) IsFullAccessKey(ctx context.Context, accountID, publicKey string) (bool, error) {
	params := map[string]any{
		"request_type": "view_access_key",
		"finality":     "final",
		"account_id":   accountID,
		"public_key":   publicKey,
	}

	var result viewAccessKeyResult
	if err := c.call(ctx, "query", params, &result); err != nil {
		return false, err
	}
	if result.Error != "" {
		return false, fmt.Errorf("access key lookup failed: %s", result.Error)
	}

	var permission string
	if err := json.Unmarshal(result.Permission, &permission); err != nil {
		// Non-string permission means a function-call key.
		return false, nil
	}

	return permission == "FullAccess", nil
}

type callFunctionResult struct {
	// The node returns contract output as an array of byte values.
	Result []int  `json:"result"`
	Error  string `json:"error"`
}

// CallFunction runs a view call against a contract and returns its raw
// output bytes.
func (c *Client) CallFunction(ctx context.Context, contract, method string, args []byte) ([]byte, error) {
	params := map[string]any{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   contract,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(args),
	}

	var result callFunctionResult
	if err := c.call(ctx, "query", params, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("contract call failed: %s", result.Error)
	}

	out := make([]byte, len(result.Result))
	for i, b := range result.Result {
		out[i] = byte(b)
	}
	return out, nil
}

var _ ports.AccessKeyValidator = (*Client)(nil)

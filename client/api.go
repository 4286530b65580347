package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/layer-3/siwn/core"
)

// API is a thin HTTP client for the server's /near endpoints.
type API struct {
	baseURL string
	http    *http.Client

	// sessionToken is attached as a bearer credential once sign-in succeeds.
	sessionToken string
}

// NewAPI creates an API client for the given server base URL.
func NewAPI(baseURL string) *API {
	return &API{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetSessionToken installs the bearer token used on session-scoped calls.
func (a *API) SetSessionToken(token string) { a.sessionToken = token }

// APIError carries the status and message of a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (a *API) do(ctx context.Context, method, path string, body, result any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.sessionToken)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return &APIError{Status: resp.StatusCode, Message: failure.Error}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Nonce requests a challenge nonce for the claimed identity.
func (a *API) Nonce(ctx context.Context, accountID, publicKey, networkID string) (string, error) {
	var result struct {
		Nonce string `json:"nonce"`
	}
	err := a.do(ctx, http.MethodPost, "/near/nonce", map[string]string{
		"accountId": accountID,
		"publicKey": publicKey,
		"networkId": networkID,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.Nonce, nil
}

// VerifyResult is the server's response to a successful verification.
type VerifyResult struct {
	Token   string `json:"token"`
	Success bool   `json:"success"`
	User    struct {
		ID        string `json:"id"`
		AccountID string `json:"accountId"`
		Network   string `json:"network"`
	} `json:"user"`
}

// Verify submits a signed proof for session issuance.
func (a *API) Verify(ctx context.Context, authToken, accountID, email string) (*VerifyResult, error) {
	body := map[string]string{
		"authToken": authToken,
		"accountId": accountID,
	}
	if email != "" {
		body["email"] = email
	}

	var result VerifyResult
	if err := a.do(ctx, http.MethodPost, "/near/verify", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Link submits a signed proof to attach an additional account to the
// current session's user.
func (a *API) Link(ctx context.Context, authToken, accountID string) error {
	var result struct {
		Success bool `json:"success"`
	}
	err := a.do(ctx, http.MethodPost, "/near/link-account", map[string]string{
		"authToken": authToken,
		"accountId": accountID,
	}, &result)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("account linking failed")
	}
	return nil
}

// Unlink removes a linked account from the current session's user.
func (a *API) Unlink(ctx context.Context, accountID, network string) error {
	body := map[string]string{"accountId": accountID}
	if network != "" {
		body["network"] = network
	}
	return a.do(ctx, http.MethodPost, "/near/unlink-account", body, nil)
}

// ListAccounts returns the current session user's linked accounts.
func (a *API) ListAccounts(ctx context.Context) ([]core.NearAccount, error) {
	var result struct {
		Accounts []core.NearAccount `json:"accounts"`
	}
	if err := a.do(ctx, http.MethodGet, "/near/list-accounts", nil, &result); err != nil {
		return nil, err
	}
	return result.Accounts, nil
}

// Profile fetches account metadata, defaulting to the session's primary
// account when accountID is empty.
func (a *API) Profile(ctx context.Context, accountID string) (*core.Profile, error) {
	body := map[string]string{}
	if accountID != "" {
		body["accountId"] = accountID
	}

	var result core.Profile
	if err := a.do(ctx, http.MethodPost, "/near/profile", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

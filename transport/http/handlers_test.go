package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/siwn/adapters/identity"
	"github.com/layer-3/siwn/adapters/rpc"
	"github.com/layer-3/siwn/adapters/store"
	"github.com/layer-3/siwn/adapters/tokenizer"
	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/internal/nearid"
	"github.com/layer-3/siwn/internal/nep413"
	"github.com/layer-3/siwn/service"
)

const testRecipient = "app.near"

type noopPublisher struct{}

func (noopPublisher) PublishSignIn(ctx context.Context, userID, accountID, network string) error {
	return nil
}
func (noopPublisher) PublishAccountLinked(ctx context.Context, userID, accountID, network string) error {
	return nil
}
func (noopPublisher) PublishAccountUnlinked(ctx context.Context, userID, accountID, network string) error {
	return nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	nonces := store.NewMemoryNonceStore()
	verifier := service.NewVerifier(nonces, rpc.StaticAccessKeyValidator{FullAccess: true}, service.Policy{
		ExpectedRecipient: testRecipient,
	})
	resolver := service.NewResolver(identity.NewMemoryStore(), nil, true, "wallet.example")

	authService := service.NewAuthService(
		nonces,
		store.NewMemorySessionStore(),
		tokenizer.NewJWTTokenizer(signKey),
		noopPublisher{},
		verifier,
		resolver,
		nil,
		nil,
	)

	return SetupRouter(authService, nil, nil)
}

// signer holds a wallet key pair for building signed proofs in requests.
type signer struct {
	accountID string
	networkID string
	publicKey string
	priv      ed25519.PrivateKey
}

func newSigner(t *testing.T, accountID string) *signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &signer{
		accountID: accountID,
		networkID: nearid.NetworkFromAccountID(accountID),
		publicKey: nearid.EncodePublicKey(pub),
		priv:      priv,
	}
}

func (s *signer) proof(t *testing.T, nonce []byte) string {
	t.Helper()

	message := core.BuildChallenge(testRecipient, s.accountID, nonce)
	payload := &nep413.Payload{Message: message, Recipient: testRecipient}
	copy(payload.Nonce[:], nonce)

	sig, err := nep413.Sign(s.priv, payload)
	require.NoError(t, err)

	token, err := core.EncodeProof(&core.ProofEnvelope{
		AccountID: s.accountID,
		PublicKey: s.publicKey,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Message:   message,
		Recipient: testRecipient,
		Nonce:     nonce,
	})
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, router *gin.Engine, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func fetchNonce(t *testing.T, router *gin.Engine, s *signer) []byte {
	t.Helper()

	recorder := doJSON(t, router, http.MethodPost, "/near/nonce", "", map[string]string{
		"accountId": s.accountID,
		"publicKey": s.publicKey,
		"networkId": s.networkID,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Nonce string `json:"nonce"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))

	nonce, err := base64.StdEncoding.DecodeString(body.Nonce)
	require.NoError(t, err)
	require.Len(t, nonce, core.NonceLength)
	return nonce
}

// verify runs the full nonce + verify exchange and returns the session token.
func verify(t *testing.T, router *gin.Engine, s *signer) string {
	t.Helper()

	nonce := fetchNonce(t, router, s)
	recorder := doJSON(t, router, http.MethodPost, "/near/verify", "", map[string]string{
		"authToken": s.proof(t, nonce),
		"accountId": s.accountID,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Token   string `json:"token"`
		Success bool   `json:"success"`
		User    struct {
			AccountID string `json:"accountId"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, s.accountID, body.User.AccountID)
	return body.Token
}

func TestNonceEndpoint(t *testing.T) {
	router := newTestRouter(t)
	fetchNonce(t, router, newSigner(t, "alice.near"))
}

func TestNonceEndpointNetworkMismatch(t *testing.T) {
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/near/nonce", "", map[string]string{
		"accountId": "alice.near",
		"publicKey": "ed25519:key",
		"networkId": "testnet",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestNonceEndpointMissingFields(t *testing.T) {
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/near/nonce", "", map[string]string{
		"accountId": "alice.near",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestVerifyEndpoint(t *testing.T) {
	router := newTestRouter(t)
	signer := newSigner(t, "alice.near")

	nonce := fetchNonce(t, router, signer)
	recorder := doJSON(t, router, http.MethodPost, "/near/verify", "", map[string]string{
		"authToken": signer.proof(t, nonce),
		"accountId": signer.accountID,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	// The session rides on a cookie too, for browser callers.
	cookies := recorder.Result().Cookies()
	found := false
	for _, cookie := range cookies {
		if cookie.Name == SessionCookie {
			found = true
			assert.NotEmpty(t, cookie.Value)
			assert.True(t, cookie.HttpOnly)
		}
	}
	assert.True(t, found)
}

func TestVerifyEndpointFailuresAreOpaque(t *testing.T) {
	router := newTestRouter(t)
	signer := newSigner(t, "alice.near")
	nonce := fetchNonce(t, router, signer)
	token := signer.proof(t, nonce)

	// Exercise distinct failures; the response body must not distinguish them.
	cases := []map[string]string{
		{"authToken": "garbage", "accountId": "alice.near"},              // malformed
		{"authToken": token, "accountId": "bob.near"},                    // no nonce for bob
		{"authToken": signer.proof(t, make([]byte, core.NonceLength)), "accountId": "alice.near"}, // wrong nonce
	}

	for _, body := range cases {
		recorder := doJSON(t, router, http.MethodPost, "/near/verify", "", body)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		assert.JSONEq(t, `{"error":"invalid credentials"}`, recorder.Body.String())
	}
}

func TestVerifyEndpointReplay(t *testing.T) {
	router := newTestRouter(t)
	signer := newSigner(t, "alice.near")

	nonce := fetchNonce(t, router, signer)
	token := signer.proof(t, nonce)
	body := map[string]string{"authToken": token, "accountId": signer.accountID}

	recorder := doJSON(t, router, http.MethodPost, "/near/verify", "", body)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/near/verify", "", body)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestSessionScopedEndpointsRequireSession(t *testing.T) {
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodGet, "/near/list-accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/near/list-accounts", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestListAccounts(t *testing.T) {
	router := newTestRouter(t)
	signer := newSigner(t, "alice.near")
	token := verify(t, router, signer)

	recorder := doJSON(t, router, http.MethodGet, "/near/list-accounts", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Accounts []core.NearAccount `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Len(t, body.Accounts, 1)
	assert.Equal(t, "alice.near", body.Accounts[0].AccountID)
	assert.True(t, body.Accounts[0].IsPrimary)
}

func TestLinkAccountEndpoint(t *testing.T) {
	router := newTestRouter(t)
	alice := newSigner(t, "alice.near")
	token := verify(t, router, alice)

	second := newSigner(t, "alice2.near")
	nonce := fetchNonce(t, router, second)

	recorder := doJSON(t, router, http.MethodPost, "/near/link-account", token, map[string]string{
		"authToken": second.proof(t, nonce),
		"accountId": second.accountID,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	// Linking the same account again conflicts.
	nonce = fetchNonce(t, router, second)
	recorder = doJSON(t, router, http.MethodPost, "/near/link-account", token, map[string]string{
		"authToken": second.proof(t, nonce),
		"accountId": second.accountID,
	})
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestUnlinkAccountEndpoint(t *testing.T) {
	router := newTestRouter(t)
	alice := newSigner(t, "alice.near")
	token := verify(t, router, alice)

	// Sole account: refuse.
	recorder := doJSON(t, router, http.MethodPost, "/near/unlink-account", token, map[string]string{
		"accountId": "alice.near",
	})
	assert.Equal(t, http.StatusConflict, recorder.Code)

	second := newSigner(t, "alice2.near")
	nonce := fetchNonce(t, router, second)
	recorder = doJSON(t, router, http.MethodPost, "/near/link-account", token, map[string]string{
		"authToken": second.proof(t, nonce),
		"accountId": second.accountID,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	// Primary account: refuse while a secondary exists.
	recorder = doJSON(t, router, http.MethodPost, "/near/unlink-account", token, map[string]string{
		"accountId": "alice.near",
	})
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// Unknown account.
	recorder = doJSON(t, router, http.MethodPost, "/near/unlink-account", token, map[string]string{
		"accountId": "carol.near",
	})
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	// The secondary unlinks.
	recorder = doJSON(t, router, http.MethodPost, "/near/unlink-account", token, map[string]string{
		"accountId": "alice2.near",
	})
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestProfileEndpointWithoutFetcher(t *testing.T) {
	router := newTestRouter(t)
	signer := newSigner(t, "alice.near")
	token := verify(t, router, signer)

	// No profile source is wired in this deployment.
	recorder := doJSON(t, router, http.MethodPost, "/near/profile", token, map[string]string{})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestSessionCookieAuthenticates(t *testing.T) {
	router := newTestRouter(t)
	signer := newSigner(t, "alice.near")
	token := verify(t, router, signer)

	req := httptest.NewRequest(http.MethodGet, "/near/list-accounts", strings.NewReader(""))
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

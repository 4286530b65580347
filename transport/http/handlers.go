package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/service"
)

// SessionCookie is the cookie name verify sets on success.
const SessionCookie = "siwn_session"

// AuthHandlers contains HTTP handlers for the /near endpoints
type AuthHandlers struct {
	authService *service.AuthService
	log         *slog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, log *slog.Logger) *AuthHandlers {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandlers{
		authService: authService,
		log:         log,
	}
}

// unauthorized writes the one opaque 401 body every verification failure
// maps to; which check failed is logged, never returned.
func (h *AuthHandlers) unauthorized(c *gin.Context, err error) {
	h.log.Warn("verification failed", "error", err, "path", c.FullPath())
	c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
}

func (h *AuthHandlers) internal(c *gin.Context, err error) {
	h.log.Error("internal error", "error", err, "path", c.FullPath())
	c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong, please try again later"})
}

// Nonce handles the nonce request
func (h *AuthHandlers) Nonce(c *gin.Context) {
	var req struct {
		AccountID string `json:"accountId" binding:"required"`
		PublicKey string `json:"publicKey" binding:"required"`
		NetworkID string `json:"networkId" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	nonce, err := h.authService.IssueNonce(c.Request.Context(), req.AccountID, req.PublicKey, req.NetworkID)
	if err != nil {
		if errors.Is(err, core.ErrNetworkMismatch) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "network id mismatch with account id"})
			return
		}
		h.internal(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"nonce": nonce})
}

// Verify handles proof verification and session issuance
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		AuthToken string `json:"authToken" binding:"required"`
		AccountID string `json:"accountId" binding:"required"`
		Email     string `json:"email"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session, token, user, err := h.authService.SignIn(c.Request.Context(), req.AuthToken, req.AccountID, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrEmailRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		case errors.Is(err, core.ErrSessionCreation):
			h.internal(c, err)
		default:
			h.unauthorized(c, err)
		}
		return
	}

	c.SetCookie(SessionCookie, token, int(session.ExpiresAt.Sub(session.IssuedAt).Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"success": true,
		"user": gin.H{
			"id":        user.ID,
			"accountId": session.AccountID,
			"network":   session.Network,
		},
	})
}

// LinkAccount attaches an additional NEAR account to the session's user
func (h *AuthHandlers) LinkAccount(c *gin.Context) {
	var req struct {
		AuthToken string `json:"authToken" binding:"required"`
		AccountID string `json:"accountId" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session := sessionFromContext(c)
	err := h.authService.LinkAccount(c.Request.Context(), session.UserID, req.AuthToken, req.AccountID)
	if err != nil {
		if errors.Is(err, core.ErrAccountAlreadyLinked) {
			c.JSON(http.StatusConflict, gin.H{"error": "account already linked"})
			return
		}
		h.unauthorized(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UnlinkAccount removes a linked account from the session's user
func (h *AuthHandlers) UnlinkAccount(c *gin.Context) {
	var req struct {
		AccountID string `json:"accountId" binding:"required"`
		Network   string `json:"network"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session := sessionFromContext(c)
	err := h.authService.UnlinkAccount(c.Request.Context(), session.UserID, req.AccountID, req.Network)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrCannotUnlinkPrimary):
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": "cannot unlink primary account"})
		case errors.Is(err, core.ErrCannotUnlinkLastAccount):
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": "cannot unlink last remaining account"})
		case errors.Is(err, core.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "no such linked account"})
		default:
			h.internal(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "account unlinked"})
}

// ListAccounts returns the session user's linked accounts
func (h *AuthHandlers) ListAccounts(c *gin.Context) {
	session := sessionFromContext(c)

	accounts, err := h.authService.ListAccounts(c.Request.Context(), session.UserID)
	if err != nil {
		h.internal(c, err)
		return
	}
	if accounts == nil {
		accounts = []core.NearAccount{}
	}

	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// Profile returns account metadata, defaulting to the session's primary account
func (h *AuthHandlers) Profile(c *gin.Context) {
	var req struct {
		AccountID string `json:"accountId"`
	}

	// Body is optional here; an empty body means the session's primary account.
	_ = c.ShouldBindJSON(&req)

	session := sessionFromContext(c)
	profile, err := h.authService.Profile(c.Request.Context(), session.UserID, req.AccountID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no profile found"})
			return
		}
		h.internal(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// Ping answers authorized federation calls
func (h *AuthHandlers) Ping(c *gin.Context) {
	account := c.GetString("federatedAccount")
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"account": account,
	})
}

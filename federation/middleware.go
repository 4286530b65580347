package federation

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/siwn/service"
)

// AccountKey is the gin context key the middleware stores the verified
// caller account id under.
const AccountKey = "federatedAccount"

// Middleware verifies federation proofs on inbound calls. The verifier's
// policy must expect the callee's own identity as recipient. No user or
// session is created; success simply authorizes the call.
func Middleware(verifier *service.Verifier, log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")

		// The claimed account is whatever the envelope names; the verifier
		// holds the proof to that claim.
		identity, err := verifier.VerifyClaimed(c.Request.Context(), token)
		if err != nil {
			log.Warn("federation verification failed", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		c.Set(AccountKey, identity.AccountID)
		c.Next()
	}
}

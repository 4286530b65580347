package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/siwn/core"
	"github.com/layer-3/siwn/service"
)

const sessionContextKey = "siwnSession"

// SessionMiddleware resolves the bearer token (or session cookie) to a live
// session and aborts with 401 when there is none.
func SessionMiddleware(authService *service.AuthService, log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			if cookie, err := c.Cookie(SessionCookie); err == nil {
				token = cookie
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session required"})
			return
		}

		session, err := authService.SessionFromToken(c.Request.Context(), token)
		if err != nil {
			log.Warn("session resolution failed", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session required"})
			return
		}

		c.Set(sessionContextKey, session)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// sessionFromContext returns the session placed by SessionMiddleware. It is
// only called from handlers behind that middleware.
func sessionFromContext(c *gin.Context) *core.Session {
	session, _ := c.MustGet(sessionContextKey).(*core.Session)
	return session
}

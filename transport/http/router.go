package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/siwn/federation"
	"github.com/layer-3/siwn/service"
)

// SetupRouter sets up the Gin router. federationVerifier may be nil when the
// deployment does not accept federated calls.
func SetupRouter(authService *service.AuthService, federationVerifier *service.Verifier, log *slog.Logger) *gin.Engine {
	router := gin.Default()

	handlers := NewAuthHandlers(authService, log)

	near := router.Group("/near")
	{
		near.POST("/nonce", handlers.Nonce)
		near.POST("/verify", handlers.Verify)
	}

	// Session-scoped routes
	authed := router.Group("/near")
	authed.Use(SessionMiddleware(authService, log))
	{
		authed.POST("/link-account", handlers.LinkAccount)
		authed.POST("/unlink-account", handlers.UnlinkAccount)
		authed.GET("/list-accounts", handlers.ListAccounts)
		authed.POST("/profile", handlers.Profile)
	}

	if federationVerifier != nil {
		fed := router.Group("/federation")
		fed.Use(federation.Middleware(federationVerifier, log))
		{
			fed.GET("/ping", handlers.Ping)
		}
	}

	return router
}

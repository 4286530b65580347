package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"database/sql"
	"log"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/siwn/adapters/events"
	"github.com/layer-3/siwn/adapters/identity"
	"github.com/layer-3/siwn/adapters/profile"
	"github.com/layer-3/siwn/adapters/rpc"
	"github.com/layer-3/siwn/adapters/store"
	"github.com/layer-3/siwn/adapters/tokenizer"
	"github.com/layer-3/siwn/config"
	"github.com/layer-3/siwn/service"
	"github.com/layer-3/siwn/transport/http"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Session tokens are signed with an ECDSA key; in production, load it
	// from somewhere durable so sessions survive restarts.
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate signing key: %v", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opts)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: redisClient},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		log.Fatalf("Failed to create Redis publisher: %v", err)
	}

	rpcClient := rpc.NewClient(cfg.RPCEndpoint)
	profiles := profile.NewSocialFetcher(rpcClient)
	identities := identity.NewPostgresStore(db)
	nonces := store.NewRedisNonceStore(redisClient)
	sessions := store.NewRedisSessionStore(redisClient)

	verifier := service.NewVerifier(nonces, rpcClient, service.Policy{
		ExpectedRecipient:    cfg.Recipient,
		RequireFullAccessKey: cfg.RequireFullAccessKey,
	})
	resolver := service.NewResolver(identities, profiles, cfg.Anonymous, cfg.EmailDomain)
	authService := service.NewAuthService(
		nonces,
		sessions,
		tokenizer.NewJWTTokenizer(signKey),
		events.NewWatermillPublisher(publisher),
		verifier,
		resolver,
		profiles,
		logger,
	)
	authService.SetSessionTTL(cfg.SessionTTL)

	// Federated callers address their proofs to this server's own identity.
	var federationVerifier *service.Verifier
	if cfg.FederationAccountID != "" {
		federationVerifier = service.NewVerifier(nonces, rpcClient, service.Policy{
			ExpectedRecipient:    cfg.FederationAccountID,
			RequireFullAccessKey: cfg.RequireFullAccessKey,
		})
	}

	router := http.SetupRouter(authService, federationVerifier, logger)

	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

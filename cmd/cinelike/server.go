package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"cinelike/internal/app/films"
	"cinelike/internal/app/likes"
	"cinelike/internal/auth"
	"cinelike/internal/config"
	"cinelike/internal/http/middleware"
	"cinelike/internal/httpapi"
	"cinelike/internal/metrics"
	"cinelike/internal/store"
	"cinelike/internal/syncguard"
)

func newHTTPHandler(cfg *config.Config, dataStore *store.Store, guard *syncguard.Guard) (http.Handler, error) {
	authn, err := newAuthenticator(cfg.Security)
	if err != nil {
		return nil, err
	}

	likeSvc := likes.New(dataStore, likes.Config{
		Guard:           guard,
		SyncConcurrency: cfg.Sync.Concurrency,
	})
	filmSvc := films.New(dataStore)

	routes := httpapi.New(likeSvc, filmSvc, metrics.Handler()).Routes()

	return middleware.Chain(routes,
		middleware.RequestLogging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORS.AllowedOrigins),
		middleware.Identity(authn),
	), nil
}

func newAuthenticator(cfg config.SecurityConfig) (*auth.Authenticator, error) {
	var verifier *auth.TokenVerifier
	if cfg.JWTSecret != "" {
		v, err := auth.NewTokenVerifier(cfg.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("token verifier: %w", err)
		}
		verifier = v
	}

	log.Info().
		Bool("bearer_tokens", verifier != nil).
		Bool("trust_user_header", cfg.TrustUserHeader).
		Msg("identity sources configured")

	return auth.NewAuthenticator(verifier, cfg.TrustUserHeader), nil
}

// newSyncGuard connects to Redis when configured. An unreachable Redis is
// logged and the guard starts disabled.
func newSyncGuard(ctx context.Context, cfg *config.Config) (*syncguard.Guard, func()) {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("REDIS_ADDR not set, sync replay guard disabled")
		return syncguard.New(nil, cfg.Sync.GuardTTL), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, sync replay guard disabled")
		_ = rdb.Close()
		return syncguard.New(nil, cfg.Sync.GuardTTL), func() {}
	}

	log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Sync.GuardTTL).Msg("sync replay guard enabled")
	return syncguard.New(rdb, cfg.Sync.GuardTTL), func() { _ = rdb.Close() }
}

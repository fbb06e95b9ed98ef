package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/yarago/auth-service/internal/api"
	"github.com/yarago/auth-service/internal/api/handler"
	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
	"github.com/yarago/auth-service/internal/core/service"
	"github.com/yarago/auth-service/internal/infrastructure/config"
	"github.com/yarago/auth-service/internal/infrastructure/db/mongo"
	"github.com/yarago/auth-service/internal/infrastructure/db/postgres"
	"github.com/yarago/auth-service/internal/infrastructure/db/redis"
	"github.com/yarago/auth-service/internal/infrastructure/memory"
	"github.com/yarago/auth-service/internal/infrastructure/scheduler"
	"github.com/yarago/auth-service/internal/infrastructure/security"
	"github.com/yarago/auth-service/pkg/logger"
)

const (
	serviceName     = "auth-service"
	shutdownTimeout = 10 * time.Second
	throttleWindow  = time.Minute
)

// @title                       Auth Service API
// @version                     1.0
// @description                 Authentication and session lifecycle: login, registration, token refresh, logout and account administration.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: serviceName,
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// backends bundles the adapters selected by configuration plus their
// readiness checks and cleanup hooks.
type backends struct {
	users    ports.UserDirectory
	roles    ports.RoleDirectory
	sessions ports.SessionStore
	limiter  echomiddleware.RateLimiterStore
	checks   map[string]handler.Check
	closers  []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	b := &backends{checks: map[string]handler.Check{}}
	defer b.close()

	if err := b.openDirectory(ctx, cfg); err != nil {
		return err
	}
	if err := b.openSessionStore(ctx, cfg); err != nil {
		return err
	}
	if b.limiter == nil && cfg.LoginRateLimit > 0 {
		b.limiter = api.NewMemoryLoginLimiter(cfg.LoginRateLimit)
	}

	hasher := security.NewBcryptHasher(cfg.Auth.BcryptCost)
	// Importing service sets jwt.TimePrecision to milliseconds for the whole
	// process; every JWT this binary encodes or parses uses that precision.
	codec, err := service.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}
	verifier := service.NewCredentialVerifier(b.users, hasher, cfg.Auth.MaxLoginAttempts, logger.Component("credential_verifier"))
	authService := service.NewAuthService(b.users, b.roles, b.sessions, codec, hasher, verifier, service.AuthConfig{
		AccessTokenTTL:    cfg.Auth.AccessTokenTTL(),
		RefreshTokenTTL:   cfg.Auth.RefreshTokenTTL(),
		MaxActiveSessions: cfg.Auth.MaxActiveSessions,
		DefaultRole:       cfg.Auth.DefaultRole,
	}, logger.Component("auth_service"))
	adminService := service.NewAdminService(b.users, b.roles, b.sessions, hasher, logger.Component("admin_service"))

	if cfg.SessionPurgeInterval > 0 {
		scheduler.NewPurgeSweeper(b.sessions, cfg.SessionPurgeInterval, logger.Component("purge_sweeper")).Start(ctx)
	}

	e := api.NewRouter(api.Deps{
		Auth:         authService,
		Admin:        adminService,
		Codec:        codec,
		Checks:       b.checks,
		LoginLimiter: b.limiter,
		Log:          logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("user_backend", cfg.UserBackend).
			Str("session_backend", cfg.SessionBackend).
			Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func (b *backends) openDirectory(ctx context.Context, cfg *config.Config) error {
	if cfg.UserBackend == config.BackendMemory {
		b.users = memory.NewUserDirectory()
		b.roles = memory.NewRoleDirectory()
		return nil
	}

	client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database, AppName: serviceName})
	if err != nil {
		return err
	}
	b.closers = append(b.closers, func() { _ = client.Disconnect(context.Background()) })
	b.checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }

	users := mongo.NewUserDirectory(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}
	roles := mongo.NewRoleDirectory(db)
	if err := roles.Seed(ctx, domain.SeedRoles()); err != nil {
		return err
	}
	b.users, b.roles = users, roles
	return nil
}

func (b *backends) openSessionStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		client, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		b.sessions = redis.NewSessionStore(client, cfg.Redis.KeyPrefix)
		if cfg.LoginRateLimit > 0 {
			b.limiter = redis.NewLoginThrottle(client, cfg.Redis.KeyPrefix,
				int64(math.Ceil(cfg.LoginRateLimit*throttleWindow.Seconds())), throttleWindow)
		}

	case config.BackendPostgres:
		if err := postgres.Migrate(cfg.Postgres.URL, postgres.DirectionUp); err != nil {
			return err
		}
		pool, err := postgres.Connect(ctx, postgres.Config{URL: cfg.Postgres.URL})
		if err != nil {
			return err
		}
		b.closers = append(b.closers, pool.Close)
		b.checks["postgres"] = func(ctx context.Context) error { return postgres.Ping(ctx, pool, 0) }
		b.sessions = postgres.NewSessionStore(pool)

	default:
		b.sessions = memory.NewSessionStore(0)
	}
	return nil
}

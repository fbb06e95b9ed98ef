package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "github.com/yarago/auth-service/docs"
	"github.com/yarago/auth-service/internal/api/handler"
	"github.com/yarago/auth-service/internal/api/middleware"
	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
)

// Deps holds everything the router wires into handlers.
type Deps struct {
	Auth   ports.AuthService
	Admin  ports.AdminService
	Codec  ports.TokenCodec
	Checks map[string]handler.Check
	// LoginLimiter throttles the credential endpoints per client IP.
	// Nil disables throttling.
	LoginLimiter echomiddleware.RateLimiterStore
	Log          zerolog.Logger
}

// NewMemoryLoginLimiter returns a per-process limiter allowing perSecond
// requests per client IP.
func NewMemoryLoginLimiter(perSecond float64) echomiddleware.RateLimiterStore {
	return echomiddleware.NewRateLimiterMemoryStore(rate.Limit(perSecond))
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(d.Auth)
	adminHandler := handler.NewAdminHandler(d.Admin)
	healthHandler := handler.NewHealthHandler(d.Checks)
	authMiddleware := middleware.Auth(d.Codec)

	credentials := []echo.MiddlewareFunc{}
	if d.LoginLimiter != nil {
		credentials = append(credentials, loginRateLimit(d.LoginLimiter))
	}

	// --- Auth routes ---
	auth := e.Group("/api/v1/auth")
	auth.POST("/login", authHandler.Login, credentials...)
	auth.POST("/register", authHandler.Register, credentials...)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout, authMiddleware)
	auth.GET("/me", authHandler.Me, authMiddleware)

	// --- Admin routes ---
	admin := e.Group("/api/v1/admin", authMiddleware, middleware.RBAC(domain.RoleAdmin))
	admin.GET("/users/:id", adminHandler.GetUser)
	admin.POST("/users/:id/unlock", adminHandler.Unlock)
	admin.PUT("/users/:id/status", adminHandler.SetStatus)
	admin.POST("/users/:id/password", adminHandler.ResetPassword)
	admin.GET("/roles", adminHandler.ListRoles)

	// --- Health probes (no auth required) ---
	e.GET("/health", healthHandler.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness – are dependencies up?

	// --- Operations ---
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger writes one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			switch {
			case v.Status >= http.StatusInternalServerError:
				ev = log.Error().Err(v.Error)
			case v.Error != nil:
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}

// loginRateLimit throttles by client IP and answers 429 when over the limit.
func loginRateLimit(store echomiddleware.RateLimiterStore) echo.MiddlewareFunc {
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts, slow down")
		},
	})
}

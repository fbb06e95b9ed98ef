package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
)

// Context keys set by Auth.
const (
	ClaimsKey   = "claims"
	UsernameKey = "username"
	UserIDKey   = "user_id"
	RolesKey    = "roles"
)

// Auth validates the Bearer access token and injects its claims into context.
// Session tokens are rejected here; they are only accepted by the refresh route.
func Auth(codec ports.TokenCodec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := codec.ParseAccessToken(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(ClaimsKey, claims)
			c.Set(UsernameKey, claims.Subject)
			c.Set(UserIDKey, claims.UserID)
			c.Set(RolesKey, claims.Roles())

			return next(c)
		}
	}
}

// ClaimsFrom returns the claims Auth stored on the context.
func ClaimsFrom(c echo.Context) (domain.Claims, bool) {
	claims, ok := c.Get(ClaimsKey).(domain.Claims)
	return claims, ok
}

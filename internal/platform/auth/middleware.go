package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// PrincipalLoader resolves a token subject to a live account. It returns an
// error when the account no longer exists or is deactivated.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID int64) (Principal, error)
}

type JWTConfig struct {
	Issuer  *TokenIssuer
	Loader  PrincipalLoader
	Skipper func(c echo.Context) bool
}

// JWTMiddleware authenticates the bearer token and stores the caller's
// Principal in the request context. Role is always read from the store, never
// trusted from the token.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			userID, err := cfg.Issuer.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := c.Request().Context()
			principal, err := cfg.Loader.LoadPrincipal(ctx, userID)
			if err != nil {
				return err
			}

			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, principal)))
			c.Set("user_id", principal.UserID)
			return next(c)
		}
	}
}

// MustPrincipal returns the caller or a 401 when the request is unauthenticated.
func MustPrincipal(c echo.Context) (Principal, error) {
	p, ok := PrincipalFromContext(c.Request().Context())
	if !ok {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return p, nil
}

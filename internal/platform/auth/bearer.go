package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const BearerTokenKey contextKey = "bearer_token"

// RequireBearer rejects requests without an "Authorization: Bearer" header
// and stores the opaque token on the request context. The token is not
// inspected here; the upstream EHR decides whether it is valid.
func RequireBearer() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			ctx := context.WithValue(c.Request().Context(), BearerTokenKey, token)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func BearerTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(BearerTokenKey).(string)
	return token
}

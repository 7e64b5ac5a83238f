package server

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"

	"uikits/internal/core"
)

// AuthMiddleware requires "Authorization: Bearer <masterKey>". With no
// master key configured every request is rejected, so operator endpoints
// stay closed until a key is set.
func AuthMiddleware(masterKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if masterKey == "" {
				return handleError(c, core.NewAuthenticationError("operator endpoints are disabled: no master key configured"))
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return handleError(c, core.NewAuthenticationError("missing authorization header"))
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return handleError(c, core.NewAuthenticationError("invalid authorization header format, expected 'Bearer <token>'"))
			}

			token := strings.TrimPrefix(authHeader, prefix)
			if subtle.ConstantTimeCompare([]byte(token), []byte(masterKey)) != 1 {
				return handleError(c, core.NewAuthenticationError("invalid master key"))
			}
			return next(c)
		}
	}
}

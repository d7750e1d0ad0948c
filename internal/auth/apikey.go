// Package auth holds the API's authentication middleware.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

const headerAPIKey = "X-API-Key"

// APIKeyMiddleware rejects requests whose X-API-Key header does not match
// the configured key. An empty configured key disables authentication,
// which is how local development runs.
func APIKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}

			provided := c.Request().Header.Get(headerAPIKey)
			if provided == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "missing API key",
				})
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "invalid API key",
				})
			}
			return next(c)
		}
	}
}

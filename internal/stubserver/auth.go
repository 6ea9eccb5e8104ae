package stubserver

import (
	"crypto/subtle"
	"net/http"

	"github.com/dmitrijs2005/idsync/internal/common"
	"github.com/labstack/echo/v4"
)

// apiKeyAuth rejects requests whose x-mp-key header does not match key.
func apiKeyAuth(key string) echo.MiddlewareFunc {
	want := []byte(key)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := []byte(c.Request().Header.Get(common.APIKeyHeaderName))
			if len(got) == 0 {
				return failure(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing api key")
			}
			if subtle.ConstantTimeCompare(got, want) != 1 {
				return failure(c, http.StatusForbidden, "FORBIDDEN", "invalid api key")
			}
			return next(c)
		}
	}
}

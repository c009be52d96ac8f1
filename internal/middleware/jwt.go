package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cafeteria-procurement/internal/model"
	"github.com/iliyamo/cafeteria-procurement/internal/utils"
)

// principalKey is the echo context key holding the authenticated
// model.Principal.  It is unexported so only Authenticate can set it.
const principalKey = "auth.principal"

// AccessVerifier checks access tokens.  *utils.TokenIssuer implements it.
type AccessVerifier interface {
	ParseAccess(raw string) (utils.Claims, error)
}

// Authenticate validates the Bearer access token and attaches the decoded
// principal to the context.  Requests without a valid token stop here with
// 401.
func Authenticate(v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}

			claims, err := v.ParseAccess(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}
			c.Set(principalKey, claims.Principal())
			return next(c)
		}
	}
}

// CurrentPrincipal returns the principal attached by Authenticate.
func CurrentPrincipal(c echo.Context) (model.Principal, bool) {
	p, ok := c.Get(principalKey).(model.Principal)
	return p, ok
}

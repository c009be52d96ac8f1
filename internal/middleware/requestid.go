package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cafeteria-procurement/internal/audit"
)

const (
	requestIDKey       = "request_id"
	maxInboundIDLength = 64
)

// RequestID assigns every request a correlation id.  A well-formed inbound
// X-Request-ID is reused; anything else is replaced by a fresh uuid.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > maxInboundIDLength || !printable(id) {
				id = uuid.NewString()
			}
			c.Set(requestIDKey, id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// GetRequestID returns the id assigned by RequestID, or "" outside it.
func GetRequestID(c echo.Context) string {
	id, _ := c.Get(requestIDKey).(string)
	return id
}

// AuditMeta collects the request facts recorded with audit entries.
func AuditMeta(c echo.Context) audit.Meta {
	return audit.Meta{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		RequestID: GetRequestID(c),
	}
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

package middleware

import (
	"net"

	"github.com/labstack/echo/v4"
)

// IPExtractor decides what c.RealIP reports, and therefore which address is
// audited and rate limited.  X-Forwarded-For is read only when the peer is
// inside one of the trusted CIDRs; with none configured the peer address is
// used as is.
func IPExtractor(trusted []string) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trusted {
		if _, n, err := net.ParseCIDR(cidr); err == nil {
			opts = append(opts, echo.TrustIPRange(n))
		}
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

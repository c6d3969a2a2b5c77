package api

import (
	"net"
	"net/http"
	"strings"
	"sync"

	echo "github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/sentryhound/sentryhound/pkg/auth"
	"github.com/sentryhound/sentryhound/pkg/models"
)

// principalContextKey is the echo.Context store key the auth middleware
// stashes the verified models.Principal under.
const principalContextKey = "principal"

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// requireAuth verifies the Authorization: Bearer <token> header against
// issuer and, on success, stashes the resulting models.Principal on the
// request context for handlers and requireAdmin to read (spec §6: every
// REST and WebSocket endpoint is gated behind the assumed
// verify_access_token predicate — pkg/auth.Issuer is what actually
// implements it in this deployment).
func requireAuth(issuer *auth.Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			token := bearerToken(c.Request().Header.Get("Authorization"))
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			claims, err := issuer.Verify(token, auth.TokenAccess)
			if err != nil {
				return mapDomainError(err)
			}
			c.Set(principalContextKey, auth.PrincipalFromClaims(claims))
			return next(c)
		}
	}
}

// requireAdmin must run after requireAuth. It rejects non-admin callers for
// endpoints spec §6 restricts to the admin role (e.g. asset management).
func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		p := principalFromContext(c)
		if !p.IsAdmin() {
			return echo.NewHTTPError(http.StatusForbidden, "admin role required")
		}
		return next(c)
	}
}

func principalFromContext(c *echo.Context) models.Principal {
	p, _ := c.Get(principalContextKey).(models.Principal)
	return p
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

// ipRateLimiter enforces a coarse per-client request budget on the
// unauthenticated /auth endpoints, where requireAuth provides no natural
// key to rate-limit by. One limiter per remote IP, garbage never collected
// for the lifetime of the process — acceptable for a single-tenant,
// process-local deployment (spec §1 Non-goals: no distributed rate-limit
// store).
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newIPRateLimiter(perSecond float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{limiters: make(map[string]*rate.Limiter), r: rate.Limit(perSecond), burst: burst}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// rateLimited returns middleware rejecting callers over limiter's per-IP budget.
func rateLimited(limiter *ipRateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			ip := c.Request().RemoteAddr
			if host, _, err := net.SplitHostPort(ip); err == nil {
				ip = host
			}
			if !limiter.allow(ip) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

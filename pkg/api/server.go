// Package api provides the HTTP and WebSocket API for sentryhound.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/sentryhound/sentryhound/pkg/auth"
	"github.com/sentryhound/sentryhound/pkg/config"
	"github.com/sentryhound/sentryhound/pkg/credentials"
	"github.com/sentryhound/sentryhound/pkg/database"
	"github.com/sentryhound/sentryhound/pkg/events"
	"github.com/sentryhound/sentryhound/pkg/hunt"
	"github.com/sentryhound/sentryhound/pkg/session"
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg         *config.Config
	dbClient    *database.Client
	secret      string
	issuer      *auth.Issuer
	bus         *events.Bus
	connManager *events.ConnectionManager

	users          *database.UserRepository
	assets         *database.AssetRepository
	sessions       *session.Manager
	huntModules    *hunt.Registry
	hunts          *hunt.Orchestrator
	huntExecutions *database.HuntExecutionRepository
	findings       *database.FindingRepository
	timeline       *database.TimelineRepository
	credentials    *credentials.Resolver

	busDepthLimit int
	dashboardDir  string // path to dashboard build dir (empty = no static serving)
}

// NewServer wires every already-constructed domain component into an Echo
// router and returns a server ready for SetDashboardDir (optional) and
// Start/StartWithListener.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	users *database.UserRepository,
	assets *database.AssetRepository,
	sessions *session.Manager,
	huntModules *hunt.Registry,
	hunts *hunt.Orchestrator,
	huntExecutions *database.HuntExecutionRepository,
	findings *database.FindingRepository,
	timeline *database.TimelineRepository,
	credentialsResolver *credentials.Resolver,
	bus *events.Bus,
	connManager *events.ConnectionManager,
) *Server {
	e := echo.New()

	s := &Server{
		echo:           e,
		cfg:            cfg,
		dbClient:       dbClient,
		secret:         cfg.Secret,
		issuer:         auth.NewIssuer(cfg.Secret, cfg.Auth.AccessTokenLifetime, cfg.Auth.RefreshTokenLifetime),
		bus:            bus,
		connManager:    connManager,
		users:          users,
		assets:         assets,
		sessions:       sessions,
		huntModules:    huntModules,
		hunts:          hunts,
		huntExecutions: huntExecutions,
		findings:       findings,
		timeline:       timeline,
		credentials:    credentialsResolver,
		busDepthLimit:  cfg.EventQueueMax,
	}

	if connManager != nil {
		connManager.SetRPCHandler(&wsRPCHandler{sessions: sessions})
	}

	s.setupRoutes()
	return s
}

// SetDashboardDir sets the path to the dashboard build directory and
// registers static file serving routes. When set and the directory
// contains an index.html, assets are served from /assets/* and a SPA
// fallback is registered for all non-API routes.
//
// Must be called after NewServer (which registers API routes first) so
// that API routes take priority over the wildcard SPA fallback.
func (s *Server) SetDashboardDir(dir string) {
	s.dashboardDir = dir
	s.setupDashboardRoutes()
}

// setupRoutes registers every HTTP and WebSocket route.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	// Unauthenticated endpoints are rate-limited per IP (spec §6) — login
	// and register are the only routes an unauthenticated caller can hit
	// repeatedly, and thus the only ones worth protecting from brute force.
	authLimiter := newIPRateLimiter(1, 5)
	authGroup := s.echo.Group("/auth")
	authGroup.Use(rateLimited(authLimiter))
	authGroup.POST("/register", s.registerHandler)
	authGroup.POST("/login", s.loginHandler)
	authGroup.POST("/refresh", s.refreshHandler)
	authGroup.POST("/change-password", s.changePasswordHandler, requireAuth(s.issuer))

	v1 := s.echo.Group("/api/v1")
	v1.Use(requireAuth(s.issuer))

	// Assets — admin only (spec §6: asset CRUD is an admin-role operation).
	assetsGroup := v1.Group("/assets")
	assetsGroup.Use(requireAdmin)
	assetsGroup.POST("", s.createAssetHandler)
	assetsGroup.GET("", s.listAssetsHandler)
	assetsGroup.GET("/:id", s.getAssetHandler)
	assetsGroup.PUT("/:id", s.updateAssetHandler)
	assetsGroup.DELETE("/:id", s.deleteAssetHandler)
	v1.GET("/assets/:id/timeline", s.getTimelineHandler)
	v1.GET("/assets/:id/findings", s.listAssetFindingsHandler)

	// Sessions.
	v1.POST("/sessions", s.createSessionHandler)
	v1.GET("/sessions", s.listSessionsHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.POST("/sessions/:id/mode", s.toggleModeHandler)
	v1.POST("/sessions/:id/lock", s.lockSessionHandler)
	v1.POST("/sessions/:id/unlock", s.unlockSessionHandler)
	v1.DELETE("/sessions/:id", s.destroySessionHandler)

	// Hunts.
	v1.GET("/hunt-modules", s.listHuntModulesHandler)
	v1.POST("/sessions/:id/hunts", s.startHuntHandler)
	v1.GET("/sessions/:id/hunts", s.listSessionHuntsHandler)
	v1.GET("/hunts/:id", s.getHuntHandler)
	v1.POST("/hunts/:id/cancel", s.cancelHuntHandler)
	v1.GET("/sessions/:id/findings", s.listSessionFindingsHandler)

	// Findings.
	v1.GET("/findings/:id", s.getFindingHandler)
	v1.PATCH("/findings/:id", s.updateFindingStatusHandler)

	// WebSocket — the browser WebSocket API cannot set custom headers on
	// the handshake, so the access token is also accepted as ?token=;
	// verification happens inside wsHandler itself rather than via
	// requireAuth, since a 401 on a failed upgrade must still be a plain
	// HTTP response, not a half-open socket.
	s.echo.GET("/api/v1/ws", s.wsHandler)

	// Dashboard static file serving is registered via SetDashboardDir,
	// called after NewServer so API routes take priority over the
	// wildcard SPA fallback.
}

// Start starts the HTTP server on the given address. Blocks until the
// server is shut down or fails.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

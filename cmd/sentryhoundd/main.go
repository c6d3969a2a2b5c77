// sentryhoundd is the AI-assisted threat-hunting platform's server —
// provides the HTTP/WebSocket API, drives remote shell sessions, and runs
// hunt modules against them.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sentryhound/sentryhound/pkg/ai"
	"github.com/sentryhound/sentryhound/pkg/api"
	"github.com/sentryhound/sentryhound/pkg/config"
	"github.com/sentryhound/sentryhound/pkg/credentials"
	"github.com/sentryhound/sentryhound/pkg/database"
	"github.com/sentryhound/sentryhound/pkg/enrichment"
	"github.com/sentryhound/sentryhound/pkg/events"
	"github.com/sentryhound/sentryhound/pkg/hunt"
	"github.com/sentryhound/sentryhound/pkg/session"
	"github.com/sentryhound/sentryhound/pkg/shellengine"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// sessionLookup defers to a *session.Manager that does not exist yet at
// ConnectionManager construction time — events.ConnectionManager needs a
// SessionLookup up front, session.Manager needs the event bus up front, and
// the bus needs ConnectionManager as its Sink up front. mgr is assigned once,
// before bus.Run/sessionManager.Run start, so there is no data race to guard.
type sessionLookup struct {
	mgr *session.Manager
}

func (l *sessionLookup) AnalystID(sessionID string) (string, bool) {
	return l.mgr.AnalystID(sessionID)
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dbClient, err := database.NewClient(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to database, migrations applied")

	users := database.NewUserRepository(dbClient)
	assets := database.NewAssetRepository(dbClient)
	sessionsRepo := database.NewSessionRepository(dbClient)
	huntExecutions := database.NewHuntExecutionRepository(dbClient)
	findings := database.NewFindingRepository(dbClient)
	timeline := database.NewTimelineRepository(dbClient)

	var vault *credentials.VaultClient
	if cfg.Vault.Enabled {
		vault = credentials.NewVaultClient(cfg.Vault.Addr, cfg.Vault.RoleID, cfg.Vault.SecretID)
	}
	credResolver := credentials.NewResolver(cfg.Secret, cfg.Vault.Enabled, vault)

	lookup := &sessionLookup{}
	connManager := events.NewConnectionManager(lookup, 5*time.Second)
	bus := events.NewBus(cfg.EventQueueMax, connManager)
	go bus.Run(ctx)

	sessionManager := session.NewManager(cfg.MaxSessions, sessionsRepo, bus, session.ReaperConfig{
		Interval: 5 * time.Minute,
		MaxAge:   1 * time.Hour,
	})
	lookup.mgr = sessionManager
	go sessionManager.Run(ctx)

	huntModules := hunt.NewRegistry(cfg.HuntModuleDir)
	executor := shellengine.NewExecutor(shellengine.NewClassifier())

	var aiProvider ai.Provider
	switch cfg.AI.Provider {
	case "anthropic":
		aiProvider = ai.NewAnthropicProvider(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL)
	case "openai-compatible":
		aiProvider = ai.NewOpenAICompatibleProvider(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL)
	default:
		slog.Warn("no AI provider configured — AI-mode hunts will run without analysis", "provider", cfg.AI.Provider)
	}

	enrichProviders := enrichment.BuildProviders(cfg.MCP.Providers, cfg.Timeouts.EnrichmentHTTP)
	enrichOrchestrator := enrichment.NewOrchestrator(enrichProviders, bus)

	huntOrchestrator := hunt.NewOrchestrator(
		sessionManager,
		huntModules,
		executor,
		huntExecutions,
		findings,
		timeline,
		enrichOrchestrator,
		aiProvider,
		bus,
	)

	server := api.NewServer(
		cfg,
		dbClient,
		users,
		assets,
		sessionManager,
		huntModules,
		huntOrchestrator,
		huntExecutions,
		findings,
		timeline,
		credResolver,
		bus,
		connManager,
	)

	if dashboardDir := getEnv("DASHBOARD_DIR", ""); dashboardDir != "" {
		server.SetDashboardDir(dashboardDir)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("starting sentryhoundd", "http_port", httpPort, "config_dir", *configDir)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(":" + httpPort); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

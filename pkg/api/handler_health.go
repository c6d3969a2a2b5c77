package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/sentryhound/sentryhound/pkg/database"
	"github.com/sentryhound/sentryhound/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health.
// Returns a minimal, safe response suitable for unauthenticated access —
// only this process's own components (database, event bus) are checked.
// External dependencies (enrichment providers, the LLM provider) are
// excluded to prevent the orchestrator from restarting this process when an
// external service is unhealthy.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	_, err := database.Health(reqCtx, s.dbClient.DB())
	if err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.bus != nil {
		depth := s.bus.Depth()
		if depth >= s.busDepthLimit && s.busDepthLimit > 0 {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["event_bus"] = HealthCheck{Status: healthStatusDegraded, Message: "queue near capacity"}
		} else {
			checks["event_bus"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.Full(),
		Checks:  checks,
	})
}

package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// getTimelineHandler handles GET /api/v1/assets/:id/timeline.
func (s *Server) getTimelineHandler(c *echo.Context) error {
	assetID := c.Param("id")
	if assetID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "asset id is required")
	}

	list, err := s.timeline.ListByAsset(c.Request().Context(), assetID)
	if err != nil {
		return mapDomainError(err)
	}

	out := make([]TimelineEventResponse, 0, len(list))
	for _, e := range list {
		out = append(out, newTimelineEventResponse(e))
	}
	return c.JSON(http.StatusOK, out)
}

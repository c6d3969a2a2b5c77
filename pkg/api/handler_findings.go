package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// getFindingHandler handles GET /api/v1/findings/:id.
func (s *Server) getFindingHandler(c *echo.Context) error {
	f, err := s.findings.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, newFindingResponse(f))
}

// listAssetFindingsHandler handles GET /api/v1/assets/:id/findings.
func (s *Server) listAssetFindingsHandler(c *echo.Context) error {
	list, err := s.findings.ListByAsset(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, toFindingResponses(list))
}

// listSessionFindingsHandler handles GET /api/v1/sessions/:id/findings.
func (s *Server) listSessionFindingsHandler(c *echo.Context) error {
	list, err := s.findings.ListBySession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, toFindingResponses(list))
}

// updateFindingStatusHandler handles PATCH /api/v1/findings/:id.
func (s *Server) updateFindingStatusHandler(c *echo.Context) error {
	var req UpdateFindingStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := s.findings.UpdateStatus(c.Request().Context(), c.Param("id"), models.FindingStatus(req.Status)); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func toFindingResponses(list []*models.Finding) []FindingResponse {
	out := make([]FindingResponse, 0, len(list))
	for _, f := range list {
		out = append(out, newFindingResponse(f))
	}
	return out
}

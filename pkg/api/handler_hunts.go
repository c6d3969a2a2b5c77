package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listHuntModulesHandler handles GET /api/v1/hunt-modules.
func (s *Server) listHuntModulesHandler(c *echo.Context) error {
	modules := s.huntModules.ListModules()
	out := make([]HuntModuleResponse, 0, len(modules))
	for _, m := range modules {
		out = append(out, newHuntModuleResponse(m))
	}
	return c.JSON(http.StatusOK, out)
}

// startHuntHandler handles POST /api/v1/sessions/:id/hunts.
func (s *Server) startHuntHandler(c *echo.Context) error {
	var req StartHuntRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	huntID, err := s.hunts.Start(c.Request().Context(), c.Param("id"), req.ModuleID, req.RunAI)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"hunt_id": huntID})
}

// cancelHuntHandler handles POST /api/v1/hunts/:id/cancel.
func (s *Server) cancelHuntHandler(c *echo.Context) error {
	s.hunts.Cancel(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// getHuntHandler handles GET /api/v1/hunts/:id.
func (s *Server) getHuntHandler(c *echo.Context) error {
	h, err := s.huntExecutions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, newHuntExecutionResponse(h))
}

// listSessionHuntsHandler handles GET /api/v1/sessions/:id/hunts.
func (s *Server) listSessionHuntsHandler(c *echo.Context) error {
	list, err := s.huntExecutions.ListBySession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapDomainError(err)
	}
	out := make([]HuntExecutionResponse, 0, len(list))
	for _, h := range list {
		out = append(out, newHuntExecutionResponse(h))
	}
	return c.JSON(http.StatusOK, out)
}

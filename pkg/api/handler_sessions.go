package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/sentryhound/sentryhound/pkg/models"
	"github.com/sentryhound/sentryhound/pkg/session"
	"github.com/sentryhound/sentryhound/pkg/shellengine"
)

// createSessionHandler handles POST /api/v1/sessions. Reserves a session
// slot, resolves the asset's credentials, and dials the remote shell in the
// background — the response returns immediately with the session in
// INITIALIZING/CONNECTING state (spec §4.1, §4.2).
func (s *Server) createSessionHandler(c *echo.Context) error {
	var req CreateSessionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	p := principalFromContext(c)

	asset, err := s.assets.Get(ctx, req.AssetID)
	if err != nil {
		return mapDomainError(err)
	}

	sess, err := s.sessions.Create(ctx, asset.ID, p.Subject)
	if err != nil {
		return mapDomainError(err)
	}

	go s.connectSession(sess, asset)

	return c.JSON(http.StatusCreated, newSessionResponse(sess.Snapshot()))
}

// connectSession resolves credentials and dials the asset's remote shell
// off the request goroutine (spec §4.2: connection dialing is asynchronous
// relative to session.Create returning).
func (s *Server) connectSession(sess *session.Session, asset *models.Asset) {
	ctx := context.Background()

	bundle, err := s.credentials.Resolve(ctx, asset)
	if err != nil {
		_ = s.sessions.Transition(ctx, sess.ID(), models.StateFailed, "credential resolution failed: "+err.Error())
		return
	}

	_ = s.sessions.Transition(ctx, sess.ID(), models.StateConnecting, "dialing")

	conn := shellengine.NewConnection(sess.ID(), asset.ID, asset.IP, asset.SSHPort, s.sessions, s.bus)
	if err := conn.Connect(ctx, *bundle); err != nil {
		return
	}
	sess.SetShellHandle(conn)
}

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, newSessionResponse(sess.Snapshot()))
}

// listSessionsHandler handles GET /api/v1/sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	list := s.sessions.List()
	out := make([]SessionResponse, 0, len(list))
	for _, sn := range list {
		out = append(out, newSessionResponse(sn))
	}
	return c.JSON(http.StatusOK, out)
}

// toggleModeHandler handles POST /api/v1/sessions/:id/mode — the REST
// counterpart to the WebSocket toggle_mode RPC (spec §6).
func (s *Server) toggleModeHandler(c *echo.Context) error {
	var req ToggleModeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := s.sessions.SetMode(c.Request().Context(), c.Param("id"), models.SessionMode(req.Mode), req.Cols, req.Rows); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// lockSessionHandler handles POST /api/v1/sessions/:id/lock.
func (s *Server) lockSessionHandler(c *echo.Context) error {
	p := principalFromContext(c)
	if err := s.sessions.Lock(c.Request().Context(), c.Param("id"), p.Subject); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// unlockSessionHandler handles POST /api/v1/sessions/:id/unlock.
func (s *Server) unlockSessionHandler(c *echo.Context) error {
	if err := s.sessions.Unlock(c.Request().Context(), c.Param("id")); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// destroySessionHandler handles DELETE /api/v1/sessions/:id.
func (s *Server) destroySessionHandler(c *echo.Context) error {
	if err := s.sessions.Destroy(c.Request().Context(), c.Param("id"), "destroyed via API"); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

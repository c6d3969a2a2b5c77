package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/sentryhound/sentryhound/pkg/auth"
	"github.com/sentryhound/sentryhound/pkg/events"
	"github.com/sentryhound/sentryhound/pkg/models"
	"github.com/sentryhound/sentryhound/pkg/session"
)

// wsHandler upgrades HTTP connections to WebSocket and delegates to
// ConnectionManager. Browsers cannot attach an Authorization header to the
// WebSocket handshake, so the access token is accepted as a ?token= query
// parameter as well as a bearer header — verified before Accept, since
// there is no way to reject a connection after the protocol switch
// (spec §6: every endpoint, including the WebSocket, sits behind the
// assumed verify_access_token predicate).
func (s *Server) wsHandler(c *echo.Context) error {
	if s.connManager == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "websocket not available")
	}

	token := bearerToken(c.Request().Header.Get("Authorization"))
	if token == "" {
		token = c.QueryParam("token")
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}
	claims, err := s.issuer.Verify(token, auth.TokenAccess)
	if err != nil {
		return mapDomainError(err)
	}
	principal := auth.PrincipalFromClaims(claims)

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: s.cfg.CORSOrigins,
	})
	if err != nil {
		return err
	}

	s.connManager.HandleConnection(c.Request().Context(), conn, events.Principal{
		Subject: principal.Subject,
		IsAdmin: principal.IsAdmin(),
	})
	return nil
}

// wsRPCHandler implements events.RPCHandler for the actions that belong to
// the domain layer rather than room membership: toggle_mode, terminal_input,
// terminal_resize (spec §6). The WebSocket connection's joined room is the
// session id (spec §4.6) — there is no separate session_id on these
// messages, so an action before join_session is a no-op.
type wsRPCHandler struct {
	sessions *session.Manager
}

func (h *wsRPCHandler) HandleAction(ctx context.Context, conn *events.Connection, msg *events.ClientMessage) {
	sessionID := conn.Room()
	if sessionID == "" {
		return
	}

	switch msg.Action {
	case "toggle_mode":
		if err := h.sessions.SetMode(ctx, sessionID, models.SessionMode(msg.Mode), msg.Cols, msg.Rows); err != nil {
			slog.Warn("toggle_mode failed", "session_id", sessionID, "error", err)
		}
	case "terminal_input":
		h.terminalInput(ctx, sessionID, msg.Input)
	case "terminal_resize":
		h.terminalResize(sessionID, msg.Cols, msg.Rows)
	}
}

func (h *wsRPCHandler) terminalInput(ctx context.Context, sessionID, b64 string) {
	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		return
	}
	shell := sess.Shell()
	if shell == nil {
		return
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		slog.Warn("terminal_input: malformed base64", "session_id", sessionID, "error", err)
		return
	}
	if err := shell.WritePTY(data); err != nil {
		slog.Warn("terminal_input: write failed", "session_id", sessionID, "error", err)
	}
}

func (h *wsRPCHandler) terminalResize(sessionID string, cols, rows int) {
	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		return
	}
	shell := sess.Shell()
	if shell == nil {
		return
	}
	if err := shell.ResizePTY(cols, rows); err != nil {
		slog.Warn("terminal_resize failed", "session_id", sessionID, "error", err)
	}
}

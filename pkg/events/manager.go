package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var (
	errUnknownSession = errors.New("unknown session")
	errForbidden      = errors.New("not authorized to join this session")
)

// SessionLookup resolves the owning analyst of a session, so the
// ConnectionManager can enforce spec §4.6's room join rule without importing
// pkg/session (which itself depends on events for publishing).
type SessionLookup interface {
	AnalystID(sessionID string) (analystID string, ok bool)
}

// ConnectionManager manages WebSocket connections and session-room
// subscriptions (spec §4.6, §6). Each process has exactly one instance —
// there is no cross-pod distribution to coordinate (Non-goal).
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	rooms   map[string]map[string]bool // session_id -> set of connection_id
	roomMu  sync.RWMutex

	lookup       SessionLookup
	writeTimeout time.Duration
	rpc          RPCHandler
}

// RPCHandler handles the WebSocket RPC actions that belong to the domain
// layer rather than to room membership: toggle_mode, terminal_input,
// terminal_resize (spec §6). pkg/api implements this against the session
// manager and remote-shell engine; ConnectionManager only needs the
// narrow callback so it stays free of a domain-layer import.
type RPCHandler interface {
	HandleAction(ctx context.Context, conn *Connection, msg *ClientMessage)
}

// Connection represents a single authenticated WebSocket client.
//
// room is accessed without a lock: all reads and writes happen on the single
// goroutine that owns this connection (HandleConnection's read loop and its
// deferred cleanup).
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Principal Principal
	room      string // session_id currently joined, empty if none
	ctx       context.Context
	cancel    context.CancelFunc
}

// Principal is the minimal authenticated-caller shape the connection
// manager needs to authorize room joins — duplicated here (rather than
// importing pkg/models) to keep pkg/events free of a dependency on the
// domain model; pkg/api adapts models.Principal to this shape.
type Principal struct {
	Subject string
	IsAdmin bool
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager(lookup SessionLookup, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		connections:  make(map[string]*Connection),
		rooms:        make(map[string]map[string]bool),
		lookup:       lookup,
		writeTimeout: writeTimeout,
	}
}

// SetRPCHandler wires the domain-layer callback for actions ConnectionManager
// does not own itself. Must be called before HandleConnection starts serving
// traffic — there is no lock around reading m.rpc.
func (m *ConnectionManager) SetRPCHandler(h RPCHandler) {
	m.rpc = h
}

// Context returns the connection's lifetime context, cancelled when the
// connection closes. Exposed so an RPCHandler can bound long-running work
// (e.g. a terminal_input command) to the connection's lifetime.
func (c *Connection) Context() context.Context { return c.ctx }

// Room returns the session id this connection is currently joined to, or
// empty if none.
func (c *Connection) Room() string { return c.room }

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade and bearer-token
// verification. Blocks until the connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, principal Principal) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{ID: connID, Conn: conn, Principal: principal, ctx: ctx, cancel: cancel}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, map[string]string{"type": "connection.established", "connection_id": connID})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid websocket message", "connection_id", connID, "error", err)
			continue
		}

		m.handleClientMessage(c, &msg)
	}
}

// Broadcast implements Sink: deliver ev to its session room, or — for
// system-wide events with no session_id — to every admin connection.
func (m *ConnectionManager) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("failed to marshal event for broadcast", "event_type", ev.Type, "error", err)
		return
	}

	if ev.SessionID == "" {
		m.broadcastToAdmins(data)
		return
	}

	m.roomMu.RLock()
	connIDs, exists := m.rooms[ev.SessionID]
	if !exists {
		m.roomMu.RUnlock()
		return
	}
	ids := make([]string, 0, len(connIDs))
	for id := range connIDs {
		ids = append(ids, id)
	}
	m.roomMu.RUnlock()

	// Snapshot connection pointers under the lock, then release before
	// sending, so a slow client write never stalls register/unregister.
	m.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if conn, ok := m.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := m.sendRaw(conn, data); err != nil {
			slog.Warn("failed to send event to websocket client", "connection_id", conn.ID, "error", err)
		}
	}
}

func (m *ConnectionManager) broadcastToAdmins(data []byte) {
	m.mu.RLock()
	conns := make([]*Connection, 0)
	for _, conn := range m.connections {
		if conn.Principal.IsAdmin {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := m.sendRaw(conn, data); err != nil {
			slog.Warn("failed to send system event to websocket client", "connection_id", conn.ID, "error", err)
		}
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "join_session":
		if msg.SessionID == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "session_id is required for join_session"})
			return
		}
		if err := m.joinSession(c, msg.SessionID); err != nil {
			m.sendJSON(c, map[string]string{"type": "join.error", "session_id": msg.SessionID, "message": err.Error()})
			return
		}
		m.sendJSON(c, map[string]string{"type": "join.confirmed", "session_id": msg.SessionID})

	case "leave_session":
		m.leaveSession(c)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})

	default:
		// toggle_mode, terminal_input, terminal_resize belong to the domain
		// layer (session mode switches, PTY input) — ConnectionManager only
		// owns room membership and fan-out.
		if m.rpc != nil {
			m.rpc.HandleAction(c.ctx, c, msg)
		}
	}
}

// joinSession implements spec §4.6's authorization rule: the subscriber's
// subject must equal the session's analyst_id, or hold the admin role.
func (m *ConnectionManager) joinSession(c *Connection, sessionID string) error {
	analystID, ok := m.lookup.AnalystID(sessionID)
	if !ok {
		return errUnknownSession
	}
	if !c.Principal.IsAdmin && c.Principal.Subject != analystID {
		return errForbidden
	}

	m.leaveSession(c)

	m.roomMu.Lock()
	if _, exists := m.rooms[sessionID]; !exists {
		m.rooms[sessionID] = make(map[string]bool)
	}
	m.rooms[sessionID][c.ID] = true
	m.roomMu.Unlock()

	c.room = sessionID
	return nil
}

func (m *ConnectionManager) leaveSession(c *Connection) {
	if c.room == "" {
		return
	}
	m.roomMu.Lock()
	if subs, exists := m.rooms[c.room]; exists {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(m.rooms, c.room)
		}
	}
	m.roomMu.Unlock()
	c.room = ""
}

func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *ConnectionManager) unregisterConnection(c *Connection) {
	m.leaveSession(c)

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal websocket message", "connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("failed to send websocket message", "connection_id", c.ID, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}

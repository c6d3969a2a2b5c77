// Package events implements the process-local event bus and WebSocket
// fan-out described in spec §4.6. There is no multi-node distribution here —
// that is an explicit Non-goal — so the Postgres LISTEN/NOTIFY machinery the
// teacher used for multi-pod fan-out has no role in this package; events
// live only in the bounded in-memory queue in bus.go.
package events

import (
	"encoding/json"
	"time"
)

// EventType enumerates every event this system can emit (spec §4.1–§4.9).
type EventType string

const (
	EventSessionCreated      EventType = "session.created"
	EventSessionStateChanged EventType = "session.state_changed"
	EventSessionTerminated   EventType = "session.terminated"

	EventSSHConnecting    EventType = "ssh.connecting"
	EventSSHConnected     EventType = "ssh.connected"
	EventSSHDisconnected  EventType = "ssh.disconnected"
	EventSSHError         EventType = "ssh.error"
	EventCommandStarted   EventType = "ssh.command_started"
	EventCommandOutput    EventType = "ssh.command_output"
	EventCommandCompleted EventType = "ssh.command_completed"

	EventHuntStarted       EventType = "hunt.started"
	EventHuntStepStarted   EventType = "hunt.step_started"
	EventHuntObservation   EventType = "hunt.observation"
	EventHuntStepCompleted EventType = "hunt.step_completed"
	EventHuntCompleted     EventType = "hunt.completed"
	EventHuntCancelled     EventType = "hunt.cancelled"
	EventHuntFailed        EventType = "hunt.failed"

	EventAIReasoningChunk   EventType = "ai.reasoning_chunk"
	EventAIFindingGenerated EventType = "ai.finding_generated"
	EventAIError            EventType = "ai.error"

	EventMCPLookupStarted     EventType = "mcp.lookup_started"
	EventMCPLookupCompleted   EventType = "mcp.lookup_completed"
	EventMCPLookupFailed      EventType = "mcp.lookup_failed"
	EventMCPEnrichmentApplied EventType = "mcp.enrichment_applied"

	EventFindingGenerated EventType = "finding.generated"

	EventSystemBackpressure EventType = "system.backpressure"
	EventSystemError        EventType = "system.error"

	EventTerminalStarted EventType = "terminal.started"
	EventTerminalData    EventType = "terminal.data"
	EventTerminalClosed  EventType = "terminal.closed"
)

// Event is the envelope every publisher constructs (spec §4.6: "Every event
// carries event_type, optional session_id, and a UTC timestamp").
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an Event, marshalling payload to JSON. A marshal failure
// (only possible for a payload containing an unsupported type, a programmer
// error) degrades to an empty payload rather than panicking — the event
// still carries its type and timestamp.
func NewEvent(t EventType, sessionID string, payload any) Event {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	return Event{Type: t, SessionID: sessionID, Timestamp: time.Now().UTC(), Payload: raw}
}

// SessionChannel returns the room name events for a given session are
// routed to (spec §4.6: "subscribers subscribe to rooms keyed by session id").
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ClientMessage is an inbound WebSocket RPC (spec §6): join_session,
// leave_session, toggle_mode, terminal_input, terminal_resize.
type ClientMessage struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Input     string `json:"input,omitempty"` // base64
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`
}

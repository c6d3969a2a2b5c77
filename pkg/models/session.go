package models

import "time"

// Session is a live analyst↔asset binding (spec §3, §4.1). The persisted
// fields are the subset that survives a process restart; the runtime handles
// (mutexes, shell connection) live only on session.Session, never here.
type Session struct {
	ID        string
	AssetID   string
	AnalystID string
	State     SessionState
	Mode      SessionMode
	LockedBy  string // analyst id, empty when unlocked
	CreatedAt time.Time
	UpdatedAt time.Time
}

// transitions is the FSM table from spec §4.1. Terminal states (FAILED,
// TERMINATED) have no entry and therefore no allowed outbound transitions,
// except the universal "destroy" path handled separately by the manager.
var transitions = map[SessionState][]SessionState{
	StateInitializing: {StateConnecting},
	StateConnecting:   {StateConnected, StateFailed},
	StateConnected:    {StateRunning, StateTerminated},
	StateRunning:      {StatePaused, StateLocked, StateDisconnected, StateTerminated},
	StatePaused:       {StateRunning, StateDisconnected, StateTerminated},
	StateLocked:       {StateRunning, StateDisconnected, StateTerminated},
	StateDisconnected: {StateConnecting, StateTerminated},
}

// CanTransition reports whether "to" is a legal next state from "from",
// per the table above plus the universal non-terminal→TERMINATED destroy path.
func CanTransition(from, to SessionState) bool {
	if to == StateTerminated && !from.Terminal() {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Package session implements the session manager of spec §4.1: a
// process-local registry mapping session id to session context, a counting
// semaphore bounding concurrent sessions, and the FSM transition/cleanup
// machinery that drives session.* events and write-through persistence.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// ShellHandle is the subset of the remote-shell engine's connection a
// session owns exclusively (spec §3: "remote-shell handle... not persisted",
// §4.2: "no other session may call it"). Defined here rather than imported
// from pkg/shellengine to keep session free of a dependency on the engine's
// concrete connection type — shellengine's connection type satisfies this
// interface structurally. RunCommand/Credentials are the subset hunt
// orchestration needs to execute steps and snapshot credentials at hunt
// start; OpenPTY/WritePTY/ResizePTY/ClosePTY are the subset the interactive
// WebSocket RPC handlers (terminal_input/terminal_resize, spec §6) need —
// neither importer needs the concrete *shellengine.Connection type.
type ShellHandle interface {
	Close() error
	RunCommand(ctx context.Context, command string, timeout time.Duration, sudoPassword string) (stdout, stderr string, exitCode int, err error)
	Credentials() models.CredentialBundle
	OpenPTY(ctx context.Context, cols, rows int) error
	WritePTY(data []byte) error
	ResizePTY(cols, rows int) error
	ClosePTY(ctx context.Context, reason string) error
}

// Session is the runtime wrapper around a persisted models.Session. The
// three mutexes are spec §4.1's command/AI/mode locks; stateMu guards the
// mutable FSM fields (State, Mode, LockedBy) against concurrent readers.
type Session struct {
	stateMu sync.RWMutex
	record  models.Session

	commandMu sync.Mutex
	aiMu      sync.Mutex
	modeMu    sync.Mutex

	shell ShellHandle
}

// Snapshot returns a copy of the persisted fields, safe for concurrent reads
// (teacher's Clone() idiom, generalized to the new domain model).
func (s *Session) Snapshot() models.Session {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.record
}

// ID returns the session's id — immutable for the session's lifetime.
func (s *Session) ID() string { return s.record.ID }

// AnalystID returns the owning analyst's id — immutable for the session's
// lifetime, so no lock is needed. Backs Manager.AnalystID, which satisfies
// events.SessionLookup.
func (s *Session) AnalystID() string { return s.record.AnalystID }

func (s *Session) state() models.SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.record.State
}

func (s *Session) setState(state models.SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.record.State = state
	s.record.UpdatedAt = time.Now().UTC()
}

func (s *Session) setMode(mode models.SessionMode) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.record.Mode = mode
	s.record.UpdatedAt = time.Now().UTC()
}

func (s *Session) setLockedBy(analystID string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.record.LockedBy = analystID
	s.record.UpdatedAt = time.Now().UTC()
}

// CommandLock serialises AI-mode commands on this session (spec §4.1).
func (s *Session) CommandLock() *sync.Mutex { return &s.commandMu }

// AILock serialises streaming AI analyses on this session (spec §4.1).
func (s *Session) AILock() *sync.Mutex { return &s.aiMu }

// ModeLock protects transitions between ai and interactive mode (spec §4.1).
func (s *Session) ModeLock() *sync.Mutex { return &s.modeMu }

// SetShellHandle attaches the remote-shell connection this session owns.
func (s *Session) SetShellHandle(h ShellHandle) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.shell = h
}

func (s *Session) shellHandle() ShellHandle {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.shell
}

// Shell returns the session's remote-shell handle, or nil if none is
// attached yet. Hunt orchestration uses this to execute hunt-module steps
// and to read the connection's snapshotted credentials (spec §4.4).
func (s *Session) Shell() ShellHandle {
	return s.shellHandle()
}

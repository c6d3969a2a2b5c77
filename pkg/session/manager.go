package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentryhound/sentryhound/pkg/events"
	"github.com/sentryhound/sentryhound/pkg/models"
)

var (
	// ErrNotFound is returned when a session id has no registry entry.
	ErrNotFound = errors.New("session not found")
	// ErrCapacityExhausted is returned by Create when no semaphore permits
	// remain (spec §4.1: "fails with capacity_exhausted").
	ErrCapacityExhausted = errors.New("capacity_exhausted")
	// ErrInvalidTransition is returned when a requested FSM transition is not
	// allowed from the session's current state (spec §4.1, §10 invariant).
	ErrInvalidTransition = errors.New("invalid_transition")
)

// defaultPTYCols/Rows back a toggle_mode call that omits an explicit
// terminal size (spec §4.2: "initial size from the caller").
const (
	defaultPTYCols = 80
	defaultPTYRows = 24
)

// Repository is the subset of pkg/database.SessionRepository the manager
// writes through to (spec §4.1 step (c)). Nil is accepted — a manager
// running with no DB handle skips persistence, matching "when a DB handle
// is provided".
type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	UpdateState(ctx context.Context, id string, state models.SessionState) error
	UpdateMode(ctx context.Context, id string, mode models.SessionMode) error
	UpdateLockedBy(ctx context.Context, id, lockedBy string) error
	Get(ctx context.Context, id string) (*models.Session, error)
	ListByState(ctx context.Context, states ...models.SessionState) ([]*models.Session, error)
	Delete(ctx context.Context, id string) error
}

// EventPublisher is the subset of events.Bus the manager needs.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event)
}

// ReaperConfig controls the periodic terminal-session sweep (spec §4.1).
type ReaperConfig struct {
	Interval time.Duration // default 5 minutes
	MaxAge   time.Duration // default 1 hour
}

// Manager owns the process-local session registry and the counting
// semaphore sized by max_sessions (spec §4.1).
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	permits chan struct{}

	db     Repository
	bus    EventPublisher
	reaper ReaperConfig

	stopReaper context.CancelFunc
}

// NewManager constructs a Manager. db and bus may be nil for tests that
// exercise only the in-memory FSM.
func NewManager(maxSessions int, db Repository, bus EventPublisher, reaper ReaperConfig) *Manager {
	if maxSessions < 1 {
		maxSessions = 1
	}
	if reaper.Interval <= 0 {
		reaper.Interval = 5 * time.Minute
	}
	if reaper.MaxAge <= 0 {
		reaper.MaxAge = time.Hour
	}
	return &Manager{
		sessions: make(map[string]*Session),
		permits:  make(chan struct{}, maxSessions),
		db:       db,
		bus:      bus,
		reaper:   reaper,
	}
}

// Run starts the reaper loop. Blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.reaper.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reap(ctx)
		}
	}
}

// Create reserves a semaphore permit and registers a new session in
// INITIALIZING state (spec §4.1). Returns ErrCapacityExhausted if no permits
// remain.
func (m *Manager) Create(ctx context.Context, assetID, analystID string) (*Session, error) {
	select {
	case m.permits <- struct{}{}:
	default:
		return nil, ErrCapacityExhausted
	}

	now := time.Now().UTC()
	rec := models.Session{
		ID:        uuid.New().String(),
		AssetID:   assetID,
		AnalystID: analystID,
		State:     models.StateInitializing,
		Mode:      models.ModeAI,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sess := &Session{record: rec}

	if m.db != nil {
		if err := m.db.Create(ctx, &rec); err != nil {
			<-m.permits
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}

	m.mu.Lock()
	m.sessions[rec.ID] = sess
	m.mu.Unlock()

	m.publish(ctx, events.EventSessionCreated, rec.ID, map[string]string{"asset_id": assetID, "analyst_id": analystID})
	return sess, nil
}

// Get retrieves a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns a snapshot of every registered session.
func (m *Manager) List() []models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// AnalystID implements events.SessionLookup, letting pkg/events authorize
// room joins without importing this package.
func (m *Manager) AnalystID(sessionID string) (string, bool) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	return s.AnalystID(), true
}

// Transition applies the FSM transition from spec §4.1: validates against
// models.CanTransition, updates the in-memory state, writes through to the
// DB, and emits session.state_changed. Reaching a terminal state runs
// cleanup. reason is carried on the event for observability.
func (m *Manager) Transition(ctx context.Context, id string, to models.SessionState, reason string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}

	from := s.state()
	if !models.CanTransition(from, to) {
		m.publish(ctx, events.EventSystemError, id, map[string]any{
			"error_code": "invalid_transition",
			"severity":   "high",
			"from":       string(from),
			"to":         string(to),
		})
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	s.setState(to)

	if m.db != nil {
		if err := m.db.UpdateState(ctx, id, to); err != nil {
			slog.Warn("session state write-through failed", "session_id", id, "state", to, "error", err)
		}
	}

	m.publish(ctx, events.EventSessionStateChanged, id, map[string]string{
		"from": string(from), "to": string(to), "reason": reason,
	})

	if to.Terminal() {
		m.cleanup(ctx, id, s)
	}
	return nil
}

// SetMode switches a session between ai and interactive under its mode lock
// (spec §4.1: "an AI command in flight cannot be pre-empted by switching to
// PTY"). Switching into interactive opens a PTY on the session's shell
// handle at cols x rows (spec §4.2: "initial size from the caller"),
// defaulting to 80x24 when the caller supplies neither; switching back out
// of interactive closes it (spec §4.2: "closing the PTY reverts session
// mode to ai" runs in reverse here — the mode change itself drives the
// close). A session with no shell handle attached yet only updates the
// in-memory/persisted mode, matching a toggle_mode issued before the
// connection finishes dialing.
func (m *Manager) SetMode(ctx context.Context, id string, mode models.SessionMode, cols, rows int) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}

	s.ModeLock().Lock()
	defer s.ModeLock().Unlock()

	s.commandMu.Lock()
	s.aiMu.Lock()
	defer s.commandMu.Unlock()
	defer s.aiMu.Unlock()

	current := s.Snapshot().Mode
	if current == mode {
		return nil
	}

	if shell := s.shellHandle(); shell != nil {
		switch mode {
		case models.ModeInteractive:
			if cols <= 0 {
				cols = defaultPTYCols
			}
			if rows <= 0 {
				rows = defaultPTYRows
			}
			if err := shell.OpenPTY(ctx, cols, rows); err != nil {
				return fmt.Errorf("open pty: %w", err)
			}
		case models.ModeAI:
			if err := shell.ClosePTY(ctx, "mode switched to ai"); err != nil {
				slog.Warn("close pty on mode switch failed", "session_id", id, "error", err)
			}
		}
	}

	s.setMode(mode)
	if m.db != nil {
		if err := m.db.UpdateMode(ctx, id, mode); err != nil {
			slog.Warn("session mode write-through failed", "session_id", id, "error", err)
		}
	}
	return nil
}

// Lock transitions a session into LOCKED and records the locking analyst.
func (m *Manager) Lock(ctx context.Context, id, analystID string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := m.Transition(ctx, id, models.StateLocked, "locked by "+analystID); err != nil {
		return err
	}
	s.setLockedBy(analystID)
	if m.db != nil {
		if err := m.db.UpdateLockedBy(ctx, id, analystID); err != nil {
			slog.Warn("session lock write-through failed", "session_id", id, "error", err)
		}
	}
	return nil
}

// Unlock transitions a locked session back to RUNNING and clears locked_by.
func (m *Manager) Unlock(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := m.Transition(ctx, id, models.StateRunning, "unlocked"); err != nil {
		return err
	}
	s.setLockedBy("")
	if m.db != nil {
		if err := m.db.UpdateLockedBy(ctx, id, ""); err != nil {
			slog.Warn("session unlock write-through failed", "session_id", id, "error", err)
		}
	}
	return nil
}

// cleanup closes the remote-shell handle, releases the semaphore permit,
// emits session.terminated, and removes the session from the registry
// (spec §4.1). Idempotent: a session already removed is a no-op.
func (m *Manager) cleanup(ctx context.Context, id string, s *Session) {
	m.mu.Lock()
	if _, ok := m.sessions[id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	if h := s.shellHandle(); h != nil {
		if err := h.Close(); err != nil {
			slog.Warn("error closing remote-shell handle during cleanup", "session_id", id, "error", err)
		}
	}

	select {
	case <-m.permits:
	default:
	}

	m.publish(ctx, events.EventSessionTerminated, id, nil)
}

// Destroy forces a session to TERMINATED regardless of its current state
// (spec §4.1: "the universal destroy path"), then runs cleanup. With a DB
// handle, destroying a session that was already terminated and removed from
// the registry is a no-op; without one it returns ErrNotFound.
func (m *Manager) Destroy(ctx context.Context, id, reason string) error {
	s, err := m.Get(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) && m.db != nil {
			if rec, dbErr := m.db.Get(ctx, id); dbErr == nil && rec.State.Terminal() {
				return nil
			}
		}
		return err
	}
	if s.state().Terminal() {
		m.cleanup(ctx, id, s) // idempotent: handles a session stuck mid-cleanup
		return nil
	}
	from := s.state()
	s.setState(models.StateTerminated)
	if m.db != nil {
		if err := m.db.UpdateState(ctx, id, models.StateTerminated); err != nil {
			slog.Warn("session destroy write-through failed", "session_id", id, "error", err)
		}
	}
	m.publish(ctx, events.EventSessionStateChanged, id, map[string]string{
		"from": string(from), "to": string(models.StateTerminated), "reason": reason,
	})
	m.cleanup(ctx, id, s)
	return nil
}

func (m *Manager) publish(ctx context.Context, t events.EventType, sessionID string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(ctx, events.NewEvent(t, sessionID, payload))
}

// reap removes sessions whose state is DISCONNECTED or FAILED and whose age
// exceeds reaper.MaxAge (spec §4.1). Runs against the DB so it also catches
// terminal rows left behind by a prior process crash, not just the
// in-memory registry.
func (m *Manager) reap(ctx context.Context) {
	if m.db == nil {
		m.reapInMemory(ctx)
		return
	}

	stale, err := m.db.ListByState(ctx, models.StateDisconnected, models.StateFailed)
	if err != nil {
		slog.Warn("reaper: failed to list stale sessions", "error", err)
		return
	}

	cutoff := time.Now().UTC().Add(-m.reaper.MaxAge)
	for _, rec := range stale {
		if rec.UpdatedAt.After(cutoff) {
			continue
		}
		m.mu.Lock()
		s, ok := m.sessions[rec.ID]
		m.mu.Unlock()
		if ok {
			m.cleanup(ctx, rec.ID, s)
		}
		if err := m.db.Delete(ctx, rec.ID); err != nil {
			slog.Warn("reaper: failed to delete stale session", "session_id", rec.ID, "error", err)
		}
	}
}

func (m *Manager) reapInMemory(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.reaper.MaxAge)

	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		snap := s.Snapshot()
		if (snap.State == models.StateDisconnected || snap.State == models.StateFailed) && snap.UpdatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.mu.Lock()
		s, ok := m.sessions[id]
		m.mu.Unlock()
		if ok {
			m.cleanup(ctx, id, s)
		}
	}
}

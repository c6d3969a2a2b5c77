package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryhound/sentryhound/pkg/events"
	"github.com/sentryhound/sentryhound/pkg/models"
)

type fakeRepo struct {
	mu    sync.Mutex
	rows  map[string]*models.Session
	fails bool
}

func newFakeRepo() *fakeRepo { return &fakeRepo{rows: make(map[string]*models.Session)} }

func (r *fakeRepo) Create(_ context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.rows[s.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdateState(_ context.Context, id string, state models.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	row.State = state
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeRepo) UpdateMode(_ context.Context, id string, mode models.SessionMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	row.Mode = mode
	return nil
}

func (r *fakeRepo) UpdateLockedBy(_ context.Context, id, lockedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	row.LockedBy = lockedBy
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *fakeRepo) ListByState(_ context.Context, states ...models.SessionState) ([]*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[models.SessionState]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	var out []*models.Session
	for _, row := range r.rows {
		if want[row.State] {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *fakeBus) Publish(_ context.Context, ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *fakeBus) snapshot() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Event, len(b.events))
	copy(out, b.events)
	return out
}

func TestManager_CreateReservesPermitAndEmitsEvent(t *testing.T) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	mgr := NewManager(1, repo, bus, ReaperConfig{})
	ctx := context.Background()

	s, err := mgr.Create(ctx, "asset-1", "analyst-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateInitializing, s.Snapshot().State)

	_, err = mgr.Create(ctx, "asset-2", "analyst-1")
	assert.ErrorIs(t, err, ErrCapacityExhausted)

	evs := bus.snapshot()
	require.Len(t, evs, 1)
	assert.Equal(t, events.EventSessionCreated, evs[0].Type)
}

func TestManager_TransitionValidatesFSM(t *testing.T) {
	repo := newFakeRepo()
	mgr := NewManager(5, repo, nil, ReaperConfig{})
	ctx := context.Background()

	s, err := mgr.Create(ctx, "asset-1", "analyst-1")
	require.NoError(t, err)

	require.NoError(t, mgr.Transition(ctx, s.ID(), models.StateConnecting, "connecting"))
	assert.Equal(t, models.StateConnecting, s.Snapshot().State)

	err = mgr.Transition(ctx, s.ID(), models.StateRunning, "skip connected")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestManager_TerminalTransitionReleasesPermitAndEmitsTerminated(t *testing.T) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	mgr := NewManager(1, repo, bus, ReaperConfig{})
	ctx := context.Background()

	s, err := mgr.Create(ctx, "asset-1", "analyst-1")
	require.NoError(t, err)

	require.NoError(t, mgr.Transition(ctx, s.ID(), models.StateTerminated, "manual"))

	_, err = mgr.Get(s.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	// permit released: a new session can now be created despite maxSessions=1
	_, err = mgr.Create(ctx, "asset-2", "analyst-1")
	assert.NoError(t, err)

	found := false
	for _, ev := range bus.snapshot() {
		if ev.Type == events.EventSessionTerminated {
			found = true
		}
	}
	assert.True(t, found)
}

func TestManager_LockUnlock(t *testing.T) {
	repo := newFakeRepo()
	mgr := NewManager(5, repo, nil, ReaperConfig{})
	ctx := context.Background()

	s, err := mgr.Create(ctx, "asset-1", "analyst-1")
	require.NoError(t, err)
	require.NoError(t, mgr.Transition(ctx, s.ID(), models.StateConnecting, ""))
	require.NoError(t, mgr.Transition(ctx, s.ID(), models.StateConnected, ""))
	require.NoError(t, mgr.Transition(ctx, s.ID(), models.StateRunning, ""))

	require.NoError(t, mgr.Lock(ctx, s.ID(), "analyst-2"))
	assert.Equal(t, models.StateLocked, s.Snapshot().State)
	assert.Equal(t, "analyst-2", s.Snapshot().LockedBy)

	require.NoError(t, mgr.Unlock(ctx, s.ID()))
	assert.Equal(t, models.StateRunning, s.Snapshot().State)
	assert.Equal(t, "", s.Snapshot().LockedBy)
}

func TestManager_AnalystIDSatisfiesEventsSessionLookup(t *testing.T) {
	repo := newFakeRepo()
	mgr := NewManager(5, repo, nil, ReaperConfig{})
	ctx := context.Background()

	s, err := mgr.Create(ctx, "asset-1", "analyst-7")
	require.NoError(t, err)

	var lookup events.SessionLookup = mgr
	got, ok := lookup.AnalystID(s.ID())
	require.True(t, ok)
	assert.Equal(t, "analyst-7", got)

	_, ok = lookup.AnalystID("ghost")
	assert.False(t, ok)
}

func TestManager_DestroyIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	mgr := NewManager(5, repo, nil, ReaperConfig{})
	ctx := context.Background()

	s, err := mgr.Create(ctx, "asset-1", "analyst-1")
	require.NoError(t, err)

	require.NoError(t, mgr.Destroy(ctx, s.ID(), "manual"))
	assert.NoError(t, mgr.Destroy(ctx, s.ID(), "manual again"))
}

func TestManager_ReapRemovesStaleFailedSessions(t *testing.T) {
	repo := newFakeRepo()
	mgr := NewManager(5, repo, nil, ReaperConfig{Interval: time.Hour, MaxAge: time.Millisecond})
	ctx := context.Background()

	s, err := mgr.Create(ctx, "asset-1", "analyst-1")
	require.NoError(t, err)
	require.NoError(t, mgr.Transition(ctx, s.ID(), models.StateConnecting, ""))
	require.NoError(t, mgr.Transition(ctx, s.ID(), models.StateFailed, "unreachable"))

	time.Sleep(5 * time.Millisecond)
	mgr.reap(ctx)

	_, err = repo.Get(ctx, s.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryhound/sentryhound/pkg/models"
)

func TestAssetRepository_CreateGetUpdate(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewAssetRepository(client)

	a := &models.Asset{
		ID: "00000000-0000-0000-0000-00000000000a", Hostname: "db-01", IP: "10.0.0.5", OSType: models.OSLinux,
		Tags: []string{"prod", "db"}, SSHPort: 22, Username: "root",
		SudoMethod: models.SudoNopasswd,
	}
	require.NoError(t, repo.Create(ctx, a))

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "db-01", got.Hostname)
	assert.ElementsMatch(t, []string{"prod", "db"}, got.Tags)
	assert.Equal(t, models.SudoNopasswd, got.SudoMethod)

	got.Hostname = "db-01-renamed"
	require.NoError(t, repo.Update(ctx, got))

	reloaded, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "db-01-renamed", reloaded.Hostname)

	_, err = repo.Get(ctx, "00000000-0000-0000-0000-0000000000ff")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepository_CreateAndTransition(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	assets := NewAssetRepository(client)
	users := NewUserRepository(client)
	sessions := NewSessionRepository(client)

	asset := &models.Asset{ID: "00000000-0000-0000-0000-00000000000b", Hostname: "web-02", IP: "10.0.0.6", OSType: models.OSLinux}
	require.NoError(t, assets.Create(ctx, asset))

	analyst := &models.User{ID: "10000000-0000-0000-0000-000000000001", Username: "analyst1", PasswordHash: "x", Role: models.RoleAnalyst, Active: true}
	require.NoError(t, users.Create(ctx, analyst))

	s := &models.Session{ID: "20000000-0000-0000-0000-000000000001", AssetID: asset.ID, AnalystID: analyst.ID, State: models.StateInitializing, Mode: models.ModeAI}
	require.NoError(t, sessions.Create(ctx, s))

	require.NoError(t, sessions.UpdateState(ctx, s.ID, models.StateConnecting))
	got, err := sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateConnecting, got.State)

	require.NoError(t, sessions.UpdateMode(ctx, s.ID, models.ModeInteractive))
	got, err = sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ModeInteractive, got.Mode)

	byState, err := sessions.ListByState(ctx, models.StateConnecting)
	require.NoError(t, err)
	assert.Len(t, byState, 1)
	assert.Equal(t, s.ID, byState[0].ID)
}

func TestFindingRepository_UpsertDeduplicates(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	assets := NewAssetRepository(client)
	findings := NewFindingRepository(client)

	asset := &models.Asset{ID: "00000000-0000-0000-0000-00000000000c", Hostname: "web-03", IP: "10.0.0.7", OSType: models.OSLinux}
	require.NoError(t, assets.Create(ctx, asset))

	hash := models.ContentHash(asset.ID, "Suspicious cron entry", []string{"T1053"})
	f := &models.Finding{
		ID: "30000000-0000-0000-0000-00000000000a", AssetID: asset.ID, Title: "Suspicious cron entry",
		Severity: models.SeverityHigh, Confidence: 0.4, ContentHash: hash,
		TechniqueIDs: []string{"T1053"},
	}
	saved, err := findings.Upsert(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.SightingCount)

	again := &models.Finding{
		ID: "30000000-0000-0000-0000-00000000000b", AssetID: asset.ID, Title: "Suspicious cron entry",
		Severity: models.SeverityHigh, Confidence: 0.9, ContentHash: hash,
		TechniqueIDs: []string{"T1053"},
	}
	merged, err := findings.Upsert(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, 2, merged.SightingCount)
	assert.Equal(t, 0.9, merged.Confidence)
	assert.Equal(t, f.ID, merged.ID, "original row identity survives a sighting merge")
}

func TestTimelineRepository_RecordAndList(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	assets := NewAssetRepository(client)
	timeline := NewTimelineRepository(client)

	asset := &models.Asset{ID: "00000000-0000-0000-0000-00000000000d", Hostname: "web-04", IP: "10.0.0.8", OSType: models.OSLinux}
	require.NoError(t, assets.Create(ctx, asset))

	e := &models.TimelineEvent{ID: "40000000-0000-0000-0000-000000000001", AssetID: asset.ID, Type: "ssh.connected", Payload: []byte(`{"fingerprint":"abc"}`)}
	require.NoError(t, timeline.Record(ctx, e))

	events, err := timeline.ListByAsset(ctx, asset.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ssh.connected", events[0].Type)
}

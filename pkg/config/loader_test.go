package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PROCESS_SECRET", "APP_ENV", "MAX_SESSIONS", "EVENT_QUEUE_MAX",
		"HUNT_MODULE_DIR", "CORS_ORIGINS", "VAULT_ENABLED", "VAULT_ADDR",
		"VAULT_ROLE_ID", "VAULT_SECRET_ID", "AI_PROVIDER", "AI_MODEL",
		"AI_BASE_URL", "AI_API_KEY", "DB_PASSWORD",
	} {
		t.Setenv(k, "")
	}
}

func TestInitialize_DefaultsWithoutYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.MaxSessions)
	assert.Equal(t, 1000, cfg.EventQueueMax)
	assert.False(t, cfg.Vault.Enabled)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
}

func TestInitialize_ProductionRequiresLongSecret(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("APP_ENV", "production")
	t.Setenv("PROCESS_SECRET", "short")

	_, err := Initialize(context.Background(), dir)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestInitialize_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yamlContent := "hunt_module_dir: /from/yaml\nai:\n  provider: ollama\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentryhound.yaml"), []byte(yamlContent), 0o644))

	t.Setenv("HUNT_MODULE_DIR", "/from/env")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.HuntModuleDir)
	assert.Equal(t, "ollama", cfg.AI.Provider) // YAML value survives when no env override exists
}

func TestInitialize_VaultEnabledRequiresAddr(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("VAULT_ENABLED", "true")

	_, err := Initialize(context.Background(), dir)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

package hunt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryhound/sentryhound/pkg/models"
)

const sampleModule = `---
id: linux-persistence
name: Linux Persistence Check
description: Looks for common persistence mechanisms
os_types: [linux]
tags: [persistence, linux]
severity_hint: high
---

## Steps

### crontabs
**description**: Dump all user crontabs
**command**: ` + "`crontab -l 2>/dev/null`" + `
**timeout**: 15
**requires_sudo**: false

### systemd_units
**description**: List enabled systemd units
**command**: ` + "`systemctl list-unit-files --state=enabled`" + `
**timeout**: 30
**requires_sudo**: true
`

func TestParseModule_ParsesFrontMatterAndSteps(t *testing.T) {
	module := ParseModule(sampleModule, "fallback")

	assert.Equal(t, "linux-persistence", module.ID)
	assert.Equal(t, "Linux Persistence Check", module.Name)
	assert.Equal(t, models.SeverityHigh, module.SeverityHint)
	assert.Equal(t, []string{"linux"}, module.OSTypes)
	require.Len(t, module.Steps, 2)

	assert.Equal(t, "crontabs", module.Steps[0].ID)
	assert.Equal(t, "crontab -l 2>/dev/null", module.Steps[0].Command)
	assert.Equal(t, 15, module.Steps[0].TimeoutSeconds)
	assert.False(t, module.Steps[0].RequiresSudo)

	assert.Equal(t, "systemd_units", module.Steps[1].ID)
	assert.Equal(t, 30, module.Steps[1].TimeoutSeconds)
	assert.True(t, module.Steps[1].RequiresSudo)
}

func TestParseModule_FallsBackToFileStemWhenFrontMatterOmitsIdentity(t *testing.T) {
	module := ParseModule("no front matter here\n### step1\n**command**: `id`\n", "my-module")
	assert.Equal(t, "my-module", module.ID)
	assert.Equal(t, "my-module", module.Name)
	require.Len(t, module.Steps, 1)
	assert.Equal(t, "id", module.Steps[0].Command)
}

func TestParseModule_StepWithNoCommandIsSkipped(t *testing.T) {
	module := ParseModule("### orphan\n**description**: has no command\n", "m")
	assert.Empty(t, module.Steps)
}

func TestParseModule_DefaultsTimeoutAndDescription(t *testing.T) {
	module := ParseModule("### step1\n**command**: `whoami`\n", "m")
	require.Len(t, module.Steps, 1)
	assert.Equal(t, 30, module.Steps[0].TimeoutSeconds)
	assert.Equal(t, "step1", module.Steps[0].Description)
}

func TestSerializeModule_RoundTripsFieldForField(t *testing.T) {
	original := models.HuntModule{
		ID:           "test-module",
		Name:         "Test Module",
		Description:  "a test module",
		OSTypes:      []string{"linux", "macos"},
		Tags:         []string{"test"},
		SeverityHint: models.SeverityMedium,
		Steps: []models.HuntStep{
			{ID: "step1", Description: "first step", Command: "echo hi", TimeoutSeconds: 20, RequiresSudo: false},
			{ID: "step2", Description: "second step", Command: "id", TimeoutSeconds: 45, RequiresSudo: true},
		},
	}

	serialized := SerializeModule(original)
	reparsed := ParseModule(serialized, "fallback")

	assert.Equal(t, original, reparsed)
}

func TestIsSafeShellConstruct_RecognisesAllowlistedPatterns(t *testing.T) {
	assert.True(t, isSafeShellConstruct("crontab -l 2>/dev/null"))
	assert.True(t, isSafeShellConstruct("ps aux | grep ssh"))
	assert.False(t, isSafeShellConstruct("rm -rf $(pwd)"))
}

func TestRegistry_LoadsModulesFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "linux-persistence.md"), []byte(sampleModule), 0o644))

	registry := NewRegistry(dir)

	module, ok := registry.Get("linux-persistence")
	require.True(t, ok)
	assert.Equal(t, "Linux Persistence Check", module.Name)

	list := registry.ListModules()
	require.Len(t, list, 1)
}

func TestRegistry_HotReloadsOnFileMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.md")
	require.NoError(t, os.WriteFile(path, []byte("### step1\n**command**: `echo one`\n"), 0o644))

	registry := NewRegistry(dir)
	module, ok := registry.Get("m")
	require.True(t, ok)
	assert.Equal(t, "echo one", module.Steps[0].Command)

	// Force a detectable mtime change on a fast filesystem.
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.WriteFile(path, []byte("### step1\n**command**: `echo two`\n"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	module, ok = registry.Get("m")
	require.True(t, ok)
	assert.Equal(t, "echo two", module.Steps[0].Command)
}

func TestRegistry_MissingDirectoryYieldsEmptyRegistryWithoutPanic(t *testing.T) {
	registry := NewRegistry(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Empty(t, registry.ListModules())
	_, ok := registry.Get("anything")
	assert.False(t, ok)
}

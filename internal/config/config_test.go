package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	return m
}

func TestNewManagerCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "first run writes the default config file")

	cfg := m.Get()
	assert.Equal(t, 100, cfg.MinWindowWidth)
	assert.Equal(t, 50, cfg.HistoryCap)
	assert.Equal(t, "Mod1", cfg.TriggerKey)
	assert.Equal(t, "Tab", cfg.CycleKey)
	assert.Equal(t, 8571, cfg.ServerPort)
}

func TestNewManagerLoadsExistingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "history_cap: 10\nprefer_icons: true\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, 10, cfg.HistoryCap)
	assert.True(t, cfg.PreferIcons)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 500, cfg.RefreshIntervalMs)
}

func TestNewManagerRejectsMalformedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0644))

	_, err := NewManager(path)
	assert.Error(t, err)
}

func TestGetReturnsCopy(t *testing.T) {
	m := testManager(t)

	cfg := m.Get()
	cfg.ServerPort = 1

	assert.Equal(t, 8571, m.Get().ServerPort)
}

func TestUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	cfg.MaxWindows = 12
	require.NoError(t, m.Update(cfg))

	reloaded, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, 12, reloaded.Get().MaxWindows)
}

func TestRefreshInterval(t *testing.T) {
	cfg := Defaults()
	cfg.RefreshIntervalMs = 250
	assert.Equal(t, 250*time.Millisecond, cfg.RefreshInterval())
}

func TestApplyOverrides(t *testing.T) {
	m := testManager(t)

	m.ApplyOverrides(map[string]string{
		"history_cap":     "20",
		"prefer_icons":    "true",
		"max_windows":     "8",
		"match_tolerance": "10",
	})

	cfg := m.Get()
	assert.Equal(t, 20, cfg.HistoryCap)
	assert.True(t, cfg.PreferIcons)
	assert.Equal(t, 8, cfg.MaxWindows)
	assert.Equal(t, 10, cfg.MatchTolerance)
}

func TestApplyOverridesSkipsBadValues(t *testing.T) {
	m := testManager(t)

	m.ApplyOverrides(map[string]string{
		"history_cap":  "not-a-number",
		"max_windows":  "-3",
		"prefer_icons": "maybe",
		"unknown_key":  "whatever",
	})

	cfg := m.Get()
	assert.Equal(t, 50, cfg.HistoryCap)
	assert.Equal(t, 0, cfg.MaxWindows)
	assert.False(t, cfg.PreferIcons)
}

func TestOverridesDoNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	m.SetPort(9999)
	m.SetLogLevel("trace")
	assert.Equal(t, 9999, m.Get().ServerPort)
	assert.Equal(t, "trace", m.Get().LogLevel)

	reloaded, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, 8571, reloaded.Get().ServerPort)
	assert.Equal(t, "info", reloaded.Get().LogLevel)
}

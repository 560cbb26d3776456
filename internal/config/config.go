package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/quicktab/quicktab/internal/logger"
	"gopkg.in/yaml.v3"
)

// Config holds the user-tunable switcher parameters.
type Config struct {
	// Windows smaller than this are treated as chrome and skipped.
	MinWindowWidth  int `json:"min_window_width" yaml:"min_window_width"`
	MinWindowHeight int `json:"min_window_height" yaml:"min_window_height"`

	// HistoryCap bounds the recency history.
	HistoryCap int `json:"history_cap" yaml:"history_cap"`

	// RefreshIntervalMs is the preview cache refresh period.
	RefreshIntervalMs int `json:"refresh_interval_ms" yaml:"refresh_interval_ms"`

	// MaxWindows caps how many windows a session shows. 0 means no cap.
	MaxWindows int `json:"max_windows" yaml:"max_windows"`

	// PreferIcons substitutes application icons for live previews.
	PreferIcons bool `json:"prefer_icons" yaml:"prefer_icons"`

	// MatchTolerance is the per-axis slack, in pixels, when matching a
	// stale record against a live window by geometry.
	MatchTolerance int `json:"match_tolerance" yaml:"match_tolerance"`

	// TriggerKey and CycleKey name the chord that opens the switcher,
	// in X keysym terms.
	TriggerKey string `json:"trigger_key" yaml:"trigger_key"`
	CycleKey   string `json:"cycle_key" yaml:"cycle_key"`

	ServerPort int    `json:"server_port" yaml:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
}

// RefreshInterval returns the preview refresh period as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		MinWindowWidth:    100,
		MinWindowHeight:   100,
		HistoryCap:        50,
		RefreshIntervalMs: 500,
		MaxWindows:        0,
		PreferIcons:       false,
		MatchTolerance:    5,
		TriggerKey:        "Mod1",
		CycleKey:          "Tab",
		ServerPort:        8571,
		LogLevel:          "info",
	}
}

// Manager handles loading, mutating and saving the configuration.
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager loads the config at configFile, or the default location when
// empty, creating it with defaults on first run.
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "quicktab")
	path := filepath.Join(configDir, "config.yaml")
	if configFile != "" {
		path = configFile
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{configPath: path}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// GetConfigPath returns the config file location.
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Update replaces the configuration and saves it.
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	c := *cfg
	m.config = &c
	m.mu.Unlock()
	return m.Save()
}

// SetPort overrides the server port without persisting.
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.ServerPort = port
}

// SetLogLevel overrides the log level without persisting.
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}

// ApplyOverrides layers stored key/value settings over the file config.
// Unknown keys and malformed values are logged and skipped.
func (m *Manager) ApplyOverrides(settings map[string]string) {
	log := logger.WithComponent("config")

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, value := range settings {
		switch key {
		case "min_window_width":
			applyInt(&m.config.MinWindowWidth, key, value)
		case "min_window_height":
			applyInt(&m.config.MinWindowHeight, key, value)
		case "history_cap":
			applyInt(&m.config.HistoryCap, key, value)
		case "refresh_interval_ms":
			applyInt(&m.config.RefreshIntervalMs, key, value)
		case "max_windows":
			applyInt(&m.config.MaxWindows, key, value)
		case "match_tolerance":
			applyInt(&m.config.MatchTolerance, key, value)
		case "prefer_icons":
			if b, err := strconv.ParseBool(value); err == nil {
				m.config.PreferIcons = b
			} else {
				log.Warn().Str("key", key).Str("value", value).Msg("Ignoring malformed setting")
			}
		default:
			log.Warn().Str("key", key).Msg("Ignoring unknown setting")
		}
	}
}

func applyInt(dst *int, key, value string) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		logger.WithComponent("config").Warn().
			Str("key", key).
			Str("value", value).
			Msg("Ignoring malformed setting")
		return
	}
	*dst = n
}

// Save writes the configuration to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

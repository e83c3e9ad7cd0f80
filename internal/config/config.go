// Package config provides application settings management for turbofire.
// Turbo bindings are session state and are never stored here.
package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"turbofire/internal/input"
	"turbofire/internal/turbo"
)

const (
	// DefaultAPIPort is the loopback port of the control API.
	DefaultAPIPort = 18181

	// MaxKeyHoldMs bounds the pause between synthetic key down and up.
	MaxKeyHoldMs = 50

	debounceDelay = 100 * time.Millisecond
)

// Config represents the application configuration
type Config struct {
	// General contains general application settings
	General GeneralConfig `json:"general" yaml:"general" toml:"general"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// DefaultIntervalMs is the repeat interval given to new bindings (1-150)
	DefaultIntervalMs int `json:"default_interval_ms" yaml:"default_interval_ms" toml:"default_interval_ms"`

	// KeyHoldMs is the pause between synthetic key down and key up (0-50)
	KeyHoldMs int `json:"key_hold_ms" yaml:"key_hold_ms" toml:"key_hold_ms"`

	// StartupTrigger designates a trigger at launch (e.g. "F", "mouse_MButton")
	StartupTrigger string `json:"startup_trigger,omitempty" yaml:"startup_trigger,omitempty" toml:"startup_trigger,omitempty"`

	// APIEnabled enables the local control API
	APIEnabled bool `json:"api_enabled" yaml:"api_enabled" toml:"api_enabled"`

	// APIPort is the loopback port for the API server
	APIPort int `json:"api_port" yaml:"api_port" toml:"api_port"`

	// APIToken is an optional bearer token for API requests
	APIToken string `json:"api_token,omitempty" yaml:"api_token,omitempty" toml:"api_token,omitempty"`

	TrayEnabled bool `json:"tray_enabled" yaml:"tray_enabled" toml:"tray_enabled"`

	// StartOnBoot determines if app starts on login
	StartOnBoot bool `json:"start_on_boot" yaml:"start_on_boot" toml:"start_on_boot"`

	// VerboseLogging enables per-tick logging
	VerboseLogging bool `json:"verbose_logging" yaml:"verbose_logging" toml:"verbose_logging"`

	// DevicePath restricts Linux evdev capture to one device
	DevicePath string `json:"device_path,omitempty" yaml:"device_path,omitempty" toml:"device_path,omitempty"`
}

// KeyHold returns KeyHoldMs as a duration.
func (g GeneralConfig) KeyHold() time.Duration {
	return time.Duration(g.KeyHoldMs) * time.Millisecond
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DefaultIntervalMs: turbo.DefaultIntervalMs,
			KeyHoldMs:         int(turbo.DefaultKeyHold / time.Millisecond),
			APIEnabled:        true,
			APIPort:           DefaultAPIPort,
			TrayEnabled:       true,
		},
	}
}

// Validate clamps numeric settings into range and rejects values that
// cannot be used.
func (c *Config) Validate() error {
	g := &c.General
	g.DefaultIntervalMs = turbo.ClampInterval(g.DefaultIntervalMs)
	if g.KeyHoldMs < 0 {
		g.KeyHoldMs = 0
	}
	if g.KeyHoldMs > MaxKeyHoldMs {
		g.KeyHoldMs = MaxKeyHoldMs
	}
	if g.APIPort == 0 {
		g.APIPort = DefaultAPIPort
	}
	if g.APIPort < 1 || g.APIPort > 65535 {
		return fmt.Errorf("api_port %d out of range", g.APIPort)
	}
	g.StartupTrigger = strings.TrimSpace(g.StartupTrigger)
	if g.StartupTrigger != "" {
		if _, err := input.Parse(g.StartupTrigger); err != nil {
			return fmt.Errorf("startup_trigger: %w", err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies TURBOFIRE_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TURBOFIRE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.General.APIPort = port
		} else {
			log.Printf("Config: Ignoring TURBOFIRE_API_PORT=%q: %v", v, err)
		}
	}
	if v := os.Getenv("TURBOFIRE_TRIGGER"); v != "" {
		c.General.StartupTrigger = v
	}
	if v := os.Getenv("TURBOFIRE_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.General.VerboseLogging = b
		} else {
			log.Printf("Config: Ignoring TURBOFIRE_VERBOSE=%q: %v", v, err)
		}
	}
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  []func(*Config)
}

// NewManager creates a configuration manager for path. An empty path selects
// the per-user default location.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		var err error
		path, err = getConfigPath()
		if err != nil {
			return nil, err
		}
	}

	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}, nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "turbofire")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "turbofire")
	default:
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(dir, "turbofire")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Path returns the configuration file location.
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads the configuration from disk, applies environment overrides and
// validates the result. A missing file leaves the defaults in place.
func (m *Manager) Load() error {
	cfg, err := loadConfigFromFile(m.configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate %s: %w", m.configPath, err)
	}

	m.Set(cfg)
	return nil
}

// loadConfigFromFile reads and parses a config file based on its extension.
func loadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// No config file, use defaults
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	}
	return cfg, nil
}

// Save writes the configuration to disk in the format of its extension
func (m *Manager) Save() error {
	m.mu.Lock()
	cfg := *m.config
	m.mu.Unlock()

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(m.configPath)) {
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	log.Printf("Config: Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := *m.config
	return &cfg
}

// Set updates the configuration and notifies callbacks
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	m.config = config
	callbacks := append([]func(*Config){}, m.onChanged...)
	m.mu.Unlock()

	for _, fn := range callbacks {
		cfg := *config
		fn(&cfg)
	}
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = append(m.onChanged, fn)
}

// Watch reloads the configuration whenever the file changes, until ctx is
// done. Invalid edits are logged and the previous configuration is kept.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory so editors that replace the file are noticed
	if err := watcher.Add(filepath.Dir(m.configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(m.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				if err := m.Load(); err != nil {
					log.Printf("Config: Reload failed, keeping previous settings: %v", err)
					return
				}
				log.Printf("Config: Reloaded %s", m.configPath)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Config: Watch error: %v", err)
		}
	}
}

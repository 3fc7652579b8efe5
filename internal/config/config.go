package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/paxctl/internal/ble/protocol"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig  `yaml:"device"`
	BLE      BLEConfig     `yaml:"ble"`
	Session  SessionConfig `yaml:"session"`
	LogLevel string        `yaml:"log_level"`
}

// DeviceConfig selects the device to talk to.
type DeviceConfig struct {
	Address    string `yaml:"address"`     // empty means scan and pick the first match
	NameFilter string `yaml:"name_filter"` // substring of the advertised local name
}

// BLEConfig holds scan and connect settings.
type BLEConfig struct {
	ScanTimeout     time.Duration `yaml:"scan_timeout"`
	ConnectAttempts int           `yaml:"connect_attempts"`
	ReconnectMax    int           `yaml:"reconnect_max"` // max backoff in seconds
}

// SessionConfig holds per-session timeouts and subscriptions.
type SessionConfig struct {
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	// Subscribe names attributes requested on top of the device defaults,
	// e.g. ["DisplayName", "Brightness"].
	Subscribe []string `yaml:"subscribe,omitempty"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "paxctl")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			NameFilter: "pax",
		},
		BLE: BLEConfig{
			ScanTimeout:     10 * time.Second,
			ConnectAttempts: 3,
			ReconnectMax:    30,
		},
		Session: SessionConfig{
			DiscoveryTimeout: 10 * time.Second,
			ReadTimeout:      5 * time.Second,
			WriteTimeout:     5 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.BLE.ScanTimeout <= 0 {
		return fmt.Errorf("ble.scan_timeout must be > 0")
	}
	if c.BLE.ConnectAttempts < 1 {
		return fmt.Errorf("ble.connect_attempts must be >= 1, got %d", c.BLE.ConnectAttempts)
	}
	if c.BLE.ReconnectMax < 1 {
		return fmt.Errorf("ble.reconnect_max must be >= 1, got %d", c.BLE.ReconnectMax)
	}

	for name, d := range map[string]time.Duration{
		"session.discovery_timeout": c.Session.DiscoveryTimeout,
		"session.read_timeout":      c.Session.ReadTimeout,
		"session.write_timeout":     c.Session.WriteTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}

	if _, err := c.SubscribeAttributes(); err != nil {
		return err
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// SubscribeAttributes resolves session.subscribe into an attribute set.
func (c *Config) SubscribeAttributes() (protocol.AttributeSet, error) {
	set := protocol.NewAttributeSet()
	for _, name := range c.Session.Subscribe {
		t, err := protocol.ParseMessageType(name)
		if err != nil {
			return nil, fmt.Errorf("session.subscribe: %w", err)
		}
		if t > protocol.MaxBitmaskType {
			return nil, fmt.Errorf("session.subscribe: %w", &protocol.UnsupportedAttributeError{Type: t})
		}
		set.Add(t)
	}
	return set, nil
}

// ParseLogLevel maps a config log level to a slog.Level. Unknown values
// fall back to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# paxctl configuration
# Durations use Go syntax (10s, 500ms). Leave device.address empty to scan.
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// ("", nil) without touching anything when the file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/paxctl/internal/ble/protocol"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return cfgPath
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Device.Address != "" {
		t.Errorf("Device.Address = %q, want empty", cfg.Device.Address)
	}
	if cfg.Device.NameFilter != "pax" {
		t.Errorf("Device.NameFilter = %q, want %q", cfg.Device.NameFilter, "pax")
	}
	if cfg.BLE.ScanTimeout != 10*time.Second {
		t.Errorf("BLE.ScanTimeout = %v, want 10s", cfg.BLE.ScanTimeout)
	}
	if cfg.BLE.ConnectAttempts != 3 {
		t.Errorf("BLE.ConnectAttempts = %d, want 3", cfg.BLE.ConnectAttempts)
	}
	if cfg.BLE.ReconnectMax != 30 {
		t.Errorf("BLE.ReconnectMax = %d, want 30", cfg.BLE.ReconnectMax)
	}
	if cfg.Session.WriteTimeout != 5*time.Second {
		t.Errorf("Session.WriteTimeout = %v, want 5s", cfg.Session.WriteTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	cfgPath := writeConfig(t, `
device:
  address: "AA:BB:CC:DD:EE:FF"
ble:
  scan_timeout: 4s
  connect_attempts: 5
  reconnect_max: 10
session:
  discovery_timeout: 2s
  read_timeout: 1500ms
  write_timeout: 0s
  subscribe: [DisplayName, brightness]
log_level: debug
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Device.Address = %q, want %q", cfg.Device.Address, "AA:BB:CC:DD:EE:FF")
	}
	if cfg.Device.NameFilter != "pax" {
		t.Errorf("Device.NameFilter = %q, want default %q", cfg.Device.NameFilter, "pax")
	}
	if cfg.BLE.ScanTimeout != 4*time.Second {
		t.Errorf("BLE.ScanTimeout = %v, want 4s", cfg.BLE.ScanTimeout)
	}
	if cfg.BLE.ConnectAttempts != 5 {
		t.Errorf("BLE.ConnectAttempts = %d, want 5", cfg.BLE.ConnectAttempts)
	}
	if cfg.BLE.ReconnectMax != 10 {
		t.Errorf("BLE.ReconnectMax = %d, want 10", cfg.BLE.ReconnectMax)
	}
	if cfg.Session.DiscoveryTimeout != 2*time.Second {
		t.Errorf("Session.DiscoveryTimeout = %v, want 2s", cfg.Session.DiscoveryTimeout)
	}
	if cfg.Session.ReadTimeout != 1500*time.Millisecond {
		t.Errorf("Session.ReadTimeout = %v, want 1.5s", cfg.Session.ReadTimeout)
	}
	if cfg.Session.WriteTimeout != 0 {
		t.Errorf("Session.WriteTimeout = %v, want 0", cfg.Session.WriteTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}

	attrs, err := cfg.SubscribeAttributes()
	if err != nil {
		t.Fatalf("SubscribeAttributes() error = %v", err)
	}
	want := protocol.NewAttributeSet(protocol.DisplayName, protocol.Brightness)
	if !attrs.Equal(want) {
		t.Errorf("SubscribeAttributes() = %s, want %s", attrs, want)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	if err := os.WriteFile(filepath.Join(tmpHome, "pax.yaml"), []byte("log_level: warn\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load("~/pax.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "warn")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "ble: [not, a, map"))
	if err == nil {
		t.Error("Load() should return error for malformed YAML")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("LoadOrDefault() = %+v, want defaults", cfg)
	}

	_, err = LoadOrDefault(writeConfig(t, "ble: [not, a, map"))
	if err == nil || errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadOrDefault() error = %v, want parse error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero timeouts disable session limits",
			modify:  func(c *Config) { c.Session = SessionConfig{} },
			wantErr: false,
		},
		{
			name:    "zero scan timeout",
			modify:  func(c *Config) { c.BLE.ScanTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero connect attempts",
			modify:  func(c *Config) { c.BLE.ConnectAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "zero reconnect max",
			modify:  func(c *Config) { c.BLE.ReconnectMax = 0 },
			wantErr: true,
		},
		{
			name:    "negative read timeout",
			modify:  func(c *Config) { c.Session.ReadTimeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "unknown subscribe attribute",
			modify:  func(c *Config) { c.Session.Subscribe = []string{"Battery", "Bogus"} },
			wantErr: true,
		},
		{
			name:    "subscribe attribute without a bitmask bit",
			modify:  func(c *Config) { c.Session.Subscribe = []string{"StatusUpdate"} },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeAttributesRejectsHighTag(t *testing.T) {
	cfg := Default()
	cfg.Session.Subscribe = []string{"StatusUpdate"}
	_, err := cfg.SubscribeAttributes()
	if !errors.Is(err, protocol.ErrUnsupportedAttribute) {
		t.Errorf("SubscribeAttributes() error = %v, want ErrUnsupportedAttribute", err)
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "paxctl", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# paxctl") {
		t.Error("written config should start with header comment")
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of written config error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("written config = %+v, want defaults", cfg)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "paxctl")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("log_level: debug\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

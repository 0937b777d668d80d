package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "text")
	}
	if cfg.BLE.ScanTimeout != 5*time.Second {
		t.Errorf("BLE.ScanTimeout = %v, want 5s", cfg.BLE.ScanTimeout)
	}
	if cfg.BLE.ConnectAttempts != 3 {
		t.Errorf("BLE.ConnectAttempts = %d, want 3", cfg.BLE.ConnectAttempts)
	}
	if cfg.BLE.ReconnectMax != 30 {
		t.Errorf("BLE.ReconnectMax = %d, want 30", cfg.BLE.ReconnectMax)
	}
	if cfg.Board.SettleDelay != 300*time.Millisecond {
		t.Errorf("Board.SettleDelay = %v, want 300ms", cfg.Board.SettleDelay)
	}
	if cfg.Board.MoveLog != "" {
		t.Errorf("Board.MoveLog = %q, want empty", cfg.Board.MoveLog)
	}
	if cfg.MQTT.Enabled() {
		t.Error("MQTT publishing should be off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
log_level: debug
log_format: json
ble:
  scan_timeout: 10s
  name_prefix: "Chessboard"
  connect_attempts: 5
  reconnect_max: 15
  led_rate: 0
  led_burst: 2
board:
  settle_delay: 500ms
  action_queue: 64
  command_queue: 4
  move_log: /tmp/moves.log
mqtt:
  broker: broker.local
  port: 8883
  topic: chess/moves
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "json")
	}
	if cfg.BLE.ScanTimeout != 10*time.Second {
		t.Errorf("BLE.ScanTimeout = %v, want 10s", cfg.BLE.ScanTimeout)
	}
	if cfg.BLE.NamePrefix != "Chessboard" {
		t.Errorf("BLE.NamePrefix = %q, want %q", cfg.BLE.NamePrefix, "Chessboard")
	}
	if cfg.BLE.ConnectAttempts != 5 {
		t.Errorf("BLE.ConnectAttempts = %d, want 5", cfg.BLE.ConnectAttempts)
	}
	if cfg.BLE.ReconnectMax != 15 {
		t.Errorf("BLE.ReconnectMax = %d, want 15", cfg.BLE.ReconnectMax)
	}
	if cfg.BLE.LEDRate != 0 {
		t.Errorf("BLE.LEDRate = %v, want 0", cfg.BLE.LEDRate)
	}
	if cfg.BLE.LEDBurst != 2 {
		t.Errorf("BLE.LEDBurst = %d, want 2", cfg.BLE.LEDBurst)
	}
	if cfg.Board.SettleDelay != 500*time.Millisecond {
		t.Errorf("Board.SettleDelay = %v, want 500ms", cfg.Board.SettleDelay)
	}
	if cfg.Board.ActionQueue != 64 {
		t.Errorf("Board.ActionQueue = %d, want 64", cfg.Board.ActionQueue)
	}
	if cfg.Board.CommandQueue != 4 {
		t.Errorf("Board.CommandQueue = %d, want 4", cfg.Board.CommandQueue)
	}
	if cfg.Board.MoveLog != "/tmp/moves.log" {
		t.Errorf("Board.MoveLog = %q, want %q", cfg.Board.MoveLog, "/tmp/moves.log")
	}
	if !cfg.MQTT.Enabled() || cfg.MQTT.Broker != "broker.local" || cfg.MQTT.Port != 8883 {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.MQTT.Topic != "chess/moves" || cfg.MQTT.ClientID != "ecbridge" {
		t.Errorf("MQTT topic/client = %q/%q", cfg.MQTT.Topic, cfg.MQTT.ClientID)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	yamlContent := `
ble:
  name_prefix: "DGT"
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BLE.NamePrefix != "DGT" {
		t.Errorf("BLE.NamePrefix = %q, want %q", cfg.BLE.NamePrefix, "DGT")
	}
	if cfg.BLE.ScanTimeout != 5*time.Second {
		t.Errorf("BLE.ScanTimeout = %v, want default 5s", cfg.BLE.ScanTimeout)
	}
	if cfg.Board.SettleDelay != 300*time.Millisecond {
		t.Errorf("Board.SettleDelay = %v, want default 300ms", cfg.Board.SettleDelay)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
board:
  move_log: ~/games/moves.log
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "games/moves.log")
	if cfg.Board.MoveLog != expected {
		t.Errorf("Board.MoveLog = %q, want %q", cfg.Board.MoveLog, expected)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("ble: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should fail on malformed YAML")
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
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: true,
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
			name:    "negative led rate",
			modify:  func(c *Config) { c.BLE.LEDRate = -1 },
			wantErr: true,
		},
		{
			name:    "unlimited led rate",
			modify:  func(c *Config) { c.BLE.LEDRate = 0 },
			wantErr: false,
		},
		{
			name:    "zero led burst",
			modify:  func(c *Config) { c.BLE.LEDBurst = 0 },
			wantErr: true,
		},
		{
			name:    "no settle delay",
			modify:  func(c *Config) { c.Board.SettleDelay = 0 },
			wantErr: false,
		},
		{
			name:    "negative settle delay",
			modify:  func(c *Config) { c.Board.SettleDelay = -time.Second },
			wantErr: true,
		},
		{
			name:    "zero action queue",
			modify:  func(c *Config) { c.Board.ActionQueue = 0 },
			wantErr: true,
		},
		{
			name:    "zero command queue",
			modify:  func(c *Config) { c.Board.CommandQueue = 0 },
			wantErr: true,
		},
		{
			name:    "mqtt disabled ignores port",
			modify:  func(c *Config) { c.MQTT.Port = 0 },
			wantErr: false,
		},
		{
			name:    "mqtt bad port",
			modify:  func(c *Config) { c.MQTT.Broker = "localhost"; c.MQTT.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "mqtt empty topic",
			modify:  func(c *Config) { c.MQTT.Broker = "localhost"; c.MQTT.Topic = "" },
			wantErr: true,
		},
		{
			name:    "mqtt enabled",
			modify:  func(c *Config) { c.MQTT.Broker = "localhost" },
			wantErr: false,
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

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "ecbridge", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# ecbridge") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.BLE.ScanTimeout != 5*time.Second {
		t.Errorf("written config BLE.ScanTimeout = %v, want 5s", cfg.BLE.ScanTimeout)
	}
	if cfg.Board.SettleDelay != 300*time.Millisecond {
		t.Errorf("written config Board.SettleDelay = %v, want 300ms", cfg.Board.SettleDelay)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "ecbridge")
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

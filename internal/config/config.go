package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string      `yaml:"log_level"`
	LogFormat string      `yaml:"log_format"` // "text" or "json"
	BLE       BLEConfig   `yaml:"ble"`
	Board     BoardConfig `yaml:"board"`
	MQTT      MQTTConfig  `yaml:"mqtt"`
}

// BLEConfig holds chessboard link settings.
type BLEConfig struct {
	ScanTimeout     time.Duration `yaml:"scan_timeout"`
	NamePrefix      string        `yaml:"name_prefix"`
	ConnectAttempts int           `yaml:"connect_attempts"`
	ReconnectMax    int           `yaml:"reconnect_max"` // max connect backoff in seconds
	LEDRate         float64       `yaml:"led_rate"`      // LED frames per second, 0 = unlimited
	LEDBurst        int           `yaml:"led_burst"`
}

// BoardConfig holds move reading settings.
type BoardConfig struct {
	SettleDelay  time.Duration `yaml:"settle_delay"`
	ActionQueue  int           `yaml:"action_queue"`
	CommandQueue int           `yaml:"command_queue"`
	MoveLog      string        `yaml:"move_log"` // optional file that forwarded moves are appended to
}

// MQTTConfig holds the optional move publisher settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // host name; empty disables publishing
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// Enabled reports whether moves should be published.
func (c MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ecbridge")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		BLE: BLEConfig{
			ScanTimeout:     5 * time.Second,
			ConnectAttempts: 3,
			ReconnectMax:    30,
			LEDRate:         20,
			LEDBurst:        4,
		},
		Board: BoardConfig{
			SettleDelay:  300 * time.Millisecond,
			ActionQueue:  256,
			CommandQueue: 16,
		},
		MQTT: MQTTConfig{
			Port:     1883,
			ClientID: "ecbridge",
			Topic:    "ecbridge/moves",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in move_log is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Board.MoveLog = expandTilde(cfg.Board.MoveLog)

	return cfg, nil
}

const defaultHeader = "# ecbridge configuration\n# Durations use Go syntax: 300ms, 5s, 1m.\n\n"

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the path written, or "" if a config file already exists there.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
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

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be \"text\" or \"json\", got %q", c.LogFormat)
	}

	if c.BLE.ScanTimeout <= 0 {
		return fmt.Errorf("ble.scan_timeout must be > 0")
	}
	if c.BLE.ConnectAttempts < 1 {
		return fmt.Errorf("ble.connect_attempts must be >= 1")
	}
	if c.BLE.ReconnectMax < 1 {
		return fmt.Errorf("ble.reconnect_max must be >= 1")
	}
	if c.BLE.LEDRate < 0 {
		return fmt.Errorf("ble.led_rate must be >= 0")
	}
	if c.BLE.LEDBurst < 1 {
		return fmt.Errorf("ble.led_burst must be >= 1")
	}

	if c.Board.SettleDelay < 0 {
		return fmt.Errorf("board.settle_delay must be >= 0")
	}
	if c.Board.ActionQueue < 1 {
		return fmt.Errorf("board.action_queue must be >= 1")
	}
	if c.Board.CommandQueue < 1 {
		return fmt.Errorf("board.command_queue must be >= 1")
	}

	if c.MQTT.Enabled() {
		if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
			return fmt.Errorf("mqtt.port must be 1-65535, got %d", c.MQTT.Port)
		}
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic must not be empty")
		}
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id must not be empty")
		}
	}

	return nil
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

// Command ecbridge connects an electronic chessboard over Bluetooth LE and
// speaks a line protocol on stdin/stdout: commands in, replies and board
// moves out.
//
// Usage:
//
//	ecbridge [-config path] [-init-config]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/ecbridge/internal/ble"
	"github.com/chaz8081/ecbridge/internal/bridge"
	"github.com/chaz8081/ecbridge/internal/config"
	"github.com/chaz8081/ecbridge/internal/logging"
	"github.com/chaz8081/ecbridge/internal/mqtt"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/ecbridge/config.yaml)")
	initConfig := flag.Bool("init-config", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			fmt.Fprintf(os.Stderr, "Config already exists at %s\n", config.DefaultConfigPath())
			return
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	slog.SetDefault(logging.New(os.Stderr, level, cfg.LogFormat))

	printBanner(os.Stderr, cfg)

	var sinks []moveSink
	moveLog, err := openMoveLog(cfg.Board.MoveLog)
	if err != nil {
		log.Fatalf("move log: %v", err)
	}
	if moveLog != nil {
		defer moveLog.Close()
		sinks = append(sinks, logSink(moveLog))
	}

	session := ble.NewSession(ble.NewTinygoAdapter(), sessionOptions(cfg))
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("[BLE] close", "error", err)
		}
	}()
	br := bridge.New(session, bridgeOptions(cfg))

	// Signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MQTT.Enabled() {
		pub := mqtt.NewPublisher(cfg.MQTT)
		defer pub.Disconnect()
		// The board works without a broker; connect in the background.
		go func() {
			if err := pub.Connect(ctx); err != nil {
				slog.Warn("[MQTT] connect", "error", err)
			}
		}()
		sinks = append(sinks, pub.PublishMove)
	}

	slog.Info("[ECB] ready, reading commands from stdin")
	if err := serve(ctx, os.Stdin, os.Stdout, br, sinks...); err != nil {
		slog.Error("[ECB] stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("[ECB] goodbye")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

func sessionOptions(cfg *config.Config) ble.SessionOptions {
	opts := ble.DefaultSessionOptions()
	opts.ScanTimeout = cfg.BLE.ScanTimeout
	opts.NamePrefix = cfg.BLE.NamePrefix
	opts.ConnectAttempts = cfg.BLE.ConnectAttempts
	opts.ReconnectMax = cfg.BLE.ReconnectMax
	opts.LEDRate = cfg.BLE.LEDRate
	opts.LEDBurst = cfg.BLE.LEDBurst
	return opts
}

func bridgeOptions(cfg *config.Config) bridge.Options {
	opts := bridge.DefaultOptions()
	opts.SettleDelay = cfg.Board.SettleDelay
	opts.ActionQueue = cfg.Board.ActionQueue
	opts.CommandQueue = cfg.Board.CommandQueue
	return opts
}

func openMoveLog(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// printBanner displays the startup configuration summary.
func printBanner(w io.Writer, cfg *config.Config) {
	prefix := cfg.BLE.NamePrefix
	if prefix == "" {
		prefix = "(any)"
	}
	moveLog := cfg.Board.MoveLog
	if moveLog == "" {
		moveLog = "(off)"
	}
	fmt.Fprintln(w, "=== ecbridge ===")
	fmt.Fprintf(w, "  Scan:    %s, name %s\n", cfg.BLE.ScanTimeout, prefix)
	fmt.Fprintf(w, "  LEDs:    %g frames/s\n", cfg.BLE.LEDRate)
	fmt.Fprintf(w, "  Settle:  %s\n", cfg.Board.SettleDelay)
	fmt.Fprintf(w, "  Moves:   %s\n", moveLog)
	if cfg.MQTT.Enabled() {
		fmt.Fprintf(w, "  MQTT:    %s:%d %s\n", cfg.MQTT.Broker, cfg.MQTT.Port, cfg.MQTT.Topic)
	}
	fmt.Fprintf(w, "  Log:     %s (%s)\n", cfg.LogLevel, cfg.LogFormat)
	fmt.Fprintln(w, "================")
}

// Package config provides configuration and CLI argument parsing for the patch-bay daemon.
package config

import (
	"flag"
	"fmt"
	"os"
)

// LogLevel controls the verbosity of the daemon's structured logger.
type LogLevel int

const (
	// LogInfo logs daemon startup/shutdown and errors.
	LogInfo LogLevel = iota
	// LogDebug additionally logs every device watcher event and a
	// periodic stats line (including underrun/overrun counters).
	LogDebug
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogInfo:
		return "info"
	case LogDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLogLevel converts a string to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch s {
	case "info":
		return LogInfo, nil
	case "debug":
		return LogDebug, nil
	default:
		return LogInfo, fmt.Errorf("invalid log level: %s (must be 'info' or 'debug')", s)
	}
}

// Config holds all configuration for the patch-bay daemon. Populated
// from CLI flags or defaults.
type Config struct {
	// ListenAddr is the patchrpc server's listen address (spec.md §6).
	ListenAddr string

	// DefaultSampleRate and DefaultBufferFrames seed StartSession when
	// the caller does not specify them explicitly.
	DefaultSampleRate   int
	DefaultBufferFrames int

	// DeviceWatchIntervalMs is how often the Device Watcher polls for
	// hot-plug changes, in milliseconds.
	DeviceWatchIntervalMs int

	// SessionConfigPath, if non-empty, is loaded at startup and
	// restored via AddRoute once the session is running.
	SessionConfigPath string

	// LogLevel controls the daemon's log verbosity: LogDebug additionally
	// logs per-event device watcher activity and a periodic stats line.
	LogLevel LogLevel
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:            "127.0.0.1:9616",
		DefaultSampleRate:     48000,
		DefaultBufferFrames:   256,
		DeviceWatchIntervalMs: 500,
		LogLevel:              LogInfo,
	}
}

// ParseFlags parses command-line flags and returns a Config.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "patchrpc server listen address")
	flag.IntVar(&cfg.DefaultSampleRate, "sample-rate", cfg.DefaultSampleRate, "default session sample rate in Hz")
	flag.IntVar(&cfg.DefaultBufferFrames, "buffer-frames", cfg.DefaultBufferFrames, "default session buffer size in frames")
	flag.IntVar(&cfg.DeviceWatchIntervalMs, "device-watch-interval-ms", cfg.DeviceWatchIntervalMs, "device hot-plug poll interval in milliseconds")
	flag.StringVar(&cfg.SessionConfigPath, "session-config", cfg.SessionConfigPath, "path to a saved session config to restore at startup (optional)")

	var logLevelStr string
	flag.StringVar(&logLevelStr, "log-level", cfg.LogLevel.String(), "log level: 'info' or 'debug'")

	flag.Parse()

	level, err := ParseLogLevel(logLevelStr)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.DefaultSampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.DefaultSampleRate)
	}
	if c.DefaultBufferFrames <= 0 {
		return fmt.Errorf("buffer frames must be positive, got %d", c.DefaultBufferFrames)
	}
	if c.SessionConfigPath != "" {
		if _, err := os.Stat(c.SessionConfigPath); os.IsNotExist(err) {
			return fmt.Errorf("session config not found: %s", c.SessionConfigPath)
		}
	}
	return nil
}

// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/castd/castd/internal/encoder"
	"github.com/castd/castd/internal/session"
	castderrors "github.com/castd/castd/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete castd configuration.
type Config struct {
	Daemon  DaemonConfig  `yaml:"daemon"`
	Encoder EncoderConfig `yaml:"encoder"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

// DaemonConfig configures the castd daemon process.
type DaemonConfig struct {
	// Listen configures the control API listener.
	Listen ListenConfig `yaml:"listen,omitempty"`

	// PIDFile is where the daemon records its PID.
	// Environment: CASTD_PID_FILE
	// Default: XDG_RUNTIME_DIR/castd/castd.pid (or ~/.castd/castd.pid)
	PIDFile string `yaml:"pid_file,omitempty"`

	// ShutdownTimeout is the maximum duration to wait for sessions to
	// stop during graceful shutdown.
	// Environment: CASTD_SHUTDOWN_TIMEOUT
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// ListenConfig configures how the daemon listens for API connections.
type ListenConfig struct {
	// SocketPath is the Unix socket path (default transport).
	// Environment: CASTD_SOCKET
	// Default: XDG_RUNTIME_DIR/castd/castd.sock (or ~/.castd/castd.sock)
	SocketPath string `yaml:"socket_path,omitempty"`

	// TCPAddr is an optional TCP address to listen on instead of the
	// Unix socket (e.g., "127.0.0.1:9930").
	// Environment: CASTD_TCP_ADDR
	TCPAddr string `yaml:"tcp_addr,omitempty"`

	// AllowRemote permits binding the TCP listener to non-loopback
	// addresses. The API carries no authentication, so this is only
	// safe on trusted networks.
	// Environment: CASTD_ALLOW_REMOTE
	// Default: false
	AllowRemote bool `yaml:"allow_remote"`
}

// EncoderConfig configures the worker processes spawned for sessions.
type EncoderConfig struct {
	// Command is the encoder worker binary.
	// Environment: CASTD_ENCODER_COMMAND
	// Default: castd-encoder
	Command string `yaml:"command,omitempty"`

	// Args are extra arguments passed to every worker.
	Args []string `yaml:"args,omitempty"`

	// Bus selects which message bus workers register on (system or session).
	// Environment: CASTD_ENCODER_BUS
	// Default: system
	Bus string `yaml:"bus,omitempty"`

	// GracePeriod is how long a stopped worker gets to exit on its own
	// before it is killed.
	// Environment: CASTD_ENCODER_GRACE_PERIOD
	// Default: 1s
	GracePeriod time.Duration `yaml:"grace_period,omitempty"`

	// HandshakeTimeout bounds how long a freshly spawned worker may
	// take to report its bus name.
	// Environment: CASTD_ENCODER_HANDSHAKE_TIMEOUT
	// Default: 5s
	HandshakeTimeout time.Duration `yaml:"handshake_timeout,omitempty"`

	// Display is the X display handed to workers.
	// Environment: CASTD_DISPLAY
	// Default: $DISPLAY, or :0 when unset
	Display string `yaml:"display,omitempty"`

	// Authority is the X authority file handed to workers.
	// Environment: CASTD_XAUTHORITY
	// Default: $XAUTHORITY
	Authority string `yaml:"authority,omitempty"`

	// Debug passes verbose logging flags to workers.
	// Environment: CASTD_ENCODER_DEBUG
	// Default: false
	Debug bool `yaml:"debug"`
}

// SessionConfig configures daemon-level session management.
type SessionConfig struct {
	// LocalAddress is the local RTP address for sessions that do not
	// specify one. Empty means every create request must carry its own.
	// Environment: CASTD_LOCAL_ADDRESS
	LocalAddress string `yaml:"local_address,omitempty"`

	// MaxSessions caps concurrently tracked sessions. Zero means
	// unlimited.
	// Environment: CASTD_MAX_SESSIONS
	// Default: 0
	MaxSessions int `yaml:"max_sessions,omitempty"`
}

// LogConfig configures daemon logging.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: CASTD_LOG_LEVEL
	// Default: info
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (json, text).
	// Environment: CASTD_LOG_FORMAT
	// Default: json
	Format string `yaml:"format,omitempty"`

	// File is an optional log file path. Empty logs to stderr.
	// Environment: CASTD_LOG_FILE
	File string `yaml:"file,omitempty"`

	// MaxSizeMB is the log file size that triggers rotation.
	// Zero uses the built-in default (10 MB).
	MaxSizeMB int `yaml:"max_size_mb,omitempty"`

	// MaxBackups is how many rotated files to keep.
	// Zero uses the built-in default (5).
	MaxBackups int `yaml:"max_backups,omitempty"`

	// MaxAgeDays is how long rotated files are kept.
	// Zero uses the built-in default (28 days).
	MaxAgeDays int `yaml:"max_age_days,omitempty"`

	// AddSource adds source file and line information to logs.
	// Environment: CASTD_LOG_SOURCE
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Listen: ListenConfig{
				SocketPath:  defaultSocketPath(),
				AllowRemote: false,
			},
			PIDFile:         defaultPIDFile(),
			ShutdownTimeout: 10 * time.Second,
		},
		Encoder: EncoderConfig{
			Command:          encoder.DefaultWorkerCommand,
			Bus:              session.BusSystem,
			GracePeriod:      encoder.DefaultGracePeriod,
			HandshakeTimeout: session.DefaultHandshakeTimeout,
			Display:          defaultDisplay(),
			Authority:        os.Getenv("XAUTHORITY"),
			Debug:            false,
		},
		Session: SessionConfig{
			MaxSessions: 0, // unlimited
		},
		Log: LogConfig{
			Level:     "info",
			Format:    "json",
			AddSource: false,
		},
	}
}

// Load loads configuration from environment variables and optionally from a
// YAML file. Environment variables take precedence over file-based
// configuration. If configPath is empty, only environment variables are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from file if path provided
	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &castderrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// Apply defaults to any zero values (handles minimal configs)
	cfg.applyDefaults()

	// Override with environment variables
	cfg.loadFromEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, &castderrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values with sensible defaults.
// This allows minimal configs (e.g., just a session section) to work
// without specifying all fields explicitly.
func (c *Config) applyDefaults() {
	defaults := Default()

	// Daemon defaults. The socket default only applies when no listener
	// is configured at all: a file that names just a TCP address gets a
	// TCP-only daemon.
	if c.Daemon.Listen.SocketPath == "" && c.Daemon.Listen.TCPAddr == "" {
		c.Daemon.Listen.SocketPath = defaults.Daemon.Listen.SocketPath
	}
	if c.Daemon.PIDFile == "" {
		c.Daemon.PIDFile = defaults.Daemon.PIDFile
	}
	if c.Daemon.ShutdownTimeout == 0 {
		c.Daemon.ShutdownTimeout = defaults.Daemon.ShutdownTimeout
	}

	// Encoder defaults
	if c.Encoder.Command == "" {
		c.Encoder.Command = defaults.Encoder.Command
	}
	if c.Encoder.Bus == "" {
		c.Encoder.Bus = defaults.Encoder.Bus
	}
	if c.Encoder.GracePeriod == 0 {
		c.Encoder.GracePeriod = defaults.Encoder.GracePeriod
	}
	if c.Encoder.HandshakeTimeout == 0 {
		c.Encoder.HandshakeTimeout = defaults.Encoder.HandshakeTimeout
	}
	if c.Encoder.Display == "" {
		c.Encoder.Display = defaults.Encoder.Display
	}
	if c.Encoder.Authority == "" {
		c.Encoder.Authority = defaults.Encoder.Authority
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	// Expand home directory if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	// Daemon configuration
	if val := os.Getenv("CASTD_SOCKET"); val != "" {
		c.Daemon.Listen.SocketPath = val
	}
	if val := os.Getenv("CASTD_TCP_ADDR"); val != "" {
		c.Daemon.Listen.TCPAddr = val
	}
	if val := os.Getenv("CASTD_ALLOW_REMOTE"); val != "" {
		c.Daemon.Listen.AllowRemote = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("CASTD_PID_FILE"); val != "" {
		c.Daemon.PIDFile = val
	}
	if val := os.Getenv("CASTD_SHUTDOWN_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Daemon.ShutdownTimeout = duration
		}
	}

	// Encoder configuration
	if val := os.Getenv("CASTD_ENCODER_COMMAND"); val != "" {
		c.Encoder.Command = val
	}
	if val := os.Getenv("CASTD_ENCODER_BUS"); val != "" {
		c.Encoder.Bus = strings.ToLower(val)
	}
	if val := os.Getenv("CASTD_ENCODER_GRACE_PERIOD"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Encoder.GracePeriod = duration
		}
	}
	if val := os.Getenv("CASTD_ENCODER_HANDSHAKE_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Encoder.HandshakeTimeout = duration
		}
	}
	if val := os.Getenv("CASTD_DISPLAY"); val != "" {
		c.Encoder.Display = val
	}
	if val := os.Getenv("CASTD_XAUTHORITY"); val != "" {
		c.Encoder.Authority = val
	}
	if val := os.Getenv("CASTD_ENCODER_DEBUG"); val != "" {
		c.Encoder.Debug = val == "1" || strings.ToLower(val) == "true"
	}

	// Session configuration
	if val := os.Getenv("CASTD_LOCAL_ADDRESS"); val != "" {
		c.Session.LocalAddress = val
	}
	if val := os.Getenv("CASTD_MAX_SESSIONS"); val != "" {
		if sessions, err := strconv.Atoi(val); err == nil {
			c.Session.MaxSessions = sessions
		}
	}

	// Log configuration
	if val := os.Getenv("CASTD_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("CASTD_LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("CASTD_LOG_FILE"); val != "" {
		c.Log.File = val
	}
	if val := os.Getenv("CASTD_LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	// Validate daemon configuration
	if c.Daemon.Listen.SocketPath == "" && c.Daemon.Listen.TCPAddr == "" {
		errs = append(errs, "daemon.listen needs a socket_path or a tcp_addr")
	}
	if c.Daemon.Listen.AllowRemote && c.Daemon.Listen.TCPAddr == "" {
		errs = append(errs, "daemon.listen.allow_remote requires tcp_addr to be set")
	}
	if c.Daemon.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("daemon.shutdown_timeout must be positive, got %v", c.Daemon.ShutdownTimeout))
	}

	// Validate encoder configuration
	if c.Encoder.Command == "" {
		errs = append(errs, "encoder.command must not be empty")
	}
	if c.Encoder.Bus != session.BusSystem && c.Encoder.Bus != session.BusSession {
		errs = append(errs, fmt.Sprintf("encoder.bus must be one of [system, session], got %q", c.Encoder.Bus))
	}
	if c.Encoder.GracePeriod <= 0 {
		errs = append(errs, fmt.Sprintf("encoder.grace_period must be positive, got %v", c.Encoder.GracePeriod))
	}
	if c.Encoder.HandshakeTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("encoder.handshake_timeout must be positive, got %v", c.Encoder.HandshakeTimeout))
	}

	// Validate session configuration
	if c.Session.MaxSessions < 0 {
		errs = append(errs, fmt.Sprintf("session.max_sessions must be non-negative, got %d", c.Session.MaxSessions))
	}

	// Validate log configuration
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}
	if c.Log.MaxSizeMB < 0 {
		errs = append(errs, fmt.Sprintf("log.max_size_mb must be non-negative, got %d", c.Log.MaxSizeMB))
	}
	if c.Log.MaxBackups < 0 {
		errs = append(errs, fmt.Sprintf("log.max_backups must be non-negative, got %d", c.Log.MaxBackups))
	}
	if c.Log.MaxAgeDays < 0 {
		errs = append(errs, fmt.Sprintf("log.max_age_days must be non-negative, got %d", c.Log.MaxAgeDays))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// ManagerConfig maps the encoder and session sections onto a session
// manager configuration.
func (c *Config) ManagerConfig() session.Config {
	return session.Config{
		WorkerCommand:    c.Encoder.Command,
		WorkerArgs:       c.Encoder.Args,
		Bus:              c.Encoder.Bus,
		GracePeriod:      c.Encoder.GracePeriod,
		HandshakeTimeout: c.Encoder.HandshakeTimeout,
		Display:          c.Encoder.Display,
		Authority:        c.Encoder.Authority,
		Debug:            c.Encoder.Debug,
		LocalAddress:     c.Session.LocalAddress,
		MaxSessions:      c.Session.MaxSessions,
	}
}

// defaultSocketPath returns the default Unix socket path.
func defaultSocketPath() string {
	// Use XDG_RUNTIME_DIR if available (Linux)
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "castd", "castd.sock")
	}

	// Fall back to ~/.castd/castd.sock
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/castd.sock"
	}

	return filepath.Join(homeDir, ".castd", "castd.sock")
}

// defaultPIDFile returns the default PID file path.
func defaultPIDFile() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "castd", "castd.pid")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/castd.pid"
	}

	return filepath.Join(homeDir, ".castd", "castd.pid")
}

// defaultDisplay resolves the X display workers inherit.
func defaultDisplay() string {
	if display := os.Getenv("DISPLAY"); display != "" {
		return display
	}
	return ":0"
}

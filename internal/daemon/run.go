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

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/castd/castd/internal/config"
	"github.com/castd/castd/internal/log"
)

// RunOptions configures daemon execution.
type RunOptions struct {
	Version   string
	Commit    string
	BuildDate string

	// Config overrides from the command line.
	ConfigPath    string
	SocketPath    string
	TCPAddr       string
	AllowRemote   bool
	PIDFile       string
	WorkerCommand string
	Bus           string
	Display       string
	Debug         bool
	LogLevel      string
	LogFormat     string
	LogFile       string
}

// Run starts the daemon and blocks until shutdown. It is the entry
// point for both foreground execution and the re-exec'd background
// child of "castctl daemon start".
func Run(opts RunOptions) error {
	// Bootstrap logger for errors before the config is resolved.
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	path := opts.ConfigPath
	if path == "" {
		path = discoverConfig()
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load config", log.Error(err))
		return fmt.Errorf("failed to load config: %w", err)
	}

	if opts.SocketPath != "" {
		cfg.Daemon.Listen.SocketPath = opts.SocketPath
	}
	if opts.TCPAddr != "" {
		cfg.Daemon.Listen.TCPAddr = opts.TCPAddr
	}
	if opts.PIDFile != "" {
		cfg.Daemon.PIDFile = opts.PIDFile
	}
	if opts.WorkerCommand != "" {
		cfg.Encoder.Command = opts.WorkerCommand
	}
	if opts.Bus != "" {
		cfg.Encoder.Bus = opts.Bus
	}
	if opts.Display != "" {
		cfg.Encoder.Display = opts.Display
	}
	if opts.Debug {
		cfg.Encoder.Debug = true
	}
	if opts.AllowRemote {
		cfg.Daemon.Listen.AllowRemote = true
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	if opts.LogFile != "" {
		cfg.Log.File = opts.LogFile
	}

	// Flag overrides bypass Load's validation, so check again.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger = loggerFromConfig(cfg)
	slog.SetDefault(logger)

	if cfg.Daemon.Listen.AllowRemote {
		logger.Warn("allow-remote is enabled; the control API has no authentication, expose it only on trusted networks")
	}

	d, err := New(cfg, Options{
		Version:   opts.Version,
		Commit:    opts.Commit,
		BuildDate: opts.BuildDate,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("signal received, shutting down", slog.String("signal", sig.String()))
		cancel()
		if err := d.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("daemon error: %w", err)
		}
		return nil
	}
}

// loggerFromConfig builds the daemon logger from the resolved log
// configuration, including file rotation when a log file is set.
func loggerFromConfig(cfg *config.Config) *slog.Logger {
	lc := log.DefaultConfig()
	if cfg.Log.Level != "" {
		lc.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		lc.Format = log.Format(cfg.Log.Format)
	}
	lc.AddSource = cfg.Log.AddSource
	if cfg.Log.File != "" {
		lc.Output = log.FileOutput(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays)
	}
	return log.New(lc)
}

// discoverConfig returns the default config file path when the file
// exists, otherwise the empty string for an env-and-defaults config.
func discoverConfig() string {
	path, err := config.ConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

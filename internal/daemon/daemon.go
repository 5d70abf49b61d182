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

// Package daemon assembles the castd process: the session manager, its
// HTTP control API and the listener they are served on.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/castd/castd/internal/config"
	"github.com/castd/castd/internal/daemon/api"
	"github.com/castd/castd/internal/daemon/listener"
	"github.com/castd/castd/internal/lifecycle"
	"github.com/castd/castd/internal/log"
	"github.com/castd/castd/internal/metrics"
	"github.com/castd/castd/internal/session"
)

// Options contains daemon identity set at build time.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// Daemon is the castd daemon: it owns the session manager and serves
// the control API over a Unix socket or local TCP.
type Daemon struct {
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
	manager *session.Manager
	server  *http.Server
	ln      net.Listener
	pidFile *lifecycle.PIDFile

	mu      sync.Mutex
	started bool
}

// New creates a daemon from configuration. Nothing is bound or spawned
// until Start.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	logger := newLogger(cfg.Log)
	return &Daemon{
		cfg:     cfg,
		opts:    opts,
		logger:  log.WithComponent(logger, "daemon"),
		manager: session.NewManager(cfg.ManagerConfig(), logger),
	}, nil
}

// newLogger builds the daemon logger. Environment overrides were folded
// into cfg by config.Load, so the file configuration is authoritative
// here.
func newLogger(cfg config.LogConfig) *slog.Logger {
	logCfg := &log.Config{
		Level:     cfg.Level,
		Format:    log.Format(cfg.Format),
		Output:    os.Stderr,
		AddSource: cfg.AddSource,
	}
	if cfg.File != "" {
		logCfg.Output = log.FileOutput(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	}
	return log.New(logCfg)
}

// Start binds the listener and serves the control API until the context
// is cancelled or the server fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	if d.cfg.Daemon.PIDFile != "" {
		if err := d.acquirePIDFile(); err != nil {
			return err
		}
	}

	ln, err := listener.New(d.cfg.Daemon.Listen)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	d.ln = ln

	router := api.NewRouter(api.RouterConfig{
		Version:   d.opts.Version,
		Commit:    d.opts.Commit,
		BuildDate: d.opts.BuildDate,
	}, d.logger)

	sessions := &managerAdapter{manager: d.manager}
	api.NewSessionsHandler(sessions).RegisterRoutes(router.Mux())
	router.SetSessionProvider(sessions)
	router.SetMetricsHandler(metrics.Handler())

	d.server = &http.Server{
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	d.logger.Info("castd starting",
		slog.String("version", d.opts.Version),
		slog.String("listen_addr", ln.Addr().String()),
		slog.String("worker_command", d.cfg.Encoder.Command),
		slog.String("bus", d.cfg.Encoder.Bus))

	errCh := make(chan error, 1)
	go func() {
		if err := d.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops every worker, then the HTTP server, then removes the
// PID and socket files. Workers get the shutdown timeout to go away;
// ones that ignore it are logged and abandoned to their grace timers.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	d.logger.Info("graceful shutdown initiated",
		slog.Int("active_sessions", d.manager.Count()))

	if d.server != nil {
		d.server.SetKeepAlivesEnabled(false)
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, d.cfg.Daemon.ShutdownTimeout)
	defer drainCancel()
	if err := d.manager.Shutdown(drainCtx); err != nil {
		d.logger.Warn("sessions still terminating at shutdown deadline",
			log.Error(err))
	}

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, d.cfg.Daemon.ShutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("HTTP server shutdown error", log.Error(err))
		}
	}

	if d.pidFile != nil {
		if err := d.pidFile.Remove(); err != nil {
			d.logger.Error("failed to remove PID file",
				log.Error(err), slog.String("path", d.pidFile.Path()))
		}
		d.pidFile = nil
	}

	if d.cfg.Daemon.Listen.SocketPath != "" {
		if err := os.Remove(d.cfg.Daemon.Listen.SocketPath); err != nil && !os.IsNotExist(err) {
			d.logger.Error("failed to remove socket file",
				log.Error(err), slog.String("path", d.cfg.Daemon.Listen.SocketPath))
		}
	}

	d.started = false
	d.logger.Info("daemon stopped")
	return nil
}

// acquirePIDFile claims the PID file for this process. A file left by
// an uncleanly exited daemon is removed and reclaimed; a file owned by
// a live castd refuses the start.
func (d *Daemon) acquirePIDFile() error {
	pf := lifecycle.NewPIDFile(d.cfg.Daemon.PIDFile)
	err := pf.Create(os.Getpid())
	if err == nil {
		d.pidFile = pf
		return nil
	}
	if !errors.Is(err, lifecycle.ErrPIDFileExists) && !errors.Is(err, lifecycle.ErrPIDFileLocked) {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	pid, readErr := pf.Read()
	if readErr == nil && lifecycle.IsProcessRunning(pid) && lifecycle.IsCastdProcess(pid) {
		return fmt.Errorf("another castd instance is running (pid %d)", pid)
	}

	d.logger.Warn("removing stale PID file",
		slog.String("path", pf.Path()), slog.Int("pid", pid))
	if err := pf.Remove(); err != nil {
		return fmt.Errorf("failed to remove stale PID file: %w", err)
	}
	if err := pf.Create(os.Getpid()); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	d.pidFile = pf
	return nil
}

// managerAdapter exposes the session manager to the API as snapshots.
// Handlers never hold live sessions; every read is a point-in-time copy.
type managerAdapter struct {
	manager *session.Manager
}

func (a *managerAdapter) Create(ctx context.Context, req session.CreateRequest) (session.Info, error) {
	s, err := a.manager.Create(ctx, req)
	if err != nil {
		return session.Info{}, err
	}
	return s.Info(), nil
}

func (a *managerAdapter) Get(id string) (session.Info, error) {
	s, err := a.manager.Get(id)
	if err != nil {
		return session.Info{}, err
	}
	return s.Info(), nil
}

func (a *managerAdapter) Detail(id string) (session.Info, error) {
	s, err := a.manager.Get(id)
	if err != nil {
		return session.Info{}, err
	}
	return s.Detail(), nil
}

func (a *managerAdapter) List() []session.Info {
	sessions := a.manager.List()
	out := make([]session.Info, len(sessions))
	for i, s := range sessions {
		out[i] = s.Info()
	}
	return out
}

func (a *managerAdapter) Count() int {
	return a.manager.Count()
}

func (a *managerAdapter) Start(ctx context.Context, id string) error {
	return a.manager.Start(ctx, id)
}

func (a *managerAdapter) Pause(ctx context.Context, id string) error {
	return a.manager.Pause(ctx, id)
}

func (a *managerAdapter) Resume(ctx context.Context, id string) error {
	return a.manager.Resume(ctx, id)
}

func (a *managerAdapter) Stop(ctx context.Context, id string) error {
	return a.manager.Stop(ctx, id)
}

func (a *managerAdapter) Remove(ctx context.Context, id string) error {
	return a.manager.Remove(ctx, id)
}

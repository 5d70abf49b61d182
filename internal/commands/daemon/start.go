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
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/castd/castd/internal/client"
	"github.com/castd/castd/internal/commands/shared"
	"github.com/castd/castd/internal/config"
	daemonpkg "github.com/castd/castd/internal/daemon"
	"github.com/castd/castd/internal/lifecycle"
)

func newStartCommand() *cobra.Command {
	var (
		foreground  bool
		timeout     time.Duration
		socket      string
		tcpAddr     string
		allowRemote bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the castd daemon",
		Long: `Start the castd daemon in the background.

By default, the daemon runs in the background, acquires its PID file,
and logs to the castd data directory. Use --foreground to run in the
current terminal instead.

The start command is idempotent: if the daemon is already running and
healthy, it exits successfully without starting a new instance.`,
		Example: `  # Start daemon in background
  castctl daemon start

  # Start in foreground (for systemd/docker)
  castctl daemon start --foreground

  # Start with custom socket path
  castctl daemon start --socket /tmp/castd.sock

  # Start with TCP listener
  castctl daemon start --tcp 127.0.0.1:9930

  # Override health check timeout
  castctl daemon start --timeout 60s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), startOptions{
				foreground:  foreground,
				timeout:     timeout,
				socket:      socket,
				tcpAddr:     tcpAddr,
				allowRemote: allowRemote,
			})
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in foreground instead of detaching")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Health check timeout")
	cmd.Flags().StringVar(&socket, "socket", "", "Unix socket path")
	cmd.Flags().StringVar(&tcpAddr, "tcp", "", "TCP address to listen on")
	cmd.Flags().BoolVar(&allowRemote, "allow-remote", false, "Allow non-localhost TCP connections")

	return cmd
}

type startOptions struct {
	foreground  bool
	timeout     time.Duration
	socket      string
	tcpAddr     string
	allowRemote bool
}

func runStart(ctx context.Context, opts startOptions) error {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if opts.socket != "" {
		cfg.Daemon.Listen.SocketPath = opts.socket
	}
	if opts.tcpAddr != "" {
		cfg.Daemon.Listen.TCPAddr = opts.tcpAddr
	}
	if opts.allowRemote {
		cfg.Daemon.Listen.AllowRemote = true
	}

	audit := lifecycle.NewAuditLog(auditLogPath())
	v, c, b := shared.GetVersion()
	if err := audit.LogStart(v); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", err)
	}

	// Foreground mode: run the daemon inline. It acquires the PID
	// file and handles signals itself.
	if opts.foreground {
		fmt.Println("Starting castd in foreground mode...")

		err := daemonpkg.Run(daemonpkg.RunOptions{
			Version:     v,
			Commit:      c,
			BuildDate:   b,
			ConfigPath:  shared.GetConfigPath(),
			SocketPath:  opts.socket,
			TCPAddr:     opts.tcpAddr,
			AllowRemote: opts.allowRemote,
		})
		if err != nil {
			if logErr := audit.LogStartFailure(err); logErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", logErr)
			}
			return err
		}
		return nil
	}

	// Background mode: check if already running. The daemon itself
	// owns the PID file (it locks and reclaims it), so this check is
	// advisory and never removes the file.
	pidFile := lifecycle.NewPIDFile(cfg.Daemon.PIDFile)
	existingPID, err := pidFile.Read()
	if err == nil {
		if lifecycle.IsProcessRunning(existingPID) && lifecycle.IsCastdProcess(existingPID) {
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if result := healthChecker(cfg).Check(checkCtx); result.Success {
				fmt.Printf("castd is already running (PID %d)\n", existingPID)
				return nil
			}

			return fmt.Errorf("castd (PID %d) is running but failed its health check; stop it with 'castctl daemon stop'", existingPID)
		}

		if logErr := audit.LogStalePID(existingPID, "process not running"); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", logErr)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check existing daemon: %w", err)
	}

	// Spawn the detached daemon process
	binaryPath, err := castdBinaryPath()
	if err != nil {
		if logErr := audit.LogStartFailure(err); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", logErr)
		}
		return err
	}

	spawner := lifecycle.NewSpawner()
	pid, err := spawner.SpawnDetached(binaryPath, buildDaemonArgs(opts), daemonLogPath())
	if err != nil {
		if logErr := audit.LogStartFailure(err); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", logErr)
		}
		return fmt.Errorf("failed to spawn castd: %w", err)
	}

	startTime := time.Now()
	fmt.Printf("Starting castd (PID %d)...\n", pid)

	if err := healthChecker(cfg).WaitUntilHealthy(opts.timeout); err != nil {
		// Daemon failed to become healthy - try to clean up
		_ = lifecycle.SendSignal(pid, syscall.SIGTERM)

		if logErr := audit.LogStartFailure(err); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", logErr)
		}
		return fmt.Errorf("castd failed to become healthy within %v (see %s): %w", opts.timeout, daemonLogPath(), err)
	}

	if err := audit.LogStartSuccess(pid, time.Since(startTime)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", err)
	}

	fmt.Printf("castd started successfully (PID %d)\n", pid)
	return nil
}

// buildDaemonArgs constructs the arguments for the spawned castd
// process. Only explicit overrides are forwarded; the child loads the
// same config file and environment on its own.
func buildDaemonArgs(opts startOptions) []string {
	var args []string

	if path := shared.GetConfigPath(); path != "" {
		args = append(args, "--config", path)
	}
	if opts.socket != "" {
		args = append(args, "--socket", opts.socket)
	}
	if opts.tcpAddr != "" {
		args = append(args, "--tcp", opts.tcpAddr)
	}
	if opts.allowRemote {
		args = append(args, "--allow-remote")
	}

	return args
}

// castdBinaryPath locates the castd binary, preferring a sibling of the
// running castctl so matched pairs win when both are installed together.
func castdBinaryPath() (string, error) {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "castd")
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}

	path, err := exec.LookPath("castd")
	if err != nil {
		return "", fmt.Errorf("castd binary not found next to castctl or in PATH: %w", err)
	}
	return path, nil
}

// healthChecker builds a checker aimed at the daemon's health endpoint
// over whichever transport the daemon listens on.
func healthChecker(cfg *config.Config) *lifecycle.HealthChecker {
	if addr := cfg.Daemon.Listen.TCPAddr; addr != "" {
		return lifecycle.NewHealthChecker(fmt.Sprintf("http://%s/v1/health", addr))
	}

	httpClient := &http.Client{
		Transport: client.NewUnixTransport(cfg.Daemon.Listen.SocketPath),
		Timeout:   5 * time.Second,
	}
	return lifecycle.NewHealthChecker("http://localhost/v1/health").WithHTTPClient(httpClient)
}

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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/castd/castd/internal/commands/shared"
	"github.com/castd/castd/internal/config"
	"github.com/castd/castd/internal/lifecycle"
)

func newStopCommand() *cobra.Command {
	var (
		timeout time.Duration
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the castd daemon",
		Long: `Stop the castd daemon gracefully.

By default, sends SIGTERM and waits for graceful shutdown. Graceful
shutdown stops every active session, which gives each encoder worker
its grace period to exit. If the timeout is exceeded, sends SIGKILL.

Use --force to skip graceful shutdown and send SIGKILL immediately.

The stop command is idempotent: if the daemon is not running, it exits
successfully after cleaning up stale PID files.`,
		Example: `  # Stop daemon gracefully (SIGKILL if timeout exceeded)
  castctl daemon stop

  # Stop with custom timeout before force kill
  castctl daemon stop --timeout 60s

  # Skip graceful shutdown, kill immediately
  castctl daemon stop --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.Context(), stopOptions{
				timeout: timeout,
				force:   force,
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Graceful shutdown timeout before SIGKILL")
	cmd.Flags().BoolVar(&force, "force", false, "Skip graceful shutdown, send SIGKILL immediately")

	return cmd
}

type stopOptions struct {
	timeout time.Duration
	force   bool
}

func runStop(ctx context.Context, opts stopOptions) error {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	audit := lifecycle.NewAuditLog(auditLogPath())

	pidFile := lifecycle.NewPIDFile(cfg.Daemon.PIDFile)
	pid, err := pidFile.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("castd is not running (no PID file)")
			return nil
		}
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	if !lifecycle.IsProcessRunning(pid) {
		if logErr := audit.LogStalePID(pid, "process not running"); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", logErr)
		}

		fmt.Printf("castd process %d is not running (removing stale PID file)\n", pid)

		if err := pidFile.Remove(); err != nil {
			return fmt.Errorf("failed to remove stale PID file: %w", err)
		}
		return nil
	}

	// Never signal a PID that got recycled by something else.
	if !lifecycle.IsCastdProcess(pid) {
		return fmt.Errorf("PID %d is not a castd process (refusing to stop)", pid)
	}

	if err := audit.LogStop(pid, opts.force); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", err)
	}

	startTime := time.Now()
	fmt.Printf("Stopping castd (PID %d)...\n", pid)

	if err := lifecycle.GracefulShutdown(pid, opts.timeout, opts.force); err != nil {
		if logErr := audit.LogStopFailure(pid, err); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", logErr)
		}
		return fmt.Errorf("failed to stop castd: %w", err)
	}

	duration := time.Since(startTime)

	// The daemon removes its own PID file on clean shutdown; clean up
	// whatever a SIGKILL left behind.
	if err := pidFile.Remove(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to remove PID file: %v\n", err)
	}

	if err := audit.LogStopSuccess(pid, duration); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", err)
	}

	fmt.Println("castd stopped")
	return nil
}

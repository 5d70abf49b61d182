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
	"time"

	"github.com/spf13/cobra"
)

func newRestartCommand() *cobra.Command {
	var (
		timeout time.Duration
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the castd daemon",
		Long: `Restart the castd daemon by stopping and starting it.

This is equivalent to running 'castctl daemon stop' followed by
'castctl daemon start'. Use this after configuration changes.

Restarting terminates every active session; encoder workers do not
survive their daemon.`,
		Example: `  # Restart daemon
  castctl daemon restart

  # Restart with force stop
  castctl daemon restart --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Stop the daemon (ignore errors if not running)
			_ = runStop(cmd.Context(), stopOptions{
				timeout: timeout,
				force:   force,
			})

			// Give it a moment to fully stop
			time.Sleep(100 * time.Millisecond)

			return runStart(context.Background(), startOptions{
				foreground: false,
				timeout:    30 * time.Second,
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Graceful shutdown timeout before SIGKILL")
	cmd.Flags().BoolVar(&force, "force", false, "Skip graceful shutdown, send SIGKILL immediately")

	return cmd
}

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

package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/castd/castd/internal/client"
	"github.com/castd/castd/internal/commands/shared"
	"github.com/castd/castd/internal/tracing"
)

// NewCommand creates the session command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage encoder sessions",
		Long: `Commands for managing encoder sessions.

A session is one encoder worker process streaming a display to a peer.
Sessions are created against the running castd daemon and controlled
through it.`,
	}

	cmd.AddCommand(newCreateCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newStartCommand())
	cmd.AddCommand(newPauseCommand())
	cmd.AddCommand(newResumeCommand())
	cmd.AddCommand(newStopCommand())
	cmd.AddCommand(newRemoveCommand())

	return cmd
}

// apiContext returns a bounded context carrying a fresh correlation ID,
// so one CLI invocation can be matched against the daemon request log.
func apiContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := tracing.WithContext(context.Background(), tracing.NewCorrelationID())
	return context.WithTimeout(ctx, timeout)
}

// daemonError rewrites dial failures into guidance plus a dedicated
// exit code; everything else passes through for normal handling.
func daemonError(err error) error {
	if err == nil {
		return nil
	}
	var dnr *client.DaemonNotRunningError
	if errors.As(err, &dnr) {
		fmt.Fprintln(os.Stderr, dnr.Guidance())
		os.Exit(shared.ExitDaemonNotRunning)
	}
	return err
}

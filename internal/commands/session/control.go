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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/castd/castd/internal/client"
	"github.com/castd/castd/internal/commands/shared"
	"github.com/castd/castd/internal/session"
)

func newStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start <session-id>",
		Short: "Start streaming",
		Long: `Tell the session's encoder worker to start streaming.

Starting is asynchronous on the worker side: the command returns once
the daemon has issued the call, and the session reaches STARTED when
the worker confirms it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(args[0], "started", func(ctx context.Context, c *client.Client) (*session.Info, error) {
				return c.StartSession(ctx, args[0])
			})
		},
	}
}

func newPauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <session-id>",
		Short: "Pause streaming",
		Long:  `Pause a started session. Resume it with 'castctl session resume'.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(args[0], "paused", func(ctx context.Context, c *client.Client) (*session.Info, error) {
				return c.PauseSession(ctx, args[0])
			})
		},
	}
}

func newResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume streaming",
		Long:  `Resume a paused session.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(args[0], "resumed", func(ctx context.Context, c *client.Client) (*session.Info, error) {
				return c.ResumeSession(ctx, args[0])
			})
		},
	}
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <session-id>",
		Short: "Stop streaming",
		Long: `Stop a session's encoder worker.

The worker gets its grace period to exit on its own before the daemon
kills it. The stopped session stays listed until removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(args[0], "stopped", func(ctx context.Context, c *client.Client) (*session.Info, error) {
				return c.StopSession(ctx, args[0])
			})
		},
	}
}

// runControl sends one control call and reports the refreshed session.
// The state snapshot may still show the previous state; transitions are
// confirmed asynchronously by the worker.
func runControl(id, verb string, call func(context.Context, *client.Client) (*session.Info, error)) error {
	ctx, cancel := apiContext(30 * time.Second)
	defer cancel()

	c, err := client.FromEnvironment()
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	info, err := call(ctx, c)
	if err != nil {
		return daemonError(err)
	}

	if shared.GetJSON() {
		return json.NewEncoder(os.Stdout).Encode(info)
	}

	if !shared.GetQuiet() {
		fmt.Printf("Session %s %s (state: %s)\n", id, verb, info.State)
	}

	return nil
}

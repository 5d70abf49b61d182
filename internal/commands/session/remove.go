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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/castd/castd/internal/client"
	"github.com/castd/castd/internal/commands/shared"
)

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <session-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a session",
		Long: `Remove a session from the daemon.

Removing stops the session's encoder worker if it is still running,
waits out the exit grace period, and drops the session from the list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(args[0])
		},
	}
}

func runRemove(id string) error {
	ctx, cancel := apiContext(30 * time.Second)
	defer cancel()

	c, err := client.FromEnvironment()
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	if err := c.RemoveSession(ctx, id); err != nil {
		return daemonError(err)
	}

	if shared.GetJSON() {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{
			"id":     id,
			"status": "removed",
		})
	}

	if !shared.GetQuiet() {
		fmt.Printf("Session %s removed\n", id)
	}

	return nil
}

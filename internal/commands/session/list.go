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
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/castd/castd/internal/client"
	"github.com/castd/castd/internal/commands/shared"
	"github.com/castd/castd/internal/session"
)

func newListCommand() *cobra.Command {
	var stateFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Long: `List all sessions known to the daemon.

Terminated sessions stay listed until removed, so their exit state and
error remain inspectable.

Use --state to show only sessions in a given state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, stateFilter)
		},
	}

	cmd.Flags().StringVar(&stateFilter, "state", "", "Only show sessions in this state (e.g. STARTED)")

	return cmd
}

func runList(cmd *cobra.Command, stateFilter string) error {
	ctx, cancel := apiContext(10 * time.Second)
	defer cancel()

	c, err := client.FromEnvironment()
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	sessions, err := c.ListSessions(ctx)
	if err != nil {
		return daemonError(err)
	}

	if stateFilter != "" {
		filtered := sessions[:0]
		for _, s := range sessions {
			if strings.EqualFold(s.State.String(), stateFilter) {
				filtered = append(filtered, s)
			}
		}
		sessions = filtered
	}

	// Sort by creation time for stable output
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	out := cmd.OutOrStdout()

	if shared.GetJSON() {
		result := map[string]any{
			"sessions": sessions,
			"count":    len(sessions),
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	// Quiet mode for scripts: IDs only, one per line.
	if shared.GetQuiet() {
		for _, s := range sessions {
			fmt.Fprintln(out, s.ID)
		}
		return nil
	}

	if len(sessions) == 0 {
		if stateFilter != "" {
			fmt.Fprintf(out, "No sessions in state %q.\n", stateFilter)
		} else {
			fmt.Fprintln(out, "No sessions.")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Run 'castctl session create' to create one.")
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tPID\tPEER")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, valueOrDash(s.Name), s.State, pidColumn(s), valueOrDash(s.Config.PeerAddress))
	}
	w.Flush()

	return nil
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func pidColumn(s session.Info) string {
	if s.PID == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", s.PID)
}

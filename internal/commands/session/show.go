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

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show session details",
		Long: `Display the full state of one session, including its stream
configuration and, for live workers, process statistics.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(args[0])
		},
	}
}

func runShow(id string) error {
	ctx, cancel := apiContext(10 * time.Second)
	defer cancel()

	c, err := client.FromEnvironment()
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	info, err := c.GetSession(ctx, id)
	if err != nil {
		return daemonError(err)
	}

	if shared.GetJSON() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Printf("Session %s\n", info.ID)
	if info.Name != "" {
		fmt.Printf("  Name:       %s\n", info.Name)
	}
	fmt.Printf("  State:      %s\n", info.State)
	if info.PID != 0 {
		fmt.Printf("  Worker PID: %d\n", info.PID)
	}
	if info.Peer != "" {
		fmt.Printf("  Bus Peer:   %s\n", info.Peer)
	}
	fmt.Printf("  Created:    %s\n", info.CreatedAt.Format(time.RFC3339))
	if info.StartedAt != nil {
		fmt.Printf("  Started:    %s\n", info.StartedAt.Format(time.RFC3339))
	}
	if info.TerminatedAt != nil {
		fmt.Printf("  Terminated: %s\n", info.TerminatedAt.Format(time.RFC3339))
	}
	if info.Error != "" {
		fmt.Printf("  Error:      %s\n", info.Error)
	}

	fmt.Println()
	fmt.Println("Stream:")
	fmt.Printf("  Peer:       %s (RTP port %d)\n", info.Config.PeerAddress, info.Config.RTPPort)
	if info.Config.PeerRTCPPort != 0 {
		fmt.Printf("  Peer RTCP:  %d\n", info.Config.PeerRTCPPort)
	}
	fmt.Printf("  Local:      %s\n", info.Config.LocalAddress)
	if info.Config.LocalRTCPPort != 0 {
		fmt.Printf("  Local RTCP: %d\n", info.Config.LocalRTCPPort)
	}
	if rect := info.Config.Rect; rect != nil {
		fmt.Printf("  Region:     %dx%d+%d+%d\n", rect.Width, rect.Height, rect.X, rect.Y)
	} else {
		fmt.Printf("  Region:     full display\n")
	}

	if p := info.Process; p != nil {
		fmt.Println()
		fmt.Println("Process:")
		fmt.Printf("  CPU:        %.1f%%\n", p.CPUPercent)
		fmt.Printf("  RSS:        %s\n", formatBytes(p.RSSBytes))
		fmt.Printf("  Threads:    %d\n", p.NumThreads)
		fmt.Printf("  Uptime:     %s\n", (time.Duration(p.UptimeSeconds) * time.Second).String())
	}

	return nil
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

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
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/castd/castd/internal/client"
	"github.com/castd/castd/internal/commands/shared"
	"github.com/castd/castd/internal/encoder"
	"github.com/castd/castd/internal/session"
)

type createFlags struct {
	file          string
	name          string
	peer          string
	rtpPort       uint32
	peerRTCPPort  uint32
	localAddr     string
	localRTCPPort uint32
	rect          string
}

func newCreateCommand() *cobra.Command {
	var flags createFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new session",
		Long: `Create a new encoder session.

The daemon spawns an encoder worker, waits for it to register on the
bus, and delivers the stream configuration. The new session is left
configured but not streaming; use 'castctl session start' to begin.

Parameters come from flags, from a YAML file (--file), or both; flags
win over file values.`,
		Example: `  # Create from flags
  castctl session create --peer 192.168.1.50 --rtp-port 5004

  # Create from a YAML file
  castctl session create --file lounge.yaml

  # Cast a screen region instead of the whole display
  castctl session create --peer 192.168.1.50 --rtp-port 5004 --rect 1280x720+0+0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "YAML file with session parameters")
	cmd.Flags().StringVar(&flags.name, "name", "", "Human-friendly session label")
	cmd.Flags().StringVar(&flags.peer, "peer", "", "Peer (sink) network address")
	cmd.Flags().Uint32Var(&flags.rtpPort, "rtp-port", 0, "Peer RTP port")
	cmd.Flags().Uint32Var(&flags.peerRTCPPort, "peer-rtcp-port", 0, "Peer RTCP port (0 disables RTCP)")
	cmd.Flags().StringVar(&flags.localAddr, "local", "", "Local (source) network address")
	cmd.Flags().Uint32Var(&flags.localRTCPPort, "local-rtcp-port", 0, "Local RTCP port (0 disables RTCP)")
	cmd.Flags().StringVar(&flags.rect, "rect", "", "Screen region to cast (WIDTHxHEIGHT+X+Y)")

	return cmd
}

func runCreate(flags createFlags) error {
	req, err := buildCreateRequest(flags)
	if err != nil {
		return err
	}

	ctx, cancel := apiContext(30 * time.Second)
	defer cancel()

	c, err := client.FromEnvironment()
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	info, err := c.CreateSession(ctx, req)
	if err != nil {
		return daemonError(err)
	}

	if shared.GetJSON() {
		return json.NewEncoder(os.Stdout).Encode(info)
	}

	if !shared.GetQuiet() {
		if info.Name != "" {
			fmt.Printf("Session %q created: %s (state: %s)\n", info.Name, info.ID, info.State)
		} else {
			fmt.Printf("Session created: %s (state: %s)\n", info.ID, info.State)
		}
		fmt.Printf("\nRun 'castctl session start %s' to begin streaming.\n", info.ID)
	}

	return nil
}

// buildCreateRequest merges the optional YAML file with flag overrides.
func buildCreateRequest(flags createFlags) (session.CreateRequest, error) {
	var req session.CreateRequest

	if flags.file != "" {
		data, err := os.ReadFile(flags.file)
		if err != nil {
			return req, fmt.Errorf("failed to read session file: %w", err)
		}
		if err := yaml.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("failed to parse session file %s: %w", flags.file, err)
		}
	}

	if flags.name != "" {
		req.Name = flags.name
	}
	if flags.peer != "" {
		req.Config.PeerAddress = flags.peer
	}
	if flags.rtpPort != 0 {
		req.Config.RTPPort = flags.rtpPort
	}
	if flags.peerRTCPPort != 0 {
		req.Config.PeerRTCPPort = flags.peerRTCPPort
	}
	if flags.localAddr != "" {
		req.Config.LocalAddress = flags.localAddr
	}
	if flags.localRTCPPort != 0 {
		req.Config.LocalRTCPPort = flags.localRTCPPort
	}
	if flags.rect != "" {
		rect, err := parseRect(flags.rect)
		if err != nil {
			return req, err
		}
		req.Config.Rect = rect
	}

	return req, nil
}

// parseRect parses an X geometry string (WIDTHxHEIGHT+X+Y, offsets
// optional) into a capture rectangle.
func parseRect(s string) (*encoder.Rect, error) {
	parts := strings.Split(s, "+")
	if len(parts) != 1 && len(parts) != 3 {
		return nil, fmt.Errorf("invalid rect %q (want WIDTHxHEIGHT or WIDTHxHEIGHT+X+Y)", s)
	}

	dims := strings.Split(parts[0], "x")
	if len(dims) != 2 {
		return nil, fmt.Errorf("invalid rect %q (want WIDTHxHEIGHT or WIDTHxHEIGHT+X+Y)", s)
	}

	width, err := strconv.ParseUint(dims[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid rect width %q", dims[0])
	}
	height, err := strconv.ParseUint(dims[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid rect height %q", dims[1])
	}

	rect := &encoder.Rect{Width: uint32(width), Height: uint32(height)}

	if len(parts) == 3 {
		x, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid rect x offset %q", parts[1])
		}
		y, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid rect y offset %q", parts[2])
		}
		rect.X = uint32(x)
		rect.Y = uint32(y)
	}

	return rect, nil
}

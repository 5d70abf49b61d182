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
	"io"
	"testing"

	"github.com/spf13/cobra"

	"github.com/castd/castd/internal/session"
)

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()

	if cmd.Use != "session" {
		t.Errorf("expected use 'session', got %q", cmd.Use)
	}

	expected := []string{"create", "list", "show", "start", "pause", "resume", "stop", "remove"}
	for _, name := range expected {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("session group is missing subcommand %q", name)
		}
	}
}

func TestCreateCommandFlags(t *testing.T) {
	cmd := newCreateCommand()

	flags := []string{"file", "name", "peer", "rtp-port", "peer-rtcp-port", "local", "local-rtcp-port", "rect"}
	for _, name := range flags {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("--%s flag not defined", name)
		}
	}
}

func TestControlCommandsRequireSessionID(t *testing.T) {
	constructors := map[string]func() *cobra.Command{
		"show":   newShowCommand,
		"start":  newStartCommand,
		"pause":  newPauseCommand,
		"resume": newResumeCommand,
		"stop":   newStopCommand,
		"remove": newRemoveCommand,
	}

	for name, newCmd := range constructors {
		t.Run(name, func(t *testing.T) {
			cmd := newCmd()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs([]string{})

			if err := cmd.Execute(); err == nil {
				t.Errorf("%s with no arguments should fail", name)
			}
		})
	}
}

func TestValueOrDash(t *testing.T) {
	if got := valueOrDash(""); got != "-" {
		t.Errorf("valueOrDash(\"\") = %q, want -", got)
	}
	if got := valueOrDash("lounge"); got != "lounge" {
		t.Errorf("valueOrDash(\"lounge\") = %q, want lounge", got)
	}
}

func TestPIDColumn(t *testing.T) {
	if got := pidColumn(session.Info{}); got != "-" {
		t.Errorf("pidColumn(no pid) = %q, want -", got)
	}
	if got := pidColumn(session.Info{PID: 4242}); got != "4242" {
		t.Errorf("pidColumn(4242) = %q", got)
	}
}

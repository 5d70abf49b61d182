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

package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CastdHostEnv names the environment variable selecting the daemon
// endpoint.
const CastdHostEnv = "CASTD_HOST"

// DefaultSocketPath returns the default Unix socket path for the
// daemon. It must resolve to the same path the daemon binds by default,
// so the chain mirrors the daemon's configuration defaults.
func DefaultSocketPath() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "castd", "castd.sock")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/castd.sock"
	}
	return filepath.Join(homeDir, ".castd", "castd.sock")
}

// ParseCastdHost parses a CASTD_HOST value into a transport.
// Supports:
//   - unix:///path/to/socket
//   - tcp://host:port
//
// If host is empty, returns a transport for the default socket path.
func ParseCastdHost(host string) (*Transport, error) {
	if host == "" {
		return DefaultTransport(), nil
	}

	switch {
	case strings.HasPrefix(host, "unix://"):
		return NewUnixTransport(strings.TrimPrefix(host, "unix://")), nil

	case strings.HasPrefix(host, "tcp://"):
		return NewTCPTransport(strings.TrimPrefix(host, "tcp://")), nil

	default:
		return nil, fmt.Errorf("invalid CASTD_HOST format: %s (must start with unix:// or tcp://)", host)
	}
}

// FromEnvironment creates a client configured from environment
// variables.
func FromEnvironment() (*Client, error) {
	transport, err := ParseCastdHost(os.Getenv(CastdHostEnv))
	if err != nil {
		return nil, err
	}
	return New(WithTransport(transport))
}

// DaemonNotRunningError indicates that nothing is listening where the
// daemon should be.
type DaemonNotRunningError struct {
	SocketPath string
	Err        error
}

func (e *DaemonNotRunningError) Error() string {
	return fmt.Sprintf("castd daemon is not running (socket: %s)", e.SocketPath)
}

func (e *DaemonNotRunningError) Unwrap() error {
	return e.Err
}

// Guidance returns user-friendly guidance for starting the daemon.
func (e *DaemonNotRunningError) Guidance() string {
	return `castd daemon is not running.

Start the daemon with:
  castctl daemon start    # Background
  castd                   # Foreground (for development)`
}

// IsUserVisible marks this error for display to end users.
func (e *DaemonNotRunningError) IsUserVisible() bool {
	return true
}

// UserMessage returns a user-friendly error message.
func (e *DaemonNotRunningError) UserMessage() string {
	return e.Error()
}

// Suggestion returns actionable guidance for resolving the error.
func (e *DaemonNotRunningError) Suggestion() string {
	return "start the daemon with 'castctl daemon start'"
}

// IsDaemonNotRunning checks if an error indicates the daemon is not
// running, either as our typed error or as the raw dial failure
// underneath one.
func IsDaemonNotRunning(err error) bool {
	if err == nil {
		return false
	}
	var dnr *DaemonNotRunningError
	if errors.As(err, &dnr) {
		return true
	}
	return isDialFailure(err)
}

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

package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AuditEvent is one daemon lifecycle event, written as a JSON line.
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	PID       int       `json:"pid,omitempty"`
	Version   string    `json:"version,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// AuditLog appends daemon start/stop events to a file, independent of
// the daemon's own logging so the trail survives a daemon that never
// came up.
type AuditLog struct {
	path string
}

// NewAuditLog creates an audit log writing to path.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// LogStart records a daemon start being initiated.
func (l *AuditLog) LogStart(version string) error {
	return l.write(AuditEvent{
		Event:   "start",
		Version: version,
		Success: true,
		Message: "daemon start initiated",
	})
}

// LogStartSuccess records a confirmed healthy startup.
func (l *AuditLog) LogStartSuccess(pid int, duration time.Duration) error {
	return l.write(AuditEvent{
		Event:   "start_success",
		PID:     pid,
		Success: true,
		Message: fmt.Sprintf("daemon started in %v", duration.Round(time.Millisecond)),
	})
}

// LogStartFailure records a startup that never reported healthy.
func (l *AuditLog) LogStartFailure(err error) error {
	return l.write(AuditEvent{
		Event:   "start_failure",
		Message: "daemon failed to start",
		Error:   err.Error(),
	})
}

// LogStop records a stop being initiated.
func (l *AuditLog) LogStop(pid int, force bool) error {
	msg := "daemon stop initiated"
	if force {
		msg = "daemon force stop initiated"
	}
	return l.write(AuditEvent{
		Event:   "stop",
		PID:     pid,
		Success: true,
		Message: msg,
	})
}

// LogStopSuccess records a completed shutdown.
func (l *AuditLog) LogStopSuccess(pid int, duration time.Duration) error {
	return l.write(AuditEvent{
		Event:   "stop_success",
		PID:     pid,
		Success: true,
		Message: fmt.Sprintf("daemon stopped in %v", duration.Round(time.Millisecond)),
	})
}

// LogStopFailure records a shutdown that did not complete.
func (l *AuditLog) LogStopFailure(pid int, err error) error {
	return l.write(AuditEvent{
		Event:   "stop_failure",
		PID:     pid,
		Message: "failed to stop daemon",
		Error:   err.Error(),
	})
}

// LogStalePID records a stale PID file being detected and cleared.
func (l *AuditLog) LogStalePID(pid int, reason string) error {
	return l.write(AuditEvent{
		Event:   "stale_pid_detected",
		PID:     pid,
		Success: true,
		Message: fmt.Sprintf("stale PID file removed: %s", reason),
	})
}

func (l *AuditLog) write(event AuditEvent) error {
	event.Timestamp = time.Now()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

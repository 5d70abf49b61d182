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

package errors

import (
	"fmt"
	"time"
)

// ValidationError represents user input validation failures.
// Use this for invalid user input, malformed data, or constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// SuggestText provides actionable guidance for fixing the error
	SuggestText string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// IsUserVisible marks validation failures for display to end users.
func (e *ValidationError) IsUserVisible() bool {
	return true
}

// UserMessage returns a user-friendly error message.
func (e *ValidationError) UserMessage() string {
	return e.Error()
}

// Suggestion returns actionable guidance for fixing the input.
func (e *ValidationError) Suggestion() string {
	return e.SuggestText
}

// NotFoundError represents a resource not found error.
// Use this when a requested resource does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "session", "encoder")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// BusError represents a failed method call on the control bus.
// Use this for errors originating from the encoder worker or the bus itself.
type BusError struct {
	// Method is the bus method that failed (e.g., "Configure", "Start")
	Method string

	// Name is the bus error name reported by the remote side, if any
	// (e.g., "org.freedesktop.DBus.Error.NoReply")
	Name string

	// Message is the human-readable error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *BusError) Error() string {
	msg := fmt.Sprintf("bus call %s failed", e.Method)

	if e.Name != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Name)
	}

	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}

	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *BusError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *BusError) ErrorType() string {
	return "bus"
}

// IsRetryable implements ErrorClassifier. Only configuration calls are
// safe to retry; control calls compromise the channel when they fail.
func (e *BusError) IsRetryable() bool {
	return e.Method == "Configure"
}

// SpawnError represents a failure to launch or supervise a worker process.
type SpawnError struct {
	// Command is the worker command that could not be launched
	Command string

	// Stage identifies which part of the launch failed
	// (e.g., "pipe", "start", "watcher")
	Stage string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("spawning %s failed at %s: %v", e.Command, e.Stage, e.Cause)
	}
	return fmt.Sprintf("spawning %s failed: %v", e.Command, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *SpawnError) Unwrap() error {
	return e.Cause
}

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "daemon.socket", "encoder.command")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents operation timeouts.
// Use this when an operation exceeds its configured timeout.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "daemon health check", "worker exit")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

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

package log

import (
	"log/slog"
	"time"
)

// BusCall captures one control-bus method call for logging purposes.
type BusCall struct {
	// Method is the bus method name (e.g., "Configure", "Start").
	Method string

	// Peer is the worker's bus address the call was sent to.
	Peer string

	// Started is when the call was issued.
	Started time.Time

	// Err is the call outcome; nil means success.
	Err error
}

// LogBusCall logs a completed control-bus call at the appropriate level.
// Successful calls log at debug, failures at warn.
func LogBusCall(logger *slog.Logger, call BusCall) {
	attrs := []any{
		EventKey, "bus_call",
		"method", call.Method,
		PeerKey, call.Peer,
		DurationKey, time.Since(call.Started).Milliseconds(),
	}

	if call.Err != nil {
		attrs = append(attrs, "error", call.Err.Error())
		logger.Warn("bus call failed", attrs...)
		return
	}

	logger.Debug("bus call completed", attrs...)
}

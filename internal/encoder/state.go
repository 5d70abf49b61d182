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

package encoder

import (
	"encoding/json"
	"fmt"
)

// State is the lifecycle state of one worker controller.
//
// The normal progression is Null -> Spawned -> Configured -> Ready ->
// Started <-> Paused. Terminated is reachable from every state and is
// terminal: once a controller reaches it, no further transition occurs.
type State int

const (
	// StateNull is the initial state before the handshake completes.
	StateNull State = iota
	// StateSpawned means the worker reported its bus address and the
	// control connection is up.
	StateSpawned
	// StateConfigured means the worker accepted its session parameters.
	StateConfigured
	// StateReady means the worker's pipeline is prepared to stream.
	StateReady
	// StateStarted means the worker is streaming.
	StateStarted
	// StatePaused means streaming is suspended.
	StatePaused
	// StateTerminated means the worker is gone; it is the terminal state.
	StateTerminated
)

var stateNames = map[State]string{
	StateNull:       "NULL",
	StateSpawned:    "SPAWNED",
	StateConfigured: "CONFIGURED",
	StateReady:      "READY",
	StateStarted:    "STARTED",
	StatePaused:     "PAUSED",
	StateTerminated: "TERMINATED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown encoder state"
}

// IsTerminal reports whether no further transition can occur from s.
func (s State) IsTerminal() bool {
	return s == StateTerminated
}

// MarshalJSON encodes the state as its name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state from its name. Clients decode session
// snapshots sent by the daemon, so this accepts exactly what
// MarshalJSON produces.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for st, n := range stateNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown encoder state %q", name)
}

// stateFromWire maps a worker-reported state code to a State. Workers
// never report SPAWNED; that transition is local to the handshake, so
// the wire codes are offset from the internal values past code 0.
// Unknown codes are a recoverable condition for the caller to log and
// ignore, not a program error.
func stateFromWire(code int32) (State, bool) {
	switch code {
	case 0:
		return StateNull, true
	case 1:
		return StateConfigured, true
	case 2:
		return StateReady, true
	case 3:
		return StateStarted, true
	case 4:
		return StatePaused, true
	case 5:
		return StateTerminated, true
	}
	return StateNull, false
}

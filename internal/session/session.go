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
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/castd/castd/internal/encoder"
	"github.com/castd/castd/internal/lifecycle"
	"github.com/castd/castd/internal/log"
	"github.com/castd/castd/internal/metrics"
)

// Session couples one encoder worker with the stream parameters it was
// created for. All fields set by the manager are immutable after Create
// returns; live state is read through the controller.
type Session struct {
	// ID uniquely identifies the session for the daemon's lifetime.
	ID string

	// Name is a human-friendly label, defaulted when the request
	// leaves it empty.
	Name string

	// Config holds the stream parameters the worker was configured with.
	Config encoder.Config

	// CreatedAt is when the session was accepted.
	CreatedAt time.Time

	ctl *encoder.Controller
	log *slog.Logger

	// spawned closes when the worker finishes its handshake and the
	// control bus is attached; terminated closes when the controller
	// reaches its terminal state. Each transition happens at most once
	// per controller, so plain close calls are safe.
	spawned    chan struct{}
	terminated chan struct{}

	mu           sync.Mutex
	startedAt    time.Time
	terminatedAt time.Time
}

// Info is a point-in-time snapshot of a session, shaped for the API.
type Info struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	State        encoder.State           `json:"state"`
	PID          int                     `json:"pid,omitempty"`
	Peer         string                  `json:"peer,omitempty"`
	Config       encoder.Config          `json:"config"`
	CreatedAt    time.Time               `json:"created_at"`
	StartedAt    *time.Time              `json:"started_at,omitempty"`
	TerminatedAt *time.Time              `json:"terminated_at,omitempty"`
	Error        string                  `json:"error,omitempty"`
	Process      *lifecycle.ProcessStats `json:"process,omitempty"`
}

// observe is the controller's state observer. It runs on the controller
// event goroutine, strictly ordered with every other callback.
func (s *Session) observe(c *encoder.Controller, st encoder.State) {
	metrics.RecordStateTransition(st.String())
	s.log.Info("session state changed", log.String(log.StateKey, st.String()))

	s.mu.Lock()
	switch {
	case st == encoder.StateStarted && s.startedAt.IsZero():
		s.startedAt = time.Now()
	case st.IsTerminal():
		s.terminatedAt = time.Now()
	}
	s.mu.Unlock()

	switch {
	case st == encoder.StateSpawned:
		close(s.spawned)
	case st.IsTerminal():
		close(s.terminated)
	}
}

// State reports the current lifecycle state of the session's worker.
func (s *Session) State() encoder.State {
	return s.ctl.State()
}

// Done closes once the worker is gone and the session holds no more
// resources beyond its table entry.
func (s *Session) Done() <-chan struct{} {
	return s.ctl.Done()
}

// Start asks the worker to begin streaming.
func (s *Session) Start(ctx context.Context) error {
	if err := s.ctl.Start(ctx); err != nil {
		metrics.RecordControlError("start")
		return err
	}
	return nil
}

// Pause suspends streaming without tearing the pipeline down.
func (s *Session) Pause(ctx context.Context) error {
	if err := s.ctl.Pause(ctx); err != nil {
		metrics.RecordControlError("pause")
		return err
	}
	return nil
}

// Resume continues a paused stream. On the wire this is the same call
// as Start; workers treat Start from PAUSED as a resume.
func (s *Session) Resume(ctx context.Context) error {
	if err := s.ctl.Start(ctx); err != nil {
		metrics.RecordControlError("resume")
		return err
	}
	return nil
}

// Stop ends the stream and begins worker teardown. The session stays
// listed until removed so its final state remains inspectable.
func (s *Session) Stop(ctx context.Context) error {
	if err := s.ctl.Stop(ctx); err != nil {
		metrics.RecordControlError("stop")
		return err
	}
	return nil
}

// releaseTimeout bounds release on cleanup paths that have no caller
// context worth honoring.
const releaseTimeout = 2 * time.Second

// release ends the worker and drops the manager's controller reference.
// The manager calls it exactly once per session, after unlisting it.
func (s *Session) release(ctx context.Context) {
	if !s.State().IsTerminal() {
		// Errors are logged by the controller and always leave the
		// worker signalled, which is all release needs.
		_ = s.ctl.Stop(ctx)
	}
	s.ctl.Unref()
}

func (s *Session) releaseBounded() {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	s.release(ctx)
}

// Info snapshots the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	startedAt := s.startedAt
	terminatedAt := s.terminatedAt
	s.mu.Unlock()

	info := Info{
		ID:        s.ID,
		Name:      s.Name,
		State:     s.ctl.State(),
		PID:       s.ctl.Pid(),
		Peer:      s.ctl.Peer(),
		Config:    s.Config,
		CreatedAt: s.CreatedAt,
	}
	if err := s.ctl.Err(); err != nil {
		info.Error = err.Error()
	}
	if !startedAt.IsZero() {
		info.StartedAt = &startedAt
	}
	if !terminatedAt.IsZero() {
		info.TerminatedAt = &terminatedAt
	}
	return info
}

// Detail is Info plus a live resource sample of the worker process.
// The sample is best effort; a worker that exited between the snapshot
// and the probe simply yields no process block.
func (s *Session) Detail() Info {
	info := s.Info()
	if info.PID > 0 && !info.State.IsTerminal() {
		info.Process = lifecycle.SampleProcess(int32(info.PID))
	}
	return info
}

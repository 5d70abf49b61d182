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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/castd/castd/internal/encoder"
	"github.com/castd/castd/internal/log"
	"github.com/castd/castd/internal/metrics"
	castderrors "github.com/castd/castd/pkg/errors"
)

const (
	// BusSystem launches workers against the system message bus.
	BusSystem = "system"
	// BusSession launches workers against the user's session bus.
	BusSession = "session"

	// DefaultHandshakeTimeout bounds how long a freshly spawned worker
	// gets to report its bus address before it is given up on.
	DefaultHandshakeTimeout = 5 * time.Second

	// maxPort is the largest valid port number.
	maxPort = 65535
)

var (
	// ErrManagerClosed reports a create attempted after Shutdown.
	ErrManagerClosed = errors.New("session: manager is shut down")

	// ErrSessionLimit reports that MaxSessions live sessions exist.
	ErrSessionLimit = errors.New("session: session limit reached")
)

// Config carries the manager's launch policy. The zero value is usable:
// default worker command, system bus, no session cap.
type Config struct {
	// WorkerCommand is the encoder binary launched per session.
	WorkerCommand string

	// WorkerArgs are extra arguments passed to the worker command.
	WorkerArgs []string

	// Bus selects the message bus workers are dialed on, BusSystem or
	// BusSession. Anything else falls back to the system bus.
	Bus string

	// GracePeriod is how long a stopped worker may linger before it is
	// killed. Zero means the encoder default.
	GracePeriod time.Duration

	// HandshakeTimeout bounds the wait for a worker's bus address.
	// Zero means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// Display is the display server workers capture from.
	Display string

	// Authority is the display credential file handed to workers.
	Authority string

	// Debug raises worker log verbosity.
	Debug bool

	// LocalAddress is the default source address for sessions whose
	// request does not name one.
	LocalAddress string

	// MaxSessions caps live sessions. Zero means no cap.
	MaxSessions int

	// OpenBus overrides the bus connection per controller. Tests use
	// this seam; when nil the Bus field decides.
	OpenBus encoder.BusOpener
}

// CreateRequest is a request for a new session. The yaml tags serve
// file-based creation in the CLI.
type CreateRequest struct {
	// Name is an optional human-friendly label.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Config holds the stream parameters for the worker.
	Config encoder.Config `json:"config" yaml:"config"`
}

// Manager owns every session in the daemon: it spawns their workers,
// tracks their state and guarantees each worker is released exactly
// once, whether by an explicit remove or by shutdown.
type Manager struct {
	cfg  Config
	base *slog.Logger
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	pending  int
	closed   bool
}

// NewManager returns an empty manager.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.WorkerCommand == "" {
		cfg.WorkerCommand = encoder.DefaultWorkerCommand
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.OpenBus == nil {
		cfg.OpenBus = openerFor(cfg.Bus)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		base:     logger,
		log:      log.WithComponent(logger, "session"),
		sessions: make(map[string]*Session),
	}
}

func openerFor(bus string) encoder.BusOpener {
	if bus == BusSession {
		return encoder.SessionBus
	}
	return encoder.SystemBus
}

// Create spawns a worker, waits for its handshake and configures it
// with the requested parameters. On success the session is listed and
// returned; on any failure the worker is already being torn down and
// nothing is listed.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	cfg := req.Config
	if cfg.LocalAddress == "" {
		cfg.LocalAddress = m.cfg.LocalAddress
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if err := m.reserve(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	name := req.Name
	if name == "" {
		name = "session-" + id[:8]
	}

	s, err := m.launch(ctx, id, name, cfg)
	if err != nil {
		m.unreserve()
		return nil, err
	}

	if err := m.install(s); err != nil {
		// Shutdown won the race; the worker must not outlive it.
		s.releaseBounded()
		return nil, err
	}

	metrics.RecordSessionCreated()
	m.log.Info("session created",
		slog.String(log.SessionIDKey, s.ID),
		slog.String("name", s.Name),
		slog.String("peer_address", cfg.PeerAddress),
		slog.Int(log.PIDKey, s.ctl.Pid()))
	return s, nil
}

// reserve claims a session slot ahead of the spawn, so concurrent
// creates cannot overshoot MaxSessions while workers start up.
func (m *Manager) reserve() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if m.cfg.MaxSessions > 0 && len(m.sessions)+m.pending >= m.cfg.MaxSessions {
		return ErrSessionLimit
	}
	m.pending++
	return nil
}

func (m *Manager) unreserve() {
	m.mu.Lock()
	m.pending--
	m.mu.Unlock()
}

// install trades the reservation for a table entry.
func (m *Manager) install(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending--
	if m.closed {
		return ErrManagerClosed
	}
	m.sessions[s.ID] = s
	return nil
}

// launch runs the spawn-handshake-configure sequence. The returned
// session holds the one controller reference; error returns have
// already released it.
func (m *Manager) launch(ctx context.Context, id, name string, cfg encoder.Config) (*Session, error) {
	s := &Session{
		ID:         id,
		Name:       name,
		Config:     cfg,
		CreatedAt:  time.Now(),
		log:        log.WithSessionID(m.log, id),
		spawned:    make(chan struct{}),
		terminated: make(chan struct{}),
	}

	ctl, err := encoder.Spawn(encoder.Options{
		Command:     m.cfg.WorkerCommand,
		Args:        m.cfg.WorkerArgs,
		Display:     m.cfg.Display,
		Authority:   m.cfg.Authority,
		Debug:       m.cfg.Debug,
		Observer:    s.observe,
		Logger:      log.WithSessionID(m.base, id),
		OpenBus:     m.cfg.OpenBus,
		GracePeriod: m.cfg.GracePeriod,
	})
	if err != nil {
		metrics.RecordSpawn("error")
		return nil, err
	}
	metrics.RecordSpawn("ok")
	s.ctl = ctl

	handshake := time.NewTimer(m.cfg.HandshakeTimeout)
	defer handshake.Stop()

	select {
	case <-s.spawned:
	case <-s.terminated:
		cause := ctl.Err()
		if cause == nil {
			cause = errors.New("worker exited during handshake")
		}
		ctl.Unref()
		return nil, &castderrors.SpawnError{
			Command: m.cfg.WorkerCommand,
			Stage:   "handshake",
			Cause:   cause,
		}
	case <-handshake.C:
		s.log.Warn("worker handshake timed out")
		s.releaseBounded()
		return nil, &castderrors.TimeoutError{
			Operation: "worker handshake",
			Duration:  m.cfg.HandshakeTimeout,
		}
	case <-ctx.Done():
		s.releaseBounded()
		return nil, ctx.Err()
	}

	if err := ctl.Configure(ctx, cfg); err != nil {
		metrics.RecordControlError("configure")
		s.log.Warn("configuring worker failed", log.Error(err))
		s.releaseBounded()
		return nil, err
	}

	return s, nil
}

// Get returns the identified session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &castderrors.NotFoundError{Resource: "session", ID: id}
	}
	return s, nil
}

// List returns every session, oldest first.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count reports how many sessions are listed.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start begins streaming for the identified session.
func (m *Manager) Start(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Start(ctx)
}

// Pause suspends streaming for the identified session.
func (m *Manager) Pause(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Pause(ctx)
}

// Resume continues a paused session.
func (m *Manager) Resume(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Resume(ctx)
}

// Stop ends the identified session's stream. The entry stays listed so
// its final state can still be read; Remove drops it.
func (m *Manager) Stop(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Stop(ctx)
}

// Remove unlists the session and releases its worker.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return &castderrors.NotFoundError{Resource: "session", ID: id}
	}

	s.release(ctx)
	metrics.RecordSessionRemoved(time.Since(s.CreatedAt).Seconds())
	m.log.Info("session removed", slog.String(log.SessionIDKey, id))
	return nil
}

// Shutdown stops every session and waits for their workers to go away,
// bounded by ctx. Creates are refused from the first moment, including
// ones already past their limit check.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	if len(sessions) == 0 {
		return nil
	}
	m.log.Info("stopping all sessions", slog.Int("count", len(sessions)))

	start := time.Now()
	var stuck atomic.Int32
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			done := s.Done()
			s.release(ctx)
			select {
			case <-done:
				metrics.RecordSessionRemoved(time.Since(s.CreatedAt).Seconds())
			case <-ctx.Done():
				stuck.Add(1)
				s.log.Warn("worker still running at shutdown deadline")
			}
		}(s)
	}
	wg.Wait()

	if n := stuck.Load(); n > 0 {
		return &castderrors.TimeoutError{
			Operation: fmt.Sprintf("shutdown of %d sessions", n),
			Duration:  time.Since(start),
		}
	}
	return nil
}

// validateConfig rejects parameter sets the worker contract cannot
// express. Addresses are opaque strings here; the worker resolves them.
func validateConfig(cfg encoder.Config) error {
	if cfg.PeerAddress == "" {
		return &castderrors.ValidationError{
			Field:       "peer_address",
			Message:     "peer address is required",
			SuggestText: "set peer_address to the sink's network address",
		}
	}
	if cfg.RTPPort == 0 || cfg.RTPPort > maxPort {
		return &castderrors.ValidationError{
			Field:       "rtp_port",
			Message:     fmt.Sprintf("rtp port %d is out of range", cfg.RTPPort),
			SuggestText: "use a port between 1 and 65535",
		}
	}
	if cfg.PeerRTCPPort > maxPort {
		return &castderrors.ValidationError{
			Field:       "peer_rtcp_port",
			Message:     fmt.Sprintf("rtcp port %d is out of range", cfg.PeerRTCPPort),
			SuggestText: "use a port between 1 and 65535, or 0 to disable RTCP",
		}
	}
	if cfg.LocalAddress == "" {
		return &castderrors.ValidationError{
			Field:       "local_address",
			Message:     "local address is required",
			SuggestText: "set local_address, or configure a daemon-wide default",
		}
	}
	if cfg.LocalRTCPPort > maxPort {
		return &castderrors.ValidationError{
			Field:       "local_rtcp_port",
			Message:     fmt.Sprintf("rtcp port %d is out of range", cfg.LocalRTCPPort),
			SuggestText: "use a port between 1 and 65535, or 0 to disable RTCP",
		}
	}
	if cfg.Rect != nil && (cfg.Rect.Width == 0 || cfg.Rect.Height == 0) {
		return &castderrors.ValidationError{
			Field:       "rect",
			Message:     "projected region must have non-zero width and height",
			SuggestText: "omit rect to capture the whole display",
		}
	}
	return nil
}

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
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/castd/castd/internal/log"
)

var (
	// ErrTerminated is returned for operations on a fully released controller.
	ErrTerminated = errors.New("encoder: controller terminated")
	// ErrNotConnected is returned for bus operations before the handshake
	// has delivered the worker's address.
	ErrNotConnected = errors.New("encoder: control bus not connected")
)

// Observer receives every accepted state transition of a controller. It
// runs synchronously on the controller's event goroutine before the
// triggering event finishes, so it must not call Configure, Start, Pause
// or Stop; Ref, Unref, State, Peer and Err are safe. The controller holds
// an extra reference for the duration of the callback, so an observer may
// release the last external reference without freeing the controller out
// from under itself.
type Observer func(c *Controller, state State)

// Options configure a worker spawn.
type Options struct {
	// Command is the worker binary. Defaults to DefaultWorkerCommand.
	Command string

	// Args are extra arguments for the worker. Workers normally take
	// none; this exists for test harnesses.
	Args []string

	// Display is the display target exported to the worker as DISPLAY.
	Display string

	// Authority is the credential file exported as XAUTHORITY when set.
	Authority string

	// Debug raises the worker's own log verbosity.
	Debug bool

	// Env replaces the computed child environment entirely when non-nil.
	Env []string

	// Observer is invoked on every accepted state transition.
	Observer Observer

	// Logger receives the controller's structured logs.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// OpenBus opens the control-bus connection once the handshake has
	// delivered the worker's address. Defaults to SystemBus.
	OpenBus BusOpener

	// GracePeriod is how long a stopped worker gets to exit before the
	// grace timer kills it. Defaults to DefaultGracePeriod.
	GracePeriod time.Duration
}

// Controller supervises one encoder worker process. Create one with
// Spawn; the returned controller carries one reference owned by the
// caller, to be dropped with Unref when the caller is done with it.
type Controller struct {
	opts Options
	log  *slog.Logger

	refs   atomic.Int64
	events chan func()
	done   chan struct{}

	mu      sync.Mutex // guards state, peer and lastErr for external readers
	state   State
	peer    string
	lastErr error

	// The fields below are confined to the event goroutine.
	cmd       *exec.Cmd
	pipe      *os.File
	conn      Conn
	obj       dbus.BusObject
	signals   chan *dbus.Signal
	childReg  *registration
	pipeReg   *registration
	stateReg  *registration
	goneReg   *registration
	grace     *graceTimer
	signalled bool
}

// registration ties one asynchronous registration (watcher, timer or
// subscription) to one held reference. retire releases that reference
// exactly once no matter how many paths reach it.
type registration struct {
	c    *Controller
	once sync.Once
}

func (r *registration) retire() {
	r.once.Do(r.c.unref)
}

// register acquires a reference on behalf of a new registration.
func (c *Controller) register() *registration {
	c.ref()
	return &registration{c: c}
}

// Ref acquires an additional reference and returns the controller.
func (c *Controller) Ref() *Controller {
	c.ref()
	return c
}

// Unref releases one reference. When the last reference is gone the
// controller closes its bus connection, clears the peer address and
// becomes unusable; Done is closed at that point. Releasing more
// references than were acquired panics.
func (c *Controller) Unref() {
	c.unref()
}

func (c *Controller) ref() {
	c.refs.Add(1)
}

func (c *Controller) unref() {
	n := c.refs.Add(-1)
	if n < 0 {
		panic("encoder: controller released more times than acquired")
	}
	if n == 0 {
		// The last release can happen inside an event, when a retiring
		// registration drops the final reference; posting from a fresh
		// goroutine keeps a saturated queue from wedging the loop.
		go c.post(c.finalize)
	}
}

// Done is closed once the controller has been fully released and its
// resources reclaimed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Peer returns the worker's bus address, or "" before the handshake has
// completed.
func (c *Controller) Peer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Err returns the error behind a failure-induced termination, if any.
// The observer deliberately does not distinguish orderly shutdown from
// failure; this accessor exists for diagnostics and logging.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Pid returns the worker's process ID, or 0 when no process was started.
func (c *Controller) Pid() int {
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Pid
	}
	return 0
}

func (c *Controller) recordErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		c.lastErr = err
	}
}

// loop is the controller's event goroutine. Everything that mutates
// controller state runs here, one event at a time, in arrival order.
func (c *Controller) loop() {
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.done:
			return
		}
	}
}

// post queues fn for the event goroutine. It reports false when the
// controller has already been finalized.
func (c *Controller) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// run executes fn on the event goroutine and waits for its result, so
// callers observe plain blocking behavior.
func (c *Controller) run(fn func() error) error {
	errc := make(chan error, 1)
	if !c.post(func() { errc <- fn() }) {
		return ErrTerminated
	}
	select {
	case err := <-errc:
		return err
	case <-c.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrTerminated
		}
	}
}

// setState applies a lifecycle transition. Same-state transitions are
// dropped, and nothing moves out of the terminal state. The observer
// runs under a temporary extra reference so it may release the last
// external reference mid-callback.
func (c *Controller) setState(s State) {
	c.mu.Lock()
	cur := c.state
	if cur.IsTerminal() || cur == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.log.Debug("state change",
		slog.String("from", cur.String()),
		slog.String("to", s.String()))

	if s.IsTerminal() {
		// A dead worker cannot be killed any deader.
		c.cancelGraceTimer()
	}

	if c.opts.Observer != nil {
		c.ref()
		defer c.unref()
		c.opts.Observer(c, s)
	}
}

// teardown retires every remaining registration. It runs after a child
// exit and after a disappearance with no child left; both paths may have
// already retired some of these, so every step tolerates absence.
func (c *Controller) teardown() {
	if c.childReg != nil {
		reg := c.childReg
		c.childReg = nil
		reg.retire()
	}

	c.cancelGraceTimer()
	c.closePipe()

	if c.goneReg != nil {
		if c.conn != nil {
			_ = c.conn.RemoveMatchSignal(disappearMatch(c.Peer())...)
		}
		reg := c.goneReg
		c.goneReg = nil
		reg.retire()
	}

	if c.stateReg != nil {
		if c.conn != nil {
			_ = c.conn.RemoveMatchSignal(stateChangeMatch(c.Peer())...)
		}
		reg := c.stateReg
		c.stateReg = nil
		reg.retire()
	}

	if c.signals != nil {
		if c.conn != nil {
			c.conn.RemoveSignal(c.signals)
		}
		c.signals = nil
	}
}

// finalize runs as the last event once the reference count hits zero:
// no registration exists anymore, so nothing can touch the controller
// after it.
func (c *Controller) finalize() {
	c.mu.Lock()
	c.peer = ""
	c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.Debug("closing control bus", log.Error(err))
		}
		c.conn = nil
		c.obj = nil
	}

	close(c.done)
}

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
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/castd/castd/internal/log"
	castderrors "github.com/castd/castd/pkg/errors"
)

const (
	// DefaultWorkerCommand is the encoder binary launched for a session.
	DefaultWorkerCommand = "castd-encoder"

	// DefaultGracePeriod is how long a stopped worker gets to exit on its
	// own before the grace timer kills it.
	DefaultGracePeriod = time.Second

	// HandshakeFD is the descriptor the worker writes its bus address to.
	// Spawn places the pipe's write end there; the number is part of the
	// worker contract and never changes.
	HandshakeFD = 3

	// workerDebugEnv raises the worker's log verbosity when set.
	workerDebugEnv = "CASTD_ENCODER_LOG_LEVEL"
)

// newController assembles a controller with defaults applied, the
// caller's single reference held and the event goroutine running.
func newController(opts Options) *Controller {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.OpenBus == nil {
		opts.OpenBus = SystemBus
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		opts:   opts,
		log:    log.WithComponent(logger, "encoder"),
		events: make(chan func(), 16),
		done:   make(chan struct{}),
		state:  StateNull,
	}
	c.refs.Store(1)
	go c.loop()
	return c
}

// Spawn launches a worker process and returns its controller. The worker
// gets a fresh environment carrying the display target and credentials,
// its own process group, and the handshake pipe's write end on
// HandshakeFD. The returned controller is in StateNull; it moves to
// StateSpawned once the worker reports its bus address.
//
// Spawn failures tear down any partially created resources before
// returning. After a successful return the caller owns one reference.
func Spawn(opts Options) (*Controller, error) {
	if opts.Command == "" {
		opts.Command = DefaultWorkerCommand
	}

	c := newController(opts)

	rd, wr, err := os.Pipe()
	if err != nil {
		c.Unref()
		return nil, &castderrors.SpawnError{Command: opts.Command, Stage: "pipe", Cause: err}
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	if cmd.Env == nil {
		env := []string{"DISPLAY=" + opts.Display}
		if opts.Authority != "" {
			env = append(env, "XAUTHORITY="+opts.Authority)
		}
		if opts.Debug {
			env = append(env, workerDebugEnv+"=debug")
		}
		cmd.Env = env
	}
	// ExtraFiles[0] lands on fd 3 in the child, which is HandshakeFD.
	cmd.ExtraFiles = []*os.File{wr}
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		rd.Close()
		wr.Close()
		c.Unref()
		return nil, &castderrors.SpawnError{Command: opts.Command, Stage: "start", Cause: err}
	}

	// The child holds its own copy of the write end; keeping ours open
	// would starve the read side of its EOF.
	wr.Close()

	c.cmd = cmd
	c.pipe = rd
	c.childReg = c.register()
	c.pipeReg = c.register()

	go c.reapChild()
	go c.watchHandshake(rd)

	c.log.Info("worker spawned",
		slog.Int(log.PIDKey, cmd.Process.Pid),
		slog.String("command", opts.Command))

	return c, nil
}

// reapChild waits for the worker to exit and hands the result to the
// event goroutine. Exit is only ever observed here; nothing else may
// assume the process is gone after signalling it.
func (c *Controller) reapChild() {
	err := c.cmd.Wait()
	c.post(func() { c.handleChildExit(err) })
}

func (c *Controller) handleChildExit(waitErr error) {
	if c.childReg == nil {
		return
	}

	if waitErr != nil {
		// An exit forced by our own signal is not a worker failure.
		if !c.signalled {
			c.recordErr(waitErr)
		}
		c.log.Info("worker terminated",
			slog.Int(log.PIDKey, c.Pid()),
			log.Error(waitErr))
	} else {
		c.log.Info("worker terminated", slog.Int(log.PIDKey, c.Pid()))
	}

	c.setState(StateTerminated)
	c.teardown()
}

// killChild signals the worker's process group, SIGTERM when graceful and
// SIGKILL otherwise. It reports whether a child was present to signal; a
// true result never means the process has exited, only that the signal
// was attempted.
func (c *Controller) killChild(graceful bool) (bool, error) {
	if c.childReg == nil {
		return false, nil
	}

	sig := syscall.SIGKILL
	if graceful {
		sig = syscall.SIGTERM
	}
	if err := syscall.Kill(-c.cmd.Process.Pid, sig); err != nil {
		return true, err
	}
	c.signalled = true
	return true, nil
}

// killChildLogged is killChild for callback paths, where the error has
// no caller to travel to.
func (c *Controller) killChildLogged(graceful bool) bool {
	signalled, err := c.killChild(graceful)
	if err != nil {
		c.log.Warn("failed to signal worker",
			slog.Int(log.PIDKey, c.Pid()),
			log.Error(err))
	}
	return signalled
}

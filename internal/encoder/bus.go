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
	"context"
	"errors"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/castd/castd/internal/log"
	castderrors "github.com/castd/castd/pkg/errors"
)

const (
	// BusInterface is the control interface every worker exports.
	BusInterface = "org.castd.Encoder"
	// BusPath is the object path every worker exports it at.
	BusPath dbus.ObjectPath = "/org/castd/encoder"

	// stateProperty is the worker property mirrored into the state machine.
	stateProperty = "State"

	busService         = "org.freedesktop.DBus"
	busPath            = dbus.ObjectPath("/org/freedesktop/DBus")
	propsInterface     = "org.freedesktop.DBus.Properties"
	propsChangedMember = "PropertiesChanged"
	ownerChangedMember = "NameOwnerChanged"
)

// Conn is the slice of a message-bus connection the controller needs.
// *dbus.Conn satisfies it directly; tests substitute fakes.
type Conn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	AddMatchSignal(opts ...dbus.MatchOption) error
	RemoveMatchSignal(opts ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

// BusOpener opens the control-bus connection for one controller.
type BusOpener func() (Conn, error)

// SystemBus opens a private connection to the system message bus, where
// workers publish their addresses. It is the default opener.
func SystemBus() (Conn, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// SessionBus opens a private connection to the user's session bus, for
// deployments that run workers inside the user session.
func SessionBus() (Conn, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// stateChangeMatch scopes the worker's property-change notifications.
func stateChangeMatch(peer string) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender(peer),
		dbus.WithMatchObjectPath(BusPath),
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember(propsChangedMember),
		dbus.WithMatchArg(0, BusInterface),
	}
}

// disappearMatch scopes name-owner changes to the worker's own address.
func disappearMatch(peer string) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender(busService),
		dbus.WithMatchObjectPath(busPath),
		dbus.WithMatchInterface(busService),
		dbus.WithMatchMember(ownerChangedMember),
		dbus.WithMatchArg(0, peer),
	}
}

// connectBus opens the control connection and installs both
// subscriptions, each holding one reference. Any failure unwinds fully:
// no half-subscribed connection survives.
func (c *Controller) connectBus(peer string) error {
	conn, err := c.opts.OpenBus()
	if err != nil {
		return err
	}

	if err := conn.AddMatchSignal(stateChangeMatch(peer)...); err != nil {
		conn.Close()
		return err
	}
	stateReg := c.register()

	if err := conn.AddMatchSignal(disappearMatch(peer)...); err != nil {
		_ = conn.RemoveMatchSignal(stateChangeMatch(peer)...)
		stateReg.retire()
		conn.Close()
		return err
	}

	c.conn = conn
	c.obj = conn.Object(peer, BusPath)
	c.stateReg = stateReg
	c.goneReg = c.register()

	ch := make(chan *dbus.Signal, 16)
	conn.Signal(ch)
	c.signals = ch
	go c.readSignals(ch)

	return nil
}

// readSignals pumps bus signals into the event goroutine. It exits when
// the signal channel closes with the connection or when the controller
// is finalized.
func (c *Controller) readSignals(ch chan *dbus.Signal) {
	for {
		select {
		case sig, open := <-ch:
			if !open {
				return
			}
			if !c.post(func() { c.handleSignal(sig) }) {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Controller) handleSignal(sig *dbus.Signal) {
	if c.conn == nil {
		return
	}
	switch sig.Name {
	case propsInterface + "." + propsChangedMember:
		c.handlePropertiesChanged(sig)
	case busService + "." + ownerChangedMember:
		c.handleNameOwnerChanged(sig)
	}
}

// handlePropertiesChanged mirrors the worker's self-reported state. The
// body is [interface, changed properties, invalidated]; only the state
// property is consulted, and unknown codes change nothing.
func (c *Controller) handlePropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	if _, ok := sig.Body[0].(string); !ok {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	v, ok := changed[stateProperty]
	if !ok {
		return
	}
	code, ok := v.Value().(int32)
	if !ok {
		c.log.Error("worker reported non-integer state", log.String("value", v.String()))
		return
	}

	s, ok := stateFromWire(code)
	if !ok {
		c.log.Error("worker entered unknown state", log.Int("code", int(code)))
		return
	}

	c.setState(s)
}

// handleNameOwnerChanged reacts to the worker vanishing from the bus.
// With a child still supervised the kill attempt suffices; the child
// exit completes teardown. Only with no child left does the controller
// terminate on the spot.
func (c *Controller) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)
	if name == "" || name != c.Peer() || newOwner != "" {
		return
	}

	c.log.Info("worker disappeared from bus", log.String(log.PeerKey, name))
	c.recordErr(errors.New("encoder: worker vanished from control bus"))

	signalled, err := c.killChild(true)
	if err != nil {
		// The child reaper still owns teardown.
		c.log.Warn("failed to signal worker after disappearance", log.Error(err))
		return
	}
	if signalled {
		return
	}

	c.setState(StateTerminated)
	c.teardown()
}

// callMethod issues one method call on the worker's control interface
// and reports the outcome as a BusError carrying the remote error name
// and message when the failure came from the far side.
func (c *Controller) callMethod(ctx context.Context, method string, args ...interface{}) error {
	if c.obj == nil {
		return ErrNotConnected
	}

	started := time.Now()
	call := c.obj.CallWithContext(ctx, BusInterface+"."+method, 0, args...)
	log.LogBusCall(c.log, log.BusCall{
		Method:  method,
		Peer:    c.Peer(),
		Started: started,
		Err:     call.Err,
	})
	if call.Err != nil {
		return busErrorFrom(method, call.Err)
	}
	return nil
}

func busErrorFrom(method string, err error) error {
	be := &castderrors.BusError{Method: method, Cause: err}

	var derr dbus.Error
	if errors.As(err, &derr) {
		be.Name = derr.Name
		if len(derr.Body) > 0 {
			if msg, ok := derr.Body[0].(string); ok {
				be.Message = msg
			}
		}
	} else {
		be.Message = err.Error()
	}
	return be
}

// Configure delivers the session parameters to the worker. A failed
// configure leaves the worker running; the parameters may be corrected
// and the call retried.
func (c *Controller) Configure(ctx context.Context, cfg Config) error {
	return c.run(func() error {
		return c.callMethod(ctx, "Configure", cfg.payload())
	})
}

// Start asks the worker to begin streaming. On failure the control
// channel is no longer trusted and the worker is signalled before the
// error returns.
func (c *Controller) Start(ctx context.Context) error {
	return c.controlCall(ctx, "Start")
}

// Pause suspends streaming, with the same failure handling as Start.
func (c *Controller) Pause(ctx context.Context) error {
	return c.controlCall(ctx, "Pause")
}

func (c *Controller) controlCall(ctx context.Context, method string) error {
	return c.run(func() error {
		if err := c.callMethod(ctx, method); err != nil {
			// The failure ends the worker, so it is also the reason the
			// session died.
			c.recordErr(err)
			c.killChildLogged(true)
			return err
		}
		return nil
	})
}

// Stop asks the worker to finish up. Every stop ends with a termination
// attempt: a failed call signals the worker immediately like Start and
// Pause do, and a successful call both signals it and arms the grace
// timer as the forceful fallback should it linger past the grace period.
func (c *Controller) Stop(ctx context.Context) error {
	return c.run(func() error {
		if err := c.callMethod(ctx, "Stop"); err != nil {
			c.recordErr(err)
			c.killChildLogged(true)
			return err
		}

		c.armGraceTimer()
		c.killChildLogged(true)
		return nil
	})
}

// graceTimer is the one-shot fallback armed by a successful Stop.
type graceTimer struct {
	reg   *registration
	timer *time.Timer
}

func (c *Controller) armGraceTimer() {
	// At most one timer is ever outstanding.
	c.cancelGraceTimer()

	gt := &graceTimer{reg: c.register()}
	gt.timer = time.AfterFunc(c.opts.GracePeriod, func() {
		c.post(func() { c.fireGraceTimer(gt) })
	})
	c.grace = gt
}

func (c *Controller) cancelGraceTimer() {
	if c.grace == nil {
		return
	}
	gt := c.grace
	c.grace = nil
	gt.timer.Stop()
	gt.reg.retire()
}

// fireGraceTimer escalates to SIGKILL when the worker outlives the grace
// period. A stale firing, one that lost the race with its own
// cancellation, is dropped; an already-gone child makes the kill a no-op.
func (c *Controller) fireGraceTimer(gt *graceTimer) {
	if c.grace != gt {
		return
	}
	c.grace = nil

	c.log.Info("worker outlived grace period, killing",
		log.Int(log.PIDKey, c.Pid()))
	c.killChildLogged(false)

	gt.reg.retire()
}

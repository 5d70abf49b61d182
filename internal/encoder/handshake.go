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
	"io"
	"os"
	"strings"

	"github.com/castd/castd/internal/log"
)

// handshakeBufSize bounds the handshake payload. Bus addresses are tiny;
// anything that does not fit here is garbage anyway.
const handshakeBufSize = 1024

// watchHandshake performs the single read the handshake contract allows:
// the worker writes its bus address once, so the first thing the pipe
// yields, data, EOF or error, settles the handshake.
func (c *Controller) watchHandshake(rd *os.File) {
	buf := make([]byte, handshakeBufSize)
	n, err := rd.Read(buf)
	c.post(func() { c.handleHandshake(buf[:n], err) })
}

func (c *Controller) handleHandshake(payload []byte, readErr error) {
	if c.pipeReg == nil {
		// The pipe was torn down before this read settled; the child is
		// already being cleaned up.
		return
	}

	ok := false
	defer func() {
		if !ok {
			c.killChildLogged(true)
		}
		c.closePipe()
	}()

	if len(payload) == 0 {
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			c.recordErr(readErr)
			c.log.Warn("handshake read failed", log.Error(readErr))
		} else {
			c.recordErr(errors.New("encoder: no bus name returned from worker"))
			c.log.Warn("no bus name returned from worker")
		}
		return
	}

	addr := strings.TrimSpace(string(payload))
	if addr == "" {
		c.recordErr(errors.New("encoder: worker sent blank bus name"))
		c.log.Warn("worker sent blank bus name")
		return
	}

	c.mu.Lock()
	c.peer = addr
	c.mu.Unlock()

	c.log.Info("got bus name from worker", log.String(log.PeerKey, addr))

	if err := c.connectBus(addr); err != nil {
		c.recordErr(err)
		c.log.Warn("failed to attach to control bus", log.Error(err))
		return
	}

	ok = true
	c.setState(StateSpawned)
}

// closePipe retires the handshake watcher. Closing the read end also
// unblocks a watchHandshake goroutine still parked in Read; its stale
// result is dropped by the pipeReg guard.
func (c *Controller) closePipe() {
	if c.pipeReg == nil {
		return
	}

	c.pipe.Close()
	c.pipe = nil

	reg := c.pipeReg
	c.pipeReg = nil
	reg.retire()
}

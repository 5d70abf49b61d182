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

/*
Package lifecycle manages daemon process lifecycle operations.

It provides the pieces "castctl daemon start|stop|status" is built from:
secure PID file handling, process validation and signalling, detached
spawning, startup health polling, an audit trail, and point-in-time
process sampling for session detail output.

# PID files

PID files decide which process receives shutdown signals, so they are
created with O_EXCL under an exclusive flock to rule out races and
symlink games:

	pidFile := lifecycle.NewPIDFile("/run/castd/castd.pid")
	if err := pidFile.Create(os.Getpid()); err != nil {
	    // already running, or the location is unsafe
	}
	defer pidFile.Remove()

# Process validation

Signals are only ever sent to processes that still look like a castd
daemon, guarding against recycled PIDs behind stale files:

	pid, err := pidFile.Read()
	if err == nil && lifecycle.IsCastdProcess(pid) {
	    lifecycle.GracefulShutdown(pid, 10*time.Second, force)
	}

# Startup confirmation

After a detached spawn, the health endpoint is polled with exponential
backoff until the daemon answers:

	checker := lifecycle.NewHealthChecker(endpoint).WithHTTPClient(client)
	if err := checker.WaitUntilHealthy(30 * time.Second); err != nil {
	    // daemon never came up
	}
*/
package lifecycle

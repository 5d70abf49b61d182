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
Package client provides an HTTP client for the castd control API.

This package lets castctl and other tools talk to the daemon over its
REST API. It supports both Unix socket and TCP connections.

# Basic Usage

Create a client and make requests:

	c, err := client.New()
	if err != nil {
	    log.Fatal(err)
	}

	// Create a session
	info, err := c.CreateSession(ctx, session.CreateRequest{
	    Name: "living-room",
	    Config: encoder.Config{
	        PeerAddress: "192.168.1.42",
	        RTPPort:     1991,
	    },
	})

	// Start streaming
	info, err = c.StartSession(ctx, info.ID)

	// List sessions
	sessions, err := c.ListSessions(ctx)

# Connection Options

Configure the client with options:

	// Use a specific transport (e.g. for a non-default socket)
	c, _ := client.New(client.WithTransport(client.NewUnixTransport(path)))

	// Use a custom HTTP client (e.g. for testing)
	c, _ := client.New(client.WithHTTPClient(httpClient))

# Transport

The default transport connects via Unix socket:

	$XDG_RUNTIME_DIR/castd/castd.sock
	~/.castd/castd.sock  (fallback)

Override with the CASTD_HOST environment variable:

	export CASTD_HOST=unix:///run/user/1000/castd/castd.sock
	export CASTD_HOST=tcp://localhost:8923

# Daemon not running

Connection failures against the socket surface as a
DaemonNotRunningError whose Guidance method tells the user how to
start the daemon. Check with IsDaemonNotRunning.
*/
package client

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

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/castd/castd/internal/daemon"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to config file")
		socketPath    = flag.String("socket", "", "Unix socket path")
		tcpAddr       = flag.String("tcp", "", "TCP address to listen on")
		allowRemote   = flag.Bool("allow-remote", false, "Allow binding to non-localhost addresses (SECURITY WARNING)")
		pidFile       = flag.String("pid-file", "", "PID file path")
		workerCommand = flag.String("encoder-command", "", "Encoder worker binary")
		bus           = flag.String("bus", "", "Message bus for workers (system, session)")
		display       = flag.String("display", "", "X display handed to workers")
		debug         = flag.Bool("debug", false, "Verbose logging in daemon and workers")
		logLevel      = flag.String("log-level", "", "Log level (trace, debug, info, warn, error)")
		logFormat     = flag.String("log-format", "", "Log format (json, text)")
		logFile       = flag.String("log-file", "", "Log file path (default: stderr)")
		showVersion   = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("castd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	err := daemon.Run(daemon.RunOptions{
		Version:       version,
		Commit:        commit,
		BuildDate:     buildDate,
		ConfigPath:    *configPath,
		SocketPath:    *socketPath,
		TCPAddr:       *tcpAddr,
		AllowRemote:   *allowRemote,
		PIDFile:       *pidFile,
		WorkerCommand: *workerCommand,
		Bus:           *bus,
		Display:       *display,
		Debug:         *debug,
		LogLevel:      *logLevel,
		LogFormat:     *logFormat,
		LogFile:       *logFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "castd: %v\n", err)
		os.Exit(1)
	}
}

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

package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/castd/castd/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	// Unix socket paths have a tight length limit, so stay out of the
	// deeply nested default test tempdir.
	tmpDir, err := os.MkdirTemp("/tmp", "castd-daemon-")
	if err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	cfg := config.Default()
	cfg.Daemon.Listen.SocketPath = filepath.Join(tmpDir, "castd.sock")
	cfg.Daemon.Listen.TCPAddr = ""
	cfg.Daemon.PIDFile = filepath.Join(tmpDir, "castd.pid")
	cfg.Daemon.ShutdownTimeout = 2 * time.Second
	cfg.Log.Level = "error"
	return cfg
}

func socketClient(socketPath string) *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never appeared", path)
}

func TestDaemonStartShutdown(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg, Options{Version: "test", Commit: "abc", BuildDate: "today"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	waitForSocket(t, cfg.Daemon.Listen.SocketPath)

	// PID file carries our process ID.
	pidBytes, err := os.ReadFile(cfg.Daemon.PIDFile)
	if err != nil {
		t.Fatalf("reading PID file: %v", err)
	}
	if want := fmt.Sprintf("%d\n", os.Getpid()); string(pidBytes) != want {
		t.Errorf("PID file = %q, want %q", pidBytes, want)
	}

	client := socketClient(cfg.Daemon.Listen.SocketPath)

	resp, err := client.Get("http://castd/v1/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || health.Status != "ok" {
		t.Errorf("health = %d %q, want 200 ok", resp.StatusCode, health.Status)
	}
	if health.Checks["sessions"] != "0" {
		t.Errorf("sessions check = %q, want 0", health.Checks["sessions"])
	}

	resp, err = client.Get("http://castd/v1/version")
	if err != nil {
		t.Fatalf("version request failed: %v", err)
	}
	var version struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		t.Fatalf("decoding version: %v", err)
	}
	resp.Body.Close()
	if version.Version != "test" || version.Commit != "abc" {
		t.Errorf("version = %+v, want test/abc", version)
	}

	resp, err = client.Get("http://castd/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", resp.StatusCode)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start() returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after shutdown")
	}

	if _, err := os.Stat(cfg.Daemon.PIDFile); !os.IsNotExist(err) {
		t.Error("PID file not removed on shutdown")
	}
	if _, err := os.Stat(cfg.Daemon.Listen.SocketPath); !os.IsNotExist(err) {
		t.Error("socket file not removed on shutdown")
	}
}

func TestDaemonDoubleStart(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg, Options{Version: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()
	waitForSocket(t, cfg.Daemon.Listen.SocketPath)

	if err := d.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	<-errCh
}

func TestDaemonReclaimsStalePIDFile(t *testing.T) {
	cfg := testConfig(t)

	// A live process that is not castd: this very test binary. The
	// daemon must treat the file as stale and claim the path.
	stale := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(cfg.Daemon.PIDFile, []byte(stale), 0600); err != nil {
		t.Fatalf("planting stale PID file: %v", err)
	}

	d, err := New(cfg, Options{Version: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()
	waitForSocket(t, cfg.Daemon.Listen.SocketPath)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Start() returned %v", err)
	}
}

func TestDaemonShutdownWithoutStart(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := d.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() on unstarted daemon = %v, want nil", err)
	}
}

func TestDaemonSessionAPIWired(t *testing.T) {
	cfg := testConfig(t)
	// A worker command that cannot exist keeps this test hermetic; the
	// route must still answer, with the spawn failure mapped to a
	// gateway error.
	cfg.Encoder.Command = filepath.Join(t.TempDir(), "missing-encoder")
	cfg.Session.LocalAddress = "10.0.0.2"

	d, err := New(cfg, Options{Version: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()
	waitForSocket(t, cfg.Daemon.Listen.SocketPath)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = d.Shutdown(shutdownCtx)
		<-errCh
	}()

	client := socketClient(cfg.Daemon.Listen.SocketPath)

	resp, err := client.Get("http://castd/v1/sessions")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || list.Count != 0 {
		t.Errorf("list = %d count=%d, want 200 count=0", resp.StatusCode, list.Count)
	}

	body := `{"name":"test","config":{"peer_address":"10.0.0.5","rtp_port":1991}}`
	resp, err = client.Post("http://castd/v1/sessions", "application/json",
		strings.NewReader(body))
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("create with missing worker = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
}

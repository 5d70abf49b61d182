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

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/castd/castd/internal/encoder"
	"github.com/castd/castd/internal/session"
)

func TestCreateSession(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var req session.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Name != "living-room" || req.Config.PeerAddress != "192.168.1.42" {
			t.Errorf("request = %+v", req)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "sess-1",
			"name":   req.Name,
			"state":  "CONFIGURED",
			"pid":    4242,
			"config": req.Config,
		})
	}))

	info, err := c.CreateSession(context.Background(), session.CreateRequest{
		Name: "living-room",
		Config: encoder.Config{
			PeerAddress: "192.168.1.42",
			RTPPort:     1991,
		},
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if info.ID != "sess-1" {
		t.Errorf("ID = %q, want sess-1", info.ID)
	}
	if info.State != encoder.StateConfigured {
		t.Errorf("State = %v, want CONFIGURED", info.State)
	}
	if info.PID != 4242 {
		t.Errorf("PID = %d, want 4242", info.PID)
	}
}

func TestListSessions(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"sessions": []map[string]any{
				{"id": "a", "state": "STARTED"},
				{"id": "b", "state": "PAUSED"},
			},
			"count": 2,
		})
	}))

	sessions, err := c.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len = %d, want 2", len(sessions))
	}
	if sessions[0].ID != "a" || sessions[0].State != encoder.StateStarted {
		t.Errorf("sessions[0] = %+v", sessions[0])
	}
	if sessions[1].ID != "b" || sessions[1].State != encoder.StatePaused {
		t.Errorf("sessions[1] = %+v", sessions[1])
	}
}

func TestListSessionsEmpty(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"sessions": []any{}, "count": 0})
	}))

	sessions, err := c.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("len = %d, want 0", len(sessions))
	}
}

func TestGetSession(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/sessions/sess-9" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "sess-9",
			"state": "STARTED",
			"process": map[string]any{
				"cpu_percent": 12.5,
			},
		})
	}))

	info, err := c.GetSession(context.Background(), "sess-9")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if info.State != encoder.StateStarted {
		t.Errorf("State = %v, want STARTED", info.State)
	}
	if info.Process == nil || info.Process.CPUPercent != 12.5 {
		t.Errorf("Process = %+v, want cpu_percent 12.5", info.Process)
	}
}

func TestSessionControlVerbs(t *testing.T) {
	tests := []struct {
		name     string
		call     func(c *Client, ctx context.Context) (*session.Info, error)
		wantPath string
	}{
		{
			name:     "start",
			call:     func(c *Client, ctx context.Context) (*session.Info, error) { return c.StartSession(ctx, "s1") },
			wantPath: "/v1/sessions/s1/start",
		},
		{
			name:     "pause",
			call:     func(c *Client, ctx context.Context) (*session.Info, error) { return c.PauseSession(ctx, "s1") },
			wantPath: "/v1/sessions/s1/pause",
		},
		{
			name:     "resume",
			call:     func(c *Client, ctx context.Context) (*session.Info, error) { return c.ResumeSession(ctx, "s1") },
			wantPath: "/v1/sessions/s1/resume",
		},
		{
			name:     "stop",
			call:     func(c *Client, ctx context.Context) (*session.Info, error) { return c.StopSession(ctx, "s1") },
			wantPath: "/v1/sessions/s1/stop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMethod, gotPath string
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod, gotPath = r.Method, r.URL.Path
				json.NewEncoder(w).Encode(map[string]any{"id": "s1", "state": "STARTED"})
			}))

			info, err := tt.call(c, context.Background())
			if err != nil {
				t.Fatalf("%s error = %v", tt.name, err)
			}
			if gotMethod != http.MethodPost || gotPath != tt.wantPath {
				t.Errorf("request = %s %s, want POST %s", gotMethod, gotPath, tt.wantPath)
			}
			if info.ID != "s1" {
				t.Errorf("ID = %q, want s1", info.ID)
			}
		})
	}
}

func TestRemoveSession(t *testing.T) {
	var gotMethod, gotPath string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{"id": "s1", "status": "removed"})
	}))

	if err := c.RemoveSession(context.Background(), "s1"); err != nil {
		t.Fatalf("RemoveSession() error = %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/v1/sessions/s1" {
		t.Errorf("request = %s %s, want DELETE /v1/sessions/s1", gotMethod, gotPath)
	}
}

func TestSessionPathEscaped(t *testing.T) {
	var gotPath string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		json.NewEncoder(w).Encode(map[string]any{"id": "x"})
	}))

	// A hostile ID must not traverse into other routes.
	_, err := c.GetSession(context.Background(), "../admin")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if gotPath != "/v1/sessions/..%2Fadmin" {
		t.Errorf("path = %q, want escaped ID", gotPath)
	}
}

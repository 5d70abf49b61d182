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

package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewCorrelationID(t *testing.T) {
	id := NewCorrelationID()

	if id == "" {
		t.Error("expected non-empty correlation ID")
	}
	if !id.IsValid() {
		t.Errorf("expected valid UUID format, got %q", id)
	}
	if len(id) != 36 {
		t.Errorf("expected length 36, got %d", len(id))
	}

	if other := NewCorrelationID(); other == id {
		t.Errorf("expected unique IDs, got %q twice", id)
	}
}

func TestCorrelationID_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		id    CorrelationID
		valid bool
	}{
		{"valid UUID", CorrelationID("550e8400-e29b-41d4-a716-446655440000"), true},
		{"valid UUID uppercase", CorrelationID("550E8400-E29B-41D4-A716-446655440000"), true},
		{"empty", CorrelationID(""), false},
		{"too short", CorrelationID("550e8400-e29b-41d4"), false},
		{"too long", CorrelationID("550e8400-e29b-41d4-a716-446655440000-extra"), false},
		{"missing hyphens", CorrelationID("550e8400e29b41d4a716446655440000"), false},
		{"invalid characters", CorrelationID("550e8400-e29b-41d4-a716-44665544000g"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	id := CorrelationID("550e8400-e29b-41d4-a716-446655440000")
	ctx := WithContext(context.Background(), id)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected correlation ID in context")
	}
	if got != id {
		t.Errorf("FromContext() = %q, want %q", got, id)
	}
}

func TestFromContextEmpty(t *testing.T) {
	if id, ok := FromContext(context.Background()); ok {
		t.Errorf("expected no correlation ID, got %q", id)
	}
}

func TestMiddleware(t *testing.T) {
	var seen CorrelationID
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates ID when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !seen.IsValid() {
			t.Errorf("expected generated UUID in context, got %q", seen)
		}
		if got := rec.Header().Get(HeaderCorrelationID); got != seen.String() {
			t.Errorf("expected response header %q, got %q", seen, got)
		}
	})

	t.Run("preserves valid ID", func(t *testing.T) {
		id := "550e8400-e29b-41d4-a716-446655440000"
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
		req.Header.Set(HeaderCorrelationID, id)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seen.String() != id {
			t.Errorf("expected context ID %q, got %q", id, seen)
		}
		if got := rec.Header().Get(HeaderCorrelationID); got != id {
			t.Errorf("expected response header %q, got %q", id, got)
		}
	})

	t.Run("accepts request ID fallback header", func(t *testing.T) {
		id := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
		req.Header.Set(HeaderRequestID, id)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seen.String() != id {
			t.Errorf("expected context ID %q, got %q", id, seen)
		}
	})

	t.Run("rejects malformed ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
		req.Header.Set(HeaderCorrelationID, "not-a-uuid")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestWrapHTTPClient(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Get(HeaderCorrelationID)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	id := NewCorrelationID()
	ctx := WithContext(context.Background(), id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}

	client := WrapHTTPClient(nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if received != id.String() {
		t.Errorf("expected propagated ID %q, got %q", id, received)
	}

	// The wrapper must not mutate the caller's request.
	if got := req.Header.Get(HeaderCorrelationID); got != "" {
		t.Errorf("expected original request untouched, found header %q", got)
	}
}

func TestWrapHTTPClientWithoutID(t *testing.T) {
	var present bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header[HeaderCorrelationID]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}

	resp, err := WrapHTTPClient(nil).Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if present {
		t.Error("expected no correlation header for a bare context")
	}
}

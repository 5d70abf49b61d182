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

package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHealthCheckerCheck(t *testing.T) {
	t.Run("succeeds against healthy endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		result := NewHealthChecker(server.URL).Check(context.Background())
		if !result.Success {
			t.Errorf("Check() success = false, error = %v", result.Error)
		}
		if result.StatusCode != http.StatusOK {
			t.Errorf("Check() status = %d, want 200", result.StatusCode)
		}
	})

	t.Run("fails against erroring endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		result := NewHealthChecker(server.URL).Check(context.Background())
		if result.Success {
			t.Error("Check() success = true for 503 response")
		}
	})

	t.Run("fails against unreachable endpoint", func(t *testing.T) {
		result := NewHealthChecker("http://127.0.0.1:1/v1/health").Check(context.Background())
		if result.Success {
			t.Error("Check() success = true for unreachable endpoint")
		}
		if result.Error == nil {
			t.Error("Check() error = nil for unreachable endpoint")
		}
	})
}

func TestWaitUntilHealthy(t *testing.T) {
	t.Run("returns once the endpoint recovers", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Healthy from the third probe on, as a daemon still
			// binding its listener would be.
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		checker := NewHealthChecker(server.URL).
			WithBackoff(10*time.Millisecond, 50*time.Millisecond, 2.0)

		if err := checker.WaitUntilHealthy(5 * time.Second); err != nil {
			t.Errorf("WaitUntilHealthy() error = %v", err)
		}
		if calls.Load() < 3 {
			t.Errorf("expected at least 3 probes, got %d", calls.Load())
		}
	})

	t.Run("times out against a dead endpoint", func(t *testing.T) {
		checker := NewHealthChecker("http://127.0.0.1:1/v1/health").
			WithBackoff(10*time.Millisecond, 20*time.Millisecond, 2.0)

		err := checker.WaitUntilHealthy(300 * time.Millisecond)
		if !errors.Is(err, ErrHealthCheckTimeout) {
			t.Errorf("WaitUntilHealthy() error = %v, want ErrHealthCheckTimeout", err)
		}
	})
}

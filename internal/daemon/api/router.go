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

// Package api provides the HTTP control API for the daemon.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/castd/castd/internal/daemon/httputil"
	"github.com/castd/castd/internal/log"
	"github.com/castd/castd/internal/tracing"
)

// RouterConfig holds build identity reported by the version endpoints.
type RouterConfig struct {
	Version   string
	Commit    string
	BuildDate string
}

// SessionStatusProvider reports session counts for health checks.
type SessionStatusProvider interface {
	Count() int
}

// MetricsHandler serves the Prometheus scrape endpoint.
type MetricsHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Router wraps an http.ServeMux with the daemon's middleware chain:
// correlation IDs on the way in, a request log line on the way out.
type Router struct {
	mux             *http.ServeMux
	config          RouterConfig
	sessionProvider SessionStatusProvider
	metricsHandler  MetricsHandler
	logger          *slog.Logger
	started         time.Time
}

// NewRouter creates a router with the built-in endpoints registered.
// A nil logger falls back to the environment-configured default.
func NewRouter(cfg RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = log.New(log.FromEnv())
	}
	r := &Router{
		mux:     http.NewServeMux(),
		config:  cfg,
		logger:  log.WithComponent(logger, "api"),
		started: time.Now(),
	}

	r.mux.HandleFunc("GET /v1/health", r.handleHealth)
	r.mux.HandleFunc("GET /v1/version", r.handleVersion)

	// Root endpoint for basic connectivity checks.
	r.mux.HandleFunc("GET /", r.handleRoot)

	return r
}

// SetSessionProvider wires session counts into the health endpoint.
func (r *Router) SetSessionProvider(provider SessionStatusProvider) {
	r.sessionProvider = provider
}

// SetMetricsHandler exposes the Prometheus registry at /metrics.
func (r *Router) SetMetricsHandler(handler MetricsHandler) {
	r.metricsHandler = handler
	if handler != nil {
		r.mux.HandleFunc("GET /metrics", handler.ServeHTTP)
	}
}

// Mux returns the underlying ServeMux for registering additional routes.
func (r *Router) Mux() *http.ServeMux {
	return r.mux
}

// ServeHTTP implements http.Handler. The middleware runs outermost
// first: the correlation layer mints or validates the request ID, then
// the logging layer reads it back out of the context, so every request
// log line can be matched to the castctl invocation that caused it.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var handler http.Handler = r.mux

	inner := handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		logger := r.logger
		if id, ok := tracing.FromContext(req.Context()); ok {
			logger = log.WithCorrelationID(logger, id.String())
		}

		defer func() {
			logger.Info("request completed",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int64(log.DurationKey, time.Since(start).Milliseconds()),
			)
		}()

		inner.ServeHTTP(w, req)
	})

	handler = tracing.Middleware(handler)

	handler.ServeHTTP(w, req)
}

// handleRoot handles GET / for basic connectivity.
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"name":    "castd",
		"version": r.config.Version,
	})
}

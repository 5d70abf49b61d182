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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/castd/castd/internal/daemon/httputil"
	"github.com/castd/castd/internal/encoder"
	"github.com/castd/castd/internal/session"
	castderrors "github.com/castd/castd/pkg/errors"
)

// SessionManager is the session surface the handlers serve. The daemon
// wires in the real manager through a snapshot adapter; tests substitute
// a fake.
type SessionManager interface {
	Create(ctx context.Context, req session.CreateRequest) (session.Info, error)
	Get(id string) (session.Info, error)
	Detail(id string) (session.Info, error)
	List() []session.Info
	Count() int
	Start(ctx context.Context, id string) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
}

// SessionsHandler handles session API requests.
type SessionsHandler struct {
	manager SessionManager
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(m SessionManager) *SessionsHandler {
	return &SessionsHandler{manager: m}
}

// RegisterRoutes registers session API routes on the router.
func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", h.handleCreate)
	mux.HandleFunc("GET /v1/sessions", h.handleList)
	mux.HandleFunc("GET /v1/sessions/{id}", h.handleGet)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.handleRemove)
	mux.HandleFunc("POST /v1/sessions/{id}/start", h.handleStart)
	mux.HandleFunc("POST /v1/sessions/{id}/pause", h.handlePause)
	mux.HandleFunc("POST /v1/sessions/{id}/resume", h.handleResume)
	mux.HandleFunc("POST /v1/sessions/{id}/stop", h.handleStop)
}

// handleCreate handles POST /v1/sessions. Creation is synchronous up to
// the worker's CONFIGURED state: when this returns 201 the worker is
// spawned, has completed its handshake and holds the stream parameters.
func (h *SessionsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	info, err := h.manager.Create(r.Context(), req)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, info)
}

// handleList handles GET /v1/sessions.
func (h *SessionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	sessions := h.manager.List()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleGet handles GET /v1/sessions/{id}. The response includes a live
// resource sample of the worker process when one is running.
func (h *SessionsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "session ID required")
		return
	}

	info, err := h.manager.Detail(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, info)
}

// handleRemove handles DELETE /v1/sessions/{id}.
func (h *SessionsHandler) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "session ID required")
		return
	}

	if err := h.manager.Remove(r.Context(), id); err != nil {
		writeSessionError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": "removed",
	})
}

// handleStart handles POST /v1/sessions/{id}/start.
func (h *SessionsHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.manager.Start)
}

// handlePause handles POST /v1/sessions/{id}/pause.
func (h *SessionsHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.manager.Pause)
}

// handleResume handles POST /v1/sessions/{id}/resume.
func (h *SessionsHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.manager.Resume)
}

// handleStop handles POST /v1/sessions/{id}/stop.
func (h *SessionsHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.manager.Stop)
}

// control runs one lifecycle operation and responds with a fresh
// snapshot. Workers confirm transitions asynchronously over the bus, so
// the snapshot may still show the previous state; callers poll the
// session for the settled state.
func (h *SessionsHandler) control(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	id := r.PathValue("id")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "session ID required")
		return
	}

	if err := op(r.Context(), id); err != nil {
		writeSessionError(w, err)
		return
	}

	info, err := h.manager.Get(id)
	if err != nil {
		// Removed between the call and the snapshot; the operation
		// itself succeeded.
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "ok"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

// writeSessionError maps session and worker errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrManagerClosed) {
		w.Header().Set("Retry-After", "10")
		httputil.WriteError(w, http.StatusServiceUnavailable, "daemon is shutting down")
		return
	}
	httputil.WriteError(w, statusForError(err), err.Error())
}

// statusForError picks the status code for an error from the session
// layer. Worker-side failures map to gateway statuses: the daemon is
// fine, the process behind it is not.
func statusForError(err error) int {
	var (
		validation *castderrors.ValidationError
		notFound   *castderrors.NotFoundError
		timeout    *castderrors.TimeoutError
		spawn      *castderrors.SpawnError
		bus        *castderrors.BusError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionLimit):
		return http.StatusConflict
	case errors.Is(err, encoder.ErrTerminated), errors.Is(err, encoder.ErrNotConnected):
		return http.StatusConflict
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &spawn), errors.As(err, &bus):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

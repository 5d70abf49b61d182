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
	"net/http"
	"strconv"
	"time"

	"github.com/castd/castd/internal/daemon/httputil"
)

// healthResponse is the body of GET /v1/health. The client package
// decodes the same shape.
type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// handleHealth handles GET /v1/health. The daemon has no hard external
// dependencies to probe; a reachable daemon is a healthy one, and the
// checks block carries informational counters.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(r.started).Round(time.Second).String(),
	}
	if r.sessionProvider != nil {
		resp.Checks = map[string]string{
			"sessions": strconv.Itoa(r.sessionProvider.Count()),
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

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
	"fmt"
	"net/url"

	"github.com/castd/castd/internal/session"
)

// ListResponse is the response from GET /v1/sessions.
type ListResponse struct {
	Sessions []session.Info `json:"sessions"`
	Count    int            `json:"count"`
}

// CreateSession asks the daemon to spawn and configure a new session.
// On return the worker has completed its handshake and holds the stream
// parameters.
func (c *Client) CreateSession(ctx context.Context, req session.CreateRequest) (*session.Info, error) {
	var info session.Info
	if err := c.postJSON(ctx, "/v1/sessions", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListSessions returns a snapshot of every session the daemon holds.
func (c *Client) ListSessions(ctx context.Context) ([]session.Info, error) {
	var list ListResponse
	if err := c.getJSON(ctx, "/v1/sessions", &list); err != nil {
		return nil, err
	}
	return list.Sessions, nil
}

// GetSession returns one session with live worker process stats.
func (c *Client) GetSession(ctx context.Context, id string) (*session.Info, error) {
	var info session.Info
	if err := c.getJSON(ctx, sessionPath(id), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// StartSession asks the worker to begin streaming.
func (c *Client) StartSession(ctx context.Context, id string) (*session.Info, error) {
	return c.controlSession(ctx, id, "start")
}

// PauseSession suspends streaming without tearing the pipeline down.
func (c *Client) PauseSession(ctx context.Context, id string) (*session.Info, error) {
	return c.controlSession(ctx, id, "pause")
}

// ResumeSession continues a paused stream.
func (c *Client) ResumeSession(ctx context.Context, id string) (*session.Info, error) {
	return c.controlSession(ctx, id, "resume")
}

// StopSession tears the stream down. The session stays listed in its
// terminal state until removed.
func (c *Client) StopSession(ctx context.Context, id string) (*session.Info, error) {
	return c.controlSession(ctx, id, "stop")
}

// RemoveSession stops the session if needed and drops it from the
// daemon's table.
func (c *Client) RemoveSession(ctx context.Context, id string) error {
	return c.delete(ctx, sessionPath(id))
}

// controlSession runs one lifecycle verb and returns the daemon's
// snapshot. State transitions are confirmed by the worker
// asynchronously, so the snapshot may still show the previous state.
func (c *Client) controlSession(ctx context.Context, id, verb string) (*session.Info, error) {
	var info session.Info
	if err := c.postJSON(ctx, sessionPath(id)+"/"+verb, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func sessionPath(id string) string {
	return fmt.Sprintf("/v1/sessions/%s", url.PathEscape(id))
}

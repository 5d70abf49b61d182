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

// Package tracing carries request correlation IDs across the castd API
// boundary, so one CLI invocation can be matched to the daemon log
// lines it produced.
package tracing

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// CorrelationID identifies one API request chain end to end.
// It is an RFC 4122 UUID in string form.
type CorrelationID string

type contextKey struct{}

// Header names used to propagate correlation IDs over HTTP.
const (
	// HeaderCorrelationID is the canonical header.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is accepted as a fallback for compatibility.
	HeaderRequestID = "X-Request-ID"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// NewCorrelationID generates a fresh correlation ID.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// String returns the string form of the correlation ID.
func (c CorrelationID) String() string {
	return string(c)
}

// IsValid reports whether the ID is a well-formed UUID.
func (c CorrelationID) IsValid() bool {
	return uuidPattern.MatchString(string(c))
}

// WithContext returns a context carrying the correlation ID.
func WithContext(ctx context.Context, id CorrelationID) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the correlation ID carried by the context, if any.
func FromContext(ctx context.Context) (CorrelationID, bool) {
	id, ok := ctx.Value(contextKey{}).(CorrelationID)
	return id, ok
}

// fromRequest pulls a correlation ID out of the request headers,
// preferring the canonical header over the fallback.
func fromRequest(r *http.Request) (CorrelationID, bool) {
	if id := r.Header.Get(HeaderCorrelationID); id != "" {
		return CorrelationID(id), true
	}
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return CorrelationID(id), true
	}
	return "", false
}

// Middleware extracts or mints a correlation ID for every request,
// stores it in the request context, and reflects it back in the
// response headers. Requests carrying a malformed ID are rejected.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, found := fromRequest(r)
		if found && !id.IsValid() {
			http.Error(w, "invalid correlation ID: must be a UUID", http.StatusBadRequest)
			return
		}
		if !found {
			id = NewCorrelationID()
		}

		w.Header().Set(HeaderCorrelationID, id.String())
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

// roundTripper stamps outbound requests with the correlation ID found
// in their context.
type roundTripper struct {
	base http.RoundTripper
}

// RoundTrip implements http.RoundTripper. The request is cloned before
// the header is added; RoundTrip must not mutate its argument.
func (t *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if id, ok := FromContext(req.Context()); ok && id != "" {
		req = req.Clone(req.Context())
		req.Header.Set(HeaderCorrelationID, id.String())
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// WrapHTTPClient returns a client that propagates correlation IDs from
// request contexts into outbound headers.
func WrapHTTPClient(client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}

	return &http.Client{
		Transport:     &roundTripper{base: client.Transport},
		CheckRedirect: client.CheckRedirect,
		Jar:           client.Jar,
		Timeout:       client.Timeout,
	}
}

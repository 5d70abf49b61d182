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

// Package session maps daemon-level sessions onto encoder workers.
//
// A Session is one projection: the parameters a client asked for plus
// the controller supervising the worker that serves them. The Manager
// owns the session table; Create runs the spawn-handshake-configure
// sequence and only lists sessions whose worker came up and accepted
// its parameters, so everything listed is controllable. Sessions whose
// worker dies stay listed in their terminal state until removed, which
// keeps the cause of death inspectable over the API.
package session

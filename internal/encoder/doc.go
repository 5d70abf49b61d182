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

// Package encoder supervises external media-encoder worker processes.
//
// A Controller owns exactly one worker over its whole life: it spawns the
// worker binary with a one-shot handshake pipe on a well-known descriptor,
// learns the worker's message-bus address from that pipe, drives the worker
// through its lifecycle (Configure, Start, Pause, Stop) with bus method
// calls, and mirrors the worker's self-reported state by subscribing to its
// property-change notifications. A second subscription watches for the
// worker vanishing from the bus so a crashed or killed worker is noticed
// even when no process exit has been observed yet.
//
// All controller state is confined to a single event goroutine. Method
// calls, child exit, handshake readability, timer expiry, and bus signals
// are serialized through it, so callbacks never race each other. Lifetime
// is reference counted: every pending asynchronous registration (child
// reaper, handshake watcher, grace timer, the two bus subscriptions) holds
// one reference, and the controller tears down its bus connection only
// once every reference is gone.
package encoder

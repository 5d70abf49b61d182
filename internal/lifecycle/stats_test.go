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
	"os"
	"testing"
)

func TestSampleProcess(t *testing.T) {
	t.Run("samples the current process", func(t *testing.T) {
		stats := SampleProcess(int32(os.Getpid()))
		if stats == nil {
			t.Fatal("SampleProcess(self) = nil")
		}
		if stats.PID != int32(os.Getpid()) {
			t.Errorf("stats.PID = %d, want %d", stats.PID, os.Getpid())
		}
		if stats.RSSBytes == 0 {
			t.Error("stats.RSSBytes = 0, expected the test binary to have resident memory")
		}
		if stats.NumThreads == 0 {
			t.Error("stats.NumThreads = 0, expected at least one thread")
		}
	})

	t.Run("returns nil for non-existent process", func(t *testing.T) {
		if stats := SampleProcess(999999); stats != nil {
			t.Errorf("SampleProcess(999999) = %+v, want nil", stats)
		}
	})
}

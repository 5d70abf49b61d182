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
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is a point-in-time sample of a supervised process, used
// to enrich session detail output.
type ProcessStats struct {
	PID           int32   `json:"pid"`
	CPUPercent    float64 `json:"cpu_percent"`
	RSSBytes      uint64  `json:"rss_bytes"`
	NumThreads    int32   `json:"num_threads"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// SampleProcess collects stats for pid. A process that cannot be
// observed, because it exited or belongs to someone else, yields nil;
// individual readings that fail are left at their zero value.
func SampleProcess(pid int32) *ProcessStats {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil
	}

	stats := &ProcessStats{PID: pid}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	if threads, err := p.NumThreads(); err == nil {
		stats.NumThreads = threads
	}
	if created, err := p.CreateTime(); err == nil && created > 0 {
		stats.UptimeSeconds = int64(time.Since(time.UnixMilli(created)).Seconds())
	}
	return stats
}

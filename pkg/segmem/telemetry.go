// Copyright 2023 The acquirecloud Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package segmem

import (
	"sort"
	"sync/atomic"

	"github.com/gobwas/glob"
	"github.com/kzdev-net/segmem/golibs/container"
)

// Process-wide gauges for observability only: total segments currently
// backed by heap memory and by native (mmap) memory, across every pool in
// the process. They are never consulted for correctness, only reported.
var (
	telemetryGCAllocated     atomic.Int64
	telemetryNativeAllocated atomic.Int64
)

// GCAllocated returns the current number of segments backed by heap
// memory, summed across every group of every pool in the process.
func GCAllocated() int64 { return telemetryGCAllocated.Load() }

// NativeAllocated returns the current number of segments backed by native
// (mmap) memory, summed across every group of every pool in the process.
func NativeAllocated() int64 { return telemetryNativeAllocated.Load() }

const (
	gaugeGCAllocated     = "segment_memory.gc_allocated"
	gaugeNativeAllocated = "segment_memory.native_allocated"
)

// ListGauges returns the name and current value ("segments" unit) of every
// registered gauge whose name matches the glob pattern, as a map keyed by
// gauge name. An empty pattern matches everything. It exists for ad hoc inspection from
// cmd/segbench, not for any runtime decision.
func ListGauges(pattern string) (map[string]int64, error) {
	if pattern == "" {
		pattern = "*"
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	all := map[string]int64{
		gaugeGCAllocated:     GCAllocated(),
		gaugeNativeAllocated: NativeAllocated(),
	}
	res := make(map[string]int64)
	names := container.Keys(all)
	sort.Strings(names)
	for _, name := range names {
		if g.Match(name) {
			res[name] = all[name]
		}
	}
	return res, nil
}

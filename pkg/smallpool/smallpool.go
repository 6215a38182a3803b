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

// Package smallpool implements a bounded, size-classed pool for buffers
// smaller than one segment: routing a 200-byte request through
// pkg/segmem would waste an entire 64KiB segment, so callers with many
// small, short-lived buffers use this instead.
package smallpool

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kzdev-net/segmem/pkg/segmem"
)

var _ segmem.SmallBufferPool = (*Pool)(nil)

// Pool is a fixed set of size classes, each backed by its own sync.Pool of
// byte slices. Rent picks the smallest class that fits the request;
// Return routes the buffer back to the class its capacity matches.
type Pool struct {
	classes   []int // ascending buffer capacities, bytes
	pools     []sync.Pool
	rentCount atomic.Int64
}

// New creates a Pool with the given size classes (bytes). classes is
// sorted and deduplicated; a request larger than the largest class is
// served by a plain allocation that Return simply drops.
func New(classes ...int) *Pool {
	uniq := make(map[int]struct{}, len(classes))
	for _, c := range classes {
		if c > 0 {
			uniq[c] = struct{}{}
		}
	}
	sorted := make([]int, 0, len(uniq))
	for c := range uniq {
		sorted = append(sorted, c)
	}
	sort.Ints(sorted)

	p := &Pool{classes: sorted, pools: make([]sync.Pool, len(sorted))}
	for i, size := range sorted {
		size := size
		p.pools[i].New = func() any {
			return make([]byte, size)
		}
	}
	return p
}

// Rent returns a buffer of at least size bytes. The returned slice's
// length is exactly size; its capacity may be larger if it came from a
// size class above the request.
func (p *Pool) Rent(size int) []byte {
	p.rentCount.Add(1)
	idx := p.classIndex(size)
	if idx < 0 {
		return make([]byte, size)
	}
	buf := p.pools[idx].Get().([]byte)
	return buf[:size]
}

// Return hands buf back for reuse. Buffers whose capacity does not match
// one of the configured classes exactly are dropped rather than pooled
// under the wrong class, since a later Rent from that class would hand
// out a slice shorter than its advertised capacity.
func (p *Pool) Return(buf []byte) {
	idx := sort.SearchInts(p.classes, cap(buf))
	if idx >= len(p.classes) || p.classes[idx] != cap(buf) {
		return
	}
	p.pools[idx].Put(buf[:cap(buf)])
}

// RentCount returns the number of Rent calls served since creation,
// regardless of size class, for telemetry.
func (p *Pool) RentCount() int64 {
	return p.rentCount.Load()
}

// classIndex returns the index of the smallest configured class that can
// hold size bytes, or -1 if size exceeds every class.
func (p *Pool) classIndex(size int) int {
	idx := sort.SearchInts(p.classes, size)
	if idx >= len(p.classes) {
		return -1
	}
	return idx
}

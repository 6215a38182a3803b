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

import "github.com/kzdev-net/segmem/golibs/logging"

// generation is an immutable snapshot of a pool's active groups, published
// by compare-and-swap of a single pointer. Readers never need to
// coordinate: once obtained, a *generation never mutates.
type generation struct {
	id               uint64
	groups           []*group
	maxGroupSegments int
}

// findByID returns the group with the given id, if it is still part of
// this generation.
func (gen *generation) findByID(id uint64) (*group, bool) {
	for _, g := range gen.groups {
		if g.id == id {
			return g, true
		}
	}
	return nil, false
}

// newInitialGeneration builds generation 1 with a single MinGroupSegments
// group, the one group every pool keeps forever (never released).
func newInitialGeneration(backingKind BackingKind, log logging.Logger, nextID func() uint64) *generation {
	first := newGroup(nextID(), MinGroupSegments, backingKind, log)
	return &generation{id: 1, groups: []*group{first}, maxGroupSegments: MinGroupSegments}
}

// nextGroupSize computes the new tail group's segment count: a
// conservative exponential ramp (doubling, capped by an additive +32
// bound) that is also large enough to satisfy neededSegs in one shot, and
// never exceeds MaxGroupSegments. Because the ramp is always >= prev, the
// result is always >= prev: successive expansions never shrink the tail.
func nextGroupSize(prev, neededSegs int) int {
	ramp := prev * 2
	if alt := prev + 32; alt < ramp {
		ramp = alt
	}
	size := ramp
	if neededSegs > size {
		size = neededSegs
	}
	if size > MaxGroupSegments {
		size = MaxGroupSegments
	}
	return size
}

// releasedSnapshot captures the released flag of every group, used by
// expandGeneration to detect a concurrent release mid-copy.
func releasedSnapshot(groups []*group) []bool {
	snap := make([]bool, len(groups))
	for i, g := range groups {
		snap[i] = g.IsReleased()
	}
	return snap
}

func snapshotsEqual(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// expandGeneration produces a new generation: every non-released group of
// cur, plus one new tail group sized to comfortably serve neededSegs. If a
// group's released state changes between the before/after snapshot taken
// around the filtering pass, the copy is discarded and retried, so the
// result never includes a group released during the copy nor misses one
// that survived it.
func expandGeneration(cur *generation, neededSegs int, backingKind BackingKind, log logging.Logger, nextID func() uint64) *generation {
	for {
		before := releasedSnapshot(cur.groups)
		kept := make([]*group, 0, len(cur.groups)+1)
		for _, g := range cur.groups {
			if !g.IsReleased() {
				kept = append(kept, g)
			}
		}
		after := releasedSnapshot(cur.groups)
		if !snapshotsEqual(before, after) {
			continue
		}

		newSize := nextGroupSize(cur.maxGroupSegments, neededSegs)
		tail := newGroup(nextID(), newSize, backingKind, log)
		groups := append(kept, tail)

		maxSeg := cur.maxGroupSegments
		if newSize > maxSeg {
			maxSeg = newSize
		}
		return &generation{id: cur.id + 1, groups: groups, maxGroupSegments: maxSeg}
	}
}

// contractGeneration produces a new generation containing the first group
// (never released) plus every tail group that is not released. It is used
// after a trim pass releases at least one group.
func contractGeneration(cur *generation) *generation {
	groups := make([]*group, 0, len(cur.groups))
	groups = append(groups, cur.groups[0])
	maxSeg := cur.groups[0].SegmentCount()
	for _, g := range cur.groups[1:] {
		if g.IsReleased() {
			continue
		}
		groups = append(groups, g)
		if g.SegmentCount() > maxSeg {
			maxSeg = g.SegmentCount()
		}
	}
	return &generation{id: cur.id + 1, groups: groups, maxGroupSegments: maxSeg}
}

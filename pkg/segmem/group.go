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
	"context"
	"sync/atomic"

	"github.com/kzdev-net/segmem/golibs/logging"
	gosync "github.com/kzdev-net/segmem/golibs/sync"
)

// MinGroupSegments and MaxGroupSegments bound a group's segment_count, N.
const (
	MinGroupSegments = 4
	MaxGroupSegments = 512
)

// outcome is the result of a GetBuffer attempt on one group.
type outcome int

const (
	outcomeAvailable outcome = iota
	outcomeGroupLocked
	outcomeGroupFull
	outcomeReleased
)

func (o outcome) String() string {
	switch o {
	case outcomeAvailable:
		return "available"
	case outcomeGroupLocked:
		return "group_locked"
	case outcomeGroupFull:
		return "group_full"
	case outcomeReleased:
		return "released"
	default:
		return "unknown"
	}
}

// noTrimCheck is the sentinel last_trim_check value that can never equal
// emptied_count until the group's first empty transition.
const noTrimCheck = ^uint64(0)

// group is one chunk: a backing region of segmentCount*SegmentSize bytes,
// carved into segments tracked by two bitmaps. Structural mutation
// (reservation, release, backing allocation) is serialized by lock, a
// SpinLock rather than a blocking mutex: rent-side contention is common
// and non-fatal (the caller just tries another group), so a contended
// GetBuffer reports groupLocked instead of waiting.
type group struct {
	id           uint64
	segmentCount int
	backingKind  BackingKind

	lock    gosync.SpinLock
	backing []byte
	unmap   func() error

	usedBits []uint64
	zeroBits []uint64

	inUse         atomic.Int64
	emptiedCount  atomic.Uint64
	released      atomic.Bool
	lastTrimCheck uint64 // guarded by lock

	log logging.Logger
}

func newGroup(id uint64, segmentCount int, backingKind BackingKind, log logging.Logger) *group {
	words := wordsFor(segmentCount)
	return &group{
		id:            id,
		segmentCount:  segmentCount,
		backingKind:   backingKind,
		usedBits:      make([]uint64, words),
		zeroBits:      make([]uint64, words),
		lastTrimCheck: noTrimCheck,
		log:           log,
	}
}

func (g *group) ID() uint64        { return g.id }
func (g *group) SegmentCount() int { return g.segmentCount }
func (g *group) InUse() int        { return int(g.inUse.Load()) }
func (g *group) IsReleased() bool  { return g.released.Load() }
func (g *group) Kind() BackingKind { return g.backingKind }

// GetBuffer attempts to reserve a contiguous run of requested segments
// anywhere in the group using the closest-fit, first-acceptable policy
// (deferred marking: the run is chosen by a pure scan, then reserved in a
// second step). It never returns fewer than requested segments; if no run
// that large exists, it reports outcomeGroupFull.
func (g *group) GetBuffer(requested int, requireZeroed bool) (Handle, outcome) {
	if g.released.Load() {
		return Handle{}, outcomeReleased
	}
	if !g.lock.TryLock(context.Background()) {
		return Handle{}, outcomeGroupLocked
	}
	defer g.lock.Unlock()

	if g.released.Load() {
		return Handle{}, outcomeReleased
	}
	if g.backing == nil {
		if err := g.allocateBackingLocked(); err != nil {
			g.log.Errorf("group %d: could not allocate backing: %v", g.id, err)
			return Handle{}, outcomeGroupFull
		}
	}

	var start int
	var ok bool
	if requested == 1 {
		start, ok = findSingleFree(g.usedBits, g.segmentCount)
	} else {
		start, ok = findClosestFit(g.usedBits, g.segmentCount, requested)
	}
	if !ok {
		return Handle{}, outcomeGroupFull
	}

	g.reserveLocked(start, requested, requireZeroed)
	g.log.Tracef("group %d: reserved [%d,%d)", g.id, start, start+requested)
	return g.buildHandle(start, requested), outcomeAvailable
}

// GetBufferAt tries to reserve a contiguous run starting exactly at
// preferredFirst, up to requested segments long. Unlike GetBuffer, it may
// return fewer than requested segments: the caller (Pool.RentPreferred) is
// extending a previous buffer in place and accepts a partial contiguous
// extension. ok is false only if the preferred start itself is unusable
// (already in use, out of bounds, group locked/released/unallocated).
func (g *group) GetBufferAt(preferredFirst, requested int, requireZeroed bool) (Handle, bool) {
	if preferredFirst < 0 || g.released.Load() {
		return Handle{}, false
	}
	if !g.lock.TryLock(context.Background()) {
		return Handle{}, false
	}
	defer g.lock.Unlock()

	if g.released.Load() || g.backing == nil {
		return Handle{}, false
	}
	n := freeRunAt(g.usedBits, g.segmentCount, preferredFirst, requested)
	if n == 0 {
		return Handle{}, false
	}
	g.reserveLocked(preferredFirst, n, requireZeroed)
	g.log.Tracef("group %d: preferred-hit reserved [%d,%d)", g.id, preferredFirst, preferredFirst+n)
	return g.buildHandle(preferredFirst, n), true
}

// reserveLocked marks [start, start+n) used, clears the run if the caller
// requires zeroed memory and it is not already known to be zero, and
// updates the in-use counter. Must be called with g.lock held.
func (g *group) reserveLocked(start, n int, requireZeroed bool) {
	if requireZeroed && !bitAllSet(g.zeroBits, start, n) {
		clear(g.backing[start*SegmentSize : (start+n)*SegmentSize])
	}
	// A segment that is in use carries no meaningful zero status: the
	// zero bit only describes the cleanliness of a free segment for the
	// next reservation's benefit.
	bitSetRange(g.usedBits, start, n, true)
	bitSetRange(g.zeroBits, start, n, false)
	g.inUse.Add(int64(n))
}

func (g *group) buildHandle(start, n int) Handle {
	v := newSegmentView(g.backing[start*SegmentSize : (start+n)*SegmentSize])
	return Handle{view: v, groupID: g.id, firstSegment: start, segmentCount: n}
}

// ReleaseBuffer returns h's segments back to this group. segmentsAreZeroed
// tells the group whether the caller already cleared the memory, so the
// zero bits can be set without another pass. A contended lock is spun on:
// returns must not fail.
func (g *group) ReleaseBuffer(h Handle, segmentsAreZeroed bool) {
	g.lock.Lock()
	defer g.lock.Unlock()

	bitSetRange(g.usedBits, h.firstSegment, h.segmentCount, false)
	bitSetRange(g.zeroBits, h.firstSegment, h.segmentCount, segmentsAreZeroed)
	if g.inUse.Add(-int64(h.segmentCount)) == 0 {
		g.emptiedCount.Add(1)
	}
	g.log.Tracef("group %d: released [%d,%d) zeroed=%t", g.id, h.firstSegment, h.firstSegment+h.segmentCount, segmentsAreZeroed)
}

// ReleaseGroup attempts to reclaim the group's backing under the
// two-consecutive-empty-observations rule: a group is only released after
// it has been seen empty across two separate trim passes with no
// intervening activity. If memoryOnly, only the backing is freed and the
// group remains usable (it lazily reallocates on the next rent); otherwise
// the group is marked released permanently.
func (g *group) ReleaseGroup(memoryOnly bool) bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.inUse.Load() > 0 {
		return false
	}
	ec := g.emptiedCount.Load()
	if ec != g.lastTrimCheck {
		g.lastTrimCheck = ec
		return false
	}

	g.freeBackingLocked()
	g.emptiedCount.Store(0)
	g.lastTrimCheck = noTrimCheck
	if !memoryOnly {
		g.released.Store(true)
	}
	g.log.Infof("group %d: released (memoryOnly=%t)", g.id, memoryOnly)
	return true
}

func (g *group) freeBackingLocked() {
	if g.backing == nil {
		return
	}
	segs := g.segmentCount
	if g.unmap != nil {
		if err := g.unmap(); err != nil {
			g.log.Warnf("group %d: unmap failed: %v", g.id, err)
		}
		telemetryNativeAllocated.Add(-int64(segs))
	} else {
		telemetryGCAllocated.Add(-int64(segs))
	}
	g.backing = nil
	g.unmap = nil
}

func (g *group) allocateBackingLocked() error {
	n := g.segmentCount * SegmentSize
	b, unmap, err := allocateBacking(g.backingKind, n)
	if err != nil {
		return err
	}
	g.backing = b
	g.unmap = unmap
	if unmap != nil {
		telemetryNativeAllocated.Add(int64(g.segmentCount))
	} else {
		telemetryGCAllocated.Add(int64(g.segmentCount))
	}
	return nil
}

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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *Pool {
	p := NewPool(PoolConfig{BackingKind: BackingHeap, TrimInterval: time.Hour, Log: testLogger()})
	t.Cleanup(p.Dispose)
	return p
}

// Scenario 1: single-segment rent and return.
func TestPool_SingleSegmentRentAndReturn(t *testing.T) {
	p := newTestPool(t)
	h := p.Rent(SegmentSize, false)
	assert.Equal(t, SegmentSize, h.Len())
	assert.Equal(t, 1, h.SegmentCount())

	p.Return(h, ZeroNone)
	gen := p.genPtr.Load()
	assert.Equal(t, 0, gen.groups[0].InUse())
}

func TestPool_RentInvalidSizePanics(t *testing.T) {
	p := newTestPool(t)
	assert.Panics(t, func() { p.Rent(123, false) })
	assert.Panics(t, func() { p.Rent(0, false) })
	assert.Panics(t, func() { p.Rent(-SegmentSize, false) })
}

// Scenario 3: preferred-block hit.
func TestPool_RentPreferredHit(t *testing.T) {
	p := newTestPool(t)
	h := p.Rent(2*SegmentSize, false)
	require.Equal(t, 0, h.FirstSegment())

	next, hit := p.RentPreferred(2*SegmentSize, false, h.Provenance())
	assert.True(t, hit)
	assert.Equal(t, 2, next.FirstSegment())
	assert.Equal(t, h.GroupID(), next.GroupID())
}

func TestPool_RentPreferredFallback(t *testing.T) {
	p := newTestPool(t)
	noSuchPrev := provenance{groupID: 999999, firstSegment: 0, segmentCount: 1}

	h, hit := p.RentPreferred(SegmentSize, false, noSuchPrev)
	assert.False(t, hit)
	assert.False(t, h.IsEmpty())
}

// Scenario 4: expansion on saturation.
func TestPool_ExpandsOnSaturation(t *testing.T) {
	p := newTestPool(t)
	gen0 := p.genPtr.Load()
	require.Equal(t, MinGroupSegments, gen0.groups[0].SegmentCount())

	h := p.Rent(MinGroupSegments*SegmentSize, false)
	assert.Equal(t, MinGroupSegments, h.SegmentCount())

	_ = p.Rent(SegmentSize, false)
	gen1 := p.genPtr.Load()
	assert.Equal(t, gen0.id+1, gen1.id)
	require.Len(t, gen1.groups, 2)
	assert.Equal(t, 8, gen1.groups[1].SegmentCount())
}

// Scenario 5: out-of-band zero drain.
func TestPool_OutOfBandZeroDrain(t *testing.T) {
	p := newTestPool(t)
	h := p.Rent(8*SegmentSize, false)
	for i := range h.Bytes() {
		h.Bytes()[i] = 0xAB
	}
	groupID, first, count := h.GroupID(), h.FirstSegment(), h.SegmentCount()

	p.Return(h, ZeroOutOfBand)

	require.Eventually(t, func() bool {
		return !p.workerActive.Load()
	}, time.Second, time.Millisecond)

	gen := p.genPtr.Load()
	g, ok := gen.findByID(groupID)
	require.True(t, ok)
	assert.True(t, bitAllSet(g.zeroBits, first, count))
	assert.Equal(t, 0, g.InUse())

	h2, oc := g.GetBuffer(count, true)
	require.Equal(t, outcomeAvailable, oc)
	assert.Equal(t, first, h2.FirstSegment())
}

func TestPool_Reduce(t *testing.T) {
	p := newTestPool(t)
	h := p.Rent(4*SegmentSize, false)
	head := p.Reduce(h, 2, ZeroNone)
	assert.Equal(t, 2, head.SegmentCount())

	gen := p.genPtr.Load()
	g, _ := gen.findByID(h.GroupID())
	assert.Equal(t, 2, g.InUse())
}

// Scenario 6: trim releases an empty group and contracts the generation.
func TestPool_TrimReleasesEmptyGroup(t *testing.T) {
	p := newTestPool(t)
	h := p.Rent(MinGroupSegments*SegmentSize, false)
	tailHandle := p.Rent(SegmentSize, false) // forces expansion to 2 groups
	p.Return(h, ZeroNone)

	gen := p.genPtr.Load()
	require.Len(t, gen.groups, 2)
	tailID := gen.groups[1].ID()
	require.Equal(t, tailID, tailHandle.GroupID())

	p.Return(tailHandle, ZeroNone) // tail group is now fully empty

	p.trim() // first observation: records last_trim_check, no release yet
	stillThere := p.genPtr.Load()
	require.Len(t, stillThere.groups, 2)

	p.trim() // second consecutive empty observation: releases and contracts
	contracted := p.genPtr.Load()
	require.Len(t, contracted.groups, 1)
	assert.Equal(t, gen.groups[0].ID(), contracted.groups[0].ID())
}

func TestPool_Dispose(t *testing.T) {
	p := NewPool(PoolConfig{BackingKind: BackingHeap, TrimInterval: time.Hour, Log: testLogger()})
	p.Dispose()
	p.Dispose() // idempotent
}

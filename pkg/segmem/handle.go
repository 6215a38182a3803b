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

// Handle is an owning reference to a contiguous run of segments inside one
// group. It is a small value type: a slice-backed view, the provenance
// triple (group id, first segment, segment count), plus the pool it was
// rented from.
type Handle struct {
	view         segmentView
	groupID      uint64
	firstSegment int
	segmentCount int
	pool         *Pool
}

// GroupID returns the id of the group this handle's segments belong to.
func (h Handle) GroupID() uint64 { return h.groupID }

// FirstSegment returns the index of the first segment this handle covers.
func (h Handle) FirstSegment() int { return h.firstSegment }

// SegmentCount returns the number of segments this handle covers.
func (h Handle) SegmentCount() int { return h.segmentCount }

// IsEmpty reports whether h is the empty sentinel (SegmentCount() == 0).
func (h Handle) IsEmpty() bool { return h.segmentCount == 0 }

// Len returns the length in bytes of the handle's view.
func (h Handle) Len() int { return h.view.Len() }

// Bytes returns the read-write byte projection of the handle's buffer.
func (h Handle) Bytes() []byte { return h.view.Bytes() }

// Pool returns the pool this handle was rented from, or nil for the empty
// sentinel.
func (h Handle) Pool() *Pool { return h.pool }

// Return hands the buffer back to the pool it was rented from with the
// given zero option. It is a convenience equivalent to calling
// Pool.Return(h, opt) directly.
func (h Handle) Return(opt ZeroOption) {
	if h.pool == nil {
		return
	}
	h.pool.Return(h, opt)
}

// split partitions h, an m-segment handle, into two adjacent sub-handles
// covering (k, m-k) segments of the same group. k must be in [0, m].
func (h Handle) split(k int) (Handle, Handle) {
	head := Handle{
		view:         h.view.Slice(0, k*SegmentSize),
		groupID:      h.groupID,
		firstSegment: h.firstSegment,
		segmentCount: k,
		pool:         h.pool,
	}
	tail := Handle{
		view:         h.view.Slice(k*SegmentSize, (h.segmentCount-k)*SegmentSize),
		groupID:      h.groupID,
		firstSegment: h.firstSegment + k,
		segmentCount: h.segmentCount - k,
		pool:         h.pool,
	}
	return head, tail
}

// extend merges a and b, two adjacent sub-handles of the same group
// (a.groupID == b.groupID and a.firstSegment+a.segmentCount ==
// b.firstSegment), into one handle. It returns the merged handle and
// whether the merge was valid.
func extend(a, b Handle) (Handle, bool) {
	if a.groupID != b.groupID || a.firstSegment+a.segmentCount != b.firstSegment {
		return Handle{}, false
	}
	merged, ok := a.view.concat(b.view)
	if !ok {
		return Handle{}, false
	}
	return Handle{
		view:         merged,
		groupID:      a.groupID,
		firstSegment: a.firstSegment,
		segmentCount: a.segmentCount + b.segmentCount,
		pool:         a.pool,
	}, true
}

// provenance captures (groupID, firstSegment, segmentCount) without
// carrying a view or pool reference, satisfying ProvenanceSource for
// RentPreferred callers that keep a handle's identity around without
// keeping the handle itself alive.
type provenance struct {
	groupID      uint64
	firstSegment int
	segmentCount int
}

var _ ProvenanceSource = provenance{}
var _ ProvenanceSource = Handle{}

func (p provenance) GroupID() uint64   { return p.groupID }
func (p provenance) FirstSegment() int { return p.firstSegment }
func (p provenance) SegmentCount() int { return p.segmentCount }

// Provenance returns h's identity as a standalone ProvenanceSource, usable
// as the preferred hint for a later RentPreferred call after h itself has
// been returned or reduced away.
func (h Handle) Provenance() ProvenanceSource {
	return provenance{groupID: h.groupID, firstSegment: h.firstSegment, segmentCount: h.segmentCount}
}

// Extend merges h with next, a handle covering the segments immediately
// following h's in the same group (as returned by a RentPreferred hit
// against h.Provenance()), into a single handle. It reports false without
// modifying either handle if they are not adjacent siblings of one group.
func (h Handle) Extend(next Handle) (Handle, bool) {
	return extend(h, next)
}

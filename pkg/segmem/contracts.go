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

import "fmt"

// ZeroOption controls what a Return does with the memory it hands back.
type ZeroOption int

const (
	// ZeroNone returns the memory with its current contents; the
	// corresponding zero bits are cleared.
	ZeroNone ZeroOption = iota
	// ZeroOnRelease clears the memory synchronously before it is released
	// back to the group.
	ZeroOnRelease
	// ZeroOutOfBand enqueues the buffer to the asynchronous zeroing
	// worker and returns without blocking on the clear.
	ZeroOutOfBand
)

func (z ZeroOption) String() string {
	switch z {
	case ZeroNone:
		return "none"
	case ZeroOnRelease:
		return "on_release"
	case ZeroOutOfBand:
		return "out_of_band"
	default:
		return fmt.Sprintf("ZeroOption(%d)", int(z))
	}
}

// ProvenanceSource describes a previously rented buffer's location, enough
// to attempt a RentPreferred continuation of it. Handle implements this
// directly; Handle.Provenance returns a detached value for callers that
// need the identity to outlive the handle.
type ProvenanceSource interface {
	GroupID() uint64
	FirstSegment() int
	SegmentCount() int
}

// StreamFacade is the projection a growable byte stream needs from a pool:
// renting the next contiguous extension of its current buffer, reducing
// its tail when truncating, and returning buffers on close. pkg/stream is
// the reference implementation consuming this pool surface.
type StreamFacade interface {
	Rent(size int, clearNew bool) Handle
	RentPreferred(size int, clearNew bool, preferred ProvenanceSource) (Handle, bool)
	Return(h Handle, opt ZeroOption)
	Reduce(h Handle, newSegmentCount int, opt ZeroOption) Handle
}

var _ StreamFacade = (*Pool)(nil)

// SmallBufferPool is the contract a bounded, per-size-class sub-segment
// pool exposes; pkg/smallpool is the reference implementation. It exists
// alongside Pool because requests smaller than one segment would waste an
// entire segment if routed through Pool directly.
type SmallBufferPool interface {
	// Rent returns a buffer of at least size bytes, size < SegmentSize.
	Rent(size int) []byte
	// Return hands buf back to the pool for reuse.
	Return(buf []byte)
}

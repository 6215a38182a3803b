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

// Package segmem implements a segmented memory-buffer allocator: large
// fixed-size chunks (groups) carved into same-size segments, tracked by
// bitmaps, served through an immutable, atomically-published generation
// array.
package segmem

// SegmentSize is S, the fixed unit of allocation in bytes.
const SegmentSize = 64 * 1024

// segmentView is a non-owning window over a group's backing memory, heap
// or native alike: both ultimately reduce to a []byte, so the view never
// branches on backing kind. It carries no ownership and must not outlive
// the backing it was carved from.
type segmentView struct {
	b []byte
}

func newSegmentView(b []byte) segmentView {
	return segmentView{b: b}
}

// Len returns the view's length in bytes.
func (v segmentView) Len() int {
	return len(v.b)
}

// Bytes returns the read-write projection of the view. Callers must not
// retain it past the lifetime of the backing group.
func (v segmentView) Bytes() []byte {
	return v.b
}

// ReadOnly returns a read-only sequence projection of the view. Go has no
// const slices, so this is the same window as Bytes by convention only:
// callers that only need to read should use this name to document intent.
func (v segmentView) ReadOnly() []byte {
	return v.b
}

// At returns the byte at index i.
func (v segmentView) At(i int) byte {
	return v.b[i]
}

// SetAt sets the byte at index i.
func (v segmentView) SetAt(i int, b byte) {
	v.b[i] = b
}

// Clear zero-fills the entire view.
func (v segmentView) Clear() {
	clear(v.b)
}

// CopyTo copies min(v.Len(), dst.Len()) bytes into dst and returns the
// number of bytes copied.
func (v segmentView) CopyTo(dst segmentView) int {
	return copy(dst.b, v.b)
}

// Slice returns the sub-view [start, start+length) of v.
func (v segmentView) Slice(start, length int) segmentView {
	return segmentView{b: v.b[start : start+length]}
}

// extend returns a view covering the same start as v with length
// extended by n*SegmentSize, reaching into the same backing array. The
// caller is responsible for knowing the extension stays within bounds.
func (v segmentView) extend(n int) segmentView {
	newLen := v.Len() + n*SegmentSize
	base := v.b[:cap(v.b)]
	return segmentView{b: base[:newLen]}
}

// concat merges v with other, which must immediately follow v in the same
// backing array (other's first byte is v's backing array at index
// len(v.b)). It returns the merged view and whether the merge was valid.
func (v segmentView) concat(other segmentView) (segmentView, bool) {
	if len(v.b) == 0 {
		return other, true
	}
	if len(other.b) == 0 {
		return v, true
	}
	base := v.b[:cap(v.b)]
	if len(base) < len(v.b)+len(other.b) {
		return segmentView{}, false
	}
	merged := base[:len(v.b)+len(other.b)]
	if &merged[len(v.b)] != &other.b[0] {
		return segmentView{}, false
	}
	return segmentView{b: merged}, true
}

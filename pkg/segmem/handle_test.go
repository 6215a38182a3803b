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

	"github.com/stretchr/testify/assert"
)

func TestHandle_EmptySentinel(t *testing.T) {
	var h Handle
	assert.True(t, h.IsEmpty())
	assert.Equal(t, 0, h.Len())
}

func TestHandle_SplitAndExtend(t *testing.T) {
	backing := make([]byte, 4*SegmentSize)
	h := Handle{view: newSegmentView(backing), groupID: 1, firstSegment: 0, segmentCount: 4}

	head, tail := h.split(1)
	assert.Equal(t, 1, head.SegmentCount())
	assert.Equal(t, 0, head.FirstSegment())
	assert.Equal(t, 3, tail.SegmentCount())
	assert.Equal(t, 1, tail.FirstSegment())
	assert.Equal(t, uint64(1), tail.GroupID())

	merged, ok := extend(head, tail)
	assert.True(t, ok)
	assert.Equal(t, 4, merged.SegmentCount())
	assert.Equal(t, 0, merged.FirstSegment())

	_, ok = extend(tail, head)
	assert.False(t, ok)
}

func TestHandle_Provenance(t *testing.T) {
	h := Handle{groupID: 5, firstSegment: 2, segmentCount: 3}
	p := h.Provenance()
	assert.Equal(t, uint64(5), p.GroupID())
	assert.Equal(t, 2, p.FirstSegment())
	assert.Equal(t, 3, p.SegmentCount())
}

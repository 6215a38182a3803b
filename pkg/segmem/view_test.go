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

func TestSegmentView_Basic(t *testing.T) {
	backing := make([]byte, 4*SegmentSize)
	v := newSegmentView(backing[:2*SegmentSize])
	assert.Equal(t, 2*SegmentSize, v.Len())

	v.SetAt(0, 7)
	assert.Equal(t, byte(7), v.At(0))
	assert.Equal(t, byte(7), v.Bytes()[0])

	v.Clear()
	for _, b := range v.ReadOnly() {
		assert.Equal(t, byte(0), b)
	}
}

func TestSegmentView_Slice(t *testing.T) {
	backing := make([]byte, 4*SegmentSize)
	for i := range backing {
		backing[i] = byte(i)
	}
	v := newSegmentView(backing)
	sub := v.Slice(SegmentSize, SegmentSize)
	assert.Equal(t, SegmentSize, sub.Len())
	assert.Equal(t, backing[SegmentSize], sub.At(0))
}

func TestSegmentView_CopyTo(t *testing.T) {
	src := newSegmentView(make([]byte, SegmentSize))
	src.SetAt(0, 9)
	dst := newSegmentView(make([]byte, SegmentSize))
	n := src.CopyTo(dst)
	assert.Equal(t, SegmentSize, n)
	assert.Equal(t, byte(9), dst.At(0))
}

func TestSegmentView_ExtendConcat(t *testing.T) {
	backing := make([]byte, 4*SegmentSize)
	v := newSegmentView(backing[:SegmentSize])
	ext := v.extend(1)
	assert.Equal(t, 2*SegmentSize, ext.Len())

	a := newSegmentView(backing[:SegmentSize])
	b := newSegmentView(backing[SegmentSize : 2*SegmentSize])
	merged, ok := a.concat(b)
	assert.True(t, ok)
	assert.Equal(t, 2*SegmentSize, merged.Len())

	c := newSegmentView(backing[3*SegmentSize:])
	_, ok = a.concat(c)
	assert.False(t, ok)
}

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
package stream

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/kzdev-net/segmem/golibs/logging"
	"github.com/kzdev-net/segmem/pkg/segmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *segmem.Pool {
	p := segmem.NewPool(segmem.PoolConfig{
		BackingKind:  segmem.BackingHeap,
		TrimInterval: time.Hour,
		Log:          logging.NewLogger("stream.test"),
	})
	t.Cleanup(p.Dispose)
	return p
}

func TestStream_WriteReadRoundTrip(t *testing.T) {
	p := newTestPool(t)
	s := New(p, segmem.ZeroNone)
	defer s.Close()

	payload := bytes.Repeat([]byte("abcd"), 100)
	n, err := s.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, int64(len(payload)), s.Len())

	_, err = s.Seek(0, io.SeekStart)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	n, err = s.Read(got)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, got)
}

func TestStream_WriteAcrossSegmentBoundary(t *testing.T) {
	p := newTestPool(t)
	s := New(p, segmem.ZeroNone)
	defer s.Close()

	payload := make([]byte, segmem.SegmentSize+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err := s.Write(payload)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(s.blocks), 1)

	_, _ = s.Seek(0, io.SeekStart)
	got := make([]byte, len(payload))
	_, err = io.ReadFull(s, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestStream_ReadEOF(t *testing.T) {
	p := newTestPool(t)
	s := New(p, segmem.ZeroNone)
	defer s.Close()

	_, err := s.Write([]byte("hi"))
	require.NoError(t, err)
	_, _ = s.Seek(0, io.SeekEnd)

	buf := make([]byte, 1)
	_, err = s.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestStream_SeekVariants(t *testing.T) {
	p := newTestPool(t)
	s := New(p, segmem.ZeroNone)
	defer s.Close()

	_, _ = s.Write([]byte("0123456789"))
	pos, err := s.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	pos, err = s.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos)

	_, err = s.Seek(-100, io.SeekStart)
	assert.Error(t, err)
}

func TestStream_Truncate(t *testing.T) {
	p := newTestPool(t)
	s := New(p, segmem.ZeroNone)
	defer s.Close()

	payload := make([]byte, 2*segmem.SegmentSize)
	_, err := s.Write(payload)
	require.NoError(t, err)
	// The second segment is a preferred hit right after the first, so
	// growOneBlock merges both into a single 2-segment block.
	require.Len(t, s.blocks, 1)
	require.Equal(t, 2, s.blocks[0].SegmentCount())

	require.NoError(t, s.Truncate(int64(segmem.SegmentSize/2)))
	assert.Equal(t, int64(segmem.SegmentSize/2), s.Len())
	assert.Len(t, s.blocks, 1)

	assert.Error(t, s.Truncate(-1))
	assert.Error(t, s.Truncate(s.Len()+1))
}

func TestStream_WriteString(t *testing.T) {
	p := newTestPool(t)
	s := New(p, segmem.ZeroNone)
	defer s.Close()

	n, err := s.WriteString("hello world")
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	_, _ = s.Seek(0, io.SeekStart)
	got := make([]byte, 11)
	_, err = io.ReadFull(s, got)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestStream_CloseReturnsBlocks(t *testing.T) {
	p := newTestPool(t)
	s := New(p, segmem.ZeroNone)

	_, err := s.Write(make([]byte, segmem.SegmentSize))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, 0, len(s.blocks))
}

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

// Package stream implements a growable, segment-backed byte stream on top
// of pkg/segmem: the reference consumer the core allocator was designed
// around, exercising Rent/RentPreferred/Reduce/Return the way a real
// caller would.
package stream

import (
	"fmt"
	"io"

	"github.com/kzdev-net/segmem/golibs/cast"
	"github.com/kzdev-net/segmem/golibs/errors"
	"github.com/kzdev-net/segmem/pkg/segmem"
)

// Stream is a growable sequence of bytes backed by a chain of segment
// buffers rented from a segmem.StreamFacade. It supports Read, Write,
// Seek, Len and Position like an in-memory io.ReadWriteSeeker, but never
// holds its content as one contiguous allocation: each block is a
// segmem.Handle, and position-to-block lookup is a simple slice scan
// since the number of blocks is small relative to their size.
type Stream struct {
	pool   segmem.StreamFacade
	blocks []segmem.Handle // in rented order; each is SegmentSize-aligned
	length int64           // logical content length, <= sum of block lengths
	pos    int64
	zero   segmem.ZeroOption
}

// New creates an empty Stream renting from pool. zeroOnReturn controls
// what ZeroOption blocks are returned with when the stream shrinks or
// closes.
func New(pool segmem.StreamFacade, zeroOnReturn segmem.ZeroOption) *Stream {
	return &Stream{pool: pool, zero: zeroOnReturn}
}

// Len returns the stream's current logical length in bytes.
func (s *Stream) Len() int64 { return s.length }

// Position returns the current read/write cursor offset.
func (s *Stream) Position() int64 { return s.pos }

// Close returns every block to the pool. The Stream must not be used
// afterward.
func (s *Stream) Close() error {
	for _, h := range s.blocks {
		s.pool.Return(h, s.zero)
	}
	s.blocks = nil
	s.length = 0
	s.pos = 0
	return nil
}

// Write appends p at the current cursor, growing the stream and renting
// new blocks as needed, and advances the cursor by len(p).
func (s *Stream) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		blkIdx, offInBlk, err := s.locate(s.pos)
		if err != nil {
			return written, err
		}
		if blkIdx == len(s.blocks) {
			s.growOneBlock()
		}
		blk := s.blocks[blkIdx]
		n := copy(blk.Bytes()[offInBlk:], p)
		p = p[n:]
		s.pos += int64(n)
		written += n
		if s.pos > s.length {
			s.length = s.pos
		}
	}
	return written, nil
}

// WriteString appends s at the current cursor the same way Write does,
// using a zero-copy view of s's bytes instead of the allocation an
// explicit []byte(s) conversion would cost; s is only ever read from, never
// retained past the call, so aliasing its backing array is safe.
func (s *Stream) WriteString(str string) (int, error) {
	return s.Write(cast.StringToByteArray(str))
}

// Read reads into p starting at the current cursor, returning io.EOF once
// the cursor reaches Len().
func (s *Stream) Read(p []byte) (int, error) {
	if s.pos >= s.length {
		return 0, io.EOF
	}
	read := 0
	for len(p) > 0 && s.pos < s.length {
		blkIdx, offInBlk, err := s.locate(s.pos)
		if err != nil {
			return read, err
		}
		blk := s.blocks[blkIdx]
		avail := blk.Len() - offInBlk
		remaining := int(s.length - s.pos)
		if avail > remaining {
			avail = remaining
		}
		n := copy(p, blk.Bytes()[offInBlk:offInBlk+avail])
		p = p[n:]
		s.pos += int64(n)
		read += n
	}
	return read, nil
}

// Seek repositions the cursor per io.Seeker semantics (whence is
// io.SeekStart, io.SeekCurrent, or io.SeekEnd).
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = s.length + offset
	default:
		return 0, fmt.Errorf("invalid whence=%d: %w", whence, errors.ErrInvalid)
	}
	if target < 0 {
		return 0, fmt.Errorf("negative resulting offset %d: %w", target, errors.ErrInvalid)
	}
	s.pos = target
	return s.pos, nil
}

// Truncate shrinks the stream to n bytes, n <= Len(), reducing or
// returning whole blocks past the new length.
func (s *Stream) Truncate(n int64) error {
	if n < 0 || n > s.length {
		return fmt.Errorf("truncate length %d out of [0,%d]: %w", n, s.length, errors.ErrInvalid)
	}
	keepBlocks := int(n+segmem.SegmentSize-1) / segmem.SegmentSize
	for keepBlocks < len(s.blocks) {
		last := len(s.blocks) - 1
		s.pool.Return(s.blocks[last], s.zero)
		s.blocks = s.blocks[:last]
	}
	if keepBlocks > 0 && keepBlocks <= len(s.blocks) {
		keepSegs := int((n + segmem.SegmentSize - 1) / segmem.SegmentSize)
		last := s.blocks[keepBlocks-1]
		if keepSegs < last.SegmentCount() {
			s.blocks[keepBlocks-1] = s.pool.Reduce(last, keepSegs, s.zero)
		}
	}
	s.length = n
	if s.pos > n {
		s.pos = n
	}
	return nil
}

// locate maps a logical offset to (block index, offset within that
// block). An offset exactly at the end of the last block resolves to
// (len(blocks), 0), signaling the caller that a new block must be grown.
func (s *Stream) locate(offset int64) (int, int, error) {
	if offset < 0 {
		return 0, 0, fmt.Errorf("negative offset %d: %w", offset, errors.ErrInvalid)
	}
	remaining := offset
	for i, b := range s.blocks {
		if remaining < int64(b.Len()) {
			return i, int(remaining), nil
		}
		remaining -= int64(b.Len())
	}
	if remaining == 0 {
		return len(s.blocks), 0, nil
	}
	return 0, 0, fmt.Errorf("offset %d beyond any rented block: %w", offset, errors.ErrInvalid)
}

// growOneBlock rents the next block, preferring a contiguous extension of
// the last block it already holds.
func (s *Stream) growOneBlock() {
	const growSize = segmem.SegmentSize
	if len(s.blocks) > 0 {
		last := s.blocks[len(s.blocks)-1]
		if h, ok := s.pool.RentPreferred(growSize, false, last.Provenance()); ok {
			if merged, mergedOK := last.Extend(h); mergedOK {
				s.blocks[len(s.blocks)-1] = merged
				return
			}
			s.blocks = append(s.blocks, h)
			return
		}
	}
	s.blocks = append(s.blocks, s.pool.Rent(growSize, false))
}

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
	"fmt"

	"github.com/edsrzf/mmap-go"
)

// BackingKind selects where a pool's groups allocate their memory from.
type BackingKind int

const (
	// BackingHeap allocates group backing from the Go heap.
	BackingHeap BackingKind = iota
	// BackingNative allocates group backing from an anonymous mmap region,
	// bypassing the GC-scanned heap for large, long-lived chunks.
	BackingNative
)

func (k BackingKind) String() string {
	switch k {
	case BackingHeap:
		return "heap"
	case BackingNative:
		return "native"
	default:
		return fmt.Sprintf("BackingKind(%d)", int(k))
	}
}

// nativeBacking allocates an anonymous, read-write mmap region of n bytes
// and exposes it through the exact same []byte shape heap backing uses;
// mmap.MMap is itself defined as a []byte, so no adapter is needed past
// construction. It returns a closer that unmaps the region.
func nativeBacking(n int) ([]byte, func() error, error) {
	m, err := mmap.MapRegion(nil, n, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("could not mmap %d bytes: %w", n, err)
	}
	return []byte(m), func() error { return m.Unmap() }, nil
}

// heapBacking allocates n bytes from the Go heap. The slice is
// uninitialized-equivalent: make zero-fills by language guarantee, but
// groups never rely on that since zero_bits tracks zero status explicitly
// and starts out cleared, so the first rent of a segment that requires
// zeroed memory clears it anyway.
func heapBacking(n int) ([]byte, func() error, error) {
	return make([]byte, n), nil, nil
}

func allocateBacking(kind BackingKind, n int) ([]byte, func() error, error) {
	switch kind {
	case BackingNative:
		return nativeBacking(n)
	default:
		return heapBacking(n)
	}
}

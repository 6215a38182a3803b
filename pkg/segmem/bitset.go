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

import "math/bits"

// wordsFor returns the number of 64-bit words needed to hold n bits.
func wordsFor(n int) int {
	return (n + 63) / 64
}

func bitGet(words []uint64, i int) bool {
	return words[i/64]&(uint64(1)<<(uint(i)%64)) != 0
}

// bitSetRange sets or clears the contiguous range of bits [start, start+n)
// in words, a generalization of the single-bit-per-block header scan in
// the teacher's block allocator to a word-wide run at a time.
func bitSetRange(words []uint64, start, n int, val bool) {
	for n > 0 {
		w := start / 64
		off := uint(start % 64)
		run := 64 - int(off)
		if run > n {
			run = n
		}
		var mask uint64
		if run == 64 {
			mask = ^uint64(0)
		} else {
			mask = ((uint64(1) << uint(run)) - 1) << off
		}
		if val {
			words[w] |= mask
		} else {
			words[w] &^= mask
		}
		start += run
		n -= run
	}
}

// bitAllSet reports whether every bit in [start, start+n) of words is set.
func bitAllSet(words []uint64, start, n int) bool {
	for n > 0 {
		w := start / 64
		off := uint(start % 64)
		run := 64 - int(off)
		if run > n {
			run = n
		}
		var mask uint64
		if run == 64 {
			mask = ^uint64(0)
		} else {
			mask = ((uint64(1) << uint(run)) - 1) << off
		}
		if words[w]&mask != mask {
			return false
		}
		start += run
		n -= run
	}
	return true
}

func popcount(words []uint64) int {
	n := 0
	for _, w := range words {
		n += bits.OnesCount64(w)
	}
	return n
}

// scanRuns walks segments [0, total) left to right, calling f once for
// every maximal run of same-state (used/free) bits. Scanning stops early
// if f returns true.
func scanRuns(used []uint64, total int, f func(start, length int, isUsed bool) (stop bool)) {
	i := 0
	for i < total {
		state := bitGet(used, i)
		start := i
		i++
		for i < total && bitGet(used, i) == state {
			i++
		}
		if f(start, i-start, state) {
			return
		}
	}
}

// findClosestFit scans the free runs in used (total segments) and returns
// the start of the run chosen by the closest-fit policy: among runs >=
// requested it keeps the shortest one, the first in scan order on a tie.
// ok is false if no free run is at least requested segments long; a
// shorter run is never returned.
func findClosestFit(used []uint64, total, requested int) (start int, ok bool) {
	bestStart, bestLen := -1, -1
	scanRuns(used, total, func(s, length int, isUsed bool) bool {
		if isUsed {
			return false
		}
		switch {
		case bestStart < 0:
			bestStart, bestLen = s, length
		case bestLen >= requested:
			if length >= requested && length < bestLen {
				bestStart, bestLen = s, length
			}
		default:
			if length > bestLen {
				bestStart, bestLen = s, length
			}
		}
		return false
	})
	if bestStart < 0 || bestLen < requested {
		return -1, false
	}
	return bestStart, true
}

// findSingleFree returns the index of the first free segment via a simple
// linear bit scan, skipping the closest-fit machinery entirely for the
// common single-segment rent.
func findSingleFree(used []uint64, total int) (int, bool) {
	for i := 0; i < total; i++ {
		if !bitGet(used, i) {
			return i, true
		}
	}
	return -1, false
}

// freeRunAt returns how many contiguous free segments start exactly at
// start, capped at max. It is 0 if start itself is used or out of bounds.
func freeRunAt(used []uint64, total, start, max int) int {
	if start < 0 || start >= total || bitGet(used, start) {
		return 0
	}
	n := 0
	for n < max && start+n < total && !bitGet(used, start+n) {
		n++
	}
	return n
}

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
	"sync"
	"sync/atomic"
	"time"

	"github.com/kzdev-net/segmem/golibs/container"
	"github.com/kzdev-net/segmem/golibs/errors"
	"github.com/kzdev-net/segmem/golibs/logging"
	"github.com/kzdev-net/segmem/golibs/ulidutils"
)

const (
	// DefaultTrimInterval is the trim timer period used in release builds.
	DefaultTrimInterval = 10 * time.Minute
	// DebugTrimInterval is a much shorter period suited to interactive
	// debugging and tests that want to observe a trim within seconds.
	DebugTrimInterval = 20 * time.Second

	zeroQueueCapacity  = 100
	lockedRetryPasses  = 4
	releaseRetryBudget = 8
)

// PoolConfig configures a new Pool.
type PoolConfig struct {
	// BackingKind selects heap or native (mmap) memory for every group
	// this pool ever allocates. Fixed for the pool's lifetime.
	BackingKind BackingKind
	// TrimInterval overrides DefaultTrimInterval; zero means use the
	// default.
	TrimInterval time.Duration
	// Log overrides the pool's logger; nil means a logger named
	// "segmem.pool" is created.
	Log logging.Logger
}

// Pool owns the current generation of groups and routes every rent/return
// through it. It also runs the asynchronous zeroing worker and the
// periodic trim timer.
type Pool struct {
	backingKind BackingKind
	log         logging.Logger
	instanceID  string

	genPtr      atomic.Pointer[generation]
	nextGroupID atomic.Uint64

	zeroMu       sync.Mutex
	zeroQueue    container.RingBuffer[Handle]
	workerActive atomic.Bool

	trimTicker *time.Ticker
	trimStop   chan struct{}
	trimGate   atomic.Bool
	disposed   atomic.Bool
}

// NewPool constructs a Pool with its initial, never-released first group
// already allocated lazily (the backing is still only carved into
// bitmap-tracked segments; the memory itself allocates on first rent) and
// starts its trim timer.
func NewPool(cfg PoolConfig) *Pool {
	log := cfg.Log
	if log == nil {
		log = logging.NewLogger("segmem.pool")
	}
	interval := cfg.TrimInterval
	if interval <= 0 {
		interval = DefaultTrimInterval
	}

	p := &Pool{
		backingKind: cfg.BackingKind,
		log:         log,
		instanceID:  ulidutils.NewID(),
		zeroQueue:   container.NewRingBuffer[Handle](zeroQueueCapacity),
		trimStop:    make(chan struct{}),
	}
	p.genPtr.Store(newInitialGeneration(cfg.BackingKind, log, p.nextID))
	p.trimTicker = time.NewTicker(interval)
	go p.trimLoop()
	return p
}

// InstanceID returns the pool's correlation id, used in the pool's log
// lines; it has no bearing on group or generation identity, which stay
// monotonic integers.
func (p *Pool) InstanceID() string { return p.instanceID }

func (p *Pool) nextID() uint64 { return p.nextGroupID.Add(1) }

func segsFor(size int) int {
	if size <= 0 || size%SegmentSize != 0 {
		panic(fmt.Errorf("size=%d must be a positive multiple of %d: %w", size, SegmentSize, errors.ErrInvalid))
	}
	return size / SegmentSize
}

// Rent returns a handle covering exactly size bytes, size a positive
// multiple of SegmentSize. It always succeeds: on saturation it expands
// the generation array and retries rather than failing.
func (p *Pool) Rent(size int, clearNew bool) Handle {
	segs := segsFor(size)
	for {
		gen := p.genPtr.Load()
		if h, ok := p.tryRent(gen, segs, clearNew); ok {
			h.pool = p
			return h
		}

		expanded := expandGeneration(gen, segs, p.backingKind, p.log, p.nextID)
		if p.genPtr.CompareAndSwap(gen, expanded) {
			p.log.Infof("pool %s: expanded to generation %d (%d groups, tail=%d segments)",
				p.instanceID, expanded.id, len(expanded.groups), expanded.groups[len(expanded.groups)-1].SegmentCount())
		}
		// If the CAS lost a race, the winner's generation is already
		// installed; either way the next loop iteration reads whatever is
		// current and tries again.
	}
}

// tryRent scans gen tail-first (larger groups first) up to
// lockedRetryPasses times when contention is the only obstacle.
func (p *Pool) tryRent(gen *generation, segs int, clearNew bool) (Handle, bool) {
	for pass := 0; pass < lockedRetryPasses; pass++ {
		anyLocked := false
		for i := len(gen.groups) - 1; i >= 0; i-- {
			h, oc := gen.groups[i].GetBuffer(segs, clearNew)
			switch oc {
			case outcomeAvailable:
				return h, true
			case outcomeGroupLocked:
				anyLocked = true
			}
		}
		if !anyLocked {
			return Handle{}, false
		}
	}
	p.log.Warnf("pool %s: exhausted %d locked-retry passes without a free group, expanding", p.instanceID, lockedRetryPasses)
	return Handle{}, false
}

// RentPreferred tries to extend preferred's buffer in place by reserving
// the segments immediately following it in the same group. isNextInBlock
// is true iff that succeeded (even partially, with fewer than size's worth
// of segments); on any other outcome it falls back to a plain Rent.
func (p *Pool) RentPreferred(size int, clearNew bool, preferred ProvenanceSource) (Handle, bool) {
	segs := segsFor(size)
	if preferred != nil && preferred.SegmentCount() > 0 {
		gen := p.genPtr.Load()
		if g, ok := gen.findByID(preferred.GroupID()); ok {
			next := preferred.FirstSegment() + preferred.SegmentCount()
			if h, ok := g.GetBufferAt(next, segs, clearNew); ok {
				h.pool = p
				return h, true
			}
		}
	}
	return p.Rent(size, clearNew), false
}

// Return hands h's segments back to their originating group. zero_option
// determines whether and when the memory is cleared; see ZeroOption.
func (p *Pool) Return(h Handle, opt ZeroOption) {
	if h.IsEmpty() {
		return
	}
	switch opt {
	case ZeroOnRelease:
		h.view.Clear()
		p.releaseToGroup(h, true)
	case ZeroOutOfBand:
		if !p.enqueueZero(h) {
			// The bounded queue is full; Return must never fail, so fall
			// back to a synchronous clear instead of blocking or dropping
			// the buffer.
			h.view.Clear()
			p.releaseToGroup(h, true)
		}
	default:
		p.releaseToGroup(h, false)
	}
}

// Reduce splits h at newSegmentCount, returns the tail through opt, and
// hands the (shrunk) head back to the caller.
func (p *Pool) Reduce(h Handle, newSegmentCount int, opt ZeroOption) Handle {
	if newSegmentCount >= h.segmentCount {
		return h
	}
	head, tail := h.split(newSegmentCount)
	p.Return(tail, opt)
	head.pool = p
	return head
}

// Dispose cancels the trim timer. It does not free or otherwise touch any
// live buffer; the zero worker drains naturally on its own.
func (p *Pool) Dispose() {
	if !p.disposed.CompareAndSwap(false, true) {
		return
	}
	p.trimTicker.Stop()
	close(p.trimStop)
}

// releaseToGroup routes h's release to the group named by h.groupID,
// searching successive generations in case the one the caller last
// observed is stale (its group already migrated to a newer generation's
// array, though the group object itself is unaffected by that). It
// retries a bounded number of times; per the core's invariants, an
// outstanding handle's group can never actually vanish.
func (p *Pool) releaseToGroup(h Handle, isZeroed bool) bool {
	for attempt := 0; attempt < releaseRetryBudget; attempt++ {
		gen := p.genPtr.Load()
		if g, ok := gen.findByID(h.groupID); ok {
			g.ReleaseBuffer(h, isZeroed)
			return true
		}
	}
	p.log.Errorf("pool %s: could not route release of group %d after %d attempts; buffer leaked",
		p.instanceID, h.groupID, releaseRetryBudget)
	return false
}

func (p *Pool) enqueueZero(h Handle) bool {
	p.zeroMu.Lock()
	err := p.zeroQueue.Write(h)
	p.zeroMu.Unlock()
	if err != nil {
		return false
	}
	if p.workerActive.CompareAndSwap(false, true) {
		go p.zeroWorkerRound()
	}
	return true
}

// zeroWorkerRound is one scheduling of the asynchronous zeroing worker: it
// snapshots the queue's current length L, then pops, clears and releases up
// to L buffers one at a time against the current generation. A buffer whose
// release fails (its group has rotated out from under it) is put back and
// the round stops early, leaving every buffer behind it untouched in the
// queue for the next round to read against the freshest generation. On exit
// it clears the active flag, or re-arms itself by scheduling another round
// if the queue is still non-empty.
func (p *Pool) zeroWorkerRound() {
	p.zeroMu.Lock()
	l := p.zeroQueue.Len()
	p.zeroMu.Unlock()

	for i := 0; i < l; i++ {
		p.zeroMu.Lock()
		h, err := p.zeroQueue.Read()
		p.zeroMu.Unlock()
		if err != nil {
			break
		}

		h.view.Clear()
		if !p.releaseToGroup(h, true) {
			p.zeroMu.Lock()
			_ = p.zeroQueue.Write(h)
			p.zeroMu.Unlock()
			break
		}
	}

	p.zeroMu.Lock()
	nonEmpty := p.zeroQueue.Len() > 0
	if !nonEmpty {
		p.workerActive.Store(false)
	}
	p.zeroMu.Unlock()

	if nonEmpty {
		go p.zeroWorkerRound()
	}
}

func (p *Pool) trimLoop() {
	for {
		select {
		case <-p.trimTicker.C:
			p.trim()
		case <-p.trimStop:
			return
		}
	}
}

// trim releases group 0's backing memory (it is never removed from the
// generation) and attempts a terminal release of every other group,
// contracting the generation if at least one tail group was released. A
// gate prevents re-entrant trims from overlapping.
func (p *Pool) trim() {
	if !p.trimGate.CompareAndSwap(false, true) {
		return
	}
	defer p.trimGate.Store(false)

	gen := p.genPtr.Load()
	gen.groups[0].ReleaseGroup(true)

	anyReleased := false
	for _, g := range gen.groups[1:] {
		if g.ReleaseGroup(false) {
			anyReleased = true
		}
	}
	if !anyReleased {
		return
	}

	for {
		cur := p.genPtr.Load()
		next := contractGeneration(cur)
		if p.genPtr.CompareAndSwap(cur, next) {
			p.log.Infof("pool %s: trim contracted to generation %d (%d groups)", p.instanceID, next.id, len(next.groups))
			return
		}
	}
}

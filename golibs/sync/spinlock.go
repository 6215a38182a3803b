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
package sync

import (
	"context"
	"runtime"
	"sync/atomic"
)

// SpinLock is a Locker backed by a single atomic.Bool test-and-set flag
// instead of an OS mutex. TryLock never blocks, which makes SpinLock a
// natural fit for structural state that is contended often but held only
// for a handful of instructions (a bitmap scan, a counter update): the
// rent-side caller that finds the flag already set is expected to move on
// to other work instead of queueing, while the release-side caller is
// expected to spin until it clears.
type SpinLock struct {
	held atomic.Bool
}

var _ Locker = (*SpinLock)(nil)

// TryLock attempts to acquire the lock and returns immediately either way.
func (s *SpinLock) TryLock(_ context.Context) bool {
	return s.held.CompareAndSwap(false, true)
}

// Lock spins until the lock is acquired. It never returns without holding it.
func (s *SpinLock) Lock() {
	for !s.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

// LockWithCtx spins until the lock is acquired or ctx is done.
func (s *SpinLock) LockWithCtx(ctx context.Context) error {
	for !s.held.CompareAndSwap(false, true) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			runtime.Gosched()
		}
	}
	return nil
}

// Unlock releases the lock. Unlocking a lock that is not held is a programming error.
func (s *SpinLock) Unlock() {
	s.held.Store(false)
}

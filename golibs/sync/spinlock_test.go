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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpinLock_TryLock(t *testing.T) {
	var sl SpinLock
	assert.True(t, sl.TryLock(context.Background()))
	assert.False(t, sl.TryLock(context.Background()))
	sl.Unlock()
	assert.True(t, sl.TryLock(context.Background()))
}

func TestSpinLock_LockUnlock(t *testing.T) {
	var sl SpinLock
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sl.Lock()
			counter++
			sl.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestSpinLock_LockWithCtx(t *testing.T) {
	var sl SpinLock
	sl.Lock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := sl.LockWithCtx(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

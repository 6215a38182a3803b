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
package main

import (
	"context"
	"math/rand"
	"sync"
	"time"

	gocontext "github.com/kzdev-net/segmem/golibs/context"
	"github.com/kzdev-net/segmem/golibs/logging"
	"github.com/kzdev-net/segmem/golibs/timeout"
	"github.com/kzdev-net/segmem/golibs/ulidutils"
	"github.com/kzdev-net/segmem/pkg/segmem"
	"github.com/kzdev-net/segmem/pkg/smallpool"
	"github.com/logrange/linker"
)

// App wires a segmem.Pool and a smallpool.Pool via linker, the same DI
// container the teacher's server entry point uses, and drives the
// rent-loop/bench/stats subcommands against them.
type App struct {
	cfg       Config
	log       logging.Logger
	runID     string
	pool      *segmem.Pool
	smallPool *smallpool.Pool
	inj       *linker.Injector
}

// NewApp constructs an App. Call Init to build and wire its components.
func NewApp(cfg Config) *App {
	return &App{
		cfg:   cfg,
		log:   logging.NewLogger("segbench"),
		runID: ulidutils.NewID(),
	}
}

// Init builds the pool and small pool, registers them with a fresh
// injector, and starts it. ctx governs the injector's lifetime.
func (a *App) Init(ctx context.Context) error {
	a.pool = segmem.NewPool(segmem.PoolConfig{
		BackingKind:  backingFromString(a.cfg.Pool.Backing),
		TrimInterval: a.cfg.Pool.TrimInterval,
		Log:          logging.NewLogger("segmem.pool"),
	})
	a.smallPool = smallpool.New(a.cfg.SmallPool.Classes...)

	a.inj = linker.New()
	a.inj.Register(linker.Component{Name: "segmemPool", Value: a.pool})
	a.inj.Register(linker.Component{Name: "smallPool", Value: a.smallPool})
	a.inj.Init(ctx)

	a.log.Infof("segbench run=%s starting: backing=%s workers=%d iterations=%d",
		a.runID, a.cfg.Pool.Backing, a.cfg.Run.Workers, a.cfg.Run.Iterations)
	return nil
}

// Shutdown disposes the pool and tears down the injector.
func (a *App) Shutdown() {
	a.pool.Dispose()
	a.inj.Shutdown()
	a.log.Infof("segbench run=%s stopped", a.runID)
}

func backingFromString(s string) segmem.BackingKind {
	if s == "native" {
		return segmem.BackingNative
	}
	return segmem.BackingHeap
}

func zeroOptionFromString(s string) segmem.ZeroOption {
	switch s {
	case "out_of_band":
		return segmem.ZeroOutOfBand
	case "none":
		return segmem.ZeroNone
	default:
		return segmem.ZeroOnRelease
	}
}

// randomSegmentCount picks a request size, in segments, uniformly in
// [cfg.Run.MinSegments, cfg.Run.MaxSegments].
func (c RunSettings) randomSegmentCount(rnd *rand.Rand) int {
	if c.MaxSegments <= c.MinSegments {
		return c.MinSegments
	}
	return c.MinSegments + rnd.Intn(c.MaxSegments-c.MinSegments+1)
}

// RentLoop runs cfg.Run.Workers goroutines, each renting and returning a
// random-sized buffer cfg.Run.Iterations times, until ctx is done or the
// iteration budget is exhausted. A timeout.Call watchdog logs a warning if
// any single iteration stalls past a generous deadline — the kind of stuck
// Group lock a real caller would want paged on.
func (a *App) RentLoop(ctx context.Context) {
	opt := zeroOptionFromString(a.cfg.Run.ZeroOption)
	var wg sync.WaitGroup
	for w := 0; w < a.cfg.Run.Workers; w++ {
		wg.Add(1)
		workerID := w
		go func() {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for i := 0; i < a.cfg.Run.Iterations; i++ {
				select {
				case <-ctx.Done():
					return
				default:
				}

				segs := a.cfg.Run.randomSegmentCount(rnd)
				watchdog := timeout.Call(func() {
					a.log.Warnf("worker %d: iteration %d has not completed after 5s, possible stuck lock", workerID, i)
				}, 5*time.Second)

				h := a.pool.Rent(segs*segmem.SegmentSize, false)
				a.pool.Return(h, opt)

				watchdog.Cancel()
				gocontext.Sleep(ctx, time.Microsecond)
			}
		}()
	}
	wg.Wait()
}

// BenchResult summarizes a bench run's throughput.
type BenchResult struct {
	TotalOps     int
	Elapsed      time.Duration
	OpsPerSecond float64
}

// Bench runs the same workload as RentLoop but times it and returns a
// throughput summary instead of logging each iteration.
func (a *App) Bench(ctx context.Context) BenchResult {
	opt := zeroOptionFromString(a.cfg.Run.ZeroOption)
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < a.cfg.Run.Workers; w++ {
		wg.Add(1)
		workerID := w
		go func() {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for i := 0; i < a.cfg.Run.Iterations; i++ {
				select {
				case <-ctx.Done():
					return
				default:
				}
				segs := a.cfg.Run.randomSegmentCount(rnd)
				h := a.pool.Rent(segs*segmem.SegmentSize, false)
				a.pool.Return(h, opt)
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	total := a.cfg.Run.Workers * a.cfg.Run.Iterations
	return BenchResult{
		TotalOps:     total,
		Elapsed:      elapsed,
		OpsPerSecond: float64(total) / elapsed.Seconds(),
	}
}

// Stats returns every registered gauge whose name matches pattern (an
// empty pattern matches everything), for the "stats" subcommand.
func (a *App) Stats(pattern string) (map[string]int64, error) {
	return segmem.ListGauges(pattern)
}

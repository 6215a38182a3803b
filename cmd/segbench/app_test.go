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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Run.Workers = 2
	cfg.Run.Iterations = 20
	cfg.Pool.TrimInterval = time.Hour
	return cfg
}

func TestApp_RentLoopCompletes(t *testing.T) {
	app := NewApp(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Init(ctx))
	defer app.Shutdown()

	app.RentLoop(ctx)
}

func TestApp_BenchReportsThroughput(t *testing.T) {
	app := NewApp(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Init(ctx))
	defer app.Shutdown()

	result := app.Bench(ctx)
	assert.Equal(t, 40, result.TotalOps)
	assert.Greater(t, result.OpsPerSecond, 0.0)
}

func TestApp_StatsMatchesPattern(t *testing.T) {
	app := NewApp(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Init(ctx))
	defer app.Shutdown()

	app.Bench(ctx)

	gauges, err := app.Stats("*gc_allocated*")
	require.NoError(t, err)
	assert.Contains(t, gauges, "segment_memory.gc_allocated")
	assert.NotContains(t, gauges, "segment_memory.native_allocated")
}

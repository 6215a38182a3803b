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

// Command segbench exercises pkg/segmem end to end: rent-loop drives the
// pool under concurrent load, bench times a fixed workload, and stats
// dumps the process-wide telemetry gauges. It is a demonstration and
// benchmarking harness, not part of the allocator itself.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	gocontext "github.com/kzdev-net/segmem/golibs/context"
	"github.com/spf13/cobra"
)

func main() {
	var configFile string

	root := &cobra.Command{
		Use:   "segbench",
		Short: "Exercises the segmem pool with synthetic rent/return workloads",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML or JSON pool-tuning file")

	root.AddCommand(newRentLoopCmd(&configFile))
	root.AddCommand(newBenchCmd(&configFile))
	root.AddCommand(newStatsCmd(&configFile))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bootstrap(configFile string) (*App, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}
	spew.Fdump(os.Stderr, cfg)
	return NewApp(cfg), nil
}

// runWithApp bootstraps an App, wraps the process signal context with a
// cancel-with-error context so the reason a run stopped (clean completion,
// a propagated signal, or body's own error) is distinguishable in the log
// line Shutdown would otherwise leave implicit, then runs body and tears
// the App down.
func runWithApp(configFile string, body func(ctx context.Context, app *App) error) error {
	app, err := bootstrap(configFile)
	if err != nil {
		return err
	}

	signalCtx := gocontext.NewSignalsContext(os.Interrupt, syscall.SIGTERM)
	ctx, cancel := gocontext.WithCancelError(signalCtx)

	if err := app.Init(ctx); err != nil {
		cancel(err)
		return err
	}
	defer app.Shutdown()

	bodyErr := body(ctx, app)
	cancel(bodyErr)
	switch {
	case bodyErr != nil:
		app.log.Errorf("run stopped with error: %v", bodyErr)
	case signalCtx.Err() != nil:
		app.log.Infof("run stopped by signal")
	}
	return bodyErr
}

func newRentLoopCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rent-loop",
		Short: "Rents and returns random-sized buffers until interrupted or the iteration budget runs out",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(*configFile, func(ctx context.Context, app *App) error {
				app.RentLoop(ctx)
				return nil
			})
		},
	}
}

func newBenchCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bench",
		Short: "Times a fixed rent/return workload and reports throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(*configFile, func(ctx context.Context, app *App) error {
				result := app.Bench(ctx)
				fmt.Printf("ops=%d elapsed=%s ops/sec=%.0f\n", result.TotalOps, result.Elapsed, result.OpsPerSecond)
				return nil
			})
		},
	}
}

func newStatsCmd(configFile *string) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Prints the process-wide segment telemetry gauges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(*configFile, func(ctx context.Context, app *App) error {
				gauges, err := app.Stats(pattern)
				if err != nil {
					return err
				}
				names := make([]string, 0, len(gauges))
				for name := range gauges {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Printf("%-40s %d\n", name, gauges[name])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pattern, "match", "*", "glob pattern filtering gauge names")
	return cmd
}

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
	"fmt"
	"time"

	"github.com/kzdev-net/segmem/golibs/config"
	"github.com/kzdev-net/segmem/golibs/errors"
)

// PoolSettings is the pool-tuning section of Config, loadable from a YAML
// or JSON file and overridable by environment variables.
type PoolSettings struct {
	// Backing selects "heap" or "native" group backing.
	Backing string `json:"backing"`
	// TrimInterval is how often the pool scans for empty groups to release.
	TrimInterval time.Duration `json:"trimInterval"`
}

// RunSettings controls how the rent-loop and bench subcommands drive the
// pool.
type RunSettings struct {
	// Workers is the number of concurrent renter goroutines.
	Workers int `json:"workers"`
	// Iterations is how many rent/return cycles each worker performs.
	Iterations int `json:"iterations"`
	// MinSegments and MaxSegments bound the random request size, in
	// segments, each iteration rents.
	MinSegments int `json:"minSegments"`
	MaxSegments int `json:"maxSegments"`
	// ZeroOption names the ZeroOption every Return uses: "none",
	// "on_release", or "out_of_band".
	ZeroOption string `json:"zeroOption"`
}

// SmallPoolSettings configures the sub-segment size classes.
type SmallPoolSettings struct {
	Classes []int `json:"classes"`
}

// Config is segbench's whole configuration surface.
type Config struct {
	Pool      PoolSettings      `json:"pool"`
	Run       RunSettings       `json:"run"`
	SmallPool SmallPoolSettings `json:"smallPool"`
}

// DefaultConfig returns the settings segbench runs with when no config
// file or environment overrides are supplied.
func DefaultConfig() Config {
	return Config{
		Pool: PoolSettings{
			Backing:      "heap",
			TrimInterval: time.Minute,
		},
		Run: RunSettings{
			Workers:     4,
			Iterations:  1000,
			MinSegments: 1,
			MaxSegments: 8,
			ZeroOption:  "on_release",
		},
		SmallPool: SmallPoolSettings{
			Classes: []int{64, 256, 1024, 4096},
		},
	}
}

// loadConfig builds segbench's Config from an optional file and the
// SEGBENCH_-prefixed environment variables, applied on top of
// DefaultConfig.
func loadConfig(configFile string) (Config, error) {
	e := config.NewEnricher(DefaultConfig())
	if err := e.LoadFromFile(configFile); err != nil {
		return Config{}, fmt.Errorf("could not load config file %s: %w", configFile, err)
	}
	if err := e.ApplyEnvVariables("SEGBENCH", "_"); err != nil {
		return Config{}, fmt.Errorf("could not apply environment overrides: %w", err)
	}
	cfg := e.Value()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Run.Workers <= 0 {
		return fmt.Errorf("run.workers must be positive: %w", errors.ErrInvalid)
	}
	if c.Run.MinSegments <= 0 || c.Run.MaxSegments < c.Run.MinSegments {
		return fmt.Errorf("run.minSegments/maxSegments out of range: %w", errors.ErrInvalid)
	}
	switch c.Pool.Backing {
	case "heap", "native":
	default:
		return fmt.Errorf("pool.backing must be heap or native, got %q: %w", c.Pool.Backing, errors.ErrInvalid)
	}
	switch c.Run.ZeroOption {
	case "none", "on_release", "out_of_band":
	default:
		return fmt.Errorf("run.zeroOption must be none, on_release or out_of_band, got %q: %w", c.Run.ZeroOption, errors.ErrInvalid)
	}
	return nil
}

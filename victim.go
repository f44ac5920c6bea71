// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Long running encryption workload for monitoring from another process.
package sidechannel

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
)

type VictimConfig struct {
	Key []byte
	// Plaintext policy. RandGen when nil.
	PtGen PtGen
	// Progress is logged every ReportEvery encryptions. 0 disables it.
	ReportEvery int
	// Sleep after every encryption.
	Pause time.Duration
	// Stop after this many encryptions. 0 runs until ctx is done.
	Iterations int
}

func DefaultVictimConfig(key []byte) VictimConfig {
	return VictimConfig{
		Key:         key,
		ReportEvery: 100000,
		Pause:       10 * time.Microsecond,
	}
}

// Encrypts continuously with cfg.Key. Returns the number of encryptions
// performed. Cancelling ctx is a normal stop and returns a nil error.
func RunVictim(ctx context.Context, cfg VictimConfig) (int, error) {
	sched, err := Expand(cfg.Key)
	if err != nil {
		return 0, err
	}
	if cfg.Iterations < 0 || cfg.ReportEvery < 0 || cfg.Pause < 0 {
		return 0, fmt.Errorf("%w: negative victim setting", ErrInvalidConfig)
	}
	gen := cfg.PtGen
	if gen == nil {
		gen = RandGen()
	}
	return runOracle(ctx, sched, gen, cfg)
}

func runOracle(ctx context.Context, oracle Oracle, gen PtGen, cfg VictimConfig) (int, error) {
	var pt, ct [BlockSize]byte
	done := ctx.Done()
	n := 0
	for cfg.Iterations == 0 || n < cfg.Iterations {
		select {
		case <-done:
			glog.Infof("Victim stopped after %d encryptions", n)
			return n, nil
		default:
		}
		if err := gen(0, n, pt[:]); err != nil {
			return n, fmt.Errorf("plaintext generation failed: %v", err)
		}
		oracle.Encrypt(ct[:], pt[:])
		n++
		if cfg.ReportEvery > 0 && n%cfg.ReportEvery == 0 {
			glog.Infof("Iterations: %d", n)
		}
		if cfg.Pause > 0 {
			time.Sleep(cfg.Pause)
		}
	}
	return n, nil
}

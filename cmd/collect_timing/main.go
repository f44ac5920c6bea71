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

// Streams per-encryption timing samples of a full sweep to a CSV table for
// offline analysis.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"os"
	"os/signal"

	"github.com/senthil4321/sidechannel"

	"github.com/golang/glog"
)

var (
	keyHexFlag = flag.String("key", "2b7e151628aed2a6abf7158809cf4f3c",
		"16byte key in hex")
	indexFlag      = flag.Int("index", 0, "Key byte to sweep")
	countersFlag   = flag.String("counters", "WALL_CLOCK", "Comma separated counters")
	iterationsFlag = flag.Int("iterations", 100, "Encryptions per repeat")
	repeatsFlag    = flag.Int("repeats", 10, "Repeats per candidate")
	warmupFlag     = flag.Int("warmup", 100, "Untimed encryptions per candidate")
	flushFlag      = flag.Bool("flush", false, "Evict caches before every repeat")
	perIterFlag    = flag.Bool("per_iteration", true, "Record every encryption instead of repeat means")
	ptFlag         = flag.String("pt", "counter", "Plaintext policy: zero, counter, random, seeded")
	seedFlag       = flag.Uint64("seed", 1, "Seed of the seeded plaintext policy")
	labelFlag      = flag.Bool("label", true, "Label rows of the key byte as correct")
	outputFlag     = flag.String("output", "timing_data.csv", "CSV output file")
	captureFlag    = flag.String("capture", "", "Optional .json.gz capture output file")
)

func init() {
	flag.Parse()
}

func main() {
	var err error
	defer glog.Flush()

	var key []byte
	if key, err = hex.DecodeString(*keyHexFlag); err != nil {
		glog.Fatal(err)
	}
	gen, err := sidechannel.ParsePtGen(*ptFlag, *seedFlag)
	if err != nil {
		glog.Fatal(err)
	}
	selectors, err := sidechannel.ParseSelectors(*countersFlag)
	if err != nil {
		glog.Fatal(err)
	}
	counters, err := sidechannel.OpenCounters(sidechannel.NewCounterRequests(selectors), true)
	if err != nil {
		glog.Fatalf("%v. %s", err, sidechannel.Remediation(err))
	}
	defer counters.Close()

	cfg := sidechannel.HarnessConfig{
		Iterations: *iterationsFlag,
		Repeats:    *repeatsFlag,
		Warmup:     *warmupFlag,
		FlushCache: *flushFlag,
	}
	if *perIterFlag {
		cfg.Granularity = sidechannel.PerIteration
	}
	harness, err := sidechannel.NewHarness(counters, cfg)
	if err != nil {
		glog.Fatal(err)
	}

	csv, err := sidechannel.CreateCSV(*outputFlag)
	if err != nil {
		glog.Fatal(err)
	}
	sweepCfg := sidechannel.SweepConfig{
		BaseKey:     key,
		TargetIndex: *indexFlag,
		PtGen:       gen,
		Labeled:     *labelFlag,
	}
	// The table has no counter column, so only the first counter is exported.
	sinks := sidechannel.MultiSink{sidechannel.CounterFilter{Counter: counters[0].Name(), Sink: csv}}
	var capture *sidechannel.Capture
	if len(*captureFlag) > 0 {
		capture = sidechannel.NewCapture(sweepCfg, counters.Names())
		sinks = append(sinks, capture)
	}
	sweepCfg.Sink = sinks

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	glog.Infof("Collecting %d samples per candidate into %v",
		cfg.WindowsPerCandidate(), *outputFlag)
	_, err = sidechannel.Sweep(ctx, harness, sweepCfg)
	if cerr := csv.Close(); cerr != nil {
		glog.Error(cerr)
	}
	if err != nil {
		glog.Fatal(err)
	}
	glog.Infof("Wrote %d rows to %v", csv.Rows(), *outputFlag)

	if capture != nil {
		if err = capture.Save(*captureFlag); err != nil {
			glog.Fatal(err)
		}
	}
}

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

// Recovers one key byte by sweeping all 256 candidates and picking the
// extreme mean.

// $ go run ./cmd/key_extractor -logtostderr -counters LEAK_PROBE -known -iterations 1000
// $ sudo go run ./cmd/key_extractor -logtostderr -v=1 -counters CPU_CYCLES,CACHE_MISSES

package main

import (
	"context"
	"encoding/hex"
	"flag"
	"os"
	"os/signal"

	"github.com/senthil4321/sidechannel"
	"github.com/senthil4321/sidechannel/util"

	"github.com/golang/glog"
)

var (
	keyHexFlag = flag.String("key", "2b7e151628aed2a6abf7158809cf4f3c",
		"16byte base key in hex")
	indexFlag      = flag.Int("index", 0, "Key byte to recover")
	countersFlag   = flag.String("counters", "CPU_CYCLES", "Comma separated counters, e.g. CPU_CYCLES,CACHE_MISSES,WALL_CLOCK")
	fallbackFlag   = flag.Bool("fallback", true, "Fall back to WALL_CLOCK when no counter can be opened")
	iterationsFlag = flag.Int("iterations", 50000, "Encryptions per timed window")
	repeatsFlag    = flag.Int("repeats", 5, "Timed windows per candidate")
	warmupFlag     = flag.Int("warmup", 1000, "Untimed encryptions before the first window")
	flushFlag      = flag.Bool("flush", true, "Evict caches before every window")
	ptFlag         = flag.String("pt", "zero", "Plaintext policy: zero, counter, random, seeded")
	seedFlag       = flag.Uint64("seed", 1, "Seed of the seeded plaintext policy")
	polarityFlag   = flag.String("polarity", "min", "Which extreme wins: min or max")
	knownFlag      = flag.Bool("known", false, "Validate the prediction against the base key byte")
	topFlag        = flag.Int("top", 10, "Candidates shown per counter")
	outputFlag     = flag.String("output", "", "Optional CSV export of every window value")
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
	polarity, err := sidechannel.ParsePolarity(*polarityFlag)
	if err != nil {
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

	counters, err := sidechannel.OpenCounters(sidechannel.NewCounterRequests(selectors), *fallbackFlag)
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
	harness, err := sidechannel.NewHarness(counters, cfg)
	if err != nil {
		glog.Fatal(err)
	}

	sweepCfg := sidechannel.SweepConfig{
		BaseKey:     key,
		TargetIndex: *indexFlag,
		PtGen:       gen,
		Labeled:     *knownFlag,
	}
	var sinks sidechannel.MultiSink
	var csv *sidechannel.CSVWriter
	if len(*outputFlag) > 0 {
		if csv, err = sidechannel.CreateCSV(*outputFlag); err != nil {
			glog.Fatal(err)
		}
		sinks = append(sinks, csv)
	}
	var capture *sidechannel.Capture
	if len(*captureFlag) > 0 {
		capture = sidechannel.NewCapture(sweepCfg, counters.Names())
		sinks = append(sinks, capture)
	}
	if len(sinks) > 0 {
		sweepCfg.Sink = sinks
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := sidechannel.Sweep(ctx, harness, sweepCfg)
	if csv != nil {
		if cerr := csv.Close(); cerr != nil {
			glog.Error(cerr)
		}
	}
	if err != nil {
		glog.Fatal(err)
	}
	if capture != nil {
		if err = capture.Save(*captureFlag); err != nil {
			glog.Fatal(err)
		}
	}

	dcfg := sidechannel.DiscriminatorConfig{Polarity: polarity, Known: report.Known}
	for _, res := range report.Results {
		r, err := sidechannel.Discriminate(res, dcfg)
		if err != nil {
			glog.Errorf("Counter %v: %v", res.Counter, err)
			continue
		}
		util.PrintReport(os.Stdout, res, r, *topFlag)
	}
}

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

// Prints cache event counts of another process once per interval.

// $ go run ./cmd/spy -logtostderr -pid $(pgrep victim)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/senthil4321/sidechannel"

	"github.com/golang/glog"
)

var (
	pidFlag      = flag.Int("pid", 0, "Target process id")
	eventsFlag   = flag.String("events", "L1D_MISS,L1I_MISS,LLC_MISS,CACHE_REFERENCES", "Comma separated counters")
	intervalFlag = flag.Duration("interval", time.Second, "Sampling interval")
	ticksFlag    = flag.Int("ticks", 0, "Stop after N intervals, 0 runs until interrupted")
)

func init() {
	flag.Parse()
}

func main() {
	defer glog.Flush()

	if *pidFlag <= 0 {
		glog.Fatal("-pid is required")
	}
	selectors, err := sidechannel.ParseSelectors(*eventsFlag)
	if err != nil {
		glog.Fatal(err)
	}
	cfg := sidechannel.MonitorConfig{
		Pid:       *pidFlag,
		Selectors: selectors,
		Interval:  *intervalFlag,
		Ticks:     *ticksFlag,
	}
	monitor, err := sidechannel.NewMonitor(cfg)
	if err != nil {
		glog.Fatalf("Failed to set up any counter: %v. %s", err, sidechannel.Remediation(err))
	}
	defer monitor.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	names := monitor.Counters()
	fmt.Printf("%-8s", "Tick")
	for _, n := range names {
		fmt.Printf("%-20s", n)
	}
	fmt.Printf("\n%s\n", strings.Repeat("=", 8+20*len(names)))

	err = monitor.Run(ctx, func(row sidechannel.MonitorRow) error {
		fmt.Printf("%-8d", row.Tick)
		for i, v := range row.Deltas {
			if row.Ok[i] {
				fmt.Printf("%-20.0f", v)
			} else {
				fmt.Printf("%-20s", "ERROR")
			}
		}
		fmt.Println()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		glog.Fatal(err)
	}
}

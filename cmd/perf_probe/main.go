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

// Lists which performance counters this host lets us open, with a sample
// reading of each.
package main

import (
	"flag"
	"os"

	"github.com/senthil4321/sidechannel"
	"github.com/senthil4321/sidechannel/util"

	"github.com/golang/glog"
)

var (
	pidFlag    = flag.Int("pid", 0, "Process to attach to, 0 is self")
	eventsFlag = flag.String("events", "", "Comma separated counters, all when empty")
)

func init() {
	flag.Parse()
}

func main() {
	defer glog.Flush()

	selectors := append(sidechannel.HardwareSelectors(), sidechannel.SelectorWallClock)
	if len(*eventsFlag) > 0 {
		var err error
		if selectors, err = sidechannel.ParseSelectors(*eventsFlag); err != nil {
			glog.Fatal(err)
		}
	}
	workloads := sidechannel.DefaultWorkloads()
	results := sidechannel.ProbeCounters(selectors, *pidFlag, workloads)
	util.PrintProbe(os.Stdout, results, workloads)

	available := 0
	for _, r := range results {
		if r.Available {
			available++
		}
	}
	glog.Infof("%d of %d counters available", available, len(results))
}

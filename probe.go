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

// Reports which counters this host can open.
package sidechannel

import "github.com/golang/glog"

// Workload is run while a probed counter is armed.
type Workload struct {
	Name string
	Run  func()
}

var workloadSink uint64

// An arithmetic loop and a sweep over the flush buffer.
func DefaultWorkloads() []Workload {
	flusher := NewFlusher(DefaultFlushSize)
	return []Workload{
		{Name: "cpu", Run: func() {
			var acc uint64
			for i := uint64(0); i < 1000000; i++ {
				acc += i * i
			}
			workloadSink += acc
		}},
		{Name: "memory", Run: func() {
			flusher.Flush()
		}},
	}
}

type ProbeResult struct {
	Selector  Selector
	Available bool
	// One value per workload, in order.
	Values      []float64
	Err         error
	Remediation string
}

// Opens every selector on pid and measures each workload with it.
func ProbeCounters(selectors []Selector, pid int, workloads []Workload) []ProbeResult {
	results := make([]ProbeResult, 0, len(selectors))
	for _, s := range selectors {
		results = append(results, probeCounter(s, pid, workloads))
	}
	return results
}

func probeCounter(s Selector, pid int, workloads []Workload) ProbeResult {
	res := ProbeResult{Selector: s}
	c, err := OpenCounter(NewPidCounterRequest(s, pid))
	if err != nil {
		res.Err = err
		res.Remediation = Remediation(err)
		glog.V(1).Infof("[probe] %v unavailable: %v", s, err)
		return res
	}
	defer c.Close()

	res.Available = true
	group := CounterGroup{c}
	for _, w := range workloads {
		if err := group.Arm(); err != nil {
			res.Err = err
			return res
		}
		w.Run()
		values, _, err := group.Capture()
		if err != nil {
			res.Err = err
			res.Remediation = Remediation(err)
			return res
		}
		res.Values = append(res.Values, values[0])
		glog.V(1).Infof("[probe] %v %v = %v", s, w.Name, values[0])
	}
	return res
}

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

// Counter/timer source interface.
package sidechannel

import (
	"fmt"
	"io"
	"strings"
)

type Selector int

const (
	SelectorCpuCycles Selector = iota
	SelectorInstructions
	SelectorCacheReferences
	SelectorCacheMisses
	SelectorBranches
	SelectorBranchMisses
	SelectorBusCycles
	SelectorL1dMiss
	SelectorL1iMiss
	SelectorLlcMiss
	SelectorDtlbMiss
	SelectorPageFaults
	SelectorContextSwitches
	SelectorCpuMigrations
	SelectorTaskClock
	SelectorWallClock
	SelectorLeakProbe
)

var selectorNames = map[Selector]string{
	SelectorCpuCycles:       "CPU_CYCLES",
	SelectorInstructions:    "INSTRUCTIONS",
	SelectorCacheReferences: "CACHE_REFERENCES",
	SelectorCacheMisses:     "CACHE_MISSES",
	SelectorBranches:        "BRANCHES",
	SelectorBranchMisses:    "BRANCH_MISSES",
	SelectorBusCycles:       "BUS_CYCLES",
	SelectorL1dMiss:         "L1D_MISS",
	SelectorL1iMiss:         "L1I_MISS",
	SelectorLlcMiss:         "LLC_MISS",
	SelectorDtlbMiss:        "DTLB_MISS",
	SelectorPageFaults:      "PAGE_FAULTS",
	SelectorContextSwitches: "CONTEXT_SWITCHES",
	SelectorCpuMigrations:   "CPU_MIGRATIONS",
	SelectorTaskClock:       "TASK_CLOCK",
	SelectorWallClock:       "WALL_CLOCK",
	SelectorLeakProbe:       "LEAK_PROBE",
}

func (s Selector) String() string {
	if n, ok := selectorNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Selector(%d)", int(s))
}

// Perf event selectors in declaration order. Excludes wall-clock and the
// synthetic leak probe.
func HardwareSelectors() []Selector {
	var res []Selector
	for s := SelectorCpuCycles; s <= SelectorTaskClock; s++ {
		res = append(res, s)
	}
	return res
}

// Parses a selector name, case insensitive.
func ParseSelector(name string) (Selector, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for s, n := range selectorNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown counter selector %q", ErrInvalidConfig, name)
}

// Parses a comma separated selector list.
func ParseSelectors(list string) ([]Selector, error) {
	var res []Selector
	for _, f := range strings.Split(list, ",") {
		if strings.TrimSpace(f) == "" {
			continue
		}
		s, err := ParseSelector(f)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

type EventClass int

const (
	EventClassHardware EventClass = iota
	EventClassSoftware
	EventClassHwCache
	// Not a perf event: wall-clock or leak probe.
	EventClassNone
)

func (c EventClass) String() string {
	switch c {
	case EventClassHardware:
		return "hardware"
	case EventClassSoftware:
		return "software"
	case EventClassHwCache:
		return "hw_cache"
	}
	return "none"
}

// Event class a selector belongs to.
func (s Selector) Class() EventClass {
	switch s {
	case SelectorCpuCycles, SelectorInstructions, SelectorCacheReferences,
		SelectorCacheMisses, SelectorBranches, SelectorBranchMisses, SelectorBusCycles:
		return EventClassHardware
	case SelectorL1dMiss, SelectorL1iMiss, SelectorLlcMiss, SelectorDtlbMiss:
		return EventClassHwCache
	case SelectorPageFaults, SelectorContextSwitches, SelectorCpuMigrations, SelectorTaskClock:
		return EventClassSoftware
	}
	return EventClassNone
}

type SamplingMode int

const (
	SamplingOff SamplingMode = iota
	SamplingPeriod
	SamplingFrequency
)

// Sampling configures overflow sampling. There is no ring-buffer reader for
// sampled records, so OpenCounter only accepts counting mode (SamplingOff).
type Sampling struct {
	Mode SamplingMode
	// Events per sample for SamplingPeriod, Hz for SamplingFrequency.
	Value uint64
}

// CounterRequest describes a counter to open.
type CounterRequest struct {
	Class    EventClass
	Selector Selector
	// 0 monitors the calling process, >0 monitors an external process.
	Pid               int
	Sampling          Sampling
	ExcludeKernel     bool
	ExcludeHypervisor bool
}

// Request for selector s on the calling process, with hypervisor events
// excluded.
func NewCounterRequest(s Selector) CounterRequest {
	return CounterRequest{
		Class:             s.Class(),
		Selector:          s,
		ExcludeHypervisor: true,
	}
}

// Requests for selectors on the calling process. The harness times
// encryptions in this process, so its counters never take a pid.
func NewCounterRequests(selectors []Selector) []CounterRequest {
	reqs := make([]CounterRequest, len(selectors))
	for i, s := range selectors {
		reqs[i] = NewCounterRequest(s)
	}
	return reqs
}

// Same as NewCounterRequest but scoped to an external process.
func NewPidCounterRequest(s Selector, pid int) CounterRequest {
	r := NewCounterRequest(s)
	r.Pid = pid
	return r
}

func (r CounterRequest) Validate() error {
	if r.Pid < 0 {
		return fmt.Errorf("%w: negative pid %d", ErrInvalidConfig, r.Pid)
	}
	if r.Selector.Class() != r.Class {
		return fmt.Errorf("%w: selector %v is %v, request says %v",
			ErrInvalidConfig, r.Selector, r.Selector.Class(), r.Class)
	}
	if r.Sampling.Mode != SamplingOff && r.Sampling.Value == 0 {
		return fmt.Errorf("%w: sampling enabled with zero period/frequency", ErrInvalidConfig)
	}
	if r.Selector == SelectorLeakProbe && r.Pid != 0 {
		return fmt.Errorf("%w: leak probe cannot monitor pid %d", ErrInvalidConfig, r.Pid)
	}
	return nil
}

// CounterBackend is the raw signal source underneath a Counter. Backends do
// not enforce call ordering, Counter does.
//
//go:generate mockgen -destination=mocks/counter_backend.go -package=mocks github.com/senthil4321/sidechannel CounterBackend
type CounterBackend interface {
	io.Closer
	Name() string
	// Zeroes the accumulated value.
	Reset() error
	// Starts accumulating.
	Enable() error
	// Stops accumulating.
	Disable() error
	// Value accumulated between the last Enable and Disable.
	Read() (float64, error)
}

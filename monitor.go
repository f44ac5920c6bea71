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

// Watches cache behaviour of another process.
package sidechannel

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// Cache events watched by default.
func DefaultMonitorSelectors() []Selector {
	return []Selector{SelectorL1dMiss, SelectorL1iMiss, SelectorLlcMiss, SelectorCacheReferences}
}

type MonitorConfig struct {
	// Target process. 0 is the calling process.
	Pid       int
	Selectors []Selector
	Interval  time.Duration
	// Stop after this many rows. 0 runs until ctx is done.
	Ticks int
}

func DefaultMonitorConfig(pid int) MonitorConfig {
	return MonitorConfig{Pid: pid, Selectors: DefaultMonitorSelectors(), Interval: time.Second}
}

// One row per interval. Deltas[i] is only meaningful where Ok[i] is set.
type MonitorRow struct {
	Tick   int
	Time   time.Time
	Deltas []float64
	Ok     []bool
}

// Monitor counts events of a target over fixed intervals.
type Monitor struct {
	cfg   MonitorConfig
	group CounterGroup
}

// Opens the configured counters on cfg.Pid. Counters the host does not
// allow are dropped. Fails with ErrNoTimingSource if none is left.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if len(cfg.Selectors) == 0 {
		cfg.Selectors = DefaultMonitorSelectors()
	}
	var reqs []CounterRequest
	for _, s := range cfg.Selectors {
		reqs = append(reqs, NewPidCounterRequest(s, cfg.Pid))
	}
	group, err := OpenCounters(reqs, false)
	if err != nil {
		return nil, err
	}
	return NewMonitorWithGroup(group, cfg)
}

// Monitors an already opened group. The monitor takes ownership of it.
func NewMonitorWithGroup(group CounterGroup, cfg MonitorConfig) (*Monitor, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: monitor interval %v", ErrInvalidConfig, cfg.Interval)
	}
	if len(group) == 0 {
		return nil, ErrNoTimingSource
	}
	glog.Infof("Monitoring pid %d with %d counters %v", cfg.Pid, len(group), group.Names())
	return &Monitor{cfg: cfg, group: group}, nil
}

func (m *Monitor) Counters() []string {
	return m.group.Names()
}

// Emits one row per interval until ctx is done or cfg.Ticks rows were
// emitted. Every interval is a full reset, start, stop and read cycle.
func (m *Monitor) Run(ctx context.Context, emit func(MonitorRow) error) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	if err := m.group.Arm(); err != nil {
		return err
	}
	for tick := 0; m.cfg.Ticks == 0 || tick < m.cfg.Ticks; tick++ {
		select {
		case <-ctx.Done():
			m.group.Capture()
			return ctx.Err()
		case now := <-ticker.C:
			values, ok, err := m.group.Capture()
			if err != nil {
				glog.Warningf("Tick %d: %v", tick, err)
			}
			if err := emit(MonitorRow{Tick: tick, Time: now, Deltas: values, Ok: ok}); err != nil {
				return err
			}
			if err := m.group.Arm(); err != nil {
				return err
			}
		}
	}
	m.group.Capture()
	return nil
}

func (m *Monitor) Close() error {
	return m.group.Close()
}

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

// Counter handle lifecycle.
package sidechannel

import (
	"errors"
	"fmt"

	"github.com/golang/glog"
)

type CounterState int

const (
	StateClosed CounterState = iota
	StateConfigured
	StateArmed
	StateCaptured
)

func (s CounterState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateConfigured:
		return "Configured"
	case StateArmed:
		return "Armed"
	case StateCaptured:
		return "Captured"
	}
	return fmt.Sprintf("CounterState(%d)", int(s))
}

// Counter is an exclusively owned handle on a CounterBackend. It enforces
//
//	Configured -Start-> Armed -Stop-> Captured -Reset-> Configured
//
// and Close from any state. Read is only valid in Captured. A call that is
// not allowed returns ErrInvalidTransition and leaves the state untouched.
// Counter is not safe for concurrent use.
type Counter struct {
	backend  CounterBackend
	selector Selector
	state    CounterState
	value    float64
}

// Wraps an already configured backend.
func NewCounter(backend CounterBackend, selector Selector) *Counter {
	return &Counter{backend: backend, selector: selector, state: StateConfigured}
}

func (c *Counter) State() CounterState {
	return c.state
}

func (c *Counter) Selector() Selector {
	return c.selector
}

func (c *Counter) Name() string {
	return c.backend.Name()
}

func (c *Counter) Backend() CounterBackend {
	return c.backend
}

func (c *Counter) transitionError(op string) error {
	return fmt.Errorf("%w: %v on %v counter %v", ErrInvalidTransition, op, c.state, c.Name())
}

// Zeroes the counter. Valid in Configured and Captured.
func (c *Counter) Reset() error {
	if c.state != StateConfigured && c.state != StateCaptured {
		return c.transitionError("reset")
	}
	if err := c.backend.Reset(); err != nil {
		return fmt.Errorf("reset %v: %w", c.Name(), err)
	}
	c.value = 0
	c.state = StateConfigured
	return nil
}

// Enables the counter. Only valid in Configured.
func (c *Counter) Start() error {
	if c.state != StateConfigured {
		return c.transitionError("start")
	}
	if err := c.backend.Enable(); err != nil {
		return fmt.Errorf("enable %v: %w", c.Name(), err)
	}
	c.state = StateArmed
	return nil
}

// Disables the counter and latches its value. Only valid in Armed.
// On a read failure the counter goes back to Configured and the error wraps
// ErrReadFailure.
func (c *Counter) Stop() error {
	if c.state != StateArmed {
		return c.transitionError("stop")
	}
	if err := c.backend.Disable(); err != nil {
		c.state = StateConfigured
		return fmt.Errorf("disable %v: %w", c.Name(), err)
	}
	v, err := c.backend.Read()
	if err != nil {
		c.state = StateConfigured
		if !errors.Is(err, ErrReadFailure) {
			err = fmt.Errorf("%w: %v", ErrReadFailure, err)
		}
		return fmt.Errorf("read %v: %w", c.Name(), err)
	}
	c.value = v
	c.state = StateCaptured
	return nil
}

// Value captured by the last Stop. Only valid in Captured.
func (c *Counter) Read() (float64, error) {
	if c.state != StateCaptured {
		return 0, c.transitionError("read")
	}
	return c.value, nil
}

// Releases the handle. Safe to call more than once.
func (c *Counter) Close() error {
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	return c.backend.Close()
}

// Replaced in tests.
var openPerf = openPerfEvent

// Opens a single counter.
func OpenCounter(req CounterRequest) (*Counter, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Sampling.Mode != SamplingOff {
		return nil, fmt.Errorf("%w: %v requests overflow sampling, only counting mode can be read", ErrInvalidConfig, req.Selector)
	}
	var backend CounterBackend
	var err error
	switch req.Selector {
	case SelectorWallClock:
		backend = NewWallClock()
	case SelectorLeakProbe:
		backend = NewLeakCounter(DefaultLeakProbe())
	default:
		if backend, err = openPerf(req); err != nil {
			return nil, err
		}
	}
	glog.V(1).Infof("Opened counter %v (pid %d)", req.Selector, req.Pid)
	return NewCounter(backend, req.Selector), nil
}

// CounterGroup is a set of counters measured around the same workload.
type CounterGroup []*Counter

// Opens every request it can. Unavailable and denied counters are dropped
// with a warning. If nothing could be opened and fallback is set, the
// wall-clock counter is used. Otherwise ErrNoTimingSource is returned.
// Resource exhaustion aborts and releases everything opened so far.
func OpenCounters(reqs []CounterRequest, fallback bool) (CounterGroup, error) {
	var group CounterGroup
	var lastErr error
	for _, req := range reqs {
		c, err := OpenCounter(req)
		if err == nil {
			group = append(group, c)
			continue
		}
		if errors.Is(err, ErrResourceExhaustion) || errors.Is(err, ErrInvalidConfig) {
			group.Close()
			return nil, err
		}
		glog.Warningf("Dropping counter %v: %v. %s", req.Selector, err, Remediation(err))
		lastErr = err
	}
	if len(group) > 0 {
		return group, nil
	}
	if fallback {
		glog.Warning("No requested counter is usable. Falling back to wall-clock")
		c, err := OpenCounter(NewCounterRequest(SelectorWallClock))
		if err != nil {
			return nil, err
		}
		return CounterGroup{c}, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTimingSource, lastErr)
	}
	return nil, ErrNoTimingSource
}

// Resets then starts every counter in order. On failure, counters already
// armed are stopped again so the group stays consistent.
func (g CounterGroup) Arm() error {
	for i, c := range g {
		if err := c.Reset(); err != nil {
			g[:i].disarm()
			return err
		}
		if err := c.Start(); err != nil {
			g[:i].disarm()
			return err
		}
	}
	return nil
}

func (g CounterGroup) disarm() {
	for i := len(g) - 1; i >= 0; i-- {
		if g[i].State() == StateArmed {
			g[i].Stop()
		}
	}
}

// Stops every counter in reverse order and reads it. The returned slice
// matches g. A counter whose read failed has ok[i] == false. The first
// error is returned after all counters are stopped.
func (g CounterGroup) Capture() (values []float64, ok []bool, err error) {
	values = make([]float64, len(g))
	ok = make([]bool, len(g))
	for i := len(g) - 1; i >= 0; i-- {
		if e := g[i].Stop(); e != nil {
			if err == nil {
				err = e
			}
			continue
		}
		v, e := g[i].Read()
		if e != nil {
			if err == nil {
				err = e
			}
			continue
		}
		values[i] = v
		ok[i] = true
	}
	return values, ok, err
}

// Names of the counters, in order.
func (g CounterGroup) Names() []string {
	names := make([]string, len(g))
	for i, c := range g {
		names[i] = c.Name()
	}
	return names
}

// Releases every counter. Returns the first error.
func (g CounterGroup) Close() error {
	var first error
	for _, c := range g {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

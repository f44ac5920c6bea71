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

//go:build linux
// +build linux

// Hardware/software performance counters via perf_event_open(2).
package sidechannel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"syscall"
	"unsafe"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

func hwCacheConfig(cache, op, result uint64) uint64 {
	return cache | op<<8 | result<<16
}

// perf type and config for a selector.
func perfEventConfig(s Selector) (uint32, uint64, bool) {
	switch s {
	case SelectorCpuCycles:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES, true
	case SelectorInstructions:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS, true
	case SelectorCacheReferences:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_REFERENCES, true
	case SelectorCacheMisses:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_MISSES, true
	case SelectorBranches:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS, true
	case SelectorBranchMisses:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_MISSES, true
	case SelectorBusCycles:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BUS_CYCLES, true
	case SelectorL1dMiss:
		return unix.PERF_TYPE_HW_CACHE, hwCacheConfig(unix.PERF_COUNT_HW_CACHE_L1D,
			unix.PERF_COUNT_HW_CACHE_OP_READ, unix.PERF_COUNT_HW_CACHE_RESULT_MISS), true
	case SelectorL1iMiss:
		return unix.PERF_TYPE_HW_CACHE, hwCacheConfig(unix.PERF_COUNT_HW_CACHE_L1I,
			unix.PERF_COUNT_HW_CACHE_OP_READ, unix.PERF_COUNT_HW_CACHE_RESULT_MISS), true
	case SelectorLlcMiss:
		return unix.PERF_TYPE_HW_CACHE, hwCacheConfig(unix.PERF_COUNT_HW_CACHE_LL,
			unix.PERF_COUNT_HW_CACHE_OP_READ, unix.PERF_COUNT_HW_CACHE_RESULT_MISS), true
	case SelectorDtlbMiss:
		return unix.PERF_TYPE_HW_CACHE, hwCacheConfig(unix.PERF_COUNT_HW_CACHE_DTLB,
			unix.PERF_COUNT_HW_CACHE_OP_READ, unix.PERF_COUNT_HW_CACHE_RESULT_MISS), true
	case SelectorPageFaults:
		return unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS, true
	case SelectorContextSwitches:
		return unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CONTEXT_SWITCHES, true
	case SelectorCpuMigrations:
		return unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CPU_MIGRATIONS, true
	case SelectorTaskClock:
		return unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_TASK_CLOCK, true
	}
	return 0, 0, false
}

// Builds the perf_event_attr for a request. The event starts disabled.
func perfEventAttr(req CounterRequest) (*unix.PerfEventAttr, error) {
	typ, config, ok := perfEventConfig(req.Selector)
	if !ok {
		return nil, &CounterError{Selector: req.Selector, Op: "configure", Kind: ErrCounterUnavailable}
	}
	attr := &unix.PerfEventAttr{
		Type:        typ,
		Size:        uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Config:      config,
		Read_format: unix.PERF_FORMAT_TOTAL_TIME_ENABLED | unix.PERF_FORMAT_TOTAL_TIME_RUNNING,
		Bits:        unix.PerfBitDisabled,
	}
	if req.ExcludeKernel {
		attr.Bits |= unix.PerfBitExcludeKernel
	}
	if req.ExcludeHypervisor {
		attr.Bits |= unix.PerfBitExcludeHv
	}
	return attr, nil
}

// PerfEvent is a CounterBackend on a perf_event file descriptor.
type PerfEvent struct {
	fd       int
	selector Selector
	pid      int
}

func openPerfEvent(req CounterRequest) (CounterBackend, error) {
	attr, err := perfEventAttr(req)
	if err != nil {
		return nil, err
	}
	pid := req.Pid
	// pid 0 with cpu -1 measures the calling thread on any cpu.
	fd, err := unix.PerfEventOpen(attr, pid, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		var errno syscall.Errno
		if errors.As(err, &errno) {
			return nil, &CounterError{Selector: req.Selector, Op: "open", Kind: classifyOpenErrno(errno), Errno: errno}
		}
		return nil, &CounterError{Selector: req.Selector, Op: "open", Kind: ErrCounterUnavailable, Errno: err}
	}
	glog.V(2).Infof("[perf-open]: selector = %v, pid = %d, fd = %d", req.Selector, pid, fd)
	return &PerfEvent{fd: fd, selector: req.Selector, pid: pid}, nil
}

func (p *PerfEvent) Name() string {
	return p.selector.String()
}

func (p *PerfEvent) ioctl(req uint, op string) error {
	if p.fd < 0 {
		return &CounterError{Selector: p.selector, Op: op, Kind: ErrInvalidTransition}
	}
	if err := unix.IoctlSetInt(p.fd, req, 0); err != nil {
		return fmt.Errorf("ioctl %v %v: %w", op, p.selector, err)
	}
	return nil
}

func (p *PerfEvent) Reset() error {
	return p.ioctl(unix.PERF_EVENT_IOC_RESET, "reset")
}

func (p *PerfEvent) Enable() error {
	return p.ioctl(unix.PERF_EVENT_IOC_ENABLE, "enable")
}

func (p *PerfEvent) Disable() error {
	return p.ioctl(unix.PERF_EVENT_IOC_DISABLE, "disable")
}

// Reads {value, time_enabled, time_running} and scales the value when the
// kernel multiplexed the event.
func (p *PerfEvent) Read() (float64, error) {
	buf := make([]byte, 24)
	n, err := unix.Read(p.fd, buf)
	if err != nil {
		return 0, &CounterError{Selector: p.selector, Op: "read", Kind: ErrReadFailure, Errno: err}
	}
	if n != len(buf) {
		return 0, &CounterError{Selector: p.selector, Op: "read", Kind: ErrReadFailure,
			Errno: fmt.Errorf("short read %d of %d bytes", n, len(buf))}
	}
	value := binary.NativeEndian.Uint64(buf[0:8])
	enabled := binary.NativeEndian.Uint64(buf[8:16])
	running := binary.NativeEndian.Uint64(buf[16:24])
	return scaleCount(p.selector, value, enabled, running)
}

// Scales a multiplexed count. An event that never ran has no valid value.
func scaleCount(s Selector, value, enabled, running uint64) (float64, error) {
	if running == 0 {
		if enabled == 0 && value == 0 {
			return 0, nil
		}
		return 0, &CounterError{Selector: s, Op: "read", Kind: ErrReadFailure,
			Errno: fmt.Errorf("event enabled for %dns but never scheduled", enabled)}
	}
	v := float64(value)
	if running < enabled {
		v = v * float64(enabled) / float64(running)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, &CounterError{Selector: s, Op: "read", Kind: ErrReadFailure}
	}
	return v, nil
}

func (p *PerfEvent) Close() error {
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	glog.V(2).Infof("[perf-close]: selector = %v, fd = %d", p.selector, p.fd)
	p.fd = -1
	return err
}

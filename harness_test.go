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

package sidechannel_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/senthil4321/sidechannel"
	"github.com/senthil4321/sidechannel/mocks"

	"github.com/golang/mock/gomock"
)

var fipsKey = []byte{0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6,
	0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c}

func leakGroup(probe sidechannel.LeakProbe) sidechannel.CounterGroup {
	return sidechannel.CounterGroup{
		sidechannel.NewCounter(sidechannel.NewLeakCounter(probe), sidechannel.SelectorLeakProbe),
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

func TestHarnessConfigValidate(t *testing.T) {
	bad := []sidechannel.HarnessConfig{
		{Iterations: 0, Repeats: 1},
		{Iterations: 1, Repeats: 0},
		{Iterations: 1, Repeats: 1, Warmup: -1},
	}
	for _, cfg := range bad {
		if _, err := sidechannel.NewHarness(leakGroup(sidechannel.DefaultLeakProbe()), cfg); !errors.Is(err, sidechannel.ErrInvalidConfig) {
			t.Errorf("NewHarness(%+v) err = %v", cfg, err)
		}
	}
	if err := sidechannel.DefaultHarnessConfig().Validate(); err != nil {
		t.Errorf("Default config invalid: %v", err)
	}
	if _, err := sidechannel.NewHarness(nil, sidechannel.DefaultHarnessConfig()); !errors.Is(err, sidechannel.ErrNoTimingSource) {
		t.Errorf("NewHarness without counters err = %v", err)
	}
}

func TestMeasureStreamedMatchesAggregated(t *testing.T) {
	cfg := sidechannel.HarnessConfig{Iterations: 8, Repeats: 4, Warmup: 3}
	h, err := sidechannel.NewHarness(leakGroup(sidechannel.DefaultLeakProbe()), cfg)
	if err != nil {
		t.Fatalf("NewHarness failed: %v", err)
	}
	s, _ := sidechannel.Expand(fipsKey)

	var windows []sidechannel.Window
	ms, err := h.Measure(s, 0x2b, sidechannel.CounterGen(), func(w sidechannel.Window) error {
		windows = append(windows, w)
		return nil
	})
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if len(windows) != cfg.Repeats || ms[0].Kept != cfg.Repeats || ms[0].Dropped != 0 {
		t.Fatalf("Got %d windows, measurement %+v", len(windows), ms[0])
	}
	var sum float64
	for _, w := range windows {
		if !w.Ok[0] {
			t.Fatalf("Window %d not ok", w.Repeat)
		}
		sum += w.Values[0]
	}
	if mean := sum / float64(len(windows)); !almostEqual(mean, ms[0].Mean) {
		t.Errorf("Streamed mean %v != aggregated mean %v", mean, ms[0].Mean)
	}
	if ms[0].Min > ms[0].Mean || ms[0].Max < ms[0].Mean {
		t.Errorf("Mean %v outside [%v, %v]", ms[0].Mean, ms[0].Min, ms[0].Max)
	}
}

func TestMeasurePerIteration(t *testing.T) {
	cfg := sidechannel.HarnessConfig{Iterations: 4, Repeats: 3, Granularity: sidechannel.PerIteration}
	h, _ := sidechannel.NewHarness(leakGroup(sidechannel.DefaultLeakProbe()), cfg)
	s, _ := sidechannel.Expand(fipsKey)

	gen := sidechannel.CounterGen()
	pt := make([]byte, sidechannel.BlockSize)
	n := 0
	_, err := h.Measure(s, fipsKey[0], gen, func(w sidechannel.Window) error {
		if w.Repeat != n/cfg.Iterations || w.Iteration != n%cfg.Iterations {
			t.Errorf("Window %d is repeat %d iteration %d", n, w.Repeat, w.Iteration)
		}
		gen(fipsKey[0], n, pt)
		want := float64(sidechannel.DelayIterations(sidechannel.Sbox(pt[0] ^ fipsKey[0])))
		if w.Values[0] != want || w.Tag != int(pt[0]) {
			t.Errorf("Window %d = %v tag %d, want %v tag %d", n, w.Values[0], w.Tag, want, pt[0])
		}
		n++
		return nil
	})
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if n != cfg.WindowsPerCandidate() {
		t.Errorf("Got %d windows, want %d", n, cfg.WindowsPerCandidate())
	}
}

func TestMeasureDiscardsFailedWindows(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	backend := mocks.NewMockCounterBackend(mockCtrl)
	backend.EXPECT().Name().Return("CPU_CYCLES").AnyTimes()
	backend.EXPECT().Reset().Return(nil).Times(3)
	backend.EXPECT().Enable().Return(nil).Times(3)
	backend.EXPECT().Disable().Return(nil).Times(3)
	gomock.InOrder(
		backend.EXPECT().Read().Return(100.0, nil),
		backend.EXPECT().Read().Return(0.0, fmt.Errorf("short read")),
		backend.EXPECT().Read().Return(300.0, nil),
	)

	group := sidechannel.CounterGroup{sidechannel.NewCounter(backend, sidechannel.SelectorCpuCycles)}
	cfg := sidechannel.HarnessConfig{Iterations: 10, Repeats: 3}
	h, _ := sidechannel.NewHarness(group, cfg)
	s, _ := sidechannel.Expand(fipsKey)

	var ok []bool
	ms, err := h.Measure(s, 0, sidechannel.ZeroGen(), func(w sidechannel.Window) error {
		ok = append(ok, w.Ok[0])
		return nil
	})
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	m := ms[0]
	if m.Kept != 2 || m.Dropped != 1 {
		t.Errorf("Kept %d dropped %d, want 2 and 1", m.Kept, m.Dropped)
	}
	if m.Mean != 20 || m.Min != 10 || m.Max != 30 {
		t.Errorf("Measurement %+v, want mean 20 in [10, 30]", m)
	}
	if len(ok) != 3 || !ok[0] || ok[1] || !ok[2] {
		t.Errorf("Window ok flags %v", ok)
	}
}

func TestMeasureEmitErrorStops(t *testing.T) {
	h, _ := sidechannel.NewHarness(leakGroup(sidechannel.DefaultLeakProbe()),
		sidechannel.HarnessConfig{Iterations: 1, Repeats: 5})
	s, _ := sidechannel.Expand(fipsKey)
	calls := 0
	_, err := h.Measure(s, 0, sidechannel.ZeroGen(), func(w sidechannel.Window) error {
		calls++
		return fmt.Errorf("disk full")
	})
	if err == nil || calls != 1 {
		t.Errorf("Measure err = %v after %d windows", err, calls)
	}
}

func TestMeasureWithFlushBuffer(t *testing.T) {
	f := sidechannel.NewFlusher(4096)
	cfg := sidechannel.HarnessConfig{Iterations: 2, Repeats: 2, FlushCache: true}
	h, err := sidechannel.NewHarness(leakGroup(sidechannel.DefaultLeakProbe()), cfg, sidechannel.WithFlushBuffer(f))
	if err != nil {
		t.Fatalf("NewHarness failed: %v", err)
	}
	s, _ := sidechannel.Expand(fipsKey)
	ms, err := h.Measure(s, 0x2b, sidechannel.ZeroGen(), nil)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	// Zero plaintext: first lookup is sbox[0x2b] = 0xf1.
	if ms[0].Mean != 1 {
		t.Errorf("Mean = %v, want 1", ms[0].Mean)
	}
}

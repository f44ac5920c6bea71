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

// Measurement harness.
// A single encryption is far below timer resolution, so every value is the
// average over a batch of back-to-back encryptions, and batches are repeated
// to smooth out scheduling noise.
package sidechannel

import (
	"fmt"
	"math"

	"github.com/golang/glog"
)

type Granularity int

const (
	// One value per repeat window: window total / iterations.
	PerRepeat Granularity = iota
	// One value per encryption, each timed in its own window.
	PerIteration
)

func (g Granularity) String() string {
	if g == PerIteration {
		return "iteration"
	}
	return "repeat"
}

type HarnessConfig struct {
	// Encryptions per timed window.
	Iterations int
	// Untimed encryptions before the first window.
	Warmup int
	// Timed windows per candidate.
	Repeats int
	// Evict caches before every window.
	FlushCache  bool
	Granularity Granularity
}

func DefaultHarnessConfig() HarnessConfig {
	return HarnessConfig{
		Iterations: 50000,
		Warmup:     1000,
		Repeats:    5,
		FlushCache: true,
	}
}

func (c HarnessConfig) Validate() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidConfig, c.Iterations)
	}
	if c.Repeats <= 0 {
		return fmt.Errorf("%w: repeats must be positive, got %d", ErrInvalidConfig, c.Repeats)
	}
	if c.Warmup < 0 {
		return fmt.Errorf("%w: negative warmup %d", ErrInvalidConfig, c.Warmup)
	}
	return nil
}

// Values recorded per candidate window, before aggregation.
func (c HarnessConfig) WindowsPerCandidate() int {
	if c.Granularity == PerIteration {
		return c.Iterations * c.Repeats
	}
	return c.Repeats
}

// Window is one recorded value per counter.
type Window struct {
	Repeat    int
	Iteration int // -1 for PerRepeat windows
	// Tag of the first plaintext encrypted in the window.
	Tag int
	// Per counter value per encryption. Only valid where Ok is set.
	Values []float64
	Ok     []bool
}

// Measurement aggregates the kept windows of one counter.
type Measurement struct {
	Counter string
	// Mean value per encryption over kept windows.
	Mean    float64
	Min     float64
	Max     float64
	Kept    int
	Dropped int
}

type Option func(*Harness)

// Uses f for cache flushing instead of a fresh 8MiB buffer.
func WithFlushBuffer(f *Flusher) Option {
	return func(h *Harness) {
		h.flusher = f
	}
}

// Harness runs timed encryption windows around a CounterGroup.
type Harness struct {
	cfg       HarnessConfig
	counters  CounterGroup
	flusher   *Flusher
	observers []Observer
	pts       []byte
	ct        [BlockSize]byte
}

func NewHarness(counters CounterGroup, cfg HarnessConfig, opts ...Option) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(counters) == 0 {
		return nil, ErrNoTimingSource
	}
	h := &Harness{cfg: cfg, counters: counters}
	for _, opt := range opts {
		opt(h)
	}
	if cfg.FlushCache && h.flusher == nil {
		h.flusher = NewFlusher(DefaultFlushSize)
	}
	for _, c := range counters {
		if o, ok := c.Backend().(Observer); ok {
			h.observers = append(h.observers, o)
		}
	}
	batch := cfg.Iterations
	if cfg.Granularity == PerIteration {
		batch = 1
	}
	h.pts = make([]byte, batch*BlockSize)
	return h, nil
}

func (h *Harness) Config() HarnessConfig {
	return h.cfg
}

func (h *Harness) Counters() CounterGroup {
	return h.counters
}

func (h *Harness) oracle(s *Schedule) Oracle {
	if len(h.observers) == 0 {
		return s
	}
	return &TracingOracle{Schedule: s, Observers: h.observers}
}

// Measure runs warm-up and all windows for candidate guess with schedule s.
// emit, if not nil, is called once per window. A counter read failure drops
// that counter's value for the window, it never counts as zero.
func (h *Harness) Measure(s *Schedule, guess byte, gen PtGen, emit func(Window) error) ([]Measurement, error) {
	oracle := h.oracle(s)

	if h.cfg.Warmup > 0 {
		pt := h.pts[:BlockSize]
		if err := gen(guess, 0, pt); err != nil {
			return nil, fmt.Errorf("plaintext generation failed: %w", err)
		}
		for i := 0; i < h.cfg.Warmup; i++ {
			oracle.Encrypt(h.ct[:], pt)
		}
	}

	acc := newAccumulator(h.counters)
	var err error
	for r := 0; r < h.cfg.Repeats; r++ {
		if h.flusher != nil {
			h.flusher.Flush()
		}
		if h.cfg.Granularity == PerIteration {
			for i := 0; i < h.cfg.Iterations; i++ {
				if err = h.window(oracle, guess, gen, r, i, r*h.cfg.Iterations+i, 1, acc, emit); err != nil {
					return nil, err
				}
			}
		} else {
			if err = h.window(oracle, guess, gen, r, -1, r*h.cfg.Iterations, h.cfg.Iterations, acc, emit); err != nil {
				return nil, err
			}
		}
	}
	return acc.measurements(), nil
}

// Runs a single timed window of n encryptions starting at plaintext index
// first.
func (h *Harness) window(oracle Oracle, guess byte, gen PtGen, repeat, iteration, first, n int,
	acc *accumulator, emit func(Window) error) error {
	pts := h.pts[:n*BlockSize]
	for i := 0; i < n; i++ {
		if err := gen(guess, first+i, pts[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return fmt.Errorf("plaintext generation failed: %w", err)
		}
	}

	if err := h.counters.Arm(); err != nil {
		return fmt.Errorf("arming counters: %w", err)
	}
	for i := 0; i < n; i++ {
		oracle.Encrypt(h.ct[:], pts[i*BlockSize:(i+1)*BlockSize])
	}
	values, ok, err := h.counters.Capture()
	if err != nil {
		glog.Warningf("Discarding window %d/%d of candidate 0x%02x: %v", repeat, iteration, guess, err)
	}

	w := Window{
		Repeat:    repeat,
		Iteration: iteration,
		Tag:       PlaintextTag(pts),
		Values:    make([]float64, len(values)),
		Ok:        ok,
	}
	for j := range values {
		if !ok[j] {
			acc.drop(j)
			continue
		}
		w.Values[j] = values[j] / float64(n)
		acc.add(j, values[j], n, w.Values[j])
	}
	glog.V(2).Infof("[window] guess = 0x%02x, repeat = %d, iteration = %d, values = %v",
		guess, repeat, iteration, w.Values)
	if emit != nil {
		return emit(w)
	}
	return nil
}

type accumulator struct {
	names   []string
	total   []float64
	encs    []int
	kept    []int
	dropped []int
	min     []float64
	max     []float64
}

func newAccumulator(g CounterGroup) *accumulator {
	n := len(g)
	a := &accumulator{
		names:   g.Names(),
		total:   make([]float64, n),
		encs:    make([]int, n),
		kept:    make([]int, n),
		dropped: make([]int, n),
		min:     make([]float64, n),
		max:     make([]float64, n),
	}
	for i := range a.min {
		a.min[i] = math.Inf(1)
		a.max[i] = math.Inf(-1)
	}
	return a
}

func (a *accumulator) add(j int, total float64, encryptions int, perEnc float64) {
	a.total[j] += total
	a.encs[j] += encryptions
	a.kept[j]++
	a.min[j] = math.Min(a.min[j], perEnc)
	a.max[j] = math.Max(a.max[j], perEnc)
}

func (a *accumulator) drop(j int) {
	a.dropped[j]++
}

func (a *accumulator) measurements() []Measurement {
	res := make([]Measurement, len(a.names))
	for j := range res {
		m := Measurement{Counter: a.names[j], Kept: a.kept[j], Dropped: a.dropped[j]}
		if a.kept[j] > 0 {
			m.Mean = a.total[j] / float64(a.encs[j])
			m.Min = a.min[j]
			m.Max = a.max[j]
		} else {
			m.Mean = math.NaN()
			m.Min = math.NaN()
			m.Max = math.NaN()
		}
		res[j] = m
	}
	return res
}

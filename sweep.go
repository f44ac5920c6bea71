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

// Sweeps one key byte over all candidate values.
package sidechannel

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/golang/glog"
)

const NumCandidates = 256

type SweepConfig struct {
	// Key the candidates are substituted into.
	BaseKey []byte
	// Key byte under attack, 0..15.
	TargetIndex int
	// Plaintext policy. ZeroGen when nil.
	PtGen PtGen
	// Receives every window value. Optional.
	Sink SampleSink
	// BaseKey[TargetIndex] is the secret byte. Samples of that candidate
	// are labelled correct and the report carries it.
	Labeled bool
}

func (c SweepConfig) Validate() error {
	if len(c.BaseKey) != KeySize {
		return fmt.Errorf("%w: base key has %d bytes", ErrInvalidKey, len(c.BaseKey))
	}
	if c.TargetIndex < 0 || c.TargetIndex >= KeySize {
		return fmt.Errorf("%w: target index %d", ErrInvalidConfig, c.TargetIndex)
	}
	return nil
}

// Secret byte when labelled, otherwise -1.
func (c SweepConfig) Known() int {
	if !c.Labeled {
		return -1
	}
	return int(c.BaseKey[c.TargetIndex])
}

// Aggregates of one candidate for one counter.
type CandidateStats struct {
	Candidate int
	Mean      float64
	Min       float64
	Max       float64
	// Kept windows.
	Windows int
	Dropped int
}

// At least one window was kept.
func (c CandidateStats) Valid() bool {
	return c.Windows > 0
}

// SweepResult holds exactly one entry per candidate, indexed by candidate.
type SweepResult struct {
	Counter     string
	TargetIndex int
	Candidates  [NumCandidates]CandidateStats
}

func NewSweepResult(counter string, targetIndex int) *SweepResult {
	r := &SweepResult{Counter: counter, TargetIndex: targetIndex}
	for i := range r.Candidates {
		r.Candidates[i] = CandidateStats{Candidate: i, Mean: math.NaN(), Min: math.NaN(), Max: math.NaN()}
	}
	return r
}

// Means in candidate order. Invalid candidates are NaN.
func (r *SweepResult) Means() []float64 {
	means := make([]float64, NumCandidates)
	for i, c := range r.Candidates {
		means[i] = c.Mean
	}
	return means
}

func (r *SweepResult) set(candidate int, m Measurement) {
	r.Candidates[candidate] = CandidateStats{
		Candidate: candidate,
		Mean:      m.Mean,
		Min:       m.Min,
		Max:       m.Max,
		Windows:   m.Kept,
		Dropped:   m.Dropped,
	}
}

// Rebuilds a result from recorded samples of one counter. Samples of other
// counters are ignored.
func ResultFromSamples(counter string, targetIndex int, samples []Sample) *SweepResult {
	r := NewSweepResult(counter, targetIndex)
	sum := make([]float64, NumCandidates)
	for _, s := range samples {
		if s.Counter != counter || s.Candidate < 0 || s.Candidate >= NumCandidates {
			continue
		}
		c := &r.Candidates[s.Candidate]
		if c.Windows == 0 {
			c.Min = s.Measurement
			c.Max = s.Measurement
		}
		c.Min = math.Min(c.Min, s.Measurement)
		c.Max = math.Max(c.Max, s.Measurement)
		c.Windows++
		sum[s.Candidate] += s.Measurement
	}
	for i := range r.Candidates {
		if r.Candidates[i].Windows > 0 {
			r.Candidates[i].Mean = sum[i] / float64(r.Candidates[i].Windows)
		}
	}
	return r
}

type SweepReport struct {
	// One result per counter, in CounterGroup order.
	Results []*SweepResult
	// Secret byte, -1 when the sweep was not labelled.
	Known   int
	Elapsed time.Duration
}

// Result of the named counter, nil if it was not measured.
func (r *SweepReport) Result(counter string) *SweepResult {
	for _, res := range r.Results {
		if res.Counter == counter {
			return res
		}
	}
	return nil
}

// Measures every candidate for cfg.TargetIndex. ctx is checked between
// candidates. Window values are streamed to cfg.Sink as they are recorded.
func Sweep(ctx context.Context, h *Harness, cfg SweepConfig) (*SweepReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gen := cfg.PtGen
	if gen == nil {
		gen = ZeroGen()
	}
	names := h.Counters().Names()
	report := &SweepReport{Known: cfg.Known()}
	for _, name := range names {
		report.Results = append(report.Results, NewSweepResult(name, cfg.TargetIndex))
	}

	glog.Infof("Sweeping key byte %d with counters %v, %d windows per candidate",
		cfg.TargetIndex, names, h.Config().WindowsPerCandidate())
	start := time.Now()
	key := make([]byte, KeySize)
	copy(key, cfg.BaseKey)
	for candidate := 0; candidate < NumCandidates; candidate++ {
		if err := ctx.Err(); err != nil {
			flushSink(cfg.Sink)
			return nil, err
		}
		key[cfg.TargetIndex] = byte(candidate)
		sched, err := Expand(key)
		if err != nil {
			return nil, err
		}

		var emit func(Window) error
		if cfg.Sink != nil {
			correct := candidate == report.Known
			emit = func(w Window) error {
				for j, ok := range w.Ok {
					if !ok {
						continue
					}
					err := cfg.Sink.Record(Sample{
						Candidate:    candidate,
						PlaintextTag: w.Tag,
						Measurement:  w.Values[j],
						Correct:      correct,
						Counter:      names[j],
						Repeat:       w.Repeat,
						Iteration:    w.Iteration,
					})
					if err != nil {
						return fmt.Errorf("recording sample: %w", err)
					}
				}
				return nil
			}
		}

		ms, err := h.Measure(sched, byte(candidate), gen, emit)
		if err != nil {
			flushSink(cfg.Sink)
			return nil, fmt.Errorf("measuring candidate 0x%02x: %w", candidate, err)
		}
		for j, m := range ms {
			report.Results[j].set(candidate, m)
			if m.Kept == 0 {
				glog.Warningf("Candidate 0x%02x has no valid %v windows", candidate, m.Counter)
			}
		}
		if candidate%16 == 15 {
			glog.V(1).Infof("Candidate [%d/%d] means = %v", candidate+1, NumCandidates, meansOf(ms))
		}
	}
	report.Elapsed = time.Since(start)
	if cfg.Sink != nil {
		if err := cfg.Sink.Flush(); err != nil {
			return nil, err
		}
	}
	glog.Infof("Sweep of key byte %d finished in %v", cfg.TargetIndex, report.Elapsed)
	return report, nil
}

func meansOf(ms []Measurement) []float64 {
	means := make([]float64, len(ms))
	for i, m := range ms {
		means[i] = m.Mean
	}
	return means
}

func flushSink(sink SampleSink) {
	if sink == nil {
		return
	}
	if err := sink.Flush(); err != nil {
		glog.Warningf("Flushing sample sink: %v", err)
	}
}

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

package sidechannel

// LeakProbe selects which S-box lookups a LeakCounter observes and how each
// one is scored.
type LeakProbe struct {
	// Round to observe, 1..Rounds. 0 observes every round.
	Round int
	// State byte to observe. Negative observes every byte.
	Index int
	// Score for a single substitution.
	Score func(s Substitution) float64
}

// Scores the busy loop length of the first round lookup at byte 0.
func DefaultLeakProbe() LeakProbe {
	return LeakProbe{Round: 1, Index: 0, Score: DelayScore}
}

// Busy loop iterations of the substitution.
func DelayScore(s Substitution) float64 {
	return float64(s.Delay)
}

// Looked up table value of the substitution.
func TableValueScore(s Substitution) float64 {
	return float64(s.Out)
}

func (p LeakProbe) matches(s Substitution) bool {
	return (p.Round == 0 || p.Round == s.Round) && (p.Index < 0 || p.Index == s.Index)
}

// LeakCounter is a synthetic CounterBackend. Instead of timing, it sums the
// leak model score of the substitutions the oracle performs while enabled.
// It makes sweeps deterministic and independent of host noise.
//
// The harness wraps the measured oracle with Observe so substitutions reach
// the counter.
type LeakCounter struct {
	probe   LeakProbe
	enabled bool
	total   float64
}

func NewLeakCounter(probe LeakProbe) *LeakCounter {
	if probe.Score == nil {
		probe.Score = DelayScore
	}
	return &LeakCounter{probe: probe}
}

func (l *LeakCounter) Name() string {
	return SelectorLeakProbe.String()
}

func (l *LeakCounter) Reset() error {
	l.total = 0
	return nil
}

func (l *LeakCounter) Enable() error {
	l.enabled = true
	return nil
}

func (l *LeakCounter) Disable() error {
	l.enabled = false
	return nil
}

func (l *LeakCounter) Read() (float64, error) {
	return l.total, nil
}

func (l *LeakCounter) Close() error {
	return nil
}

// Records s if the counter is enabled and s matches the probe.
func (l *LeakCounter) Observe(s Substitution) {
	if !l.enabled || !l.probe.matches(s) {
		return
	}
	l.total += l.probe.Score(s)
}

// Observer receives substitutions from a traced oracle.
type Observer interface {
	Observe(s Substitution)
}

// TracingOracle reports every substitution of a Schedule to observers.
type TracingOracle struct {
	Schedule  *Schedule
	Observers []Observer
}

func (t *TracingOracle) Encrypt(dst, src []byte) {
	t.Schedule.EncryptTrace(dst, src, func(s Substitution) {
		for _, o := range t.Observers {
			o.Observe(s)
		}
	})
}

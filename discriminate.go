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

// Picks the most likely key byte from a sweep.
package sidechannel

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Which extreme of the candidate means marks the secret byte.
type Polarity int

const (
	MinimumWins Polarity = iota
	MaximumWins
)

func (p Polarity) String() string {
	if p == MaximumWins {
		return "max"
	}
	return "min"
}

func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(s) {
	case "min", "minimum":
		return MinimumWins, nil
	case "max", "maximum":
		return MaximumWins, nil
	}
	return 0, fmt.Errorf("%w: unknown polarity %q", ErrInvalidConfig, s)
}

type DiscriminatorConfig struct {
	Polarity Polarity
	// Secret byte for validation, -1 when unknown.
	Known int
}

func DefaultDiscriminatorConfig() DiscriminatorConfig {
	return DiscriminatorConfig{Polarity: MinimumWins, Known: -1}
}

type Report struct {
	Counter   string
	Polarity  Polarity
	Predicted int
	Best      CandidateStats
	Worst     CandidateStats
	// |Best.Mean - Worst.Mean|
	Spread float64
	// Spread relative to the smallest candidate mean.
	RelativeSpread float64
	MeanOfMeans    float64
	StdDevOfMeans  float64
	// Candidates with at least one kept window.
	Valid int

	Known     int
	Correct   bool
	KnownStat CandidateStats

	ranking []int
}

// Prediction matched the known byte.
func (r *Report) Success() bool {
	return r.Known >= 0 && r.Correct
}

// Distance of the known byte's mean from the winning mean. NaN when the
// known byte is not set or was not measured.
func (r *Report) CorrectDelta() float64 {
	if r.Known < 0 || !r.KnownStat.Valid() {
		return math.NaN()
	}
	return math.Abs(r.KnownStat.Mean - r.Best.Mean)
}

// CorrectDelta relative to the winning mean. NaN when CorrectDelta is NaN
// or the winning mean is zero.
func (r *Report) RelativeCorrectDelta() float64 {
	d := r.CorrectDelta()
	if math.IsNaN(d) || r.Best.Mean == 0 {
		return math.NaN()
	}
	return d / math.Abs(r.Best.Mean)
}

// Position of b in the ranking, 0 being the prediction. -1 if b has no
// valid windows.
func (r *Report) RankOf(b byte) int {
	for i, c := range r.ranking {
		if c == int(b) {
			return i
		}
	}
	return -1
}

// Valid candidates, most likely first.
func (r *Report) Ranking() []int {
	return append([]int(nil), r.ranking...)
}

// Top n candidates with their stats.
func (r *Report) Top(res *SweepResult, n int) []CandidateStats {
	if n > len(r.ranking) {
		n = len(r.ranking)
	}
	top := make([]CandidateStats, n)
	for i := 0; i < n; i++ {
		top[i] = res.Candidates[r.ranking[i]]
	}
	return top
}

// Ranks candidates by mean under cfg.Polarity. Candidates without kept
// windows are skipped. Ties go to the lowest candidate.
func Discriminate(res *SweepResult, cfg DiscriminatorConfig) (*Report, error) {
	var ranking []int
	var means []float64
	for _, c := range res.Candidates {
		if !c.Valid() || math.IsNaN(c.Mean) {
			continue
		}
		ranking = append(ranking, c.Candidate)
		means = append(means, c.Mean)
	}
	if len(ranking) == 0 {
		return nil, fmt.Errorf("%w: no candidate of %v has a valid measurement", ErrInvalidConfig, res.Counter)
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		a, b := res.Candidates[ranking[i]].Mean, res.Candidates[ranking[j]].Mean
		if cfg.Polarity == MaximumWins {
			return a > b
		}
		return a < b
	})

	r := &Report{
		Counter:   res.Counter,
		Polarity:  cfg.Polarity,
		Predicted: ranking[0],
		Best:      res.Candidates[ranking[0]],
		Worst:     res.Candidates[ranking[len(ranking)-1]],
		Spread:    floats.Max(means) - floats.Min(means),
		Valid:     len(ranking),
		Known:     cfg.Known,
		ranking:   ranking,
	}
	r.MeanOfMeans, r.StdDevOfMeans = stat.MeanStdDev(means, nil)
	if len(means) < 2 {
		r.StdDevOfMeans = 0
	}
	if lo := floats.Min(means); lo != 0 {
		r.RelativeSpread = r.Spread / math.Abs(lo)
	}
	if cfg.Known >= 0 && cfg.Known < NumCandidates {
		r.KnownStat = res.Candidates[cfg.Known]
		r.Correct = r.Predicted == cfg.Known
	}
	return r, nil
}

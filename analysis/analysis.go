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

// Package analysis works offline on export tables written by a sweep.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/senthil4321/sidechannel"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Counter name used for results built from an export table.
const ExportCounter = "measurement"

// Table groups export rows by candidate.
type Table struct {
	Groups [sidechannel.NumCandidates][]float64
	// Candidate labelled correct, -1 if no row carries a label.
	Known int
	Rows  int
}

func NewTable(rows []sidechannel.ExportRow) *Table {
	t := &Table{Known: -1, Rows: len(rows)}
	for _, r := range rows {
		t.Groups[r.Guess] = append(t.Groups[r.Guess], r.Measurement)
		if r.Correct {
			t.Known = r.Guess
		}
	}
	return t
}

func LoadTable(filename string) (*Table, error) {
	rows, err := sidechannel.LoadCSV(filename)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("export %v has no rows", filename)
	}
	return NewTable(rows), nil
}

// Per candidate statistics of the measurement column.
type Features struct {
	Candidate int
	N         int
	Mean      float64
	Std       float64
	Min       float64
	Max       float64
	Median    float64
	Q25       float64
	Q75       float64
	Range     float64
	Correct   bool
}

// Features of every candidate with at least one row, in candidate order.
// Std is the population standard deviation.
func ExtractFeatures(t *Table) []Features {
	var fs []Features
	for c, group := range t.Groups {
		if len(group) == 0 {
			continue
		}
		x := append([]float64(nil), group...)
		sort.Float64s(x)
		f := Features{
			Candidate: c,
			N:         len(x),
			Min:       x[0],
			Max:       x[len(x)-1],
			Median:    quantile(x, 0.5),
			Q25:       quantile(x, 0.25),
			Q75:       quantile(x, 0.75),
			Correct:   c == t.Known,
		}
		f.Mean, f.Std = stat.PopMeanStdDev(x, nil)
		f.Range = f.Max - f.Min
		fs = append(fs, f)
	}
	return fs
}

// p-quantile of sorted x, interpolating linearly between the two closest
// ranks at h = (n-1)p. stat.Quantile has no mode for this definition.
func quantile(x []float64, p float64) float64 {
	h := float64(len(x)-1) * p
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	return x[lo] + (h-float64(lo))*(x[hi]-x[lo])
}

// Builds a result for the discriminator from features.
func ToSweepResult(fs []Features, targetIndex int) *sidechannel.SweepResult {
	r := sidechannel.NewSweepResult(ExportCounter, targetIndex)
	for _, f := range fs {
		r.Candidates[f.Candidate] = sidechannel.CandidateStats{
			Candidate: f.Candidate,
			Mean:      f.Mean,
			Min:       f.Min,
			Max:       f.Max,
			Windows:   f.N,
		}
	}
	return r
}

// Welch's t-test of one candidate against all other rows.
type TTest struct {
	Candidate int
	T         float64
	DF        float64
	// Two sided.
	P float64
}

// Tests every candidate with two or more rows against the rest and ranks
// them, most significant in the direction of polarity first.
func WelchRanking(t *Table, polarity sidechannel.Polarity) []TTest {
	var total, totalSq float64
	n := 0
	for _, g := range t.Groups {
		for _, v := range g {
			total += v
			totalSq += v * v
		}
		n += len(g)
	}

	var tests []TTest
	for c, g := range t.Groups {
		n1 := len(g)
		n2 := n - n1
		if n1 < 2 || n2 < 2 {
			continue
		}
		m1, v1 := stat.MeanVariance(g, nil)
		var s1, q1 float64
		for _, v := range g {
			s1 += v
			q1 += v * v
		}
		m2 := (total - s1) / float64(n2)
		v2 := ((totalSq - q1) - float64(n2)*m2*m2) / float64(n2-1)
		tests = append(tests, welch(c, m1, v1, float64(n1), m2, math.Max(v2, 0), float64(n2)))
	}
	sort.SliceStable(tests, func(i, j int) bool {
		if polarity == sidechannel.MaximumWins {
			return tests[i].T > tests[j].T
		}
		return tests[i].T < tests[j].T
	})
	return tests
}

func welch(c int, m1, v1, n1, m2, v2, n2 float64) TTest {
	a, b := v1/n1, v2/n2
	se := math.Sqrt(a + b)
	if se == 0 {
		// Identical constant groups carry no evidence either way.
		tt := TTest{Candidate: c, DF: n1 + n2 - 2, P: 1}
		if m1 != m2 {
			tt.T = math.Copysign(math.Inf(1), m1-m2)
			tt.P = 0
		}
		return tt
	}
	tt := TTest{Candidate: c, T: (m1 - m2) / se}
	tt.DF = (a + b) * (a + b) / (a*a/(n1-1) + b*b/(n2-1))
	if math.IsNaN(tt.DF) || tt.DF <= 0 {
		tt.DF = n1 + n2 - 2
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: tt.DF}
	tt.P = 2 * dist.Survival(math.Abs(tt.T))
	return tt
}

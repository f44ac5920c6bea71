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

package util

import (
	"fmt"
	"io"
	"math"

	"github.com/senthil4321/sidechannel"
	"github.com/senthil4321/sidechannel/analysis"

	"github.com/fatih/color"
	"github.com/rodaine/table"
)

var (
	headerFmt = color.New(color.FgGreen, color.Underline).SprintfFunc()
	goodFmt   = color.New(color.FgGreen).SprintfFunc()
	badFmt    = color.New(color.FgRed, color.Bold).SprintfFunc()
)

func fmtValue(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

// Prints the top candidates of res ranked by r, then the verdict.
func PrintReport(w io.Writer, res *sidechannel.SweepResult, r *sidechannel.Report, top int) {
	fmt.Fprintf(w, "Counter %v, key byte %d, polarity %v, %d valid candidates\n",
		r.Counter, res.TargetIndex, r.Polarity, r.Valid)

	tbl := table.New("Rank", "Candidate", "Mean", "Min", "Max", "Windows", "Dropped")
	tbl.WithHeaderFormatter(headerFmt)
	tbl.WithWriter(w)
	for i, c := range r.Top(res, top) {
		name := fmt.Sprintf("0x%02x", c.Candidate)
		if c.Candidate == r.Known {
			name = goodFmt("%s *", name)
		}
		tbl.AddRow(i, name, fmtValue(c.Mean), fmtValue(c.Min), fmtValue(c.Max), c.Windows, c.Dropped)
	}
	tbl.Print()

	fmt.Fprintf(w, "Predicted 0x%02x, spread %s (%.2f%%)\n",
		r.Predicted, fmtValue(r.Spread), 100*r.RelativeSpread)
	if r.Known < 0 {
		return
	}
	if r.Success() {
		fmt.Fprintln(w, goodFmt("SUCCESS: recovered key byte 0x%02x", r.Known))
	} else {
		fmt.Fprintln(w, badFmt("FAILURE: key byte 0x%02x ranked %d, %s (%.2f%%) away from the best mean",
			r.Known, r.RankOf(byte(r.Known)), fmtValue(r.CorrectDelta()), 100*r.RelativeCorrectDelta()))
	}
}

// Prints one row per probed selector.
func PrintProbe(w io.Writer, results []sidechannel.ProbeResult, workloads []sidechannel.Workload) {
	cols := []interface{}{"Counter", "Status"}
	for _, wl := range workloads {
		cols = append(cols, wl.Name)
	}
	cols = append(cols, "Remediation")
	tbl := table.New(cols...)
	tbl.WithHeaderFormatter(headerFmt)
	tbl.WithWriter(w)
	for _, res := range results {
		row := []interface{}{res.Selector}
		if res.Err != nil && !res.Available {
			row = append(row, badFmt("unavailable"))
		} else if res.Err != nil {
			row = append(row, badFmt("read error"))
		} else {
			row = append(row, goodFmt("ok"))
		}
		for i := range workloads {
			if i < len(res.Values) {
				row = append(row, fmtValue(res.Values[i]))
			} else {
				row = append(row, "-")
			}
		}
		row = append(row, res.Remediation)
		tbl.AddRow(row...)
	}
	tbl.Print()
}

// Prints Welch test results in the given order.
func PrintTTests(w io.Writer, tests []analysis.TTest, top int) {
	if top > len(tests) {
		top = len(tests)
	}
	tbl := table.New("Rank", "Candidate", "t", "df", "p")
	tbl.WithHeaderFormatter(headerFmt)
	tbl.WithWriter(w)
	for i, t := range tests[:top] {
		p := fmt.Sprintf("%.3g", t.P)
		if t.P < 1e-5 {
			p = goodFmt("%s", p)
		}
		tbl.AddRow(i, fmt.Sprintf("0x%02x", t.Candidate), fmt.Sprintf("%.3f", t.T), fmt.Sprintf("%.1f", t.DF), p)
	}
	tbl.Print()
}

func PrintFeatures(w io.Writer, fs []analysis.Features) {
	tbl := table.New("Candidate", "N", "Mean", "Std", "Min", "Q25", "Median", "Q75", "Max", "Range")
	tbl.WithHeaderFormatter(headerFmt)
	tbl.WithWriter(w)
	for _, f := range fs {
		name := fmt.Sprintf("0x%02x", f.Candidate)
		if f.Correct {
			name = goodFmt("%s *", name)
		}
		tbl.AddRow(name, f.N, fmtValue(f.Mean), fmtValue(f.Std), fmtValue(f.Min), fmtValue(f.Q25),
			fmtValue(f.Median), fmtValue(f.Q75), fmtValue(f.Max), fmtValue(f.Range))
	}
	tbl.Print()
}

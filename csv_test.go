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
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/senthil4321/sidechannel"
)

func sweepToCSV(t *testing.T, cfg sidechannel.HarnessConfig) []sidechannel.ExportRow {
	t.Helper()
	var buf bytes.Buffer
	w := sidechannel.NewCSVWriter(&buf)
	h := leakHarness(t, sidechannel.DefaultLeakProbe(), cfg)
	_, err := sidechannel.Sweep(context.Background(), h, sidechannel.SweepConfig{
		BaseKey: fipsKey,
		PtGen:   sidechannel.CounterGen(),
		Sink:    w,
		Labeled: true,
	})
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	header, _ := csv.NewReader(strings.NewReader(buf.String())).Read()
	if strings.Join(header, ",") != "key_byte_guess,plaintext_tag,measurement,is_correct_label" {
		t.Errorf("Header = %v", header)
	}
	rows, err := sidechannel.ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(rows) != w.Rows() {
		t.Errorf("Read %d rows, writer reported %d", len(rows), w.Rows())
	}
	return rows
}

func checkLabels(t *testing.T, rows []sidechannel.ExportRow) {
	t.Helper()
	for i, r := range rows {
		if r.Correct != (r.Guess == int(fipsKey[0])) {
			t.Errorf("Row %d: guess 0x%02x labelled %v", i, r.Guess, r.Correct)
		}
	}
}

func TestExportRowsPerRepeat(t *testing.T) {
	cfg := sidechannel.HarnessConfig{Iterations: 5, Repeats: 3}
	rows := sweepToCSV(t, cfg)
	if len(rows) != sidechannel.NumCandidates*cfg.Repeats {
		t.Errorf("Got %d rows, want %d", len(rows), sidechannel.NumCandidates*cfg.Repeats)
	}
	checkLabels(t, rows)
}

func TestExportRowsPerIteration(t *testing.T) {
	cfg := sidechannel.HarnessConfig{Iterations: 4, Repeats: 2, Granularity: sidechannel.PerIteration}
	rows := sweepToCSV(t, cfg)
	if len(rows) != sidechannel.NumCandidates*cfg.Iterations*cfg.Repeats {
		t.Errorf("Got %d rows, want %d", len(rows), sidechannel.NumCandidates*cfg.Iterations*cfg.Repeats)
	}
	checkLabels(t, rows)
	// Counter rule: first byte of sample n for candidate g is n*17 + g.
	for i, r := range rows {
		n := i % (cfg.Iterations * cfg.Repeats)
		if want := (n*17 + r.Guess) & 0xff; r.Tag != want {
			t.Errorf("Row %d tag %d, want %d", i, r.Tag, want)
		}
	}
}

func TestReadCSVRejectsBadInput(t *testing.T) {
	bad := []string{
		"a,b,c,d\n",
		"key_byte_guess,plaintext_tag,measurement,is_correct_label\n300,0,1.5,0\n",
		"key_byte_guess,plaintext_tag,measurement,is_correct_label\n1,0,1.5,yes\n",
		"key_byte_guess,plaintext_tag,measurement,is_correct_label\n1,0,1.5\n",
	}
	for _, in := range bad {
		if _, err := sidechannel.ReadCSV(strings.NewReader(in)); err == nil {
			t.Errorf("ReadCSV(%q) succeeded", in)
		}
	}
}

func TestEmptyExportHasHeader(t *testing.T) {
	var buf bytes.Buffer
	w := sidechannel.NewCSVWriter(&buf)
	w.Flush()
	rows, err := sidechannel.ReadCSV(&buf)
	if err != nil || len(rows) != 0 {
		t.Errorf("ReadCSV of empty export = %v, %v", rows, err)
	}
}

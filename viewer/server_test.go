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

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/senthil4321/sidechannel"
)

func writeCapture(t *testing.T, dir string) {
	t.Helper()
	key := make([]byte, sidechannel.KeySize)
	key[0] = 0x07
	c := sidechannel.NewCapture(sidechannel.SweepConfig{BaseKey: key, Labeled: true}, []string{"WALL_CLOCK"})
	for g := 0; g < sidechannel.NumCandidates; g++ {
		m := 10.0
		if g == 0x07 {
			m = 1.0
		}
		for r := 0; r < 2; r++ {
			c.Record(sidechannel.Sample{Candidate: g, Measurement: m + float64(r), Correct: g == 0x07,
				Counter: "WALL_CLOCK", Repeat: r, Iteration: -1})
		}
	}
	if err := c.Save(filepath.Join(dir, "run1"+capExt)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func get(t *testing.T, s *server, target string, out interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	newServer(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code == http.StatusOK && out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("Bad JSON from %v: %v", target, err)
		}
	}
	return rec.Code
}

func TestListCaptures(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir)
	s := &server{dir: dir, polarity: sidechannel.MinimumWins}

	var names []string
	if code := get(t, s, "/captures?wait=false", &names); code != http.StatusOK {
		t.Fatalf("GET /captures returned %d", code)
	}
	if len(names) != 1 || names[0] != "run1" {
		t.Errorf("Got captures %v, want [run1]", names)
	}
}

func TestCaptureSummary(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir)
	s := &server{dir: dir, polarity: sidechannel.MinimumWins}

	var sum CaptureSummary
	if code := get(t, s, "/data/run1", &sum); code != http.StatusOK {
		t.Fatalf("GET /data/run1 returned %d", code)
	}
	if sum.Known != 0x07 || sum.NumSamples != 2*sidechannel.NumCandidates || len(sum.Reports) != 1 {
		t.Fatalf("Unexpected summary %+v", sum)
	}
	r := sum.Reports[0]
	if r.Predicted != 0x07 || !r.Success || r.KnownRank != 0 {
		t.Errorf("Unexpected report %+v", r)
	}
}

func TestCandidateValues(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir)
	s := &server{dir: dir, polarity: sidechannel.MinimumWins}

	var values []float64
	if code := get(t, s, "/data/run1/WALL_CLOCK/7", &values); code != http.StatusOK {
		t.Fatalf("GET candidate returned %d", code)
	}
	if len(values) != 2 || values[0] != 1.0 || values[1] != 2.0 {
		t.Errorf("Got values %v, want [1 2]", values)
	}

	var means []*float64
	if code := get(t, s, "/data/run1/WALL_CLOCK", &means); code != http.StatusOK {
		t.Fatalf("GET means returned %d", code)
	}
	if len(means) != sidechannel.NumCandidates || means[7] == nil || *means[7] != 1.5 {
		t.Errorf("Unexpected means for candidate 7")
	}

	if code := get(t, s, "/data/run1/WALL_CLOCK/256", nil); code != http.StatusBadRequest {
		t.Errorf("Out of range candidate returned %d", code)
	}
	if code := get(t, s, "/data/missing", nil); code != http.StatusNotFound {
		t.Errorf("Missing capture returned %d", code)
	}
}

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

// Persists sweep samples.
package sidechannel

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Capture is the full sample stream of one sweep, stored as gzipped JSON.
type Capture struct {
	Key         []byte   `json:"k"`
	TargetIndex int      `json:"idx"`
	Counters    []string `json:"counters"`
	Labeled     bool     `json:"labeled"`
	Samples     []Sample `json:"samples"`
}

// An empty capture for a sweep with cfg over counters. Pass it as the
// sweep's sink to fill it.
func NewCapture(cfg SweepConfig, counters []string) *Capture {
	return &Capture{
		Key:         append([]byte(nil), cfg.BaseKey...),
		TargetIndex: cfg.TargetIndex,
		Counters:    counters,
		Labeled:     cfg.Labeled,
	}
}

func (c *Capture) Record(s Sample) error {
	c.Samples = append(c.Samples, s)
	return nil
}

func (c *Capture) Flush() error {
	return nil
}

// Secret byte when labelled, otherwise -1.
func (c *Capture) Known() int {
	if !c.Labeled || c.TargetIndex < 0 || c.TargetIndex >= len(c.Key) {
		return -1
	}
	return int(c.Key[c.TargetIndex])
}

// Exported for testing.
func LoadCaptureIo(src io.Reader) (*Capture, error) {
	var capture Capture
	zipper, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("gzip NewReader failed %v", err)
	}
	decoder := json.NewDecoder(zipper)
	if err = decoder.Decode(&capture); err != nil {
		return nil, fmt.Errorf("JSON decoder failed %v", err)
	}
	return &capture, nil
}

// Loads capture from file.
func LoadCapture(filename string) (*Capture, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("Error opening capture file: %v", err)
	}
	defer f.Close()
	return LoadCaptureIo(f)
}

// Exported for testing.
func (c *Capture) SaveIo(dst io.Writer) error {
	var err error
	zipper := gzip.NewWriter(dst)
	encoder := json.NewEncoder(zipper)
	if err = encoder.Encode(c); err != nil {
		return fmt.Errorf("JSON encoder failed %v", err)
	}
	if err = zipper.Close(); err != nil {
		return fmt.Errorf("gzip close failed %v", err)
	}
	return nil
}

func (c *Capture) Save(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("Error creating capture file: %v", err)
	}
	defer f.Close()
	return c.SaveIo(f)
}

// Aggregates the samples of counter.
func (c *Capture) Result(counter string) *SweepResult {
	return ResultFromSamples(counter, c.TargetIndex, c.Samples)
}

// Collects the samples of counter in a 256 (candidates) by n (windows)
// matrix. Every candidate must have the same number of samples.
//  _          _
// | -- 0x00 -- |
// | -- 0x01 -- |
// | --  ..  -- |
// | -- 0xff -- |
// |_          _|
//
func (c *Capture) SamplesMatrix(counter string) (mat.Matrix, error) {
	rows := make([][]float64, NumCandidates)
	for _, s := range c.Samples {
		if s.Counter != counter || s.Candidate < 0 || s.Candidate >= NumCandidates {
			continue
		}
		rows[s.Candidate] = append(rows[s.Candidate], s.Measurement)
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, fmt.Errorf("no %v samples for candidate 0", counter)
	}
	data := make([]float64, 0, NumCandidates*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("candidate 0x%02x has %d samples, want %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(NumCandidates, cols, data), nil
}

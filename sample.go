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

// Sample is one recorded measurement of one counter.
type Sample struct {
	Candidate    int `json:"g"`
	PlaintextTag int `json:"pt"`
	// Counter value per encryption.
	Measurement float64 `json:"m"`
	// Set only when the sweep knows the secret byte and Candidate equals it.
	Correct   bool   `json:"ok,omitempty"`
	Counter   string `json:"c"`
	Repeat    int    `json:"r"`
	Iteration int    `json:"i"`
}

// SampleSink receives samples while a sweep runs.
//
//go:generate mockgen -destination=mocks/sample_sink.go -package=mocks github.com/senthil4321/sidechannel SampleSink
type SampleSink interface {
	Record(s Sample) error
	Flush() error
}

// Fans out to every sink. The first error stops the fan-out.
type MultiSink []SampleSink

func (m MultiSink) Record(s Sample) error {
	for _, sink := range m {
		if err := sink.Record(s); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Flush() error {
	for _, sink := range m {
		if err := sink.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Keeps only samples of one counter.
type CounterFilter struct {
	Counter string
	Sink    SampleSink
}

func (f CounterFilter) Record(s Sample) error {
	if s.Counter != f.Counter {
		return nil
	}
	return f.Sink.Record(s)
}

func (f CounterFilter) Flush() error {
	return f.Sink.Flush()
}

// SampleBuffer keeps every sample in memory.
type SampleBuffer struct {
	Samples []Sample
}

func (b *SampleBuffer) Record(s Sample) error {
	b.Samples = append(b.Samples, s)
	return nil
}

func (b *SampleBuffer) Flush() error {
	return nil
}

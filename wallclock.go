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

import (
	"time"
)

// Clock returns a monotonic timestamp.
type Clock func() time.Time

// WallClock is a CounterBackend measuring elapsed monotonic time in
// microseconds. Always available, but noisier than hardware counters.
type WallClock struct {
	now     Clock
	start   time.Time
	elapsed time.Duration
	running bool
}

func NewWallClock() *WallClock {
	return NewWallClockWith(time.Now)
}

// For tests that need a deterministic clock.
func NewWallClockWith(now Clock) *WallClock {
	return &WallClock{now: now}
}

func (w *WallClock) Name() string {
	return SelectorWallClock.String()
}

func (w *WallClock) Reset() error {
	w.elapsed = 0
	w.running = false
	return nil
}

func (w *WallClock) Enable() error {
	w.running = true
	w.start = w.now()
	return nil
}

func (w *WallClock) Disable() error {
	end := w.now()
	if w.running {
		w.elapsed += end.Sub(w.start)
		w.running = false
	}
	return nil
}

func (w *WallClock) Read() (float64, error) {
	return float64(w.elapsed.Nanoseconds()) / 1000.0, nil
}

func (w *WallClock) Close() error {
	return nil
}

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

//go:build linux

package sidechannel_test

import (
	"errors"
	"syscall"
	"testing"

	"github.com/senthil4321/sidechannel"
)

func TestScaleCount(t *testing.T) {
	tests := []struct {
		value, enabled, running uint64
		want                    float64
	}{
		{1000, 500, 500, 1000},
		{1000, 1000, 500, 2000},
		{0, 0, 0, 0},
		{300, 900, 300, 900},
	}
	for _, tc := range tests {
		got, err := sidechannel.ScaleCount(sidechannel.SelectorCpuCycles, tc.value, tc.enabled, tc.running)
		if err != nil {
			t.Errorf("ScaleCount(%d, %d, %d) failed: %v", tc.value, tc.enabled, tc.running, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ScaleCount(%d, %d, %d) = %v, want %v", tc.value, tc.enabled, tc.running, got, tc.want)
		}
	}
}

func TestScaleCountNeverScheduled(t *testing.T) {
	_, err := sidechannel.ScaleCount(sidechannel.SelectorCacheMisses, 0, 1000, 0)
	if !errors.Is(err, sidechannel.ErrReadFailure) {
		t.Errorf("Got %v, want ErrReadFailure", err)
	}
}

// The host may or may not allow perf events. Either outcome must be
// classified.
func TestOpenPerfCounterOutcome(t *testing.T) {
	c, err := sidechannel.OpenCounter(sidechannel.NewCounterRequest(sidechannel.SelectorTaskClock))
	if err == nil {
		defer c.Close()
		if c.State() != sidechannel.StateConfigured {
			t.Errorf("Opened counter in state %v", c.State())
		}
		return
	}
	if !errors.Is(err, sidechannel.ErrCounterUnavailable) && !errors.Is(err, sidechannel.ErrPermissionDenied) &&
		!errors.Is(err, sidechannel.ErrResourceExhaustion) {
		t.Errorf("Unclassified open error: %v", err)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && sidechannel.Remediation(err) == "" {
		t.Errorf("No remediation for %v", err)
	}
}

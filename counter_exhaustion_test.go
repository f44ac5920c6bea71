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
	"errors"
	"syscall"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/senthil4321/sidechannel"
	"github.com/senthil4321/sidechannel/mocks"
)

func TestOpenCountersAbortsOnResourceExhaustion(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	opened := mocks.NewMockCounterBackend(mockCtrl)
	opened.EXPECT().Close().Return(nil)
	sidechannel.WithPerfOpener(t, func(req sidechannel.CounterRequest) (sidechannel.CounterBackend, error) {
		if req.Selector == sidechannel.SelectorCpuCycles {
			return opened, nil
		}
		return nil, &sidechannel.CounterError{Selector: req.Selector, Op: "open", Kind: sidechannel.ErrResourceExhaustion, Errno: syscall.EMFILE}
	})
	reqs := []sidechannel.CounterRequest{
		sidechannel.NewCounterRequest(sidechannel.SelectorCpuCycles),
		sidechannel.NewCounterRequest(sidechannel.SelectorInstructions),
		sidechannel.NewCounterRequest(sidechannel.SelectorLeakProbe),
	}
	group, err := sidechannel.OpenCounters(reqs, true)
	if !errors.Is(err, sidechannel.ErrResourceExhaustion) || group != nil {
		t.Errorf("OpenCounters = %v, %v, want ErrResourceExhaustion", group, err)
	}
}

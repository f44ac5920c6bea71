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
	"errors"
	"fmt"
	"syscall"
)

var (
	// The requested event does not exist on this host or target.
	ErrCounterUnavailable = errors.New("sidechannel: counter unavailable")

	// The host refused to open the counter for this user.
	ErrPermissionDenied = errors.New("sidechannel: permission denied")

	// Reading a captured counter failed or returned a short value.
	ErrReadFailure = errors.New("sidechannel: measurement read failure")

	// Too many open handles.
	ErrResourceExhaustion = errors.New("sidechannel: resource exhaustion")

	// Call is not allowed in the handle's current lifecycle state.
	ErrInvalidTransition = errors.New("sidechannel: invalid counter state transition")

	// No counter at all could be opened.
	ErrNoTimingSource = errors.New("sidechannel: no usable timing source")

	ErrInvalidConfig = errors.New("sidechannel: invalid configuration")
	ErrInvalidKey    = errors.New("sidechannel: invalid key length")
)

// CounterError reports why a counter could not be opened or read.
type CounterError struct {
	Selector Selector
	Op       string
	// One of the sentinel errors above.
	Kind error
	// Underlying OS error, may be nil.
	Errno error
}

func (e *CounterError) Error() string {
	if e.Errno != nil {
		return fmt.Sprintf("%v %v: %v (%v)", e.Op, e.Selector, e.Kind, e.Errno)
	}
	return fmt.Sprintf("%v %v: %v", e.Op, e.Selector, e.Kind)
}

func (e *CounterError) Unwrap() []error {
	if e.Errno != nil {
		return []error{e.Kind, e.Errno}
	}
	return []error{e.Kind}
}

// Remediation returns a short hint on how to make the counter usable.
func (e *CounterError) Remediation() string {
	switch e.Kind {
	case ErrPermissionDenied:
		return "insufficient privilege: run as root, grant CAP_PERFMON, or lower " +
			"/proc/sys/kernel/perf_event_paranoid (echo -1 | sudo tee /proc/sys/kernel/perf_event_paranoid)"
	case ErrCounterUnavailable:
		return "event not supported on this host or target: choose another selector or fall back to wall-clock"
	case ErrResourceExhaustion:
		return "too many open counters: close unused handles or raise RLIMIT_NOFILE"
	case ErrReadFailure:
		return "counter read failed: discard the sample and retry the window"
	}
	return ""
}

// Maps an errno from perf_event_open into one of the sentinel errors.
func classifyOpenErrno(errno syscall.Errno) error {
	switch errno {
	case syscall.EACCES, syscall.EPERM:
		return ErrPermissionDenied
	case syscall.EMFILE, syscall.ENFILE:
		return ErrResourceExhaustion
	default:
		// ENOENT, EOPNOTSUPP, EINVAL, ENODEV, ESRCH and friends.
		return ErrCounterUnavailable
	}
}

// Remediation extracts the hint from err if it wraps a *CounterError.
func Remediation(err error) string {
	var ce *CounterError
	if errors.As(err, &ce) {
		return ce.Remediation()
	}
	return ""
}

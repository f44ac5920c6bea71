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
	"unsafe"

	"golang.org/x/sys/cpu"
)

const DefaultFlushSize = 8 * 1024 * 1024

// Cache line size of the build target.
var CacheLineSize = int(unsafe.Sizeof(cpu.CacheLinePad{}))

// Flusher evicts the oracle's working set by writing one byte per cache line
// of a scratch buffer larger than the cache. The buffer is allocated once
// and reused so flushing does not create garbage inside a sweep.
type Flusher struct {
	buf    []byte
	stride int
	// Summed on every flush so the writes cannot be elided.
	sink byte
}

func NewFlusher(size int) *Flusher {
	if size <= 0 {
		size = DefaultFlushSize
	}
	stride := CacheLineSize
	if stride <= 0 {
		stride = 64
	}
	return &Flusher{buf: make([]byte, size), stride: stride}
}

func (f *Flusher) Size() int {
	return len(f.buf)
}

func (f *Flusher) Stride() int {
	return f.stride
}

// Touches every cache line of the scratch buffer. Returns the number of
// lines touched.
func (f *Flusher) Flush() int {
	n := 0
	for i := 0; i < len(f.buf); i += f.stride {
		f.buf[i] = byte(i)
		f.sink += f.buf[i]
		n++
	}
	return n
}

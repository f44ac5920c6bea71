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
	"testing"

	"github.com/senthil4321/sidechannel"
)

func TestFlushTouchesEveryLine(t *testing.T) {
	f := sidechannel.NewFlusher(1 << 16)
	if f.Stride() <= 0 {
		t.Fatalf("Stride = %d", f.Stride())
	}
	want := (f.Size() + f.Stride() - 1) / f.Stride()
	if n := f.Flush(); n != want {
		t.Errorf("Flush touched %d lines, want %d", n, want)
	}
}

func TestFlusherDefaultSize(t *testing.T) {
	if f := sidechannel.NewFlusher(0); f.Size() != sidechannel.DefaultFlushSize {
		t.Errorf("Size = %d, want %d", f.Size(), sidechannel.DefaultFlushSize)
	}
}

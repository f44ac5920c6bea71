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
	"encoding/binary"
	"fmt"

	"lukechampine.com/frand"
)

// PtGen fills dst with the plaintext for the index'th encryption of
// candidate guess. Indices restart at 0 for every candidate.
type PtGen func(guess byte, index int, dst []byte) error

// Tag recorded for a plaintext in exported samples.
func PlaintextTag(pt []byte) int {
	return int(pt[0])
}

// Same plaintext for every encryption.
func FixedGen(pt []byte) PtGen {
	fixed := make([]byte, BlockSize)
	copy(fixed, pt)
	return func(guess byte, index int, dst []byte) error {
		copy(dst, fixed)
		return nil
	}
}

// All zero plaintext.
func ZeroGen() PtGen {
	return FixedGen(make([]byte, BlockSize))
}

// Cycles through a fixed set of plaintexts.
func CycleGen(pts [][]byte) (PtGen, error) {
	if len(pts) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext set", ErrInvalidConfig)
	}
	set := make([][]byte, len(pts))
	for i, pt := range pts {
		if len(pt) != BlockSize {
			return nil, fmt.Errorf("%w: plaintext %d has %d bytes", ErrInvalidConfig, i, len(pt))
		}
		set[i] = append([]byte(nil), pt...)
	}
	return func(guess byte, index int, dst []byte) error {
		copy(dst, set[index%len(set)])
		return nil
	}, nil
}

// Counter rule: byte i of sample n for candidate g is (n*17 + i*23 + g) & 0xff.
func CounterGen() PtGen {
	return func(guess byte, index int, dst []byte) error {
		for i := 0; i < BlockSize; i++ {
			dst[i] = byte(index*17 + i*23 + int(guess))
		}
		return nil
	}
}

// Deterministic pseudo-random stream. Two generators with the same seed
// produce the same plaintexts when called in the same order.
func SeededGen(seed uint64) PtGen {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	rng := frand.NewCustom(key[:], 1024, 12)
	return func(guess byte, index int, dst []byte) error {
		rng.Read(dst[:BlockSize])
		return nil
	}
}

// Fresh random plaintext for each encryption.
func RandGen() PtGen {
	return func(guess byte, index int, dst []byte) error {
		frand.Read(dst[:BlockSize])
		return nil
	}
}

// Parses a plaintext policy name: zero, counter, random, seeded.
func ParsePtGen(name string, seed uint64) (PtGen, error) {
	switch name {
	case "zero", "fixed":
		return ZeroGen(), nil
	case "counter":
		return CounterGen(), nil
	case "random":
		return RandGen(), nil
	case "seeded":
		return SeededGen(seed), nil
	}
	return nil, fmt.Errorf("%w: unknown plaintext policy %q", ErrInvalidConfig, name)
}

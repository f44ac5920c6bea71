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

// Leaky AES-128 oracle.
// SubBytes runs a busy loop whose length is the low nibble of every looked up
// value, so total latency depends on sbox[pt^key] values. Do not use this for
// anything but measurement experiments.
package sidechannel

import (
	"fmt"
)

const (
	BlockSize = 16
	KeySize   = 16
	Rounds    = 10
)

var (
	// Copied from third_party/tiny-AES-c/aes.c
	sbox = [256]byte{
		//0     1    2      3     4    5     6     7      8    9     A      B    C     D     E     F
		0x63, 0x7c, 0x77, 0x7b, 0xf2, 0x6b, 0x6f, 0xc5, 0x30, 0x01, 0x67, 0x2b, 0xfe, 0xd7, 0xab, 0x76,
		0xca, 0x82, 0xc9, 0x7d, 0xfa, 0x59, 0x47, 0xf0, 0xad, 0xd4, 0xa2, 0xaf, 0x9c, 0xa4, 0x72, 0xc0,
		0xb7, 0xfd, 0x93, 0x26, 0x36, 0x3f, 0xf7, 0xcc, 0x34, 0xa5, 0xe5, 0xf1, 0x71, 0xd8, 0x31, 0x15,
		0x04, 0xc7, 0x23, 0xc3, 0x18, 0x96, 0x05, 0x9a, 0x07, 0x12, 0x80, 0xe2, 0xeb, 0x27, 0xb2, 0x75,
		0x09, 0x83, 0x2c, 0x1a, 0x1b, 0x6e, 0x5a, 0xa0, 0x52, 0x3b, 0xd6, 0xb3, 0x29, 0xe3, 0x2f, 0x84,
		0x53, 0xd1, 0x00, 0xed, 0x20, 0xfc, 0xb1, 0x5b, 0x6a, 0xcb, 0xbe, 0x39, 0x4a, 0x4c, 0x58, 0xcf,
		0xd0, 0xef, 0xaa, 0xfb, 0x43, 0x4d, 0x33, 0x85, 0x45, 0xf9, 0x02, 0x7f, 0x50, 0x3c, 0x9f, 0xa8,
		0x51, 0xa3, 0x40, 0x8f, 0x92, 0x9d, 0x38, 0xf5, 0xbc, 0xb6, 0xda, 0x21, 0x10, 0xff, 0xf3, 0xd2,
		0xcd, 0x0c, 0x13, 0xec, 0x5f, 0x97, 0x44, 0x17, 0xc4, 0xa7, 0x7e, 0x3d, 0x64, 0x5d, 0x19, 0x73,
		0x60, 0x81, 0x4f, 0xdc, 0x22, 0x2a, 0x90, 0x88, 0x46, 0xee, 0xb8, 0x14, 0xde, 0x5e, 0x0b, 0xdb,
		0xe0, 0x32, 0x3a, 0x0a, 0x49, 0x06, 0x24, 0x5c, 0xc2, 0xd3, 0xac, 0x62, 0x91, 0x95, 0xe4, 0x79,
		0xe7, 0xc8, 0x37, 0x6d, 0x8d, 0xd5, 0x4e, 0xa9, 0x6c, 0x56, 0xf4, 0xea, 0x65, 0x7a, 0xae, 0x08,
		0xba, 0x78, 0x25, 0x2e, 0x1c, 0xa6, 0xb4, 0xc6, 0xe8, 0xdd, 0x74, 0x1f, 0x4b, 0xbd, 0x8b, 0x8a,
		0x70, 0x3e, 0xb5, 0x66, 0x48, 0x03, 0xf6, 0x0e, 0x61, 0x35, 0x57, 0xb9, 0x86, 0xc1, 0x1d, 0x9e,
		0xe1, 0xf8, 0x98, 0x11, 0x69, 0xd9, 0x8e, 0x94, 0x9b, 0x1e, 0x87, 0xe9, 0xce, 0x55, 0x28, 0xdf,
		0x8c, 0xa1, 0x89, 0x0d, 0xbf, 0xe6, 0x42, 0x68, 0x41, 0x99, 0x2d, 0x0f, 0xb0, 0x54, 0xbb, 0x16}

	rcon = [Rounds]byte{0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80, 0x1b, 0x36}
)

// Written by the SubBytes busy loop so the compiler keeps it.
var delaySink int

// Oracle is the block encryption being measured.
type Oracle interface {
	Encrypt(dst, src []byte)
}

// Substitution describes a single S-box lookup inside SubBytes.
type Substitution struct {
	Round int  // 1..Rounds
	Index int  // state byte position 0..15
	In    byte // state byte before lookup
	Out   byte // sbox[In]
	Delay int  // busy loop iterations executed for Out
}

// Number of busy loop iterations executed after looking up v.
func DelayIterations(v byte) int {
	return int(v & 0x0f)
}

// Sbox returns the forward S-box value for x.
func Sbox(x byte) byte {
	return sbox[x]
}

// Schedule holds the expanded round keys for a single key. It is never
// modified after Expand returns.
type Schedule struct {
	roundKeys [Rounds + 1][BlockSize]byte
}

// Expands a 16 byte key into 11 round keys.
func Expand(key []byte) (*Schedule, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}
	s := &Schedule{}
	copy(s.roundKeys[0][:], key)

	var temp [4]byte
	for i := 1; i <= Rounds; i++ {
		prev := &s.roundKeys[i-1]
		cur := &s.roundKeys[i]
		// RotWord + SubWord + Rcon on the last word of the previous key.
		temp[0] = sbox[prev[13]] ^ rcon[i-1]
		temp[1] = sbox[prev[14]]
		temp[2] = sbox[prev[15]]
		temp[3] = sbox[prev[12]]
		for j := 0; j < 4; j++ {
			cur[j] = prev[j] ^ temp[j]
		}
		for j := 4; j < KeySize; j++ {
			cur[j] = prev[j] ^ cur[j-4]
		}
	}
	return s, nil
}

// RoundKey returns a copy of round key r.
func (s *Schedule) RoundKey(r int) []byte {
	k := make([]byte, BlockSize)
	copy(k, s.roundKeys[r][:])
	return k
}

// Encrypt encrypts a single block. dst and src may overlap entirely.
func (s *Schedule) Encrypt(dst, src []byte) {
	s.encrypt(dst, src, nil)
}

// EncryptTrace is Encrypt, and calls fn for every S-box lookup in order.
func (s *Schedule) EncryptTrace(dst, src []byte, fn func(Substitution)) {
	s.encrypt(dst, src, fn)
}

func (s *Schedule) encrypt(dst, src []byte, fn func(Substitution)) {
	if len(src) < BlockSize || len(dst) < BlockSize {
		panic("sidechannel: short block")
	}
	var state [BlockSize]byte
	copy(state[:], src)

	addRoundKey(&state, &s.roundKeys[0])
	for round := 1; round < Rounds; round++ {
		subBytes(&state, round, fn)
		shiftRows(&state)
		mixColumns(&state)
		addRoundKey(&state, &s.roundKeys[round])
	}
	subBytes(&state, Rounds, fn)
	shiftRows(&state)
	addRoundKey(&state, &s.roundKeys[Rounds])

	copy(dst, state[:])
}

func subBytes(state *[BlockSize]byte, round int, fn func(Substitution)) {
	for i := 0; i < BlockSize; i++ {
		in := state[i]
		v := sbox[in]
		n := DelayIterations(v)
		dummy := 0
		for j := 0; j < n; j++ {
			dummy += j
		}
		delaySink += dummy
		if fn != nil {
			fn(Substitution{Round: round, Index: i, In: in, Out: v, Delay: n})
		}
		state[i] = v
	}
}

// State is column major: byte i is row i%4, column i/4.
func shiftRows(state *[BlockSize]byte) {
	// Row 1: rotate left by 1.
	t := state[1]
	state[1] = state[5]
	state[5] = state[9]
	state[9] = state[13]
	state[13] = t

	// Row 2: rotate left by 2.
	state[2], state[10] = state[10], state[2]
	state[6], state[14] = state[14], state[6]

	// Row 3: rotate left by 3.
	t = state[15]
	state[15] = state[11]
	state[11] = state[7]
	state[7] = state[3]
	state[3] = t
}

func gfMul(a, b byte) byte {
	var p byte
	for i := 0; i < 8; i++ {
		if b&1 != 0 {
			p ^= a
		}
		hi := a & 0x80
		a <<= 1
		if hi != 0 {
			a ^= 0x1b
		}
		b >>= 1
	}
	return p
}

func mixColumns(state *[BlockSize]byte) {
	for c := 0; c < 4; c++ {
		a0, a1, a2, a3 := state[c*4], state[c*4+1], state[c*4+2], state[c*4+3]
		state[c*4+0] = gfMul(a0, 2) ^ gfMul(a1, 3) ^ a2 ^ a3
		state[c*4+1] = a0 ^ gfMul(a1, 2) ^ gfMul(a2, 3) ^ a3
		state[c*4+2] = a0 ^ a1 ^ gfMul(a2, 2) ^ gfMul(a3, 3)
		state[c*4+3] = gfMul(a0, 3) ^ a1 ^ a2 ^ gfMul(a3, 2)
	}
}

func addRoundKey(state *[BlockSize]byte, k *[BlockSize]byte) {
	for i := 0; i < BlockSize; i++ {
		state[i] ^= k[i]
	}
}

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
	"bytes"
	"crypto/aes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/senthil4321/sidechannel"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("Bad hex %q: %v", s, err)
	}
	return b
}

func TestExpandRoundKeys(t *testing.T) {
	key := mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	s, err := sidechannel.Expand(key)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if !bytes.Equal(s.RoundKey(0), key) {
		t.Errorf("Round key 0 = %x, want the key", s.RoundKey(0))
	}
	want := mustHex(t, "d014f9a8c9ee2589e13f0cc8b6630ca6")
	if !bytes.Equal(s.RoundKey(10), want) {
		t.Errorf("Round key 10 = %x, want %x", s.RoundKey(10), want)
	}

	again, _ := sidechannel.Expand(key)
	for r := 0; r <= sidechannel.Rounds; r++ {
		if !bytes.Equal(s.RoundKey(r), again.RoundKey(r)) {
			t.Errorf("Round key %d differs between expansions", r)
		}
	}
}

func TestExpandRejectsBadKeyLength(t *testing.T) {
	for _, n := range []int{0, 15, 17, 32} {
		if _, err := sidechannel.Expand(make([]byte, n)); !errors.Is(err, sidechannel.ErrInvalidKey) {
			t.Errorf("Expand(%d bytes) err = %v, want ErrInvalidKey", n, err)
		}
	}
}

func TestEncryptKnownAnswer(t *testing.T) {
	tests := []struct {
		key, pt, ct string
	}{
		{"2b7e151628aed2a6abf7158809cf4f3c", "3243f6a8885a308d313198a2e0370734", "3925841d02dc09fbdc118597196a0b32"},
		{"2b7e151628aed2a6abf7158809cf4f3c", "00000000000000000000000000000000", "7df76b0c1ab899b33e42f047b91b546f"},
	}
	for _, tc := range tests {
		s, err := sidechannel.Expand(mustHex(t, tc.key))
		if err != nil {
			t.Fatalf("Expand failed: %v", err)
		}
		ct := make([]byte, sidechannel.BlockSize)
		s.Encrypt(ct, mustHex(t, tc.pt))
		if hex.EncodeToString(ct) != tc.ct {
			t.Errorf("Encrypt(%v) = %x, want %v", tc.pt, ct, tc.ct)
		}
	}
}

func TestEncryptMatchesStdlib(t *testing.T) {
	key := make([]byte, sidechannel.KeySize)
	pt := make([]byte, sidechannel.BlockSize)
	for i := 0; i < 64; i++ {
		for j := range key {
			key[j] = byte(i*31 + j*7)
			pt[j] = byte(i*13 ^ j*29)
		}
		ref, err := aes.NewCipher(key)
		if err != nil {
			t.Fatalf("aes.NewCipher failed: %v", err)
		}
		s, err := sidechannel.Expand(key)
		if err != nil {
			t.Fatalf("Expand failed: %v", err)
		}
		want := make([]byte, sidechannel.BlockSize)
		got := make([]byte, sidechannel.BlockSize)
		ref.Encrypt(want, pt)
		s.Encrypt(got, pt)
		if !bytes.Equal(got, want) {
			t.Errorf("key %x pt %x: got %x, want %x", key, pt, got, want)
		}
	}
}

func TestEncryptInPlace(t *testing.T) {
	s, _ := sidechannel.Expand(mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c"))
	buf := mustHex(t, "3243f6a8885a308d313198a2e0370734")
	s.Encrypt(buf, buf)
	if hex.EncodeToString(buf) != "3925841d02dc09fbdc118597196a0b32" {
		t.Errorf("In place Encrypt = %x", buf)
	}
}

func TestTraceReportsEveryLookup(t *testing.T) {
	s, _ := sidechannel.Expand(mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c"))
	pt := mustHex(t, "3243f6a8885a308d313198a2e0370734")

	var subs []sidechannel.Substitution
	traced := make([]byte, sidechannel.BlockSize)
	s.EncryptTrace(traced, pt, func(sub sidechannel.Substitution) {
		subs = append(subs, sub)
	})

	plain := make([]byte, sidechannel.BlockSize)
	s.Encrypt(plain, pt)
	if !bytes.Equal(traced, plain) {
		t.Errorf("EncryptTrace = %x, Encrypt = %x", traced, plain)
	}
	if len(subs) != sidechannel.Rounds*sidechannel.BlockSize {
		t.Fatalf("Got %d substitutions, want %d", len(subs), sidechannel.Rounds*sidechannel.BlockSize)
	}
	for i, sub := range subs {
		if sub.Round != i/sidechannel.BlockSize+1 || sub.Index != i%sidechannel.BlockSize {
			t.Errorf("Substitution %d at round %d index %d", i, sub.Round, sub.Index)
		}
		if sub.Out != sidechannel.Sbox(sub.In) {
			t.Errorf("Substitution %d: Out 0x%02x != sbox[0x%02x]", i, sub.Out, sub.In)
		}
		if sub.Delay != int(sub.Out&0x0f) || sub.Delay != sidechannel.DelayIterations(sub.Out) {
			t.Errorf("Substitution %d: delay %d for value 0x%02x", i, sub.Delay, sub.Out)
		}
	}
	// First round input is pt ^ key.
	if subs[0].In != 0x32^0x2b {
		t.Errorf("First lookup input 0x%02x, want 0x%02x", subs[0].In, 0x32^0x2b)
	}
}

func TestDelayIterations(t *testing.T) {
	for v := 0; v < 256; v++ {
		if d := sidechannel.DelayIterations(byte(v)); d != v&0x0f {
			t.Errorf("DelayIterations(0x%02x) = %d", v, d)
		}
	}
}

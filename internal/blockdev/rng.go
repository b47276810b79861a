// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blockdev

import (
	"crypto/rand"
)

// CryptoRNG is the production RNG, standing in for the original
// kernel's startup jitter-entropy collector (spec.md §1: "treated as
// a producer of an opaque 32-bit RNG value").
type CryptoRNG struct{}

func (CryptoRNG) Fill(buf []byte) {
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on a supported platform only fails if the
		// OS entropy source is broken; there is nothing a filesystem
		// key draw can do to recover from that.
		panic("blockdev: system RNG failed: " + err.Error())
	}
}

// SeqRNG is a deterministic test double that replays a fixed,
// counter-derived byte sequence, so tests can assert relocation
// transparency (spec.md §8) without caring about the exact key bytes
// -- only that decrypting under the newly-drawn key reproduces the
// same plaintext.
type SeqRNG struct {
	counter uint64
}

func (r *SeqRNG) Fill(buf []byte) {
	for i := range buf {
		buf[i] = byte(r.counter)
		r.counter++
	}
}

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

package fsys

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

// incrementIV returns iv advanced by delta AES-blocks (16 bytes each),
// treating the 16-byte IV as a big-endian counter. spec.md §9 calls
// out that the counter must be derived arithmetically from the byte
// offset being accessed -- never by letting a stream cipher's
// internal counter simply keep advancing across calls -- so that
// re-encrypting an arbitrary slice of a file (a partial block, a
// relocated tail) always lines up with what a full-file encrypt would
// have produced at that same offset.
func incrementIV(iv [IVSize]byte, delta uint64) [IVSize]byte {
	hi := binary.BigEndian.Uint64(iv[0:8])
	lo := binary.BigEndian.Uint64(iv[8:16])
	newLo := lo + delta
	if newLo < lo {
		hi++
	}
	var out [IVSize]byte
	binary.BigEndian.PutUint64(out[0:8], hi)
	binary.BigEndian.PutUint64(out[8:16], newLo)
	return out
}

// cryptBytes XORs data against the AES-CTR keystream starting at
// keystream AES-block byteOffset/16 (spec.md §9: "byte n of a file
// must land on keystream block n/16, regardless of how the caller's
// read or write happens to be sliced"). byteOffset need not be a
// multiple of 16; cryptBytes discards the appropriate number of
// leading keystream bytes within the first block so mid-block
// accesses (partial head/tail blocks) still line up exactly with a
// full from-zero encryption.
func cryptBytes(key []byte, iv [IVSize]byte, byteOffset uint64, data []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	blockIndex := byteOffset / aes.BlockSize
	skip := int(byteOffset % aes.BlockSize)

	ctrIV := incrementIV(iv, blockIndex)
	stream := cipher.NewCTR(block, ctrIV[:])

	if skip == 0 {
		stream.XORKeyStream(data, data)
		return nil
	}

	// Burn the skipped prefix of this keystream block, then apply the
	// remainder to data.
	pad := make([]byte, skip+len(data))
	copy(pad[skip:], data)
	stream.XORKeyStream(pad, pad)
	copy(data, pad[skip:])
	return nil
}

// cryptDiskBlock encrypts or decrypts (AES-CTR is its own inverse)
// exactly one BlockSize-sized disk block, diskBlockIndex blocks from
// the start of the file's own byte stream (not the device's absolute
// block number -- relocating a file's blocks elsewhere on disk must
// never change what keystream block its n'th byte uses).
func cryptDiskBlock(key []byte, iv [IVSize]byte, diskBlockIndex uint64, data []byte) error {
	return cryptBytes(key, iv, diskBlockIndex*BlockSize, data)
}

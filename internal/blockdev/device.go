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

// Package blockdev is the block-device and RNG capability the
// filesystem is parameterized over (spec.md §4.3), grounded in the
// same "small capability interface instead of a raw pointer /
// function-pointer callback" re-architecture called for in spec.md
// §9, and in the teacher's in-memory fake bucket
// (internal/storage/fake) used to make gcsfuse's filesystem layer
// testable without a real GCS backend.
package blockdev

import "errors"

// ErrIO is surfaced to callers when the underlying device fails a
// read or write (spec.md §6/§7: "io-error").
var ErrIO = errors.New("blockdev: I/O error")

// Device is a linear, byte-addressable disk.
type Device interface {
	ReadAt(buf []byte, off int64) error
	WriteAt(buf []byte, off int64) error
	// Size reports the device's total addressable byte length.
	Size() int64
}

// RNG fills buf with bytes used only to seed per-file AES keys and
// IVs (spec.md §4.3).
type RNG interface {
	Fill(buf []byte)
}

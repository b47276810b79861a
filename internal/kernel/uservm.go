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

package kernel

import (
	"errors"

	"github.com/cvt8/rojocos/internal/memory"
)

// ErrFault is returned when a syscall argument names a virtual
// address that is not present (or not writable, for an output
// buffer) in the caller's address space -- the Go-level stand-in for
// a user-mode page fault (spec.md §4.6: "page faults from user mode
// transition the faulting process to broken").
var ErrFault = errors.New("kernel: invalid user address")

// readUserBytes copies n bytes starting at virtual address va in
// root's address space, crossing page boundaries as needed.
func readUserBytes(arena *memory.Arena, root uintptr, va uintptr, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; {
		pageVA := (va + uintptr(i)) &^ (memory.FrameSize - 1)
		m, ok := memory.Lookup(arena, root, pageVA)
		if !ok {
			return nil, ErrFault
		}
		offsetInPage := int((va + uintptr(i)) - pageVA)
		chunk := memory.FrameSize - offsetInPage
		if chunk > n-i {
			chunk = n - i
		}
		arena.ReadAt(out[i:i+chunk], m.PA+uintptr(offsetInPage))
		i += chunk
	}
	return out, nil
}

// writeUserBytes is readUserBytes's inverse, also requiring the
// covered pages to be Writable.
func writeUserBytes(arena *memory.Arena, root uintptr, va uintptr, data []byte) error {
	for i := 0; i < len(data); {
		pageVA := (va + uintptr(i)) &^ (memory.FrameSize - 1)
		m, ok := memory.Lookup(arena, root, pageVA)
		if !ok || !m.Flags.Has(memory.Writable) {
			return ErrFault
		}
		offsetInPage := int((va + uintptr(i)) - pageVA)
		chunk := memory.FrameSize - offsetInPage
		if chunk > len(data)-i {
			chunk = len(data) - i
		}
		arena.WriteAt(data[i:i+chunk], m.PA+uintptr(offsetInPage))
		i += chunk
	}
	return nil
}

// readUserString reads a NUL-terminated string starting at va,
// bounded by maxLen bytes (a path longer than that is treated as a
// fault rather than scanning forever into unmapped memory).
func readUserString(arena *memory.Arena, root uintptr, va uintptr, maxLen int) (string, error) {
	buf := make([]byte, 0, 64)
	for i := 0; i < maxLen; i++ {
		b, err := readUserBytes(arena, root, va+uintptr(i), 1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
	return "", ErrFault
}

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

// Package memory models the kernel's physical address space: a flat
// byte arena standing in for RAM, a frame table tracking ownership of
// each 4 KiB frame of it, and a 4-level page table walker built on
// top of both. There is no real MMU here -- this is a deterministic,
// in-process simulation of one, which is what lets the rest of the
// kernel core be unit tested without a hypervisor.
package memory

import "fmt"

// FrameSize is the fixed unit of physical allocation and virtual
// mapping: 4 KiB, per spec.md's glossary.
const FrameSize = 4096

// Arena is the simulated physical RAM backing every frame. Physical
// addresses are byte offsets into it; PA / FrameSize is the frame
// number.
type Arena struct {
	bytes []byte
}

// NewArena allocates an arena large enough for nframes frames.
func NewArena(nframes int) *Arena {
	return &Arena{bytes: make([]byte, nframes*FrameSize)}
}

// NFrames reports the arena's capacity in frames.
func (a *Arena) NFrames() int {
	return len(a.bytes) / FrameSize
}

// Frame returns a slice viewing the frame at physical address pa. pa
// must be frame-aligned.
func (a *Arena) Frame(pa uintptr) []byte {
	if pa%FrameSize != 0 {
		panic(fmt.Sprintf("memory: unaligned physical address %#x", pa))
	}
	fn := int(pa) / FrameSize
	return a.bytes[fn*FrameSize : (fn+1)*FrameSize]
}

// Zero clears the frame at pa. Allocation is required to zero a frame
// before handing it to a new owner, to prevent one owner's data
// leaking to the next (spec.md §4.1).
func (a *Arena) Zero(pa uintptr) {
	f := a.Frame(pa)
	for i := range f {
		f[i] = 0
	}
}

// ReadAt copies len(buf) bytes starting at physical address pa into
// buf. The range must not cross outside the arena.
func (a *Arena) ReadAt(buf []byte, pa uintptr) {
	copy(buf, a.bytes[pa:int(pa)+len(buf)])
}

// WriteAt copies buf into the arena starting at physical address pa.
func (a *Arena) WriteAt(buf []byte, pa uintptr) {
	copy(a.bytes[pa:int(pa)+len(buf)], buf)
}

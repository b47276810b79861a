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

package memory

import "errors"

// ErrOutOfMemory is returned by Alloc when no frame is free.
var ErrOutOfMemory = errors.New("memory: no free frame")

// ErrFrameBusy is returned by Assign when the requested frame is not
// free.
var ErrFrameBusy = errors.New("memory: frame is not free")

// Frame is one physical-frame-table entry (spec.md §3).
type Frame struct {
	Owner    Owner
	RefCount int
}

// FrameTable hands out and tracks ownership of every physical frame in
// an Arena.
type FrameTable struct {
	arena  *Arena
	frames []Frame
	cursor int // rotating scan position, for Alloc
}

// NewFrameTable builds a table over arena, with the first
// reservedFrames frames marked OwnerReserved and never handed out by
// Alloc (spec.md §4.1: "reserved frames are never allocated").
func NewFrameTable(arena *Arena, reservedFrames int) *FrameTable {
	ft := &FrameTable{
		arena:  arena,
		frames: make([]Frame, arena.NFrames()),
	}
	for i := 0; i < reservedFrames && i < len(ft.frames); i++ {
		ft.frames[i] = Frame{Owner: Reserved, RefCount: 1}
	}
	return ft
}

// NFrames returns the table's size.
func (ft *FrameTable) NFrames() int {
	return len(ft.frames)
}

// At returns a copy of the frame-table entry for frame number fn.
func (ft *FrameTable) At(fn int) Frame {
	return ft.frames[fn]
}

func frameToPA(fn int) uintptr {
	return uintptr(fn) * FrameSize
}

func paToFrame(pa uintptr) int {
	return int(pa) / FrameSize
}

// Alloc finds a free frame via a rotating-cursor linear scan, assigns
// it to owner with RefCount 1, zeroes its contents, and returns its
// physical address. It fails with ErrOutOfMemory when no frame is
// free (spec.md §4.1).
func (ft *FrameTable) Alloc(owner Owner) (uintptr, error) {
	n := len(ft.frames)
	for i := 0; i < n; i++ {
		fn := (ft.cursor + i) % n
		if ft.frames[fn].Owner.Kind == OwnerFree {
			ft.frames[fn] = Frame{Owner: owner, RefCount: 1}
			ft.cursor = (fn + 1) % n
			pa := frameToPA(fn)
			ft.arena.Zero(pa)
			return pa, nil
		}
	}
	return 0, ErrOutOfMemory
}

// Assign claims a specific, already-known-free and frame-aligned
// physical address for owner, as used by the loader for fixed
// placements. It fails if the frame is not free.
func (ft *FrameTable) Assign(pa uintptr, owner Owner) error {
	if pa%FrameSize != 0 {
		return errors.New("memory: unaligned physical address")
	}
	fn := paToFrame(pa)
	if fn < 0 || fn >= len(ft.frames) {
		return errors.New("memory: physical address out of range")
	}
	if ft.frames[fn].Owner.Kind != OwnerFree {
		return ErrFrameBusy
	}
	ft.frames[fn] = Frame{Owner: owner, RefCount: 1}
	return nil
}

// IncRef bumps the refcount of the frame at pa, used when a page
// table entry in another address space comes to reference it (shared
// kernel/console mappings during fork).
func (ft *FrameTable) IncRef(pa uintptr) {
	fn := paToFrame(pa)
	ft.frames[fn].RefCount++
}

// DecRef drops the refcount of the frame at pa, freeing it back to
// OwnerFree once it reaches zero.
func (ft *FrameTable) DecRef(pa uintptr) {
	fn := paToFrame(pa)
	ft.frames[fn].RefCount--
	if ft.frames[fn].RefCount <= 0 {
		ft.frames[fn] = Frame{}
	}
}

// ReleaseProcess returns every frame owned by pid to OwnerFree with
// RefCount reset, per spec.md §4.1 teardown semantics.
func (ft *FrameTable) ReleaseProcess(pid int32) {
	for fn := range ft.frames {
		if ft.frames[fn].Owner.Kind == OwnerProcess && ft.frames[fn].Owner.PID == pid {
			ft.frames[fn] = Frame{}
		}
	}
}

// Arena exposes the backing arena, e.g. so callers can read/write the
// contents of a frame they hold the physical address of.
func (ft *FrameTable) Arena() *Arena {
	return ft.arena
}

// SetOwner re-tags an already-allocated frame without touching its
// contents or refcount. exec uses this to carry the argv frame across
// teardown: the frame is drawn under a placeholder owner, the old
// program's frames are released, and only then is the argv frame
// re-tagged to the new process generation.
func (ft *FrameTable) SetOwner(pa uintptr, owner Owner) {
	fn := paToFrame(pa)
	ft.frames[fn].Owner = owner
}

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

package process

import (
	"encoding/binary"

	"github.com/cvt8/rojocos/internal/memory"
)

// Segment is one ELF PT_LOAD program header: a contiguous range of
// virtual memory, the filesz bytes of it that come from the image,
// and its total memsz (the remainder is bss, zero-filled).
type Segment struct {
	VAddr  uintptr
	Data   []byte // filesz bytes
	MemSize int
}

// Program is a loaded executable image: its PT_LOAD segments and
// entry point (spec.md §4.5's program_load).
type Program struct {
	Entry    uintptr
	Segments []Segment
}

const (
	// ArgvVA is the fixed user-space virtual address the argv page is
	// mapped at, preserved verbatim across exec (spec.md §4.5).
	ArgvVA = 0x7F0000000000

	// UserStackTop is the top of user virtual address space; the user
	// stack's single page is mapped immediately below it.
	UserStackTop = 0x800000000000
)

// loadProgram installs a fresh user image into an address space
// already carrying the kernel mappings: it loads prog's PT_LOAD
// segments into newly allocated frames, maps a fresh user stack, and
// -- if argv is non-nil -- builds the argv frame and maps it at
// ArgvVA, then sets the entry registers (rdi=argc, rsi=argv_va,
// rsp=top, rip=entry), per spec.md §4.5.
func loadProgram(arena *memory.Arena, frames *memory.FrameTable, root uintptr, pid int32, prog *Program, argv []string, regs *Registers) error {
	allocFn := func() (uintptr, error) { return frames.Alloc(memory.Process(pid)) }

	for _, seg := range prog.Segments {
		if err := loadSegment(arena, frames, root, pid, seg, allocFn); err != nil {
			return err
		}
	}

	stackPA, err := frames.Alloc(memory.Process(pid))
	if err != nil {
		return err
	}
	stackVA := UserStackTop - memory.FrameSize
	if err := memory.Map(arena, root, stackVA, stackPA, memory.FrameSize, memory.UserRW, allocFn); err != nil {
		return err
	}

	argc := uint64(0)
	if argv != nil {
		argvPA, err := buildArgvFrame(arena, frames, pid, argv)
		if err != nil {
			return err
		}
		if err := memory.Map(arena, root, ArgvVA, argvPA, memory.FrameSize, memory.UserRW, allocFn); err != nil {
			return err
		}
		argc = uint64(len(argv))
	}

	regs.RDI = argc
	regs.RSI = uint64(ArgvVA)
	regs.RSP = uint64(UserStackTop)
	regs.RIP = uint64(prog.Entry)
	return nil
}

// loadSegment allocates one frame per page covered by seg, maps it
// P|W|U, copies seg.Data into it, and zero-fills the remainder up to
// MemSize (spec.md §4.5's "copy [src, src+filesz), zero
// [filesz, memsz)").
func loadSegment(arena *memory.Arena, frames *memory.FrameTable, root uintptr, pid int32, seg Segment, allocFn memory.AllocFunc) error {
	npages := (seg.MemSize + memory.FrameSize - 1) / memory.FrameSize
	base := seg.VAddr &^ (memory.FrameSize - 1)

	for i := 0; i < npages; i++ {
		pa, err := frames.Alloc(memory.Process(pid))
		if err != nil {
			return err
		}
		va := base + uintptr(i)*memory.FrameSize
		if err := memory.Map(arena, root, va, pa, memory.FrameSize, memory.UserRW, allocFn); err != nil {
			return err
		}

		pageStart := uintptr(i) * memory.FrameSize
		pageEnd := pageStart + memory.FrameSize
		segOffset := seg.VAddr - base

		for off := pageStart; off < pageEnd; off++ {
			srcIdx := int64(off) - int64(segOffset)
			var b byte
			if srcIdx >= 0 && srcIdx < int64(len(seg.Data)) {
				b = seg.Data[srcIdx]
			}
			arena.WriteAt([]byte{b}, pa+(off-pageStart))
		}
	}
	return nil
}

// buildArgvFrame writes argv's NUL-terminated strings and a leading
// pointer array into one frame and returns it owned by pid. The frame
// is drawn under a Kernel tag and re-tagged to pid before returning,
// so a caller that is about to ReleaseProcess(pid) (as Exec does)
// must tag it Kernel again for the teardown and back to pid after.
func buildArgvFrame(arena *memory.Arena, frames *memory.FrameTable, pid int32, argv []string) (uintptr, error) {
	pa, err := frames.Alloc(memory.Kernel)
	if err != nil {
		return 0, err
	}

	ptrBytes := 8 * (len(argv) + 1)
	cursor := ptrBytes
	for i, s := range argv {
		binary.LittleEndian.PutUint64(arena.Frame(pa)[i*8:i*8+8], uint64(ArgvVA+uintptr(cursor)))
		arena.WriteAt([]byte(s), pa+uintptr(cursor))
		arena.WriteAt([]byte{0}, pa+uintptr(cursor+len(s)))
		cursor += len(s) + 1
	}
	frames.SetOwner(pa, memory.Process(pid))
	return pa, nil
}

// Exec implements spec.md §4.5's exec: build the argv frame, release
// every frame the process currently owns except it, then reinitialize
// the address space with the kernel mappings and the new program.
func (t *Table) Exec(pid int32, prog *Program, argv []string) error {
	proc, err := t.Get(pid)
	if err != nil {
		return err
	}

	argvPA, err := buildArgvFrame(t.arena, t.frames, pid, argv)
	if err != nil {
		return err
	}
	t.frames.SetOwner(argvPA, memory.Kernel) // survive the coming teardown
	t.frames.ReleaseProcess(pid)
	t.frames.SetOwner(argvPA, memory.Process(pid))

	root, err := t.frames.Alloc(memory.Process(pid))
	if err != nil {
		return err
	}
	proc.PageTableRoot = root

	if t.mapper != nil {
		if err := t.mapper(root); err != nil {
			return err
		}
	}

	allocFn := t.allocPageTable(memory.Process(pid))
	if err := memory.Map(t.arena, root, ArgvVA, argvPA, memory.FrameSize, memory.UserRW, allocFn); err != nil {
		return err
	}

	for _, seg := range prog.Segments {
		if err := loadSegment(t.arena, t.frames, root, pid, seg, allocFn); err != nil {
			return err
		}
	}
	stackPA, err := t.frames.Alloc(memory.Process(pid))
	if err != nil {
		return err
	}
	if err := memory.Map(t.arena, root, UserStackTop-memory.FrameSize, stackPA, memory.FrameSize, memory.UserRW, allocFn); err != nil {
		return err
	}

	proc.Regs = Registers{
		RDI: uint64(len(argv)),
		RSI: uint64(ArgvVA),
		RSP: uint64(UserStackTop),
		RIP: uint64(prog.Entry),
	}
	return nil
}

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

// Package kernel ties internal/memory, internal/blockdev,
// internal/fsys, and internal/process together into the
// exception/syscall dispatcher and round-robin scheduler of spec.md
// §4.6. It is grounded on the teacher's internal/fs.FileSystem --
// the component that owns every other subsystem (inode store,
// caching layer, GCS client) and fields FUSE ops against them --
// generalized here from filesystem ops to the kernel's syscall table.
package kernel

import (
	"fmt"

	"github.com/cvt8/rojocos/internal/fsys"
	"github.com/cvt8/rojocos/internal/logger"
	"github.com/cvt8/rojocos/internal/memory"
	"github.com/cvt8/rojocos/internal/process"
)

const (
	// KernelTextVA, KernelStackVA and ConsoleVA are the fixed virtual
	// addresses at which every address space maps the kernel's shared
	// text, stack and console frames, writable and kernel-only. The
	// mappings are not identity mappings: each address points at
	// whichever physical frame New allocated for it.
	KernelTextVA  = 0x100000
	KernelStackVA = 0x200000
	ConsoleVA     = 0x300000
)

// Kernel is the assembled kernel core: physical memory, the process
// table, and the mounted filesystem. It holds no lock of its own: the
// kernel is single-threaded, and callers must not enter Dispatch from
// more than one goroutine at a time.
type Kernel struct {
	Arena  *memory.Arena
	Frames *memory.FrameTable
	Procs  *process.Table
	FS     *fsys.FS

	keyboard *Keyboard
	programs map[string]*process.Program

	// pendingWaits holds, for each parent PID currently blocked in
	// sys_wait with a non-null exit-slot argument, the user virtual
	// address that slot lives at. The blocking caller has already
	// returned from Dispatch by the time its child actually exits, so
	// there is no live Go stack frame left to write the exit code
	// into; Dispatch's exit handling consults this map and performs
	// the delayed writeUserBytes itself once process.Table.Exit
	// reports the rendezvous fulfilled (spec.md §4.5/§8 scenario 4).
	pendingWaits map[int32]uintptr
}

// New builds a kernel core over nframes physical frames, with fs
// already mounted. It allocates the shared kernel text/stack/console
// frames once, then hands the process table the closure that maps
// those same frames at KernelTextVA/KernelStackVA/ConsoleVA into any
// fresh root (process.KernelMapper).
func New(nframes int, fs *fsys.FS) (*Kernel, error) {
	arena := memory.NewArena(nframes)
	frames := memory.NewFrameTable(arena, 0)

	textPA, err := frames.Alloc(memory.Kernel)
	if err != nil {
		return nil, err
	}
	stackPA, err := frames.Alloc(memory.Kernel)
	if err != nil {
		return nil, err
	}
	consolePA, err := frames.Alloc(memory.Kernel)
	if err != nil {
		return nil, err
	}

	mapper := func(root uintptr) error {
		allocFn := func() (uintptr, error) { return frames.Alloc(memory.Kernel) }
		if err := memory.Map(arena, root, KernelTextVA, textPA, memory.FrameSize, memory.KernelRW, allocFn); err != nil {
			return err
		}
		if err := memory.Map(arena, root, KernelStackVA, stackPA, memory.FrameSize, memory.KernelRW, allocFn); err != nil {
			return err
		}
		return memory.Map(arena, root, ConsoleVA, consolePA, memory.FrameSize, memory.KernelRW, allocFn)
	}

	procs := process.NewTable(64, arena, frames, mapper)

	return &Kernel{
		Arena:    arena,
		Frames:   frames,
		Procs:    procs,
		FS:       fs,
		keyboard: NewKeyboard(256),
	}, nil
}

// Boot spawns prog as PID 1.
func (k *Kernel) Boot(prog *process.Program, argv []string) (int32, error) {
	return k.Procs.Spawn(prog, argv)
}

// PageFault implements spec.md §4.6's fault handling: a fault from
// user mode breaks the faulting process with a diagnostic; a fault
// reached while already in the kernel is unrecoverable.
func (k *Kernel) PageFault(pid int32, fromUserMode bool, va uintptr) {
	if !fromUserMode {
		panic(fmt.Sprintf("kernel: page fault in kernel mode at %#x", va))
	}
	logger.Warnf("pid %d: page fault at %#x, killing", pid, va)
	_ = k.Procs.Kill(pid)
}

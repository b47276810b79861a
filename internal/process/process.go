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

// Package process is the process table and loader (spec.md §4.5): a
// fixed-size array of per-PID descriptors, and fork/exec/wait/forget/
// exit/kill operating on them through internal/memory. It is
// generalized from the teacher's internal/fs/inode table -- a
// fixed-capacity slice of slots addressed by integer id, each either
// free or live, guarded by one mutex -- onto process descriptors
// instead of inode records.
package process

import (
	"errors"

	"github.com/cvt8/rojocos/internal/memory"
)

// State is a process descriptor's scheduling state.
type State int

const (
	Free State = iota
	Runnable
	Blocked
	Broken
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Runnable:
		return "runnable"
	case Blocked:
		return "blocked"
	case Broken:
		return "broken"
	default:
		return "unknown"
	}
}

// Registers is the saved general-purpose register set restored on
// dispatch and inspected/modified by fork, exec, and syscalls.
type Registers struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI           uint64
	RBP, RSP           uint64
	RIP                uint64
}

// FD is one open-file-descriptor table entry.
type FD struct {
	Inode  uint32
	Offset uint64
}

// Process is one process-table slot.
type Process struct {
	PID           int32
	State         State
	Regs          Registers
	PageTableRoot uintptr
	Parent        int32
	Cwd           string
	FDs           []FD

	ExitCode int32

	// waitPID/exitSlot are set while State == Blocked on a wait
	// syscall: the PID being waited for, and where to deliver its exit
	// code once it dies (spec.md §4.5's wait/exit rendezvous).
	waitPID  int32
	exitSlot *int32
}

var (
	ErrNoFreeSlot    = errors.New("process: no free process-table slot")
	ErrNotFound      = errors.New("process: no such pid")
	ErrNotParent     = errors.New("process: caller is not pid's parent")
	ErrNotBroken     = errors.New("process: pid has not exited")
	ErrOutOfMemory   = memory.ErrOutOfMemory
)

// KernelMapper installs the mappings every address space needs
// regardless of which program is running in it -- kernel text,
// kernel stack, console -- into root. Table calls it once per fresh
// root page table (fork's child, exec's reinitialized address space).
// Kept as an injected callback rather than known constants inside
// this package, since only the kernel assembling the Table knows
// those layout addresses (spec.md §4.5: "map kernel, kernel stack,
// console").
type KernelMapper func(root uintptr) error

// Table is the process table: N fixed slots, indices 1..N-1 usable
// (slot 0 is never handed out, mirroring the scheduler's "PIDs
// 1..N-1" round robin in spec.md §4.6).
type Table struct {
	procs  []Process
	arena  *memory.Arena
	frames *memory.FrameTable
	mapper KernelMapper
}

// NewTable builds a table of n slots (n-1 usable PIDs) over frames/arena.
func NewTable(n int, arena *memory.Arena, frames *memory.FrameTable, mapper KernelMapper) *Table {
	procs := make([]Process, n)
	for i := range procs {
		procs[i].PID = int32(i)
	}
	return &Table{procs: procs, arena: arena, frames: frames, mapper: mapper}
}

// Get returns the descriptor for pid.
func (t *Table) Get(pid int32) (*Process, error) {
	if pid <= 0 || int(pid) >= len(t.procs) {
		return nil, ErrNotFound
	}
	return &t.procs[pid], nil
}

func (t *Table) allocSlot() (int32, error) {
	for i := 1; i < len(t.procs); i++ {
		if t.procs[i].State == Free {
			return int32(i), nil
		}
	}
	return 0, ErrNoFreeSlot
}

func (t *Table) allocPageTable(owner memory.Owner) memory.AllocFunc {
	return func() (uintptr, error) {
		return t.frames.Alloc(owner)
	}
}

// Spawn creates the very first process in the table directly from a
// loaded program, bypassing fork/exec (there is no parent to fork
// from at boot). It is the bootstrap path the kernel's init sequence
// uses to start PID 1.
func (t *Table) Spawn(prog *Program, argv []string) (int32, error) {
	pid, err := t.allocSlot()
	if err != nil {
		return 0, err
	}
	t.procs[pid] = Process{PID: pid, State: Runnable, Parent: 0, Cwd: "/"}

	root, err := t.frames.Alloc(memory.Process(pid))
	if err != nil {
		return 0, err
	}
	t.procs[pid].PageTableRoot = root

	if t.mapper != nil {
		if err := t.mapper(root); err != nil {
			t.frames.ReleaseProcess(pid)
			t.procs[pid] = Process{PID: pid}
			return 0, err
		}
	}

	if err := loadProgram(t.arena, t.frames, root, pid, prog, argv, &t.procs[pid].Regs); err != nil {
		t.frames.ReleaseProcess(pid)
		t.procs[pid] = Process{PID: pid}
		return 0, err
	}
	return pid, nil
}

// Fork implements spec.md §4.5's fork: every parent-owned user page
// is deep-copied into a freshly allocated frame in the child; shared
// (non-process-owned) pages are mapped to the same physical frame
// with a bumped refcount.
func (t *Table) Fork(parentPID int32) (int32, error) {
	parent, err := t.Get(parentPID)
	if err != nil {
		return 0, err
	}

	childPID, err := t.allocSlot()
	if err != nil {
		return 0, err
	}

	childRoot, err := t.frames.Alloc(memory.Process(childPID))
	if err != nil {
		return 0, err
	}

	child := Process{
		PID:           childPID,
		State:         Runnable,
		Parent:        parentPID,
		Cwd:           parent.Cwd,
		PageTableRoot: childRoot,
		Regs:          parent.Regs,
	}
	child.Regs.RAX = 0
	child.FDs = append([]FD(nil), parent.FDs...)

	allocFn := t.allocPageTable(memory.Process(childPID))
	forkErr := error(nil)
	memory.Walk(t.arena, parent.PageTableRoot, func(va uintptr, m memory.Mapping) {
		if forkErr != nil {
			return
		}
		fn := int(m.PA) / memory.FrameSize
		owner := t.frames.At(fn).Owner
		if owner.Kind == memory.OwnerProcess && owner.PID == parentPID {
			newPA, err := t.frames.Alloc(memory.Process(childPID))
			if err != nil {
				forkErr = err
				return
			}
			buf := make([]byte, memory.FrameSize)
			t.arena.ReadAt(buf, m.PA)
			t.arena.WriteAt(buf, newPA)
			if err := memory.Map(t.arena, childRoot, va, newPA, memory.FrameSize, m.Flags, allocFn); err != nil {
				forkErr = err
			}
			return
		}
		// Shared (kernel/console) mapping: same frame, refcount bumped.
		t.frames.IncRef(m.PA)
		if err := memory.Map(t.arena, childRoot, va, m.PA, memory.FrameSize, m.Flags, allocFn); err != nil {
			forkErr = err
		}
	})
	if forkErr != nil {
		t.frames.ReleaseProcess(childPID)
		return 0, forkErr
	}

	parent.Regs.RAX = uint64(childPID)
	t.procs[childPID] = child
	return childPID, nil
}

// Wait implements spec.md §4.5's wait: callerPID must be childPID's
// parent. If the child has already died, its exit code is delivered
// immediately and delivered is true. Otherwise the caller is marked
// Blocked, the scheduler must pick someone else to run, and delivered
// is false; a later Exit of the child writes exitSlot and makes the
// caller Runnable again.
func (t *Table) Wait(callerPID, childPID int32, exitSlot *int32) (delivered bool, err error) {
	caller, err := t.Get(callerPID)
	if err != nil {
		return false, err
	}
	child, err := t.Get(childPID)
	if err != nil {
		return false, err
	}
	if child.Parent != callerPID {
		return false, ErrNotParent
	}

	if child.State == Broken {
		if exitSlot != nil {
			*exitSlot = child.ExitCode
		}
		return true, nil
	}

	caller.State = Blocked
	caller.waitPID = childPID
	caller.exitSlot = exitSlot
	return false, nil
}

// Forget implements spec.md §4.5's forget: a broken child parented by
// the caller is returned to Free.
func (t *Table) Forget(callerPID, childPID int32) error {
	child, err := t.Get(childPID)
	if err != nil {
		return err
	}
	if child.Parent != callerPID {
		return ErrNotParent
	}
	if child.State != Broken {
		return ErrNotBroken
	}
	t.procs[childPID] = Process{PID: childPID}
	return nil
}

// Exit implements spec.md §4.5's exit: records the exit code, tears
// the process down via Kill, and -- if its parent is blocked waiting
// on exactly this PID -- fulfills that wait atomically.
func (t *Table) Exit(pid int32, code int32) error {
	proc, err := t.Get(pid)
	if err != nil {
		return err
	}
	proc.ExitCode = code
	if err := t.Kill(pid); err != nil {
		return err
	}

	if proc.Parent > 0 {
		parent, err := t.Get(proc.Parent)
		if err == nil && parent.State == Blocked && parent.waitPID == pid {
			if parent.exitSlot != nil {
				*parent.exitSlot = code
			}
			parent.State = Runnable
			parent.waitPID = 0
			parent.exitSlot = nil
		}
	}
	return nil
}

// Kill implements spec.md §4.5's kill: transitions pid to Broken,
// drops pid's reference to every shared (non-owned) frame its address
// space still maps -- kernel text/stack/console, or anything else it
// picked up a refcounted mapping to via fork -- and releases every
// frame it owns outright. It leaves the descriptor itself in place
// (parent, cwd, exit code) until Forget reclaims the slot.
func (t *Table) Kill(pid int32) error {
	proc, err := t.Get(pid)
	if err != nil {
		return err
	}
	if proc.State == Broken || proc.State == Free {
		return nil
	}

	memory.Walk(t.arena, proc.PageTableRoot, func(va uintptr, m memory.Mapping) {
		fn := int(m.PA) / memory.FrameSize
		owner := t.frames.At(fn).Owner
		if owner.Kind == memory.OwnerProcess && owner.PID == pid {
			return
		}
		t.frames.DecRef(m.PA)
	})

	proc.State = Broken
	t.frames.ReleaseProcess(pid)
	return nil
}

// RunnablePIDs returns the PIDs currently eligible to run, in
// ascending order, for the scheduler's round robin (spec.md §4.6).
func (t *Table) RunnablePIDs() []int32 {
	var out []int32
	for i := 1; i < len(t.procs); i++ {
		if t.procs[i].State == Runnable {
			out = append(out, int32(i))
		}
	}
	return out
}

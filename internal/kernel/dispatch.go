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
	"strings"

	"github.com/cvt8/rojocos/internal/fsys"
	"github.com/cvt8/rojocos/internal/memory"
	"github.com/cvt8/rojocos/internal/process"
)

const maxPathLen = 255

// errnoFor maps a subsystem error to the syscall table's negative
// return convention (spec.md §4.6: "return value in rax").
func errnoFor(err error) int64 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, fsys.ErrNoSuchEntry):
		return errNoSuchEntry
	case errors.Is(err, fsys.ErrAlreadyExists):
		return errAlreadyExists
	case errors.Is(err, fsys.ErrNotDirectory):
		return errNotDirectory
	case errors.Is(err, fsys.ErrInvalidArg):
		return errInvalidArg
	case errors.Is(err, fsys.ErrNoSpace):
		return errNoSpace
	case errors.Is(err, fsys.ErrNameTooLong):
		return errNameTooLong
	case errors.Is(err, fsys.ErrIO):
		return errIO
	case errors.Is(err, process.ErrNotFound):
		return errBadPID
	case errors.Is(err, process.ErrNotParent):
		return errNotParent
	case errors.Is(err, process.ErrNoFreeSlot), errors.Is(err, process.ErrOutOfMemory):
		return errNoSpace
	default:
		return errIO
	}
}

// Dispatch implements spec.md §4.6's trap entry: on any syscall trap
// the caller's saved registers are already current in the process
// table (the caller is responsible for having copied them in before
// calling Dispatch, mirroring "the saved register set is copied into
// the current descriptor" happening once, on trap, ahead of syscall
// handling), the kernel page table is what this call runs under, and
// the syscall table below is consulted by number.
func (k *Kernel) Dispatch(pid int32, num int, args [6]uint64) int64 {
	proc, err := k.Procs.Get(pid)
	if err != nil {
		return errBadPID
	}

	switch num {
	case SysGetpid:
		return int64(pid)

	case SysExit:
		k.sysExit(pid, proc, int32(args[0]))
		return 0

	case SysPanic:
		panic("kernel: user program called panic")

	case SysSchedYield, SysYield:
		return 0

	case SysFork:
		child, err := k.Procs.Fork(pid)
		if err != nil {
			return errnoFor(err)
		}
		return int64(child)

	case SysExecv:
		return k.sysExecv(pid, proc, args)

	case SysWait:
		return k.sysWait(pid, proc, args)

	case SysForget:
		if err := k.Procs.Forget(pid, int32(args[0])); err != nil {
			return errnoFor(err)
		}
		return 0

	case SysKill:
		if err := k.Procs.Kill(int32(args[0])); err != nil {
			return errnoFor(err)
		}
		return 0

	case SysPageAlloc:
		return k.sysPageAlloc(pid, proc, args)

	case SysGetrandom:
		return k.sysGetrandom()

	case SysRead:
		return k.sysRead(pid, proc, args)

	case SysWrite:
		return k.sysWrite(pid, proc, args)

	case SysOpen:
		return k.sysOpen(pid, proc, args)

	case SysMkdir:
		return k.sysMkdir(pid, proc, args)

	case SysTouch:
		return k.sysTouch(pid, proc, args)

	case SysRemove:
		return k.sysRemove(pid, proc, args)

	case SysListdir:
		return k.sysListdir(pid, proc, args)

	case SysGetcwd:
		return k.sysGetcwd(pid, proc, args)

	case SysChdir:
		return k.sysChdir(pid, proc, args)

	case SysKeyboard:
		b, ok := k.keyboard.Pop()
		if !ok {
			return -1
		}
		return int64(b)

	default:
		return errInvalidArg
	}
}

func (k *Kernel) resolveUserPath(proc *process.Process, va uintptr) (string, error) {
	raw, err := readUserString(k.Arena, proc.PageTableRoot, va, maxPathLen)
	if err != nil {
		return "", err
	}
	return normalizePath(proc.Cwd, raw), nil
}

func (k *Kernel) sysExecv(pid int32, proc *process.Process, args [6]uint64) int64 {
	path, err := k.resolveUserPath(proc, uintptr(args[0]))
	if err != nil {
		return errInvalidArg
	}
	prog, ok := k.lookupProgram(path)
	if !ok {
		return errNoSuchEntry
	}
	argv, err := k.readArgv(proc, uintptr(args[1]))
	if err != nil {
		return errInvalidArg
	}
	if err := k.Procs.Exec(pid, prog, argv); err != nil {
		return errnoFor(err)
	}
	return 0
}

func (k *Kernel) readArgv(proc *process.Process, va uintptr) ([]string, error) {
	if va == 0 {
		return nil, nil
	}
	var argv []string
	for i := 0; ; i++ {
		ptrBytes, err := readUserBytes(k.Arena, proc.PageTableRoot, va+uintptr(i*8), 8)
		if err != nil {
			return nil, err
		}
		ptr := uintptr(0)
		for j := 7; j >= 0; j-- {
			ptr = ptr<<8 | uintptr(ptrBytes[j])
		}
		if ptr == 0 {
			break
		}
		s, err := readUserString(k.Arena, proc.PageTableRoot, ptr, maxPathLen)
		if err != nil {
			return nil, err
		}
		argv = append(argv, s)
	}
	return argv, nil
}

func (k *Kernel) sysWait(pid int32, proc *process.Process, args [6]uint64) int64 {
	childPID := int32(args[0])
	var code int32
	delivered, err := k.Procs.Wait(pid, childPID, &code)
	if err != nil {
		return errnoFor(err)
	}
	if delivered {
		if args[1] != 0 {
			_ = writeUserBytes(k.Arena, proc.PageTableRoot, uintptr(args[1]), int32ToBytes(code))
		}
		return 0
	}
	// The child is still alive: caller is now Blocked, and the exit
	// code cannot be written until it actually exits. Remember where
	// to deliver it so sysExit can finish the rendezvous later.
	if args[1] != 0 {
		if k.pendingWaits == nil {
			k.pendingWaits = make(map[int32]uintptr)
		}
		k.pendingWaits[pid] = uintptr(args[1])
	}
	return 0
}

// sysExit implements sys_exit: it tears pid down via process.Table,
// then -- if that fulfilled a parent's blocked wait -- delivers the
// exit code to the user memory address the parent's wait call named,
// since the parent's own Dispatch call returned long before this
// child actually exited.
func (k *Kernel) sysExit(pid int32, proc *process.Process, code int32) {
	parentPID := proc.Parent
	var parentWasBlocked bool
	if parentPID > 0 {
		if parent, err := k.Procs.Get(parentPID); err == nil {
			parentWasBlocked = parent.State == process.Blocked
		}
	}

	_ = k.Procs.Exit(pid, code)

	if !parentWasBlocked {
		return
	}
	parent, err := k.Procs.Get(parentPID)
	if err != nil || parent.State != process.Runnable {
		return
	}
	va, ok := k.pendingWaits[parentPID]
	if !ok {
		return
	}
	delete(k.pendingWaits, parentPID)
	_ = writeUserBytes(k.Arena, parent.PageTableRoot, va, int32ToBytes(code))
}

func (k *Kernel) sysPageAlloc(pid int32, proc *process.Process, args [6]uint64) int64 {
	va := uintptr(args[0])
	pa, err := k.Frames.Alloc(memory.Process(pid))
	if err != nil {
		return errnoFor(err)
	}
	allocFn := func() (uintptr, error) { return k.Frames.Alloc(memory.Process(pid)) }
	if err := memory.Map(k.Arena, proc.PageTableRoot, va, pa, memory.FrameSize, memory.UserRW, allocFn); err != nil {
		return errInvalidArg
	}
	return 0
}

func (k *Kernel) sysGetrandom() int64 {
	var buf [4]byte
	k.FS.RNG().Fill(buf[:])
	v := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	return int64(v)
}

func (k *Kernel) sysRead(pid int32, proc *process.Process, args [6]uint64) int64 {
	fd := int(args[0])
	bufVA := uintptr(args[1])
	n := int(args[2])
	if fd < 0 || fd >= len(proc.FDs) {
		return errBadPID
	}
	tmp := make([]byte, n)
	read, err := k.FS.Read(proc.FDs[fd].Inode, tmp, proc.FDs[fd].Offset)
	if err != nil {
		return errnoFor(err)
	}
	if err := writeUserBytes(k.Arena, proc.PageTableRoot, bufVA, tmp[:read]); err != nil {
		return errInvalidArg
	}
	proc.FDs[fd].Offset += uint64(read)
	return int64(read)
}

func (k *Kernel) sysWrite(pid int32, proc *process.Process, args [6]uint64) int64 {
	fd := int(args[0])
	bufVA := uintptr(args[1])
	n := int(args[2])
	if fd < 0 || fd >= len(proc.FDs) {
		return errBadPID
	}
	data, err := readUserBytes(k.Arena, proc.PageTableRoot, bufVA, n)
	if err != nil {
		return errInvalidArg
	}
	written, err := k.FS.Write(proc.FDs[fd].Inode, data, proc.FDs[fd].Offset)
	if err != nil {
		return errnoFor(err)
	}
	proc.FDs[fd].Offset += uint64(written)
	return int64(written)
}

func (k *Kernel) sysOpen(pid int32, proc *process.Process, args [6]uint64) int64 {
	path, err := k.resolveUserPath(proc, uintptr(args[0]))
	if err != nil {
		return errInvalidArg
	}
	value, err := k.FS.GetAttr(path)
	if err != nil {
		return errnoFor(err)
	}
	fd := len(proc.FDs)
	proc.FDs = append(proc.FDs, process.FD{Inode: value})
	return int64(fd)
}

func (k *Kernel) sysMkdir(pid int32, proc *process.Process, args [6]uint64) int64 {
	path, err := k.resolveUserPath(proc, uintptr(args[0]))
	if err != nil {
		return errInvalidArg
	}
	return errnoFor(k.FS.Mkdir(path))
}

func (k *Kernel) sysTouch(pid int32, proc *process.Process, args [6]uint64) int64 {
	path, err := k.resolveUserPath(proc, uintptr(args[0]))
	if err != nil {
		return errInvalidArg
	}
	if _, err := k.FS.CreateFile(path); err != nil {
		return errnoFor(err)
	}
	return 0
}

func (k *Kernel) sysRemove(pid int32, proc *process.Process, args [6]uint64) int64 {
	path, err := k.resolveUserPath(proc, uintptr(args[0]))
	if err != nil {
		return errInvalidArg
	}
	return errnoFor(k.FS.Unlink(path))
}

func (k *Kernel) sysListdir(pid int32, proc *process.Process, args [6]uint64) int64 {
	path, err := k.resolveUserPath(proc, uintptr(args[0]))
	if err != nil {
		return errInvalidArg
	}
	h, err := k.FS.ReaddirInit(path)
	if err != nil {
		return errnoFor(err)
	}
	var names []string
	for {
		name, ok := h.ReaddirNext()
		if !ok {
			break
		}
		names = append(names, name)
	}
	out := append([]byte(strings.Join(names, "\n")), 0)
	if err := writeUserBytes(k.Arena, proc.PageTableRoot, uintptr(args[1]), out); err != nil {
		return errInvalidArg
	}
	return int64(len(out))
}

func (k *Kernel) sysGetcwd(pid int32, proc *process.Process, args [6]uint64) int64 {
	out := append([]byte(proc.Cwd), 0)
	if uint64(len(out)) > args[1] {
		return errInvalidArg
	}
	if err := writeUserBytes(k.Arena, proc.PageTableRoot, uintptr(args[0]), out); err != nil {
		return errInvalidArg
	}
	return int64(len(out))
}

func (k *Kernel) sysChdir(pid int32, proc *process.Process, args [6]uint64) int64 {
	path, err := k.resolveUserPath(proc, uintptr(args[0]))
	if err != nil {
		return errInvalidArg
	}
	value, err := k.FS.GetAttr(path)
	if err != nil {
		return errnoFor(err)
	}
	if value != 0 {
		return errNotDirectory
	}
	proc.Cwd = path
	return 0
}

func int32ToBytes(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

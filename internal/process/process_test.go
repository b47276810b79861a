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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cvt8/rojocos/internal/memory"
)

const testFrames = 256

func newTestTable(t *testing.T) (*Table, *memory.FrameTable) {
	t.Helper()
	arena := memory.NewArena(testFrames)
	frames := memory.NewFrameTable(arena, 0)
	mapper := func(root uintptr) error { return nil }
	return NewTable(8, arena, frames, mapper), frames
}

func trivialProgram() *Program {
	return &Program{
		Entry: 0x400000,
		Segments: []Segment{
			{VAddr: 0x400000, Data: []byte{0x90, 0x90}, MemSize: 4096},
		},
	}
}

func TestSpawnSetsEntryRegisters(t *testing.T) {
	tbl, _ := newTestTable(t)
	pid, err := tbl.Spawn(trivialProgram(), []string{"init"})
	require.NoError(t, err)
	require.Equal(t, int32(1), pid)

	p, err := tbl.Get(pid)
	require.NoError(t, err)
	require.Equal(t, Runnable, p.State)
	require.Equal(t, uint64(0x400000), p.Regs.RIP)
	require.Equal(t, uint64(1), p.Regs.RDI)
}

func TestForkChildGetsZeroRAXParentGetsChildPID(t *testing.T) {
	tbl, _ := newTestTable(t)
	parentPID, err := tbl.Spawn(trivialProgram(), []string{"init"})
	require.NoError(t, err)

	childPID, err := tbl.Fork(parentPID)
	require.NoError(t, err)
	require.NotEqual(t, parentPID, childPID)

	child, err := tbl.Get(childPID)
	require.NoError(t, err)
	require.Equal(t, uint64(0), child.Regs.RAX)
	require.Equal(t, parentPID, child.Parent)

	parent, err := tbl.Get(parentPID)
	require.NoError(t, err)
	require.Equal(t, uint64(childPID), parent.Regs.RAX)
}

func TestForkIsolatesAddressSpaces(t *testing.T) {
	tbl, frames := newTestTable(t)
	arena := frames.Arena()

	parentPID, err := tbl.Spawn(trivialProgram(), []string{"init"})
	require.NoError(t, err)
	parent, err := tbl.Get(parentPID)
	require.NoError(t, err)

	m, ok := memory.Lookup(arena, parent.PageTableRoot, 0x400000)
	require.True(t, ok)
	original := make([]byte, 1)
	arena.ReadAt(original, m.PA)

	childPID, err := tbl.Fork(parentPID)
	require.NoError(t, err)
	child, err := tbl.Get(childPID)
	require.NoError(t, err)

	cm, ok := memory.Lookup(arena, child.PageTableRoot, 0x400000)
	require.True(t, ok)
	require.NotEqual(t, m.PA, cm.PA, "fork must deep-copy owned pages into distinct frames")

	arena.WriteAt([]byte{0xFF}, m.PA)
	childByte := make([]byte, 1)
	arena.ReadAt(childByte, cm.PA)
	require.NotEqual(t, byte(0xFF), childByte[0], "writes to the parent's copy must not be visible to the child")
}

func TestWaitDeliversImmediatelyWhenChildAlreadyBroken(t *testing.T) {
	tbl, _ := newTestTable(t)
	parentPID, err := tbl.Spawn(trivialProgram(), []string{"init"})
	require.NoError(t, err)
	childPID, err := tbl.Fork(parentPID)
	require.NoError(t, err)

	require.NoError(t, tbl.Exit(childPID, 7))

	var slot int32
	delivered, err := tbl.Wait(parentPID, childPID, &slot)
	require.NoError(t, err)
	require.True(t, delivered)
	require.Equal(t, int32(7), slot)
}

func TestWaitBlocksThenExitFulfillsRendezvous(t *testing.T) {
	tbl, _ := newTestTable(t)
	parentPID, err := tbl.Spawn(trivialProgram(), []string{"init"})
	require.NoError(t, err)
	childPID, err := tbl.Fork(parentPID)
	require.NoError(t, err)

	var slot int32
	delivered, err := tbl.Wait(parentPID, childPID, &slot)
	require.NoError(t, err)
	require.False(t, delivered)

	parent, err := tbl.Get(parentPID)
	require.NoError(t, err)
	require.Equal(t, Blocked, parent.State)

	require.NoError(t, tbl.Exit(childPID, 42))

	require.Equal(t, Runnable, parent.State)
	require.Equal(t, int32(42), slot)
}

func TestWaitRejectsNonParent(t *testing.T) {
	tbl, _ := newTestTable(t)
	parentPID, err := tbl.Spawn(trivialProgram(), []string{"init"})
	require.NoError(t, err)
	childPID, err := tbl.Fork(parentPID)
	require.NoError(t, err)
	otherPID, err := tbl.Fork(parentPID)
	require.NoError(t, err)

	var slot int32
	_, err = tbl.Wait(otherPID, childPID, &slot)
	require.ErrorIs(t, err, ErrNotParent)
}

func TestForgetFreesSlotOnlyAfterBroken(t *testing.T) {
	tbl, _ := newTestTable(t)
	parentPID, err := tbl.Spawn(trivialProgram(), []string{"init"})
	require.NoError(t, err)
	childPID, err := tbl.Fork(parentPID)
	require.NoError(t, err)

	require.ErrorIs(t, tbl.Forget(parentPID, childPID), ErrNotBroken)

	require.NoError(t, tbl.Exit(childPID, 0))
	require.NoError(t, tbl.Forget(parentPID, childPID))

	child, err := tbl.Get(childPID)
	require.NoError(t, err)
	require.Equal(t, Free, child.State)
}

func TestKillReleasesOwnedFrames(t *testing.T) {
	tbl, frames := newTestTable(t)
	pid, err := tbl.Spawn(trivialProgram(), []string{"init"})
	require.NoError(t, err)

	before := countOwned(frames, pid)
	require.Greater(t, before, 0)

	require.NoError(t, tbl.Kill(pid))
	require.Equal(t, 0, countOwned(frames, pid))
}

func TestExecReplacesAddressSpaceAndKeepsArgv(t *testing.T) {
	tbl, frames := newTestTable(t)
	arena := frames.Arena()

	pid, err := tbl.Spawn(trivialProgram(), []string{"old"})
	require.NoError(t, err)
	p, err := tbl.Get(pid)
	require.NoError(t, err)
	oldRoot := p.PageTableRoot

	newProg := &Program{
		Entry: 0x500000,
		Segments: []Segment{
			{VAddr: 0x500000, Data: []byte{0xC3}, MemSize: 4096},
		},
	}
	require.NoError(t, tbl.Exec(pid, newProg, []string{"new", "arg"}))

	p, err = tbl.Get(pid)
	require.NoError(t, err)
	require.NotEqual(t, oldRoot, p.PageTableRoot, "exec must install a fresh page table root")
	require.Equal(t, uint64(0x500000), p.Regs.RIP)
	require.Equal(t, uint64(2), p.Regs.RDI)

	_, ok := memory.Lookup(arena, p.PageTableRoot, 0x400000)
	require.False(t, ok, "exec must unmap the old program's segments")

	m, ok := memory.Lookup(arena, p.PageTableRoot, ArgvVA)
	require.True(t, ok, "the argv page must still be mapped after exec")
	ptrBuf := make([]byte, 8)
	arena.ReadAt(ptrBuf, m.PA)
	firstArgVA := binary.LittleEndian.Uint64(ptrBuf)
	strBuf := make([]byte, 3)
	arena.ReadAt(strBuf, m.PA+uintptr(firstArgVA-uint64(ArgvVA)))
	require.Equal(t, "new", string(strBuf))
}

// TestKillDecrefsSharedFramesOnlyOnce verifies that killing a forked
// child drops exactly the reference fork added to a shared (kernel)
// frame, leaving the parent's own reference intact -- refcount must
// track live PTEs, not grow unboundedly across fork+kill cycles.
func TestKillDecrefsSharedFramesOnlyOnce(t *testing.T) {
	arena := memory.NewArena(testFrames)
	frames := memory.NewFrameTable(arena, 0)

	const sharedVA = 0x100000
	sharedPA, err := frames.Alloc(memory.Kernel)
	require.NoError(t, err)
	mapper := func(root uintptr) error {
		allocFn := func() (uintptr, error) { return frames.Alloc(memory.Kernel) }
		return memory.Map(arena, root, sharedVA, sharedPA, memory.FrameSize, memory.KernelRW, allocFn)
	}
	tbl := NewTable(8, arena, frames, mapper)

	parentPID, err := tbl.Spawn(trivialProgram(), []string{"init"})
	require.NoError(t, err)
	require.Equal(t, 1, frames.At(int(sharedPA)/memory.FrameSize).RefCount)

	childPID, err := tbl.Fork(parentPID)
	require.NoError(t, err)
	require.Equal(t, 2, frames.At(int(sharedPA)/memory.FrameSize).RefCount, "fork must bump the shared frame's refcount")

	require.NoError(t, tbl.Kill(childPID))
	require.Equal(t, 1, frames.At(int(sharedPA)/memory.FrameSize).RefCount, "killing the child must drop exactly its own reference")

	require.NoError(t, tbl.Kill(parentPID))
	require.Equal(t, 0, frames.At(int(sharedPA)/memory.FrameSize).RefCount, "killing the last referencing process must free the shared frame")
}

func countOwned(frames *memory.FrameTable, pid int32) int {
	n := 0
	for i := 0; i < frames.NFrames(); i++ {
		f := frames.At(i)
		if f.Owner.Kind == memory.OwnerProcess && f.Owner.PID == pid {
			n++
		}
	}
	return n
}

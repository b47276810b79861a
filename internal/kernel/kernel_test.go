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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cvt8/rojocos/internal/blockdev"
	"github.com/cvt8/rojocos/internal/fsys"
	"github.com/cvt8/rojocos/internal/memory"
	"github.com/cvt8/rojocos/internal/process"
)

const (
	testInodes = 32
	testBlocks = 64
	testNodes  = 32
	scratchVA  = 0x500000
)

func newTestKernel(t *testing.T) (*Kernel, int32) {
	t.Helper()
	dev := blockdev.NewMemory(int64(1<<20) + int64(testBlocks)*fsys.BlockSize)
	fs, err := fsys.Format(dev, &blockdev.SeqRNG{}, 0, testInodes, testBlocks, testNodes)
	require.NoError(t, err)

	k, err := New(512, fs)
	require.NoError(t, err)

	prog := &process.Program{
		Entry:    0x400000,
		Segments: []process.Segment{{VAddr: 0x400000, Data: []byte{0x90}, MemSize: 4096}},
	}
	pid, err := k.Boot(prog, []string{"init"})
	require.NoError(t, err)
	return k, pid
}

// writeScratchPage maps a fresh page at scratchVA in pid's address
// space (if not already mapped) and writes s as a NUL-terminated
// string into it, returning its virtual address.
func writeScratchPage(t *testing.T, k *Kernel, pid int32, s string) uintptr {
	t.Helper()
	proc, err := k.Procs.Get(pid)
	require.NoError(t, err)

	if _, ok := memory.Lookup(k.Arena, proc.PageTableRoot, scratchVA); !ok {
		pa, err := k.Frames.Alloc(memory.Process(pid))
		require.NoError(t, err)
		allocFn := func() (uintptr, error) { return k.Frames.Alloc(memory.Process(pid)) }
		require.NoError(t, memory.Map(k.Arena, proc.PageTableRoot, scratchVA, pa, memory.FrameSize, memory.UserRW, allocFn))
	}
	m, ok := memory.Lookup(k.Arena, proc.PageTableRoot, scratchVA)
	require.True(t, ok)
	k.Arena.WriteAt(append([]byte(s), 0), m.PA)
	return scratchVA
}

func TestDispatchGetpid(t *testing.T) {
	k, pid := newTestKernel(t)
	rax := k.Dispatch(pid, SysGetpid, [6]uint64{})
	require.Equal(t, int64(pid), rax)
}

func TestDispatchTouchOpenWriteReadRoundTrip(t *testing.T) {
	k, pid := newTestKernel(t)

	va := writeScratchPage(t, k, pid, "/f")
	require.Equal(t, int64(0), k.Dispatch(pid, SysTouch, [6]uint64{uint64(va)}))

	fd := k.Dispatch(pid, SysOpen, [6]uint64{uint64(va)})
	require.GreaterOrEqual(t, fd, int64(0))

	bufVA := writeScratchPage(t, k, pid, "hello")
	n := k.Dispatch(pid, SysWrite, [6]uint64{uint64(fd), uint64(bufVA), 5})
	require.Equal(t, int64(5), n)

	proc, err := k.Procs.Get(pid)
	require.NoError(t, err)
	proc.FDs[fd].Offset = 0

	n = k.Dispatch(pid, SysRead, [6]uint64{uint64(fd), uint64(bufVA), 5})
	require.Equal(t, int64(5), n)
}

// TestCwdNormalization reproduces spec.md §8's scenario 5: starting
// at "/", mkdir("a"), chdir("a"), mkdir("../b"), chdir("/b"),
// getcwd() -> "/b".
func TestCwdNormalization(t *testing.T) {
	k, pid := newTestKernel(t)

	va := writeScratchPage(t, k, pid, "a")
	require.Equal(t, int64(0), k.Dispatch(pid, SysMkdir, [6]uint64{uint64(va)}))

	va = writeScratchPage(t, k, pid, "a")
	require.Equal(t, int64(0), k.Dispatch(pid, SysChdir, [6]uint64{uint64(va)}))

	va = writeScratchPage(t, k, pid, "../b")
	require.Equal(t, int64(0), k.Dispatch(pid, SysMkdir, [6]uint64{uint64(va)}))

	va = writeScratchPage(t, k, pid, "/b")
	require.Equal(t, int64(0), k.Dispatch(pid, SysChdir, [6]uint64{uint64(va)}))

	proc, err := k.Procs.Get(pid)
	require.NoError(t, err)
	require.Equal(t, "/b", proc.Cwd)

	outVA := writeScratchPage(t, k, pid, "")
	n := k.Dispatch(pid, SysGetcwd, [6]uint64{uint64(outVA), 64})
	require.Equal(t, int64(len("/b")+1), n)
}

func TestForkWaitExitThroughSyscalls(t *testing.T) {
	k, pid := newTestKernel(t)

	childRax := k.Dispatch(pid, SysFork, [6]uint64{})
	require.Greater(t, childRax, int64(0))
	child := int32(childRax)

	require.Equal(t, int64(0), k.Dispatch(child, SysExit, [6]uint64{7}))

	exitVA := writeScratchPage(t, k, pid, "")
	rax := k.Dispatch(pid, SysWait, [6]uint64{uint64(child), uint64(exitVA)})
	require.Equal(t, int64(0), rax)

	proc, err := k.Procs.Get(pid)
	require.NoError(t, err)
	m, ok := memory.Lookup(k.Arena, proc.PageTableRoot, exitVA)
	require.True(t, ok)
	buf := make([]byte, 4)
	k.Arena.ReadAt(buf, m.PA)
	require.Equal(t, byte(7), buf[0])
}

// TestBlockingWaitDeliversExitCodeOnLaterExit reproduces spec.md §8
// scenario 4: the parent calls wait while the child is still alive
// (so Wait blocks it), and only once the child later exits must the
// exit code land in the slot the parent named.
func TestBlockingWaitDeliversExitCodeOnLaterExit(t *testing.T) {
	k, pid := newTestKernel(t)

	childRax := k.Dispatch(pid, SysFork, [6]uint64{})
	require.Greater(t, childRax, int64(0))
	child := int32(childRax)

	exitVA := writeScratchPage(t, k, pid, "")
	require.Equal(t, int64(0), k.Dispatch(pid, SysWait, [6]uint64{uint64(child), uint64(exitVA)}))

	proc, err := k.Procs.Get(pid)
	require.NoError(t, err)
	require.Equal(t, process.Blocked, proc.State)

	require.Equal(t, int64(0), k.Dispatch(child, SysExit, [6]uint64{7}))

	proc, err = k.Procs.Get(pid)
	require.NoError(t, err)
	require.Equal(t, process.Runnable, proc.State)

	m, ok := memory.Lookup(k.Arena, proc.PageTableRoot, exitVA)
	require.True(t, ok)
	buf := make([]byte, 4)
	k.Arena.ReadAt(buf, m.PA)
	require.Equal(t, byte(7), buf[0])
}

func TestKeyboardSyscallPopsRingBuffer(t *testing.T) {
	k, pid := newTestKernel(t)
	require.Equal(t, int64(-1), k.Dispatch(pid, SysKeyboard, [6]uint64{}))

	k.keyboard.Push('x')
	require.Equal(t, int64('x'), k.Dispatch(pid, SysKeyboard, [6]uint64{}))
}

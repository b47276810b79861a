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

// Syscall numbers, carried unchanged from the original kernel's
// lib/lib.h SYSCALL(n) table rather than renumbered (spec.md §4.6).
const (
	SysRead        = 0
	SysWrite       = 1
	SysOpen        = 2
	SysSchedYield  = 11
	SysGetpid      = 12
	SysFork        = 13
	SysExecv       = 14
	SysExit        = 15
	SysKill        = 16
	SysGetcwd      = 17
	SysChdir       = 18
	SysMkdir       = 19
	SysGetrandom   = 20
	SysListdir     = 21
	SysTouch       = 22
	SysRemove      = 23
	SysForget      = 7
	SysWait        = 8
	SysPanic       = -1
	SysKeyboard    = 9
	SysPageAlloc   = 10
	SysYield       = SysSchedYield
)

// Errno values returned in rax on failure, negative per the
// original kernel's convention of a non-negative rax meaning success.
const (
	errIO          = -1
	errNoSuchEntry = -2
	errAlreadyExists = -3
	errNotDirectory = -4
	errInvalidArg  = -5
	errNoSpace     = -6
	errNameTooLong = -7
	errBadPID      = -8
	errNotParent   = -9
)

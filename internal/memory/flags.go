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

// PTEFlags mirrors the handful of x86-64 page-table-entry bits this
// kernel core cares about. There is no real mmu to apply them to (see
// DESIGN.md), so these are plain typed bits rather than an
// golang.org/x/sys/unix mmap-prot import.
type PTEFlags uint8

const (
	Present PTEFlags = 1 << iota
	Writable
	User
)

// Has reports whether all bits in want are set in f.
func (f PTEFlags) Has(want PTEFlags) bool {
	return f&want == want
}

// KernelRW is the flag set used for the shared kernel text, stack and
// console mappings: present and writable, not user-accessible.
const KernelRW = Present | Writable

// UserRW is the flag set used for ordinary user pages.
const UserRW = Present | Writable | User

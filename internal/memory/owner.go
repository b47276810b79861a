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

import "fmt"

// OwnerKind discriminates the frame table's tagged owner (spec.md
// §3): free, reserved, kernel-heap, kernel-code/data, or a process.
type OwnerKind int

const (
	OwnerFree OwnerKind = iota
	OwnerReserved
	OwnerKernel
	OwnerProcess
)

// Owner is the tag stored on every frame-table entry.
type Owner struct {
	Kind OwnerKind
	PID  int32 // valid only when Kind == OwnerProcess
}

var (
	Free     = Owner{Kind: OwnerFree}
	Reserved = Owner{Kind: OwnerReserved}
	Kernel   = Owner{Kind: OwnerKernel}
)

// Process returns the owner tag for the given PID.
func Process(pid int32) Owner {
	return Owner{Kind: OwnerProcess, PID: pid}
}

func (o Owner) String() string {
	switch o.Kind {
	case OwnerFree:
		return "free"
	case OwnerReserved:
		return "reserved"
	case OwnerKernel:
		return "kernel"
	case OwnerProcess:
		return fmt.Sprintf("pid(%d)", o.PID)
	default:
		return "unknown"
	}
}

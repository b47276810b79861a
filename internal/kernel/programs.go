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

import "github.com/cvt8/rojocos/internal/process"

// RegisterProgram makes prog loadable by execv under path. The
// original kernel links every user-space program (ls, cat, mkdir,
// touch, rm, plane, echo, entropy, shell) into the kernel image
// itself and resolves program_id by table lookup rather than reading
// an executable off the filesystem; this registry is that table's Go
// equivalent.
func (k *Kernel) RegisterProgram(path string, prog *process.Program) {
	if k.programs == nil {
		k.programs = make(map[string]*process.Program)
	}
	k.programs[path] = prog
}

func (k *Kernel) lookupProgram(path string) (*process.Program, bool) {
	p, ok := k.programs[path]
	return p, ok
}

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

import "strings"

// normalizePath joins a possibly-relative path with cwd and resolves
// "." and ".." segments, producing the normalized absolute path the
// FS layer requires (spec.md §4.4's path model; spec.md §4.6: "the
// dispatcher ... normalizes with the process cwd before handing to
// the FS").
func normalizePath(cwd, path string) string {
	joined := path
	if !strings.HasPrefix(path, "/") {
		joined = cwd + "/" + path
	}

	var stack []string
	for _, seg := range strings.Split(joined, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}
	if len(stack) == 0 {
		return "/"
	}
	return "/" + strings.Join(stack, "/")
}

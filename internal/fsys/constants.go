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

package fsys

// Constants pinned by the original educational kernel
// (original_source/kernel/filesystem.c, lib-filesystem/filesystem.h)
// and carried unchanged per spec.md §6.
const (
	// BlockSize is the disk allocation unit.
	BlockSize = 4096

	// NameSize bounds a child's name, including its NUL terminator:
	// "component length < 32" (spec.md §6).
	NameSize = 32

	// MaxChildren is the fixed fan-out of one directory node.
	MaxChildren = 32

	// KeySize is FS_KEY_SIZE: 256 bits.
	KeySize = 32

	// IVSize is FS_IV_SIZE.
	IVSize = 16

	// IOMax bounds a single read/write syscall's length. The original
	// stubs this to INT64_MAX; spec.md §9(a) asks implementations to
	// pick a concrete, testable bound instead, so this module uses
	// 1 MiB -- comfortably larger than any single block, and small
	// enough that the "oversize" boundary test in spec.md §8 can
	// exercise it directly.
	IOMax = 1 << 20

	// InodeEntrySize is the packed on-disk size of one inode record:
	// ref(4) + size(8) + start_block(4) + block_count(4) + key(32) + iv(16).
	InodeEntrySize = 4 + 8 + 4 + 4 + KeySize + IVSize

	// treeChildSize is name(32) + index(4).
	treeChildSize = NameSize + 4

	// TreeNodeSize is value(4) + children_count(4) + children[MaxChildren].
	TreeNodeSize = 4 + 4 + MaxChildren*treeChildSize

	// metadataSize is inode_count(4) + block_count(4) + node_count(4),
	// padded to 16 bytes.
	metadataSize = 16

	// rootNodeIndex is the tree's permanently-allocated root directory.
	rootNodeIndex = 0
)

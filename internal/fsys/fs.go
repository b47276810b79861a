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

import (
	"sync"

	"github.com/cvt8/rojocos/internal/blockdev"
)

// InodeID indexes the inode table. 0 is reserved and never allocated
// (it doubles as the tree node's "this is a directory" sentinel).
type InodeID = uint32

// TreeIndex indexes the tree-node table. 0 is the permanently
// allocated root directory.
type TreeIndex = uint32

// FS is the mounted encrypted filesystem.
type FS struct {
	mu  sync.Mutex
	dev blockdev.Device
	rng blockdev.RNG
	l   layout
	m   Metadata

	cache *blockCache
}

// Format lays out a fresh, empty filesystem of the given capacity on
// dev at byte offset base, and returns it mounted.
func Format(dev blockdev.Device, rng blockdev.RNG, base int64, inodeCount, blockCount, nodeCount uint32) (*FS, error) {
	m := Metadata{InodeCount: inodeCount, BlockCount: blockCount, NodeCount: nodeCount}
	l := newLayout(base, m)

	fs := &FS{dev: dev, rng: rng, l: l, m: m, cache: newBlockCache(64)}

	if err := fs.writeAt(l.metadataOff, m.encode()); err != nil {
		return nil, err
	}
	zeroInode := InodeEntry{}.encode()
	for i := uint32(0); i < inodeCount; i++ {
		if err := fs.writeAt(l.inodeOffset(i), zeroInode); err != nil {
			return nil, err
		}
	}
	zeroByte := []byte{0}
	for i := uint32(0); i < blockCount; i++ {
		if err := fs.writeAt(l.blockBitmapOff+int64(i), zeroByte); err != nil {
			return nil, err
		}
	}
	for i := uint32(0); i < nodeCount; i++ {
		if err := fs.writeAt(l.treeBitmapOff+int64(i), zeroByte); err != nil {
			return nil, err
		}
	}
	root := treeNode{Value: 0, ChildrenCount: 0}
	if err := fs.writeAt(l.treeNodeOffset(rootNodeIndex), root.encode()); err != nil {
		return nil, err
	}
	if err := fs.setTreeUsed(rootNodeIndex, true); err != nil {
		return nil, err
	}
	return fs, nil
}

// Mount reads the metadata header already present on dev at byte
// offset base and returns the filesystem over it, honoring whatever
// inode/block/node counts are actually on disk (spec.md §9 open
// question (a): do not pin these to a fixed constant).
func Mount(dev blockdev.Device, rng blockdev.RNG, base int64) (*FS, error) {
	buf := make([]byte, metadataSize)
	if err := dev.ReadAt(buf, base); err != nil {
		return nil, ErrIO
	}
	m := decodeMetadata(buf)
	l := newLayout(base, m)
	return &FS{dev: dev, rng: rng, l: l, m: m, cache: newBlockCache(64)}, nil
}

func (fs *FS) readAt(off int64, buf []byte) error {
	if err := fs.dev.ReadAt(buf, off); err != nil {
		return ErrIO
	}
	return nil
}

func (fs *FS) writeAt(off int64, buf []byte) error {
	if err := fs.dev.WriteAt(buf, off); err != nil {
		return ErrIO
	}
	return nil
}

// Metadata exposes the mounted capacity (used by mkfs reporting and
// tests).
func (fs *FS) Metadata() Metadata { return fs.m }

// RNG exposes the filesystem's entropy source, reused by the kernel's
// getrandom syscall (spec.md §1 treats the RNG as a single shared
// entropy producer rather than one instance per subsystem).
func (fs *FS) RNG() blockdev.RNG { return fs.rng }

// CreateFile is the syscall layer's touch path: fs_alloc_inode
// followed by fs_touch(path, inode) (spec.md §4.6's touch syscall
// row). It returns the freshly allocated inode id.
func (fs *FS) CreateFile(path string) (InodeID, error) {
	fs.mu.Lock()
	id, err := fs.allocInode()
	fs.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if err := fs.Touch(path, id); err != nil {
		fs.mu.Lock()
		_ = fs.freeInode(id)
		fs.mu.Unlock()
		return 0, err
	}
	return id, nil
}

// Mkdir is the syscall layer's mkdir path: fs_touch(path, value=0).
func (fs *FS) Mkdir(path string) error {
	return fs.Touch(path, 0)
}

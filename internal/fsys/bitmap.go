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

// The block and tree-node usage bitmaps are stored one byte per
// entry rather than packed bits (spec.md §3's on-disk layout gives
// each its own region sized in whole bytes); this trades disk space
// for simple, allocation-free read-modify-write of a single entry.

func (fs *FS) blockUsed(idx uint32) (bool, error) {
	buf := make([]byte, 1)
	if err := fs.readAt(fs.l.blockBitmapOff+int64(idx), buf); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

func (fs *FS) setBlockUsed(idx uint32, used bool) error {
	v := byte(0)
	if used {
		v = 1
	}
	return fs.writeAt(fs.l.blockBitmapOff+int64(idx), []byte{v})
}

func (fs *FS) treeUsed(idx TreeIndex) (bool, error) {
	buf := make([]byte, 1)
	if err := fs.readAt(fs.l.treeBitmapOff+int64(idx), buf); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

func (fs *FS) setTreeUsed(idx TreeIndex, used bool) error {
	v := byte(0)
	if used {
		v = 1
	}
	return fs.writeAt(fs.l.treeBitmapOff+int64(idx), []byte{v})
}

// findFreeRun returns the start index of the first run of n
// consecutive free blocks, scanning from the beginning of the block
// bitmap (first-fit, spec.md §4.4).
func (fs *FS) findFreeRun(n uint32) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	run := uint32(0)
	start := uint32(0)
	for i := uint32(0); i < fs.m.BlockCount; i++ {
		used, err := fs.blockUsed(i)
		if err != nil {
			return 0, err
		}
		if used {
			run = 0
			continue
		}
		if run == 0 {
			start = i
		}
		run++
		if run == n {
			return start, nil
		}
	}
	return 0, ErrNoSpace
}

// runFree reports whether the n blocks beginning at start are all
// free, used to decide whether a growing write can extend a file
// in-place (spec.md §4.4) instead of relocating it.
func (fs *FS) runFree(start, n uint32) (bool, error) {
	for i := start; i < start+n; i++ {
		if i >= fs.m.BlockCount {
			return false, nil
		}
		used, err := fs.blockUsed(i)
		if err != nil {
			return false, err
		}
		if used {
			return false, nil
		}
	}
	return true, nil
}

func (fs *FS) allocBlocks(start, n uint32) error {
	for i := start; i < start+n; i++ {
		if err := fs.setBlockUsed(i, true); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FS) freeBlocks(start, n uint32) error {
	for i := start; i < start+n; i++ {
		if err := fs.setBlockUsed(i, false); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FS) allocTreeIndex() (TreeIndex, error) {
	for i := uint32(0); i < fs.m.NodeCount; i++ {
		used, err := fs.treeUsed(i)
		if err != nil {
			return 0, err
		}
		if !used {
			if err := fs.setTreeUsed(i, true); err != nil {
				return 0, err
			}
			return i, nil
		}
	}
	return 0, ErrNoSpace
}

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

// readInode loads the inode record for id.
func (fs *FS) readInode(id InodeID) (InodeEntry, error) {
	buf := make([]byte, InodeEntrySize)
	if err := fs.readAt(fs.l.inodeOffset(id), buf); err != nil {
		return InodeEntry{}, err
	}
	return decodeInodeEntry(buf), nil
}

func (fs *FS) writeInode(id InodeID, e InodeEntry) error {
	return fs.writeAt(fs.l.inodeOffset(id), e.encode())
}

// allocInode finds a free inode (Ref == 0) and marks it referenced.
// Index 0 is permanently reserved -- a tree node's Value field uses 0
// to mean "this is a directory", so 0 can never double as a real
// file's inode id.
func (fs *FS) allocInode() (InodeID, error) {
	for id := InodeID(1); id < fs.m.InodeCount; id++ {
		e, err := fs.readInode(id)
		if err != nil {
			return 0, err
		}
		if e.Ref == 0 {
			e.Ref = 1
			if err := fs.writeInode(id, e); err != nil {
				return 0, err
			}
			return id, nil
		}
	}
	return 0, ErrNoSpace
}

func (fs *FS) freeInode(id InodeID) error {
	return fs.writeInode(id, InodeEntry{})
}

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

import "strings"

// Path normalization (collapsing "." and "..", repeated slashes) is a
// syscall-layer responsibility (spec.md §4.4's path model); the FS
// only ever sees an already-normalized absolute path and simply
// splits it on "/".
func splitPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, ErrInvalidArg
	}
	if path == "/" {
		return nil, nil
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for _, p := range parts {
		if p == "" {
			return nil, ErrInvalidArg
		}
		if len(p) > NameSize-1 {
			return nil, ErrNameTooLong
		}
	}
	return parts, nil
}

func (fs *FS) readNode(idx TreeIndex) (treeNode, error) {
	buf := make([]byte, TreeNodeSize)
	if err := fs.readAt(fs.l.treeNodeOffset(idx), buf); err != nil {
		return treeNode{}, err
	}
	return decodeTreeNode(buf), nil
}

func (fs *FS) writeNode(idx TreeIndex, n treeNode) error {
	return fs.writeAt(fs.l.treeNodeOffset(idx), n.encode())
}

// resolve walks from the root, returning the index of the node named
// by path.
func (fs *FS) resolve(path string) (TreeIndex, error) {
	parts, err := splitPath(path)
	if err != nil {
		return 0, err
	}
	idx := TreeIndex(rootNodeIndex)
	for _, name := range parts {
		node, err := fs.readNode(idx)
		if err != nil {
			return 0, err
		}
		child, found := findChild(node, name)
		if !found {
			return 0, ErrNoSuchEntry
		}
		idx = child.Index
	}
	return idx, nil
}

// resolveParent splits path into its parent directory's node index
// and the leaf component name.
func (fs *FS) resolveParent(path string) (TreeIndex, string, error) {
	parts, err := splitPath(path)
	if err != nil {
		return 0, "", err
	}
	if len(parts) == 0 {
		return 0, "", ErrInvalidArg
	}
	idx := TreeIndex(rootNodeIndex)
	for _, name := range parts[:len(parts)-1] {
		node, err := fs.readNode(idx)
		if err != nil {
			return 0, "", err
		}
		child, found := findChild(node, name)
		if !found {
			return 0, "", ErrNoSuchEntry
		}
		idx = child.Index
	}
	return idx, parts[len(parts)-1], nil
}

func findChild(n treeNode, name string) (treeChild, bool) {
	for i := uint32(0); i < n.ChildrenCount; i++ {
		if n.Children[i].name() == name {
			return n.Children[i], true
		}
	}
	return treeChild{}, false
}

// GetAttr is fs_getattr: resolve path and return its node's value (0
// for directory, a positive inode id for a file).
func (fs *FS) GetAttr(path string) (uint32, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	idx, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}
	node, err := fs.readNode(idx)
	if err != nil {
		return 0, err
	}
	return node.Value, nil
}

// Touch is fs_touch: create a new leaf under path's parent with the
// given value (0 for a directory, an inode id for a file).
func (fs *FS) Touch(path string, value uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentIdx, leaf, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	leafName, err := makeChildName(leaf)
	if err != nil {
		return err
	}

	parent, err := fs.readNode(parentIdx)
	if err != nil {
		return err
	}
	if !parent.isDir() {
		return ErrNotDirectory
	}
	if _, found := findChild(parent, leaf); found {
		return ErrAlreadyExists
	}
	if parent.ChildrenCount >= MaxChildren {
		return ErrNoSpace
	}

	childIdx, err := fs.allocTreeIndex()
	if err != nil {
		return err
	}

	parent.Children[parent.ChildrenCount] = treeChild{Name: leafName, Index: childIdx}
	parent.ChildrenCount++
	if err := fs.writeNode(parentIdx, parent); err != nil {
		return err
	}

	child := treeNode{Value: value}
	return fs.writeNode(childIdx, child)
}

// Remove is fs_remove: unlink the leaf named by path from its parent.
// Per spec.md §4.4, the child's data blocks are not reclaimed here --
// a caller removing a file is expected to have already released its
// inode's blocks first (see FS.Unlink, which does both).
func (fs *FS) Remove(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.removeLocked(path)
}

func (fs *FS) removeLocked(path string) error {
	parentIdx, leaf, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	parent, err := fs.readNode(parentIdx)
	if err != nil {
		return err
	}

	slot := -1
	var childIdx TreeIndex
	for i := uint32(0); i < parent.ChildrenCount; i++ {
		if parent.Children[i].name() == leaf {
			slot = int(i)
			childIdx = parent.Children[i].Index
			break
		}
	}
	if slot < 0 {
		return ErrNoSuchEntry
	}

	last := parent.ChildrenCount - 1
	parent.Children[slot] = parent.Children[last]
	parent.Children[last] = treeChild{}
	parent.ChildrenCount--
	if err := fs.writeNode(parentIdx, parent); err != nil {
		return err
	}
	if err := fs.writeNode(childIdx, treeNode{}); err != nil {
		return err
	}
	return fs.setTreeUsed(childIdx, false)
}

// Unlink removes the leaf at path and, if it names a file, frees its
// inode and data blocks too -- closing the "known limitation" spec.md
// §9 notes about the bare Remove operation leaking a file's blocks.
func (fs *FS) Unlink(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	idx, err := fs.resolve(path)
	if err != nil {
		return err
	}
	node, err := fs.readNode(idx)
	if err != nil {
		return err
	}
	if !node.isDir() {
		inode, err := fs.readInode(node.Value)
		if err != nil {
			return err
		}
		if err := fs.freeBlocks(inode.StartBlock, inode.BlockCount); err != nil {
			return err
		}
		if err := fs.freeInode(node.Value); err != nil {
			return err
		}
		fs.cache.invalidateInode(node.Value)
	}
	return fs.removeLocked(path)
}

// ReaddirHandle captures a directory snapshot for iteration (fs_readdir_init).
type ReaddirHandle struct {
	node treeNode
	next uint32
}

// ReaddirInit is fs_readdir_init.
func (fs *FS) ReaddirInit(path string) (*ReaddirHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	idx, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	node, err := fs.readNode(idx)
	if err != nil {
		return nil, err
	}
	if !node.isDir() {
		return nil, ErrNotDirectory
	}
	return &ReaddirHandle{node: node}, nil
}

// ReaddirNext is fs_readdir_next: returns the next child name in
// storage order, or ok==false once exhausted. Storage order is not
// guaranteed to match insertion order after a Remove (spec.md §4.4).
func (h *ReaddirHandle) ReaddirNext() (name string, ok bool) {
	if h.next >= h.node.ChildrenCount {
		return "", false
	}
	name = h.node.Children[h.next].name()
	h.next++
	return name, true
}

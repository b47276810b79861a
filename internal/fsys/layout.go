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
	"bytes"
	"encoding/binary"
)

// Metadata is the disk's fixed header: inode/block/node counts
// (spec.md §3). Honoring what is actually on disk, rather than
// pinning these to 16 regardless of the image, resolves spec.md
// §9 open question (a).
type Metadata struct {
	InodeCount uint32
	BlockCount uint32
	NodeCount  uint32
}

func (m Metadata) encode() []byte {
	buf := make([]byte, metadataSize)
	binary.LittleEndian.PutUint32(buf[0:4], m.InodeCount)
	binary.LittleEndian.PutUint32(buf[4:8], m.BlockCount)
	binary.LittleEndian.PutUint32(buf[8:12], m.NodeCount)
	return buf
}

func decodeMetadata(buf []byte) Metadata {
	return Metadata{
		InodeCount: binary.LittleEndian.Uint32(buf[0:4]),
		BlockCount: binary.LittleEndian.Uint32(buf[4:8]),
		NodeCount:  binary.LittleEndian.Uint32(buf[8:12]),
	}
}

// InodeEntry is one inode-table record (spec.md §3). Ref == 0 means
// free.
type InodeEntry struct {
	Ref        uint32
	Size       uint64
	StartBlock uint32
	BlockCount uint32
	Key        [KeySize]byte
	IV         [IVSize]byte
}

func (e InodeEntry) encode() []byte {
	buf := make([]byte, InodeEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], e.Ref)
	binary.LittleEndian.PutUint64(buf[4:12], e.Size)
	binary.LittleEndian.PutUint32(buf[12:16], e.StartBlock)
	binary.LittleEndian.PutUint32(buf[16:20], e.BlockCount)
	copy(buf[20:20+KeySize], e.Key[:])
	copy(buf[20+KeySize:20+KeySize+IVSize], e.IV[:])
	return buf
}

func decodeInodeEntry(buf []byte) InodeEntry {
	var e InodeEntry
	e.Ref = binary.LittleEndian.Uint32(buf[0:4])
	e.Size = binary.LittleEndian.Uint64(buf[4:12])
	e.StartBlock = binary.LittleEndian.Uint32(buf[12:16])
	e.BlockCount = binary.LittleEndian.Uint32(buf[16:20])
	copy(e.Key[:], buf[20:20+KeySize])
	copy(e.IV[:], buf[20+KeySize:20+KeySize+IVSize])
	return e
}

// treeChild is one directory entry: a NUL-terminated name and the
// index of the tree node it points at.
type treeChild struct {
	Name  [NameSize]byte
	Index uint32
}

func (c treeChild) encode() []byte {
	buf := make([]byte, treeChildSize)
	copy(buf[0:NameSize], c.Name[:])
	binary.LittleEndian.PutUint32(buf[NameSize:NameSize+4], c.Index)
	return buf
}

func decodeTreeChild(buf []byte) treeChild {
	var c treeChild
	copy(c.Name[:], buf[0:NameSize])
	c.Index = binary.LittleEndian.Uint32(buf[NameSize : NameSize+4])
	return c
}

func (c treeChild) name() string {
	n := bytes.IndexByte(c.Name[:], 0)
	if n < 0 {
		n = len(c.Name)
	}
	return string(c.Name[:n])
}

func makeChildName(name string) ([NameSize]byte, error) {
	var out [NameSize]byte
	if len(name) > NameSize-1 {
		return out, ErrNameTooLong
	}
	copy(out[:], name)
	return out, nil
}

// treeNode is one directory-tree vertex (spec.md §3). Value == 0
// identifies a directory; Value > 0 is the inode holding a file's
// data.
type treeNode struct {
	Value         uint32
	ChildrenCount uint32
	Children      [MaxChildren]treeChild
}

func (n treeNode) encode() []byte {
	buf := make([]byte, TreeNodeSize)
	binary.LittleEndian.PutUint32(buf[0:4], n.Value)
	binary.LittleEndian.PutUint32(buf[4:8], n.ChildrenCount)
	off := 8
	for i := range n.Children {
		copy(buf[off:off+treeChildSize], n.Children[i].encode())
		off += treeChildSize
	}
	return buf
}

func decodeTreeNode(buf []byte) treeNode {
	var n treeNode
	n.Value = binary.LittleEndian.Uint32(buf[0:4])
	n.ChildrenCount = binary.LittleEndian.Uint32(buf[4:8])
	off := 8
	for i := range n.Children {
		n.Children[i] = decodeTreeChild(buf[off : off+treeChildSize])
		off += treeChildSize
	}
	return n
}

func (n treeNode) isDir() bool { return n.Value == 0 }

// layout holds the byte offsets of each on-disk region, computed from
// Metadata and the fixed base offset added to every FS access
// (spec.md §4.3).
type layout struct {
	base            int64
	metadataOff     int64
	inodeTableOff   int64
	blockBitmapOff  int64
	treeBitmapOff   int64
	treeNodesOff    int64
	dataOff         int64
}

func newLayout(base int64, m Metadata) layout {
	l := layout{base: base}
	l.metadataOff = base
	l.inodeTableOff = l.metadataOff + metadataSize
	l.blockBitmapOff = l.inodeTableOff + int64(m.InodeCount)*InodeEntrySize
	l.treeBitmapOff = l.blockBitmapOff + int64(m.BlockCount)
	l.treeNodesOff = l.treeBitmapOff + int64(m.NodeCount)
	l.dataOff = l.treeNodesOff + int64(m.NodeCount)*TreeNodeSize
	return l
}

func (l layout) inodeOffset(id InodeID) int64 {
	return l.inodeTableOff + int64(id)*InodeEntrySize
}

func (l layout) treeNodeOffset(idx TreeIndex) int64 {
	return l.treeNodesOff + int64(idx)*TreeNodeSize
}

func (l layout) dataBlockOffset(blockIdx uint32) int64 {
	return l.dataOff + int64(blockIdx)*BlockSize
}

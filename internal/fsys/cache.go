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

import "container/list"

// blockCache holds decrypted disk blocks keyed by (inode, block
// index within the file), evicting least-recently-used entries past
// a fixed capacity. Mirrors the teacher's internal/cache/lru
// structure (a doubly linked list plus a lookup map), generalized
// from GCS object-chunk caching to decrypted filesystem blocks so a
// hot file's blocks aren't re-decrypted on every read.
type blockCache struct {
	capacity int
	ll       *list.List
	items    map[cacheKey]*list.Element
}

type cacheKey struct {
	inode InodeID
	block uint32
}

type cacheEntry struct {
	key  cacheKey
	data []byte
}

func newBlockCache(capacity int) *blockCache {
	return &blockCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[cacheKey]*list.Element),
	}
}

func (c *blockCache) get(inode InodeID, block uint32) ([]byte, bool) {
	key := cacheKey{inode, block}
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).data, true
}

func (c *blockCache) put(inode InodeID, block uint32, data []byte) {
	key := cacheKey{inode, block}
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*cacheEntry).data = data
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: key, data: data})
	c.items[key] = el
	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// invalidateInode drops every cached block belonging to inode, used
// whenever its extent is relocated, truncated, or unlinked so a
// stale decrypted block can never be served under a changed key/iv
// or extent.
func (c *blockCache) invalidateInode(inode InodeID) {
	for key, el := range c.items {
		if key.inode == inode {
			c.ll.Remove(el)
			delete(c.items, key)
		}
	}
}

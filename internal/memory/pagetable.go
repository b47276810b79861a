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

import (
	"encoding/binary"
	"errors"
)

// entriesPerTable is the number of 8-byte entries that fit in one
// 4 KiB page-table frame: a level table is itself exactly one frame
// (spec.md §3).
const entriesPerTable = FrameSize / 8

// numLevels is the depth of the radix tree (spec.md: "a tree of four
// levels of 512-entry tables").
const numLevels = 4

// flagMask covers the low bits of a packed entry that hold PTEFlags;
// physical addresses are always frame-aligned, so they never collide
// with these bits.
const flagMask = 0xFFF

// AllocFunc allocates and zeroes a fresh frame for use as an
// intermediate page-table page, and must itself go through the frame
// table (spec.md §4.2: "walk/create intermediate tables using alloc_fn
// ... which itself uses 4.1 and must zero").
type AllocFunc func() (uintptr, error)

// Mapping is the result of a successful Lookup.
type Mapping struct {
	PA    uintptr
	Flags PTEFlags
}

func vaIndex(va uintptr, level int) int {
	// level 0 is the top (L4) table, level 3 is the leaf (L1) table.
	shift := 12 + uint(numLevels-1-level)*9
	return int((va >> shift) & 0x1FF)
}

func readEntry(arena *Arena, tablePA uintptr, idx int) (pa uintptr, flags PTEFlags) {
	table := arena.Frame(tablePA)
	raw := binary.LittleEndian.Uint64(table[idx*8 : idx*8+8])
	return uintptr(raw &^ flagMask), PTEFlags(raw & flagMask)
}

func writeEntry(arena *Arena, tablePA uintptr, idx int, pa uintptr, flags PTEFlags) {
	table := arena.Frame(tablePA)
	raw := uint64(pa) | uint64(flags)
	binary.LittleEndian.PutUint64(table[idx*8:idx*8+8], raw)
}

// Map installs a leaf mapping for every 4 KiB page in [va, va+length),
// pointing page i at physical address pa+i*FrameSize, with the given
// permission flags. Intermediate tables are created on demand via
// allocFn. Map either maps every page in the range or none of it: on
// any failure the partially-installed range is unwound before the
// error is returned (spec.md §4.2: "partial failure is reported and
// must be unwound by the caller" -- this implementation does the
// unwinding itself so callers never observe a half-mapped range).
func Map(arena *Arena, root uintptr, va uintptr, pa uintptr, length int, flags PTEFlags, allocFn AllocFunc) error {
	if length <= 0 {
		return errors.New("memory: Map requires a positive length")
	}
	npages := (length + FrameSize - 1) / FrameSize
	mapped := 0
	for i := 0; i < npages; i++ {
		pageVA := va + uintptr(i)*FrameSize
		pagePA := pa + uintptr(i)*FrameSize
		if err := mapOne(arena, root, pageVA, pagePA, flags, allocFn); err != nil {
			for j := 0; j < mapped; j++ {
				_ = unmapOne(arena, root, va+uintptr(j)*FrameSize)
			}
			return err
		}
		mapped++
	}
	return nil
}

func mapOne(arena *Arena, root uintptr, va uintptr, pa uintptr, flags PTEFlags, allocFn AllocFunc) error {
	table := root
	for level := 0; level < numLevels-1; level++ {
		idx := vaIndex(va, level)
		childPA, childFlags := readEntry(arena, table, idx)
		if !childFlags.Has(Present) {
			newTable, err := allocFn()
			if err != nil {
				return err
			}
			writeEntry(arena, table, idx, newTable, Present|Writable|User)
			childPA = newTable
		}
		table = childPA
	}
	leafIdx := vaIndex(va, numLevels-1)
	writeEntry(arena, table, leafIdx, pa, flags|Present)
	return nil
}

func unmapOne(arena *Arena, root uintptr, va uintptr) error {
	table := root
	for level := 0; level < numLevels-1; level++ {
		idx := vaIndex(va, level)
		childPA, childFlags := readEntry(arena, table, idx)
		if !childFlags.Has(Present) {
			return nil
		}
		table = childPA
	}
	leafIdx := vaIndex(va, numLevels-1)
	writeEntry(arena, table, leafIdx, 0, 0)
	return nil
}

// Unmap clears the leaf mappings for every page in [va, va+length),
// without freeing the underlying physical frames (the caller owns
// that decision -- e.g. via FrameTable.ReleaseProcess or DecRef).
func Unmap(arena *Arena, root uintptr, va uintptr, length int) error {
	npages := (length + FrameSize - 1) / FrameSize
	for i := 0; i < npages; i++ {
		if err := unmapOne(arena, root, va+uintptr(i)*FrameSize); err != nil {
			return err
		}
	}
	return nil
}

// Lookup walks root to translate va, returning (Mapping{}, false) if
// any level of the walk is absent.
func Lookup(arena *Arena, root uintptr, va uintptr) (Mapping, bool) {
	table := root
	for level := 0; level < numLevels-1; level++ {
		idx := vaIndex(va, level)
		childPA, childFlags := readEntry(arena, table, idx)
		if !childFlags.Has(Present) {
			return Mapping{}, false
		}
		table = childPA
	}
	leafIdx := vaIndex(va, numLevels-1)
	pa, flags := readEntry(arena, table, leafIdx)
	if !flags.Has(Present) {
		return Mapping{}, false
	}
	return Mapping{PA: pa, Flags: flags}, true
}

// Walk invokes fn for every present leaf mapping in root, in va order.
// It is used by fork (to copy every user mapping) and by invariant
// checks.
func Walk(arena *Arena, root uintptr, fn func(va uintptr, m Mapping)) {
	walkLevel(arena, root, 0, 0, fn)
}

func walkLevel(arena *Arena, table uintptr, level int, vaPrefix uintptr, fn func(uintptr, Mapping)) {
	for idx := 0; idx < entriesPerTable; idx++ {
		childPA, flags := readEntry(arena, table, idx)
		if !flags.Has(Present) {
			continue
		}
		shift := 12 + uint(numLevels-1-level)*9
		va := vaPrefix | (uintptr(idx) << shift)
		if level == numLevels-1 {
			fn(va, Mapping{PA: childPA, Flags: flags})
			continue
		}
		walkLevel(arena, childPA, level+1, va, fn)
	}
}

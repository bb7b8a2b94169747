// Copyright 2015 Google Inc. All Rights Reserved.
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

package nfsfh

import (
	"fmt"
)

// A fixed-capacity memo from (device, inode) to the slash-rooted path the
// pair was last seen at, with LRU eviction. Entries may be stale; the owner
// must lstat-validate a found path before trusting it, invalidating the slot
// on mismatch.
//
// Not safe for concurrent access; the owning Core serializes calls.
type pathCache struct {
	// Occupied slots live in the prefix [0, maxSlot); a slot inside the
	// prefix with use == 0 has been invalidated and may be reused.
	entries []cacheEntry
	maxSlot int

	// The LRU stamp most recently handed out. Strictly increasing, never
	// reset. 64 bits do not overflow within a realistic uptime.
	stamp uint64

	// Lookup attempts and validated hits, exposed through Core.Stats.
	uses uint64
	hits uint64
}

type cacheEntry struct {
	dev  uint32
	ino  uint32
	path string

	// LRU stamp; 0 marks an empty slot.
	use uint64
}

func newPathCache(capacity int) *pathCache {
	return &pathCache{
		entries: make([]cacheEntry, capacity),
	}
}

func (pc *pathCache) nextStamp() uint64 {
	pc.stamp++
	return pc.stamp
}

// Find the slot holding (dev, ino), or -1. Only the used prefix is scanned.
func (pc *pathCache) find(dev uint32, ino uint32) int {
	for i := 0; i < pc.maxSlot; i++ {
		e := &pc.entries[i]
		if e.use != 0 && e.dev == dev && e.ino == ino {
			return i
		}
	}

	return -1
}

// Mark slot i as most recently used.
func (pc *pathCache) bump(i int) {
	pc.entries[i].use = pc.nextStamp()
}

// Remember that (dev, ino) was seen at path. An existing slot for the pair
// is overwritten in place; otherwise an empty slot is used, and when there
// is none the slot with the smallest stamp among occupied slots is evicted.
func (pc *pathCache) add(dev uint32, ino uint32, path string) {
	i := pc.find(dev, ino)

	if i < 0 {
		i = pc.findFree()
	}

	if i < 0 {
		i = pc.findOldest()
	}

	pc.entries[i] = cacheEntry{
		dev:  dev,
		ino:  ino,
		path: path,
		use:  pc.nextStamp(),
	}
}

// Zero slot i, including its stamp.
func (pc *pathCache) invalidate(i int) {
	pc.entries[i] = cacheEntry{}
}

// Find an empty slot, growing the used prefix if the cache is still cold.
// Returns -1 when the cache is full.
func (pc *pathCache) findFree() int {
	for i := 0; i < pc.maxSlot; i++ {
		if pc.entries[i].use == 0 {
			return i
		}
	}

	if pc.maxSlot < len(pc.entries) {
		i := pc.maxSlot
		pc.maxSlot++
		return i
	}

	return -1
}

// Find the occupied slot with the smallest stamp. Must not be called unless
// the cache is full.
func (pc *pathCache) findOldest() int {
	best := -1
	for i := 0; i < pc.maxSlot; i++ {
		e := &pc.entries[i]
		if e.use == 0 {
			continue
		}
		if best < 0 || e.use < pc.entries[best].use {
			best = i
		}
	}

	if best < 0 {
		panic("findOldest called on an empty cache")
	}

	return best
}

func (pc *pathCache) checkInvariants() {
	// INVARIANT: maxSlot is within capacity.
	if pc.maxSlot < 0 || pc.maxSlot > len(pc.entries) {
		panic(fmt.Sprintf("maxSlot %d out of range [0, %d]", pc.maxSlot, len(pc.entries)))
	}

	// INVARIANT: slots beyond the used prefix are empty.
	for i := pc.maxSlot; i < len(pc.entries); i++ {
		if pc.entries[i].use != 0 {
			panic(fmt.Sprintf("slot %d beyond maxSlot %d is in use", i, pc.maxSlot))
		}
	}

	seen := make(map[uint64]int)
	for i := 0; i < pc.maxSlot; i++ {
		e := &pc.entries[i]
		if e.use == 0 {
			continue
		}

		// INVARIANT: stamps never exceed the counter.
		if e.use > pc.stamp {
			panic(fmt.Sprintf("slot %d stamp %d exceeds counter %d", i, e.use, pc.stamp))
		}

		// INVARIANT: occupied slots identify a real object.
		if e.dev == 0 || e.ino == 0 {
			panic(fmt.Sprintf("slot %d occupied with zero dev/ino", i))
		}

		// INVARIANT: no two occupied slots share a (dev, ino) pair.
		key := uint64(e.dev)<<32 | uint64(e.ino)
		if j, ok := seen[key]; ok {
			panic(fmt.Sprintf("slots %d and %d both hold dev %d ino %d", j, i, e.dev, e.ino))
		}
		seen[key] = i
	}
}

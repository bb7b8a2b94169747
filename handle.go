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

const (
	// The maximum number of entries in a handle's inode-hash trail, and
	// therefore the maximum directory depth of an object the encoder will
	// produce a handle for. Handles are persistent; changing this breaks
	// handles held by clients.
	MaxDepth = 64

	// The serialized size of a handle's fixed fields. A handle's wire form is
	// HeaderLen plus one byte per trail entry.
	HeaderLen = 13
)

// Handle identifies a single object within an exported directory tree: the
// file system it lives on, its inode, a generation counter that tells a
// recycled inode apart from the original, and a trail of 8-bit hashes of the
// inode numbers of every ancestor directory below the export root,
// parent-last. The trail lets the resolver prune its scan; correctness rests
// only on the (Dev, Ino) pair.
//
// The export root's handle has an empty trail, as do the handles of the
// root's direct children; only the (Dev, Ino) pair tells them apart. A
// handle whose Dev and Ino are both zero is the canonical invalid handle.
//
// Handles are values. Extend and the parsing functions always return handles
// whose trails alias no other handle's storage.
type Handle struct {
	Dev uint32
	Ino uint32

	// The inode generation counter observed when the handle was made, or 0
	// when the file system offers no discriminator. The resolver ignores it;
	// operations that care about inode recycling compare it after decoding.
	Gen uint32

	// Hashes of ancestor directory inodes, outermost first. At most MaxDepth
	// entries leave the encoder, but a parsed handle may carry more; the
	// resolver discovers such handles to be unresolvable.
	Inos []byte
}

// InoHash returns the 8-bit trail hash of an inode number. The exact
// function is part of the persistent handle format and must never change:
//
//	h(n) = (n + 3*(n>>8) + 5*(n>>16)) mod 256
//
// Hashes are computed over the 32-bit inode value stored in handles.
func InoHash(ino uint32) byte {
	return byte(ino + 3*(ino>>8) + 5*(ino>>16))
}

// Valid returns false for the canonical invalid handle, i.e. whenever Dev or
// Ino is zero.
func (h Handle) Valid() bool {
	return h.Dev != 0 && h.Ino != 0
}

// WireLen returns the exact serialized length of the handle in bytes.
func (h Handle) WireLen() int {
	return HeaderLen + len(h.Inos)
}

func (h Handle) String() string {
	return fmt.Sprintf(
		"Handle{dev=%d ino=%d gen=%d depth=%d}",
		h.Dev,
		h.Ino,
		h.Gen,
		len(h.Inos))
}

// ExtendHandle derives the handle for a child of the object named by parent,
// given the child's identifying fields. The parent's inode hash is appended
// to the trail, since the parent becomes the last directory on the path to
// the child.
//
// The export root never appears in a trail, so extending the root handle is
// the one case this mechanical form gets wrong; use Core.Extend, which knows
// the root's identity, when the parent might be it.
//
// Returns ErrTooDeep if the parent's trail is already full.
func ExtendHandle(parent Handle, dev uint32, ino uint32, gen uint32) (Handle, error) {
	if len(parent.Inos) >= MaxDepth {
		return Handle{}, ErrTooDeep
	}

	child := Handle{
		Dev: dev,
		Ino: ino,
		Gen: gen,
	}

	child.Inos = make([]byte, len(parent.Inos)+1)
	copy(child.Inos, parent.Inos)
	child.Inos[len(parent.Inos)] = InoHash(parent.Ino)

	return child, nil
}

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
	"os"
	"path"

	"golang.org/x/sys/unix"
)

// Resolve a handle to a slash-rooted path by scanning the export, pruning
// the descent with the handle's inode-hash trail. The first entry whose
// (device, inode) pair matches wins; the generation counter is deliberately
// not compared, since only downstream operations care about recycling.
//
// Leaves the attribute cache describing the found object on success and
// invalid on failure.
//
// LOCKS_REQUIRED(c.mu)
func (c *Core) resolveLocked(h Handle) (string, error) {
	c.attr = attrSlot{}

	if !h.Valid() || len(h.Inos) > MaxDepth {
		return "", ErrUnresolved
	}

	// The export root needs no scan: one lstat both answers it and keeps
	// the attribute contract. Other empty-trail handles (children of the
	// root) fall through to the scan, which matches them in its first frame
	// since matching never consults the trail.
	if len(h.Inos) == 0 {
		st, _, err := c.lstatHandlePath("/")
		if err != nil {
			return "", fmt.Errorf("lstat export root: %v", err)
		}

		c.rootDev = st.Dev
		c.rootIno = st.Ino

		if st.Dev == h.Dev && st.Ino == h.Ino {
			c.attr = attrSlot{valid: true, stat: st}
			return "/", nil
		}
	}

	vpath, st, ok := c.resolveRec(h, 0, "/")
	if !ok {
		return "", ErrUnresolved
	}

	c.attr = attrSlot{valid: true, stat: st}

	return vpath, nil
}

// One frame of the scan: search the directory at vdir, descending into
// entries whose inode hash matches the trail at position pos. Directory
// entries are visited in the order the host yields them.
//
// Symlinks are lstat'ed, never followed, so a handle minted for a symlink
// resolves to the link itself. An entry that cannot be lstat'ed is treated
// as (dev 0, ino 0): it can't match a valid handle, and a descent into it is
// at worst wasted work, like any other hash collision.
//
// The recursion is bounded: pos grows by one per frame and descent stops at
// the end of the trail, itself capped at MaxDepth for any handle the encoder
// produced. Parsed handles may declare longer trails; the explicit MaxDepth
// check keeps those from deepening the stack further.
func (c *Core) resolveRec(h Handle, pos int, vdir string) (string, Stat, bool) {
	entries, err := readDirUnordered(c.LocalPath(vdir))
	if err != nil {
		// An unreadable directory simply can't contain the object.
		return "", Stat{}, false
	}

	for _, entry := range entries {
		full := path.Join(vdir, entry.Name())

		var raw unix.Stat_t
		var dev, ino uint32
		if err := unix.Lstat(c.LocalPath(full), &raw); err == nil {
			dev = uint32(raw.Dev)
			ino = uint32(raw.Ino)
		}

		if dev == h.Dev && ino == h.Ino {
			return full, convertStat(&raw, c.clock.Now()), true
		}

		if pos < len(h.Inos) && pos < MaxDepth && InoHash(ino) == h.Inos[pos] {
			if vpath, st, ok := c.resolveRec(h, pos+1, full); ok {
				return vpath, st, true
			}
		}
	}

	return "", Stat{}, false
}

// Read a directory's entries in the order the host yields them, without the
// sorting os.ReadDir would impose.
func readDirUnordered(dir string) ([]os.DirEntry, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return f.ReadDir(-1)
}

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
	"strings"

	"golang.org/x/sys/unix"
)

// Encode a handle for the object at the supplied handle path: lstat it for
// the identifying fields, then walk the ancestor directories recording their
// inode hashes. Returns the cleaned slash-rooted path alongside the handle
// so callers can feed the path cache.
//
// Leaves the attribute cache describing the object on success and invalid on
// failure.
//
// LOCKS_REQUIRED(c.mu)
func (c *Core) encodeLocked(
	handlePath string,
	requireDir bool) (Handle, string, error) {
	c.attr = attrSlot{}

	vpath := cleanHandlePath(handlePath)

	st, raw, err := c.lstatHandlePath(vpath)
	if err != nil {
		return Handle{}, "", fmt.Errorf("lstat: %v", err)
	}

	if requireDir && !st.IsDir() {
		return Handle{}, "", ErrNotDirectory
	}

	st.Gen = c.prober.Generation(raw, c.LocalPath(vpath))

	h := Handle{
		Dev: st.Dev,
		Ino: st.Ino,
		Gen: st.Gen,
	}

	// The export root carries no trail.
	if vpath == "/" {
		c.attr = attrSlot{valid: true, stat: st}
		return h, vpath, nil
	}

	// Record each ancestor directory's inode hash, outermost first. The
	// object's own component contributes nothing.
	components := splitHandlePath(vpath)
	if len(components)-1 > MaxDepth {
		return Handle{}, "", ErrTooDeep
	}

	h.Inos = make([]byte, 0, len(components)-1)
	prefix := ""
	for _, component := range components[:len(components)-1] {
		prefix = prefix + "/" + component

		var ast unix.Stat_t
		if err := unix.Lstat(c.LocalPath(prefix), &ast); err != nil {
			return Handle{}, "", fmt.Errorf("lstat %q: %v", prefix, err)
		}

		h.Inos = append(h.Inos, InoHash(uint32(ast.Ino)))
	}

	c.attr = attrSlot{valid: true, stat: st}

	return h, vpath, nil
}

// Split a clean, slash-rooted, non-root handle path into its components.
func splitHandlePath(vpath string) []string {
	return strings.Split(vpath[1:], "/")
}

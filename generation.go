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
	"golang.org/x/sys/unix"
)

// GenProber extracts an inode generation counter for an object that has just
// been lstat'ed. The counter distinguishes a recycled inode from the
// original one a handle was minted for.
//
// Probes never fail hard: a probe that cannot obtain a counter returns 0,
// meaning "no discriminator available". Handles still carry the inode number
// and directory trail, so a zero generation only weakens recycling
// detection.
type GenProber interface {
	// Return the generation counter for the object described by st, located
	// at the supplied on-disk path, or 0.
	Generation(st *unix.Stat_t, path string) uint32
}

// FDGenProber is implemented by probes that can skip the open when the
// caller already holds a descriptor for the object, as READ and WRITE
// handlers typically do.
type FDGenProber interface {
	GenProber

	// Like Generation, but using an already-open descriptor.
	GenerationFD(st *unix.Stat_t, fd int) uint32
}

// InodeGenProber is the portable fallback probe: it returns the (truncated)
// inode number itself. This is acceptable because the generation is
// advisory; see GenProber.
type InodeGenProber struct {
}

var _ GenProber = InodeGenProber{}

func (InodeGenProber) Generation(st *unix.Stat_t, path string) uint32 {
	return uint32(st.Ino)
}

// DefaultGenProber returns the most capable probe for the host platform:
// NativeGenProber (the st_gen stat field) on Darwin and ExtGenProber (the
// ext-family GETVERSION control) on Linux. Only these two platforms are
// supported, and InodeGenProber is never returned; it is used only when set
// explicitly in Config.
func DefaultGenProber() GenProber {
	return defaultGenProber()
}

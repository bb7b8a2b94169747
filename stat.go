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
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Stat is the metadata observed for an object by a core operation, in the
// shape an NFS PROC needs when building the attributes attached to its
// reply. Dev and Ino are the 32-bit values stored in handles.
type Stat struct {
	Dev uint32
	Ino uint32

	// The inode generation counter, where a probe supplied one. Zero means
	// unknown; in particular, attributes observed on a cache hit or during a
	// resolver scan carry no generation.
	Gen uint32

	Size  uint64
	Mode  os.FileMode
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Rdev  uint32

	Atime time.Time
	Mtime time.Time
	Ctime time.Time

	// The clock reading at the moment the underlying lstat returned, for
	// consumers that judge attribute freshness.
	ObservedAt time.Time
}

// IsDir reports whether the observed object is a directory.
func (s *Stat) IsDir() bool {
	return s.Mode.IsDir()
}

// Convert a raw stat structure. Times are extracted by per-platform helpers;
// see stat_linux.go and stat_darwin.go.
func convertStat(st *unix.Stat_t, observedAt time.Time) Stat {
	atime, mtime, ctime := statTimes(st)

	return Stat{
		Dev:        uint32(st.Dev),
		Ino:        uint32(st.Ino),
		Size:       uint64(st.Size),
		Mode:       convertFileMode(uint32(st.Mode)),
		Nlink:      uint32(st.Nlink),
		Uid:        st.Uid,
		Gid:        st.Gid,
		Rdev:       uint32(st.Rdev),
		Atime:      atime,
		Mtime:      mtime,
		Ctime:      ctime,
		ObservedAt: observedAt,
	}
}

func convertFileMode(unixMode uint32) os.FileMode {
	mode := os.FileMode(unixMode & 0777)
	switch unixMode & syscall.S_IFMT {
	case syscall.S_IFREG:
		// Nothing to do.
	case syscall.S_IFDIR:
		mode |= os.ModeDir
	case syscall.S_IFCHR:
		mode |= os.ModeCharDevice | os.ModeDevice
	case syscall.S_IFBLK:
		mode |= os.ModeDevice
	case syscall.S_IFIFO:
		mode |= os.ModeNamedPipe
	case syscall.S_IFLNK:
		mode |= os.ModeSymlink
	case syscall.S_IFSOCK:
		mode |= os.ModeSocket
	default:
		mode |= os.ModeIrregular
	}

	if unixMode&syscall.S_ISUID != 0 {
		mode |= os.ModeSetuid
	}
	if unixMode&syscall.S_ISGID != 0 {
		mode |= os.ModeSetgid
	}
	if unixMode&syscall.S_ISVTX != 0 {
		mode |= os.ModeSticky
	}

	return mode
}

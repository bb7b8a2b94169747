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
	"errors"
	"syscall"
)

var (
	// The supplied bytes do not parse as a handle. The resolver is never
	// consulted for such input.
	ErrInvalidHandle = errors.New("nfsfh: invalid handle")

	// The handle parsed, but a scan of the exported tree found no object
	// with its (device, inode) pair.
	ErrUnresolved = errors.New("nfsfh: handle does not resolve")

	// A directory was required and the object is not one.
	ErrNotDirectory = errors.New("nfsfh: not a directory")

	// Encoding or extending the handle would exceed MaxDepth trail entries.
	ErrTooDeep = errors.New("nfsfh: directory trail too deep")
)

// Errno maps an error returned by this package to the kernel error number an
// NFS PROC implementation would translate into its status code: ESTALE for
// handles that don't parse or don't resolve, ENOTDIR and ENAMETOOLONG for
// their namesakes, and EIO for everything else. A nil error maps to zero.
func Errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidHandle), errors.Is(err, ErrUnresolved):
		return syscall.ESTALE
	case errors.Is(err, ErrNotDirectory):
		return syscall.ENOTDIR
	case errors.Is(err, ErrTooDeep):
		return syscall.ENAMETOOLONG
	default:
		return syscall.EIO
	}
}

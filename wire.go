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
	"encoding/binary"
)

// The wire form of a handle, little-endian and packed, bit-exact across
// server restarts:
//
//	offset  size  field
//	  0      4    dev  (uint32)
//	  4      4    ino  (uint32)
//	  8      4    gen  (uint32)
//	 12      1    len  (uint8)
//	 13     len   inode-hash trail
//
// Receivers must reject any buffer whose length differs from 13+len.

// Marshal returns the wire form of the handle. The result is freshly
// allocated and may be embedded directly into an RPC reply.
func (h Handle) Marshal() []byte {
	buf := make([]byte, h.WireLen())
	binary.LittleEndian.PutUint32(buf[0:4], h.Dev)
	binary.LittleEndian.PutUint32(buf[4:8], h.Ino)
	binary.LittleEndian.PutUint32(buf[8:12], h.Gen)
	buf[12] = uint8(len(h.Inos))
	copy(buf[HeaderLen:], h.Inos)
	return buf
}

// ValidWire reports whether buf is structurally a handle: at least HeaderLen
// bytes long, with a total length exactly matching the declared trail
// length. Nothing else is checked here; a structurally valid handle may
// still fail to resolve.
func ValidWire(buf []byte) bool {
	if len(buf) < HeaderLen {
		return false
	}
	return len(buf) == HeaderLen+int(buf[12])
}

// ParseHandle parses the wire form of a handle, returning ErrInvalidHandle
// if buf is not structurally valid. The returned handle's trail does not
// alias buf.
func ParseHandle(buf []byte) (Handle, error) {
	if !ValidWire(buf) {
		return Handle{}, ErrInvalidHandle
	}

	h := Handle{
		Dev: binary.LittleEndian.Uint32(buf[0:4]),
		Ino: binary.LittleEndian.Uint32(buf[4:8]),
		Gen: binary.LittleEndian.Uint32(buf[8:12]),
	}

	if n := int(buf[12]); n > 0 {
		h.Inos = make([]byte, n)
		copy(h.Inos, buf[HeaderLen:])
	}

	return h, nil
}

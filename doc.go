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

// Package nfsfh translates between paths within an exported directory tree
// and the opaque, bounded-size file handles that an NFSv3 server hands to
// its clients.
//
// The primary elements of interest are:
//
//   - The Handle type, a packed record of (device, inode, generation) plus a
//     trail of hashed ancestor directory inodes. Handles are re-derivable
//     from the file system alone, so a server built on this package holds no
//     table of outstanding handles and survives restarts.
//
//   - Core, which owns the path cache and attribute cache and exposes
//     cache-aware encode, decode, and extend operations. Create one with
//     NewCore and share it across all NFS PROC handlers for an export.
//
// The package does not speak the NFS wire protocol. The embedding server is
// expected to carry Handle bytes inside its RPC messages and to translate
// the errors defined here into NFS status codes, for which Errno is a
// convenient starting point.
package nfsfh

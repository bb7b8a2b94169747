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
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jacobsa/reqtrace"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"golang.org/x/sys/unix"
)

// The default capacity of a Core's path cache.
const DefaultCacheEntries = 4096

// Optional configuration accepted by NewCore. The zero value is usable and
// exports the whole file system.
type Config struct {
	// The directory tree being exported. Handle paths are slash-rooted names
	// inside this tree, with "/" denoting the export root itself.
	//
	// Default: the file system root.
	RootDir string

	// Capacity of the (device, inode) -> path cache.
	//
	// Default: DefaultCacheEntries.
	CacheEntries int

	// The probe used to obtain inode generation counters while encoding.
	//
	// Default: DefaultGenProber().
	Prober GenProber

	// The clock used to stamp observed attributes.
	//
	// Default: the real clock.
	Clock timeutil.Clock

	// A logger for debugging output.
	//
	// Default: a logger gated on the --nfsfh.debug flag.
	DebugLogger *log.Logger
}

// Core owns the mutable state of the filehandle layer for one export: the
// path cache and the single-slot attribute cache. Create one with NewCore
// and pass it to every NFS PROC handler serving the export.
//
// Core methods serialize on an internal lock, so the cache survives a
// threaded server. The attribute cache remains a single shared slot: a
// caller that wants PeekAttr to describe its own operation must not let
// another core call intervene, exactly as in the single-threaded reference
// model. See PeekAttr for the rules.
type Core struct {
	rootDir string
	prober  GenProber
	clock   timeutil.Clock
	logger  *log.Logger

	mu syncutil.InvariantMutex

	// The identity of the export root, probed lazily on first need. Zero
	// until then; no real root has a zero inode.
	//
	// GUARDED_BY(mu)
	rootDev uint32
	rootIno uint32

	// GUARDED_BY(mu)
	cache *pathCache

	// The most recent stat observed by a successful path-producing
	// operation, or invalid.
	//
	// GUARDED_BY(mu)
	attr attrSlot
}

type attrSlot struct {
	valid bool
	stat  Stat
}

// A read-only snapshot of the path cache counters.
type CoreStats struct {
	// The number of slots that have ever been occupied.
	MaxSlot int

	// Cache lookup attempts, and lookups that returned a validated path.
	Uses uint64
	Hits uint64
}

// NewCore creates a core for the export described by cfg.
func NewCore(cfg Config) *Core {
	if cfg.RootDir == "" {
		cfg.RootDir = "/"
	}
	if cfg.CacheEntries == 0 {
		cfg.CacheEntries = DefaultCacheEntries
	}
	if cfg.Prober == nil {
		cfg.Prober = DefaultGenProber()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock()
	}
	if cfg.DebugLogger == nil {
		cfg.DebugLogger = getLogger()
	}

	c := &Core{
		rootDir: cfg.RootDir,
		prober:  cfg.Prober,
		clock:   cfg.Clock,
		logger:  cfg.DebugLogger,
		cache:   newPathCache(cfg.CacheEntries),
	}

	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)

	return c
}

// LOCKS_REQUIRED(c.mu)
func (c *Core) checkInvariants() {
	c.cache.checkInvariants()
}

// RootDir returns the directory tree the core exports.
func (c *Core) RootDir() string {
	return c.rootDir
}

// LocalPath maps a handle path, as accepted by Encode or returned by Decode,
// to the corresponding on-disk path under the export root.
func (c *Core) LocalPath(handlePath string) string {
	return filepath.Join(c.rootDir, handlePath)
}

// Stats returns a snapshot of the path cache counters.
func (c *Core) Stats() CoreStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CoreStats{
		MaxSlot: c.cache.maxSlot,
		Uses:    c.cache.uses,
		Hits:    c.cache.hits,
	}
}

// PeekAttr returns the attributes observed for the path produced by the most
// recent successful core operation, so the caller can build its reply
// without a second metadata syscall. After a failed operation it reports
// false.
//
// The slot is shared: peek immediately after the call that populated it, or
// not at all. Callers that interleave core calls should instead re-stat the
// path they were handed.
func (c *Core) PeekAttr() (Stat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.attr.stat, c.attr.valid
}

// Extend derives a child handle from parent given the child's identifying
// fields. Mostly equivalent to ExtendHandle, with one refinement: when
// parent is the export root the child's trail stays empty, keeping trails
// minted by extension identical to trails minted by Encode. (The trail
// records ancestors below the root; the root itself never appears.)
func (c *Core) Extend(parent Handle, dev uint32, ino uint32, gen uint32) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.extendLocked(parent, dev, ino, gen)
}

// LOCKS_REQUIRED(c.mu)
func (c *Core) extendLocked(parent Handle, dev uint32, ino uint32, gen uint32) (Handle, error) {
	rootDev, rootIno, err := c.rootID()
	if err == nil && parent.Dev == rootDev && parent.Ino == rootIno {
		return Handle{Dev: dev, Ino: ino, Gen: gen}, nil
	}

	return ExtendHandle(parent, dev, ino, gen)
}

// Return the identity of the export root, probing it on first use.
//
// LOCKS_REQUIRED(c.mu)
func (c *Core) rootID() (dev uint32, ino uint32, err error) {
	if c.rootIno == 0 {
		var raw unix.Stat_t
		if err = unix.Lstat(c.rootDir, &raw); err != nil {
			err = fmt.Errorf("lstat export root: %v", err)
			return
		}

		c.rootDev = uint32(raw.Dev)
		c.rootIno = uint32(raw.Ino)
	}

	return c.rootDev, c.rootIno, nil
}

// ExtendWithPath lstats the supplied handle path, verifies its type when
// requireType is non-zero (e.g. os.ModeDir), and derives a child handle from
// parent using the observed fields. On success the attribute cache describes
// the child; on failure it is invalid.
func (c *Core) ExtendWithPath(
	ctx context.Context,
	parent Handle,
	handlePath string,
	requireType os.FileMode) (h Handle, err error) {
	_, report := reqtrace.StartSpan(ctx, "ExtendWithPath")
	defer func() { report(err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.attr = attrSlot{}

	handlePath = cleanHandlePath(handlePath)

	st, raw, err := c.lstatHandlePath(handlePath)
	if err != nil {
		return Handle{}, fmt.Errorf("lstat: %v", err)
	}

	if requireType != 0 && st.Mode.Type() != requireType {
		if requireType == os.ModeDir {
			return Handle{}, ErrNotDirectory
		}
		return Handle{}, fmt.Errorf("nfsfh: %q has the wrong type", handlePath)
	}

	st.Gen = c.prober.Generation(raw, c.LocalPath(handlePath))

	h, err = c.extendLocked(parent, st.Dev, st.Ino, st.Gen)
	if err != nil {
		return Handle{}, err
	}

	c.attr = attrSlot{valid: true, stat: st}

	return h, nil
}

// Encode produces a handle for the object at the supplied handle path,
// bypassing the path cache. If requireDir is set and the object is not a
// directory, it fails with ErrNotDirectory.
//
// On success the attribute cache describes the object.
func (c *Core) Encode(
	ctx context.Context,
	handlePath string,
	requireDir bool) (h Handle, err error) {
	_, report := reqtrace.StartSpan(ctx, "Encode")
	defer func() { report(err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	h, _, err = c.encodeLocked(handlePath, requireDir)
	return
}

// EncodeCached is Encode plus a path cache insertion for the encoded object.
// The export root is never inserted; its handle bypasses the cache.
func (c *Core) EncodeCached(
	ctx context.Context,
	handlePath string,
	requireDir bool) (h Handle, err error) {
	_, report := reqtrace.StartSpan(ctx, "EncodeCached")
	defer func() { report(err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	h, vpath, err := c.encodeLocked(handlePath, requireDir)
	if err != nil {
		return Handle{}, err
	}

	if vpath != "/" {
		c.cache.add(h.Dev, h.Ino, vpath)
	}

	return h, nil
}

// RootHandle returns the handle for the export root. Equivalent to encoding
// "/"; the trail is empty by construction.
func (c *Core) RootHandle(ctx context.Context) (Handle, error) {
	return c.Encode(ctx, "/", true)
}

// Decode resolves a handle to the path it names, bypassing the path cache.
// The returned path is "/" for the root handle and is otherwise relative to
// the export root ("a/b/c"); use LocalPath to reach the object on disk.
//
// Fails with ErrUnresolved when no object with the handle's (device, inode)
// pair can be found. On success the attribute cache describes the object.
func (c *Core) Decode(ctx context.Context, h Handle) (p string, err error) {
	_, report := reqtrace.StartSpan(ctx, "Decode")
	defer func() { report(err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	vpath, err := c.resolveLocked(h)
	if err != nil {
		return "", err
	}

	return stripRoot(vpath), nil
}

// DecodeCached validates and parses wire-format handle bytes, then resolves
// them via the path cache, falling back to a file system scan on a miss.
// Scan results are cached for next time. Path semantics match Decode.
func (c *Core) DecodeCached(ctx context.Context, buf []byte) (p string, err error) {
	_, report := reqtrace.StartSpan(ctx, "DecodeCached")
	defer func() { report(err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := ParseHandle(buf)
	if err != nil {
		c.attr = attrSlot{}
		return "", err
	}

	p, err = c.decodeCachedLocked(h)

	if err != nil {
		c.logger.Printf("DecodeCached %v: %v", h, err)
	} else {
		c.logger.Printf("DecodeCached %v -> %q", h, p)
	}

	return
}

// LOCKS_REQUIRED(c.mu)
func (c *Core) decodeCachedLocked(h Handle) (string, error) {
	c.attr = attrSlot{}

	if !h.Valid() || len(h.Inos) > MaxDepth {
		return "", ErrUnresolved
	}

	// The root handle never consults the cache.
	if rootDev, rootIno, err := c.rootID(); err == nil &&
		h.Dev == rootDev && h.Ino == rootIno {
		vpath, err := c.resolveLocked(h)
		if err != nil {
			return "", err
		}
		return stripRoot(vpath), nil
	}

	// Fast path: a cached path that still names the right object.
	c.cache.uses++
	if i := c.cache.find(h.Dev, h.Ino); i >= 0 {
		vpath := c.cache.entries[i].path

		st, _, err := c.lstatHandlePath(vpath)
		if err == nil && st.Dev == h.Dev && st.Ino == h.Ino {
			c.cache.bump(i)
			c.cache.hits++
			c.attr = attrSlot{valid: true, stat: st}
			return stripRoot(vpath), nil
		}

		// The entry went stale underneath us.
		c.cache.invalidate(i)
	}

	// Slow path: scan the export.
	vpath, err := c.resolveLocked(h)
	if err != nil {
		return "", err
	}

	c.cache.add(h.Dev, h.Ino, vpath)

	return stripRoot(vpath), nil
}

// Lstat the object at a handle path, returning both the converted and the
// raw stat. The raw form feeds generation probes.
//
// LOCKS_REQUIRED(c.mu)
func (c *Core) lstatHandlePath(handlePath string) (Stat, *unix.Stat_t, error) {
	var raw unix.Stat_t
	if err := unix.Lstat(c.LocalPath(handlePath), &raw); err != nil {
		return Stat{}, nil, err
	}

	return convertStat(&raw, c.clock.Now()), &raw, nil
}

// Convert an internal slash-rooted path to the form Decode hands out: the
// reference implementation strips the leading slash from everything but the
// root.
func stripRoot(vpath string) string {
	if vpath == "/" {
		return "/"
	}
	return strings.TrimPrefix(vpath, "/")
}

// Normalize a caller-supplied handle path to a clean slash-rooted form.
// Paths Decode handed out (no leading slash) are accepted too. Rooted
// cleaning means ".." components cannot escape the export.
func cleanHandlePath(handlePath string) string {
	return path.Clean("/" + strings.TrimPrefix(handlePath, "/"))
}

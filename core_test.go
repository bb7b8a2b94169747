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

package nfsfh_test

import (
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/jacobsa/nfsfh"
	"github.com/jacobsa/nfsfh/fhtesting"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
	"github.com/kylelemons/godebug/pretty"
)

func TestCore(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type CoreTest struct {
	Tree fhtesting.TreeTest
}

func init() { RegisterTestSuite(&CoreTest{}) }

func (t *CoreTest) SetUp(ti *TestInfo) {
	// A tiny cache makes eviction behavior observable.
	t.Tree.Config.CacheEntries = 4
	t.Tree.SetUp(ti)
}

////////////////////////////////////////////////////////////////////////
// Encoding
////////////////////////////////////////////////////////////////////////

func (t *CoreTest) EncodeRecordsAncestorTrail() {
	t.Tree.MkdirAll("/a/b")
	t.Tree.WriteFile("/a/b/c", "taco")

	_, inoA := t.Tree.DevIno("/a")
	_, inoB := t.Tree.DevIno("/a/b")
	dev, ino := t.Tree.DevIno("/a/b/c")

	h, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/a/b/c", false)
	AssertEq(nil, err)

	ExpectThat(h, fhtesting.HandleFor(dev, ino))
	ExpectThat(h, fhtesting.TrailIs(nfsfh.InoHash(inoA), nfsfh.InoHash(inoB)))

	// The fixture's probe reports the inode number as the generation.
	ExpectEq(ino, h.Gen)
}

func (t *CoreTest) EncodeRootHasEmptyTrail() {
	h, err := t.Tree.Core.RootHandle(t.Tree.Ctx)
	AssertEq(nil, err)

	dev, ino := t.Tree.DevIno("/")
	ExpectThat(h, fhtesting.HandleFor(dev, ino))
	ExpectThat(h, fhtesting.TrailIs())
}

func (t *CoreTest) EncodeDepthOneHasEmptyTrail() {
	t.Tree.WriteFile("/d", "burrito")

	h, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/d", false)
	AssertEq(nil, err)

	dev, ino := t.Tree.DevIno("/d")
	ExpectThat(h, fhtesting.HandleFor(dev, ino))
	ExpectThat(h, fhtesting.TrailIs())
}

func (t *CoreTest) EncodeMissingObject() {
	_, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/nope", false)
	AssertNe(nil, err)
	ExpectThat(err, Error(HasSubstr("lstat")))
	ExpectEq(syscall.EIO, nfsfh.Errno(err))

	_, ok := t.Tree.Core.PeekAttr()
	ExpectFalse(ok)
}

func (t *CoreTest) EncodeRequireDirOnFile() {
	t.Tree.WriteFile("/x", "queso")

	h, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/x", true)
	ExpectEq(nfsfh.ErrNotDirectory, err)
	ExpectFalse(h.Valid())
	ExpectEq(syscall.ENOTDIR, nfsfh.Errno(err))

	_, ok := t.Tree.Core.PeekAttr()
	ExpectFalse(ok)
}

func (t *CoreTest) EncodeTooDeep() {
	p := ""
	for i := 0; i < nfsfh.MaxDepth+2; i++ {
		p = p + fmt.Sprintf("/d%d", i)
	}
	t.Tree.MkdirAll(p)

	_, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, p, false)
	ExpectEq(nfsfh.ErrTooDeep, err)
	ExpectEq(syscall.ENAMETOOLONG, nfsfh.Errno(err))
}

func (t *CoreTest) EncodeSymlinkIsNotFollowed() {
	t.Tree.MkdirAll("/target")
	t.Tree.Symlink("target", "/link")

	// lstat semantics: the handle names the link itself, which is not a
	// directory.
	_, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/link", true)
	ExpectEq(nfsfh.ErrNotDirectory, err)

	h, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/link", false)
	AssertEq(nil, err)

	dev, ino := t.Tree.DevIno("/link")
	ExpectThat(h, fhtesting.HandleFor(dev, ino))

	p, err := t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
	AssertEq(nil, err)
	ExpectEq("link", p)
}

////////////////////////////////////////////////////////////////////////
// Decoding
////////////////////////////////////////////////////////////////////////

func (t *CoreTest) DecodeRoot() {
	h, err := t.Tree.Core.RootHandle(t.Tree.Ctx)
	AssertEq(nil, err)

	p, err := t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
	AssertEq(nil, err)
	ExpectEq("/", p)
}

func (t *CoreTest) DecodeStripsLeadingSlash() {
	t.Tree.MkdirAll("/a/b")
	t.Tree.WriteFile("/a/b/c", "taco")

	h, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/a/b/c", false)
	AssertEq(nil, err)

	p, err := t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
	AssertEq(nil, err)
	ExpectEq("a/b/c", p)
}

func (t *CoreTest) DecodeViaColdScan() {
	t.Tree.MkdirAll("/a/b")
	t.Tree.WriteFile("/a/b/target", "taco")

	h, err := t.Tree.Core.Encode(t.Tree.Ctx, "/a/b/target", false)
	AssertEq(nil, err)

	// Decode bypasses the path cache entirely, so this exercises the scan.
	p, err := t.Tree.Core.Decode(t.Tree.Ctx, h)
	AssertEq(nil, err)
	ExpectEq("a/b/target", p)
}

func (t *CoreTest) DecodeDepthOneObject() {
	t.Tree.WriteFile("/d", "burrito")

	h, err := t.Tree.Core.Encode(t.Tree.Ctx, "/d", false)
	AssertEq(nil, err)
	AssertThat(h, fhtesting.TrailIs())

	// An empty trail is not mistaken for the root handle.
	p, err := t.Tree.Core.Decode(t.Tree.Ctx, h)
	AssertEq(nil, err)
	ExpectEq("d", p)
}

func (t *CoreTest) DecodeEveryNodeRoundTrips() {
	t.Tree.MkdirAll("/a/b/c")
	t.Tree.MkdirAll("/a/d")
	t.Tree.WriteFile("/a/b/f1", "taco")
	t.Tree.WriteFile("/a/b/c/f2", "burrito")
	t.Tree.WriteFile("/a/d/f3", "enchilada")

	paths := []string{
		"a", "a/b", "a/b/c", "a/d",
		"a/b/f1", "a/b/c/f2", "a/d/f3",
	}

	for _, p := range paths {
		h, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/"+p, false)
		AssertEq(nil, err, fmt.Sprintf("encoding %q", p))

		got, err := t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
		AssertEq(nil, err, fmt.Sprintf("decoding %q", p))
		ExpectEq(p, got)
	}
}

func (t *CoreTest) DecodeUnresolvedAfterRemove() {
	t.Tree.WriteFile("/victim", "taco")

	h, err := t.Tree.Core.Encode(t.Tree.Ctx, "/victim", false)
	AssertEq(nil, err)

	t.Tree.Remove("/victim")

	_, err = t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
	ExpectEq(nfsfh.ErrUnresolved, err)
	ExpectEq(syscall.ESTALE, nfsfh.Errno(err))

	_, ok := t.Tree.Core.PeekAttr()
	ExpectFalse(ok)
}

func (t *CoreTest) DecodeRejectsMalformedBytes() {
	_, err := t.Tree.Core.DecodeCached(t.Tree.Ctx, nil)
	ExpectEq(nfsfh.ErrInvalidHandle, err)

	_, err = t.Tree.Core.DecodeCached(t.Tree.Ctx, make([]byte, 5))
	ExpectEq(nfsfh.ErrInvalidHandle, err)

	// Length must match the declared trail exactly.
	buf := make([]byte, 20)
	buf[12] = 3
	_, err = t.Tree.Core.DecodeCached(t.Tree.Ctx, buf)
	ExpectEq(nfsfh.ErrInvalidHandle, err)
	ExpectEq(syscall.ESTALE, nfsfh.Errno(err))
}

func (t *CoreTest) DecodeZeroHandle() {
	_, err := t.Tree.Core.DecodeCached(t.Tree.Ctx, nfsfh.Handle{}.Marshal())
	ExpectEq(nfsfh.ErrUnresolved, err)
}

func (t *CoreTest) CachedDecodeMatchesUncached() {
	t.Tree.MkdirAll("/a/b")
	t.Tree.WriteFile("/a/b/c", "taco")
	t.Tree.WriteFile("/a/f", "burrito")

	for _, p := range []string{"/", "/a", "/a/b/c", "/a/f"} {
		h, err := t.Tree.Core.Encode(t.Tree.Ctx, p, false)
		AssertEq(nil, err)

		uncached, err := t.Tree.Core.Decode(t.Tree.Ctx, h)
		AssertEq(nil, err)

		cached, err := t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
		AssertEq(nil, err)

		ExpectEq(uncached, cached, fmt.Sprintf("path %q", p))
	}
}

////////////////////////////////////////////////////////////////////////
// Path cache behavior
////////////////////////////////////////////////////////////////////////

func (t *CoreTest) CacheCounters() {
	t.Tree.WriteFile("/f", "taco")

	// Encode without caching, so the first decode must scan.
	h, err := t.Tree.Core.Encode(t.Tree.Ctx, "/f", false)
	AssertEq(nil, err)

	p, err := t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
	AssertEq(nil, err)
	ExpectEq("f", p)

	p, err = t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
	AssertEq(nil, err)
	ExpectEq("f", p)

	stats := t.Tree.Core.Stats()
	ExpectEq(2, stats.Uses)
	ExpectEq(1, stats.Hits)
	ExpectEq(1, stats.MaxSlot)
}

func (t *CoreTest) CacheSelfHealsAfterRename() {
	t.Tree.MkdirAll("/a/b")
	t.Tree.WriteFile("/a/b/c", "taco")

	h, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/a/b/c", false)
	AssertEq(nil, err)

	// Decode once to validate the cached entry.
	p, err := t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
	AssertEq(nil, err)
	ExpectEq("a/b/c", p)

	// Mutate the tree underneath the cache. The stale path must never be
	// returned: the lstat validation fails, the slot is dropped, and a fresh
	// scan finds the new name.
	t.Tree.Rename("/a/b/c", "/a/b/d")

	p, err = t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
	AssertEq(nil, err)
	ExpectEq("a/b/d", p)

	// The re-added entry serves the next decode from the cache.
	before := t.Tree.Core.Stats()
	p, err = t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
	AssertEq(nil, err)
	ExpectEq("a/b/d", p)

	after := t.Tree.Core.Stats()
	ExpectEq(before.Hits+1, after.Hits)
}

func (t *CoreTest) CacheEvictsLeastRecentlyUsed() {
	for i := 0; i < 5; i++ {
		t.Tree.WriteFile(fmt.Sprintf("/f%d", i), "taco")
	}

	var handles []nfsfh.Handle
	for i := 0; i < 5; i++ {
		h, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, fmt.Sprintf("/f%d", i), false)
		AssertEq(nil, err)
		handles = append(handles, h)
	}

	// Capacity is four, so f0's entry was evicted; decoding f1..f4 hits.
	for i := 1; i < 5; i++ {
		_, err := t.Tree.Core.DecodeCached(t.Tree.Ctx, handles[i].Marshal())
		AssertEq(nil, err)
	}

	stats := t.Tree.Core.Stats()
	ExpectEq(4, stats.Uses)
	ExpectEq(4, stats.Hits)

	// Decoding f0 misses and rescans.
	p, err := t.Tree.Core.DecodeCached(t.Tree.Ctx, handles[0].Marshal())
	AssertEq(nil, err)
	ExpectEq("f0", p)

	stats = t.Tree.Core.Stats()
	ExpectEq(5, stats.Uses)
	ExpectEq(4, stats.Hits)
	ExpectEq(4, stats.MaxSlot)
}

////////////////////////////////////////////////////////////////////////
// Attribute cache
////////////////////////////////////////////////////////////////////////

func (t *CoreTest) AttrAfterEncode() {
	t.Tree.CreateSizedFile("/sized", 4096)

	dev, ino := t.Tree.DevIno("/sized")

	_, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/sized", false)
	AssertEq(nil, err)

	s, ok := t.Tree.Core.PeekAttr()
	AssertTrue(ok)
	ExpectThat(s, fhtesting.DevInoIs(dev, ino))
	ExpectEq(4096, s.Size)
	ExpectTrue(s.ObservedAt.Equal(t.Tree.Clock.Now()))
}

func (t *CoreTest) AttrAfterDecode() {
	t.Tree.MkdirAll("/dir")
	t.Tree.WriteFile("/dir/f", "taco")

	dev, ino := t.Tree.DevIno("/dir/f")

	h, err := t.Tree.Core.Encode(t.Tree.Ctx, "/dir/f", false)
	AssertEq(nil, err)

	// Via the scan.
	_, err = t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
	AssertEq(nil, err)

	s, ok := t.Tree.Core.PeekAttr()
	AssertTrue(ok)
	ExpectThat(s, fhtesting.DevInoIs(dev, ino))
	ExpectEq(uint64(len("taco")), s.Size)

	// Via a cache hit, after the clock has moved.
	t.Tree.Clock.AdvanceTime(time.Second)

	_, err = t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
	AssertEq(nil, err)

	s, ok = t.Tree.Core.PeekAttr()
	AssertTrue(ok)
	ExpectThat(s, fhtesting.DevInoIs(dev, ino))
	ExpectTrue(s.ObservedAt.Equal(t.Tree.Clock.Now()))
}

func (t *CoreTest) AttrInvalidAfterFailure() {
	t.Tree.WriteFile("/f", "taco")

	_, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/f", false)
	AssertEq(nil, err)

	_, ok := t.Tree.Core.PeekAttr()
	AssertTrue(ok)

	// A failing operation clears the previous observation.
	_, err = t.Tree.Core.EncodeCached(t.Tree.Ctx, "/missing", false)
	ExpectNe(nil, err)

	_, ok = t.Tree.Core.PeekAttr()
	ExpectFalse(ok)
}

////////////////////////////////////////////////////////////////////////
// Extension
////////////////////////////////////////////////////////////////////////

func (t *CoreTest) ExtendFromRoot() {
	t.Tree.MkdirAll("/d")

	root, err := t.Tree.Core.RootHandle(t.Tree.Ctx)
	AssertEq(nil, err)

	h, err := t.Tree.Core.ExtendWithPath(t.Tree.Ctx, root, "/d", os.ModeDir)
	AssertEq(nil, err)

	dev, ino := t.Tree.DevIno("/d")
	ExpectThat(h, fhtesting.HandleFor(dev, ino))

	// Children of the export root carry no trail entry, exactly as if they
	// had been encoded directly.
	ExpectThat(h, fhtesting.TrailIs())

	p, err := t.Tree.Core.DecodeCached(t.Tree.Ctx, h.Marshal())
	AssertEq(nil, err)
	ExpectEq("d", p)
}

func (t *CoreTest) ExtendChainMatchesEncode() {
	t.Tree.MkdirAll("/a/b")
	t.Tree.WriteFile("/a/b/c", "taco")

	h, err := t.Tree.Core.RootHandle(t.Tree.Ctx)
	AssertEq(nil, err)

	for _, p := range []string{"/a", "/a/b"} {
		h, err = t.Tree.Core.ExtendWithPath(t.Tree.Ctx, h, p, os.ModeDir)
		AssertEq(nil, err)
	}

	h, err = t.Tree.Core.ExtendWithPath(t.Tree.Ctx, h, "/a/b/c", 0)
	AssertEq(nil, err)

	encoded, err := t.Tree.Core.Encode(t.Tree.Ctx, "/a/b/c", false)
	AssertEq(nil, err)

	// A handle built by walking down one level at a time is bit-identical to
	// one encoded in a single shot.
	ExpectEq("", pretty.Compare(encoded, h))
	ExpectEq("", pretty.Compare(encoded.Marshal(), h.Marshal()))
}

func (t *CoreTest) ExtendWithPathWrongType() {
	t.Tree.MkdirAll("/d")
	t.Tree.WriteFile("/d/f", "taco")

	parent, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/d", true)
	AssertEq(nil, err)

	_, err = t.Tree.Core.ExtendWithPath(t.Tree.Ctx, parent, "/d/f", os.ModeDir)
	ExpectEq(nfsfh.ErrNotDirectory, err)

	_, ok := t.Tree.Core.PeekAttr()
	ExpectFalse(ok)
}

func (t *CoreTest) ExtendWithPathPopulatesAttr() {
	t.Tree.MkdirAll("/d")
	t.Tree.WriteFile("/d/f", "taco")

	parent, err := t.Tree.Core.EncodeCached(t.Tree.Ctx, "/d", true)
	AssertEq(nil, err)

	h, err := t.Tree.Core.ExtendWithPath(t.Tree.Ctx, parent, "/d/f", 0)
	AssertEq(nil, err)

	dev, ino := t.Tree.DevIno("/d/f")
	ExpectThat(h, fhtesting.HandleFor(dev, ino))

	s, ok := t.Tree.Core.PeekAttr()
	AssertTrue(ok)
	ExpectThat(s, fhtesting.DevInoIs(dev, ino))
}

func (t *CoreTest) ExtendOverflowing() {
	parent := nfsfh.Handle{
		Dev:  1,
		Ino:  2,
		Inos: make([]byte, nfsfh.MaxDepth),
	}

	_, err := t.Tree.Core.Extend(parent, 1, 3, 0)
	ExpectEq(nfsfh.ErrTooDeep, err)
}

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

package fhtesting

import (
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"github.com/jacobsa/nfsfh"
	"github.com/jacobsa/ogletest"
	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
	"golang.org/x/sys/unix"
)

// A struct that implements common behavior needed by tests exercising file
// handle translation. Use it as a named field in your test fixture, calling
// its SetUp method from your SetUp method. (Embedding it would promote its
// exported helpers into the suite, and ogletest would try to run each of them
// as a test method.) Tweak the Config field
// before that call if the defaults (a tiny deterministic core over a fresh
// temp dir) don't suit; RootDir is always overwritten with the scratch
// directory.
type TreeTest struct {
	// Configuration for the core under test. RootDir is ignored.
	Config nfsfh.Config

	// A context object that can be used for core calls.
	Ctx context.Context

	// A clock with a fixed initial time, wired into the core so tests can
	// control attribute observation stamps.
	Clock timeutil.SimulatedClock

	// The scratch directory serving as the export root.
	Dir string

	// The core under test.
	Core *nfsfh.Core
}

// Create the scratch directory and the core. Panics on error.
func (t *TreeTest) SetUp(ti *ogletest.TestInfo) {
	err := t.initialize()
	if err != nil {
		panic(err)
	}
}

// Like SetUp, but doesn't panic.
func (t *TreeTest) initialize() (err error) {
	// Initialize the context.
	t.Ctx = context.Background()

	// Initialize the clock.
	t.Clock.SetTime(time.Date(2012, 8, 15, 22, 56, 0, 0, time.Local))

	// Set up a scratch directory.
	t.Dir, err = ioutil.TempDir("", "tree_test")
	if err != nil {
		err = fmt.Errorf("TempDir: %v", err)
		return
	}

	// Set up the core. The inode-number probe keeps generation counters
	// deterministic regardless of the file system backing the temp dir.
	cfg := t.Config
	cfg.RootDir = t.Dir
	if cfg.Clock == nil {
		cfg.Clock = &t.Clock
	}
	if cfg.Prober == nil {
		cfg.Prober = nfsfh.InodeGenProber{}
	}

	t.Core = nfsfh.NewCore(cfg)

	return
}

// Remove the scratch directory. Panics on error.
func (t *TreeTest) TearDown() {
	err := os.RemoveAll(t.Dir)
	if err != nil {
		panic(fmt.Errorf("RemoveAll: %v", err))
	}
}

////////////////////////////////////////////////////////////////////////
// Tree building helpers
////////////////////////////////////////////////////////////////////////

// MkdirAll creates the directory at the given handle path inside the scratch
// tree, along with any missing ancestors. Panics on error.
func (t *TreeTest) MkdirAll(handlePath string) {
	err := os.MkdirAll(t.Core.LocalPath(handlePath), 0755)
	if err != nil {
		panic(fmt.Errorf("MkdirAll: %v", err))
	}
}

// WriteFile creates or replaces the file at the given handle path. Panics on
// error.
func (t *TreeTest) WriteFile(handlePath string, contents string) {
	err := ioutil.WriteFile(t.Core.LocalPath(handlePath), []byte(contents), 0644)
	if err != nil {
		panic(fmt.Errorf("WriteFile: %v", err))
	}
}

// CreateSizedFile creates a file of the given size at the given handle path,
// preallocating extents where the platform supports it. Panics on error.
func (t *TreeTest) CreateSizedFile(handlePath string, size int64) {
	f, err := os.Create(t.Core.LocalPath(handlePath))
	if err != nil {
		panic(fmt.Errorf("Create: %v", err))
	}
	defer f.Close()

	err = allocateFile(f, size)
	if err != nil {
		panic(fmt.Errorf("allocating %d bytes: %v", size, err))
	}
}

// Symlink creates a symlink at the given handle path pointing at target.
// Panics on error.
func (t *TreeTest) Symlink(target string, handlePath string) {
	err := os.Symlink(target, t.Core.LocalPath(handlePath))
	if err != nil {
		panic(fmt.Errorf("Symlink: %v", err))
	}
}

// Rename moves the object at one handle path to another. Panics on error.
func (t *TreeTest) Rename(oldPath string, newPath string) {
	err := os.Rename(t.Core.LocalPath(oldPath), t.Core.LocalPath(newPath))
	if err != nil {
		panic(fmt.Errorf("Rename: %v", err))
	}
}

// Remove unlinks the object at the given handle path. Panics on error.
func (t *TreeTest) Remove(handlePath string) {
	err := os.RemoveAll(t.Core.LocalPath(handlePath))
	if err != nil {
		panic(fmt.Errorf("RemoveAll: %v", err))
	}
}

// DevIno returns the identifying pair of the object at the given handle
// path, as a handle would record it. Panics on error.
func (t *TreeTest) DevIno(handlePath string) (dev uint32, ino uint32) {
	var st unix.Stat_t
	err := unix.Lstat(t.Core.LocalPath(handlePath), &st)
	if err != nil {
		panic(fmt.Errorf("Lstat: %v", err))
	}

	return uint32(st.Dev), uint32(st.Ino)
}

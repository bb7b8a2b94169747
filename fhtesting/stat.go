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

// Package fhtesting provides matchers and a scratch-tree fixture for testing
// code built on package nfsfh.
package fhtesting

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/jacobsa/nfsfh"
	"github.com/jacobsa/oglematchers"
)

// Match nfsfh.Stat values that identify the object with the given device and
// inode pair.
func DevInoIs(dev uint32, ino uint32) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return devInoIs(c, dev, ino) },
		fmt.Sprintf("identifies dev %d ino %d", dev, ino))
}

func devInoIs(c interface{}, dev uint32, ino uint32) error {
	s, ok := c.(nfsfh.Stat)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}

	if s.Dev != dev || s.Ino != ino {
		return fmt.Errorf("which identifies dev %d ino %d", s.Dev, s.Ino)
	}

	return nil
}

// Match nfsfh.Stat values whose mtime is the given time.
func MtimeIs(expected time.Time) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return mtimeIs(c, expected) },
		fmt.Sprintf("mtime is %v", expected))
}

func mtimeIs(c interface{}, expected time.Time) error {
	s, ok := c.(nfsfh.Stat)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}

	if !s.Mtime.Equal(expected) {
		d := s.Mtime.Sub(expected)
		return fmt.Errorf("which has mtime %v, off by %v", s.Mtime, d)
	}

	return nil
}

// Match nfsfh.Stat values with exactly the given mode.
func ModeIs(expected os.FileMode) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return modeIs(c, expected) },
		fmt.Sprintf("mode is %v", expected))
}

func modeIs(c interface{}, expected os.FileMode) error {
	s, ok := c.(nfsfh.Stat)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}

	if s.Mode != expected {
		return fmt.Errorf("which has mode %v", s.Mode)
	}

	return nil
}

// Match nfsfh.Handle values that identify the object with the given device
// and inode pair.
func HandleFor(dev uint32, ino uint32) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return handleFor(c, dev, ino) },
		fmt.Sprintf("is a handle for dev %d ino %d", dev, ino))
}

func handleFor(c interface{}, dev uint32, ino uint32) error {
	h, ok := c.(nfsfh.Handle)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}

	if h.Dev != dev || h.Ino != ino {
		return fmt.Errorf("which identifies dev %d ino %d", h.Dev, h.Ino)
	}

	return nil
}

// Match nfsfh.Handle values whose inode-hash trail is exactly the given
// bytes. TrailIs() matches the root handle.
func TrailIs(trail ...byte) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return trailIs(c, trail) },
		fmt.Sprintf("has trail %v", trail))
}

func trailIs(c interface{}, trail []byte) error {
	h, ok := c.(nfsfh.Handle)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}

	if len(h.Inos) != len(trail) {
		return fmt.Errorf("which has a trail of depth %d", len(h.Inos))
	}

	for i := range trail {
		if h.Inos[i] != trail[i] {
			return fmt.Errorf("which has trail %v", h.Inos)
		}
	}

	return nil
}

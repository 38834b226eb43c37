// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildconfig

import (
	"context"
	"io/fs"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// fscache is a cache of file contents and glob results of the
// workspace, valid while a config is evaluated.
type fscache struct {
	mu    sync.Mutex
	s     singleflight.Group
	files map[string][]byte
	globs map[string][]string
}

func newFSCache() *fscache {
	return &fscache{
		files: make(map[string][]byte),
		globs: make(map[string][]string),
	}
}

// read reads the file fname from fsys.
func (c *fscache) read(ctx context.Context, fsys fs.FS, fname string) ([]byte, error) {
	c.mu.Lock()
	buf, ok := c.files[fname]
	c.mu.Unlock()
	if ok {
		log.Debugf("fscache hit %s: %d", fname, len(buf))
		return buf, nil
	}
	v, err, _ := c.s.Do("read:"+fname, func() (any, error) {
		buf, err := fs.ReadFile(fsys, fname)
		if err != nil {
			return []byte(nil), err
		}
		c.mu.Lock()
		c.files[fname] = buf
		c.mu.Unlock()
		return buf, nil
	})
	return v.([]byte), err
}

// glob returns files matching pattern in fsys. Sorted.
func (c *fscache) glob(ctx context.Context, fsys fs.FS, pattern string) ([]string, error) {
	c.mu.Lock()
	matches, ok := c.globs[pattern]
	c.mu.Unlock()
	if ok {
		return matches, nil
	}
	v, err, _ := c.s.Do("glob:"+pattern, func() (any, error) {
		matches, err := fs.Glob(fsys, pattern)
		if err != nil {
			return []string(nil), err
		}
		log.Debugf("glob %s: %d matches", pattern, len(matches))
		c.mu.Lock()
		c.globs[pattern] = matches
		c.mu.Unlock()
		return matches, nil
	})
	return v.([]string), err
}

// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ccompile

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"go.chromium.org/infra/build/msvcinc/mirror"
	"go.chromium.org/infra/build/msvcinc/toolchain"
)

// lazyCache computes a value once per key.
// Concurrent callers for the same key wait for one computation.
// Errors are cached too, so a missing resource is reported once per build.
type lazyCache[V any] struct {
	mu sync.Mutex
	s  singleflight.Group
	m  map[string]lazyEntry[V]
}

type lazyEntry[V any] struct {
	v   V
	err error
}

func (c *lazyCache[V]) get(key string, f func() (V, error)) (V, error) {
	c.mu.Lock()
	e, ok := c.m[key]
	c.mu.Unlock()
	if ok {
		return e.v, e.err
	}
	v, _, _ := c.s.Do(key, func() (any, error) {
		c.mu.Lock()
		e, ok := c.m[key]
		c.mu.Unlock()
		if ok {
			return e, nil
		}
		v, err := f()
		e = lazyEntry[V]{v: v, err: err}
		c.mu.Lock()
		if c.m == nil {
			c.m = make(map[string]lazyEntry[V])
		}
		c.m[key] = e
		c.mu.Unlock()
		return e, nil
	})
	e = v.(lazyEntry[V])
	return e.v, e.err
}

// SDKCache resolves SDK references once per build.
type SDKCache struct {
	resolver toolchain.Resolver
	sdks     map[string]toolchain.Description
	refs     lazyCache[*toolchain.Reference]
}

// NewSDKCache creates a cache resolving sdks by resolver.
func NewSDKCache(resolver toolchain.Resolver, sdks map[string]toolchain.Description) *SDKCache {
	return &SDKCache{
		resolver: resolver,
		sdks:     sdks,
	}
}

// Get returns the reference of the SDK.
func (c *SDKCache) Get(ctx context.Context, name string) (*toolchain.Reference, error) {
	return c.refs.get(name, func() (*toolchain.Reference, error) {
		desc, ok := c.sdks[name]
		if !ok {
			return nil, toolchain.NotFoundError{SDK: name, Err: fmt.Errorf("no description for %q", name)}
		}
		ref, err := c.resolver.Resolve(ctx, desc)
		if err != nil {
			log.Warnf("resolve sdk %s: %v", name, err)
			return nil, err
		}
		log.Infof("sdk %s: %s", name, ref.Description())
		return ref, nil
	})
}

// Path returns the local path identified by id in the SDK.
func (c *SDKCache) Path(ctx context.Context, sdk, id string) (string, error) {
	ref, err := c.Get(ctx, sdk)
	if err != nil {
		return "", err
	}
	return ref.Path(id)
}

// MirrorCache materializes logical paths once per build.
type MirrorCache struct {
	m     mirror.Mirror
	files lazyCache[string]
	dirs  lazyCache[string]
}

// NewMirrorCache creates a cache materializing paths by m.
func NewMirrorCache(m mirror.Mirror) *MirrorCache {
	return &MirrorCache{m: m}
}

// File materializes the logical file path.
func (c *MirrorCache) File(ctx context.Context, logical string) (string, error) {
	return c.files.get(logical, func() (string, error) {
		return c.m.Materialize(ctx, logical)
	})
}

// Dir materializes the logical directory path.
func (c *MirrorCache) Dir(ctx context.Context, logical string) (string, error) {
	return c.dirs.get(logical, func() (string, error) {
		return c.m.MaterializeDir(ctx, logical)
	})
}

// pathResolver resolves PathOptions to local paths.
type pathResolver struct {
	sdks   *SDKCache
	mirror *MirrorCache
	// real caches symlink-resolved local directories.
	real lazyCache[string]
}

func (r *pathResolver) file(ctx context.Context, p PathOption) (string, error) {
	if p.IsLocal() {
		return r.mirror.File(ctx, p.Path)
	}
	return r.sdks.Path(ctx, p.SDK, p.ID)
}

func (r *pathResolver) dir(ctx context.Context, p PathOption) (string, error) {
	if p.IsLocal() {
		return r.mirror.Dir(ctx, p.Path)
	}
	dir, err := r.sdks.Path(ctx, p.SDK, p.ID)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return "", toolchain.NotFoundError{SDK: p.SDK, ID: p.ID, Err: err}
	}
	if !fi.IsDir() {
		return "", toolchain.NotFoundError{SDK: p.SDK, ID: p.ID, Err: fmt.Errorf("%s: not a directory", dir)}
	}
	return dir, nil
}

// realDir returns dir with symlinks resolved. It returns dir itself if
// it can't be resolved.
func (r *pathResolver) realDir(dir string) string {
	p, _ := r.real.get(dir, func() (string, error) {
		p, err := evalSymlinks(dir)
		if err != nil {
			log.Debugf("realpath %s: %v", dir, err)
			return dir, nil
		}
		return p, nil
	})
	return p
}

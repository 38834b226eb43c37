// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package changefeed detects changes of files a previous build depended on.
//
// A Snapshot records fingerprints of sources, outputs and includes used by
// a build, and the files found in watched directories. Detect compares
// a snapshot with the files on disk and reports four change sets:
// changed sources, changed outputs, changed includes and added file names.
package changefeed

import (
	"context"
	"errors"
	"io/fs"
	"maps"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/infra/build/msvcinc/fingerprint"
	"go.chromium.org/infra/build/msvcinc/runtimex"
)

// Localizer maps a path recorded in a snapshot to the local path.
type Localizer interface {
	LocalPath(p string) string
}

// Watch is a directory watched for addition of files.
type Watch struct {
	// Names are lower-cased base names of interest.
	Names []string `json:"names,omitempty"`
	// Found are slash-separated paths relative to the watched directory
	// whose base name is in Names. Sorted.
	Found []string `json:"found,omitempty"`
}

// Snapshot is the state of files a build depended on.
type Snapshot struct {
	Sources map[string]fingerprint.Fingerprint `json:"sources,omitempty"`
	Outputs map[string]fingerprint.Fingerprint `json:"outputs,omitempty"`
	// Includes have zero fingerprint if the file was absent.
	Includes map[string]fingerprint.Fingerprint `json:"includes,omitempty"`
	// Watches are keyed by local directory path.
	Watches map[string]Watch `json:"watches,omitempty"`
}

// ChangeSet is changes detected since the snapshot.
// All slices are sorted.
type ChangeSet struct {
	SourceChanged  []string
	OutputChanged  []string
	IncludeChanged []string
	// IncludeAdded are lower-cased base names of added files.
	IncludeAdded []string
}

// Empty reports whether there are no changes.
func (c ChangeSet) Empty() bool {
	return len(c.SourceChanged) == 0 && len(c.OutputChanged) == 0 && len(c.IncludeChanged) == 0 && len(c.IncludeAdded) == 0
}

// Refs is the files referenced by a build.
type Refs struct {
	// Sources and Outputs are fingerprinted by the build already.
	Sources map[string]fingerprint.Fingerprint
	Outputs map[string]fingerprint.Fingerprint

	Includes       []string
	FailedIncludes []string

	// Dirs are local directories to watch for additions.
	Dirs []string
}

// Detect compares prev with the files on disk.
// It returns the changes and the current state of the files in prev.
func Detect(ctx context.Context, l Localizer, prev Snapshot) (ChangeSet, Snapshot, error) {
	var cs ChangeSet
	cur := Snapshot{
		Watches: make(map[string]Watch),
	}
	var err error
	cur.Sources, err = fingerprints(ctx, l, slices.Collect(maps.Keys(prev.Sources)))
	if err != nil {
		return cs, cur, err
	}
	cur.Outputs, err = fingerprints(ctx, l, slices.Collect(maps.Keys(prev.Outputs)))
	if err != nil {
		return cs, cur, err
	}
	cur.Includes, err = fingerprints(ctx, l, slices.Collect(maps.Keys(prev.Includes)))
	if err != nil {
		return cs, cur, err
	}
	cs.SourceChanged = changed(prev.Sources, cur.Sources)
	cs.OutputChanged = changed(prev.Outputs, cur.Outputs)
	cs.IncludeChanged = changed(prev.Includes, cur.Includes)

	var mu sync.Mutex
	added := make(map[string]bool)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtimex.NumCPU())
	for dir, w := range prev.Watches {
		eg.Go(func() error {
			if err := context.Cause(gctx); err != nil {
				return err
			}
			found := walk(dir, w.Names)
			mu.Lock()
			defer mu.Unlock()
			cur.Watches[dir] = Watch{Names: w.Names, Found: found}
			for _, f := range found {
				if _, ok := slices.BinarySearch(w.Found, f); ok {
					continue
				}
				log.Debugf("added %s in %s", f, dir)
				added[strings.ToLower(path.Base(f))] = true
			}
			return nil
		})
	}
	err = eg.Wait()
	if err != nil {
		return cs, cur, err
	}
	cs.IncludeAdded = sortedKeys(added)
	log.Infof("changefeed: source=%d output=%d include=%d added=%d", len(cs.SourceChanged), len(cs.OutputChanged), len(cs.IncludeChanged), len(cs.IncludeAdded))
	return cs, cur, nil
}

// Take creates a snapshot of refs.
// Files already in cur, the state observed by Detect before the build,
// reuse their fingerprints so changes made during the build are detected
// next time.
func Take(ctx context.Context, l Localizer, cur Snapshot, refs Refs) (Snapshot, error) {
	s := Snapshot{
		Sources:  maps.Clone(refs.Sources),
		Outputs:  maps.Clone(refs.Outputs),
		Includes: make(map[string]fingerprint.Fingerprint),
		Watches:  make(map[string]Watch),
	}
	names := make(map[string]bool)
	var missing []string
	for _, paths := range [][]string{refs.Includes, refs.FailedIncludes} {
		for _, p := range paths {
			names[strings.ToLower(path.Base(filepath.ToSlash(p)))] = true
			if _, ok := s.Includes[p]; ok {
				continue
			}
			if fp, ok := cur.Includes[p]; ok {
				s.Includes[p] = fp
				continue
			}
			s.Includes[p] = fingerprint.Fingerprint{}
			missing = append(missing, p)
		}
	}
	fps, err := fingerprints(ctx, l, missing)
	if err != nil {
		return s, err
	}
	maps.Copy(s.Includes, fps)

	nameList := sortedKeys(names)
	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtimex.NumCPU())
	seen := make(map[string]bool)
	for _, dir := range refs.Dirs {
		if seen[dir] {
			continue
		}
		seen[dir] = true
		eg.Go(func() error {
			if err := context.Cause(gctx); err != nil {
				return err
			}
			var found []string
			if w, ok := cur.Watches[dir]; ok && isSubset(nameList, w.Names) {
				for _, f := range w.Found {
					if names[strings.ToLower(path.Base(f))] {
						found = append(found, f)
					}
				}
			} else {
				found = walk(dir, nameList)
			}
			mu.Lock()
			s.Watches[dir] = Watch{Names: nameList, Found: found}
			mu.Unlock()
			return nil
		})
	}
	err = eg.Wait()
	return s, err
}

// fingerprints computes fingerprints of paths in parallel.
// Absent files get zero fingerprint.
func fingerprints(ctx context.Context, l Localizer, paths []string) (map[string]fingerprint.Fingerprint, error) {
	m := make(map[string]fingerprint.Fingerprint, len(paths))
	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtimex.NumCPU())
	for i, p := range paths {
		eg.Go(func() error {
			if i%1000 == 0 {
				if err := context.Cause(gctx); err != nil {
					log.Errorf("interrupted in changefeed: %v", err)
					return err
				}
			}
			fp, err := fingerprint.FromFile(l.LocalPath(p))
			switch {
			case err == nil:
			case errors.Is(err, fs.ErrNotExist), errors.Is(err, fingerprint.ErrIsDir):
				fp = fingerprint.Fingerprint{}
			default:
				log.Warnf("fingerprint %s: %v", p, err)
				fp = fingerprint.Fingerprint{}
			}
			mu.Lock()
			m[p] = fp
			mu.Unlock()
			return nil
		})
	}
	err := eg.Wait()
	return m, err
}

func changed(prev, cur map[string]fingerprint.Fingerprint) []string {
	var paths []string
	for p, fp := range prev {
		if cur[p] != fp {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// walk finds files under dir whose lower-cased base name is in names.
func walk(dir string, names []string) []string {
	if len(names) == 0 {
		return nil
	}
	var found []string
	err := filepath.WalkDir(dir, func(fname string, d fs.DirEntry, err error) error {
		if err != nil {
			if fname == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := slices.BinarySearch(names, strings.ToLower(d.Name())); !ok {
			return nil
		}
		rel, err := filepath.Rel(dir, fname)
		if err != nil {
			return nil
		}
		found = append(found, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("walk %s: %v", dir, err)
	}
	sort.Strings(found)
	return found
}

func isSubset(a, b []string) bool {
	for _, s := range a {
		if _, ok := slices.BinarySearch(b, s); !ok {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package mirror maps logical workspace paths to local paths that
// toolchain processes can access, and back.
//
// Logical paths are slash-separated and relative to the workspace root,
// e.g. "src/main.c".
package mirror

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// Mirror materializes logical files on local disk.
// Implementations must be safe for concurrent use.
type Mirror interface {
	// Materialize returns local path of the logical file.
	Materialize(ctx context.Context, logical string) (string, error)
	// MaterializeDir returns local path of the logical directory.
	MaterializeDir(ctx context.Context, logical string) (string, error)
	// Logical returns logical path of the local path, if the local
	// path is in the workspace.
	Logical(local string) (string, bool)
	// LocalPath returns local path of the logical path without
	// materializing it.
	LocalPath(logical string) string
}

// DirMirror is a Mirror where the workspace is a local directory.
type DirMirror struct {
	root     string
	realRoot string
}

// NewDirMirror creates a DirMirror for the workspace root dir.
func NewDirMirror(root string) (*DirMirror, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root %s: %w", root, err)
	}
	return &DirMirror{
		root:     root,
		realRoot: realRoot,
	}, nil
}

// Root returns the local path of the workspace root.
func (m *DirMirror) Root() string {
	return m.root
}

// LocalPath returns local path of the logical path without checking
// its existence.
func (m *DirMirror) LocalPath(logical string) string {
	if filepath.IsAbs(logical) {
		return filepath.Clean(logical)
	}
	return filepath.Join(m.root, filepath.FromSlash(logical))
}

// Materialize returns local path of the logical file.
func (m *DirMirror) Materialize(ctx context.Context, logical string) (string, error) {
	p := m.LocalPath(logical)
	fi, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return "", fmt.Errorf("materialize %s: is a directory: %w", logical, fs.ErrInvalid)
	}
	return p, nil
}

// MaterializeDir returns local path of the logical directory.
func (m *DirMirror) MaterializeDir(ctx context.Context, logical string) (string, error) {
	p := m.LocalPath(logical)
	fi, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("materialize %s: not a directory: %w", logical, fs.ErrInvalid)
	}
	return p, nil
}

// Logical returns logical path of the local path.
func (m *DirMirror) Logical(local string) (string, bool) {
	if !filepath.IsAbs(local) {
		return "", false
	}
	local = filepath.Clean(local)
	for _, root := range []string{m.root, m.realRoot} {
		if rel, ok := relPath(root, local); ok {
			return rel, true
		}
	}
	return "", false
}

func relPath(root, p string) (string, bool) {
	if runtime.GOOS == "windows" {
		// paths are case-insensitive on windows.
		if len(p) >= len(root) && strings.EqualFold(p[:len(root)], root) {
			p = root + p[len(root):]
		}
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return path.Clean(rel), true
}

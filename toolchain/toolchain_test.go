// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package toolchain_test

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"go.chromium.org/infra/build/msvcinc/toolchain"
)

func TestReferencePath(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	for _, tc := range []struct {
		name string
		desc toolchain.Description
		id   string
		want string
	}{
		{
			name: "regular-cl",
			desc: toolchain.Description{Name: toolchain.MSVC},
			id:   toolchain.ExeID("cl", "x64", "x86"),
			want: filepath.Join(root, "bin", "Hostx64", "x86", "cl.exe"),
		},
		{
			name: "regular-workdir",
			desc: toolchain.Description{Name: toolchain.MSVC},
			id:   toolchain.WorkDirID("link", "x64", "arm64"),
			want: filepath.Join(root, "bin", "Hostx64", "arm64"),
		},
		{
			name: "regular-lib-case-insensitive",
			desc: toolchain.Description{Name: toolchain.MSVC},
			id:   "LIB.X64",
			want: filepath.Join(root, "lib", "x64"),
		},
		{
			name: "legacy-cl",
			desc: toolchain.Description{Name: toolchain.MSVC, Layout: toolchain.LayoutLegacy},
			id:   toolchain.ExeID("cl", "x86", "x64"),
			want: filepath.Join(root, "bin", "x86_amd64", "cl.exe"),
		},
		{
			name: "legacy-workdir",
			desc: toolchain.Description{Name: toolchain.MSVC, Layout: toolchain.LayoutLegacy},
			id:   toolchain.WorkDirID("cl", "x64", "x64"),
			want: filepath.Join(root, "bin", "amd64"),
		},
		{
			name: "legacy-lib",
			desc: toolchain.Description{Name: toolchain.MSVC, Layout: toolchain.LayoutLegacy},
			id:   toolchain.LibID("x64"),
			want: filepath.Join(root, "lib", "amd64"),
		},
		{
			name: "kits-include",
			desc: toolchain.Description{Name: toolchain.WindowsKits, Version: "10.0.19041.0"},
			id:   toolchain.IDIncludeUCRT,
			want: filepath.Join(root, "Include", "10.0.19041.0", "ucrt"),
		},
		{
			name: "kits-lib",
			desc: toolchain.Description{Name: toolchain.WindowsKits, Version: "10.0.19041.0"},
			id:   toolchain.KitsLibID("x64", "um"),
			want: filepath.Join(root, "Lib", "10.0.19041.0", "um", "x64"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.desc.Root = root
			ref, err := toolchain.DirResolver{}.Resolve(ctx, tc.desc)
			if err != nil {
				t.Fatalf("Resolve(%v)=_, %v; want nil err", tc.desc, err)
			}
			got, err := ref.Path(tc.id)
			if err != nil || got != tc.want {
				t.Errorf("Path(%q)=%q, %v; want %q, nil", tc.id, got, err, tc.want)
			}
		})
	}
}

func TestReferencePath_notFound(t *testing.T) {
	ctx := context.Background()
	desc := toolchain.Description{Name: toolchain.MSVC, Root: t.TempDir()}
	ref, err := toolchain.DirResolver{}.Resolve(ctx, desc)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{
		"exe.cl.arm.x64",
		"exe.rc.x64.x64",
		"include.um",
		"lib.mips",
	} {
		_, err := ref.Path(id)
		var nerr toolchain.NotFoundError
		if !errors.As(err, &nerr) || nerr.ID != id {
			t.Errorf("Path(%q)=_, %v; want NotFoundError for %q", id, err, id)
		}
	}
}

func TestResolve_errors(t *testing.T) {
	ctx := context.Background()
	_, err := toolchain.DirResolver{}.Resolve(ctx, toolchain.Description{Name: toolchain.MSVC, Root: filepath.Join(t.TempDir(), "missing")})
	var nerr toolchain.NotFoundError
	if !errors.As(err, &nerr) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Resolve(missing)=_, %v; want NotFoundError wrapping fs.ErrNotExist", err)
	}
	_, err = toolchain.DirResolver{}.Resolve(ctx, toolchain.Description{Name: toolchain.MSVC, Root: t.TempDir(), Layout: "vs6"})
	if err == nil {
		t.Errorf("Resolve(layout=vs6)=_, nil; want err")
	}
}

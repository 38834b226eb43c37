// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package statestore_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/infra/build/msvcinc/ccompile"
	"go.chromium.org/infra/build/msvcinc/changefeed"
	"go.chromium.org/infra/build/msvcinc/clink"
	"go.chromium.org/infra/build/msvcinc/fingerprint"
	"go.chromium.org/infra/build/msvcinc/statestore"
	"go.chromium.org/infra/build/msvcinc/toolchain"
	"go.chromium.org/infra/build/msvcinc/toolsupport/msvcutil"
)

func mockState(t *testing.T) *statestore.State {
	t.Helper()
	id := ccompile.Identity{
		Toolchain: map[string]toolchain.Description{
			toolchain.MSVC: {Name: toolchain.MSVC, Version: "14.40", Root: `C:\VS\VC\Tools\MSVC\14.40`},
		},
		Environment: "windows-x64",
	}
	b := ccompile.NewBuildState("app", "x64", id)
	b.Records["main.c"] = &ccompile.CompiledFileRecord{
		InputFingerprint: fingerprint.FromBytes([]byte("int main() {}")),
		Config: ccompile.Config{
			Source:      "src/main.c",
			Language:    "C",
			IncludeDirs: []ccompile.PathOption{ccompile.Local("inc"), ccompile.ToolchainRelative(toolchain.MSVC, toolchain.IDInclude)},
			Macros:      []msvcutil.Macro{{Name: "NDEBUG"}},
			Flags:       []string{"/O2"},
		},
		OutputPath:        "out/obj/main.c.obj",
		OutputFingerprint: fingerprint.FromBytes([]byte("obj")),
		Diagnostics: []ccompile.Diagnostic{
			{Path: "src/main.c", Severity: ccompile.SeverityWarning, LineIndex: 3, Code: "C4101", Message: "'x': unreferenced local variable"},
		},
		Includes:       []string{"inc/header.h"},
		FailedIncludes: []string{"inc/gen.h", "src/gen.h"},
	}
	b.Records["broken.c"] = &ccompile.CompiledFileRecord{
		Config: ccompile.Config{Source: "src/broken.c", Language: "C"},
		Diagnostics: []ccompile.Diagnostic{
			{Severity: ccompile.SeverityError, LineIndex: -1, Message: "cl exited with error code: 2 (0x2)"},
		},
	}
	b.Dependencies = changefeed.Snapshot{
		Sources: map[string]fingerprint.Fingerprint{
			"src/main.c": fingerprint.FromBytes([]byte("int main() {}")),
		},
		Includes: map[string]fingerprint.Fingerprint{
			"inc/header.h": fingerprint.FromBytes([]byte("#pragma once")),
		},
	}
	return &statestore.State{
		Build: b,
		Link: &clink.State{
			Identity:          id,
			Inputs:            map[string]fingerprint.Fingerprint{"out/obj/main.c.obj": fingerprint.FromBytes([]byte("obj"))},
			CommandLine:       []string{"link.exe", "/nologo", "/MACHINE:X64", "/OUT:out/app.exe"},
			Output:            "out/app.exe",
			OutputFingerprint: fingerprint.FromBytes([]byte("exe")),
		},
	}
}

func TestLoadSave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	saved := mockState(t)

	for _, tc := range []struct {
		name  string
		opt   statestore.Option
		magic []byte
	}{
		{
			name:  "zstd",
			opt:   statestore.Option{CompressZstd: true, CompressLevel: 3},
			magic: []byte{0x28, 0xb5, 0x2f, 0xfd},
		},
		{
			name:  "gzip",
			opt:   statestore.Option{CompressLevel: 3},
			magic: []byte{0x1f, 0x8b},
		},
		{
			name:  "bgzf",
			opt:   statestore.Option{GzipUsesBgzf: true},
			magic: []byte{0x1f, 0x8b},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			opt := tc.opt
			opt.Dir = filepath.Join(t.TempDir(), "state")

			err := statestore.Save(ctx, opt, saved)
			if err != nil {
				t.Fatalf("Save(...)=%v; want nil", err)
			}
			fname := opt.FileName("app", "x64")
			b, err := os.ReadFile(fname)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.magic, b[:len(tc.magic)]); diff != "" {
				t.Errorf("Save(...) magic diff -want +got:\n%s", diff)
			}

			loaded, err := statestore.Load(ctx, opt, "app", "x64")
			if err != nil {
				t.Fatalf("Load(...)=_, %v; want nil err", err)
			}
			if diff := cmp.Diff(saved, loaded); diff != "" {
				t.Errorf("Load(...) diff -want +got:\n%s", diff)
			}

			// flipped compression options still load the state.
			opt.CompressZstd = !opt.CompressZstd
			loaded, err = statestore.Load(ctx, opt, "app", "x64")
			if err != nil {
				t.Fatalf("Load(...)=_, %v; want nil err", err)
			}
			if diff := cmp.Diff(saved, loaded); diff != "" {
				t.Errorf("Load(...) diff -want +got:\n%s", diff)
			}
		})
	}
}

func TestSave_backup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	opt := statestore.Option{Dir: t.TempDir(), CompressZstd: true}
	st := mockState(t)
	for range 2 {
		err := statestore.Save(ctx, opt, st)
		if err != nil {
			t.Fatalf("Save(...)=%v; want nil", err)
		}
	}
	fname := opt.FileName("app", "x64")
	for _, f := range []string{fname, fname + ".0"} {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("Stat(%q)=%v; want nil", f, err)
		}
	}
	if _, err := os.Stat(fname + ".tmp"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat(%q)=%v; want not exist", fname+".tmp", err)
	}

	err := statestore.Remove(ctx, opt, "app", "x64")
	if err != nil {
		t.Errorf("Remove(...)=%v; want nil", err)
	}
	_, err = statestore.Load(ctx, opt, "app", "x64")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load(...) after Remove=_, %v; want %v", err, fs.ErrNotExist)
	}
	err = statestore.Remove(ctx, opt, "app", "x64")
	if err != nil {
		t.Errorf("Remove(...) again=%v; want nil", err)
	}
}

func TestLoad_incompatible(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for _, tc := range []struct {
		name    string
		content string
	}{
		{"corrupted", "{not json"},
		{"no_build", `{"link":null}`},
		{"version", `{"build":{"version":0,"identifier":"app","architecture":"x64"}}`},
		{"other_build", `{"build":{"version":1,"identifier":"lib","architecture":"x64"}}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			opt := statestore.Option{Dir: t.TempDir()}
			err := os.WriteFile(opt.FileName("app", "x64"), []byte(tc.content), 0644)
			if err != nil {
				t.Fatal(err)
			}
			_, err = statestore.Load(ctx, opt, "app", "x64")
			if !errors.Is(err, statestore.ErrIncompatible) {
				t.Errorf("Load(...)=_, %v; want %v", err, statestore.ErrIncompatible)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	opt := statestore.Option{Dir: "state"}
	got := opt.FileName("lib/core:dbg", "x64")
	want := filepath.Join("state", "lib_core_dbg-x64.state")
	if got != want {
		t.Errorf("FileName(...)=%q; want %q", got, want)
	}
}

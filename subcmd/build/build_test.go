// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.chromium.org/luci/common/flag/stringmapflag"

	"go.chromium.org/infra/build/msvcinc/ccompile"
	"go.chromium.org/infra/build/msvcinc/statestore"
	"go.chromium.org/infra/build/msvcinc/toolsupport/msvcutil/msvctest"
)

const testConfig = `
def init(ctx):
    files = []
    for src in ctx.fs.glob("src/*.c"):
        files.append({"path": src, "include_dirs": [{"path": "inc"}]})
    return module(
        "config",
        request = json.encode({
            "identifier": "app",
            "architecture": "x64",
            "sdks": {"MSVC": {"root": ctx.flags["msvc_root"], "version": "14.40"}},
            "files": files,
            "link": {"library_path": [{"sdk": "MSVC", "id": "lib.x64"}]},
        }),
    )
`

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	fname := filepath.Join(root, filepath.FromSlash(name))
	err := os.MkdirAll(filepath.Dir(fname), 0755)
	if err != nil {
		t.Fatal(err)
	}
	err = os.WriteFile(fname, []byte(content), 0644)
	if err != nil {
		t.Fatal(err)
	}
}

func setup(t *testing.T) (*run, *msvctest.Fake) {
	t.Helper()
	root := t.TempDir()
	msvcRoot := t.TempDir()
	for _, dir := range []string{"include", "lib/x64"} {
		err := os.MkdirAll(filepath.Join(msvcRoot, filepath.FromSlash(dir)), 0755)
		if err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, root, "msvcinc.star", testConfig)
	writeFile(t, root, "inc/common.h", "// common\n")
	writeFile(t, root, "src/main.c", "#include \"common.h\"\nint main() {}\n")
	writeFile(t, root, "src/util.c", "#include <common.h>\n")

	fake := &msvctest.Fake{}
	c := &run{}
	c.init()
	c.dir = root
	c.configFlags = stringmapflag.Value{"msvc_root": msvcRoot}
	c.hostArch = "x64"
	c.jobs = 2
	c.exec = fake
	return c, fake
}

// compiled returns base names of sources compiled since the last call.
func compiled(fake *msvctest.Fake) []string {
	var srcs []string
	for _, in := range fake.Inputs("cl.exe") {
		srcs = append(srcs, filepath.Base(in))
	}
	sort.Strings(srcs)
	return srcs
}

func linked(fake *msvctest.Fake) bool {
	return len(fake.Inputs("link.exe")) > 0
}

func persisted(t *testing.T, c *run) *statestore.State {
	t.Helper()
	opt := c.stateOpt
	opt.Dir = filepath.Join(c.dir, opt.Dir)
	st, err := statestore.Load(context.Background(), opt, "app", "x64")
	if err != nil {
		t.Fatalf("statestore.Load(...)=_, %v; want nil error", err)
	}
	return st
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	c, fake := setup(t)

	err := c.run(ctx)
	if err != nil {
		t.Fatalf("first build: run(ctx)=%v; want nil error", err)
	}
	if diff := cmp.Diff([]string{"main.c", "util.c"}, compiled(fake)); diff != "" {
		t.Errorf("first build: compiled diff -want +got:\n%s", diff)
	}
	if !linked(fake) {
		t.Errorf("first build: not linked")
	}
	if _, err := os.Stat(filepath.Join(c.dir, "out", "app-x64", "app.exe")); err != nil {
		t.Errorf("first build: app.exe: %v", err)
	}
	st := persisted(t, c)
	if diff := cmp.Diff([]string{"main.c", "util.c"}, st.Build.OutputNames()); diff != "" {
		t.Errorf("first build: state records diff -want +got:\n%s", diff)
	}
	if st.Link == nil {
		t.Errorf("first build: no link state")
	}

	fake.Reset()
	err = c.run(ctx)
	if err != nil {
		t.Fatalf("no-op build: run(ctx)=%v; want nil error", err)
	}
	if got := compiled(fake); len(got) != 0 {
		t.Errorf("no-op build: compiled %q; want none", got)
	}
	if linked(fake) {
		t.Errorf("no-op build: linked; want skip")
	}

	fake.Reset()
	writeFile(t, c.dir, "inc/common.h", "// common v2\n")
	err = c.run(ctx)
	if err != nil {
		t.Fatalf("header change: run(ctx)=%v; want nil error", err)
	}
	if diff := cmp.Diff([]string{"main.c", "util.c"}, compiled(fake)); diff != "" {
		t.Errorf("header change: compiled diff -want +got:\n%s", diff)
	}
	if !linked(fake) {
		t.Errorf("header change: not linked")
	}
}

func TestBuild_failure(t *testing.T) {
	ctx := context.Background()
	c, fake := setup(t)
	writeFile(t, c.dir, "src/bad.c", "#error boom\n")

	for i := 0; i < 2; i++ {
		fake.Reset()
		err := c.run(ctx)
		if !errors.Is(err, ccompile.ErrCompilationFailed) {
			t.Fatalf("build %d: run(ctx)=%v; want %v", i, err, ccompile.ErrCompilationFailed)
		}
		want := []string{"bad.c", "main.c", "util.c"}
		if i > 0 {
			want = []string{"bad.c"}
		}
		if diff := cmp.Diff(want, compiled(fake)); diff != "" {
			t.Errorf("build %d: compiled diff -want +got:\n%s", i, diff)
		}
		if linked(fake) {
			t.Errorf("build %d: linked with compile failure", i)
		}
		st := persisted(t, c)
		if diff := cmp.Diff([]string{"bad.c"}, st.Build.Failed()); diff != "" {
			t.Errorf("build %d: failed diff -want +got:\n%s", i, diff)
		}
	}
}

func TestBuild_noLink(t *testing.T) {
	ctx := context.Background()
	c, fake := setup(t)
	c.noLink = true

	err := c.run(ctx)
	if err != nil {
		t.Fatalf("run(ctx)=%v; want nil error", err)
	}
	if linked(fake) {
		t.Errorf("linked with -nolink")
	}
	if st := persisted(t, c); st.Link != nil {
		t.Errorf("link state=%v; want nil", st.Link)
	}
}

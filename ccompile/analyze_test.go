// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ccompile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/infra/build/msvcinc/mirror"
)

func TestOutputAnalyzer(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"src/main.c", "inc/header.h", "inc/sub/other.h"} {
		fname := filepath.Join(root, filepath.FromSlash(name))
		err := os.MkdirAll(filepath.Dir(fname), 0755)
		if err != nil {
			t.Fatal(err)
		}
		err = os.WriteFile(fname, nil, 0644)
		if err != nil {
			t.Fatal(err)
		}
	}
	outside := filepath.Join(t.TempDir(), "outside.h")
	err := os.WriteFile(outside, nil, 0644)
	if err != nil {
		t.Fatal(err)
	}
	outside, err = filepath.EvalSymlinks(outside)
	if err != nil {
		t.Fatal(err)
	}
	m, err := mirror.NewDirMirror(root)
	if err != nil {
		t.Fatal(err)
	}
	root = m.Root()
	src := filepath.Join(root, "src", "main.c")
	inc := filepath.Join(root, "inc")
	sdkInc := filepath.Join(t.TempDir(), "sdk", "include")

	out := strings.Join([]string{
		"main.c",
		"Note: including file: " + filepath.Join(inc, "header.h"),
		"Note: including file:  " + filepath.Join(inc, "sub", "other.h"),
		"",
		"Note: including file: " + outside,
		"Note: including file: " + filepath.Join(inc, "vanished.h"),
		src + "(12): warning C4101: 'x': unreferenced local variable",
		src + "(20) : error C2065: 'y': undeclared identifier",
		filepath.Join(sdkInc, "windows.h") + "(3): warning C4005: 'Z': macro redefinition",
		src + "(3): fatal error C1083: Cannot open include file: 'gen/missing.h': No such file or directory",
		src + "(1): remark: something",
		"some other output",
	}, "\r\n")

	var bases []string
	for _, dir := range []string{inc, filepath.Dir(src)} {
		rp, err := filepath.EvalSymlinks(dir)
		if err != nil {
			t.Fatal(err)
		}
		bases = append(bases, rp)
	}
	a := newOutputAnalyzer(m, root, src, []string{inc, sdkInc}, bases)
	a.analyze([]byte(out))

	want := []Diagnostic{
		{
			Severity:  SeverityWarning,
			LineIndex: -1,
			Message:   outsideIncludePathsMessage + outside,
		},
		{
			Severity:  SeverityWarning,
			LineIndex: -1,
			Code:      "C4005",
			Message:   "'Z': macro redefinition",
		},
		{
			Path:      "src/main.c",
			Severity:  SeverityInfo,
			LineIndex: 0,
			Message:   "something",
		},
		{
			Path:      "src/main.c",
			Severity:  SeverityWarning,
			LineIndex: 11,
			Code:      "C4101",
			Message:   "'x': unreferenced local variable",
		},
		{
			Path:      "src/main.c",
			Severity:  SeverityError,
			LineIndex: 2,
			Code:      "C1083",
			Message:   "Cannot open include file: 'gen/missing.h': No such file or directory",
		},
		{
			Path:      "src/main.c",
			Severity:  SeverityError,
			LineIndex: 19,
			Code:      "C2065",
			Message:   "'y': undeclared identifier",
		},
	}
	if diff := cmp.Diff(want, SortDiagnostics(a.diagnostics)); diff != "" {
		t.Errorf("diagnostics diff -want +got:\n%s", diff)
	}
	wantIncludes := []string{filepath.ToSlash(outside), "inc/header.h", "inc/sub/other.h"}
	if diff := cmp.Diff(sortedSet(wantIncludes), a.includeList()); diff != "" {
		t.Errorf("includes diff -want +got:\n%s", diff)
	}
	wantFailed := []string{
		"inc/gen/missing.h",
		filepath.ToSlash(filepath.Join(sdkInc, "gen", "missing.h")),
		"src/gen/missing.h",
	}
	if diff := cmp.Diff(sortedSet(wantFailed), a.failedIncludeList()); diff != "" {
		t.Errorf("failed includes diff -want +got:\n%s", diff)
	}
	if diff := cmp.Diff("some other output\n", a.output.String()); diff != "" {
		t.Errorf("output diff -want +got:\n%s", diff)
	}
}

func TestIsWithin(t *testing.T) {
	dir := filepath.Join(string(filepath.Separator)+"work", "inc")
	for _, tc := range []struct {
		p    string
		want bool
	}{
		{dir, true},
		{filepath.Join(dir, "a.h"), true},
		{filepath.Join(dir, "sub", "b.h"), true},
		{dir + "2", false},
		{filepath.Join(dir+"2", "a.h"), false},
		{filepath.Join(string(filepath.Separator)+"work", "a.h"), false},
	} {
		if got := isWithin(dir, tc.p); got != tc.want {
			t.Errorf("isWithin(%q, %q)=%t; want %t", dir, tc.p, got, tc.want)
		}
	}
}

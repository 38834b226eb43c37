// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package msvcutil_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/infra/build/msvcinc/toolsupport/msvcutil"
)

func TestParseLine(t *testing.T) {
	for _, tc := range []struct {
		name string
		line string
		want msvcutil.Line
	}{
		{
			name: "error",
			line: `C:\src\main.c(12): error C2065: 'x': undeclared identifier`,
			want: msvcutil.Line{
				Kind:     msvcutil.Diagnostic,
				Text:     `C:\src\main.c(12): error C2065: 'x': undeclared identifier`,
				File:     `C:\src\main.c`,
				LineNum:  12,
				Severity: "error",
				Code:     "C2065",
				Message:  "'x': undeclared identifier",
			},
		},
		{
			name: "fatalErrorC1083",
			line: `main.c(1): fatal error C1083: Cannot open include file: 'missing.h': No such file or directory`,
			want: msvcutil.Line{
				Kind:     msvcutil.Diagnostic,
				Text:     `main.c(1): fatal error C1083: Cannot open include file: 'missing.h': No such file or directory`,
				File:     "main.c",
				LineNum:  1,
				Severity: "fatal error",
				Code:     "C1083",
				Message:  "Cannot open include file: 'missing.h': No such file or directory",
			},
		},
		{
			name: "warningNoSpaceNoCode",
			line: `a.cpp(3):warning: something odd`,
			want: msvcutil.Line{
				Kind:     msvcutil.Diagnostic,
				Text:     `a.cpp(3):warning: something odd`,
				File:     "a.cpp",
				LineNum:  3,
				Severity: "warning",
				Message:  "something odd",
			},
		},
		{
			name: "include",
			line: `Note: including file:   C:\inc\header.h`,
			want: msvcutil.Line{
				Kind: msvcutil.Include,
				Text: `Note: including file:   C:\inc\header.h`,
				Path: `C:\inc\header.h`,
			},
		},
		{
			name: "includeWithoutPath",
			line: `Note: including file:  `,
			want: msvcutil.Line{
				Kind: msvcutil.Passthrough,
				Text: `Note: including file:  `,
			},
		},
		{
			name: "passthrough",
			line: "main.c",
			want: msvcutil.Line{
				Kind: msvcutil.Passthrough,
				Text: "main.c",
			},
		},
		{
			name: "missingLineNumber",
			line: "main.c(): error C1234: bad",
			want: msvcutil.Line{
				Kind: msvcutil.Passthrough,
				Text: "main.c(): error C1234: bad",
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := msvcutil.ParseLine(tc.line)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParseLine(%q) diff -want +got:\n%s", tc.line, diff)
			}
		})
	}
}

func TestLines(t *testing.T) {
	got := msvcutil.Lines([]byte("main.c\r\nNote: including file: a.h\r\n\r\nlast\nno-newline"))
	want := []string{"main.c", "Note: including file: a.h", "last", "no-newline"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lines(...) diff -want +got:\n%s", diff)
	}
}

func TestIncludeNotFoundPath(t *testing.T) {
	for _, tc := range []struct {
		code, msg string
		want      string
		wantOK    bool
	}{
		{
			code:   "C1083",
			msg:    "Cannot open include file: 'sub/missing.h': No such file or directory",
			want:   "sub/missing.h",
			wantOK: true,
		},
		{
			code:   "c1083",
			msg:    "Cannot open include file: 'it's.h': No such file or directory",
			want:   "it's.h",
			wantOK: true,
		},
		{
			code: "C2065",
			msg:  "'x': undeclared identifier",
		},
		{
			code: "C1083",
			msg:  "Cannot open include file",
		},
		{
			code: "C1083",
			msg:  "Cannot open include file: '",
		},
	} {
		got, ok := msvcutil.IncludeNotFoundPath(tc.code, tc.msg)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("IncludeNotFoundPath(%q, %q)=%q, %t; want %q, %t", tc.code, tc.msg, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestIsSourceEcho(t *testing.T) {
	if !msvcutil.IsSourceEcho("Main.c", `C:\work\src\main.c`) {
		t.Errorf("IsSourceEcho(%q, %q)=false; want true", "Main.c", `C:\work\src\main.c`)
	}
	if msvcutil.IsSourceEcho("other.c", "src/main.c") {
		t.Errorf("IsSourceEcho(%q, %q)=true; want false", "other.c", "src/main.c")
	}
}

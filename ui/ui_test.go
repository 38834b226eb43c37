// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ui_test

import (
	"testing"

	"go.chromium.org/infra/build/msvcinc/ui"
)

func TestStripSGR(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{
			in:   "foo\033",
			want: "foo",
		},
		{
			in:   "foo\033[",
			want: "foo",
		},
		{
			in:   "\033[1maffixmgr.cxx:286:15: \033[0m\033[0;1;35mwarning: \033[0m\033[1musing the result... [-Wparentheses]\033[0m",
			want: "affixmgr.cxx:286:15: warning: using the result... [-Wparentheses]",
		},
	} {
		got := ui.StripSGR(tc.in)
		if got != tc.want {
			t.Errorf("ui.StripSGR(%q)=%q; want=%q", tc.in, got, tc.want)
		}
	}
}

func TestFormatDiagnostic(t *testing.T) {
	for _, tc := range []struct {
		name     string
		path     string
		line     int
		severity string
		code     string
		msg      string
		color    bool
		want     string
	}{
		{
			name:     "error",
			path:     "src/main.c",
			line:     3,
			severity: "error",
			code:     "C2065",
			msg:      "'x': undeclared identifier",
			want:     "src/main.c(3): error C2065: 'x': undeclared identifier",
		},
		{
			name:     "noLine",
			path:     "src/main.c",
			severity: "warning",
			msg:      "included file is outside all include paths: /usr/include/stdio.h",
			want:     "src/main.c: warning: included file is outside all include paths: /usr/include/stdio.h",
		},
		{
			name:     "color",
			path:     "a.c",
			line:     1,
			severity: "error",
			code:     "C1189",
			msg:      "#error: boom",
			color:    true,
			want:     "a.c(1): \033[31;1merror C1189\033[0m: #error: boom",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := ui.FormatDiagnostic(tc.path, tc.line, tc.severity, tc.code, tc.msg, tc.color)
			if got != tc.want {
				t.Errorf("FormatDiagnostic(...)=%q; want %q", got, tc.want)
			}
		})
	}
}

// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ui

import "testing"

func TestElide(t *testing.T) {
	for _, tc := range []struct {
		name  string
		msg   string
		width int
		want  string
	}{
		{
			name:  "fit",
			msg:   "[1/2] 0.52s src/main.c ok",
			width: 80,
			want:  "[1/2] 0.52s src/main.c ok",
		},
		{
			name:  "long",
			msg:   "[12/340] 1m02.10s third_party/zlib/contrib/optimizations/inflate_chunk.c ok",
			width: 40,
			want:  "[12/340] 1m02.10s ...inflate_chunk.c ok",
		},
		{
			name:  "noWidth",
			msg:   "[12/340] 1m02.10s third_party/zlib/contrib/optimizations/inflate_chunk.c ok",
			width: 0,
			want:  "[12/340] 1m02.10s third_party/zlib/contrib/optimizations/inflate_chunk.c ok",
		},
		{
			name:  "sgr",
			msg:   "\033[31;1mfailed\033[0m src/very/long/path/to/source/file.cpp",
			width: 20,
			want:  "\033[31;1mfailed\033[0m s\033[0m...file.cpp",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := elide(tc.msg, tc.width)
			if got != tc.want {
				t.Errorf("elide(%q, %d)=%q; want %q", tc.msg, tc.width, got, tc.want)
			}
		})
	}
}

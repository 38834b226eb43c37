// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cmdutil

import (
	"testing"
)

func TestJoin(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
		want string
	}{
		{
			name: "simple",
			args: []string{`C:\VC\bin\Hostx64\x64\cl.exe`, "/nologo", "/c"},
			want: `C:\VC\bin\Hostx64\x64\cl.exe /nologo /c`,
		},
		{
			name: "space",
			args: []string{"cl.exe", `/IC:\Program Files\inc`, `/Fo"out dir\"`},
			want: `cl.exe "/IC:\Program Files\inc" "/Fo\"out dir\\\""`,
		},
		{
			name: "trailingBackslash",
			args: []string{"link.exe", `/LIBPATH:C:\Program Files\lib\`},
			want: `link.exe "/LIBPATH:C:\Program Files\lib\\"`,
		},
		{
			name: "empty",
			args: []string{"cl.exe", "", "/DX="},
			want: `cl.exe "" /DX=`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := Join(tc.args)
			if got != tc.want {
				t.Errorf("Join(%q)=%q; want %q", tc.args, got, tc.want)
			}
		})
	}
}

// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package msvcutil_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/infra/build/msvcinc/toolsupport/msvcutil"
)

func TestCompileArgs(t *testing.T) {
	for _, tc := range []struct {
		name string
		args msvcutil.CompileArgs
		want []string
	}{
		{
			name: "c",
			args: msvcutil.CompileArgs{
				Exe:         "cl.exe",
				Source:      "src/main.c",
				Output:      "out/main.c.obj",
				Flags:       []string{"/W4", "/nologo", "/W4", "/O2"},
				IncludeDirs: []string{"inc", "third_party/inc"},
				Macros: []msvcutil.Macro{
					{Name: "DEBUG"},
					{Name: "VERSION", Value: "3"},
				},
			},
			want: []string{
				"cl.exe", "/nologo", "/c", "/showIncludes", "/X",
				"/W4", "/O2",
				"/Tcsrc/main.c",
				"/Foout/main.c.obj",
				"/Iinc", "/Ithird_party/inc",
				"/DDEBUG", "/DVERSION=3",
			},
		},
		{
			name: "cxxForceInclude",
			args: msvcutil.CompileArgs{
				Exe:           "cl.exe",
				Language:      "C++",
				Source:        "a.cpp",
				Output:        "a.cpp.obj",
				ForceIncludes: []string{"config.h"},
			},
			want: []string{
				"cl.exe", "/nologo", "/c", "/showIncludes", "/X",
				"/Tpa.cpp", "/Foa.cpp.obj", "/FIconfig.h",
			},
		},
		{
			name: "pchCreate",
			args: msvcutil.CompileArgs{
				Exe:      "cl.exe",
				Language: "c++",
				Source:   "pch.cpp",
				Output:   "pch/pch.obj",
				PCH: &msvcutil.PCHArgs{
					Create: true,
					Header: "pch.h",
					Path:   "pch/pch.pch",
				},
			},
			want: []string{
				"cl.exe", "/nologo", "/c", "/showIncludes", "/X",
				"/Tppch.cpp", "/Fopch/pch.obj", "/Yc", "/Fppch/pch.pch",
			},
		},
		{
			name: "pchUse",
			args: msvcutil.CompileArgs{
				Exe:      "cl.exe",
				Language: "c++",
				Source:   "a.cpp",
				Output:   "a.cpp.obj",
				PCH: &msvcutil.PCHArgs{
					Header:       "pch.h",
					Path:         "pch/pch.pch",
					ForceInclude: true,
				},
			},
			want: []string{
				"cl.exe", "/nologo", "/c", "/showIncludes", "/X",
				"/Tpa.cpp", "/Foa.cpp.obj", "/Fppch/pch.pch", "/Yupch.h", "/FIpch.h",
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.args.Args()
			if err != nil {
				t.Fatalf("Args()=_, %v; want nil err", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Args() diff -want +got:\n%s", diff)
			}
		})
	}
}

func TestCompileArgs_unknownLanguage(t *testing.T) {
	_, err := msvcutil.CompileArgs{Exe: "cl.exe", Language: "fortran", Source: "a.f"}.Args()
	var lerr msvcutil.UnknownLanguageError
	if !errors.As(err, &lerr) || lerr.Language != "fortran" {
		t.Errorf("Args()=_, %v; want UnknownLanguageError{fortran}", err)
	}
}

func TestLanguageForFile(t *testing.T) {
	for fname, want := range map[string]string{
		"a.c":         "c",
		"a.cpp":       "c++",
		"a.CXX":       "c++",
		"dir.cpp/a":   "c",
		"noext":       "c",
		`dir\b.cc`:    "c",
		`dir\b.c.hpp`: "c++",
	} {
		if got := msvcutil.LanguageForFile(fname); got != want {
			t.Errorf("LanguageForFile(%q)=%q; want %q", fname, got, want)
		}
	}
}

func TestLinkArgs(t *testing.T) {
	args := msvcutil.LinkArgs{
		Exe:         "link.exe",
		Machine:     msvcutil.MachineFlag("x64"),
		LibraryPath: []string{"lib/x64", "sdk/lib"},
		Flags:       []string{"/NOLOGO", "/DLL", "/dll"},
		Inputs:      []string{"a.obj", "b.obj", "kernel32.lib"},
		Output:      "out/app.dll",
	}
	want := []string{
		"link.exe", "/nologo", "/MACHINE:X64",
		"/LIBPATH:lib/x64", "/LIBPATH:sdk/lib",
		"/DLL",
		"a.obj", "b.obj", "kernel32.lib",
		"/OUT:out/app.dll",
	}
	if diff := cmp.Diff(want, args.Args()); diff != "" {
		t.Errorf("Args() diff -want +got:\n%s", diff)
	}
	if !msvcutil.IsDLL(args.Flags) {
		t.Errorf("IsDLL(%q)=false; want true", args.Flags)
	}
}

func TestStripEnv(t *testing.T) {
	env := []string{
		"PATH=C:\\Windows",
		"INCLUDE=C:\\inc",
		"cl=/W4",
		"_CL_=/O2",
		"LIBPATH=x",
		"LIB=y",
		"Link=/DEBUG",
		"_LINK_=z",
		"LINK_REPRO=C:\\repro",
		"LIBRARY=keep",
		"TEMP=C:\\tmp",
	}
	want := []string{"PATH=C:\\Windows", "LIBRARY=keep", "TEMP=C:\\tmp"}
	if diff := cmp.Diff(want, msvcutil.StripEnv(env)); diff != "" {
		t.Errorf("StripEnv(...) diff -want +got:\n%s", diff)
	}
}

// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package msvcutil

import (
	"fmt"
	"slices"
	"strings"
)

// AlwaysPresent is the flags always given to cl.exe.
// User flags that duplicate them are dropped.
var AlwaysPresent = []string{"/nologo", "/c", "/showIncludes", "/X"}

// Language values accepted by LanguageFlag.
const (
	LangC   = "c"
	LangCXX = "c++"
)

// UnknownLanguageError is returned for a language other than c or c++.
type UnknownLanguageError struct {
	Language string
}

func (e UnknownLanguageError) Error() string {
	return fmt.Sprintf("unknown language: %q", e.Language)
}

// LanguageFlag returns cl.exe flag to select source language.
// Empty language means c.
func LanguageFlag(lang string) (string, error) {
	switch {
	case strings.EqualFold(lang, LangCXX):
		return "/Tp", nil
	case lang == "" || strings.EqualFold(lang, LangC):
		return "/Tc", nil
	}
	return "", UnknownLanguageError{Language: lang}
}

// LanguageForFile infers language from file extension.
// *.?xx and *.?pp (e.g. .cxx, .cpp) are c++, others are c.
func LanguageForFile(fname string) string {
	ext := fname
	if i := strings.LastIndexAny(fname, `./\`); i >= 0 && fname[i] == '.' {
		ext = strings.ToLower(fname[i+1:])
	} else {
		return LangC
	}
	if strings.HasSuffix(ext, "xx") || strings.HasSuffix(ext, "pp") {
		return LangCXX
	}
	return LangC
}

// Macro is a preprocessor macro definition.
type Macro struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// Flag returns /D flag for the macro.
func (m Macro) Flag() string {
	if m.Value == "" {
		return "/D" + m.Name
	}
	return "/D" + m.Name + "=" + m.Value
}

// PCHArgs is args for precompiled header.
type PCHArgs struct {
	// Create is true to create the pch with /Yc.
	Create bool
	// Header is the header file name given to /Yu (and /FI).
	Header string
	// Path is the pch file path for /Fp.
	Path string
	// ForceInclude adds /FI<Header> when using the pch.
	ForceInclude bool
}

// CompileArgs is the inputs to construct cl.exe command line.
type CompileArgs struct {
	Exe           string
	Language      string
	Source        string
	Output        string
	Flags         []string
	IncludeDirs   []string
	ForceIncludes []string
	Macros        []Macro
	PCH           *PCHArgs
}

// Args returns the command line for cl.exe.
//
// Order is: exe, AlwaysPresent, user flags, /Tc or /Tp with source,
// /Fo, /I per include dir, /FI per force include, /D per macro,
// then pch flags.
func (a CompileArgs) Args() ([]string, error) {
	lang, err := LanguageFlag(a.Language)
	if err != nil {
		return nil, err
	}
	args := []string{a.Exe}
	args = append(args, AlwaysPresent...)
	args = append(args, SimpleFlags(a.Flags, AlwaysPresent)...)
	args = append(args, lang+a.Source)
	args = append(args, "/Fo"+a.Output)
	for _, dir := range a.IncludeDirs {
		args = append(args, "/I"+dir)
	}
	for _, fi := range a.ForceIncludes {
		args = append(args, "/FI"+fi)
	}
	for _, m := range a.Macros {
		args = append(args, m.Flag())
	}
	if a.PCH != nil {
		if a.PCH.Create {
			args = append(args, "/Yc", "/Fp"+a.PCH.Path)
		} else {
			args = append(args, "/Fp"+a.PCH.Path, "/Yu"+a.PCH.Header)
			if a.PCH.ForceInclude {
				args = append(args, "/FI"+a.PCH.Header)
			}
		}
	}
	return args, nil
}

// SimpleFlags returns flags in order, without duplicates and without
// flags in exclude.
func SimpleFlags(flags, exclude []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, f := range flags {
		if f == "" || seen[f] || slices.Contains(exclude, f) {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// LinkArgs is the inputs to construct link.exe command line.
type LinkArgs struct {
	Exe         string
	Machine     string
	LibraryPath []string
	Flags       []string
	Inputs      []string
	Output      string
}

// Args returns the command line for link.exe.
//
// Order is: exe, /nologo, /MACHINE, /LIBPATH per dir, user flags, inputs
// and /OUT. /nologo in user flags is matched case-insensitively.
func (a LinkArgs) Args() []string {
	args := []string{a.Exe, "/nologo", "/MACHINE:" + a.Machine}
	for _, dir := range a.LibraryPath {
		args = append(args, "/LIBPATH:"+dir)
	}
	seen := make(map[string]bool)
	for _, f := range a.Flags {
		k := strings.ToLower(f)
		if f == "" || k == "/nologo" || seen[k] {
			continue
		}
		seen[k] = true
		args = append(args, f)
	}
	args = append(args, a.Inputs...)
	args = append(args, "/OUT:"+a.Output)
	return args
}

// IsDLL reports whether link flags have /DLL.
func IsDLL(flags []string) bool {
	return slices.ContainsFunc(flags, func(f string) bool {
		return strings.EqualFold(f, "/DLL")
	})
}

// MachineFlag returns the /MACHINE value for the architecture.
func MachineFlag(arch string) string {
	switch strings.ToLower(arch) {
	case "x64", "amd64":
		return "X64"
	case "x86", "386":
		return "X86"
	case "arm64":
		return "ARM64"
	case "arm":
		return "ARM"
	}
	return strings.ToUpper(arch)
}

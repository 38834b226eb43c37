// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package toolchain resolves msvc toolchain and Windows Kits paths.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SDK names.
const (
	MSVC        = "MSVC"
	WindowsKits = "WindowsKits"
)

// Layouts of an SDK directory.
const (
	// LayoutRegular is VS2017+ layout. root/bin/Host<host>/<target>/cl.exe.
	LayoutRegular = "regular"
	// LayoutLegacy is VS2015 or older layout. root/bin/<host>_<target>/cl.exe.
	LayoutLegacy = "legacy"
	// LayoutWindowsKits is Windows 10 SDK layout. root/Include/<version>/um.
	LayoutWindowsKits = "windowskits"
)

// Identifiers of paths in an SDK.
const (
	prefixWorkDir = "workdir."
	prefixExe     = "exe."

	IDInclude = "include"

	IDIncludeUCRT   = "include.ucrt"
	IDIncludeUM     = "include.um"
	IDIncludeShared = "include.shared"
	IDIncludeWinRT  = "include.winrt"
)

// ExeID returns the identifier of the executable (cl or link)
// running on host for target.
func ExeID(exe, host, target string) string {
	return prefixExe + exe + "." + host + "." + target
}

// WorkDirID returns the identifier of the working directory of
// the executable.
func WorkDirID(exe, host, target string) string {
	return prefixWorkDir + ExeID(exe, host, target)
}

// LibID returns the identifier of the library directory for target.
func LibID(target string) string {
	return "lib." + target
}

// KitsLibID returns the identifier of Windows Kits library directory
// of kind ("um" or "ucrt") for target.
func KitsLibID(target, kind string) string {
	return "lib." + target + "." + kind
}

// Description describes an SDK to use.
// It is comparable, and a change of any field invalidates
// the incremental state.
type Description struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Root    string `json:"root"`
	Layout  string `json:"layout,omitempty"`
}

func (d Description) String() string {
	return fmt.Sprintf("%s[%s %s %s]", d.Name, d.Layout, d.Version, d.Root)
}

// NotFoundError is an error when an SDK or a path in an SDK is not found.
type NotFoundError struct {
	SDK string
	ID  string
	Err error
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("SDK not found for name: %s: %v", e.SDK, e.Err)
	}
	return fmt.Sprintf("SDK %s: path not found for %q", e.SDK, e.ID)
}

func (e NotFoundError) Unwrap() error {
	return e.Err
}

// Reference is a resolved SDK.
type Reference struct {
	desc Description
}

// Description returns the description of the reference.
func (r *Reference) Description() Description {
	return r.desc
}

// Path returns local path for the identifier.
// Identifiers are case-insensitive.
func (r *Reference) Path(id string) (string, error) {
	var p string
	id = strings.ToLower(id)
	switch r.desc.Layout {
	case LayoutLegacy:
		p = legacyPath(r.desc.Root, id)
	case LayoutWindowsKits:
		p = kitsPath(r.desc.Root, r.desc.Version, id)
	default:
		p = regularPath(r.desc.Root, id)
	}
	if p == "" {
		return "", NotFoundError{SDK: r.desc.Name, ID: id}
	}
	return p, nil
}

// Resolver resolves SDK description to reference.
type Resolver interface {
	Resolve(ctx context.Context, desc Description) (*Reference, error)
}

// DirResolver resolves an SDK in the root directory of the description.
type DirResolver struct{}

// Resolve checks desc's root directory exists and returns its reference.
func (DirResolver) Resolve(ctx context.Context, desc Description) (*Reference, error) {
	if desc.Root == "" {
		return nil, NotFoundError{SDK: desc.Name, Err: errors.New("no root directory")}
	}
	fi, err := os.Stat(desc.Root)
	if err != nil {
		return nil, NotFoundError{SDK: desc.Name, Err: err}
	}
	if !fi.IsDir() {
		return nil, NotFoundError{SDK: desc.Name, Err: fmt.Errorf("%s: not a directory: %w", desc.Root, fs.ErrInvalid)}
	}
	switch desc.Layout {
	case "":
		if desc.Name == WindowsKits {
			desc.Layout = LayoutWindowsKits
		} else {
			desc.Layout = LayoutRegular
		}
	case LayoutRegular, LayoutLegacy, LayoutWindowsKits:
	default:
		return nil, fmt.Errorf("SDK %s: unknown layout %q", desc.Name, desc.Layout)
	}
	return &Reference{desc: desc}, nil
}

// exeParts parses "exe.<exe>.<host>.<target>".
func exeParts(id string) (exe, host, target string, ok bool) {
	rest, ok := strings.CutPrefix(id, prefixExe)
	if !ok {
		return "", "", "", false
	}
	parts := strings.Split(rest, ".")
	if len(parts) != 3 {
		return "", "", "", false
	}
	switch parts[0] {
	case "cl", "link":
	default:
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func validHost(host string) bool {
	return host == "x86" || host == "x64"
}

func validTarget(target string) bool {
	switch target {
	case "x86", "x64", "arm", "arm64":
		return true
	}
	return false
}

func regularPath(root, id string) string {
	if rest, ok := strings.CutPrefix(id, prefixWorkDir); ok {
		exe := regularPath(root, rest)
		if exe == "" {
			return ""
		}
		return filepath.Dir(exe)
	}
	if exe, host, target, ok := exeParts(id); ok {
		if !validHost(host) || !validTarget(target) {
			return ""
		}
		return filepath.Join(root, "bin", "Host"+host, target, exe+".exe")
	}
	if id == IDInclude {
		return filepath.Join(root, "include")
	}
	if target, ok := strings.CutPrefix(id, "lib."); ok && validTarget(target) {
		return filepath.Join(root, "lib", target)
	}
	return ""
}

var legacyBinDir = map[[2]string]string{
	{"x86", "x86"}: "",
	{"x86", "arm"}: "x86_arm",
	{"x86", "x64"}: "x86_amd64",
	{"x64", "x86"}: "amd64_x86",
	{"x64", "arm"}: "amd64_arm",
	{"x64", "x64"}: "amd64",
}

func legacyPath(root, id string) string {
	if rest, ok := strings.CutPrefix(id, prefixWorkDir); ok {
		_, host, target, ok := exeParts(rest)
		if !ok {
			return ""
		}
		if _, ok := legacyBinDir[[2]string{host, target}]; !ok {
			return ""
		}
		if host == "x64" {
			return filepath.Join(root, "bin", "amd64")
		}
		return filepath.Join(root, "bin")
	}
	if exe, host, target, ok := exeParts(id); ok {
		dir, ok := legacyBinDir[[2]string{host, target}]
		if !ok {
			return ""
		}
		return filepath.Join(root, "bin", dir, exe+".exe")
	}
	switch id {
	case IDInclude:
		return filepath.Join(root, "include")
	case LibID("x86"):
		return filepath.Join(root, "lib")
	case LibID("arm"):
		return filepath.Join(root, "lib", "arm")
	case LibID("x64"):
		return filepath.Join(root, "lib", "amd64")
	}
	return ""
}

func kitsPath(root, version, id string) string {
	if version == "" {
		return ""
	}
	switch id {
	case IDIncludeUCRT:
		return filepath.Join(root, "Include", version, "ucrt")
	case IDIncludeUM:
		return filepath.Join(root, "Include", version, "um")
	case IDIncludeShared:
		return filepath.Join(root, "Include", version, "shared")
	case IDIncludeWinRT:
		return filepath.Join(root, "Include", version, "winrt")
	}
	if rest, ok := strings.CutPrefix(id, "lib."); ok {
		target, kind, ok := strings.Cut(rest, ".")
		if !ok || !validTarget(target) {
			return ""
		}
		switch kind {
		case "um", "ucrt":
			return filepath.Join(root, "Lib", version, kind, target)
		}
	}
	return ""
}

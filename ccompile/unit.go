// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ccompile

import (
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.chromium.org/infra/build/msvcinc/toolsupport/msvcutil"
)

// PathOption is a path given to the compiler.
// It is either a local path in the workspace (Path), or a path
// in an SDK (SDK and ID).
type PathOption struct {
	Path string `json:"path,omitempty"`
	SDK  string `json:"sdk,omitempty"`
	ID   string `json:"id,omitempty"`
}

// Local returns a PathOption of logical path p.
func Local(p string) PathOption {
	return PathOption{Path: p}
}

// ToolchainRelative returns a PathOption of the path identified by id
// in the SDK.
func ToolchainRelative(sdk, id string) PathOption {
	return PathOption{SDK: sdk, ID: id}
}

// IsLocal reports whether the option is a local path.
func (p PathOption) IsLocal() bool {
	return p.SDK == ""
}

func (p PathOption) String() string {
	if p.IsLocal() {
		return p.Path
	}
	return p.SDK + ":" + p.ID
}

// Validate checks the option is either local or SDK relative.
func (p PathOption) Validate() error {
	switch {
	case p.SDK == "" && p.Path == "":
		return fmt.Errorf("empty path option")
	case p.SDK != "" && p.Path != "":
		return fmt.Errorf("path option %q has both path and sdk %q", p.Path, p.SDK)
	case p.SDK != "" && p.ID == "":
		return fmt.Errorf("path option for sdk %q has no id", p.SDK)
	}
	return nil
}

// PCHConfig is a precompiled header configuration of a unit.
type PCHConfig struct {
	// Header is the header to precompile.
	Header PathOption `json:"header"`
	// ForceInclude adds /FI<header> to the sources using it.
	ForceInclude bool `json:"force_include,omitempty"`
}

// Config is the compilation configuration of a source file.
// Any difference invalidates the previous compilation result.
type Config struct {
	// Source is the logical path of the source file.
	Source        string           `json:"source"`
	Language      string           `json:"language,omitempty"`
	IncludeDirs   []PathOption     `json:"include_dirs,omitempty"`
	ForceIncludes []PathOption     `json:"force_includes,omitempty"`
	Macros        []msvcutil.Macro `json:"macros,omitempty"`
	Flags         []string         `json:"flags,omitempty"`
	PCH           *PCHConfig       `json:"pch,omitempty"`
}

// Equal reports whether c and o are the same configuration.
func (c Config) Equal(o Config) bool {
	if c.Source != o.Source || !strings.EqualFold(c.Language, o.Language) {
		return false
	}
	if !slices.Equal(c.IncludeDirs, o.IncludeDirs) ||
		!slices.Equal(c.ForceIncludes, o.ForceIncludes) ||
		!slices.Equal(c.Macros, o.Macros) ||
		!slices.Equal(c.Flags, o.Flags) {
		return false
	}
	switch {
	case c.PCH == nil && o.PCH == nil:
		return true
	case c.PCH == nil || o.PCH == nil:
		return false
	}
	return *c.PCH == *o.PCH
}

// Validate checks the configuration before any compilation.
func (c Config) Validate() error {
	if c.Source == "" {
		return ConfigError{Err: fmt.Errorf("no source")}
	}
	if _, err := msvcutil.LanguageFlag(c.Language); err != nil {
		return ConfigError{Source: c.Source, Err: err}
	}
	for _, opts := range [][]PathOption{c.IncludeDirs, c.ForceIncludes} {
		for _, p := range opts {
			if err := p.Validate(); err != nil {
				return ConfigError{Source: c.Source, Err: err}
			}
		}
	}
	if c.PCH != nil {
		if err := c.PCH.Header.Validate(); err != nil {
			return ConfigError{Source: c.Source, Err: fmt.Errorf("pch: %w", err)}
		}
	}
	for _, m := range c.Macros {
		if m.Name == "" {
			return ConfigError{Source: c.Source, Err: fmt.Errorf("macro with empty name")}
		}
	}
	return nil
}

// Unit is a compilation unit, a source file with its configuration.
type Unit struct {
	// OutputName is the logical output name that correlates the unit
	// across builds. The object file is named OutputName + ".obj".
	OutputName string `json:"output_name"`
	Config     Config `json:"config"`
}

// ConfigError is a configuration error, detected before compilation.
type ConfigError struct {
	Source string
	Err    error
}

func (e ConfigError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error for %s: %v", e.Source, e.Err)
}

func (e ConfigError) Unwrap() error {
	return e.Err
}

// OutputNames returns unique output names for sources, in order.
// The base name of the source is used, and "_<n>" is inserted before
// the extension if the name is already used.
func OutputNames(sources []string) []string {
	present := make(map[string]bool)
	names := make([]string, 0, len(sources))
	for _, src := range sources {
		names = append(names, uniqueName(present, path.Base(strings.ReplaceAll(src, `\`, "/"))))
	}
	return names
}

func uniqueName(present map[string]bool, fname string) string {
	key := strings.ToLower(fname)
	if !present[key] {
		present[key] = true
		return fname
	}
	base, ext := fname, ""
	if i := strings.LastIndexByte(fname, '.'); i >= 0 {
		base, ext = fname[:i], fname[i:]
	}
	for i := 1; ; i++ {
		n := base + "_" + strconv.Itoa(i) + ext
		key := strings.ToLower(n)
		if !present[key] {
			present[key] = true
			return n
		}
	}
}

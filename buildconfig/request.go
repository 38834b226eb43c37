// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildconfig

import (
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"

	"go.chromium.org/infra/build/msvcinc/ccompile"
	"go.chromium.org/infra/build/msvcinc/toolchain"
	"go.chromium.org/infra/build/msvcinc/toolsupport/msvcutil"
)

// Request is a build request returned by the config.
//
//	{
//	  "identifier": "app",
//	  "architecture": "x64",
//	  "sdks": {"MSVC": {"root": "...", "version": "14.40"}},
//	  "files": [{"path": "src/main.c", "include_dirs": [{"path": "inc"}]}],
//	  "link": {"flags": ["/DEBUG"]}
//	}
type Request struct {
	Identifier   string `json:"identifier"`
	Architecture string `json:"architecture"`
	// SDKs are keyed by SDK name. Name of the description may be
	// omitted.
	SDKs map[string]toolchain.Description `json:"sdks,omitempty"`
	// OutputDir is the logical directory for outputs.
	// Default is out/<identifier>-<architecture>.
	OutputDir string `json:"out_dir,omitempty"`
	Files     []File `json:"files"`
	Link      *Link  `json:"link,omitempty"`
}

// File is a source file to compile.
type File struct {
	// Path is the logical path of the source.
	Path string `json:"path"`
	// Out is the output name. Default is derived from the base name.
	Out string `json:"out,omitempty"`
	// Language is "c" or "c++". Default is from the extension.
	Language      string                `json:"language,omitempty"`
	IncludeDirs   []ccompile.PathOption `json:"include_dirs,omitempty"`
	ForceIncludes []ccompile.PathOption `json:"force_includes,omitempty"`
	// Macros are "/D<name>=<value>", or "/D<name>" for empty value.
	Macros map[string]string   `json:"macros,omitempty"`
	Flags  []string            `json:"flags,omitempty"`
	PCH    *ccompile.PCHConfig `json:"pch,omitempty"`
}

// Link is the link step of the request.
type Link struct {
	// Inputs are logical paths of additional inputs.
	Inputs      []string              `json:"inputs,omitempty"`
	LibraryPath []ccompile.PathOption `json:"library_path,omitempty"`
	Flags       []string              `json:"flags,omitempty"`
	Disabled    bool                  `json:"disabled,omitempty"`
}

// Validate checks the request.
func (r *Request) Validate() error {
	switch {
	case r.Identifier == "":
		return errors.New("no identifier in request")
	case r.Architecture == "":
		return errors.New("no architecture in request")
	}
	for name, desc := range r.SDKs {
		if desc.Name != "" && desc.Name != name {
			return fmt.Errorf("sdk %q has name %q", name, desc.Name)
		}
		desc.Name = name
		r.SDKs[name] = desc
	}
	if r.Link != nil {
		for _, p := range r.Link.LibraryPath {
			err := p.Validate()
			if err != nil {
				return fmt.Errorf("link library path: %w", err)
			}
		}
	}
	return nil
}

// OutDir returns the logical output directory.
func (r *Request) OutDir() string {
	if r.OutputDir != "" {
		return path.Clean(r.OutputDir)
	}
	return path.Join("out", r.Identifier+"-"+r.Architecture)
}

// Units returns compilation units of the files.
func (r *Request) Units() []ccompile.Unit {
	var srcs []string
	for _, f := range r.Files {
		srcs = append(srcs, f.Path)
	}
	names := ccompile.OutputNames(srcs)
	units := make([]ccompile.Unit, 0, len(r.Files))
	for i, f := range r.Files {
		name := names[i]
		if f.Out != "" {
			name = f.Out
		}
		lang := f.Language
		if lang == "" {
			lang = msvcutil.LanguageForFile(f.Path)
		}
		var macros []msvcutil.Macro
		for _, k := range slices.Sorted(maps.Keys(f.Macros)) {
			macros = append(macros, msvcutil.Macro{Name: k, Value: f.Macros[k]})
		}
		units = append(units, ccompile.Unit{
			OutputName: name,
			Config: ccompile.Config{
				Source:        f.Path,
				Language:      lang,
				IncludeDirs:   f.IncludeDirs,
				ForceIncludes: f.ForceIncludes,
				Macros:        macros,
				Flags:         f.Flags,
				PCH:           f.PCH,
			},
		})
	}
	return units
}

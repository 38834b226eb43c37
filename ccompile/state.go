// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ccompile

import (
	"maps"
	"slices"
	"sort"

	"go.chromium.org/infra/build/msvcinc/changefeed"
	"go.chromium.org/infra/build/msvcinc/fingerprint"
	"go.chromium.org/infra/build/msvcinc/toolchain"
)

// StateVersion is the version of BuildState format.
const StateVersion = 1

// CompiledFileRecord is the result of the last compilation of a unit.
type CompiledFileRecord struct {
	InputFingerprint fingerprint.Fingerprint `json:"input_fingerprint"`
	Config           Config                  `json:"config"`

	// OutputPath is the logical path of the object file.
	// Empty means the last compilation failed.
	OutputPath        string                  `json:"output_path,omitempty"`
	OutputFingerprint fingerprint.Fingerprint `json:"output_fingerprint,omitzero"`

	// Diagnostics are sorted by CompareDiagnostics.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	// Includes are headers resolved during the compilation. Sorted.
	Includes []string `json:"includes,omitempty"`
	// FailedIncludes are headers inferred as missing. Sorted.
	FailedIncludes []string `json:"failed_includes,omitempty"`
}

// Succeeded reports whether the unit was compiled successfully.
func (r *CompiledFileRecord) Succeeded() bool {
	return r.OutputPath != ""
}

// PCHRecord is the result of the last creation of a precompiled header.
type PCHRecord struct {
	// Config is the configuration to compile the header.
	Config           Config                  `json:"config"`
	InputFingerprint fingerprint.Fingerprint `json:"input_fingerprint"`

	// PCHPath is the logical path of .pch file, and ObjPath is the
	// logical path of the object file created with it.
	PCHPath        string                  `json:"pch_path"`
	PCHFingerprint fingerprint.Fingerprint `json:"pch_fingerprint"`
	ObjPath        string                  `json:"obj_path"`
	ObjFingerprint fingerprint.Fingerprint `json:"obj_fingerprint"`

	Diagnostics    []Diagnostic `json:"diagnostics,omitempty"`
	Includes       []string     `json:"includes,omitempty"`
	FailedIncludes []string     `json:"failed_includes,omitempty"`
}

// Identity is the toolchain identity and the execution environment
// of a build. Any difference invalidates all previous results.
type Identity struct {
	Toolchain   map[string]toolchain.Description `json:"toolchain,omitempty"`
	Environment string                           `json:"environment"`
}

// Equal reports whether i and o are the same identity.
func (i Identity) Equal(o Identity) bool {
	return i.Environment == o.Environment && maps.Equal(i.Toolchain, o.Toolchain)
}

// BuildState is the persisted state of a compilation.
type BuildState struct {
	Version      int      `json:"version"`
	Identifier   string   `json:"identifier"`
	Architecture string   `json:"architecture"`
	Identity     Identity `json:"identity"`

	// Records are keyed by output name.
	Records map[string]*CompiledFileRecord `json:"records,omitempty"`
	// PrecompiledHeaders are keyed by pch name.
	PrecompiledHeaders map[string]*PCHRecord `json:"precompiled_headers,omitempty"`

	// Dependencies is the snapshot of files the compilation depended on.
	Dependencies changefeed.Snapshot `json:"dependencies"`
}

// NewBuildState creates an empty state.
func NewBuildState(identifier, arch string, id Identity) *BuildState {
	return &BuildState{
		Version:            StateVersion,
		Identifier:         identifier,
		Architecture:       arch,
		Identity:           id,
		Records:            make(map[string]*CompiledFileRecord),
		PrecompiledHeaders: make(map[string]*PCHRecord),
	}
}

// OutputNames returns the output names of the records, sorted.
func (s *BuildState) OutputNames() []string {
	return slices.Sorted(maps.Keys(s.Records))
}

// OutputPaths returns the object file paths of succeeded records, and
// the object files of precompiled headers. Sorted.
func (s *BuildState) OutputPaths() []string {
	var paths []string
	for _, r := range s.Records {
		if r.Succeeded() {
			paths = append(paths, r.OutputPath)
		}
	}
	for _, p := range s.PrecompiledHeaders {
		if p.ObjPath != "" {
			paths = append(paths, p.ObjPath)
		}
	}
	sort.Strings(paths)
	return slices.Compact(paths)
}

// ReferencedIncludes returns includes and failed includes of all records.
// Sorted.
func (s *BuildState) ReferencedIncludes() []string {
	var paths []string
	for _, r := range s.Records {
		paths = append(paths, r.Includes...)
		paths = append(paths, r.FailedIncludes...)
	}
	for _, p := range s.PrecompiledHeaders {
		paths = append(paths, p.Includes...)
		paths = append(paths, p.FailedIncludes...)
	}
	sort.Strings(paths)
	return slices.Compact(paths)
}

// AllSucceeded reports whether all records succeeded.
func (s *BuildState) AllSucceeded() bool {
	for _, r := range s.Records {
		if !r.Succeeded() {
			return false
		}
	}
	return true
}

// Failed returns the output names of failed records, sorted.
func (s *BuildState) Failed() []string {
	var names []string
	for name, r := range s.Records {
		if !r.Succeeded() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// sortedSet sorts paths and removes duplicates.
func sortedSet(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	sort.Strings(paths)
	return slices.Compact(paths)
}

// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ccompile

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/msvcinc/mirror"
	"go.chromium.org/infra/build/msvcinc/toolsupport/msvcutil"
)

// evalSymlinks is replaced in tests.
var evalSymlinks = filepath.EvalSymlinks

// outsideIncludePathsMessage is the message of the warning for a header
// not under any include base.
const outsideIncludePathsMessage = "included file is outside all include paths: "

// outputAnalyzer accumulates the result of cl output lines.
type outputAnalyzer struct {
	mirror mirror.Mirror
	// dir is the working directory of cl.
	dir string
	// source is the local path of the compiled file.
	source string
	// includeDirs are local include directories, in order.
	includeDirs []string
	// bases are symlink-resolved include directories and the source
	// directory.
	bases []string

	diagnostics    []Diagnostic
	includes       map[string]bool
	failedIncludes map[string]bool
	output         strings.Builder
}

func newOutputAnalyzer(m mirror.Mirror, dir, source string, includeDirs, bases []string) *outputAnalyzer {
	return &outputAnalyzer{
		mirror:         m,
		dir:            dir,
		source:         source,
		includeDirs:    includeDirs,
		bases:          bases,
		includes:       make(map[string]bool),
		failedIncludes: make(map[string]bool),
	}
}

// analyze processes merged stdout and stderr of cl.
func (a *outputAnalyzer) analyze(out []byte) {
	lines := msvcutil.Lines(out)
	for i, line := range lines {
		if i == 0 && msvcutil.IsSourceEcho(line, a.source) {
			continue
		}
		a.line(line)
	}
}

func (a *outputAnalyzer) line(line string) {
	l := msvcutil.ParseLine(line)
	switch l.Kind {
	case msvcutil.Diagnostic:
		a.diagnostic(l)
	case msvcutil.Include:
		a.include(l.Path)
	default:
		a.output.WriteString(line)
		a.output.WriteByte('\n')
	}
}

func (a *outputAnalyzer) diagnostic(l msvcutil.Line) {
	d := Diagnostic{
		Severity:  severityOf(l.Severity),
		LineIndex: -1,
		Code:      l.Code,
		Message:   l.Message,
	}
	if p, ok := a.mirror.Logical(a.abs(l.File)); ok {
		d.Path = p
		// line number is meaningful only for known path.
		if l.LineNum > 0 {
			d.LineIndex = l.LineNum - 1
		}
	}
	if p, ok := msvcutil.IncludeNotFoundPath(l.Code, l.Message); ok {
		a.failedInclude(p)
	}
	a.diagnostics = append(a.diagnostics, d)
}

// failedInclude records a header cl could not open.
// A relative path is recorded under each include directory and the
// source directory, since any of them could provide it.
func (a *outputAnalyzer) failedInclude(p string) {
	if filepath.IsAbs(p) {
		a.failedIncludes[a.pathOf(filepath.Clean(p))] = true
		return
	}
	for _, dir := range a.includeDirs {
		a.failedIncludes[a.pathOf(filepath.Join(dir, p))] = true
	}
	a.failedIncludes[a.pathOf(filepath.Join(filepath.Dir(a.source), p))] = true
}

func (a *outputAnalyzer) include(p string) {
	rp, err := evalSymlinks(a.abs(p))
	if err != nil {
		log.Debugf("failed to determine included file path for %s: %v", p, err)
		return
	}
	a.includes[a.pathOf(rp)] = true
	if a.inBases(rp) {
		return
	}
	a.diagnostics = append(a.diagnostics, Diagnostic{
		Severity:  SeverityWarning,
		LineIndex: -1,
		Message:   outsideIncludePathsMessage + rp,
	})
}

func (a *outputAnalyzer) abs(p string) string {
	if filepath.IsAbs(p) || a.dir == "" {
		return p
	}
	return filepath.Join(a.dir, p)
}

// pathOf returns the logical path of local, or the slash-separated
// local path if it is not in the workspace.
func (a *outputAnalyzer) pathOf(local string) string {
	if p, ok := a.mirror.Logical(local); ok {
		return p
	}
	return filepath.ToSlash(local)
}

func (a *outputAnalyzer) inBases(p string) bool {
	for _, base := range a.bases {
		if isWithin(base, p) {
			return true
		}
	}
	return false
}

// isWithin reports whether p is dir or under dir.
// It is case-insensitive on windows.
func isWithin(dir, p string) bool {
	if runtime.GOOS == "windows" {
		dir = strings.ToLower(dir)
		p = strings.ToLower(p)
	}
	dir = filepath.Clean(dir)
	p = filepath.Clean(p)
	if p == dir {
		return true
	}
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(p, dir)
}

// includeList returns sorted includes.
func (a *outputAnalyzer) includeList() []string {
	return sortedKeys(a.includes)
}

// failedIncludeList returns sorted failed includes.
func (a *outputAnalyzer) failedIncludeList() []string {
	return sortedKeys(a.failedIncludes)
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return sortedSet(keys)
}

// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ccompile

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Severity is a severity of a diagnostic.
type Severity int

// Severities in ascending order.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// severityOf maps the severity word of cl output.
// "fatal error" and "error" are errors, "warning" is warning, and
// anything else is info.
func severityOf(word string) Severity {
	switch strings.ToLower(word) {
	case "fatal error", "error":
		return SeverityError
	case "warning":
		return SeverityWarning
	}
	return SeverityInfo
}

// Diagnostic is a diagnostic reported by the compiler.
type Diagnostic struct {
	// Path is the logical path of the file. Empty if unknown,
	// in which case the unit's source is shown.
	Path     string   `json:"path,omitempty"`
	Severity Severity `json:"severity"`
	// LineIndex is 0-based line number, or -1 if unknown.
	LineIndex int `json:"line_index"`
	// Code is the compiler's error code, e.g. "C2065". Empty if none.
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// CompareDiagnostics orders diagnostics by path (unknown first),
// severity, line, code (empty first) and message.
func CompareDiagnostics(a, b Diagnostic) int {
	if c := cmp.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Severity, b.Severity); c != 0 {
		return c
	}
	if c := cmp.Compare(a.LineIndex, b.LineIndex); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Code, b.Code); c != 0 {
		return c
	}
	return cmp.Compare(a.Message, b.Message)
}

// SortDiagnostics sorts ds in the order of CompareDiagnostics
// and removes duplicates.
func SortDiagnostics(ds []Diagnostic) []Diagnostic {
	slices.SortFunc(ds, CompareDiagnostics)
	return slices.Compact(ds)
}

// HasError reports whether ds has an error diagnostic.
func HasError(ds []Diagnostic) bool {
	return slices.ContainsFunc(ds, func(d Diagnostic) bool {
		return d.Severity == SeverityError
	})
}

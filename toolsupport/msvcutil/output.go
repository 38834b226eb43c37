// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package msvcutil provides utilities of msvc.
package msvcutil

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// msvc may localized text, but we assume developers don't use that.
const IncludePrefix = "Note: including file:"

// CodeIncludeNotFound is the error code of
// "Cannot open include file: 'x': No such file or directory".
const CodeIncludeNotFound = "C1083"

// diagRE matches `<file>(<line>): <severity> [<code>]: <message>`.
var diagRE = regexp.MustCompile(`^(.+?)\(([0-9]+)\) ?: ?([a-zA-Z ]+)( C[0-9]+)?: (.+)$`)

// LineKind is a kind of cl output line.
type LineKind int

const (
	// Passthrough is a line that is neither diagnostic nor include trace.
	Passthrough LineKind = iota
	// Diagnostic is an error or warning line.
	Diagnostic
	// Include is a /showIncludes trace line.
	Include
)

func (k LineKind) String() string {
	switch k {
	case Passthrough:
		return "passthrough"
	case Diagnostic:
		return "diagnostic"
	case Include:
		return "include"
	}
	return "LineKind(" + strconv.Itoa(int(k)) + ")"
}

// Line is a classified line of cl output.
type Line struct {
	Kind LineKind

	// Text is the raw line.
	Text string

	// for Diagnostic.
	File     string
	LineNum  int
	Severity string
	Code     string
	Message  string

	// for Include.
	Path string
}

// ParseLine classifies a line of cl output.
// It never fails. Unrecognized lines are Passthrough.
func ParseLine(line string) Line {
	if m := diagRE.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			n = 0
		}
		return Line{
			Kind:     Diagnostic,
			Text:     line,
			File:     m[1],
			LineNum:  n,
			Severity: m[3],
			Code:     strings.TrimSpace(m[4]),
			Message:  m[5],
		}
	}
	if rest, ok := strings.CutPrefix(line, IncludePrefix); ok {
		p := strings.TrimSpace(rest)
		if p != "" {
			return Line{
				Kind: Include,
				Text: line,
				Path: p,
			}
		}
	}
	return Line{Kind: Passthrough, Text: line}
}

// Lines splits process output into lines.
// It accepts "\r\n", "\n" and "\r" as line terminators, and drops
// empty lines.
func Lines(b []byte) []string {
	var lines []string
	s := b
	for len(s) > 0 {
		line := s
		i := bytes.IndexAny(s, "\r\n")
		if i >= 0 {
			crlf := s[i] == '\r' && i+1 < len(s) && s[i+1] == '\n'
			line = line[:i]
			s = s[i+1:]
			if crlf {
				s = s[1:]
			}
		} else {
			s = nil
		}
		if len(line) == 0 {
			continue
		}
		lines = append(lines, string(line))
	}
	return lines
}

// IncludeNotFoundPath returns the quoted path in the message of C1083.
//
//	Cannot open include file: 'the/path/to/file.h': No such file or directory
func IncludeNotFoundPath(code, msg string) (string, bool) {
	if !strings.EqualFold(code, CodeIncludeNotFound) {
		return "", false
	}
	i := strings.IndexByte(msg, '\'')
	if i < 0 {
		return "", false
	}
	j := strings.LastIndexByte(msg, '\'')
	if j <= i+1 {
		return "", false
	}
	return msg[i+1 : j], true
}

// IsSourceEcho reports whether line is the source file name that cl
// prints before compiling it.
func IsSourceEcho(line, src string) bool {
	base := src
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	return base != "" && strings.EqualFold(strings.TrimSpace(line), base)
}

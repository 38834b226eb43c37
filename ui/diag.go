// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ui

import (
	"strconv"
	"strings"
)

// FormatDiagnostic formats a compiler diagnostic in msvc style,
//
//	path(line): severity code: message
//
// line is 1-based, and omitted if line <= 0.
// If color is true, severity is highlighted with SGR.
func FormatDiagnostic(path string, line int, severity, code, msg string, color bool) string {
	var sb strings.Builder
	sb.WriteString(path)
	if line > 0 {
		sb.WriteByte('(')
		sb.WriteString(strconv.Itoa(line))
		sb.WriteByte(')')
	}
	sb.WriteString(": ")
	sev := severity
	if code != "" {
		sev += " " + code
	}
	if color {
		switch severity {
		case "error":
			sev = SGR(Red, sev)
		case "warning":
			sev = SGR(Yellow, sev)
		default:
			sev = SGR(Cyan, sev)
		}
	}
	sb.WriteString(sev)
	sb.WriteString(": ")
	sb.WriteString(msg)
	return sb.String()
}

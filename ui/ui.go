// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ui provides user interface functionalities.
//
// A build shows one status line for the compilation progress, and
// prints diagnostics and compiler output above it.
package ui

import (
	"os"
	"regexp"

	"golang.org/x/term"
)

// Spinner shows progress of a long operation.
type Spinner interface {
	// Start starts the spinner with the specified formatted string.
	Start(format string, args ...any)
	// Stop stops the spinner, outputting an error if provided.
	Stop(err error)
	// Done finishes the spinner with message.
	Done(format string, args ...any)
}

// UI is a user interface.
type UI interface {
	// Status replaces the status line with msg.
	Status(msg string)
	// NewSpinner returns a new spinner.
	NewSpinner() Spinner
	// Infof prints a message that stays on the screen.
	Infof(format string, args ...any)
}

// Default holds the default UI interface.
// Making changes to this variable after init is undefined behavior.
var Default UI

func init() {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		Default = LogUI{}
		return
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		width = 0
	}
	Default = &TermUI{width: width}
}

// IsTerminal returns whether currently using a terminal UI.
func IsTerminal() bool {
	_, ok := Default.(*TermUI)
	return ok
}

// https://en.wikipedia.org/wiki/ANSI_escape_code#SGR_(Select_Graphic_Rendition)_parameters
type SGRCode int

const (
	Bold SGRCode = iota
	Red
	Yellow
	Cyan
	Reset
)

var sgrEscSeq = map[SGRCode]string{
	Bold:   "\033[1m",
	Red:    "\033[31;1m",
	Yellow: "\033[33m",
	Cyan:   "\033[36m",
	Reset:  "\033[0m",
}

func (s SGRCode) String() string {
	return sgrEscSeq[s]
}

// SGR formats s in SGR (select graphic rendition).
func SGR(n SGRCode, s string) string {
	return n.String() + s + Reset.String()
}

var csiRE = regexp.MustCompile("\033(\\[[0-9;?]*[a-zA-Z]?)?")

// StripSGR strips ANSI escape sequences from s.
func StripSGR(s string) string {
	return csiRE.ReplaceAllString(s, "")
}

// elide shortens msg to fit in width columns by replacing its middle
// with "...". SGR sequences are kept for the visible parts.
func elide(msg string, width int) string {
	const marker = "..."
	type chunk struct {
		text string
		sgr  bool
	}
	var chunks []chunk
	visible := 0
	for msg != "" {
		loc := csiRE.FindStringIndex(msg)
		if loc == nil {
			chunks = append(chunks, chunk{text: msg})
			visible += len(msg)
			break
		}
		if loc[0] > 0 {
			chunks = append(chunks, chunk{text: msg[:loc[0]]})
			visible += loc[0]
		}
		chunks = append(chunks, chunk{text: msg[loc[0]:loc[1]], sgr: true})
		msg = msg[loc[1]:]
	}
	if width <= len(marker)+1 || visible < width {
		var full []byte
		for _, c := range chunks {
			full = append(full, c.text...)
		}
		return string(full)
	}
	n := (width - len(marker) - 1) / 2
	var head, tail []byte
	var colored bool
	pos := 0
	for _, c := range chunks {
		if c.sgr {
			if pos < n {
				head = append(head, c.text...)
				colored = true
			}
			if pos >= visible-n {
				tail = append(tail, c.text...)
			}
			continue
		}
		for i := 0; i < len(c.text); i++ {
			switch {
			case pos < n:
				head = append(head, c.text[i])
			case pos >= visible-n:
				tail = append(tail, c.text[i])
			}
			pos++
		}
	}
	if colored {
		head = append(head, Reset.String()...)
	}
	return string(head) + marker + string(tail)
}
